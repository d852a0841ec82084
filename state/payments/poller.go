package payments

import (
	"fmt"
	"time"

	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
	"github.com/PlebeianApp/market-sub002/state/registry"
)

// StartPoller is the pull confirmation channel: it watches the connected
// wallet for settlements of still-pending invoices and confirms them
// directly, independently of the receipt subscription. Requires a wallet
// endpoint; without one the receipt channel is the only source of proofs.
func StartPoller() {
	conf := actors.MakeOrGetConfig()
	if conf == nil || len(conf.GetString("walletEndpoint")) == 0 {
		library.LogCLI("no wallet endpoint configured, settlement polling disabled", 4)
		return
	}
	start()
	interval := time.Duration(conf.GetInt64("walletPollSeconds")) * time.Second
	if interval <= 0 {
		interval = time.Second * 30
	}
	go func() {
		actors.GetWaitGroup().Add(1)
		for {
			select {
			case <-time.After(interval):
				pollOnce()
			case <-actors.GetTerminateChan():
				actors.GetWaitGroup().Done()
				library.LogCLI("Wallet poller has shut down", 4)
				return
			}
		}
	}()
}

func pollOnce() {
	pendingMu.Lock()
	snapshot := make([]PendingInvoice, 0, len(pending))
	for _, invoice := range pending {
		snapshot = append(snapshot, invoice)
	}
	pendingMu.Unlock()
	for _, invoice := range snapshot {
		paid, preimage, err := checkPayment(invoice.PaymentHash)
		if err != nil {
			library.LogCLI(fmt.Sprintf("could not check payment %s: %s", invoice.PaymentHash, err.Error()), 2)
			continue
		}
		if !paid {
			continue
		}
		if !library.ValidatePreimage(preimage, invoice.PaymentHash) {
			library.LogCLI(fmt.Sprintf("wallet reports %s settled but returned a bad preimage", invoice.PaymentHash), 1)
			continue
		}
		if !markSettled(invoice.PaymentHash) {
			// The receipt channel already applied this settlement.
			pendingMu.Lock()
			delete(pending, invoice.PaymentHash)
			pendingMu.Unlock()
			continue
		}
		validUntil, err := registry.ConfirmPurchase(invoice.Name, invoice.Requester, invoice.AmountExpected)
		if err != nil {
			settled.Delete(invoice.PaymentHash)
			library.LogCLI(fmt.Sprintf("settled payment %s rejected: %s", invoice.PaymentHash, err.Error()), 2)
			continue
		}
		pendingMu.Lock()
		delete(pending, invoice.PaymentHash)
		pendingMu.Unlock()
		library.LogCLI(fmt.Sprintf("poller confirmed name %s for %s until %d", invoice.Name, invoice.Requester, validUntil), 4)
	}
}
