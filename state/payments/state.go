package payments

import (
	"fmt"
	"strings"
	"time"

	decodepay "github.com/nbd-wtf/ln-decodepay"
	"github.com/patrickmn/go-cache"
	"github.com/sasha-s/go-deadlock"
	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
	"github.com/PlebeianApp/market-sub002/state/registry"
)

var pending map[library.Sha256]PendingInvoice
var pendingMu = &deadlock.Mutex{}

// settled records every accepted settlement reference for the dedup window.
// A second proof carrying the same reference is dropped, whichever channel
// it arrives on.
var settled = cache.New(6*time.Hour, 30*time.Minute)

var started = false
var available = &deadlock.Mutex{}

func start() {
	available.Lock()
	defer available.Unlock()
	if !started {
		started = true
		pending = make(map[library.Sha256]PendingInvoice)
		go sweeper()
		library.LogCLI("Payments have started", 4)
	}
}

// markSettled returns false if this settlement reference was seen before.
func markSettled(reference library.Sha256) bool {
	return settled.Add(reference, struct{}{}, cache.DefaultExpiration) == nil
}

// NewPendingInvoice asks the connected wallet for an invoice priced at the
// named tier and remembers it until settlement or sweep.
func NewPendingInvoice(name library.Alias, requester library.Account, tierLabel string) (PendingInvoice, error) {
	start()
	name = strings.ToLower(name)
	if err := purchasable(name, requester); err != nil {
		return PendingInvoice{}, err
	}
	var tier registry.Tier
	var found bool
	for _, t := range registry.Tiers() {
		if t.Label == tierLabel {
			tier = t
			found = true
		}
	}
	if !found {
		return PendingInvoice{}, fmt.Errorf("no pricing tier named %s", tierLabel)
	}
	bolt11, err := createInvoice(tier.AmountSats, fmt.Sprintf("market name %s for %s", name, requester))
	if err != nil {
		return PendingInvoice{}, err
	}
	decoded, err := decodepay.Decodepay(bolt11)
	if err != nil {
		return PendingInvoice{}, err
	}
	if decoded.MSatoshi/1000 != tier.AmountSats {
		return PendingInvoice{}, fmt.Errorf("wallet returned an invoice for %d sats but tier %s costs %d", decoded.MSatoshi/1000, tier.Label, tier.AmountSats)
	}
	invoice := PendingInvoice{
		PaymentRequest: bolt11,
		PaymentHash:    decoded.PaymentHash,
		Name:           name,
		Requester:      requester,
		AmountExpected: tier.AmountSats,
		CreatedAt:      time.Now(),
	}
	pendingMu.Lock()
	pending[invoice.PaymentHash] = invoice
	pendingMu.Unlock()
	return invoice, nil
}

func purchasable(name library.Alias, requester library.Account) error {
	if len(requester) != 64 {
		return fmt.Errorf("requester pubkey %s is invalid", requester)
	}
	if registry.IsAvailable(name) {
		return nil
	}
	// Not available can still mean renewal by the current owner.
	if owner, ok := registry.Resolve(name); ok && owner == requester {
		return nil
	}
	return fmt.Errorf("name %s is not available", name)
}

// Confirm settles a pending invoice through the synchronous HTTP channel.
func Confirm(paymentRequest, preimage string) (name library.Alias, validUntil int64, e error) {
	start()
	decoded, err := decodepay.Decodepay(paymentRequest)
	if err != nil {
		return "", 0, fmt.Errorf("could not decode payment request: %s", err.Error())
	}
	if _, confirmed := settled.Get(decoded.PaymentHash); confirmed {
		return "", 0, fmt.Errorf("payment %s was already confirmed", decoded.PaymentHash)
	}
	pendingMu.Lock()
	invoice, ok := pending[decoded.PaymentHash]
	pendingMu.Unlock()
	if !ok {
		return "", 0, fmt.Errorf("no pending invoice for payment hash %s", decoded.PaymentHash)
	}
	if !library.ValidatePreimage(preimage, decoded.PaymentHash) {
		return "", 0, fmt.Errorf("preimage does not match the payment hash")
	}
	if !markSettled(decoded.PaymentHash) {
		return "", 0, fmt.Errorf("payment %s was already confirmed", decoded.PaymentHash)
	}
	validUntil, err = registry.ConfirmPurchase(invoice.Name, invoice.Requester, invoice.AmountExpected)
	if err != nil {
		// The sats settled but the purchase was rejected; release the
		// reference so the rejection reason stays visible on retry.
		settled.Delete(decoded.PaymentHash)
		return "", 0, err
	}
	pendingMu.Lock()
	delete(pending, decoded.PaymentHash)
	pendingMu.Unlock()
	return invoice.Name, validUntil, nil
}

func PendingCount() int {
	start()
	pendingMu.Lock()
	defer pendingMu.Unlock()
	return len(pending)
}

// sweeper drops invoices nothing ever paid, bounding memory.
func sweeper() {
	actors.GetWaitGroup().Add(1)
	maxAge := time.Hour
	if conf := actors.MakeOrGetConfig(); conf != nil {
		if s := conf.GetInt64("invoiceMaxAgeSeconds"); s > 0 {
			maxAge = time.Duration(s) * time.Second
		}
	}
	for {
		select {
		case <-time.After(time.Minute * 5):
			pendingMu.Lock()
			for hash, invoice := range pending {
				if time.Since(invoice.CreatedAt) > maxAge {
					library.LogCLI(fmt.Sprintf("sweeping unpaid invoice %s for name %s", hash, invoice.Name), 3)
					delete(pending, hash)
				}
			}
			pendingMu.Unlock()
		case <-actors.GetTerminateChan():
			actors.GetWaitGroup().Done()
			library.LogCLI("Payments have shut down", 4)
			return
		}
	}
}
