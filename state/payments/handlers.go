package payments

import (
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	decodepay "github.com/nbd-wtf/ln-decodepay"
	"github.com/PlebeianApp/market-sub002/engine/library"
	"github.com/PlebeianApp/market-sub002/state/registry"
)

// HandleZapReceipt is the push confirmation channel: a zap receipt addressed
// to the authority, settling an invoice we issued for a name purchase. It
// funnels into the same dedup discipline as the wallet poller, so the same
// settlement delivered on both channels is applied exactly once.
func HandleZapReceipt(event nostr.Event) error {
	start()
	if event.CreatedAt <= registry.LastPublished() {
		// Historical receipt: whatever it paid for is already reflected in
		// the registry snapshot. Replays after a restart land here.
		return fmt.Errorf("receipt %s predates the current registry snapshot, ignoring", event.ID)
	}
	bolt11, ok := library.GetFirstTag(event, "bolt11")
	if !ok {
		return fmt.Errorf("receipt %s has no bolt11 tag", event.ID)
	}
	decoded, err := decodepay.Decodepay(bolt11)
	if err != nil {
		return fmt.Errorf("receipt %s has an undecodable bolt11: %s", event.ID, err.Error())
	}
	amount := decoded.MSatoshi / 1000
	name, requester, err := nameAndRequester(event, decoded.PaymentHash)
	if err != nil {
		return err
	}
	preimage, hasPreimage := library.GetFirstTag(event, "preimage")
	if hasPreimage {
		if !library.ValidatePreimage(preimage, decoded.PaymentHash) {
			return fmt.Errorf("receipt %s preimage does not match payment hash %s", event.ID, decoded.PaymentHash)
		}
	} else {
		// Without a preimage the receipt is only trusted when it settles an
		// invoice we issued ourselves, for at least the expected amount.
		pendingMu.Lock()
		invoice, pendingExists := pending[decoded.PaymentHash]
		pendingMu.Unlock()
		if !pendingExists {
			return fmt.Errorf("receipt %s carries no preimage and settles no pending invoice", event.ID)
		}
		if amount < invoice.AmountExpected {
			return fmt.Errorf("receipt %s paid %d sats but invoice %s expects %d", event.ID, amount, decoded.PaymentHash, invoice.AmountExpected)
		}
	}
	if !markSettled(decoded.PaymentHash) {
		// Duplicate settlement reference; the other channel got here first.
		library.LogCLI(fmt.Sprintf("dropping duplicate settlement %s", decoded.PaymentHash), 3)
		return nil
	}
	validUntil, err := registry.ConfirmPurchase(name, requester, amount)
	if err != nil {
		settled.Delete(decoded.PaymentHash)
		return err
	}
	pendingMu.Lock()
	delete(pending, decoded.PaymentHash)
	pendingMu.Unlock()
	library.LogCLI(fmt.Sprintf("receipt %s confirmed name %s for %s until %d", event.ID, name, requester, validUntil), 4)
	return nil
}

// nameAndRequester recovers which alias a receipt pays for and on whose
// behalf. A pending invoice matched by payment hash is authoritative; failing
// that, the embedded zap request names both.
func nameAndRequester(event nostr.Event, paymentHash library.Sha256) (library.Alias, library.Account, error) {
	pendingMu.Lock()
	invoice, ok := pending[paymentHash]
	pendingMu.Unlock()
	if ok {
		return invoice.Name, invoice.Requester, nil
	}
	request, err := getInnerEvent(event, "description")
	if err != nil {
		return "", "", fmt.Errorf("receipt %s: %s", event.ID, err.Error())
	}
	name, ok := library.GetFirstTag(request, "name")
	if !ok {
		return "", "", fmt.Errorf("receipt %s: embedded request names no alias", event.ID)
	}
	return name, request.PubKey, nil
}

// getInnerEvent parses and signature-checks an event embedded in a tag.
func getInnerEvent(event nostr.Event, tag string) (n nostr.Event, e error) {
	eventString, ok := library.GetFirstTag(event, tag)
	if !ok {
		return n, fmt.Errorf("could not find an embedded event in the %s tag", tag)
	}
	eventParsed := nostr.Event{}
	err := json.Unmarshal([]byte(eventString), &eventParsed)
	if err != nil {
		return n, err
	}
	_, err = eventParsed.CheckSignature()
	if err != nil {
		return n, err
	}
	return eventParsed, nil
}
