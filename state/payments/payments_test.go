package payments

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/spf13/viper"
	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
	"github.com/PlebeianApp/market-sub002/state/registry"
)

// A real 10 sat invoice whose preimage is known, so settlement proofs can be
// validated end to end.
const fixtureInvoice = "lnbc100n1pjdtet7pp5jcmv7hv407ksxgjjzh4s0df8umt7y638vyp89jqajd6funwu27vqhp5ks2n3pyktnm59kza8aflanj2gfv046qxlmc0flkqs6ucp7lznfmqcqzzsxqyz5vqsp5qv5sdkv43p724x0a4e6rndm8n8vy43yyprw044hn8uu4hx7d3req9qyyssq2v7pw0ld0tzaua9lg2jweuvht6td8sz0p5uj5nzvj5vxmdfz9sspq6n67usen5ngsj78k3hwfzf0zt4yp5ha7pwtwaej00ak2ahlzegpxs4avn"
const fixtureHash library.Sha256 = "9636cf5d957fad03225215eb07b527e6d7e26a27610272c81d93749e4ddc5798"
const fixturePreimage = "3e2bbb0dfe52a0194daf52ddaeef389052ca2a7b9559766ef3f404727f760f3b"
const fixtureSats int64 = 10

var published int

func TestMain(m *testing.M) {
	conf := viper.New()
	dir, err := os.MkdirTemp("", "authority-payments-test")
	if err != nil {
		panic(err)
	}
	conf.Set("rootDir", dir+"/")
	// Price the dev tier at exactly the fixture invoice's amount.
	conf.Set("tierDevSats", fixtureSats)
	actors.SetConfig(conf)
	actors.SetTerminateChan(make(chan struct{}))
	registry.SetPublisher(func(e nostr.Event) {
		published++
	})
	os.Exit(m.Run())
}

func resetPayments() {
	start()
	pendingMu.Lock()
	pending = make(map[library.Sha256]PendingInvoice)
	pendingMu.Unlock()
	settled.Flush()
}

func addPending(name library.Alias, requester library.Account) {
	pendingMu.Lock()
	pending[fixtureHash] = PendingInvoice{
		PaymentRequest: fixtureInvoice,
		PaymentHash:    fixtureHash,
		Name:           name,
		Requester:      requester,
		AmountExpected: fixtureSats,
		CreatedAt:      time.Now(),
	}
	pendingMu.Unlock()
}

func newIdentity(t *testing.T) (string, library.Account) {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		t.Fatalf("could not derive pubkey: %v", err)
	}
	return sk, pk
}

// zapReceipt builds a receipt settling the fixture invoice, with an embedded
// signed request naming the alias being paid for.
func zapReceipt(t *testing.T, sk string, name library.Alias, withPreimage bool, createdAt int64) nostr.Event {
	t.Helper()
	request := nostr.Event{
		CreatedAt: nostr.Timestamp(createdAt - 1),
		Kind:      9734,
		Tags:      nostr.Tags{nostr.Tag{"name", name}},
	}
	if err := request.Sign(sk); err != nil {
		t.Fatalf("could not sign request: %v", err)
	}
	description, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("could not marshal request: %v", err)
	}
	tags := nostr.Tags{
		nostr.Tag{"p", actors.MyWallet().Account},
		nostr.Tag{"bolt11", fixtureInvoice},
		nostr.Tag{"description", string(description)},
	}
	if withPreimage {
		tags = append(tags, nostr.Tag{"preimage", fixturePreimage})
	}
	return nostr.Event{
		CreatedAt: nostr.Timestamp(createdAt),
		Kind:      actors.KindZapReceipt,
		Tags:      tags,
	}
}

func future() int64 {
	return time.Now().Unix() + 1000
}

func TestConfirm(t *testing.T) {
	t.Run("Given a pending invoice When confirmed with the right preimage Then the name is registered", func(t *testing.T) {
		resetPayments()
		_, pk := newIdentity(t)
		addPending("httpbuyer", pk)
		name, validUntil, err := Confirm(fixtureInvoice, fixturePreimage)
		if err != nil {
			t.Fatalf("Confirm failed: %v", err)
		}
		if name != "httpbuyer" {
			t.Errorf("confirmed name is %s, want httpbuyer", name)
		}
		if validUntil <= time.Now().Unix() {
			t.Errorf("validUntil %d is in the past", validUntil)
		}
		if owner, ok := registry.Resolve("httpbuyer"); !ok || owner != pk {
			t.Errorf("httpbuyer should resolve to the requester, got %s ok=%v", owner, ok)
		}
		if PendingCount() != 0 {
			t.Error("settled invoice must leave the pending set")
		}
	})

	t.Run("Given a pending invoice When the preimage is wrong Then nothing settles", func(t *testing.T) {
		resetPayments()
		_, pk := newIdentity(t)
		addPending("badpreimage", pk)
		if _, _, err := Confirm(fixtureInvoice, "00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff"); err == nil {
			t.Fatal("wrong preimage must be rejected")
		}
		if PendingCount() != 1 {
			t.Error("rejected confirmation must keep the invoice pending")
		}
		if _, ok := registry.Resolve("badpreimage"); ok {
			t.Error("nothing may be registered on a failed confirmation")
		}
	})

	t.Run("Given no pending invoice When a valid proof arrives over HTTP Then it is rejected", func(t *testing.T) {
		resetPayments()
		if _, _, err := Confirm(fixtureInvoice, fixturePreimage); err == nil {
			t.Fatal("proofs for unknown invoices must be rejected")
		}
	})

	t.Run("Given a confirmed invoice When it is confirmed again Then the error names the double confirmation", func(t *testing.T) {
		resetPayments()
		_, pk := newIdentity(t)
		addPending("twicebuyer", pk)
		if _, _, err := Confirm(fixtureInvoice, fixturePreimage); err != nil {
			t.Fatalf("first confirmation failed: %v", err)
		}
		_, _, err := Confirm(fixtureInvoice, fixturePreimage)
		if err == nil {
			t.Fatal("second confirmation must be rejected")
		}
		if !strings.Contains(err.Error(), "already confirmed") {
			t.Errorf("error should name the double confirmation, got: %v", err)
		}
	})
}

func TestHandleZapReceipt(t *testing.T) {
	t.Run("Given no pending invoice When a receipt carries a valid preimage and request Then the purchase applies", func(t *testing.T) {
		resetPayments()
		sk, pk := newIdentity(t)
		receipt := zapReceipt(t, sk, "zapbuyer", true, future())
		if err := HandleZapReceipt(receipt); err != nil {
			t.Fatalf("HandleZapReceipt failed: %v", err)
		}
		if owner, ok := registry.Resolve("zapbuyer"); !ok || owner != pk {
			t.Errorf("zapbuyer should resolve to the zapper, got %s ok=%v", owner, ok)
		}
	})

	t.Run("Given a pending invoice When a preimage-less receipt pays the full amount Then it is trusted", func(t *testing.T) {
		resetPayments()
		sk, pk := newIdentity(t)
		addPending("trustedzap", pk)
		receipt := zapReceipt(t, sk, "trustedzap", false, future())
		if err := HandleZapReceipt(receipt); err != nil {
			t.Fatalf("HandleZapReceipt failed: %v", err)
		}
		if owner, ok := registry.Resolve("trustedzap"); !ok || owner != pk {
			t.Errorf("trustedzap should resolve to the requester, got %s ok=%v", owner, ok)
		}
	})

	t.Run("Given no pending invoice When a receipt has no preimage Then it is rejected", func(t *testing.T) {
		resetPayments()
		sk, _ := newIdentity(t)
		receipt := zapReceipt(t, sk, "untrusted", false, future())
		if err := HandleZapReceipt(receipt); err == nil {
			t.Fatal("preimage-less receipts settling nothing we issued must be rejected")
		}
		if _, ok := registry.Resolve("untrusted"); ok {
			t.Error("nothing may be registered from a rejected receipt")
		}
	})

	t.Run("Given a published snapshot When an older receipt replays Then it is ignored", func(t *testing.T) {
		resetPayments()
		sk, pk := newIdentity(t)
		if _, err := registry.ConfirmPurchase("anchor", pk, fixtureSats); err != nil {
			t.Fatalf("anchor purchase failed: %v", err)
		}
		receipt := zapReceipt(t, sk, "replayed", true, time.Now().Unix()-100)
		if err := HandleZapReceipt(receipt); err == nil {
			t.Fatal("receipts predating the current snapshot must be ignored")
		}
		if _, ok := registry.Resolve("replayed"); ok {
			t.Error("replayed receipt must not mutate the registry")
		}
	})
}

// The same settlement arriving on both confirmation channels must be applied
// exactly once, whichever lands first.
func TestDualChannelDedup(t *testing.T) {
	resetPayments()
	sk, pk := newIdentity(t)
	addPending("dualbuyer", pk)
	first, _, err := Confirm(fixtureInvoice, fixturePreimage)
	if err != nil {
		t.Fatalf("first channel failed: %v", err)
	}
	if first != "dualbuyer" {
		t.Fatalf("confirmed name is %s, want dualbuyer", first)
	}
	publishes := published
	receipt := zapReceipt(t, sk, "dualbuyer", true, future())
	// The duplicate is dropped silently, not surfaced as an error.
	if err := HandleZapReceipt(receipt); err != nil {
		t.Fatalf("duplicate settlement must be dropped without error: %v", err)
	}
	if published != publishes {
		t.Error("duplicate settlement must not republish the registry")
	}
	if owner, ok := registry.Resolve("dualbuyer"); !ok || owner != pk {
		t.Errorf("ownership must be unchanged by the duplicate, got %s ok=%v", owner, ok)
	}
}

func walletServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			json.NewEncoder(w).Encode(lnbitsInvoiceResponse{
				PaymentHash:    fixtureHash,
				PaymentRequest: fixtureInvoice,
			})
		case http.MethodGet:
			json.NewEncoder(w).Encode(lnbitsPaymentStatus{Paid: true, Preimage: fixturePreimage})
		}
	}))
}

func TestNewPendingInvoice(t *testing.T) {
	resetPayments()
	server := walletServer(t)
	defer server.Close()
	conf := actors.MakeOrGetConfig()
	conf.Set("walletEndpoint", server.URL)
	defer conf.Set("walletEndpoint", "")

	_, pk := newIdentity(t)

	t.Run("Given a purchasable name Then the wallet invoice is decoded and remembered", func(t *testing.T) {
		invoice, err := NewPendingInvoice("newbuyer", pk, "dev")
		if err != nil {
			t.Fatalf("NewPendingInvoice failed: %v", err)
		}
		if invoice.PaymentHash != fixtureHash {
			t.Errorf("payment hash is %s, want %s", invoice.PaymentHash, fixtureHash)
		}
		if invoice.AmountExpected != fixtureSats {
			t.Errorf("amount is %d, want %d", invoice.AmountExpected, fixtureSats)
		}
		if PendingCount() != 1 {
			t.Error("invoice must be held pending")
		}
	})

	t.Run("Given an unknown tier Then no invoice is issued", func(t *testing.T) {
		if _, err := NewPendingInvoice("newbuyer", pk, "decade"); err == nil {
			t.Fatal("unknown tiers must be rejected")
		}
	})

	t.Run("Given a reserved name Then no invoice is issued", func(t *testing.T) {
		if _, err := NewPendingInvoice("admin", pk, "dev"); err == nil {
			t.Fatal("reserved names must never reach the wallet")
		}
	})

	t.Run("Given a name held by someone else Then no invoice is issued", func(t *testing.T) {
		_, other := newIdentity(t)
		if _, err := registry.ConfirmPurchase("heldname", other, fixtureSats); err != nil {
			t.Fatalf("setup purchase failed: %v", err)
		}
		if _, err := NewPendingInvoice("heldname", pk, "dev"); err == nil {
			t.Fatal("names held by another identity must be rejected at invoice time")
		}
	})
}

func TestPollOnce(t *testing.T) {
	resetPayments()
	server := walletServer(t)
	defer server.Close()
	conf := actors.MakeOrGetConfig()
	conf.Set("walletEndpoint", server.URL)
	defer conf.Set("walletEndpoint", "")

	_, pk := newIdentity(t)
	addPending("polledbuyer", pk)
	pollOnce()
	if owner, ok := registry.Resolve("polledbuyer"); !ok || owner != pk {
		t.Errorf("poller should have confirmed polledbuyer for %s, got %s ok=%v", pk, owner, ok)
	}
	if PendingCount() != 0 {
		t.Error("settled invoice must leave the pending set")
	}
	// A second poll finds nothing pending and changes nothing.
	publishes := published
	pollOnce()
	if published != publishes {
		t.Error("idle poll must not republish")
	}
}
