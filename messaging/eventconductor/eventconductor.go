package eventconductor

import (
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sasha-s/go-deadlock"
	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
	"github.com/PlebeianApp/market-sub002/messaging/eventcatcher"
	"github.com/PlebeianApp/market-sub002/messaging/relays"
	"github.com/PlebeianApp/market-sub002/state/auth"
	"github.com/PlebeianApp/market-sub002/state/denylist"
	"github.com/PlebeianApp/market-sub002/state/payments"
	"github.com/PlebeianApp/market-sub002/state/registry"
)

var publishChan = make(chan nostr.Event)

// Publish hands an event to the publish loop without blocking the caller.
// Delivery to relays is retried there; the receive loop never waits on it.
func Publish(event nostr.Event) {
	go func() {
		publishChan <- event
	}()
}

var started = make(map[string]bool)
var startedMu = &deadlock.Mutex{}

// Start rebuilds state from the relays, wires the registry's publisher, and
// runs the conductor loop. The startup rebuild is fatal on transport failure.
func Start() {
	buildState()
	registry.SetPublisher(Publish)
	go handleEvents()
}

func handleEvents() {
	startedMu.Lock()
	if started["handleEvents"] {
		startedMu.Unlock()
		return
	}
	started["handleEvents"] = true
	startedMu.Unlock()
	actors.GetWaitGroup().Add(1)
	var eventChan = make(chan nostr.Event)
	stack := library.NewEventStack(1)
	go eventcatcher.SubscribeToAuthorityFeed(eventChan)
L:
	for {
		select {
		case event := <-eventChan:
			stack.Push(&event)
		case e := <-publishChan:
			go func(e nostr.Event) {
				if err := relays.PublishEvent(e); err != nil {
					library.LogCLI(err.Error(), 1)
				}
			}(e)
		case <-time.After(time.Millisecond * 100):
			if event, ok := stack.Pop(); ok {
				if err := handleEvent(*event); err != nil {
					library.LogCLI(err.Error(), 3)
				}
			}
		case <-actors.GetTerminateChan():
			actors.GetWaitGroup().Done()
			break L
		}
	}
}

var handled = make(map[library.Sha256]struct{})
var handledMu = &deadlock.Mutex{}

func alreadyHandled(id library.Sha256) bool {
	handledMu.Lock()
	defer handledMu.Unlock()
	if _, exists := handled[id]; exists {
		return true
	}
	handled[id] = struct{}{}
	return false
}

// handleEvent drives one inbound event through RECEIVED -> VALIDATED ->
// {REJECTED | SIGNED-AND-FORWARDED}. No side effects happen on rejection.
func handleEvent(e nostr.Event) error {
	if alreadyHandled(e.ID) {
		return fmt.Errorf("event %s has already been handled", e.ID)
	}
	if e.Kind == actors.KindZapReceipt {
		// Payment proofs validate themselves cryptographically; the admin
		// pipeline below does not apply to them.
		return payments.HandleZapReceipt(e)
	}
	if e.PubKey == actors.MyWallet().Account {
		// Our own republished snapshots come back over the subscription.
		return nil
	}
	namespace, err := validate(e)
	if err != nil {
		return fmt.Errorf("rejected event %s: %s", e.ID, err.Error())
	}
	if err := apply(e, namespace); err != nil {
		return fmt.Errorf("rejected event %s: %s", e.ID, err.Error())
	}
	// The authority countersigns what it accepted so consumers can follow a
	// single author for canonical state.
	Publish(actors.Countersign(e))
	library.LogCLI(fmt.Sprintf("accepted and countersigned %s event %s from %s", namespace, e.ID, e.PubKey), 4)
	return nil
}

// validate runs the authorization pipeline in order: shape and signature,
// then sender authority, then the denylist. First failure wins.
func validate(e nostr.Event) (namespace string, err error) {
	if ok, _ := e.CheckSignature(); !ok {
		return "", fmt.Errorf("invalid signature")
	}
	if e.Kind != actors.KindSnapshot {
		return "", fmt.Errorf("kind %d is not handled by this service", e.Kind)
	}
	namespace, ok := library.GetNamespace(e)
	if !ok {
		return "", fmt.Errorf("no namespace tag")
	}
	switch namespace {
	case actors.NamespaceSetup:
		if !auth.CanSetup(e.PubKey) {
			return "", fmt.Errorf("sender %s may not send setup messages", e.PubKey)
		}
	case actors.NamespaceAdmins, actors.NamespaceEditors, actors.NamespaceDenylist:
		if !auth.IsAdmin(e.PubKey) {
			return "", fmt.Errorf("sender %s is not an admin", e.PubKey)
		}
	case actors.NamespaceNames:
		if !auth.IsAdmin(e.PubKey) && !auth.IsEditor(e.PubKey) {
			return "", fmt.Errorf("sender %s is neither admin nor editor", e.PubKey)
		}
	default:
		return "", fmt.Errorf("unknown namespace %s", namespace)
	}
	// A denylisted sender is rejected even while a stale authority snapshot
	// still lists them.
	if denylist.IsBanned(e.PubKey) {
		return "", fmt.Errorf("sender %s is denylisted", e.PubKey)
	}
	return namespace, nil
}

func apply(e nostr.Event, namespace string) error {
	switch namespace {
	case actors.NamespaceSetup, actors.NamespaceAdmins, actors.NamespaceEditors:
		return auth.HandleEvent(e)
	case actors.NamespaceDenylist:
		newlyBanned, err := denylist.HandleEvent(e)
		if err != nil {
			return err
		}
		for _, banned := range newlyBanned {
			// Best effort: an open network offers no delete guarantee.
			Publish(denylist.PurgeEvent(banned, "removed by marketplace denylist"))
		}
		return nil
	case actors.NamespaceNames:
		return registry.HandleEvent(e)
	}
	return fmt.Errorf("unknown namespace %s", namespace)
}
