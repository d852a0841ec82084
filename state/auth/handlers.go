package auth

import (
	"encoding/hex"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
)

// HandleEvent applies a setup, admin-list, or editor-list snapshot. Each
// snapshot fully replaces the previous membership of its kind; a malformed
// snapshot leaves the previous state untouched.
func HandleEvent(event nostr.Event) error {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	namespace, ok := library.GetNamespace(event)
	if !ok {
		return fmt.Errorf("event %s has no namespace tag", event.ID)
	}
	if last, exists := currentState.lastApplied[namespace]; exists {
		if event.CreatedAt <= last {
			return fmt.Errorf("event %s is older than the current %s snapshot, ignoring", event.ID, namespace)
		}
	}
	switch namespace {
	case actors.NamespaceSetup:
		return handleSetup(event)
	case actors.NamespaceAdmins:
		return handleAdmins(event)
	case actors.NamespaceEditors:
		return handleEditors(event)
	}
	return fmt.Errorf("event %s namespace %s was sent to the authorization registries but does not belong to them", event.ID, namespace)
}

func handleSetup(event nostr.Event) error {
	if !currentState.configured {
		owner := event.PubKey
		if declared, ok := library.GetFirstTag(event, "owner"); ok {
			owner = declared
		}
		if !validAccount(owner) {
			return fmt.Errorf("setup event %s declares an invalid owner pubkey", event.ID)
		}
		currentState.owner = owner
		currentState.admins = map[library.Account]struct{}{owner: {}}
		currentState.configured = true
		currentState.settings = event.Content
		currentState.lastApplied[actors.NamespaceSetup] = event.CreatedAt
		library.LogCLI(fmt.Sprintf("bootstrap complete, owner is %s", owner), 4)
		return nil
	}
	if event.PubKey != currentState.owner {
		return fmt.Errorf("already configured, setup event %s is not from the owner", event.ID)
	}
	// A setup message from the existing owner is a settings update, not a
	// re-bootstrap.
	currentState.settings = event.Content
	currentState.lastApplied[actors.NamespaceSetup] = event.CreatedAt
	return nil
}

func handleAdmins(event nostr.Event) error {
	replacement, err := parseMembership(event)
	if err != nil {
		return err
	}
	if len(replacement) == 0 {
		return fmt.Errorf("admin snapshot %s contains no members, refusing to empty the admin set", event.ID)
	}
	currentState.admins = replacement
	currentState.lastApplied[actors.NamespaceAdmins] = event.CreatedAt
	return nil
}

func handleEditors(event nostr.Event) error {
	replacement, err := parseMembership(event)
	if err != nil {
		return err
	}
	currentState.editors = replacement
	currentState.lastApplied[actors.NamespaceEditors] = event.CreatedAt
	return nil
}

// parseMembership builds a fresh set from every p tag on the snapshot. One
// invalid entry rejects the whole message; partial updates are never applied.
func parseMembership(event nostr.Event) (map[library.Account]struct{}, error) {
	replacement := make(map[library.Account]struct{})
	for _, account := range library.GetAllTags(event, "p") {
		if !validAccount(account) {
			return nil, fmt.Errorf("event %s contains invalid pubkey %s", event.ID, account)
		}
		replacement[account] = struct{}{}
	}
	return replacement, nil
}

func validAccount(account library.Account) bool {
	if len(account) != 64 {
		return false
	}
	_, err := hex.DecodeString(account)
	return err == nil
}
