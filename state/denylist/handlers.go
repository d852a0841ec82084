package denylist

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
)

// HandleEvent applies a denylist snapshot and returns the identities that are
// newly banned by it. Replace-not-merge: the snapshot's p tags become the
// entire denylist.
func HandleEvent(event nostr.Event) (newlyBanned []library.Account, e error) {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	if event.CreatedAt <= currentState.lastApplied {
		return nil, fmt.Errorf("event %s is older than the current denylist snapshot, ignoring", event.ID)
	}
	replacement := make(map[library.Account]struct{})
	for _, account := range library.GetAllTags(event, "p") {
		if len(account) != 64 {
			return nil, fmt.Errorf("event %s contains invalid pubkey %s", event.ID, account)
		}
		if _, err := hex.DecodeString(account); err != nil {
			return nil, fmt.Errorf("event %s contains invalid pubkey %s", event.ID, account)
		}
		replacement[account] = struct{}{}
	}
	newlyBanned = Diff(currentState.data, replacement)
	currentState.data = replacement
	currentState.lastApplied = event.CreatedAt
	return newlyBanned, nil
}

// PurgeEvent builds a best-effort deletion request for a banned identity's
// prior content. Relays are under no obligation to honour it.
func PurgeEvent(account library.Account, reason string) (r nostr.Event) {
	r = nostr.Event{
		PubKey:    actors.MyWallet().Account,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      actors.KindDeletionRequest,
		Tags:      nostr.Tags{nostr.Tag{"p", account}},
		Content:   reason,
	}
	r.ID = r.GetID()
	r.Sign(actors.MyWallet().PrivateKey)
	return
}
