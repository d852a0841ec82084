package registry

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/PlebeianApp/market-sub002/engine/library"
)

// HandleEvent applies an inbound registry snapshot: the full alias table is
// re-parsed into a fresh map and atomically swapped in. Used both for the
// startup rebuild of our own latest snapshot and for admin-published
// corrections. A snapshot older than the applied one is a no-op.
func HandleEvent(event nostr.Event) error {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	if event.CreatedAt <= currentState.lastApplied {
		return fmt.Errorf("event %s is older than the current registry snapshot, ignoring", event.ID)
	}
	replacement := make(map[library.Alias]Record)
	activeAlias := make(map[library.Account]library.Alias)
	now := time.Now().Unix()
	for _, tuple := range library.GetNameTags(event) {
		name := strings.ToLower(tuple[0])
		if !validSyntax(name) || reserved(name) {
			return fmt.Errorf("event %s contains invalid alias %s", event.ID, tuple[0])
		}
		if len(tuple[1]) != 64 {
			return fmt.Errorf("event %s contains invalid owner pubkey for alias %s", event.ID, name)
		}
		validUntil, err := strconv.ParseInt(tuple[2], 10, 64)
		if err != nil {
			return fmt.Errorf("event %s contains invalid expiry for alias %s: %s", event.ID, name, err.Error())
		}
		// One active alias per identity holds across the snapshot too; expired
		// records are inert and may coexist with an active one.
		if validUntil > now {
			if held, taken := activeAlias[tuple[1]]; taken {
				return fmt.Errorf("event %s gives %s two active aliases, %s and %s", event.ID, tuple[1], held, name)
			}
			activeAlias[tuple[1]] = name
		}
		replacement[name] = Record{Name: name, Owner: tuple[1], ValidUntil: validUntil}
	}
	currentState.data = replacement
	currentState.lastApplied = event.CreatedAt
	// Receipts older than this snapshot are already reflected in it, so the
	// replay horizon moves forward too.
	if event.CreatedAt > currentState.lastPublished {
		currentState.lastPublished = event.CreatedAt
	}
	return nil
}
