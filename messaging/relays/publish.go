package relays

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sasha-s/go-deadlock"
	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
)

const publishAttempts = 3

// PublishEvent pushes one event to every configured relay, retrying each with
// backoff. Failures are logged and surfaced in the return value so callers
// can decide whether an unpublished snapshot needs another attempt; in-memory
// state stays consistent either way.
func PublishEvent(event nostr.Event) error {
	if actors.MakeOrGetConfig().GetBool("doNotPublish") {
		library.LogCLI(fmt.Sprintf("doNotPublish is set, dropping event %s", event.ID), 3)
		return nil
	}
	var delivered int
	deliveredMu := &deadlock.Mutex{}
	wg := &deadlock.WaitGroup{}
	for _, url := range actors.MakeOrGetConfig().GetStringSlice("relaysMust") {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			for attempt := 1; attempt <= publishAttempts; attempt++ {
				if publishOnce(url, event) {
					deliveredMu.Lock()
					delivered++
					deliveredMu.Unlock()
					return
				}
				time.Sleep(time.Second * time.Duration(attempt*attempt))
			}
			library.LogCLI(fmt.Sprintf("giving up publishing %s to %s after %d attempts", event.ID, url, publishAttempts), 2)
		}(url)
	}
	wg.Wait()
	if delivered == 0 {
		return fmt.Errorf("event %s was not accepted by any relay", event.ID)
	}
	return nil
}

func publishOnce(url string, event nostr.Event) bool {
	relay, err := nostr.RelayConnect(context.Background(), url)
	if err != nil {
		library.LogCLI(fmt.Sprintf("could not connect to relay %s: %s", url, err.Error()), 2)
		return false
	}
	defer relay.Close()
	_, err = relay.Publish(context.Background(), event)
	if err != nil {
		library.LogCLI(fmt.Sprintf("could not publish to relay %s: %s", url, err.Error()), 2)
		return false
	}
	return true
}
