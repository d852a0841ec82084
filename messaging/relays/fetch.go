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

// FetchLatestSnapshot returns the newest snapshot event for a namespace and
// author across all configured relays. found is false when every relay
// answered but none holds one; err is non-nil only when no relay could be
// queried at all, which callers on the startup path treat as fatal.
func FetchLatestSnapshot(namespace string, author library.Account) (n nostr.Event, found bool, err error) {
	events := make(map[string]nostr.Event)
	eventsMu := &deadlock.Mutex{}
	filters := nostr.Filters{
		nostr.Filter{
			Kinds:   []int{actors.KindSnapshot},
			Authors: []string{author},
			Tags:    nostr.TagMap{"d": []string{namespace}},
			Limit:   1,
		}}
	var reachable int
	reachableMu := &deadlock.Mutex{}
	wait := &deadlock.WaitGroup{}
	for _, url := range actors.MakeOrGetConfig().GetStringSlice("relaysMust") {
		wait.Add(1)
		go func(url string) {
			defer wait.Done()
			ctx := context.Background()
			relay, err := nostr.RelayConnect(ctx, url)
			if err != nil {
				library.LogCLI(fmt.Sprintf("could not connect to relay %s: %s", url, err.Error()), 2)
				return
			}
			reachableMu.Lock()
			reachable++
			reachableMu.Unlock()
			ctxsub, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			sub, err := relay.Subscribe(ctxsub, filters)
			if err != nil {
				library.LogCLI(err.Error(), 2)
				return
			}
		L:
			for {
				select {
				case ev := <-sub.Events:
					if ev == nil {
						break L
					}
					eventsMu.Lock()
					events[ev.ID] = *ev
					eventsMu.Unlock()
				case <-sub.EndOfStoredEvents:
					break L
				case <-time.After(time.Second * 6):
					break L
				}
			}
			go func() {
				sub.Close()
				relay.Close()
			}()
		}(url)
	}
	wait.Wait()
	if reachable == 0 {
		return n, false, fmt.Errorf("no relay could be reached to fetch %s", namespace)
	}
	var timestamp nostr.Timestamp
	for _, event := range events {
		if event.CreatedAt > timestamp {
			found = true
			n = event
			timestamp = event.CreatedAt
		}
	}
	return n, found, nil
}
