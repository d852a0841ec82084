package eventcatcher

import (
	"context"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
	"github.com/PlebeianApp/market-sub002/messaging/relays"
)

// SubscribeToAuthorityFeed is the long-lived inbound subscription: control
// snapshots in our namespaces, and zap receipts addressed to the authority.
// It reconnects on relay failure or staleness and only returns on shutdown.
func SubscribeToAuthorityFeed(eChan chan nostr.Event) {
	var sleepChan = make(chan bool)
	sleeper(sleepChan)
	relay, err := nostr.RelayConnect(context.Background(), actors.MakeOrGetConfig().GetStringSlice("relaysMust")[0])
	if err != nil {
		library.LogCLI(err.Error(), 2)
		time.Sleep(time.Second * 5)
		go SubscribeToAuthorityFeed(eChan)
		return
	}

	filters := nostr.Filters{
		nostr.Filter{
			Kinds: []int{actors.KindSnapshot},
			Tags:  nostr.TagMap{"d": actors.Namespaces()},
		},
		nostr.Filter{
			Kinds: []int{actors.KindZapReceipt},
			Tags:  nostr.TagMap{"p": []string{actors.MyWallet().Account}},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	library.LogCLI("Connecting to "+relay.URL, 4)
	sub, err := relay.Subscribe(ctx, filters)
	if err != nil {
		library.LogCLI(err.Error(), 2)
		cancel()
		time.Sleep(time.Second * 5)
		go SubscribeToAuthorityFeed(eChan)
		return
	}

	lastEventTime := time.Now()
L:
	for {
		select {
		case <-sleepChan:
			go func() {
				library.LogCLI("system sleep detected, terminating application", 2)
				cancel()
				actors.Shutdown()
			}()
		case ev := <-sub.Events:
			if ev == nil {
				library.LogCLI("Terminating connection to relay", 3)
				cancel()
				library.LogCLI("Restarting eventcatcher", 4)
				go SubscribeToAuthorityFeed(eChan)
				break L
			}
			lastEventTime = time.Now()
			if ok, _ := ev.CheckSignature(); ok {
				eChan <- *ev
			}
		case <-time.After(time.Minute):
			if time.Since(lastEventTime) > time.Duration(time.Minute*2) {
				go func() {
					library.LogCLI("Terminating connection to relay", 3)
					cancel()
				}()
				library.LogCLI("Restarting eventcatcher", 4)
				go SubscribeToAuthorityFeed(eChan)
				break L
			}
			go relays.PublishEvent(keepAlive())
		case <-actors.GetTerminateChan():
			break L
		}
	}
	cancel()
}

func keepAlive() nostr.Event {
	e := nostr.Event{
		PubKey:    actors.MyWallet().Account,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      21069,
		Tags:      nostr.Tags{nostr.Tag{"d", "market:keepalive"}},
	}
	e.ID = e.GetID()
	e.Sign(actors.MyWallet().PrivateKey)
	return e
}
