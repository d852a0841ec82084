package actors

import (
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// Countersign rewrites a validated event so that it is authored by the
// authority: same kind, tags and content, our pubkey, created_at now. It must
// only ever be handed events that already passed the conductor's checks.
func Countersign(e nostr.Event) nostr.Event {
	n := nostr.Event{
		PubKey:    MyWallet().Account,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      e.Kind,
		Tags:      e.Tags,
		Content:   e.Content,
	}
	n.ID = n.GetID()
	n.Sign(MyWallet().PrivateKey)
	return n
}
