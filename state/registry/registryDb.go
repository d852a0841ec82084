package registry

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/sasha-s/go-deadlock"
	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
)

type db struct {
	data          map[library.Alias]Record
	lastApplied   nostr.Timestamp
	lastPublished nostr.Timestamp
	mutex         *deadlock.Mutex
}

var currentState = db{
	data:  make(map[library.Alias]Record),
	mutex: &deadlock.Mutex{},
}

var started = false
var available = &deadlock.Mutex{}

// publisher is injected by the conductor so that the registry can republish
// its snapshot without importing the messaging layer.
var publisher func(nostr.Event)

func SetPublisher(p func(nostr.Event)) {
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	publisher = p
}

func startDb() {
	available.Lock()
	defer available.Unlock()
	if !started {
		started = true
		ready := make(chan struct{})
		go start(ready)
		<-ready
		library.LogCLI("Name registry has started", 4)
	}
}

func start(ready chan struct{}) {
	actors.GetWaitGroup().Add(1)
	close(ready)
	<-actors.GetTerminateChan()
	actors.GetWaitGroup().Done()
	library.LogCLI("Name registry has shut down", 4)
}

var aliasPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,28}[a-z0-9]$`)

// reservedNames are route-like strings that can never be registered.
var reservedNames = map[library.Alias]struct{}{
	"admin": {}, "api": {}, "auth": {}, "about": {}, "cart": {},
	"checkout": {}, "community": {}, "dashboard": {}, "help": {},
	"market": {}, "messages": {}, "names": {}, "orders": {}, "pay": {},
	"products": {}, "settings": {}, "stalls": {}, "static": {},
	"support": {}, "wallet": {}, "www": {},
}

func validSyntax(name library.Alias) bool {
	return aliasPattern.MatchString(name)
}

func reserved(name library.Alias) bool {
	_, ok := reservedNames[strings.ToLower(name)]
	return ok
}

// Resolve returns the active owner of an alias, if any. Expired records are
// never surfaced.
func Resolve(name library.Alias) (library.Account, bool) {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	record, ok := currentState.data[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	if record.ValidUntil <= time.Now().Unix() {
		return "", false
	}
	return record.Owner, true
}

// Lookup returns the active record for an alias, if any.
func Lookup(name library.Alias) (Record, bool) {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	record, ok := currentState.data[strings.ToLower(name)]
	if !ok || record.ValidUntil <= time.Now().Unix() {
		return Record{}, false
	}
	return record, true
}

// IsAvailable reports whether an alias could be purchased right now.
func IsAvailable(name library.Alias) bool {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	return isAvailable(strings.ToLower(name))
}

func isAvailable(name library.Alias) bool {
	if !validSyntax(name) || reserved(name) {
		return false
	}
	record, ok := currentState.data[name]
	if !ok {
		return true
	}
	return record.ValidUntil <= time.Now().Unix()
}

// OwnerRecord returns the active alias held by an identity, if any.
func OwnerRecord(account library.Account) (Record, bool) {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	now := time.Now().Unix()
	for _, record := range currentState.data {
		if record.Owner == account && record.ValidUntil > now {
			return record, true
		}
	}
	return Record{}, false
}

func LastPublished() nostr.Timestamp {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	return currentState.lastPublished
}

func GetMapped() Mapped {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	m := make(Mapped)
	for name, record := range currentState.data {
		m[name] = record
	}
	return m
}

// ConfirmPurchase is the single state transition that creates or extends an
// alias registration. The caller is responsible for proof validation and
// settlement deduplication; this function assumes the sats were really paid.
// The read-mutate-republish sequence holds one mutex so that two concurrent
// confirmations cannot clobber each other's table replace.
func ConfirmPurchase(name library.Alias, requester library.Account, amountPaid int64) (validUntil int64, e error) {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	name = strings.ToLower(name)
	if !validSyntax(name) {
		return 0, fmt.Errorf("name %s is not a valid alias", name)
	}
	if reserved(name) {
		return 0, fmt.Errorf("name %s is reserved and can never be registered", name)
	}
	if len(requester) != 64 {
		return 0, fmt.Errorf("requester pubkey %s is invalid", requester)
	}
	now := time.Now().Unix()
	existing, exists := currentState.data[name]
	if exists && existing.Owner != requester && existing.ValidUntil > now {
		return 0, fmt.Errorf("name %s is held by another identity until %d", name, existing.ValidUntil)
	}
	tier, ok := tierForAmount(amountPaid)
	if !ok {
		return 0, fmt.Errorf("%d sats does not meet any pricing tier", amountPaid)
	}
	validUntil = now + tier.DurationSeconds
	if exists && existing.Owner == requester && existing.ValidUntil > now {
		// Renewal extends the current registration instead of resetting it.
		validUntil = existing.ValidUntil + tier.DurationSeconds
	}
	// One active alias per identity: buying a new name supersedes any other
	// name the requester holds.
	for held, record := range currentState.data {
		if held != name && record.Owner == requester {
			delete(currentState.data, held)
		}
	}
	currentState.data[name] = Record{Name: name, Owner: requester, ValidUntil: validUntil}
	republish()
	return validUntil, nil
}

// republish publishes the full table as one snapshot superseding the prior
// one. Must be called with the state mutex held.
func republish() {
	event := snapshotEvent()
	if publisher == nil {
		library.LogCLI("no publisher wired, registry snapshot not republished", 2)
		return
	}
	publisher(event)
	currentState.lastPublished = event.CreatedAt
}

func snapshotEvent() nostr.Event {
	tags := nostr.Tags{nostr.Tag{"d", actors.NamespaceNames}}
	for _, record := range currentState.data {
		tags = append(tags, nostr.Tag{"name", record.Name, record.Owner, fmt.Sprintf("%d", record.ValidUntil)})
	}
	event := nostr.Event{
		PubKey:    actors.MyWallet().Account,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      actors.KindSnapshot,
		Tags:      tags,
		Content:   "",
	}
	event.ID = event.GetID()
	event.Sign(actors.MyWallet().PrivateKey)
	return event
}
