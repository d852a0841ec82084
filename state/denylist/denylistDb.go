package denylist

import (
	"github.com/nbd-wtf/go-nostr"
	"github.com/sasha-s/go-deadlock"
	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
	"golang.org/x/exp/slices"
)

type db struct {
	data        map[library.Account]struct{}
	lastApplied nostr.Timestamp
	mutex       *deadlock.Mutex
}

var currentState = db{
	data:  make(map[library.Account]struct{}),
	mutex: &deadlock.Mutex{},
}

var started = false
var available = &deadlock.Mutex{}

func startDb() {
	available.Lock()
	defer available.Unlock()
	if !started {
		started = true
		ready := make(chan struct{})
		go start(ready)
		<-ready
		library.LogCLI("Denylist has started", 4)
	}
}

func start(ready chan struct{}) {
	actors.GetWaitGroup().Add(1)
	close(ready)
	<-actors.GetTerminateChan()
	actors.GetWaitGroup().Done()
	library.LogCLI("Denylist has shut down", 4)
}

func IsBanned(account library.Account) bool {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	_, ok := currentState.data[account]
	return ok
}

func GetMapped() (m []library.Account) {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	for account := range currentState.data {
		m = append(m, account)
	}
	slices.Sort(m)
	return
}

// Diff returns the members of new that are absent from old.
func Diff(old, new map[library.Account]struct{}) (newlyBanned []library.Account) {
	for account := range new {
		if _, ok := old[account]; !ok {
			newlyBanned = append(newlyBanned, account)
		}
	}
	slices.Sort(newlyBanned)
	return
}
