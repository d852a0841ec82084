package auth

import (
	"github.com/nbd-wtf/go-nostr"
	"github.com/sasha-s/go-deadlock"
	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
	"golang.org/x/exp/slices"
)

type db struct {
	admins      map[library.Account]struct{}
	editors     map[library.Account]struct{}
	owner       library.Account
	configured  bool
	settings    string
	lastApplied map[string]nostr.Timestamp
	mutex       *deadlock.Mutex
}

var currentState = db{
	admins:      make(map[library.Account]struct{}),
	editors:     make(map[library.Account]struct{}),
	lastApplied: make(map[string]nostr.Timestamp),
	mutex:       &deadlock.Mutex{},
}

var started = false
var available = &deadlock.Mutex{}

// startDb blocks until the authorization state is ready to use.
func startDb() {
	available.Lock()
	defer available.Unlock()
	if !started {
		started = true
		ready := make(chan struct{})
		go start(ready)
		<-ready
		library.LogCLI("Authorization registries have started", 4)
	}
}

func start(ready chan struct{}) {
	actors.GetWaitGroup().Add(1)
	close(ready)
	<-actors.GetTerminateChan()
	actors.GetWaitGroup().Done()
	library.LogCLI("Authorization registries have shut down", 4)
}

func IsAdmin(account library.Account) bool {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	_, ok := currentState.admins[account]
	return ok
}

func IsEditor(account library.Account) bool {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	_, ok := currentState.editors[account]
	return ok
}

func Owner() library.Account {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	return currentState.owner
}

func Configured() bool {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	return currentState.configured
}

// CanSetup reports whether a setup message from this account may be applied:
// anyone before bootstrap has fired, only the recorded owner afterwards.
func CanSetup(account library.Account) bool {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	if !currentState.configured {
		return true
	}
	return account == currentState.owner
}

func GetMapped() Mapped {
	startDb()
	currentState.mutex.Lock()
	defer currentState.mutex.Unlock()
	return getMapped()
}

func getMapped() (m Mapped) {
	for account := range currentState.admins {
		m.Admins = append(m.Admins, account)
	}
	for account := range currentState.editors {
		m.Editors = append(m.Editors, account)
	}
	slices.Sort(m.Admins)
	slices.Sort(m.Editors)
	m.Owner = currentState.owner
	m.Configured = currentState.configured
	return
}
