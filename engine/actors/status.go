package actors

import (
	"sync"

	"github.com/sasha-s/go-deadlock"
)

var terminateChan chan struct{}
var terminateOnce = &sync.Once{}
var waitGroup = &deadlock.WaitGroup{}

func SetTerminateChan(term chan struct{}) {
	terminateChan = term
}

func GetTerminateChan() chan struct{} {
	return terminateChan
}

func GetWaitGroup() *deadlock.WaitGroup {
	return waitGroup
}

// Shutdown closes the terminate channel exactly once; long-running listeners
// select on it and deregister from the shared waitgroup on their way out.
func Shutdown() {
	terminateOnce.Do(func() {
		close(terminateChan)
	})
}
