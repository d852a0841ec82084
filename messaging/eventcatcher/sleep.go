//go:build !darwin

package eventcatcher

// Suspend detection only exists on darwin; elsewhere the staleness timer in
// the subscription loop covers a machine waking with dead connections.
func sleeper(listen chan bool) {}
