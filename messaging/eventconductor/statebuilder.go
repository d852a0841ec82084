package eventconductor

import (
	"fmt"

	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
	"github.com/PlebeianApp/market-sub002/messaging/relays"
	"github.com/PlebeianApp/market-sub002/state/auth"
	"github.com/PlebeianApp/market-sub002/state/denylist"
	"github.com/PlebeianApp/market-sub002/state/registry"
)

// buildState reconstructs full state at startup from the latest snapshot of
// each namespace, authored by the authority itself. There is no local
// database; the replicated log is the only persistence. A transport failure
// here is fatal so that the service never runs with silently-empty authority;
// an empty result simply leaves bootstrap in its awaiting-setup state.
func buildState() {
	self := actors.MyWallet().Account
	for _, namespace := range actors.Namespaces() {
		event, found, err := relays.FetchLatestSnapshot(namespace, self)
		if err != nil {
			library.LogCLI(fmt.Sprintf("could not rebuild %s from relays: %s", namespace, err.Error()), 0)
		}
		if !found {
			library.LogCLI(fmt.Sprintf("no %s snapshot found, starting empty", namespace), 4)
			continue
		}
		var applyErr error
		switch namespace {
		case actors.NamespaceSetup, actors.NamespaceAdmins, actors.NamespaceEditors:
			applyErr = auth.HandleEvent(event)
		case actors.NamespaceDenylist:
			_, applyErr = denylist.HandleEvent(event)
		case actors.NamespaceNames:
			applyErr = registry.HandleEvent(event)
		}
		if applyErr != nil {
			library.LogCLI(fmt.Sprintf("could not apply %s snapshot %s: %s", namespace, event.ID, applyErr.Error()), 1)
			continue
		}
		library.LogCLI(fmt.Sprintf("rebuilt %s from snapshot %s", namespace, event.ID), 4)
	}
	if !auth.Configured() {
		library.LogCLI("no authority configured yet, awaiting setup message", 4)
	}
}
