package auth

import (
	"os"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/spf13/viper"
	"github.com/PlebeianApp/market-sub002/engine/actors"
	"github.com/PlebeianApp/market-sub002/engine/library"
)

func TestMain(m *testing.M) {
	conf := viper.New()
	dir, err := os.MkdirTemp("", "authority-auth-test")
	if err != nil {
		panic(err)
	}
	conf.Set("rootDir", dir+"/")
	actors.SetConfig(conf)
	actors.SetTerminateChan(make(chan struct{}))
	os.Exit(m.Run())
}

func reset() {
	currentState.mutex.Lock()
	currentState.admins = make(map[library.Account]struct{})
	currentState.editors = make(map[library.Account]struct{})
	currentState.owner = ""
	currentState.configured = false
	currentState.settings = ""
	currentState.lastApplied = make(map[string]nostr.Timestamp)
	currentState.mutex.Unlock()
}

const k1 library.Account = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
const k2 library.Account = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
const k3 library.Account = "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"

func snapshot(namespace string, author library.Account, createdAt int64, members ...library.Account) nostr.Event {
	tags := nostr.Tags{nostr.Tag{"d", namespace}}
	for _, member := range members {
		tags = append(tags, nostr.Tag{"p", member})
	}
	return nostr.Event{
		PubKey:    author,
		CreatedAt: nostr.Timestamp(createdAt),
		Kind:      actors.KindSnapshot,
		Tags:      tags,
	}
}

func TestBootstrap(t *testing.T) {
	t.Run("Given no authority When the first setup message arrives Then its owner becomes the sole admin", func(t *testing.T) {
		reset()
		if Configured() {
			t.Fatal("fresh state must not be configured")
		}
		if err := HandleEvent(snapshot(actors.NamespaceSetup, k1, 100)); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		if !Configured() {
			t.Error("bootstrap did not fire")
		}
		if Owner() != k1 {
			t.Errorf("owner is %s, want %s", Owner(), k1)
		}
		if !IsAdmin(k1) {
			t.Error("owner must be an admin after bootstrap")
		}
	})

	t.Run("Given a configured authority When someone else sends setup Then it is rejected", func(t *testing.T) {
		reset()
		if err := HandleEvent(snapshot(actors.NamespaceSetup, k1, 100)); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		if err := HandleEvent(snapshot(actors.NamespaceSetup, k2, 200)); err == nil {
			t.Fatal("re-bootstrap by another identity must be rejected")
		}
		if Owner() != k1 {
			t.Errorf("owner changed to %s", Owner())
		}
		if !CanSetup(k1) || CanSetup(k2) {
			t.Error("only the owner may send setup once configured")
		}
	})

	t.Run("Given a configured authority When the owner sends setup again Then it is a settings update", func(t *testing.T) {
		reset()
		if err := HandleEvent(snapshot(actors.NamespaceSetup, k1, 100)); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		update := snapshot(actors.NamespaceSetup, k1, 200)
		update.Content = `{"theme":"dark"}`
		if err := HandleEvent(update); err != nil {
			t.Fatalf("owner settings update failed: %v", err)
		}
		if Owner() != k1 || !Configured() {
			t.Error("settings update must not change bootstrap state")
		}
	})

	t.Run("Given a setup message with an owner tag Then the declared owner wins over the author", func(t *testing.T) {
		reset()
		setup := snapshot(actors.NamespaceSetup, k1, 100)
		setup.Tags = append(setup.Tags, nostr.Tag{"owner", k2})
		if err := HandleEvent(setup); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		if Owner() != k2 {
			t.Errorf("owner is %s, want declared owner %s", Owner(), k2)
		}
	})
}

func TestReplaceSemantics(t *testing.T) {
	reset()
	if err := HandleEvent(snapshot(actors.NamespaceSetup, k1, 50)); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := HandleEvent(snapshot(actors.NamespaceAdmins, k1, 100, k1, k2)); err != nil {
		t.Fatalf("admins snapshot failed: %v", err)
	}
	if !IsAdmin(k1) || !IsAdmin(k2) {
		t.Fatal("both members should be admins")
	}
	// A newer snapshot fully replaces the prior membership.
	if err := HandleEvent(snapshot(actors.NamespaceAdmins, k1, 200, k2)); err != nil {
		t.Fatalf("replacement snapshot failed: %v", err)
	}
	if IsAdmin(k1) {
		t.Error("k1 must be gone after the replacing snapshot")
	}
	if !IsAdmin(k2) {
		t.Error("k2 must survive the replacing snapshot")
	}
	// A stale snapshot is a no-op.
	if err := HandleEvent(snapshot(actors.NamespaceAdmins, k1, 150, k1)); err == nil {
		t.Fatal("stale snapshot must be ignored")
	}
	if IsAdmin(k1) || !IsAdmin(k2) {
		t.Error("stale snapshot mutated state")
	}
}

func TestMalformedSnapshotsLeaveStateUntouched(t *testing.T) {
	reset()
	if err := HandleEvent(snapshot(actors.NamespaceSetup, k1, 50)); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := HandleEvent(snapshot(actors.NamespaceAdmins, k1, 100, k1)); err != nil {
		t.Fatalf("admins snapshot failed: %v", err)
	}
	if err := HandleEvent(snapshot(actors.NamespaceAdmins, k1, 200, k2, "notapubkey")); err == nil {
		t.Fatal("snapshot with an invalid pubkey must be rejected")
	}
	if !IsAdmin(k1) || IsAdmin(k2) {
		t.Error("rejected snapshot must not partially apply")
	}
	if err := HandleEvent(snapshot(actors.NamespaceAdmins, k1, 300)); err == nil {
		t.Fatal("emptying the admin set must be rejected")
	}
	if !IsAdmin(k1) {
		t.Error("admin set was emptied by a rejected snapshot")
	}
}

func TestEditors(t *testing.T) {
	reset()
	if err := HandleEvent(snapshot(actors.NamespaceSetup, k1, 50)); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := HandleEvent(snapshot(actors.NamespaceEditors, k1, 100, k2, k3)); err != nil {
		t.Fatalf("editors snapshot failed: %v", err)
	}
	if !IsEditor(k2) || !IsEditor(k3) {
		t.Error("both members should be editors")
	}
	// Unlike admins, the editor set may legitimately become empty.
	if err := HandleEvent(snapshot(actors.NamespaceEditors, k1, 200)); err != nil {
		t.Fatalf("emptying the editor set failed: %v", err)
	}
	if IsEditor(k2) || IsEditor(k3) {
		t.Error("editor set should be empty")
	}
}
