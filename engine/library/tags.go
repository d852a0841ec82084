package library

import (
	"github.com/nbd-wtf/go-nostr"
)

func GetFirstTag(e nostr.Event, startsWith string) (string, bool) {
	for _, tag := range e.Tags {
		if tag.StartsWith([]string{startsWith}) {
			return tag.Value(), true
		}
	}
	return "", false
}

// GetAllTags returns the value of every tag with the given key, in event order.
func GetAllTags(e nostr.Event, startsWith string) (values []string) {
	for _, tag := range e.Tags {
		if tag.StartsWith([]string{startsWith}) {
			values = append(values, tag.Value())
		}
	}
	return
}

// GetNamespace returns the d-tag of a snapshot event.
func GetNamespace(e nostr.Event) (string, bool) {
	return GetFirstTag(e, "d")
}

// GetNameTags returns every ["name", alias, owner, validUntil] tuple on a
// registry snapshot. Tuples with missing fields are skipped.
func GetNameTags(e nostr.Event) (tuples [][]string) {
	for _, tag := range e.Tags {
		if tag.StartsWith([]string{"name"}) {
			if len(tag) == 4 {
				tuples = append(tuples, []string{tag[1], tag[2], tag[3]})
			}
		}
	}
	return
}
