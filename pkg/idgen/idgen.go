// Package idgen generates opaque identifiers for sessions and viewers.
package idgen

import "github.com/google/uuid"

// SessionID returns a new opaque session identifier, unique among all
// live sessions in the host process (spec §3, §8 property 8).
func SessionID() string {
	return "sess-" + uuid.NewString()
}

// ViewerID returns a new opaque viewer identifier, globally unique across
// live viewers.
func ViewerID() string {
	return "view-" + uuid.NewString()
}
