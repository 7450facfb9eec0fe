// Package command executes operator commands delivered by push or poll.
// Delivery is at-least-once; execution is at most once, guarded locally by
// the journal and remotely by the command status write.
package command

import (
	"time"
)

// Grant is a local-only, ephemeral admin unlock: it suppresses normal lock
// transitions until it expires or the operator ends it.
type Grant struct {
	ExpiresAt *time.Time // nil = unlimited
	GrantedBy string
}

// Expired reports whether the grant has lapsed. Unlimited grants never do.
func (g Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && now.After(*g.ExpiresAt)
}
