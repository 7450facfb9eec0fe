// Package surface is the user-facing half of the agent. The control surface
// (orchestrator) and the user surface are two independent event loops
// connected only by asynchronous messages: method calls below are forwarded
// as messages into the surface's loop, and user actions come back on the
// Events channel.
package surface

import (
	"time"

	"rynx/protocol"
)

type OSAction string

const (
	OSShutdown OSAction = "shutdown"
	OSRestart  OSAction = "restart"
	OSCancel   OSAction = "cancel"
)

// Event is a user action reported by the surface to the orchestrator.
type Event interface{ isEvent() }

// MemberLogin is a username/PIN pair entered on the lock screen.
type MemberLogin struct {
	Username string
	PIN      string
}

// KillCode is an attempt to authorize agent termination.
type KillCode struct {
	Code string
}

// EndSession is a local request to finish the current session.
type EndSession struct{}

func (MemberLogin) isEvent() {}
func (KillCode) isEvent()    {}
func (EndSession) isEvent()  {}

// Surface is implemented by the lockscreen TUI and by the headless surface
// used in tests. All calls are asynchronous fire-and-forget except
// IsLocked, which is a synchronous read of the last applied state.
type Surface interface {
	Lock()
	Unlock()
	IsLocked() bool

	ShowMessage(text string)
	UpdateTimer(seconds int64, typ protocol.SessionType)
	ShowTimer()
	HideTimer()

	// ExecuteOS displays the pending power action with its grace delay.
	// The actual OS call is owned by the control surface.
	ExecuteOS(action OSAction, grace time.Duration)

	Events() <-chan Event
	Close()
}
