package lockdown

import (
	"crypto/subtle"
	"sync/atomic"

	"rynx/agent/internal/logger"
)

// Sentinel makes unauthorized termination self-defeating: if the process
// exits while the device is locked and nobody presented the kill code this
// run, it issues one OS reboot request so the machine returns to its locked
// boot state.
type Sentinel struct {
	killCode   string
	platform   Platform
	authorized atomic.Bool
	fired      atomic.Bool
}

func NewSentinel(killCode string, p Platform) *Sentinel {
	return &Sentinel{killCode: killCode, platform: p}
}

// Authorize checks a presented code against the configured kill code.
// Acceptance is binary, constant-time, and may be retried without limit;
// this is the only sanctioned recovery path.
func (s *Sentinel) Authorize(code string) bool {
	if s.killCode == "" {
		return false
	}
	ok := subtle.ConstantTimeCompare([]byte(code), []byte(s.killCode)) == 1
	if ok {
		s.authorized.Store(true)
		logger.Warn("kill code accepted, termination authorized")
	} else {
		logger.Warn("kill code rejected")
	}
	return ok
}

func (s *Sentinel) Authorized() bool { return s.authorized.Load() }

// OnExit is the termination hook. Call it on every exit path with the lock
// state at the moment of exit; the reboot fires at most once per process.
func (s *Sentinel) OnExit(locked bool) {
	if !locked || s.authorized.Load() {
		return
	}
	if !s.fired.CompareAndSwap(false, true) {
		return
	}
	logger.Error("unauthorized termination while locked, requesting reboot")
	if err := s.platform.Reboot(); err != nil {
		logger.Errorf("reboot request failed: %v", err)
	}
}
