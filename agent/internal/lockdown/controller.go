// Package lockdown enforces exclusive kiosk mode while a device has no paid
// session: OS escape routes are suppressed, the lock surface is periodically
// re-raised, and terminating the agent without the kill code reboots the
// machine.
package lockdown

import (
	"errors"
	"sync"

	"rynx/agent/internal/logger"
)

// Platform is one OS-level restriction surface. Steps are applied in order
// on engage and released strictly in reverse on disengage.
type Platform interface {
	Steps() []Step
	// RaiseLockSurface corrects escapes that cannot be prevented, only
	// repaired after the fact. Called on a short period while locked.
	RaiseLockSurface() error
	// Reboot issues an OS reboot request.
	Reboot() error
	// Shutdown issues an OS power-off request.
	Shutdown() error
}

type Step struct {
	Name    string
	Apply   func() error
	Release func() error
}

type Controller struct {
	platform Platform

	mu      sync.Mutex
	engaged bool
	undo    []Step // successfully applied, in apply order
}

func NewController(p Platform) *Controller { return &Controller{platform: p} }

// Engage applies every restriction step. A failing step is logged and
// skipped: lockdown proceeds in degraded mode and relies on re-assertion.
func (c *Controller) Engage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engaged {
		return
	}
	for _, s := range c.platform.Steps() {
		if err := s.Apply(); err != nil {
			logger.Errorf("lockdown step %s failed: %v (degraded mode)", s.Name, err)
			continue
		}
		c.undo = append(c.undo, s)
	}
	c.engaged = true
	logger.Infof("lockdown engaged (%d/%d steps)", len(c.undo), len(c.platform.Steps()))
}

// Disengage releases applied steps in reverse order. A failing release never
// aborts the unwind; all failures are joined into the returned error.
func (c *Controller) Disengage() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.engaged {
		return nil
	}
	var errs []error
	for i := len(c.undo) - 1; i >= 0; i-- {
		s := c.undo[i]
		if err := s.Release(); err != nil {
			logger.Errorf("lockdown release %s failed: %v", s.Name, err)
			errs = append(errs, err)
		}
	}
	c.undo = nil
	c.engaged = false
	logger.Info("lockdown released")
	return errors.Join(errs...)
}

func (c *Controller) Engaged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engaged
}

// Reassert re-raises the lock surface. Failures are logged only; the next
// cycle retries.
func (c *Controller) Reassert() {
	c.mu.Lock()
	engaged := c.engaged
	c.mu.Unlock()
	if !engaged {
		return
	}
	if err := c.platform.RaiseLockSurface(); err != nil {
		logger.Errorf("lockdown reassert: %v", err)
	}
}
