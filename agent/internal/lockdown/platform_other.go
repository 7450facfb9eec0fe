//go:build !windows

package lockdown

import (
	"os/exec"

	"rynx/agent/internal/logger"
)

// otherPlatform is the non-Windows fallback. Venue machines run Windows; on
// anything else the restriction steps are no-ops so the state machine and
// re-assertion loop still exercise the same code paths.
type otherPlatform struct{}

func NewPlatform() Platform { return otherPlatform{} }

func (otherPlatform) Steps() []Step {
	noop := func() error { return nil }
	logOnce := func(name string) func() error {
		return func() error {
			logger.Warnf("lockdown step %s is a no-op on this platform", name)
			return nil
		}
	}
	return []Step{
		{Name: "disable-task-manager", Apply: logOnce("disable-task-manager"), Release: noop},
		{Name: "disable-win-hotkeys", Apply: logOnce("disable-win-hotkeys"), Release: noop},
		{Name: "hide-taskbar", Apply: logOnce("hide-taskbar"), Release: noop},
	}
}

func (otherPlatform) RaiseLockSurface() error { return nil }

func (otherPlatform) Reboot() error {
	return exec.Command("shutdown", "-r", "now").Start()
}

func (otherPlatform) Shutdown() error {
	return exec.Command("shutdown", "-h", "now").Start()
}
