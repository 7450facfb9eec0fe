//go:build windows

package lockdown

import (
	"fmt"
	"os/exec"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

var (
	user32            = windows.NewLazySystemDLL("user32.dll")
	kernel32          = windows.NewLazySystemDLL("kernel32.dll")
	procFindWindowW   = user32.NewProc("FindWindowW")
	procShowWindow    = user32.NewProc("ShowWindow")
	procSetForeground = user32.NewProc("SetForegroundWindow")
	procGetConsoleWin = kernel32.NewProc("GetConsoleWindow")
)

const (
	swHide    = 0
	swRestore = 9
)

const policyKey = `Software\Microsoft\Windows\CurrentVersion\Policies\System`
const explorerKey = `Software\Microsoft\Windows\CurrentVersion\Policies\Explorer`

// windowsPlatform suppresses the escape routes a kiosk user reaches for:
// Task Manager, workstation lock, the Win key shell hotkeys and the taskbar.
// Anything that cannot be prevented outright is corrected by the
// re-assertion loop raising the lock surface back to the foreground.
type windowsPlatform struct{}

func NewPlatform() Platform { return windowsPlatform{} }

func (windowsPlatform) Steps() []Step {
	return []Step{
		{
			Name:    "disable-task-manager",
			Apply:   func() error { return setPolicy(policyKey, "DisableTaskMgr", 1) },
			Release: func() error { return setPolicy(policyKey, "DisableTaskMgr", 0) },
		},
		{
			Name:    "disable-lock-workstation",
			Apply:   func() error { return setPolicy(policyKey, "DisableLockWorkstation", 1) },
			Release: func() error { return setPolicy(policyKey, "DisableLockWorkstation", 0) },
		},
		{
			Name:    "disable-win-hotkeys",
			Apply:   func() error { return setPolicy(explorerKey, "NoWinKeys", 1) },
			Release: func() error { return setPolicy(explorerKey, "NoWinKeys", 0) },
		},
		{
			Name:    "hide-taskbar",
			Apply:   func() error { return showTaskbar(false) },
			Release: func() error { return showTaskbar(true) },
		},
	}
}

func (windowsPlatform) RaiseLockSurface() error {
	hwnd, _, _ := procGetConsoleWin.Call()
	if hwnd == 0 {
		return fmt.Errorf("no console window")
	}
	procShowWindow.Call(hwnd, swRestore)
	ok, _, _ := procSetForeground.Call(hwnd)
	if ok == 0 {
		return fmt.Errorf("SetForegroundWindow refused")
	}
	return nil
}

func (windowsPlatform) Reboot() error {
	return exec.Command("shutdown", "/r", "/t", "0", "/f").Start()
}

func (windowsPlatform) Shutdown() error {
	return exec.Command("shutdown", "/s", "/t", "0", "/f").Start()
}

func setPolicy(path, name string, value uint32) error {
	k, _, err := registry.CreateKey(registry.CURRENT_USER, path, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer k.Close()
	if err := k.SetDWordValue(name, value); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

func showTaskbar(visible bool) error {
	name, err := windows.UTF16PtrFromString("Shell_TrayWnd")
	if err != nil {
		return err
	}
	hwnd, _, _ := procFindWindowW.Call(uintptr(unsafe.Pointer(name)), 0)
	if hwnd == 0 {
		return fmt.Errorf("taskbar window not found")
	}
	cmd := uintptr(swHide)
	if visible {
		cmd = swRestore
	}
	procShowWindow.Call(hwnd, cmd)
	return nil
}
