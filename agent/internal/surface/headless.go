package surface

import (
	"sync"
	"time"

	"rynx/protocol"
)

// Headless is a surface with no display: it records the last applied state.
// Used by tests and by service installs that run before a user surface is
// attached.
type Headless struct {
	mu       sync.Mutex
	locked   bool
	timerOn  bool
	seconds  int64
	sessType protocol.SessionType
	messages []string
	osAction OSAction

	events chan Event
	once   sync.Once
}

func NewHeadless() *Headless {
	return &Headless{events: make(chan Event, 16)}
}

func (h *Headless) Lock() {
	h.mu.Lock()
	h.locked = true
	h.mu.Unlock()
}

func (h *Headless) Unlock() {
	h.mu.Lock()
	h.locked = false
	h.mu.Unlock()
}

func (h *Headless) IsLocked() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.locked
}

func (h *Headless) ShowMessage(text string) {
	h.mu.Lock()
	h.messages = append(h.messages, text)
	h.mu.Unlock()
}

func (h *Headless) Messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *Headless) UpdateTimer(seconds int64, typ protocol.SessionType) {
	h.mu.Lock()
	h.seconds, h.sessType = seconds, typ
	h.mu.Unlock()
}

func (h *Headless) TimerSeconds() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seconds
}

func (h *Headless) ShowTimer() {
	h.mu.Lock()
	h.timerOn = true
	h.mu.Unlock()
}

func (h *Headless) HideTimer() {
	h.mu.Lock()
	h.timerOn = false
	h.mu.Unlock()
}

func (h *Headless) TimerVisible() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timerOn
}

func (h *Headless) ExecuteOS(action OSAction, grace time.Duration) {
	h.mu.Lock()
	h.osAction = action
	h.mu.Unlock()
}

func (h *Headless) LastOSAction() OSAction {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.osAction
}

// Emit injects a user event, as if typed on the surface.
func (h *Headless) Emit(ev Event) { h.events <- ev }

func (h *Headless) Events() <-chan Event { return h.events }

func (h *Headless) Close() { h.once.Do(func() { close(h.events) }) }
