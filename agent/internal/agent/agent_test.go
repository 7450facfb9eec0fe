package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"rynx/agent/internal/config"
	"rynx/agent/internal/lockdown"
	"rynx/agent/internal/remote"
	"rynx/agent/internal/surface"
	"rynx/protocol"
)

// fakeAuthority is an in-memory stand-in for the backend.
type fakeAuthority struct {
	mu       sync.Mutex
	device   protocol.Device
	session  *protocol.Session
	rate     protocol.Rate
	member   *protocol.Member
	commands []protocol.Command
	ended    []string // "<id>:<status>"
}

func (f *fakeAuthority) Register(_ context.Context, req protocol.RegisterRequest) (*protocol.RegisterResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &protocol.RegisterResponse{Device: f.device, Token: "test-token"}, nil
}

func (f *fakeAuthority) Device(context.Context) (*protocol.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.device
	return &d, nil
}

func (f *fakeAuthority) PatchDevice(_ context.Context, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := patch["is_locked"].(bool); ok {
		f.device.IsLocked = v
	}
	return nil
}

func (f *fakeAuthority) Heartbeat(context.Context) error { return nil }

func (f *fakeAuthority) ActiveSession(context.Context) (*protocol.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil || f.session.Status != protocol.SessionActive {
		return nil, remote.ErrNotFound
	}
	s := *f.session
	return &s, nil
}

func (f *fakeAuthority) StartMemberSession(_ context.Context, memberID uint) (*protocol.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := protocol.Session{
		ID:       "sess-member",
		DeviceID: f.device.ID,
		MemberID: &memberID,
		Type:     protocol.SessionMember,
		Status:   protocol.SessionActive,
	}
	f.session = &s
	out := s
	return &out, nil
}

func (f *fakeAuthority) PatchSession(context.Context, string, map[string]any) error { return nil }

func (f *fakeAuthority) EndSession(_ context.Context, id string, status protocol.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, id+":"+string(status))
	if f.session != nil && f.session.ID == id {
		f.session.Status = status
	}
	return nil
}

func (f *fakeAuthority) PendingCommands(context.Context) ([]protocol.Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Command, len(f.commands))
	copy(out, f.commands)
	return out, nil
}

func (f *fakeAuthority) ResolveCommand(_ context.Context, id string, _ protocol.CommandStatus, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.commands[:0]
	for _, c := range f.commands {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	f.commands = kept
	return nil
}

func (f *fakeAuthority) AuthMember(_ context.Context, username, pin string) (*protocol.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.member == nil || f.member.Username != username {
		return nil, remote.ErrUnauthorized
	}
	m := *f.member
	return &m, nil
}

func (f *fakeAuthority) DebitMember(context.Context, uint, float64) (float64, error) {
	return 100, nil
}

func (f *fakeAuthority) Rate(context.Context, uint) (*protocol.Rate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rate
	return &r, nil
}

func (f *fakeAuthority) setDevice(d protocol.Device) {
	f.mu.Lock()
	f.device = d
	f.mu.Unlock()
}

func (f *fakeAuthority) setSession(s *protocol.Session) {
	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
}

func (f *fakeAuthority) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

func (f *fakeAuthority) endedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ended))
	copy(out, f.ended)
	return out
}

type memJournal struct {
	mu   sync.Mutex
	recs map[string]string
}

func (j *memJournal) Seen(id string) (string, string, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	status, ok := j.recs[id]
	return status, "", ok, nil
}

func (j *memJournal) Journal(id, status, _ string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs[id] = status
	return nil
}

// noopPlatform satisfies lockdown.Platform with no OS effect.
type noopPlatform struct{}

func (noopPlatform) Steps() []lockdown.Step  { return nil }
func (noopPlatform) RaiseLockSurface() error { return nil }
func (noopPlatform) Reboot() error           { return nil }
func (noopPlatform) Shutdown() error         { return nil }

func testIntervals() config.Intervals {
	return config.Intervals{
		Tick:          5 * time.Millisecond,
		Reconcile:     20 * time.Millisecond,
		Charge:        20 * time.Millisecond,
		CommandPoll:   5 * time.Millisecond,
		Heartbeat:     50 * time.Millisecond,
		Reassert:      10 * time.Millisecond,
		GrantCheck:    5 * time.Millisecond,
		ChargeGrace:   50 * time.Millisecond,
		ShutdownGrace: 50 * time.Millisecond,
	}
}

func assigned(code string) protocol.Device {
	b, r := uint(1), uint(1)
	return protocol.Device{ID: 1, Code: code, BranchID: &b, RateID: &r, Status: protocol.DeviceOnline}
}

func newTestAgent(t *testing.T, auth *fakeAuthority) (*Agent, *surface.Headless) {
	t.Helper()
	hs := surface.NewHeadless()
	a := New(Options{
		Remote:     auth,
		Surface:    hs,
		Lockdown:   lockdown.NewController(noopPlatform{}),
		Sentinel:   lockdown.NewSentinel("kill-me", noopPlatform{}),
		Journal:    &memJournal{recs: make(map[string]string)},
		Descriptor: protocol.RegisterRequest{Code: auth.device.Code},
		Intervals:  testIntervals(),
	})
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	t.Cleanup(a.Stop)
	return a, hs
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestPendingDeviceLocksUntilAssigned(t *testing.T) {
	// no feed configured: assignment must arrive via polling alone
	auth := &fakeAuthority{device: protocol.Device{ID: 1, Code: "RYNX-AB12CD34", Status: protocol.DevicePending}}
	a, hs := newTestAgent(t, auth)

	if a.State() != StatePending {
		t.Fatalf("state = %s, want %s", a.State(), StatePending)
	}
	if !hs.IsLocked() {
		t.Fatal("pending device is not locked")
	}
	if !a.Locked() {
		t.Fatal("Locked() must report true while pending")
	}

	auth.setDevice(assigned("RYNX-AB12CD34"))
	waitFor(t, "locked state after assignment", func() bool { return a.State() == StateLocked })
	if !hs.IsLocked() {
		t.Fatal("assigned device must stay locked until a session starts")
	}
}

func TestGuestSessionLifecycle(t *testing.T) {
	auth := &fakeAuthority{device: assigned("RYNX-0001")}
	a, hs := newTestAgent(t, auth)

	waitFor(t, "initial locked state", func() bool { return a.State() == StateLocked })

	secs := int64(2)
	auth.setSession(&protocol.Session{
		ID:                   "sess-guest",
		DeviceID:             1,
		Type:                 protocol.SessionGuest,
		Status:               protocol.SessionActive,
		TimeRemainingSeconds: &secs,
	})

	waitFor(t, "session state", func() bool { return a.State() == StateSession })
	if hs.IsLocked() {
		t.Fatal("surface locked during session")
	}
	if !hs.TimerVisible() {
		t.Fatal("timer not shown during guest session")
	}

	// 2 prepaid seconds at a 5ms tick expire almost immediately
	waitFor(t, "session expiry", func() bool { return a.State() == StateLocked })
	if !hs.IsLocked() {
		t.Fatal("surface not re-locked after expiry")
	}
	waitFor(t, "completed end", func() bool {
		for _, e := range auth.endedSessions() {
			if e == "sess-guest:completed" {
				return true
			}
		}
		return false
	})
}

func TestStartupRecoveryTerminatesLockedSession(t *testing.T) {
	// the authority locked the device while the agent was down; an active
	// session in that state is terminated, never resumed
	dev := assigned("RYNX-0002")
	dev.IsLocked = true
	secs := int64(900)
	auth := &fakeAuthority{device: dev}
	auth.session = &protocol.Session{
		ID:                   "sess-stale",
		DeviceID:             1,
		Type:                 protocol.SessionGuest,
		Status:               protocol.SessionActive,
		TimeRemainingSeconds: &secs,
	}
	a, _ := newTestAgent(t, auth)

	if a.State() != StateLocked {
		t.Fatalf("state = %s, want %s", a.State(), StateLocked)
	}
	ended := auth.endedSessions()
	if len(ended) != 1 || ended[0] != "sess-stale:terminated" {
		t.Fatalf("ended = %v, want sess-stale terminated", ended)
	}
}

func TestLockCommandTerminatesSession(t *testing.T) {
	auth := &fakeAuthority{device: assigned("RYNX-0003")}
	secs := int64(600)
	auth.session = &protocol.Session{
		ID:                   "sess-guest",
		DeviceID:             1,
		Type:                 protocol.SessionGuest,
		Status:               protocol.SessionActive,
		TimeRemainingSeconds: &secs,
	}
	a, _ := newTestAgent(t, auth)

	waitFor(t, "session state", func() bool { return a.State() == StateSession })

	auth.mu.Lock()
	auth.commands = append(auth.commands, protocol.Command{
		ID: "cmd-lock", DeviceCode: "RYNX-0003", Type: protocol.CmdLock, Status: protocol.CommandPending,
	})
	auth.mu.Unlock()

	waitFor(t, "locked after lock command", func() bool { return a.State() == StateLocked })
	waitFor(t, "terminated end", func() bool {
		for _, e := range auth.endedSessions() {
			if e == "sess-guest:terminated" {
				return true
			}
		}
		return false
	})
}

func TestBatchedCommandsSurviveStateChange(t *testing.T) {
	// a lock and a message arrive in the same poll batch; the lock ends the
	// session and changes state, the message must still be delivered
	auth := &fakeAuthority{device: assigned("RYNX-0006")}
	secs := int64(600)
	auth.session = &protocol.Session{
		ID:                   "sess-guest",
		DeviceID:             1,
		Type:                 protocol.SessionGuest,
		Status:               protocol.SessionActive,
		TimeRemainingSeconds: &secs,
	}
	a, hs := newTestAgent(t, auth)

	waitFor(t, "session state", func() bool { return a.State() == StateSession })

	auth.mu.Lock()
	auth.commands = append(auth.commands,
		protocol.Command{ID: "cmd-lock", DeviceCode: "RYNX-0006", Type: protocol.CmdLock, Status: protocol.CommandPending},
		protocol.Command{ID: "cmd-msg", DeviceCode: "RYNX-0006", Type: protocol.CmdMessage,
			Payload: []byte(`{"text":"closing in ten minutes"}`), Status: protocol.CommandPending},
	)
	auth.mu.Unlock()

	waitFor(t, "locked after lock command", func() bool { return a.State() == StateLocked })
	waitFor(t, "message delivered after the state change", func() bool {
		for _, m := range hs.Messages() {
			if m == "closing in ten minutes" {
				return true
			}
		}
		return false
	})
	waitFor(t, "both commands resolved", func() bool { return auth.pendingCount() == 0 })

	a.mu.Lock()
	tracked := len(a.inflight)
	a.mu.Unlock()
	if tracked != 0 {
		t.Fatalf("%d commands still tracked after completion", tracked)
	}
}

func TestAuthorityEndedSessionLocksDevice(t *testing.T) {
	// the session is patched terminal directly on the authority, with no
	// lock command in the queue; the agent must notice and re-lock
	auth := &fakeAuthority{device: assigned("RYNX-0007")}
	secs := int64(600)
	auth.session = &protocol.Session{
		ID:                   "sess-guest",
		DeviceID:             1,
		Type:                 protocol.SessionGuest,
		Status:               protocol.SessionActive,
		TimeRemainingSeconds: &secs,
	}
	a, hs := newTestAgent(t, auth)

	waitFor(t, "session state", func() bool { return a.State() == StateSession })

	auth.mu.Lock()
	auth.session.Status = protocol.SessionTerminated
	auth.mu.Unlock()

	waitFor(t, "locked after forced termination", func() bool { return a.State() == StateLocked })
	if !hs.IsLocked() {
		t.Fatal("surface not re-locked after forced termination")
	}
}

func TestMemberLoginStartsSession(t *testing.T) {
	auth := &fakeAuthority{
		device: assigned("RYNX-0004"),
		rate:   protocol.Rate{ID: 1, UnitPrice: 20, UnitMinutes: 60},
		member: &protocol.Member{ID: 7, Username: "alice", Credits: 25},
	}
	a, hs := newTestAgent(t, auth)
	waitFor(t, "initial locked state", func() bool { return a.State() == StateLocked })

	hs.Emit(surface.MemberLogin{Username: "bob", PIN: "0000"})
	waitFor(t, "rejection message", func() bool { return len(hs.Messages()) > 0 })
	if a.State() != StateLocked {
		t.Fatal("failed login changed state")
	}

	hs.Emit(surface.MemberLogin{Username: "alice", PIN: "1234"})
	waitFor(t, "member session", func() bool { return a.State() == StateSession })
	if hs.IsLocked() {
		t.Fatal("surface locked during member session")
	}
}

func TestAdminUnlockGrantAndExpiry(t *testing.T) {
	auth := &fakeAuthority{device: assigned("RYNX-0005")}
	a, hs := newTestAgent(t, auth)
	waitFor(t, "initial locked state", func() bool { return a.State() == StateLocked })

	payload := []byte(`{"duration_seconds":1,"granted_by":"ops"}`)
	auth.mu.Lock()
	auth.commands = append(auth.commands, protocol.Command{
		ID: "cmd-admin", DeviceCode: "RYNX-0005", Type: protocol.CmdAdminUnlock,
		Payload: payload, Status: protocol.CommandPending,
	})
	auth.mu.Unlock()

	waitFor(t, "grant unlock", func() bool { return !hs.IsLocked() })
	if a.Locked() {
		t.Fatal("Locked() true under an admin grant; sentinel would reboot")
	}
	if a.State() != StateLocked {
		t.Fatalf("state = %s, the grant suppresses enforcement, not the state", a.State())
	}

	// 1-second grant, 5ms grant check: expiry re-locks on its own
	waitFor(t, "grant expiry relock", func() bool { return hs.IsLocked() })
	if !a.Locked() {
		t.Fatal("Locked() false after the grant expired")
	}
}
