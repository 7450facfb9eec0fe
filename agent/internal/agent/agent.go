// Package agent is the orchestrator: the top-level state machine that
// derives local lock/session state from the remote record and owns the
// lifecycle of every background process.
package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"rynx/agent/internal/command"
	"rynx/agent/internal/config"
	"rynx/agent/internal/lockdown"
	"rynx/agent/internal/logger"
	"rynx/agent/internal/remote"
	"rynx/agent/internal/session"
	"rynx/agent/internal/surface"
	"rynx/protocol"
)

type State string

const (
	StateSetup   State = "setup"
	StatePending State = "pending_approval"
	StateLocked  State = "locked"
	StateSession State = "session"
)

// Remote is the full transport surface the orchestrator consumes.
// *remote.Client satisfies it; tests use an in-memory fake.
type Remote interface {
	Register(ctx context.Context, req protocol.RegisterRequest) (*protocol.RegisterResponse, error)
	Device(ctx context.Context) (*protocol.Device, error)
	PatchDevice(ctx context.Context, patch map[string]any) error
	Heartbeat(ctx context.Context) error
	ActiveSession(ctx context.Context) (*protocol.Session, error)
	StartMemberSession(ctx context.Context, memberID uint) (*protocol.Session, error)
	PatchSession(ctx context.Context, id string, patch map[string]any) error
	EndSession(ctx context.Context, id string, status protocol.SessionStatus) error
	PendingCommands(ctx context.Context) ([]protocol.Command, error)
	ResolveCommand(ctx context.Context, id string, status protocol.CommandStatus, errMsg string) error
	AuthMember(ctx context.Context, username, pin string) (*protocol.Member, error)
	DebitMember(ctx context.Context, memberID uint, amount float64) (float64, error)
	Rate(ctx context.Context, id uint) (*protocol.Rate, error)
}

// Feed is the push side of the transport. Nil disables push; polling alone
// still bounds staleness.
type Feed interface {
	Subscribe(ctx context.Context, channel string, fn func())
}

// Task names. A state entry retains the always-on tasks and starts its own.
const (
	taskHeartbeat     = "heartbeat"
	taskSurfaceEvents = "surface-events"
	taskDevicePoll    = "device-poll"
	taskDeviceSub     = "device-sub"
	taskCommandPoll   = "command-poll"
	taskCommandSub    = "command-sub"
	taskSessionPoll   = "session-poll"
	taskSessionSub    = "session-sub"
	taskTick          = "session-tick"
	taskReconcile     = "session-reconcile"
	taskCharge        = "session-charge"
	taskReassert      = "lockdown-reassert"
	taskGrantCheck    = "grant-check"
)

type Options struct {
	Remote     Remote
	Feed       Feed
	Surface    surface.Surface
	Lockdown   *lockdown.Controller
	Sentinel   *lockdown.Sentinel
	Journal    command.Journal
	Descriptor protocol.RegisterRequest
	Intervals  config.Intervals
	// Power performs shutdown/restart after the grace delay.
	Power func(typ protocol.CommandType, grace time.Duration) error
	// OnRegistered is called once after registration (token persistence).
	OnRegistered func(protocol.RegisterResponse)
}

type Agent struct {
	opts  Options
	sched *Scheduler
	proc  *command.Processor

	gen atomic.Int64

	mu     sync.Mutex
	state  State
	device protocol.Device
	timer  *session.Timer
	grant  *command.Grant
	// inflight guards against push and poll executing the same command
	// concurrently; the journal dedupes across deliveries and restarts.
	inflight map[string]struct{}

	rootCtx context.Context
	stop    context.CancelFunc
}

func New(opts Options) *Agent {
	a := &Agent{
		opts:     opts,
		sched:    NewScheduler(),
		state:    StateSetup,
		inflight: make(map[string]struct{}),
	}
	a.proc = command.NewProcessor(opts.Journal, opts.Remote, command.Hooks{
		LockNow:      a.lockNow,
		StartSession: a.startSession,
		AdminUnlock:  a.adminUnlock,
		ShowMessage:  opts.Surface.ShowMessage,
		Power:        a.power,
	}, opts.Intervals.ShutdownGrace)
	return a
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) Device() protocol.Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.device
}

// Locked reports whether the machine is currently lock-enforced; this is
// what the exit sentinel consults at termination.
func (a *Agent) Locked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return (a.state == StateLocked || a.state == StatePending) && a.grant == nil
}

// Run registers the device, resolves the starting state from the remote
// record and returns. Background tasks keep running until Stop.
func (a *Agent) Run(ctx context.Context) error {
	a.rootCtx, a.stop = context.WithCancel(ctx)

	resp, err := a.opts.Remote.Register(a.rootCtx, a.opts.Descriptor)
	if err != nil {
		return err
	}
	if a.opts.OnRegistered != nil {
		a.opts.OnRegistered(*resp)
	}
	logger.Infof("device %s registered, status=%s", resp.Device.Code, resp.Device.Status)

	a.mu.Lock()
	a.device = resp.Device
	a.mu.Unlock()

	a.sched.Every(a.rootCtx, taskHeartbeat, a.opts.Intervals.Heartbeat, a.heartbeat)
	a.sched.Run(a.rootCtx, taskSurfaceEvents, a.surfaceLoop)

	return a.resolveState(a.rootCtx)
}

// Stop cancels every background task. Call sched teardown outside any
// agent lock.
func (a *Agent) Stop() {
	if a.stop != nil {
		a.stop()
	}
	a.sched.Shutdown()
}

// resolveState decides the starting state from authoritative records.
func (a *Agent) resolveState(ctx context.Context) error {
	a.mu.Lock()
	dev := a.device
	a.mu.Unlock()

	if !dev.Assigned() {
		a.mu.Lock()
		a.enterPendingLocked()
		a.mu.Unlock()
		return nil
	}

	sess, err := a.opts.Remote.ActiveSession(ctx)
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		return err
	}
	if sess != nil && sess.Status == protocol.SessionActive {
		if dev.IsLocked {
			// the authority forced a lock while the agent was down:
			// recover by terminating, not resuming
			logger.Warnf("session %s active but device locked, terminating (%s)", sess.ID, session.EndRecovered)
			if err := a.opts.Remote.EndSession(ctx, sess.ID, protocol.SessionTerminated); err != nil {
				logger.Errorf("terminate recovered session %s: %v", sess.ID, err)
			}
		} else {
			rate, err := a.sessionRate(ctx, *sess)
			if err == nil {
				a.mu.Lock()
				a.enterSessionLocked(*sess, rate)
				a.mu.Unlock()
				return nil
			}
			logger.Errorf("resolve rate for session %s: %v", sess.ID, err)
		}
	}
	a.mu.Lock()
	a.enterLockedLocked()
	a.mu.Unlock()
	return nil
}

// ---- state entries (a.mu held) ----

func (a *Agent) enterPendingLocked() {
	g := a.gen.Add(1)
	a.state = StatePending
	logger.Infof("state -> %s", a.state)

	a.opts.Surface.Lock()
	a.opts.Lockdown.Engage()

	a.sched.Retain(taskHeartbeat, taskSurfaceEvents)
	a.sched.Every(a.rootCtx, taskDevicePoll, a.opts.Intervals.CommandPoll, func(ctx context.Context) {
		a.refreshDevice(ctx, g)
	})
	a.sched.Every(a.rootCtx, taskReassert, a.opts.Intervals.Reassert, func(context.Context) {
		a.opts.Lockdown.Reassert()
	})
	a.subscribe(taskDeviceSub, protocol.DeviceChannel(a.device.Code), g, a.refreshDevice)
}

func (a *Agent) enterLockedLocked() {
	g := a.gen.Add(1)
	a.state = StateLocked
	a.timer = nil
	logger.Infof("state -> %s", a.state)

	suppressed := a.grant != nil && !a.grant.Expired(time.Now())
	if suppressed {
		a.opts.Surface.Unlock()
		logger.Infof("lock suppressed by admin grant from %s", a.grant.GrantedBy)
	} else {
		a.grant = nil
		a.opts.Surface.Lock()
		a.opts.Lockdown.Engage()
	}

	a.sched.Retain(taskHeartbeat, taskSurfaceEvents)
	a.announceDevice(g, map[string]any{"status": protocol.DeviceOnline, "is_locked": !suppressed})

	a.sched.Every(a.rootCtx, taskCommandPoll, a.opts.Intervals.CommandPoll, func(ctx context.Context) {
		a.refreshCommands(ctx, g)
	})
	a.sched.Every(a.rootCtx, taskSessionPoll, a.opts.Intervals.CommandPoll, func(ctx context.Context) {
		a.refreshSession(ctx, g)
	})
	a.subscribe(taskCommandSub, protocol.CommandChannel(a.device.Code), g, a.refreshCommands)
	a.subscribe(taskSessionSub, protocol.SessionChannel(a.device.ID), g, a.refreshSession)
	if suppressed {
		a.startGrantCheckLocked(g)
	} else {
		a.sched.Every(a.rootCtx, taskReassert, a.opts.Intervals.Reassert, func(context.Context) {
			a.opts.Lockdown.Reassert()
		})
	}
}

func (a *Agent) enterSessionLocked(sess protocol.Session, rate protocol.Rate) {
	g := a.gen.Add(1)
	a.state = StateSession
	logger.Infof("state -> %s (session %s, %s)", a.state, sess.ID, sess.Type)

	t := session.NewTimer(a.opts.Remote, sess, rate, a.opts.Intervals.Charge, a.opts.Intervals.ChargeGrace)
	t.OnTick = func(left, used int64, typ protocol.SessionType) {
		if typ == protocol.SessionGuest {
			a.opts.Surface.UpdateTimer(left, typ)
		} else {
			a.opts.Surface.UpdateTimer(used, typ)
		}
	}
	t.OnWarn = a.opts.Surface.ShowMessage
	t.OnEnd = func(reason session.EndReason) {
		a.onSessionEnd(g, sess, reason)
	}
	a.timer = t

	if err := a.opts.Lockdown.Disengage(); err != nil {
		logger.Errorf("lockdown release incomplete: %v", err)
	}
	a.opts.Surface.Unlock()
	a.opts.Surface.ShowTimer()

	a.sched.Retain(taskHeartbeat, taskSurfaceEvents)
	a.announceDevice(g, map[string]any{"status": protocol.DeviceInUse, "is_locked": false})

	a.sched.Every(a.rootCtx, taskTick, a.opts.Intervals.Tick, t.Tick)
	a.sched.Every(a.rootCtx, taskReconcile, a.opts.Intervals.Reconcile, t.Reconcile)
	if sess.Type == protocol.SessionMember {
		a.sched.Every(a.rootCtx, taskCharge, a.opts.Intervals.Charge, t.Charge)
	}
	a.sched.Every(a.rootCtx, taskCommandPoll, a.opts.Intervals.CommandPoll, func(ctx context.Context) {
		a.refreshCommands(ctx, g)
	})
	a.subscribe(taskCommandSub, protocol.CommandChannel(a.device.Code), g, a.refreshCommands)
	watch := func(ctx context.Context, g int64) { a.watchSession(ctx, g, sess.ID) }
	a.sched.Every(a.rootCtx, taskSessionPoll, a.opts.Intervals.CommandPoll, func(ctx context.Context) {
		watch(ctx, g)
	})
	a.subscribe(taskSessionSub, protocol.SessionChannel(a.device.ID), g, watch)
}

// ---- refresh paths (shared by push and poll) ----

// subscribe pairs a feed subscription with the generation guard; the same
// refresh function serves both push and poll.
func (a *Agent) subscribe(name, channel string, g int64, refresh func(ctx context.Context, g int64)) {
	if a.opts.Feed == nil {
		return
	}
	a.sched.Run(a.rootCtx, name, func(ctx context.Context) {
		a.opts.Feed.Subscribe(ctx, channel, func() {
			refresh(ctx, g)
		})
		<-ctx.Done()
	})
}

func (a *Agent) stale(g int64) bool { return a.gen.Load() != g }

func (a *Agent) refreshDevice(ctx context.Context, g int64) {
	if a.stale(g) {
		return
	}
	dev, err := a.opts.Remote.Device(ctx)
	if err != nil {
		logger.Errorf("refresh device: %v", err)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stale(g) {
		return
	}
	a.device = *dev
	if a.state == StatePending && dev.Assigned() {
		logger.Infof("device %s assigned to branch %d", dev.Code, *dev.BranchID)
		a.enterLockedLocked()
	}
}

func (a *Agent) refreshSession(ctx context.Context, g int64) {
	if a.stale(g) {
		return
	}
	sess, err := a.opts.Remote.ActiveSession(ctx)
	if errors.Is(err, remote.ErrNotFound) {
		return
	}
	if err != nil {
		logger.Errorf("refresh session: %v", err)
		return
	}
	if sess.Status != protocol.SessionActive {
		return
	}
	rate, err := a.sessionRate(ctx, *sess)
	if err != nil {
		logger.Errorf("session %s rate: %v", sess.ID, err)
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stale(g) || a.state != StateLocked {
		return
	}
	a.enterSessionLocked(*sess, rate)
}

// watchSession notices the running session going terminal directly on the
// authority (an operator patch, not a lock command) and ends it locally.
func (a *Agent) watchSession(ctx context.Context, g int64, id string) {
	if a.stale(g) {
		return
	}
	sess, err := a.opts.Remote.ActiveSession(ctx)
	gone := errors.Is(err, remote.ErrNotFound)
	if err != nil && !gone {
		logger.Errorf("watch session: %v", err)
		return
	}
	if !gone && sess.ID == id && sess.Status == protocol.SessionActive {
		return
	}
	a.mu.Lock()
	t := a.timer
	live := a.state == StateSession && !a.stale(g)
	a.mu.Unlock()
	if live && t != nil {
		logger.Warnf("session %s no longer active on the authority, ending locally", id)
		t.Stop(ctx, session.EndRecovered)
	}
}

func (a *Agent) refreshCommands(ctx context.Context, g int64) {
	if a.stale(g) {
		return
	}
	cmds, err := a.opts.Remote.PendingCommands(ctx)
	if err != nil {
		logger.Errorf("fetch commands: %v", err)
		return
	}
	for _, cmd := range cmds {
		// a command earlier in the batch may have changed state and bumped
		// the generation; the rest of the batch stays pending on the
		// authority and the next state's poll picks it up
		if a.stale(g) {
			return
		}
		a.mu.Lock()
		if _, busy := a.inflight[cmd.ID]; busy {
			a.mu.Unlock()
			continue
		}
		a.inflight[cmd.ID] = struct{}{}
		a.mu.Unlock()
		a.proc.Handle(ctx, cmd)
		a.mu.Lock()
		delete(a.inflight, cmd.ID)
		a.mu.Unlock()
	}
}

// ---- command hooks ----

func (a *Agent) lockNow(ctx context.Context) error {
	a.mu.Lock()
	if a.grant != nil {
		a.grant = nil
	}
	if a.state == StateSession && a.timer != nil {
		t := a.timer
		a.mu.Unlock()
		// no further time or credit is charged past this point
		t.Stop(ctx, session.EndCommand)
		return nil
	}
	if a.state == StateLocked {
		a.enterLockedLocked() // re-assert full lock (clears any grant)
	}
	a.mu.Unlock()
	return nil
}

func (a *Agent) startSession(ctx context.Context, sess protocol.Session) error {
	rate, err := a.sessionRate(ctx, sess)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateLocked {
		return errors.New("session start only valid while locked")
	}
	a.grant = nil
	a.enterSessionLocked(sess, rate)
	return nil
}

func (a *Agent) adminUnlock(g command.Grant) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateSession {
		return errors.New("admin unlock during an active session")
	}
	a.grant = &g
	if a.state == StateLocked {
		gen := a.gen.Load()
		if err := a.opts.Lockdown.Disengage(); err != nil {
			logger.Errorf("lockdown release incomplete: %v", err)
		}
		a.opts.Surface.Unlock()
		a.sched.Cancel(taskReassert)
		a.startGrantCheckLocked(gen)
		a.announceDevice(gen, map[string]any{"is_locked": false})
	}
	logger.Infof("admin unlock granted by %s", g.GrantedBy)
	return nil
}

func (a *Agent) startGrantCheckLocked(g int64) {
	a.sched.Every(a.rootCtx, taskGrantCheck, a.opts.Intervals.GrantCheck, func(ctx context.Context) {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.stale(g) || a.state != StateLocked || a.grant == nil {
			return
		}
		if a.grant.Expired(time.Now()) {
			logger.Infof("admin grant from %s expired, re-locking", a.grant.GrantedBy)
			a.grant = nil
			a.enterLockedLocked()
		}
	})
}

func (a *Agent) power(typ protocol.CommandType, grace time.Duration) error {
	action := surface.OSShutdown
	if typ == protocol.CmdRestart {
		action = surface.OSRestart
	}
	a.opts.Surface.ExecuteOS(action, grace)
	if a.opts.Power != nil {
		return a.opts.Power(typ, grace)
	}
	return nil
}

// ---- session end and helpers ----

func (a *Agent) onSessionEnd(g int64, sess protocol.Session, reason session.EndReason) {
	status := protocol.SessionCompleted
	if reason == session.EndCommand || reason == session.EndOperator || reason == session.EndRecovered {
		status = protocol.SessionTerminated
	}
	if err := a.opts.Remote.EndSession(a.rootCtx, sess.ID, status); err != nil {
		logger.Errorf("end session %s: %v", sess.ID, err)
	}
	a.opts.Surface.HideTimer()
	switch reason {
	case session.EndExpired:
		a.opts.Surface.ShowMessage("Time is up. Thank you!")
	case session.EndInsufficient:
		a.opts.Surface.ShowMessage("Credit balance exhausted.")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stale(g) {
		return
	}
	// an explicit session end always retires any standing grant
	a.grant = nil
	a.enterLockedLocked()
}

// announceDevice writes a device patch off the caller's goroutine; entry
// functions run under the agent lock and must not block on remote IO.
func (a *Agent) announceDevice(g int64, patch map[string]any) {
	go func() {
		if a.stale(g) {
			return
		}
		if err := a.opts.Remote.PatchDevice(a.rootCtx, patch); err != nil {
			logger.Errorf("announce device state: %v", err)
		}
	}()
}

func (a *Agent) sessionRate(ctx context.Context, sess protocol.Session) (protocol.Rate, error) {
	if sess.Type != protocol.SessionMember {
		return protocol.Rate{}, nil
	}
	a.mu.Lock()
	rateID := a.device.RateID
	a.mu.Unlock()
	if rateID == nil {
		return protocol.Rate{}, errors.New("member session on a device with no rate")
	}
	r, err := a.opts.Remote.Rate(ctx, *rateID)
	if err != nil {
		return protocol.Rate{}, err
	}
	return *r, nil
}

func (a *Agent) heartbeat(ctx context.Context) {
	if err := a.opts.Remote.Heartbeat(ctx); err != nil {
		// transient by definition; the next beat retries
		logger.Errorf("heartbeat: %v", err)
	}
}

// surfaceLoop consumes user-surface events for the whole agent lifetime.
func (a *Agent) surfaceLoop(ctx context.Context) {
	events := a.opts.Surface.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.handleSurfaceEvent(ctx, ev)
		}
	}
}

func (a *Agent) handleSurfaceEvent(ctx context.Context, ev surface.Event) {
	switch ev := ev.(type) {
	case surface.MemberLogin:
		a.memberLogin(ctx, ev)
	case surface.KillCode:
		if a.opts.Sentinel.Authorize(ev.Code) {
			a.opts.Surface.ShowMessage("Termination authorized.")
		} else {
			// no lockout: the kill code may be re-entered without limit
			a.opts.Surface.ShowMessage("Invalid authorization code.")
		}
	case surface.EndSession:
		a.mu.Lock()
		t := a.timer
		inSession := a.state == StateSession
		a.mu.Unlock()
		if inSession && t != nil {
			t.Stop(ctx, session.EndOperator)
		}
	}
}

func (a *Agent) memberLogin(ctx context.Context, ev surface.MemberLogin) {
	a.mu.Lock()
	ok := a.state == StateLocked && a.device.Assigned()
	a.mu.Unlock()
	if !ok {
		return
	}
	member, err := a.opts.Remote.AuthMember(ctx, ev.Username, ev.PIN)
	if errors.Is(err, remote.ErrUnauthorized) {
		a.opts.Surface.ShowMessage("Invalid username or PIN.")
		return
	}
	if err != nil {
		logger.Errorf("member auth: %v", err)
		a.opts.Surface.ShowMessage("Cannot reach the server, try again.")
		return
	}
	sess, err := a.opts.Remote.StartMemberSession(ctx, member.ID)
	if err != nil {
		logger.Errorf("start member session: %v", err)
		a.opts.Surface.ShowMessage("Cannot start the session, try again.")
		return
	}
	if err := a.startSession(ctx, *sess); err != nil {
		logger.Errorf("start session: %v", err)
	}
}
