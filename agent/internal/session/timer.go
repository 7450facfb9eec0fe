// Package session owns the local countdown/count-up state of one active
// session. The timer itself is passive: the orchestrator's scheduler drives
// Tick/Charge/Reconcile, so every periodic task has exactly one owner and a
// stale timer can never keep running across a state change.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"rynx/agent/internal/logger"
	"rynx/agent/internal/remote"
	"rynx/protocol"
)

// EndReason says why a session stopped.
type EndReason string

const (
	EndExpired      EndReason = "time_expired"
	EndInsufficient EndReason = "insufficient_credit"
	EndCommand      EndReason = "authority_command"
	EndOperator     EndReason = "local_operator"
	EndRecovered    EndReason = "termination_recovery"
)

// Remote is the slice of the transport the timer needs.
type Remote interface {
	PatchSession(ctx context.Context, id string, patch map[string]any) error
	DebitMember(ctx context.Context, memberID uint, amount float64) (float64, error)
}

type Timer struct {
	mu     sync.Mutex
	remote Remote

	sess protocol.Session
	rate protocol.Rate

	timeLeft int64 // guest only, seconds
	timeUsed int64 // seconds, monotonic

	chargePeriod time.Duration
	grace        time.Duration
	graceUntil   time.Time // zero until a debit fails

	ended bool

	// OnTick fires after every tick with the updated counters.
	OnTick func(timeLeft, timeUsed int64, typ protocol.SessionType)
	// OnWarn fires once when a member's balance cannot cover the next charge.
	OnWarn func(text string)
	// OnEnd fires exactly once when the session stops locally.
	OnEnd func(reason EndReason)
}

func NewTimer(rem Remote, sess protocol.Session, rate protocol.Rate, chargePeriod, grace time.Duration) *Timer {
	t := &Timer{
		remote:       rem,
		sess:         sess,
		rate:         rate,
		timeUsed:     sess.TotalSecondsUsed,
		chargePeriod: chargePeriod,
		grace:        grace,
	}
	if sess.Type == protocol.SessionGuest && sess.TimeRemainingSeconds != nil {
		t.timeLeft = *sess.TimeRemainingSeconds
	}
	return t
}

func (t *Timer) Session() protocol.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sess
}

func (t *Timer) Snapshot() (timeLeft, timeUsed int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeLeft, t.timeUsed
}

func (t *Timer) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

// Tick advances the session by one second. Guest sessions count down and end
// at zero; member sessions only count up. Also enforces an armed
// insufficient-credit grace deadline.
func (t *Timer) Tick(ctx context.Context) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.timeUsed++
	if t.sess.Type == protocol.SessionGuest {
		t.timeLeft--
		if t.timeLeft <= 0 {
			t.timeLeft = 0
			t.mu.Unlock()
			t.end(ctx, EndExpired)
			return
		}
	}
	if !t.graceUntil.IsZero() && time.Now().After(t.graceUntil) {
		t.mu.Unlock()
		t.end(ctx, EndInsufficient)
		return
	}
	left, used, typ, onTick := t.timeLeft, t.timeUsed, t.sess.Type, t.OnTick
	t.mu.Unlock()
	if onTick != nil {
		onTick(left, used, typ)
	}
}

// Charge debits one charge period from the member's balance. A failed debit
// arms a single grace window; a second failure, or the elapsed window, ends
// the session.
func (t *Timer) Charge(ctx context.Context) {
	t.mu.Lock()
	if t.ended || t.sess.Type != protocol.SessionMember || t.sess.MemberID == nil {
		t.mu.Unlock()
		return
	}
	memberID := *t.sess.MemberID
	amount := t.rate.UnitPrice / float64(t.rate.UnitMinutes) * t.chargePeriod.Minutes()
	armed := !t.graceUntil.IsZero()
	t.mu.Unlock()

	balance, err := t.remote.DebitMember(ctx, memberID, amount)
	if errors.Is(err, remote.ErrInsufficientCredit) {
		if armed {
			t.end(ctx, EndInsufficient)
			return
		}
		t.mu.Lock()
		t.graceUntil = time.Now().Add(t.grace)
		warn := t.OnWarn
		t.mu.Unlock()
		logger.Warnf("member %d balance too low for %.4f, grace window armed", memberID, amount)
		if warn != nil {
			warn("Credit balance exhausted. The session will end shortly.")
		}
		return
	}
	if err != nil {
		// transient remote error: retried on the next charge cycle
		logger.Errorf("charge member %d: %v", memberID, err)
		return
	}
	t.mu.Lock()
	t.graceUntil = time.Time{}
	t.mu.Unlock()
	logger.Infof("charged member %d %.4f, balance %.4f", memberID, amount, balance)
}

// Reconcile pushes the locally tracked counters to the authoritative record.
// Last-write-wins is safe: this agent is the only writer of these fields
// while the session is active.
func (t *Timer) Reconcile(ctx context.Context) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	patch := map[string]any{"total_seconds_used": t.timeUsed}
	if t.sess.Type == protocol.SessionGuest {
		patch["time_remaining_seconds"] = t.timeLeft
	}
	id := t.sess.ID
	t.mu.Unlock()
	if err := t.remote.PatchSession(ctx, id, patch); err != nil {
		logger.Errorf("reconcile session %s: %v", id, err)
	}
}

// Stop ends the session for an external reason (command, operator action).
func (t *Timer) Stop(ctx context.Context, reason EndReason) {
	t.end(ctx, reason)
}

func (t *Timer) end(ctx context.Context, reason EndReason) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	patch := map[string]any{"total_seconds_used": t.timeUsed}
	if t.sess.Type == protocol.SessionGuest {
		patch["time_remaining_seconds"] = t.timeLeft
	}
	id := t.sess.ID
	onEnd := t.OnEnd
	t.mu.Unlock()

	// final reconcile so the remote record never ends on a stale counter
	if err := t.remote.PatchSession(ctx, id, patch); err != nil {
		logger.Errorf("final reconcile session %s: %v", id, err)
	}
	logger.Infof("session %s ended: %s", id, reason)
	if onEnd != nil {
		onEnd(reason)
	}
}
