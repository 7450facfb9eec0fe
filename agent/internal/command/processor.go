package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rynx/agent/internal/logger"
	"rynx/agent/internal/remote"
	"rynx/protocol"
)

// Journal is the local record of terminal command outcomes.
type Journal interface {
	// Seen returns the journaled terminal outcome of a command; seen is
	// false when the command has not executed on this device yet.
	Seen(commandID string) (status, errMsg string, seen bool, err error)
	Journal(commandID, status, errMsg string) error
}

// Remote is the slice of the transport the processor needs.
type Remote interface {
	ActiveSession(ctx context.Context) (*protocol.Session, error)
	ResolveCommand(ctx context.Context, id string, status protocol.CommandStatus, errMsg string) error
	PatchDevice(ctx context.Context, patch map[string]any) error
}

// Hooks are the orchestrator callbacks a command may trigger. Handlers never
// reach into other components directly.
type Hooks struct {
	// LockNow terminates any active session without further charge and
	// enters the locked state.
	LockNow func(ctx context.Context) error
	// StartSession starts the timer from an authoritative session record.
	StartSession func(ctx context.Context, s protocol.Session) error
	// AdminUnlock installs an admin unlock grant.
	AdminUnlock func(g Grant) error
	// ShowMessage displays text on the user surface.
	ShowMessage func(text string)
	// Power performs the OS action after the grace delay (fire and forget).
	Power func(action protocol.CommandType, grace time.Duration) error
}

type Processor struct {
	journal Journal
	remote  Remote
	hooks   Hooks
	grace   time.Duration // shutdown/restart grace delay
}

func NewProcessor(j Journal, r Remote, hooks Hooks, shutdownGrace time.Duration) *Processor {
	return &Processor{journal: j, remote: r, hooks: hooks, grace: shutdownGrace}
}

// Handle executes one command. Re-delivery of an already-journaled ID is a
// no-op beyond re-confirming the remote status.
func (p *Processor) Handle(ctx context.Context, cmd protocol.Command) {
	prevStatus, prevErrMsg, seen, err := p.journal.Seen(cmd.ID)
	if err != nil {
		logger.Errorf("journal lookup %s: %v", cmd.ID, err)
	}
	if seen {
		// redelivery of a journaled command means the earlier resolution
		// may have been lost; repeat it until the authority stops sending
		logger.Infof("command %s already executed, repeating resolution", cmd.ID)
		if err := p.remote.ResolveCommand(ctx, cmd.ID, protocol.CommandStatus(prevStatus), prevErrMsg); err != nil {
			logger.Errorf("re-resolve command %s: %v", cmd.ID, err)
		}
		return
	}

	logger.Infof("executing command %s type=%s", cmd.ID, cmd.Type)
	execErr := p.dispatch(ctx, cmd)

	status := protocol.CommandExecuted
	errMsg := ""
	if execErr != nil {
		status = protocol.CommandFailed
		errMsg = execErr.Error()
		logger.Errorf("command %s failed: %v", cmd.ID, execErr)
	}
	if err := p.journal.Journal(cmd.ID, string(status), errMsg); err != nil {
		logger.Errorf("journal command %s: %v", cmd.ID, err)
	}
	if err := p.remote.ResolveCommand(ctx, cmd.ID, status, errMsg); err != nil {
		logger.Errorf("resolve command %s: %v", cmd.ID, err)
	}
}

func (p *Processor) dispatch(ctx context.Context, cmd protocol.Command) error {
	switch cmd.Type {
	case protocol.CmdShutdown, protocol.CmdRestart:
		return p.handlePower(ctx, cmd.Type)
	case protocol.CmdLock:
		return p.hooks.LockNow(ctx)
	case protocol.CmdUnlock:
		return p.handleUnlock(ctx, cmd)
	case protocol.CmdAdminUnlock:
		return p.handleAdminUnlock(cmd)
	case protocol.CmdMessage:
		return p.handleMessage(cmd)
	default:
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}
}

// handlePower marks the device offline and locked, then fires the OS action
// after the grace delay. The OS call itself is not verifiable; the command
// counts as executed once requested.
func (p *Processor) handlePower(ctx context.Context, typ protocol.CommandType) error {
	if err := p.remote.PatchDevice(ctx, map[string]any{
		"status":    protocol.DeviceOffline,
		"is_locked": true,
	}); err != nil {
		logger.Errorf("mark device offline before %s: %v", typ, err)
	}
	if p.hooks.ShowMessage != nil {
		p.hooks.ShowMessage(fmt.Sprintf("This PC will %s in %s.", typ, p.grace))
	}
	if err := p.hooks.Power(typ, p.grace); err != nil {
		logger.Errorf("%s request: %v", typ, err)
	}
	return nil
}

// handleUnlock trusts only the authoritative session record, never the
// command payload: the payload may be stale by the time it is delivered.
func (p *Processor) handleUnlock(ctx context.Context, cmd protocol.Command) error {
	sess, err := p.remote.ActiveSession(ctx)
	if errors.Is(err, remote.ErrNotFound) {
		// anomaly, not a failure: the session may have ended meanwhile
		logger.Warnf("unlock %s: no active session on record, ignoring", cmd.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch active session: %w", err)
	}
	return p.hooks.StartSession(ctx, *sess)
}

func (p *Processor) handleAdminUnlock(cmd protocol.Command) error {
	var payload protocol.AdminUnlockPayload
	if len(cmd.Payload) > 0 {
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return fmt.Errorf("decode admin_unlock payload: %w", err)
		}
	}
	g := Grant{GrantedBy: payload.GrantedBy}
	if payload.DurationSeconds > 0 {
		exp := time.Now().Add(time.Duration(payload.DurationSeconds) * time.Second)
		g.ExpiresAt = &exp
	}
	return p.hooks.AdminUnlock(g)
}

func (p *Processor) handleMessage(cmd protocol.Command) error {
	var payload protocol.MessagePayload
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		return fmt.Errorf("decode message payload: %w", err)
	}
	p.hooks.ShowMessage(payload.Text)
	return nil
}
