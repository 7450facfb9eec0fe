package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"rynx/backend/app/feed"
	"rynx/backend/app/models"
	"rynx/backend/app/repo"
	"rynx/protocol"
)

type CommandService struct {
	commands *repo.CommandRepository
	devices  *repo.DeviceRepository
	feed     feed.Publisher
}

func NewCommandService(commands *repo.CommandRepository, devices *repo.DeviceRepository, pub feed.Publisher) *CommandService {
	return &CommandService{commands: commands, devices: devices, feed: pub}
}

type CreateCommandRequest struct {
	DeviceCode string               `json:"device_code"`
	Type       protocol.CommandType `json:"type"`
	Payload    json.RawMessage      `json:"payload,omitempty"`
}

// Create enqueues an operator command for a device. The type set is closed;
// anything else is rejected before it can reach an agent.
func (s *CommandService) Create(ctx context.Context, req CreateCommandRequest) (*models.Command, error) {
	switch req.Type {
	case protocol.CmdShutdown, protocol.CmdRestart, protocol.CmdLock,
		protocol.CmdUnlock, protocol.CmdAdminUnlock, protocol.CmdMessage:
	default:
		return nil, ErrInvalid
	}
	if _, err := s.devices.FindByCode(req.DeviceCode); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	cmd := &models.Command{
		ID:         uuid.NewString(),
		DeviceCode: req.DeviceCode,
		Type:       string(req.Type),
		Payload:    string(req.Payload),
		Status:     string(protocol.CommandPending),
	}
	if err := s.commands.Create(cmd); err != nil {
		return nil, err
	}
	s.feed.Publish(ctx, protocol.CommandChannel(cmd.DeviceCode), protocol.ChangeEvent{Entity: "command", Key: cmd.ID})
	return cmd, nil
}

func (s *CommandService) PendingByDevice(code string) ([]models.Command, error) {
	return s.commands.PendingByDevice(code)
}

// Resolve records the agent's terminal status for a command. Resolving a
// command that is already resolved is a no-op; the first writer wins.
func (s *CommandService) Resolve(id string, status protocol.CommandStatus, errMsg string) error {
	if status != protocol.CommandExecuted && status != protocol.CommandFailed {
		return ErrInvalid
	}
	n, err := s.commands.Resolve(id, string(status), errMsg)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, ferr := s.commands.FindByID(id); errors.Is(ferr, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
	}
	return nil
}

// CommandToWire converts a stored command to its wire form.
func CommandToWire(c *models.Command) protocol.Command {
	var payload json.RawMessage
	if c.Payload != "" {
		payload = json.RawMessage(c.Payload)
	}
	return protocol.Command{
		ID:         c.ID,
		DeviceCode: c.DeviceCode,
		Type:       protocol.CommandType(c.Type),
		Payload:    payload,
		Status:     protocol.CommandStatus(c.Status),
		ExecutedAt: c.ExecutedAt,
		Error:      c.Error,
	}
}
