package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"rynx/backend/app/feed"
	"rynx/backend/app/models"
	"rynx/backend/app/repo"
	"rynx/protocol"
)

type DeviceService struct {
	devices *repo.DeviceRepository
	feed    feed.Publisher
}

func NewDeviceService(devices *repo.DeviceRepository, pub feed.Publisher) *DeviceService {
	return &DeviceService{devices: devices, feed: pub}
}

// Register creates the device on first contact (pending, locked) or returns
// the existing record; registration is idempotent by device code.
func (s *DeviceService) Register(ctx context.Context, req protocol.RegisterRequest) (*models.Device, error) {
	d, err := s.devices.FindByCode(req.Code)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	d = &models.Device{
		Code:          req.Code,
		Status:        string(protocol.DevicePending),
		IsLocked:      true,
		LastHeartbeat: time.Now(),
		Hostname:      req.Hostname,
		OSName:        req.OSName,
		Arch:          req.Arch,
	}
	if err := s.devices.Create(d); err != nil {
		return nil, err
	}
	s.feed.Publish(ctx, protocol.DeviceChannel(d.Code), protocol.ChangeEvent{Entity: "device", Key: d.Code})
	return d, nil
}

func (s *DeviceService) FindByCode(code string) (*models.Device, error) {
	d, err := s.devices.FindByCode(code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return d, err
}

func (s *DeviceService) ListAll() ([]models.Device, error) { return s.devices.ListAll() }

// Patch applies the agent-writable fields only.
func (s *DeviceService) Patch(ctx context.Context, code string, patch map[string]any) error {
	fields := map[string]any{}
	if v, ok := patch["status"]; ok {
		fields["status"] = v
	}
	if v, ok := patch["is_locked"]; ok {
		fields["is_locked"] = v
	}
	if len(fields) == 0 {
		return ErrInvalid
	}
	if err := s.devices.Patch(code, fields); err != nil {
		return err
	}
	s.feed.Publish(ctx, protocol.DeviceChannel(code), protocol.ChangeEvent{Entity: "device", Key: code})
	return nil
}

// Assign is the operator-side approval: it moves a pending device into a
// branch with a rate. The agent observes the change via feed or poll.
func (s *DeviceService) Assign(ctx context.Context, code string, branchID, rateID uint) error {
	if _, err := s.FindByCode(code); err != nil {
		return err
	}
	err := s.devices.Patch(code, map[string]any{
		"branch_id": branchID,
		"rate_id":   rateID,
		"status":    string(protocol.DeviceOnline),
	})
	if err != nil {
		return err
	}
	s.feed.Publish(ctx, protocol.DeviceChannel(code), protocol.ChangeEvent{Entity: "device", Key: code})
	return nil
}

func (s *DeviceService) Heartbeat(code string) error { return s.devices.Heartbeat(code) }

// ToWire converts a stored device to its wire form.
func ToWire(d *models.Device) protocol.Device {
	return protocol.Device{
		ID:            d.ID,
		Code:          d.Code,
		BranchID:      d.BranchID,
		RateID:        d.RateID,
		Status:        protocol.DeviceStatus(d.Status),
		IsLocked:      d.IsLocked,
		LastHeartbeat: d.LastHeartbeat,
		Hostname:      d.Hostname,
		OSName:        d.OSName,
		Arch:          d.Arch,
	}
}
