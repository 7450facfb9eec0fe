package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"rynx/backend/app/feed"
	"rynx/backend/app/models"
	"rynx/backend/app/repo"
	"rynx/protocol"
)

type SessionService struct {
	sessions *repo.SessionRepository
	devices  *repo.DeviceRepository
	feed     feed.Publisher
}

func NewSessionService(sessions *repo.SessionRepository, devices *repo.DeviceRepository, pub feed.Publisher) *SessionService {
	return &SessionService{sessions: sessions, devices: devices, feed: pub}
}

// StartRequest covers both callers of POST /sessions: the operator console
// starting a guest session with a prepaid block, and an agent starting a
// member session after PIN authentication.
type StartRequest struct {
	DeviceCode           string               `json:"device_code"`
	Type                 protocol.SessionType `json:"type"`
	MemberID             *uint                `json:"member_id,omitempty"`
	TimeRemainingSeconds *int64               `json:"time_remaining_seconds,omitempty"`
}

// Start opens a session for a device. The device must be assigned, and at
// most one session may be active per device.
func (s *SessionService) Start(ctx context.Context, req StartRequest) (*models.Session, error) {
	d, err := s.devices.FindByCode(req.DeviceCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if d.BranchID == nil || d.RateID == nil {
		return nil, ErrNotAssigned
	}
	if _, err := s.sessions.ActiveByDevice(d.ID); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	switch req.Type {
	case protocol.SessionGuest:
		if req.TimeRemainingSeconds == nil || *req.TimeRemainingSeconds <= 0 {
			return nil, ErrInvalid
		}
	case protocol.SessionMember:
		if req.MemberID == nil {
			return nil, ErrInvalid
		}
	default:
		return nil, ErrInvalid
	}

	sess := &models.Session{
		ID:                   uuid.NewString(),
		DeviceID:             d.ID,
		MemberID:             req.MemberID,
		Type:                 string(req.Type),
		Status:               string(protocol.SessionActive),
		TimeRemainingSeconds: req.TimeRemainingSeconds,
		StartedAt:            time.Now(),
	}
	if err := s.sessions.Create(sess); err != nil {
		return nil, err
	}
	s.feed.Publish(ctx, protocol.SessionChannel(d.ID), protocol.ChangeEvent{Entity: "session", Key: sess.ID})
	return sess, nil
}

func (s *SessionService) ActiveByDeviceCode(code string) (*models.Session, error) {
	d, err := s.devices.FindByCode(code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.ActiveByDevice(d.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return sess, err
}

// Patch handles both counter reconciliation and session end. A status in the
// patch moves the session to a terminal state; any other writable field is a
// counter update applied only while the session is still active.
func (s *SessionService) Patch(ctx context.Context, id string, patch map[string]any) (*models.Session, error) {
	if raw, ok := patch["status"]; ok {
		status := fmt.Sprint(raw)
		if status != string(protocol.SessionCompleted) && status != string(protocol.SessionTerminated) {
			return nil, ErrInvalid
		}
		// counter fields arriving alongside the terminal status are the
		// agent's final reconcile; apply them first, then close.
		delete(patch, "status")
		if len(patch) > 0 {
			if _, err := s.patchCounters(id, patch); err != nil {
				return nil, err
			}
		}
		n, err := s.sessions.End(id, status)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// already terminal; ending twice is a no-op, not an error.
			return s.findOr404(ctx, id)
		}
		return s.publishAndReturn(ctx, id)
	}
	n, err := s.patchCounters(id, patch)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrConflict
	}
	return s.publishAndReturn(ctx, id)
}

func (s *SessionService) patchCounters(id string, patch map[string]any) (int64, error) {
	fields := map[string]any{}
	if v, ok := patch["time_remaining_seconds"]; ok {
		fields["time_remaining_seconds"] = v
	}
	if v, ok := patch["total_seconds_used"]; ok {
		fields["total_seconds_used"] = v
	}
	if len(fields) == 0 {
		return 0, ErrInvalid
	}
	return s.sessions.PatchActive(id, fields)
}

func (s *SessionService) findOr404(_ context.Context, id string) (*models.Session, error) {
	sess, err := s.sessions.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return sess, err
}

func (s *SessionService) publishAndReturn(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.findOr404(ctx, id)
	if err != nil {
		return nil, err
	}
	s.feed.Publish(ctx, protocol.SessionChannel(sess.DeviceID), protocol.ChangeEvent{Entity: "session", Key: sess.ID})
	return sess, nil
}

// SessionToWire converts a stored session to its wire form.
func SessionToWire(m *models.Session) protocol.Session {
	return protocol.Session{
		ID:                   m.ID,
		DeviceID:             m.DeviceID,
		MemberID:             m.MemberID,
		Type:                 protocol.SessionType(m.Type),
		Status:               protocol.SessionStatus(m.Status),
		TimeRemainingSeconds: m.TimeRemainingSeconds,
		TotalSecondsUsed:     m.TotalSecondsUsed,
		StartedAt:            m.StartedAt,
		EndedAt:              m.EndedAt,
	}
}
