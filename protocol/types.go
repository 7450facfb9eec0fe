package protocol

import (
	"encoding/json"
	"time"
)

// DeviceStatus is the remote-visible lifecycle status of a device.
type DeviceStatus string

const (
	DevicePending DeviceStatus = "pending"
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
	DeviceInUse   DeviceStatus = "in_use"
)

type SessionType string

const (
	SessionGuest  SessionType = "guest"
	SessionMember SessionType = "member"
)

type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionCompleted  SessionStatus = "completed"
	SessionTerminated SessionStatus = "terminated"
)

// CommandType is the closed set of operator commands an agent executes.
type CommandType string

const (
	CmdShutdown    CommandType = "shutdown"
	CmdRestart     CommandType = "restart"
	CmdLock        CommandType = "lock"
	CmdUnlock      CommandType = "unlock"
	CmdAdminUnlock CommandType = "admin_unlock"
	CmdMessage     CommandType = "message"
)

type CommandStatus string

const (
	CommandPending  CommandStatus = "pending"
	CommandExecuted CommandStatus = "executed"
	CommandFailed   CommandStatus = "failed"
)

// Device mirrors the authority's device record.
type Device struct {
	ID            uint         `json:"id"`
	Code          string       `json:"code"`
	BranchID      *uint        `json:"branch_id,omitempty"`
	RateID        *uint        `json:"rate_id,omitempty"`
	Status        DeviceStatus `json:"status"`
	IsLocked      bool         `json:"is_locked"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
	Hostname      string       `json:"hostname,omitempty"`
	OSName        string       `json:"os_name,omitempty"`
	Arch          string       `json:"arch,omitempty"`
}

// Assigned reports whether an operator has approved the device into a branch.
func (d Device) Assigned() bool { return d.BranchID != nil && d.RateID != nil }

// Rate is the pricing applied to member sessions on a device.
type Rate struct {
	ID          uint    `json:"id"`
	Name        string  `json:"name"`
	UnitPrice   float64 `json:"unit_price"`
	UnitMinutes int     `json:"unit_minutes"`
}

type Session struct {
	ID                   string        `json:"id"`
	DeviceID             uint          `json:"device_id"`
	MemberID             *uint         `json:"member_id,omitempty"`
	Type                 SessionType   `json:"type"`
	Status               SessionStatus `json:"status"`
	TimeRemainingSeconds *int64        `json:"time_remaining_seconds,omitempty"`
	TotalSecondsUsed     int64         `json:"total_seconds_used"`
	StartedAt            time.Time     `json:"started_at"`
	EndedAt              *time.Time    `json:"ended_at,omitempty"`
}

type Member struct {
	ID       uint    `json:"id"`
	Username string  `json:"username"`
	Credits  float64 `json:"credits"`
}

type Command struct {
	ID         string          `json:"id"`
	DeviceCode string          `json:"device_code"`
	Type       CommandType     `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Status     CommandStatus   `json:"status"`
	ExecutedAt *time.Time      `json:"executed_at,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// UnlockPayload is advisory only: the agent re-reads the authoritative
// session before starting a timer.
type UnlockPayload struct {
	SessionID     string `json:"session_id,omitempty"`
	TimeRemaining *int64 `json:"time_remaining,omitempty"`
}

type AdminUnlockPayload struct {
	DurationSeconds int64  `json:"duration_seconds,omitempty"` // 0 = unlimited
	GrantedBy       string `json:"granted_by"`
}

type MessagePayload struct {
	Text string `json:"text"`
}

// RegisterRequest is sent once by a device on first contact.
type RegisterRequest struct {
	Code     string `json:"code"`
	Hostname string `json:"hostname"`
	OSName   string `json:"os_name"`
	Arch     string `json:"arch"`
	CPUs     int    `json:"cpus"`
}

// RegisterResponse carries the device record plus the JWT the agent uses on
// every later request.
type RegisterResponse struct {
	Device Device `json:"device"`
	Token  string `json:"token"`
}

type MemberAuthRequest struct {
	Username string `json:"username"`
	PIN      string `json:"pin"`
}

type DebitRequest struct {
	Amount float64 `json:"amount"`
}

type DebitResponse struct {
	Credits float64 `json:"credits"`
}
