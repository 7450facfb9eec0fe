// Package remote is the agent's view of the authority: typed point reads and
// writes over HTTP, plus a best-effort change feed over redis pub/sub. Push
// and poll may both fire for the same change; callers are idempotent.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"rynx/protocol"
)

var (
	ErrNotFound           = errors.New("remote: not found")
	ErrUnauthorized       = errors.New("remote: unauthorized")
	ErrInsufficientCredit = errors.New("remote: insufficient credit")
)

type Client struct {
	baseURL string
	code    string
	token   atomic.Value // string
	http    *http.Client
}

func NewClient(baseURL, deviceCode string) *Client {
	c := &Client{
		baseURL: baseURL,
		code:    deviceCode,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	c.token.Store("")
	return c
}

// SetToken installs the device JWT issued at registration.
func (c *Client) SetToken(t string) { c.token.Store(t) }

func (c *Client) Token() string {
	if v, ok := c.token.Load().(string); ok {
		return v
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t := c.Token(); t != "" {
		req.Header.Set("Authorization", "Bearer "+t)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusPaymentRequired:
		return ErrInsufficientCredit
	case resp.StatusCode >= 300:
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Register creates (or re-reads) the device record and returns the device
// token used on every later request.
func (c *Client) Register(ctx context.Context, req protocol.RegisterRequest) (*protocol.RegisterResponse, error) {
	var out protocol.RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/devices/register", req, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return &out, nil
}

func (c *Client) Device(ctx context.Context) (*protocol.Device, error) {
	var d protocol.Device
	if err := c.do(ctx, http.MethodGet, "/devices/"+c.code, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// PatchDevice writes a partial device update (status, is_locked). Fields not
// present in the patch are untouched.
func (c *Client) PatchDevice(ctx context.Context, patch map[string]any) error {
	return c.do(ctx, http.MethodPatch, "/devices/"+c.code, patch, nil)
}

func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/devices/"+c.code+"/heartbeat", nil, nil)
}

// ActiveSession returns the authoritative active session for this device, or
// ErrNotFound when none exists.
func (c *Client) ActiveSession(ctx context.Context) (*protocol.Session, error) {
	var s protocol.Session
	if err := c.do(ctx, http.MethodGet, "/devices/"+c.code+"/session", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// StartMemberSession opens a member session for this device after a
// successful PIN authentication.
func (c *Client) StartMemberSession(ctx context.Context, memberID uint) (*protocol.Session, error) {
	body := map[string]any{"device_code": c.code, "type": protocol.SessionMember, "member_id": memberID}
	var s protocol.Session
	if err := c.do(ctx, http.MethodPost, "/sessions", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// PatchSession reconciles locally tracked time onto the remote record. The
// agent is the single writer of these fields while the session is active.
func (c *Client) PatchSession(ctx context.Context, id string, patch map[string]any) error {
	return c.do(ctx, http.MethodPatch, "/sessions/"+id, patch, nil)
}

func (c *Client) EndSession(ctx context.Context, id string, status protocol.SessionStatus) error {
	return c.do(ctx, http.MethodPatch, "/sessions/"+id, map[string]any{"status": status}, nil)
}

// PendingCommands returns commands the authority has not yet seen resolved.
func (c *Client) PendingCommands(ctx context.Context) ([]protocol.Command, error) {
	var cmds []protocol.Command
	if err := c.do(ctx, http.MethodGet, "/devices/"+c.code+"/commands", nil, &cmds); err != nil {
		return nil, err
	}
	return cmds, nil
}

// ResolveCommand writes the terminal status; this is the idempotency guard
// against re-processing on the remote side.
func (c *Client) ResolveCommand(ctx context.Context, id string, status protocol.CommandStatus, errMsg string) error {
	body := map[string]any{"status": status, "error": errMsg}
	return c.do(ctx, http.MethodPatch, "/commands/"+id, body, nil)
}

func (c *Client) AuthMember(ctx context.Context, username, pin string) (*protocol.Member, error) {
	var m protocol.Member
	if err := c.do(ctx, http.MethodPost, "/members/auth", protocol.MemberAuthRequest{Username: username, PIN: pin}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DebitMember charges the member's balance and returns the new balance, or
// ErrInsufficientCredit when the balance cannot cover the amount.
func (c *Client) DebitMember(ctx context.Context, memberID uint, amount float64) (float64, error) {
	var out protocol.DebitResponse
	path := fmt.Sprintf("/members/%d/debit", memberID)
	if err := c.do(ctx, http.MethodPost, path, protocol.DebitRequest{Amount: amount}, &out); err != nil {
		return 0, err
	}
	return out.Credits, nil
}

func (c *Client) Rate(ctx context.Context, id uint) (*protocol.Rate, error) {
	var r protocol.Rate
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/rates/%d", id), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
