package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"rynx/protocol"
)

// Client is the console's view of the backend API, authenticated with the
// operator token obtained at login.
type Client struct {
	BaseURL string
	Token   string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *Client) do(method, path string, in, out any) error {
	var body bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = *bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, e.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) Login(username, password string) error {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(http.MethodPost, "/login", map[string]string{"username": username, "password": password}, &out)
	if err != nil {
		return err
	}
	c.Token = out.Token
	return nil
}

func (c *Client) Devices() ([]protocol.Device, error) {
	var out []protocol.Device
	if err := c.do(http.MethodGet, "/devices", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Assign(code string, branchID, rateID uint) error {
	body := map[string]uint{"branch_id": branchID, "rate_id": rateID}
	return c.do(http.MethodPost, "/devices/"+code+"/assign", body, nil)
}

func (c *Client) SendCommand(code string, cmdType protocol.CommandType, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}
	body := map[string]any{"device_code": code, "type": cmdType, "payload": raw}
	return c.do(http.MethodPost, "/commands", body, nil)
}

// StartGuestSession creates the prepaid session; pairing it with an unlock
// command is the caller's job.
func (c *Client) StartGuestSession(code string, seconds int64) (*protocol.Session, error) {
	body := map[string]any{
		"device_code":            code,
		"type":                   protocol.SessionGuest,
		"time_remaining_seconds": seconds,
	}
	var out protocol.Session
	if err := c.do(http.MethodPost, "/sessions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateMember(username, pin string, credits float64) error {
	body := map[string]any{"username": username, "pin": pin, "credits": credits}
	return c.do(http.MethodPost, "/members", body, nil)
}
