package protocol

import "fmt"

// Feed channels. The backend publishes a ChangeEvent whenever one of the
// entities below mutates; agents subscribe to the channels for their own
// device. Push delivery is best-effort; every consumer keeps a poll fallback.

func DeviceChannel(code string) string    { return fmt.Sprintf("rynx:device:%s", code) }
func CommandChannel(code string) string   { return fmt.Sprintf("rynx:command:%s", code) }
func SessionChannel(deviceID uint) string { return fmt.Sprintf("rynx:session:%d", deviceID) }

// ChangeEvent is the payload published on feed channels. It names what may
// have changed; consumers re-read authoritative state rather than trusting
// the event body.
type ChangeEvent struct {
	Entity string `json:"entity"` // device | session | command
	Key    string `json:"key"`    // device code, session id or command id
}
