// Package identity owns the stable device code. The code is generated once,
// stored in the local database and mirrored to a sidecar file so operators
// can read it off the machine; the sqlite copy is authoritative.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"rynx/agent/internal/store"
	"rynx/protocol"
)

const codePrefix = "RYNX-"

// NewCode derives a device code like RYNX-AB12CD34 from fresh UUID entropy.
func NewCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return codePrefix + strings.ToUpper(raw[:8])
}

// LoadOrCreate returns the persisted device code, generating and persisting
// one on first run.
func LoadOrCreate(st *store.Store, sidecarPath string) (string, error) {
	if id, err := st.LoadIdentity(); err != nil {
		return "", fmt.Errorf("load identity: %w", err)
	} else if id != nil {
		_ = writeSidecar(sidecarPath, id.Code)
		return id.Code, nil
	}
	code := NewCode()
	if err := st.SaveIdentity(&store.Identity{Code: code}); err != nil {
		return "", fmt.Errorf("persist identity: %w", err)
	}
	if err := writeSidecar(sidecarPath, code); err != nil {
		return "", fmt.Errorf("write identity file: %w", err)
	}
	return code, nil
}

func writeSidecar(path, code string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(code+"\n"), 0o644)
}

// Descriptor collects the basic hardware descriptor sent at registration.
func Descriptor(code string) protocol.RegisterRequest {
	hostname, _ := os.Hostname()
	return protocol.RegisterRequest{
		Code:     code,
		Hostname: hostname,
		OSName:   runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUs:     runtime.NumCPU(),
	}
}
