package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Intervals groups every periodic cadence the agent runs. They are
// configurable so an operator can tune traffic and tests can compress time.
type Intervals struct {
	Tick          time.Duration
	Reconcile     time.Duration
	Charge        time.Duration
	CommandPoll   time.Duration
	Heartbeat     time.Duration
	Reassert      time.Duration
	GrantCheck    time.Duration
	ChargeGrace   time.Duration
	ShutdownGrace time.Duration
}

type AppConfig struct {
	BackendURL   string
	RedisAddr    string
	IdentityPath string
	DBPath       string
	LogPath      string
	KillCode     string
	Intervals    Intervals
}

var cfg AppConfig

func Init(path string) AppConfig {
	defaultDir := filepath.Join(os.TempDir(), "rynx")

	v := viper.New()
	if path == "" {
		path = "config/agent.yaml"
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// defaults
	v.SetDefault("agent.backend_url", "http://127.0.0.1:9400")
	v.SetDefault("agent.redis_addr", "127.0.0.1:6379")
	v.SetDefault("agent.identity_path", filepath.Join(defaultDir, "device.code"))
	v.SetDefault("agent.db_path", filepath.Join(defaultDir, "agent.db"))
	v.SetDefault("agent.kill_code", "")
	v.SetDefault("agent.interval.tick", "1s")
	v.SetDefault("agent.interval.reconcile", "5s")
	v.SetDefault("agent.interval.charge", "60s")
	v.SetDefault("agent.interval.command_poll", "3s")
	v.SetDefault("agent.interval.heartbeat", "15s")
	v.SetDefault("agent.interval.reassert", "1s")
	v.SetDefault("agent.interval.grant_check", "10s")
	v.SetDefault("agent.interval.charge_grace", "60s")
	v.SetDefault("agent.interval.shutdown_grace", "30s")
	_ = v.ReadInConfig()

	cfg = AppConfig{
		BackendURL:   v.GetString("agent.backend_url"),
		RedisAddr:    v.GetString("agent.redis_addr"),
		IdentityPath: v.GetString("agent.identity_path"),
		DBPath:       v.GetString("agent.db_path"),
		LogPath:      v.GetString("agent.log_path"),
		KillCode:     v.GetString("agent.kill_code"),
		Intervals: Intervals{
			Tick:          v.GetDuration("agent.interval.tick"),
			Reconcile:     v.GetDuration("agent.interval.reconcile"),
			Charge:        v.GetDuration("agent.interval.charge"),
			CommandPoll:   v.GetDuration("agent.interval.command_poll"),
			Heartbeat:     v.GetDuration("agent.interval.heartbeat"),
			Reassert:      v.GetDuration("agent.interval.reassert"),
			GrantCheck:    v.GetDuration("agent.interval.grant_check"),
			ChargeGrace:   v.GetDuration("agent.interval.charge_grace"),
			ShutdownGrace: v.GetDuration("agent.interval.shutdown_grace"),
		},
	}
	return cfg
}

func Get() AppConfig { return cfg }
