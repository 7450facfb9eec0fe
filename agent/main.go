package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	agentpkg "rynx/agent/internal/agent"
	"rynx/agent/internal/config"
	"rynx/agent/internal/identity"
	"rynx/agent/internal/lockdown"
	"rynx/agent/internal/logger"
	"rynx/agent/internal/remote"
	"rynx/agent/internal/store"
	"rynx/agent/internal/surface"
	"rynx/protocol"
)

func main() {
	var (
		cfgPath  = flag.String("config", "config/agent.yaml", "Path to configuration file")
		headless = flag.Bool("headless", false, "Run without the lockscreen TUI (service mode)")
		killCode = flag.String("kill-code", "", "Pre-authorize termination with the kill code")
	)
	flag.Parse()

	cfg := config.Init(*cfgPath)
	if err := logger.Init(cfg.LogPath); err != nil {
		os.Exit(1)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("Cannot open local store:", err)
		os.Exit(1)
	}

	code, err := identity.LoadOrCreate(st, cfg.IdentityPath)
	if err != nil {
		logger.Error("Cannot resolve device identity:", err)
		os.Exit(1)
	}
	logger.Infof("device code %s", code)

	stopWatch, err := identity.Watch(st, cfg.IdentityPath)
	if err != nil {
		logger.Warnf("identity watch unavailable: %v", err)
	} else {
		defer stopWatch()
	}

	platform := lockdown.NewPlatform()
	ctrl := lockdown.NewController(platform)
	sentinel := lockdown.NewSentinel(cfg.KillCode, platform)
	if *killCode != "" {
		sentinel.Authorize(*killCode)
	}

	var surf surface.Surface
	var screen *surface.Lockscreen
	if *headless {
		surf = surface.NewHeadless()
	} else {
		screen = surface.NewLockscreen(code)
		surf = screen
	}

	client := remote.NewClient(cfg.BackendURL, code)
	feed := remote.NewFeed(cfg.RedisAddr)
	defer feed.Close()

	ag := agentpkg.New(agentpkg.Options{
		Remote:     client,
		Feed:       feed,
		Surface:    surf,
		Lockdown:   ctrl,
		Sentinel:   sentinel,
		Journal:    st,
		Descriptor: identity.Descriptor(code),
		Intervals:  cfg.Intervals,
		Power: func(typ protocol.CommandType, grace time.Duration) error {
			time.AfterFunc(grace, func() {
				var err error
				if typ == protocol.CmdRestart {
					err = platform.Reboot()
				} else {
					err = platform.Shutdown()
				}
				if err != nil {
					logger.Errorf("power action %s: %v", typ, err)
				}
			})
			return nil
		},
		OnRegistered: func(resp protocol.RegisterResponse) {
			_ = st.SaveIdentity(&store.Identity{Code: resp.Device.Code, Token: resp.Token})
		},
	})

	// the termination hook runs on every exit path; unauthorized exit
	// while locked reboots the machine
	defer func() {
		sentinel.OnExit(ag.Locked())
	}()

	ctx := context.Background()
	if err := ag.Run(ctx); err != nil {
		logger.Error("Agent bootstrap failed:", err)
		return
	}
	defer ag.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if screen != nil {
		done := make(chan struct{})
		go func() {
			if err := screen.Run(); err != nil {
				logger.Errorf("lockscreen: %v", err)
			}
			close(done)
		}()
		select {
		case <-sigChan:
		case <-done:
		}
		screen.Close()
	} else {
		<-sigChan
	}
	logger.Info("Shutdown signal received, exiting...")
}
