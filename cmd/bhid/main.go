package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"bhid/infrastructure/identity"
	"bhid/infrastructure/logging"
	"bhid/internal/daemon"
	"bhid/internal/metrics"
)

const configFileName = "bhid.conf"

func main() {
	logger := logging.NewStdLogger("bhid")

	configDir := configDir()
	configPath := filepath.Join(configDir, configFileName)

	self, err := identity.Load(configDir, identity.NewExecCommander())
	if err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}

	d, err := daemon.New(configPath, self, logger, metrics.New())
	if err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}

	appCtx, appCtxCancel := context.WithCancel(context.Background())
	defer appCtxCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGHUP {
				logger.Printf("reload signal received")
				d.Reload()
				continue
			}
			logger.Printf("shutdown signal received")
			appCtxCancel()
			return
		}
	}()

	if err := d.Run(appCtx); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

// configDir returns the directory holding bhid.conf, the identity
// subtree, and the peers directory: /etc/bhid on most systems,
// /usr/local/etc/bhid on BSD-family systems.
func configDir() string {
	switch runtime.GOOS {
	case "freebsd", "netbsd", "openbsd", "dragonfly":
		return filepath.Join("/usr/local/etc", "bhid")
	default:
		return filepath.Join("/etc", "bhid")
	}
}
