// Package daemon wires the Connections Registry, Tracker Client, Peer
// Engine, and Front Plane into one running process and drives their
// shared lifecycle, so each component doesn't have to reach for its
// neighbors directly.
package daemon

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"bhid/application"
	"bhid/infrastructure/config"
	"bhid/infrastructure/front"
	"bhid/infrastructure/peer"
	"bhid/infrastructure/registry"
	"bhid/infrastructure/tracker"
)

const shutdownStatusSweep = 3 * time.Second

// Daemon owns every long-lived component for one bhid process.
type Daemon struct {
	logger application.Logger

	registry *registry.Registry
	tracker  *tracker.Client
	engine   *peer.Engine
	front    *front.Plane

	configPath string
}

// New binds the UDP endpoint and wires the Front Plane, Tracker Client,
// and Peer Engine together around self. It does not yet connect to any
// tracker; call Run for that.
func New(configPath string, self application.Identity, logger application.Logger, metrics application.Metrics) (*Daemon, error) {
	settings, err := peekDaemonSettings(configPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: read daemon settings: %w", err)
	}
	if err := peer.ValidateMTU(settings.MTU); err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}

	endpoint, err := peer.Listen(settings.Port)
	if err != nil {
		return nil, fmt.Errorf("daemon: bind peer endpoint: %w", err)
	}

	frontPlane := front.New(logger)
	frontPlane.SetMetrics(metrics)

	// Peer Engine, Tracker Client, and Registry each depend on one of the
	// other two, so construction has to break the cycle: build the Peer
	// Engine and Tracker Client with a nil counterpart, build the
	// Registry around the now-complete Peer Engine, then wire the two
	// remaining references in with setters.
	engine := peer.NewEngine(endpoint, endpoint, self, nil, frontPlane, logger)
	engine.SetMetrics(metrics)

	trackerClient := tracker.New(logger, nil, engine)

	reg := registry.New(configPath, engine, logger)

	engine.SetTracker(trackerClient)
	trackerClient.SetRegistry(reg)

	return &Daemon{
		logger:     logger,
		registry:   reg,
		tracker:    trackerClient,
		engine:     engine,
		front:      frontPlane,
		configPath: configPath,
	}, nil
}

func peekDaemonSettings(path string) (config.DaemonSettings, error) {
	file, err := config.Load(path)
	if err != nil {
		return config.DaemonSettings{}, err
	}
	return file.Daemon, nil
}

// Run loads the configured tunnels, connects every tracker, and blocks
// until ctx is cancelled. A tracker session or the peer engine that stops
// on its own is logged and does not end Run.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.registry.Load(); err != nil {
		return fmt.Errorf("daemon: initial registry load: %w", err)
	}

	file, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("daemon: read trackers: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	for host, record := range file.Trackers {
		host, record := host, record
		d.tracker.Connect(host, tracker.Record{
			Host:   record.Host,
			Port:   record.Port,
			CAFile: record.CAFile,
			Token:  record.Token,
		})
		g.Go(func() error {
			if err := d.tracker.Run(gctx, host); err != nil {
				d.logger.Printf("daemon: tracker %s stopped: %v", host, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := d.engine.Run(gctx); err != nil {
			d.logger.Printf("daemon: peer engine stopped: %v", err)
		}
		return nil
	})

	<-gctx.Done()
	d.shutdown()
	_ = g.Wait()
	return nil
}

// Reload re-reads the config file (tunnels and, implicitly, every known
// peer's public key, since identity.Daemon.PeerPublicKey always reads
// peers/<name>.rsa fresh off disk) without restarting the process.
func (d *Daemon) Reload() {
	if err := d.registry.Load(); err != nil {
		d.logger.Printf("daemon: reload: %v", err)
	}
}

// shutdown runs the Tracker Client's STATUS sweep before tearing down the
// Peer Engine and Front Plane, so every server-role tunnel's peer sees
// active=false instead of a silent disconnect.
func (d *Daemon) shutdown() {
	sweepCtx, cancel := context.WithTimeout(context.Background(), shutdownStatusSweep)
	defer cancel()
	if err := d.tracker.Shutdown(sweepCtx); err != nil {
		d.logger.Printf("daemon: tracker shutdown: %v", err)
	}

	if err := d.engine.Shutdown(); err != nil {
		d.logger.Printf("daemon: peer engine shutdown: %v", err)
	}
	d.front.Shutdown()
}
