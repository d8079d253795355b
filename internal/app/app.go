// Package app owns the daemon lifecycle: single-instance locking, config
// loading and hot reload, and the assembly of the bridge client, light
// driver, reconciler, webhook server and reachability monitor into one
// running unit that can be torn down and rebuilt on a config change.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ajur/huddlelight/internal/bridge"
	"github.com/ajur/huddlelight/internal/config"
	"github.com/ajur/huddlelight/internal/diaglog"
	"github.com/ajur/huddlelight/internal/lights"
	"github.com/ajur/huddlelight/internal/monitor"
	"github.com/ajur/huddlelight/internal/pidfile"
	"github.com/ajur/huddlelight/internal/reconciler"
	"github.com/ajur/huddlelight/internal/webhook"
	"github.com/ajur/huddlelight/internal/windows"
)

// shutdownIdleTimeout bounds the best-effort idle restore on exit.
const shutdownIdleTimeout = 3 * time.Second

// Options carries everything the lifecycle needs from the CLI layer.
type Options struct {
	ConfigPath string
	Diag       *diaglog.Logger
}

// Run executes the daemon until ctx is cancelled, the configuration becomes
// unloadable, or a discovery listing completes (monitor.ErrDiscoveryDone).
// A change to the config file tears the running components down and rebuilds
// them from the new file; the process itself stays up.
func Run(ctx context.Context, opts Options) error {
	pf, err := pidfile.New(pidfile.Path())
	if err != nil {
		return fmt.Errorf("another instance may be running: %w", err)
	}
	defer func() {
		if err := pf.Remove(); err != nil {
			log.Printf("WARNING: failed to remove PID file: %v", err)
		}
	}()
	log.Printf("[STARTUP] PID file created: %s", pidfile.Path())

	// An unloadable config at startup is fatal; after that the file only
	// replaces the running configuration once it loads cleanly.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	watchDone := make(chan struct{})
	defer close(watchDone)
	changes := config.Watch(watchDone, opts.ConfigPath)

	for {
		log.Printf("[STARTUP] config loaded: bridge=%s lights=%d poll=%s probe=%s remote_timeout=%s webhook=%s",
			cfg.Bridge.Address, len(cfg.Lights), cfg.PollInterval(), cfg.ProbeInterval(),
			cfg.RemoteTimeout(), cfg.WebhookAddr())

		instCtx, cancelInst := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() {
			errCh <- runInstance(instCtx, cfg, opts.Diag)
		}()

	waiting:
		for {
			select {
			case <-ctx.Done():
				cancelInst()
				<-errCh
				return nil

			case <-changes:
				next, err := config.Load(opts.ConfigPath)
				if err != nil {
					// Half-saved or broken edit; keep running on the
					// previous configuration until a loadable one appears.
					log.Printf("WARNING: config change ignored, file does not load: %v", err)
					continue
				}
				log.Println("[EVENT] configuration changed, restarting components")
				opts.Diag.Log(diaglog.LogEntry{
					Component: diaglog.ComponentCore,
					Event:     diaglog.EventConfigReload,
					Payload:   map[string]interface{}{"path": opts.ConfigPath},
				})
				cancelInst()
				<-errCh
				cfg = next
				break waiting

			case err := <-errCh:
				cancelInst()
				if errors.Is(err, monitor.ErrDiscoveryDone) {
					return err
				}
				if err != nil {
					return fmt.Errorf("monitor stopped: %w", err)
				}
				return nil
			}
		}
	}
}

// instance bundles one configuration's worth of running components. The
// webhook server field is only touched from monitor hook callbacks, which the
// monitor invokes sequentially from its own goroutine.
type instance struct {
	cfg    *config.Config
	diag   *diaglog.Logger
	driver *lights.Driver
	rec    *reconciler.Reconciler
	srv    *webhook.Server

	everOnline bool
}

func runInstance(ctx context.Context, cfg *config.Config, diag *diaglog.Logger) error {
	client := bridge.NewClient(cfg.Bridge.Address, cfg.Bridge.Token)

	inst := &instance{
		cfg:    cfg,
		diag:   diag,
		driver: lights.NewDriver(client, cfg.Lights, diag),
	}
	inst.rec = reconciler.New(windows.NewReader(), inst.driver, diag, reconciler.Config{
		PollInterval:  cfg.PollInterval(),
		RemoteTimeout: cfg.RemoteTimeout(),
	})

	mon := monitor.New(client, cfg.ProbeInterval(), cfg.Lights, diag, monitor.Hooks{
		Online:  inst.online,
		Offline: inst.offline,
	})

	err := mon.Run(ctx)

	if inst.everOnline && len(cfg.Lights) > 0 {
		restoreCtx, cancel := context.WithTimeout(context.Background(), shutdownIdleTimeout)
		defer cancel()
		log.Println("[SHUTDOWN] restoring idle light state")
		if errs := inst.driver.ApplyAll(restoreCtx, lights.TargetIdle); len(errs) > 0 {
			log.Printf("[SHUTDOWN] idle restore incomplete (%d light(s) failed)", len(errs))
		}
	}
	return err
}

// online starts everything that may only run while the bridge is reachable.
// onlineCtx is cancelled on the offline transition, which stops the
// reconciler loop and with it all light traffic.
func (inst *instance) online(onlineCtx context.Context) {
	inst.everOnline = true

	// The reconciler keeps meeting state across bridge outages, so reassert
	// whatever it currently believes before resuming the loop.
	target := lights.TargetIdle
	if inst.rec.InMeeting() {
		target = lights.TargetMeeting
	}
	if errs := inst.driver.ApplyAll(onlineCtx, target); len(errs) > 0 {
		log.Printf("WARNING: %d light(s) failed during %s reassert", len(errs), target)
	}

	go inst.rec.Run(onlineCtx)

	srv := webhook.New(inst.cfg.WebhookAddr(), inst.rec, inst.diag)
	if err := srv.Start(); err != nil {
		log.Printf("ERROR: webhook server failed to start on %s: %v", inst.cfg.WebhookAddr(), err)
		return
	}
	log.Printf("[STARTUP] webhook server listening on %s", srv.Addr())
	inst.srv = srv
}

func (inst *instance) offline() {
	if inst.srv != nil {
		log.Println("[SHUTDOWN] stopping webhook server")
		inst.srv.Stop()
		inst.srv = nil
	}
}
