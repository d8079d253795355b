// Package monitor watches bridge reachability and gates everything that
// depends on it. The bridge is an intermittently available LAN device: all
// dependent activity suspends cleanly while it is gone and resumes when it
// returns.
package monitor

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ajur/huddlelight/internal/bridge"
	"github.com/ajur/huddlelight/internal/diaglog"
)

// ErrDiscoveryDone signals that the monitor ran in discovery mode (no lights
// configured), printed the available lights, and the process should exit.
var ErrDiscoveryDone = errors.New("light discovery complete")

// probeTimeout bounds a single reachability probe.
const probeTimeout = 5 * time.Second

// Prober is the slice of the bridge client the monitor needs. A successful
// listing is the reachability probe.
type Prober interface {
	Lights(ctx context.Context) (map[string]bridge.Light, error)
}

// Hooks are invoked on state transitions. Online receives a context that is
// cancelled when the bridge goes offline again (or the monitor stops), so
// everything started in Online tears down with it.
type Hooks struct {
	Online  func(ctx context.Context)
	Offline func()
}

// Monitor is the two-state (Offline/Online) reachability machine. Initial
// state is Offline; the first probe runs immediately on Run.
type Monitor struct {
	prober   Prober
	interval time.Duration
	lightIDs []string
	diag     *diaglog.Logger
	hooks    Hooks

	mu           sync.Mutex
	online       bool
	cancelOnline context.CancelFunc
}

// New builds a monitor. An empty lightIDs set selects discovery mode.
func New(prober Prober, interval time.Duration, lightIDs []string, diag *diaglog.Logger, hooks Hooks) *Monitor {
	return &Monitor{
		prober:   prober,
		interval: interval,
		lightIDs: lightIDs,
		diag:     diag,
		hooks:    hooks,
	}
}

// Online reports the current reachability state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Run probes until ctx is done. Returns ErrDiscoveryDone after a discovery
// listing, nil on a clean shutdown.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.goOffline()

	if err := m.probe(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.probe(ctx); err != nil {
				return err
			}
		}
	}
}

func (m *Monitor) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	listing, err := m.prober.Lights(probeCtx)
	if err != nil {
		if m.Online() {
			log.Printf("[EVENT] bridge went offline: %v", err)
			m.diag.Log(diaglog.LogEntry{
				Component: diaglog.ComponentReachability,
				Event:     diaglog.EventBridgeOffline,
				Reason:    err.Error(),
			})
			m.goOffline()
		} else {
			log.Printf("bridge probe failed (still offline): %v", err)
		}
		return nil
	}

	if m.Online() {
		return nil
	}

	if len(m.lightIDs) == 0 {
		printDiscovery(listing)
		return ErrDiscoveryDone
	}

	for _, id := range m.lightIDs {
		if _, ok := listing[id]; !ok {
			log.Printf("WARNING: configured light %q not reported by bridge", id)
		}
	}

	log.Printf("[EVENT] bridge is online (%d lights reported)", len(listing))
	m.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentReachability,
		Event:     diaglog.EventBridgeOnline,
		Payload:   map[string]interface{}{"lights_reported": len(listing)},
	})

	onlineCtx, cancelOnline := context.WithCancel(ctx)
	m.mu.Lock()
	m.online = true
	m.cancelOnline = cancelOnline
	m.mu.Unlock()

	if m.hooks.Online != nil {
		m.hooks.Online(onlineCtx)
	}
	return nil
}

func (m *Monitor) goOffline() {
	m.mu.Lock()
	wasOnline := m.online
	cancel := m.cancelOnline
	m.online = false
	m.cancelOnline = nil
	m.mu.Unlock()

	if !wasOnline {
		return
	}
	if cancel != nil {
		cancel()
	}
	if m.hooks.Offline != nil {
		m.hooks.Offline()
	}
}

// printDiscovery lists the bridge's lights for operator inspection so a
// fresh install can pick identifiers for the config file.
func printDiscovery(listing map[string]bridge.Light) {
	log.Printf("no lights configured; bridge reports %d light(s):", len(listing))

	ids := make([]string, 0, len(listing))
	for id := range listing {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		l := listing[id]
		log.Printf("  id=%s  name=%q  type=%s", id, l.Name, l.Type)
	}
	log.Println("add the desired ids to the config file under 'lights' and restart")
}
