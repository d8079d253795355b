// Package lights maps visual targets onto bridge light state and fans
// state-replace requests out across the configured lights.
package lights

import (
	"context"
	"log"
	"sync"

	"github.com/ajur/huddlelight/internal/bridge"
	"github.com/ajur/huddlelight/internal/diaglog"
)

// Target is the desired light appearance, independent of the protocol used
// to set it.
type Target string

const (
	TargetMeeting Target = "meeting"
	TargetIdle    Target = "idle"
	TargetOff     Target = "off"
)

// State returns the bridge wire state for the target. Meeting is saturated
// red at full brightness; Idle is a fixed cool blue-white; Off powers the
// light down.
func (t Target) State() bridge.LightState {
	switch t {
	case TargetMeeting:
		return bridge.LightState{On: boolPtr(true), Bri: u8Ptr(254), Hue: u16Ptr(0), Sat: u8Ptr(254)}
	case TargetIdle:
		return bridge.LightState{On: boolPtr(true), Bri: u8Ptr(144), Hue: u16Ptr(41442), Sat: u8Ptr(75)}
	default:
		return bridge.LightState{On: boolPtr(false)}
	}
}

// Setter is the slice of the bridge client the driver needs.
type Setter interface {
	SetState(ctx context.Context, id string, state bridge.LightState) error
}

// Driver applies visual targets to a fixed set of lights, independently per
// light. A failure on one light never blocks or rolls back the others.
type Driver struct {
	bridge Setter
	ids    []string
	diag   *diaglog.Logger
}

// NewDriver builds a driver over the given light IDs. diag may be nil.
func NewDriver(b Setter, ids []string, diag *diaglog.Logger) *Driver {
	return &Driver{bridge: b, ids: ids, diag: diag}
}

// Apply drives a single light to the target.
func (d *Driver) Apply(ctx context.Context, id string, target Target) error {
	return d.bridge.SetState(ctx, id, target.State())
}

// ApplyAll drives every configured light to the target concurrently and
// waits for all requests to settle. Failures are logged per light and
// returned for callers that care; they never abort sibling requests.
func (d *Driver) ApplyAll(ctx context.Context, target Target) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range d.ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := d.Apply(ctx, id, target); err != nil {
				log.Printf("light %s: apply %s failed: %v", id, target, err)
				d.diag.Log(diaglog.LogEntry{
					Component: diaglog.ComponentLightDriver,
					Event:     diaglog.EventLightApplyFailed,
					Payload:   map[string]interface{}{"light": id, "target": string(target), "error": err.Error()},
				})
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}
			d.diag.Log(diaglog.LogEntry{
				Component: diaglog.ComponentLightDriver,
				Event:     diaglog.EventLightApply,
				Payload:   map[string]interface{}{"light": id, "target": string(target)},
			})
		}(id)
	}
	wg.Wait()
	return errs
}

func boolPtr(b bool) *bool    { return &b }
func u8Ptr(v uint8) *uint8    { return &v }
func u16Ptr(v uint16) *uint16 { return &v }
