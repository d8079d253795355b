// Package diaglog provides structured NDJSON diagnostic logging for
// huddlelight. Activated by HUDDLELIGHT_DEBUG=true. When the env var is
// absent, all Log calls are no-ops and no file is created.
package diaglog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// ── Component labels ─────────────────────────────────────────────────────────

const (
	ComponentReconciler   = "reconciler"
	ComponentBridgeClient = "bridge-client"
	ComponentReachability = "reachability-monitor"
	ComponentWebhook      = "webhook-server"
	ComponentLightDriver  = "light-driver"
	ComponentCore         = "huddlelight-core"
)

// ── Event names ──────────────────────────────────────────────────────────────

const (
	EventMeetingStart     = "meeting_start"
	EventMeetingEnd       = "meeting_end"
	EventRemoteStart      = "remote_start"
	EventRemoteHeartbeat  = "remote_heartbeat"
	EventRemoteEnd        = "remote_end"
	EventLivenessExpired  = "liveness_expired"
	EventBridgeOnline     = "bridge_online"
	EventBridgeOffline    = "bridge_offline"
	EventLightApply       = "light_apply"
	EventLightApplyFailed = "light_apply_failed"
	EventCapabilityDenied = "capability_denied"
	EventConfigReload     = "config_reload"
)

// Version is stamped by the CLI at startup and recorded on every entry.
var Version = "dev"

// ── LogEntry ─────────────────────────────────────────────────────────────────

// LogEntry is one structured event record written as a single JSON line.
type LogEntry struct {
	Timestamp string      `json:"ts"` // RFC3339Nano
	Version   string      `json:"version,omitempty"`
	Component string      `json:"component"`            // see Component* constants
	Event     string      `json:"event"`                // see Event* constants
	SessionID string      `json:"session_id,omitempty"` // per-meeting UUID
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload,omitempty"` // redacted before write
}

// ── Logger ───────────────────────────────────────────────────────────────────

// Logger writes LogEntry values to a rolling NDJSON file. When debug mode is
// disabled every Log call is a no-op.
type Logger struct {
	rw      *rollingWriter
	mu      sync.Mutex
	enabled bool
}

// New opens (or creates) the NDJSON log file at path. If debug mode is
// disabled, path is ignored and a no-op logger is returned.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return &Logger{enabled: false}, nil
	}
	rw, err := newRollingWriter(path, 10*1024*1024)
	if err != nil {
		return nil, err
	}
	return &Logger{rw: rw, enabled: true}, nil
}

// Log serialises entry to JSON, appends a newline, and writes to the rolling
// file. Sensitive payload fields (bridge credentials) are redacted before
// serialisation.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if entry.Version == "" {
		entry.Version = Version
	}
	if entry.Payload != nil {
		entry.Payload = Redact(entry.Payload)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.rw.Write(data)
}

// Close flushes and closes the underlying file. Safe on nil/disabled logger.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.rw == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rw.close()
}

// IsDebugEnabled reports whether HUDDLELIGHT_DEBUG is set to "true".
func IsDebugEnabled() bool {
	return os.Getenv("HUDDLELIGHT_DEBUG") == "true"
}

// NewNoOp returns a logger where every Log call is a no-op. Use as a safe
// fallback when New fails (e.g., disk full, permissions error).
func NewNoOp() *Logger {
	return &Logger{enabled: false}
}
