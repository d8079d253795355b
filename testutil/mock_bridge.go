// Package testutil provides shared test helpers: a fake lighting bridge and
// log capture.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockToken is the credential the mock bridge accepts.
const MockToken = "testtoken"

// StateChange records one state-replace request received by the mock bridge.
type StateChange struct {
	LightID string
	Body    map[string]interface{}
}

// MockBridge simulates the lighting bridge HTTP API for testing: light
// listing, per-light state replacement, per-light failure injection, and a
// whole-bridge outage mode for reachability tests.
type MockBridge struct {
	srv *httptest.Server

	mu      sync.Mutex
	lights  map[string]map[string]interface{}
	puts    []StateChange
	failing map[string]bool
	down    bool
}

// NewMockBridge starts a bridge that reports the given light IDs. Callers
// must Close it.
func NewMockBridge(lightIDs ...string) *MockBridge {
	m := &MockBridge{
		lights:  make(map[string]map[string]interface{}),
		failing: make(map[string]bool),
	}
	for _, id := range lightIDs {
		m.lights[id] = map[string]interface{}{
			"name":  "Light " + id,
			"type":  "Extended color light",
			"state": map[string]interface{}{"on": false},
		}
	}
	m.srv = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts the server down.
func (m *MockBridge) Close() {
	m.srv.Close()
}

// Address returns host:port for use with bridge.NewClient.
func (m *MockBridge) Address() string {
	return strings.TrimPrefix(m.srv.URL, "http://")
}

// SetDown makes every request fail with 503, simulating an unreachable
// bridge without tearing the listener down.
func (m *MockBridge) SetDown(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

// FailLight makes state requests for one light fail with 500 while leaving
// its siblings working.
func (m *MockBridge) FailLight(id string) {
	m.mu.Lock()
	m.failing[id] = true
	m.mu.Unlock()
}

// Puts returns all recorded state changes in arrival order.
func (m *MockBridge) Puts() []StateChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StateChange(nil), m.puts...)
}

// PutsFor returns the state changes recorded for one light.
func (m *MockBridge) PutsFor(id string) []StateChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StateChange
	for _, p := range m.puts {
		if p.LightID == id {
			out = append(out, p)
		}
	}
	return out
}

// ResetPuts clears the recorded state changes.
func (m *MockBridge) ResetPuts() {
	m.mu.Lock()
	m.puts = nil
	m.mu.Unlock()
}

func (m *MockBridge) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	down := m.down
	m.mu.Unlock()
	if down {
		http.Error(w, "bridge unavailable", http.StatusServiceUnavailable)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// Expected shapes: api/{token}/lights and api/{token}/lights/{id}/state
	if len(parts) < 3 || parts[0] != "api" || parts[1] != MockToken || parts[2] != "lights" {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 3 && r.Method == http.MethodGet:
		m.mu.Lock()
		defer m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.lights)

	case len(parts) == 5 && parts[4] == "state" && r.Method == http.MethodPut:
		id := parts[3]
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.lights[id]; !ok {
			http.NotFound(w, r)
			return
		}
		if m.failing[id] {
			http.Error(w, "internal bridge error", http.StatusInternalServerError)
			return
		}
		m.puts = append(m.puts, StateChange{LightID: id, Body: body})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"success":true}]`))

	default:
		http.NotFound(w, r)
	}
}
