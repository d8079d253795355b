// Package bridge implements the HTTP client for the lighting bridge: the
// LAN hub that exposes light listing and per-light state replacement. A
// successful listing doubles as the reachability probe.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Light is one bridge-reported light.
type Light struct {
	Name  string     `json:"name"`
	Type  string     `json:"type,omitempty"`
	State LightState `json:"state"`
}

// LightState is the wire form of a light's state. Fields are pointers so an
// omitted field carries no opinion on a state-replace request; the bridge
// leaves unmentioned fields untouched.
type LightState struct {
	On  *bool   `json:"on,omitempty"`
	Bri *uint8  `json:"bri,omitempty"` // brightness, 1-254
	Hue *uint16 `json:"hue,omitempty"` // 0-65535
	Sat *uint8  `json:"sat,omitempty"` // 0-254
}

// Client talks to a single bridge. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the bridge at address (host or host:port)
// using the given credential token.
func NewClient(address, token string) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://%s/api/%s", address, token),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Lights fetches all lights known to the bridge, keyed by light ID.
func (c *Client) Lights(ctx context.Context) (map[string]Light, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/lights", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing lights: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing lights: bridge returned %s", resp.Status)
	}

	var lights map[string]Light
	if err := json.NewDecoder(resp.Body).Decode(&lights); err != nil {
		return nil, fmt.Errorf("decoding light listing: %w", err)
	}
	return lights, nil
}

// SetState issues a state-replace request for one light. Any non-success
// response is an error for that light only; callers isolate failures per
// light and never treat them as fatal.
func (c *Client) SetState(ctx context.Context, id string, state LightState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/lights/%s/state", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("setting state for light %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("setting state for light %s: bridge returned %s: %s", id, resp.Status, bytes.TrimSpace(snippet))
	}
	return nil
}
