// Package detector classifies a window snapshot into per-source meeting
// presence signals. Detection is a pure function over the snapshot: no side
// effects, no state, order-independent.
package detector

import (
	"strings"

	"github.com/ajur/huddlelight/internal/windows"
)

// Source identifies which presence signal caused a meeting transition. Used
// for logging only; it never affects the OR-reduction itself.
type Source string

const (
	SourceNone   Source = ""
	SourceSlack  Source = "slack"
	SourceZoom   Source = "zoom"
	SourceRemote Source = "remote"
)

// huddleGlyph is the headset emoji Slack prepends to huddle window titles.
const huddleGlyph = "\U0001F3A7"

// Signals holds the locally detected presence booleans, recomputed on every
// evaluation cycle.
type Signals struct {
	Slack bool
	Zoom  bool
}

// Any reports whether at least one local source is active.
func (s Signals) Any() bool {
	return s.Slack || s.Zoom
}

// Detect evaluates a window snapshot. An empty snapshot yields both signals
// false. Shuffling the snapshot yields identical results.
func Detect(wins []windows.WindowDescriptor) Signals {
	var s Signals
	for _, w := range wins {
		if !s.Slack && isSlackHuddle(w) {
			s.Slack = true
		}
		if !s.Zoom && isZoomMeeting(w) {
			s.Zoom = true
		}
		if s.Slack && s.Zoom {
			break
		}
	}
	return s
}

// isSlackHuddle matches windows owned exactly by Slack whose title carries
// the huddle glyph or the word "huddle" in any casing.
func isSlackHuddle(w windows.WindowDescriptor) bool {
	if w.OwnerName != "Slack" {
		return false
	}
	return strings.Contains(w.Title, huddleGlyph) ||
		strings.Contains(strings.ToLower(w.Title), "huddle")
}

// isZoomMeeting matches any zoom-owned window whose title names an active
// meeting. Lobby and settings windows do not contain "zoom meeting".
func isZoomMeeting(w windows.WindowDescriptor) bool {
	return strings.Contains(strings.ToLower(w.OwnerName), "zoom") &&
		strings.Contains(strings.ToLower(w.Title), "zoom meeting")
}
