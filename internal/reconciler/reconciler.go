// Package reconciler owns the single authoritative "in meeting" boolean. It
// merges the locally polled window signals with the remote webhook channel,
// decides meeting transitions, and drives the light driver on each one.
//
// All inputs (poll ticks, webhook calls, liveness expiry) are delivered as
// events on one channel and processed by a single goroutine, so transitions
// are atomic with respect to each other and no state is mutated against a
// stale snapshot.
package reconciler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ajur/huddlelight/internal/detector"
	"github.com/ajur/huddlelight/internal/diaglog"
	"github.com/ajur/huddlelight/internal/lights"
	"github.com/ajur/huddlelight/internal/windows"
)

// LightDriver is the slice of the light driver the reconciler invokes on
// transitions. Failures are handled inside the driver; the transition
// completes regardless.
type LightDriver interface {
	ApplyAll(ctx context.Context, target lights.Target) []error
}

// Config carries the reconciler timing knobs.
type Config struct {
	PollInterval  time.Duration
	RemoteTimeout time.Duration
}

// Snapshot is a point-in-time copy of reconciler state, used by the status
// endpoints and the websocket stream.
type Snapshot struct {
	InMeeting bool      `json:"in_meeting"`
	Source    string    `json:"source,omitempty"` // what entered the meeting, logging only
	SessionID string    `json:"session_id,omitempty"`
	Slack     bool      `json:"slack_active"`
	Zoom      bool      `json:"zoom_active"`
	Remote    bool      `json:"remote_active"`
	Since     time.Time `json:"since"` // zero when not in a meeting
	Timestamp time.Time `json:"timestamp"`
}

type eventKind int

const (
	evPoll eventKind = iota
	evRemoteStart
	evRemoteHeartbeat
	evRemoteEnd
	evLivenessExpired
)

type event struct {
	kind eventKind
	gen  uint64 // liveness generation, expiry events only
}

// Reconciler is the core meeting state machine.
type Reconciler struct {
	reader windows.Reader
	driver LightDriver
	diag   *diaglog.Logger
	cfg    Config

	events chan event

	// loopMu is held for the duration of Run so only one loop goroutine can
	// exist at a time; a restart waits for the previous loop to drain.
	loopMu sync.Mutex

	// Loop-owned; never touched outside the Run goroutine.
	gen                 uint64
	timer               *time.Timer
	localDenied         bool
	deniedOnce          sync.Once
	noMeetingLogCounter int

	// Shared with Snapshot/Subscribe readers.
	mu        sync.Mutex
	inMeeting bool
	local     detector.Signals
	remote    bool
	source    detector.Source
	sessionID string
	since     time.Time
	subs      map[int]chan Snapshot
	nextSub   int
}

// New builds a reconciler. diag may be nil.
func New(reader windows.Reader, driver LightDriver, diag *diaglog.Logger, cfg Config) *Reconciler {
	return &Reconciler{
		reader: reader,
		driver: driver,
		diag:   diag,
		cfg:    cfg,
		events: make(chan event, 16),
		subs:   make(map[int]chan Snapshot),
	}
}

// OnStart marks the remote presence channel active and arms the liveness
// timer. Idempotent: a repeated start while already active is a no-op.
func (r *Reconciler) OnStart() { r.post(event{kind: evRemoteStart}) }

// OnHeartbeat refreshes the liveness timer without changing meeting state.
// Ignored when the remote channel is not active.
func (r *Reconciler) OnHeartbeat() { r.post(event{kind: evRemoteHeartbeat}) }

// OnEnd clears the remote presence channel. Idempotent when not active.
func (r *Reconciler) OnEnd() { r.post(event{kind: evRemoteEnd}) }

func (r *Reconciler) post(ev event) {
	select {
	case r.events <- ev:
	default:
		log.Printf("reconciler: event queue full, dropping event %d", ev.kind)
	}
}

// Run processes events until ctx is done. It polls the local signals once
// immediately and then on every poll interval. The liveness timer is always
// cancelled on exit so a suspended reconciler holds no pending expiry.
// Invocations are serialised: a Run started while a previous one is still
// draining blocks until that loop has exited.
func (r *Reconciler) Run(ctx context.Context) {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	defer r.cancelLiveness()

	// The remote signal survives a bridge outage; if it is still active on
	// resume, its staleness guard has to be re-armed.
	if r.remoteActive() {
		r.armLiveness()
	}

	r.handle(ctx, event{kind: evPoll})

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.handle(ctx, event{kind: evPoll})
		case ev := <-r.events:
			r.handle(ctx, ev)
		}
	}
}

func (r *Reconciler) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evPoll:
		r.pollLocal()
		r.evaluate(ctx, "poll")

	case evRemoteStart:
		if r.remoteActive() {
			log.Println("remote meeting-start ignored: already active")
			return
		}
		r.setRemote(true)
		r.armLiveness()
		r.diag.Log(diaglog.LogEntry{Component: diaglog.ComponentReconciler, Event: diaglog.EventRemoteStart})
		r.evaluate(ctx, "remote-start")

	case evRemoteHeartbeat:
		if !r.remoteActive() {
			return
		}
		r.armLiveness()
		r.diag.Log(diaglog.LogEntry{Component: diaglog.ComponentReconciler, Event: diaglog.EventRemoteHeartbeat})

	case evRemoteEnd:
		r.diag.Log(diaglog.LogEntry{Component: diaglog.ComponentReconciler, Event: diaglog.EventRemoteEnd})
		r.endRemote(ctx, "remote-end")

	case evLivenessExpired:
		if ev.gen != r.gen || !r.remoteActive() {
			return // superseded by a later heartbeat/end
		}
		log.Printf("remote presence expired: no heartbeat within %s", r.cfg.RemoteTimeout)
		r.diag.Log(diaglog.LogEntry{Component: diaglog.ComponentReconciler, Event: diaglog.EventLivenessExpired})
		r.endRemote(ctx, "liveness-expired")
	}
}

// endRemote handles both an explicit remote end and a liveness expiry: the
// two are deliberately identical so a crashed browser agent behaves like one
// that said goodbye.
func (r *Reconciler) endRemote(ctx context.Context, trigger string) {
	r.cancelLiveness()
	if !r.remoteActive() {
		return
	}

	// Local signals are re-read at the point of mutation, not taken from the
	// last poll: a huddle that started mid-flight must keep the meeting up.
	r.pollLocal()
	r.setRemote(false)

	r.mu.Lock()
	superseded := r.inMeeting && r.local.Any()
	local := r.local
	r.mu.Unlock()
	if superseded {
		log.Printf("remote meeting end superseded by local signal (%s); staying in meeting", tieBreak(local, false))
	}

	r.evaluate(ctx, trigger)
}

// evaluate OR-reduces the three presence signals against the current state
// and fires at most one transition. The transition is committed before the
// lights are driven; light failures never roll it back.
func (r *Reconciler) evaluate(ctx context.Context, trigger string) {
	r.mu.Lock()
	active := r.local.Slack || r.local.Zoom || r.remote

	switch {
	case active && !r.inMeeting:
		r.inMeeting = true
		r.source = tieBreak(r.local, r.remote)
		r.sessionID = uuid.NewString()
		r.since = time.Now()
		snap := r.snapshotLocked()
		r.mu.Unlock()

		log.Printf("[EVENT] meeting started (source=%s, trigger=%s, session=%s)", snap.Source, trigger, snap.SessionID)
		r.diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentReconciler,
			Event:     diaglog.EventMeetingStart,
			SessionID: snap.SessionID,
			Reason:    snap.Source,
		})
		r.notify(snap)
		r.driver.ApplyAll(ctx, lights.TargetMeeting)

	case !active && r.inMeeting:
		sessionID := r.sessionID
		duration := time.Since(r.since)
		r.inMeeting = false
		r.source = detector.SourceNone
		r.sessionID = ""
		r.since = time.Time{}
		snap := r.snapshotLocked()
		r.mu.Unlock()

		log.Printf("[EVENT] meeting ended after %s (trigger=%s, session=%s)", duration.Round(time.Second), trigger, sessionID)
		r.diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentReconciler,
			Event:     diaglog.EventMeetingEnd,
			SessionID: sessionID,
			Reason:    trigger,
		})
		r.notify(snap)
		r.driver.ApplyAll(ctx, lights.TargetIdle)

	default:
		inMeeting := r.inMeeting
		r.mu.Unlock()
		if trigger == "poll" && !inMeeting {
			// Log "no meeting" only every 20 polls to keep the log readable.
			r.noMeetingLogCounter++
			if r.noMeetingLogCounter >= 20 {
				log.Println("no meeting detected")
				r.noMeetingLogCounter = 0
			}
		}
	}
}

// pollLocal refreshes the local presence signals from a fresh window
// snapshot. A capability refusal permanently forces both local signals false
// and is logged exactly once; transient failures keep the previous signals.
func (r *Reconciler) pollLocal() {
	if r.localDenied {
		return
	}

	wins, err := r.reader.List()
	if err != nil {
		if errors.Is(err, windows.ErrCapabilityDenied) {
			r.deniedOnce.Do(func() {
				log.Printf("window enumeration denied, continuing on remote signal only: %v", err)
				r.diag.Log(diaglog.LogEntry{
					Component: diaglog.ComponentReconciler,
					Event:     diaglog.EventCapabilityDenied,
					Reason:    err.Error(),
				})
			})
			r.localDenied = true
			r.setLocal(detector.Signals{})
			return
		}
		log.Printf("window enumeration failed: %v", err)
		return
	}

	r.setLocal(detector.Detect(wins))
}

// tieBreak picks the source reported in the meeting-start log message.
// Priority Slack > Zoom > Remote; it has no effect on the OR-reduction.
func tieBreak(local detector.Signals, remote bool) detector.Source {
	switch {
	case local.Slack:
		return detector.SourceSlack
	case local.Zoom:
		return detector.SourceZoom
	case remote:
		return detector.SourceRemote
	}
	return detector.SourceNone
}

// armLiveness schedules a liveness expiry, cancelling any prior timer first
// so two timers never compete. Loop goroutine only.
func (r *Reconciler) armLiveness() {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	gen := r.gen
	r.timer = time.AfterFunc(r.cfg.RemoteTimeout, func() {
		r.post(event{kind: evLivenessExpired, gen: gen})
	})
}

// cancelLiveness stops the timer and invalidates any expiry already in
// flight. Loop goroutine only.
func (r *Reconciler) cancelLiveness() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gen++
}

func (r *Reconciler) remoteActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remote
}

func (r *Reconciler) setRemote(active bool) {
	r.mu.Lock()
	r.remote = active
	r.mu.Unlock()
}

func (r *Reconciler) setLocal(s detector.Signals) {
	r.mu.Lock()
	r.local = s
	r.mu.Unlock()
}

// InMeeting reports the current authoritative meeting state.
func (r *Reconciler) InMeeting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inMeeting
}

// Snapshot returns a copy of the current state.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() Snapshot {
	return Snapshot{
		InMeeting: r.inMeeting,
		Source:    string(r.source),
		SessionID: r.sessionID,
		Slack:     r.local.Slack,
		Zoom:      r.local.Zoom,
		Remote:    r.remote,
		Since:     r.since,
		Timestamp: time.Now(),
	}
}

// Subscribe registers for transition snapshots. The returned cancel func
// must be called when the subscriber goes away. Slow subscribers miss
// updates rather than block the state machine.
func (r *Reconciler) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
	return ch, cancel
}

func (r *Reconciler) notify(snap Snapshot) {
	r.mu.Lock()
	chans := make([]chan Snapshot, 0, len(r.subs))
	for _, ch := range r.subs {
		chans = append(chans, ch)
	}
	r.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- snap:
		default:
		}
	}
}
