package reconciler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ajur/huddlelight/internal/detector"
	"github.com/ajur/huddlelight/internal/lights"
	"github.com/ajur/huddlelight/internal/windows"
	"github.com/ajur/huddlelight/testutil"
)

type fakeReader struct {
	mu   sync.Mutex
	wins []windows.WindowDescriptor
	err  error
}

func (f *fakeReader) List() ([]windows.WindowDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]windows.WindowDescriptor(nil), f.wins...), nil
}

func (f *fakeReader) set(wins ...windows.WindowDescriptor) {
	f.mu.Lock()
	f.wins = wins
	f.mu.Unlock()
}

type fakeDriver struct {
	mu    sync.Mutex
	calls []lights.Target
}

func (f *fakeDriver) ApplyAll(ctx context.Context, target lights.Target) []error {
	f.mu.Lock()
	f.calls = append(f.calls, target)
	f.mu.Unlock()
	return nil
}

func (f *fakeDriver) count(target lights.Target) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == target {
			n++
		}
	}
	return n
}

func (f *fakeDriver) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func startReconciler(t *testing.T, reader windows.Reader, driver LightDriver, remoteTimeout time.Duration) *Reconciler {
	t.Helper()
	r := New(reader, driver, nil, Config{
		PollInterval:  10 * time.Millisecond,
		RemoteTimeout: remoteTimeout,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func TestOnStartIsIdempotent(t *testing.T) {
	fd := &fakeDriver{}
	r := startReconciler(t, &fakeReader{}, fd, time.Minute)

	r.OnStart()
	waitFor(t, r.InMeeting, "meeting should start after OnStart")

	r.OnStart()
	r.OnStart()
	time.Sleep(100 * time.Millisecond)

	if got := fd.count(lights.TargetMeeting); got != 1 {
		t.Errorf("meeting target applied %d times, want exactly 1", got)
	}
}

func TestOnEndWhenNotInMeetingIsNoOp(t *testing.T) {
	fd := &fakeDriver{}
	r := startReconciler(t, &fakeReader{}, fd, time.Minute)

	r.OnEnd()
	r.OnEnd()
	time.Sleep(100 * time.Millisecond)

	if r.InMeeting() {
		t.Error("OnEnd must not start a meeting")
	}
	if got := fd.total(); got != 0 {
		t.Errorf("light driver invoked %d times, want 0", got)
	}
}

func TestLivenessExpiryRevertsExactlyOnce(t *testing.T) {
	fd := &fakeDriver{}
	r := startReconciler(t, &fakeReader{}, fd, 50*time.Millisecond)

	r.OnStart()
	waitFor(t, r.InMeeting, "meeting should start")

	// Liveness window elapses with no heartbeat and no OnEnd.
	waitFor(t, func() bool { return !r.InMeeting() }, "meeting should auto-revert after liveness expiry")

	time.Sleep(150 * time.Millisecond)
	if got := fd.count(lights.TargetIdle); got != 1 {
		t.Errorf("idle target applied %d times, want exactly 1", got)
	}
	if got := fd.count(lights.TargetMeeting); got != 1 {
		t.Errorf("meeting target applied %d times, want exactly 1", got)
	}
}

func TestHeartbeatExtendsLiveness(t *testing.T) {
	fd := &fakeDriver{}
	r := startReconciler(t, &fakeReader{}, fd, 80*time.Millisecond)

	r.OnStart()
	waitFor(t, r.InMeeting, "meeting should start")

	// Heartbeats spaced well under the liveness window keep the signal alive
	// far past several multiples of the window.
	stop := time.After(400 * time.Millisecond)
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()
heartbeats:
	for {
		select {
		case <-tick.C:
			r.OnHeartbeat()
			if !r.InMeeting() {
				t.Fatal("meeting expired despite heartbeats")
			}
		case <-stop:
			break heartbeats
		}
	}

	// Silence now lets it expire.
	waitFor(t, func() bool { return !r.InMeeting() }, "meeting should expire once heartbeats stop")
}

func TestHeartbeatWithoutStartIsIgnored(t *testing.T) {
	fd := &fakeDriver{}
	r := startReconciler(t, &fakeReader{}, fd, 50*time.Millisecond)

	r.OnHeartbeat()
	time.Sleep(100 * time.Millisecond)

	if r.InMeeting() {
		t.Error("heartbeat alone must not start a meeting")
	}
}

func TestORReductionKeepsMeetingWhileAnySourceActive(t *testing.T) {
	fr := &fakeReader{}
	fd := &fakeDriver{}
	r := startReconciler(t, fr, fd, time.Minute)

	// Slack huddle appears locally, then the remote channel starts too.
	fr.set(windows.WindowDescriptor{Title: "\U0001F3E0 huddle", OwnerName: "Slack"})
	waitFor(t, r.InMeeting, "meeting should start from local signal")
	r.OnStart()
	time.Sleep(50 * time.Millisecond)

	// Remote ends first: the surviving local signal keeps the meeting up.
	r.OnEnd()
	time.Sleep(100 * time.Millisecond)
	if !r.InMeeting() {
		t.Fatal("meeting ended while a local signal was still active")
	}
	if got := fd.count(lights.TargetIdle); got != 0 {
		t.Errorf("idle applied %d times while still in meeting", got)
	}

	// Local signal disappears: now all three are false.
	fr.set()
	waitFor(t, func() bool { return !r.InMeeting() }, "meeting should end when all sources clear")
	if got := fd.count(lights.TargetMeeting); got != 1 {
		t.Errorf("meeting target applied %d times, want exactly 1", got)
	}
	if got := fd.count(lights.TargetIdle); got != 1 {
		t.Errorf("idle target applied %d times, want exactly 1", got)
	}
}

func TestLocalWindowDrivesFullCycle(t *testing.T) {
	fr := &fakeReader{}
	fd := &fakeDriver{}
	r := startReconciler(t, fr, fd, time.Minute)

	time.Sleep(50 * time.Millisecond)
	if fd.total() != 0 {
		t.Fatal("no light operation expected before any signal")
	}

	fr.set(windows.WindowDescriptor{Title: "\U0001F3E0 huddle", OwnerName: "Slack"})
	waitFor(t, r.InMeeting, "meeting should start when huddle window appears")
	if snap := r.Snapshot(); snap.Source != string(detector.SourceSlack) {
		t.Errorf("source = %q, want slack", snap.Source)
	}

	fr.set()
	waitFor(t, func() bool { return !r.InMeeting() }, "meeting should end when window disappears")

	if m, i := fd.count(lights.TargetMeeting), fd.count(lights.TargetIdle); m != 1 || i != 1 {
		t.Errorf("driver calls: meeting=%d idle=%d, want 1/1", m, i)
	}
}

func TestTieBreakPrefersSlackOverZoomOverRemote(t *testing.T) {
	fr := &fakeReader{}
	fd := &fakeDriver{}
	r := startReconciler(t, fr, fd, time.Minute)

	fr.set(
		windows.WindowDescriptor{Title: "Zoom Meeting", OwnerName: "zoom.us"},
		windows.WindowDescriptor{Title: "huddle", OwnerName: "Slack"},
	)
	waitFor(t, r.InMeeting, "meeting should start")

	if snap := r.Snapshot(); snap.Source != string(detector.SourceSlack) {
		t.Errorf("source = %q, want slack when both local sources fire", snap.Source)
	}
}

func TestCapabilityDeniedDegradesToRemoteOnly(t *testing.T) {
	lc := testutil.NewLogCapture()
	lc.Start()
	defer lc.Stop()

	fr := &fakeReader{err: fmt.Errorf("screen recording refused: %w", windows.ErrCapabilityDenied)}
	fd := &fakeDriver{}
	r := startReconciler(t, fr, fd, time.Minute)

	// Several poll cycles with the denial in place.
	time.Sleep(120 * time.Millisecond)

	if r.InMeeting() {
		t.Error("denied local signals must read false")
	}
	if got := lc.Count("window enumeration denied"); got != 1 {
		t.Errorf("denial logged %d times, want exactly once", got)
	}

	// Remote channel still works.
	r.OnStart()
	waitFor(t, r.InMeeting, "remote signal should still start a meeting")
	if snap := r.Snapshot(); snap.Source != string(detector.SourceRemote) {
		t.Errorf("source = %q, want remote", snap.Source)
	}
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	fd := &fakeDriver{}
	r := startReconciler(t, &fakeReader{}, fd, time.Minute)

	ch, cancel := r.Subscribe()
	defer cancel()

	r.OnStart()
	select {
	case snap := <-ch:
		if !snap.InMeeting || !snap.Remote {
			t.Errorf("unexpected snapshot: %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered for meeting start")
	}

	r.OnEnd()
	select {
	case snap := <-ch:
		if snap.InMeeting {
			t.Errorf("expected end snapshot, got %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered for meeting end")
	}
}

func TestRunRestartsWithoutOverlap(t *testing.T) {
	fr := &fakeReader{}
	fd := &fakeDriver{}
	r := New(fr, fd, nil, Config{
		PollInterval:  10 * time.Millisecond,
		RemoteTimeout: time.Minute,
	})

	ctx1, cancel1 := context.WithCancel(context.Background())
	first := make(chan struct{})
	go func() {
		defer close(first)
		r.Run(ctx1)
	}()

	r.OnStart()
	waitFor(t, r.InMeeting, "first loop should start the meeting")

	// Restart immediately after cancelling; the second loop must wait for
	// the first to drain, then keep serving the surviving state.
	cancel1()
	ctx2, cancel2 := context.WithCancel(context.Background())
	second := make(chan struct{})
	go func() {
		defer close(second)
		r.Run(ctx2)
	}()

	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("first loop did not exit")
	}

	if !r.InMeeting() {
		t.Error("meeting state lost across restart")
	}
	r.OnEnd()
	waitFor(t, func() bool { return !r.InMeeting() }, "second loop should end the meeting")

	cancel2()
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second loop did not exit")
	}
}
