package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/roastwire/roastwire/internal/adapters/history"
	"github.com/roastwire/roastwire/internal/domain"
	"github.com/roastwire/roastwire/internal/ports"
	"github.com/roastwire/roastwire/internal/protocol"
)

// stubDriver lets tests script control failures.
type stubDriver struct {
	mu       sync.Mutex
	controls map[string]float64
	failWith error
}

func newStubDriver() *stubDriver {
	return &stubDriver{controls: make(map[string]float64)}
}

func (d *stubDriver) Start(out chan<- *domain.Sample) error { return nil }
func (d *stubDriver) Stop() error                           { return nil }
func (d *stubDriver) Name() string                          { return "stub" }
func (d *stubDriver) State() ports.DriverState              { return ports.DriverConnected }
func (d *stubDriver) Status() <-chan ports.DriverStatus     { return nil }

func (d *stubDriver) SetControl(channel string, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return d.failWith
	}
	d.controls[channel] = value
	return nil
}

// frameRecorder captures broadcast frames.
type frameRecorder struct {
	mu     sync.Mutex
	frames []protocol.Message
}

func (r *frameRecorder) record(m protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, m)
}

func (r *frameRecorder) all() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Message(nil), r.frames...)
}

func (r *frameRecorder) states() []*protocol.State {
	var out []*protocol.State
	for _, m := range r.all() {
		if st, ok := m.(*protocol.State); ok {
			out = append(out, st)
		}
	}
	return out
}

func newTestSession(t *testing.T) (*Session, *frameRecorder, *stubDriver) {
	t.Helper()
	rec := &frameRecorder{}
	drv := newStubDriver()
	s := New(Config{
		MachineID: "north",
		Driver:    drv,
		History:   history.NewRing(time.Minute),
		Broadcast: rec.record,
		Now:       func() time.Time { return time.UnixMilli(1_000_000) },
	})
	return s, rec, drv
}

func TestFullLifecycleBroadcastsTransitions(t *testing.T) {
	s, rec, _ := newTestSession(t)

	for _, action := range []string{
		protocol.ActionStartMonitoring,
		protocol.ActionStartRecording,
		protocol.ActionStopRecording,
	} {
		if replies := s.HandleCommand("c1", &protocol.Command{Action: action}); len(replies) != 0 {
			t.Fatalf("%s: unexpected replies %+v", action, replies)
		}
	}

	states := rec.states()
	want := []struct{ to, from domain.SessionState }{
		{domain.StateMonitoring, domain.StateIdle},
		{domain.StateRecording, domain.StateMonitoring},
		{domain.StateFinished, domain.StateRecording},
	}
	if len(states) != len(want) {
		t.Fatalf("expected %d state frames, got %d", len(want), len(states))
	}
	for i, w := range want {
		if states[i].State != w.to || states[i].PreviousState != w.from {
			t.Fatalf("transition %d = %s←%s, want %s←%s",
				i, states[i].State, states[i].PreviousState, w.to, w.from)
		}
	}
}

func TestInvalidTransitionMutatesNothing(t *testing.T) {
	s, rec, _ := newTestSession(t)

	// start_recording straight from idle: error, no state frame.
	replies := s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionStartRecording})
	if len(replies) != 1 {
		t.Fatalf("expected one reply, got %d", len(replies))
	}
	errFrame, ok := replies[0].(*protocol.Error)
	if !ok {
		t.Fatalf("expected error frame, got %T", replies[0])
	}
	if errFrame.Code != domain.CodeInvalidStateTransition || !errFrame.Recoverable {
		t.Fatalf("unexpected error frame %+v", errFrame)
	}
	if s.State() != domain.StateIdle {
		t.Fatalf("state must stay idle, got %s", s.State())
	}
	if len(rec.states()) != 0 {
		t.Fatalf("no state frame may be broadcast on an invalid transition")
	}
}

func TestResetReturnsToIdleFromAnyState(t *testing.T) {
	s, rec, _ := newTestSession(t)

	s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionStartMonitoring})
	s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionStartRecording})
	s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionReset})

	if s.State() != domain.StateIdle {
		t.Fatalf("expected idle after reset, got %s", s.State())
	}
	states := rec.states()
	last := states[len(states)-1]
	if last.State != domain.StateIdle || last.PreviousState != domain.StateRecording {
		t.Fatalf("reset frame = %s←%s", last.State, last.PreviousState)
	}
}

func TestIngestComputesRoRAndBuffers(t *testing.T) {
	ring := history.NewRing(time.Minute)
	rec := &frameRecorder{}
	s := New(Config{
		MachineID: "north",
		Driver:    newStubDriver(),
		History:   ring,
		Broadcast: rec.record,
	})

	// 1 °C per second of BT rise = 60 °C/min.
	for i := int64(0); i <= 10; i++ {
		s.Ingest(&domain.Sample{TimestampMs: i * 1000, BT: 100 + float64(i), ET: 150})
	}

	frames := rec.all()
	last, ok := frames[len(frames)-1].(*protocol.Temperature)
	if !ok {
		t.Fatalf("expected temperature frame, got %T", frames[len(frames)-1])
	}
	if last.BTRoR < 59 || last.BTRoR > 61 {
		t.Fatalf("BT RoR = %.2f, want ~60", last.BTRoR)
	}
	if last.ETRoR != 0 {
		t.Fatalf("flat ET must have zero RoR, got %.2f", last.ETRoR)
	}
	if ring.Len() != 11 {
		t.Fatalf("all samples must be buffered, got %d", ring.Len())
	}
}

func TestSyncReplayServesBufferedSamples(t *testing.T) {
	s, _, _ := newTestSession(t)

	for i := int64(1); i <= 5; i++ {
		s.Ingest(&domain.Sample{TimestampMs: i * 1000, BT: 100, ET: 150})
	}

	var replayed []int64
	n := s.SyncReplay(2000, func(m protocol.Message) {
		replayed = append(replayed, m.(*protocol.Temperature).TimestampMs)
	})
	if n != 3 {
		t.Fatalf("replayed %d samples, want 3", n)
	}
	for i, ts := range []int64{3000, 4000, 5000} {
		if replayed[i] != ts {
			t.Fatalf("replay[%d] = %d, want %d", i, replayed[i], ts)
		}
	}

	if n := s.SyncReplay(99_000, func(protocol.Message) {}); n != 0 {
		t.Fatalf("future cutoff must replay nothing, replayed %d", n)
	}
}

func TestMarkEventValidity(t *testing.T) {
	s, rec, _ := newTestSession(t)

	// Not valid while idle.
	replies := s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionMarkEvent, EventType: domain.EventCharge})
	if len(replies) != 1 || replies[0].(*protocol.Error).Code != domain.CodeInvalidStateTransition {
		t.Fatalf("mark_event while idle must report INVALID_STATE_TRANSITION, got %+v", replies)
	}

	s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionStartMonitoring})
	s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionStartRecording})
	s.Ingest(&domain.Sample{TimestampMs: 5000, BT: 182.5, ET: 205.0})

	if replies := s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionMarkEvent, EventType: domain.EventCharge}); len(replies) != 0 {
		t.Fatalf("mark_event while recording: unexpected replies %+v", replies)
	}

	var evt *protocol.Event
	for _, m := range rec.all() {
		if e, ok := m.(*protocol.Event); ok {
			evt = e
		}
	}
	if evt == nil {
		t.Fatalf("no event frame broadcast")
	}
	if evt.AutoDetected {
		t.Fatalf("user-marked event must have auto_detected=false")
	}
	if evt.TimestampMs != 5000 || evt.BTAtEvent != 182.5 || evt.ETAtEvent != 205.0 {
		t.Fatalf("event must anchor to the latest sample, got %+v", evt)
	}

	if events := s.Events(); len(events) != 1 || events[0].Type != domain.EventCharge {
		t.Fatalf("recording event log = %+v", events)
	}

	// Unknown event types are protocol garbage, not transitions.
	replies = s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionMarkEvent, EventType: "LIFT_OFF"})
	if len(replies) != 1 || replies[0].(*protocol.Error).Code != domain.CodeInvalidMessage {
		t.Fatalf("unknown event type must report INVALID_MESSAGE, got %+v", replies)
	}
}

func TestInjectDetectedEventCarriesAutoFlag(t *testing.T) {
	s, rec, _ := newTestSession(t)

	s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionStartMonitoring})
	s.Ingest(&domain.Sample{TimestampMs: 8000, BT: 196.0, ET: 214.0})
	s.InjectDetectedEvent(domain.EventFirstCrackS, 0)

	var evt *protocol.Event
	for _, m := range rec.all() {
		if e, ok := m.(*protocol.Event); ok {
			evt = e
		}
	}
	if evt == nil || !evt.AutoDetected || evt.EventType != domain.EventFirstCrackS {
		t.Fatalf("expected auto-detected FCs frame, got %+v", evt)
	}
}

func TestControlAckPaths(t *testing.T) {
	s, _, drv := newTestSession(t)

	replies := s.HandleControl("c1", &protocol.Control{Channel: "burner", Value: 0.6})
	if len(replies) != 1 {
		t.Fatalf("expected one ack, got %d", len(replies))
	}
	ack := replies[0].(*protocol.ControlAck)
	if !ack.Applied || ack.Channel != "burner" || ack.Value != 0.6 {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if drv.controls["burner"] != 0.6 {
		t.Fatalf("control must reach the driver")
	}

	// Out of range: rejected in the ack, driver untouched.
	replies = s.HandleControl("c1", &protocol.Control{Channel: "burner", Value: 1.4})
	if ack := replies[0].(*protocol.ControlAck); ack.Applied {
		t.Fatalf("out-of-range control must not be applied")
	}

	// Driver write failure: DRIVER_WRITE_FAILED plus a negative ack.
	drv.failWith = fmt.Errorf("bus timeout")
	replies = s.HandleControl("c1", &protocol.Control{Channel: "burner", Value: 0.2})
	if len(replies) != 2 {
		t.Fatalf("expected error + ack, got %d replies", len(replies))
	}
	if e := replies[0].(*protocol.Error); e.Code != domain.CodeDriverWriteFailed || !e.Recoverable {
		t.Fatalf("unexpected error frame %+v", e)
	}
	if ack := replies[1].(*protocol.ControlAck); ack.Applied {
		t.Fatalf("failed write must not ack applied")
	}
}

func TestAdvisoryLock(t *testing.T) {
	s, _, _ := newTestSession(t)

	// First writer takes the lock.
	if replies := s.HandleControl("c1", &protocol.Control{Channel: "burner", Value: 0.5}); len(replies) != 1 {
		t.Fatalf("lock holder write failed: %+v", replies)
	}
	if s.LockHolder() != "c1" {
		t.Fatalf("lock holder = %q, want c1", s.LockHolder())
	}

	// Second client degrades to read-only.
	replies := s.HandleCommand("c2", &protocol.Command{Action: protocol.ActionStartMonitoring})
	if len(replies) != 1 {
		t.Fatalf("expected SESSION_LOCKED reply, got %+v", replies)
	}
	e := replies[0].(*protocol.Error)
	if e.Code != domain.CodeSessionLocked || !e.Recoverable {
		t.Fatalf("unexpected lock error %+v", e)
	}
	if s.State() != domain.StateIdle {
		t.Fatalf("locked-out command must not mutate state")
	}

	// Disconnect of the holder releases it.
	s.ReleaseLock("c1")
	if replies := s.HandleCommand("c2", &protocol.Command{Action: protocol.ActionStartMonitoring}); len(replies) != 0 {
		t.Fatalf("after release, c2 should write: %+v", replies)
	}
}

// archiveRecorder captures the recording handed over on stop_recording.
type archiveRecorder struct {
	mu  sync.Mutex
	rec *domain.Recording
}

func (a *archiveRecorder) WriteRecording(rec *domain.Recording) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rec = rec
	return nil
}

func (a *archiveRecorder) Name() string { return "recorder" }

func TestStopRecordingArchivesSummary(t *testing.T) {
	arch := &archiveRecorder{}
	s := New(Config{
		MachineID: "north",
		Driver:    newStubDriver(),
		History:   history.NewRing(time.Minute),
		Archive:   arch,
		Broadcast: func(protocol.Message) {},
		Now:       func() time.Time { return time.UnixMilli(2_000_000) },
	})

	s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionStartMonitoring})
	s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionStartRecording})
	s.Ingest(&domain.Sample{TimestampMs: 1000, BT: 150, ET: 180})
	s.Ingest(&domain.Sample{TimestampMs: 2000, BT: 152, ET: 181})
	s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionMarkEvent, EventType: domain.EventCharge})
	s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionStopRecording})

	if arch.rec == nil {
		t.Fatalf("archive did not receive the recording")
	}
	if arch.rec.MachineID != "north" || arch.rec.SampleCount != 2 || len(arch.rec.Events) != 1 {
		t.Fatalf("unexpected recording %+v", arch.rec)
	}
}

// slowArchive blocks each write until released so tests can observe what
// the write holds up.
type slowArchive struct {
	entered chan struct{}
	release chan struct{}
}

func (a *slowArchive) WriteRecording(*domain.Recording) error {
	a.entered <- struct{}{}
	<-a.release
	return nil
}

func (a *slowArchive) Name() string { return "slow" }

func TestArchiveWriteDoesNotStallIngest(t *testing.T) {
	arch := &slowArchive{entered: make(chan struct{}), release: make(chan struct{})}
	s := New(Config{
		MachineID: "north",
		Driver:    newStubDriver(),
		History:   history.NewRing(time.Minute),
		Archive:   arch,
		Broadcast: func(protocol.Message) {},
	})

	s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionStartMonitoring})
	s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionStartRecording})

	stopDone := make(chan struct{})
	go func() {
		s.HandleCommand("c1", &protocol.Command{Action: protocol.ActionStopRecording})
		close(stopDone)
	}()
	select {
	case <-arch.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("archive write never started")
	}

	// Telemetry keeps flowing while the archive write is in flight.
	ingested := make(chan struct{})
	go func() {
		s.Ingest(&domain.Sample{TimestampMs: 1000, BT: 150})
		close(ingested)
	}()
	select {
	case <-ingested:
	case <-time.After(time.Second):
		t.Fatalf("ingest stalled behind the archive write")
	}

	close(arch.release)
	select {
	case <-stopDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop_recording never returned")
	}
}
