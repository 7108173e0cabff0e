// Package session implements the server-side roast session: the
// idle/monitoring/recording/finished state machine, control application,
// the event log, alarms, and profile playback. A session outlives every
// client connection; channels are transient views onto it.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/roastwire/roastwire/internal/domain"
	"github.com/roastwire/roastwire/internal/ports"
	"github.com/roastwire/roastwire/internal/protocol"
)

// Broadcaster fans a frame out to every connection observing the machine.
// Implementations must not block: the session invokes it while holding its
// own lock so that sync replay and live forwarding stay serialized.
type Broadcaster func(protocol.Message)

// Config wires a session's collaborators.
type Config struct {
	MachineID string
	Driver    ports.Driver
	History   ports.HistoryStore
	Archive   ports.Archive       // optional
	Profiles  ports.ProfileSource // optional, enables replay
	Obs       ports.Observability
	Broadcast Broadcaster
	Alarms    []AlarmRule
	RoRWindow time.Duration

	// Now is the session clock; defaults to time.Now. Tests pin it.
	Now func() time.Time
}

// Session is the single writer for one machine's state. All mutation goes
// through its lock; observing channels only ever send it messages.
type Session struct {
	machineID string
	driver    ports.Driver
	history   ports.HistoryStore
	archive   ports.Archive
	obs       ports.Observability
	broadcast Broadcaster
	now       func() time.Time

	mu               sync.Mutex
	state            domain.SessionState
	events           []domain.Event
	recordingStartMs int64
	sampleCount      int
	lastTs           int64
	lastET, lastBT   float64
	etRoR, btRoR     *rorTracker
	alarms           *alarmSet
	lockHolder       string
	replay           *replayer
}

// validTransitions is the command-driven transition table. reset is
// handled separately: it returns to idle from any state.
var validTransitions = map[string]struct{ from, to domain.SessionState }{
	protocol.ActionStartMonitoring: {domain.StateIdle, domain.StateMonitoring},
	protocol.ActionStartRecording:  {domain.StateMonitoring, domain.StateRecording},
	protocol.ActionStopRecording:   {domain.StateRecording, domain.StateFinished},
}

func New(cfg Config) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RoRWindow <= 0 {
		cfg.RoRWindow = 20 * time.Second
	}
	s := &Session{
		machineID: cfg.MachineID,
		driver:    cfg.Driver,
		history:   cfg.History,
		archive:   cfg.Archive,
		obs:       cfg.Obs,
		broadcast: cfg.Broadcast,
		now:       cfg.Now,
		state:     domain.StateIdle,
		etRoR:     newRoRTracker(cfg.RoRWindow),
		btRoR:     newRoRTracker(cfg.RoRWindow),
		alarms:    newAlarmSet(cfg.Alarms),
	}
	s.replay = newReplayer(cfg.MachineID, cfg.Profiles, s.emit)
	return s
}

// emit guards against a nil broadcaster so sessions are usable in tests
// without a hub.
func (s *Session) emit(m protocol.Message) {
	if s.broadcast != nil {
		s.broadcast(m)
	}
}

// State returns the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ingest accepts one driver sample: computes rate-of-rise, appends to the
// history buffer, evaluates alarms, and broadcasts the temperature frame.
// Append and broadcast happen under one lock so a concurrent sync replay
// can never interleave a stale sample after a newer live one.
func (s *Session) Ingest(sample *domain.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample.ETRoR = s.etRoR.add(sample.TimestampMs, sample.ET)
	sample.BTRoR = s.btRoR.add(sample.TimestampMs, sample.BT)
	s.lastTs = sample.TimestampMs
	s.lastET = sample.ET
	s.lastBT = sample.BT
	if s.state == domain.StateRecording {
		s.sampleCount++
	}

	s.history.Append(sample)
	s.emit(protocol.NewTemperature(sample))

	if s.state == domain.StateMonitoring || s.state == domain.StateRecording {
		for _, alarm := range s.alarms.evaluate(sample) {
			if s.obs != nil {
				s.obs.IncCounter("roastwire_alarms_fired_total", 1)
			}
			s.emit(alarm)
		}
	}
}

// SyncReplay streams every buffered sample newer than lastTimestampMs to
// emit, in timestamp order, as ordinary temperature frames. It holds the
// session lock for the duration so live forwarding resumes only after the
// catch-up is fully enqueued. Returns the number of replayed samples.
func (s *Session) SyncReplay(lastTimestampMs int64, emit func(protocol.Message)) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := s.history.ReplaySince(lastTimestampMs)
	for _, sample := range samples {
		emit(protocol.NewTemperature(sample))
	}
	return len(samples)
}

// HandleCommand applies a session command (everything except sync, which
// the channel layer services from the history buffer). The returned
// frames are replies for the issuing client only; state transitions and
// events reach everyone through the broadcaster.
func (s *Session) HandleCommand(clientID string, cmd *protocol.Command) []protocol.Message {
	s.mu.Lock()
	replies, finished := s.applyCommand(clientID, cmd)
	s.mu.Unlock()

	// The archive write happens outside the lock so a slow database
	// cannot stall ingest and fan-out for the machine.
	if finished != nil {
		s.archiveRecording(finished)
	}
	return replies
}

// applyCommand routes one command under s.mu and returns the replies
// plus the finished recording snapshot, if stop_recording produced one.
func (s *Session) applyCommand(clientID string, cmd *protocol.Command) ([]protocol.Message, *domain.Recording) {
	if reply := s.acquireLock(clientID); reply != nil {
		return []protocol.Message{reply}, nil
	}

	switch cmd.Action {
	case protocol.ActionStartMonitoring, protocol.ActionStartRecording, protocol.ActionStopRecording:
		return s.applyTransition(cmd.Action)
	case protocol.ActionMarkEvent:
		return s.markEvent(cmd.EventType), nil
	case protocol.ActionReset:
		s.transitionTo(domain.StateIdle)
		return nil, nil
	default:
		return []protocol.Message{protocol.NewError(domain.CodeInvalidMessage,
			fmt.Sprintf("unknown command action %q", cmd.Action))}, nil
	}
}

// applyTransition validates a command against the transition table. An
// invalid request mutates nothing and reports INVALID_STATE_TRANSITION.
func (s *Session) applyTransition(action string) ([]protocol.Message, *domain.Recording) {
	t := validTransitions[action]
	if s.state != t.from {
		return []protocol.Message{protocol.NewError(domain.CodeInvalidStateTransition,
			fmt.Sprintf("%s requires state %s, session is %s", action, t.from, s.state))}, nil
	}

	var finished *domain.Recording
	switch action {
	case protocol.ActionStartRecording:
		s.recordingStartMs = s.now().UnixMilli()
		s.sampleCount = 0
		s.events = nil
	case protocol.ActionStopRecording:
		finished = s.snapshotRecording()
	}

	s.transitionTo(t.to)
	return nil, finished
}

// transitionTo moves the state machine and broadcasts the transition with
// both new and previous state.
func (s *Session) transitionTo(to domain.SessionState) {
	from := s.state
	s.state = to
	s.emit(protocol.NewState(to, from))
}

// snapshotRecording captures the finished roast while s.mu is held. Nil
// when no archive is configured.
func (s *Session) snapshotRecording() *domain.Recording {
	if s.archive == nil {
		return nil
	}
	return &domain.Recording{
		MachineID:   s.machineID,
		StartedMs:   s.recordingStartMs,
		FinishedMs:  s.now().UnixMilli(),
		SampleCount: s.sampleCount,
		Events:      append([]domain.Event(nil), s.events...),
	}
}

// archiveRecording hands a snapshot to the archive. Failures are logged,
// never surfaced on the channel: the roast is finished either way.
func (s *Session) archiveRecording(rec *domain.Recording) {
	if err := s.archive.WriteRecording(rec); err != nil && s.obs != nil {
		s.obs.LogError("archive_write_failed", err,
			ports.Field{Key: "machine", Value: s.machineID})
	}
}

// markEvent records a user-marked milestone at the latest sample's
// coordinates. Accepted while monitoring or recording; only recording
// appends to the roast's event log.
func (s *Session) markEvent(eventType domain.EventType) []protocol.Message {
	if s.state != domain.StateMonitoring && s.state != domain.StateRecording {
		return []protocol.Message{protocol.NewError(domain.CodeInvalidStateTransition,
			fmt.Sprintf("mark_event not valid while %s", s.state))}
	}
	if !domain.KnownEventType(eventType) {
		return []protocol.Message{protocol.NewError(domain.CodeInvalidMessage,
			fmt.Sprintf("unknown event type %q", eventType))}
	}

	e := domain.Event{
		Type:         eventType,
		TimestampMs:  s.eventTimestamp(),
		AutoDetected: false,
		BT:           s.lastBT,
		ET:           s.lastET,
	}
	s.recordEvent(e)
	return nil
}

// InjectDetectedEvent delivers an event from the external auto-detection
// algorithm. Delivery is ordered with live telemetry because it goes
// through the same lock and broadcaster.
func (s *Session) InjectDetectedEvent(eventType domain.EventType, timestampMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timestampMs == 0 {
		timestampMs = s.eventTimestamp()
	}
	s.recordEvent(domain.Event{
		Type:         eventType,
		TimestampMs:  timestampMs,
		AutoDetected: true,
		BT:           s.lastBT,
		ET:           s.lastET,
	})
}

func (s *Session) recordEvent(e domain.Event) {
	if s.state == domain.StateRecording {
		s.events = append(s.events, e)
	}
	s.emit(protocol.NewEvent(e))
}

// eventTimestamp anchors events to the latest telemetry sample when one
// exists, falling back to the session clock before any sample arrived.
func (s *Session) eventTimestamp() int64 {
	if s.lastTs > 0 {
		return s.lastTs
	}
	return s.now().UnixMilli()
}

// HandleControl applies a normalized control value through the driver and
// answers with a control_ack. Validation failures are acks with
// applied=false; driver write failures are DRIVER_WRITE_FAILED errors.
func (s *Session) HandleControl(clientID string, ctl *protocol.Control) []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reply := s.acquireLock(clientID); reply != nil {
		return []protocol.Message{reply}
	}

	if ctl.Value < 0 || ctl.Value > 1 {
		return []protocol.Message{&protocol.ControlAck{
			Channel: ctl.Channel,
			Value:   ctl.Value,
			Applied: false,
			Message: "value outside [0,1]",
		}}
	}

	if err := s.driver.SetControl(ctl.Channel, ctl.Value); err != nil {
		return []protocol.Message{
			protocol.NewError(domain.CodeDriverWriteFailed, err.Error()),
			&protocol.ControlAck{Channel: ctl.Channel, Value: ctl.Value, Applied: false, Message: err.Error()},
		}
	}

	return []protocol.Message{&protocol.ControlAck{
		Channel: ctl.Channel,
		Value:   ctl.Value,
		Applied: true,
	}}
}

// HandleReplayControl drives profile playback. Playback starts only from
// an idle session; a live roast is never mixed with a replay stream.
func (s *Session) HandleReplayControl(clientID string, rc *protocol.ReplayControl) []protocol.Message {
	s.mu.Lock()
	if reply := s.acquireLock(clientID); reply != nil {
		s.mu.Unlock()
		return []protocol.Message{reply}
	}
	state := s.state
	s.mu.Unlock()

	if rc.Action == protocol.ReplayStart && state != domain.StateIdle {
		return []protocol.Message{protocol.NewError(domain.CodeInvalidStateTransition,
			fmt.Sprintf("replay requires an idle session, session is %s", state))}
	}
	return s.replay.handle(rc)
}

// acquireLock implements the advisory write lock: the first writer takes
// it, everyone else gets SESSION_LOCKED and stays read-only. Returns nil
// when clientID may write.
func (s *Session) acquireLock(clientID string) protocol.Message {
	if s.lockHolder == "" {
		s.lockHolder = clientID
		return nil
	}
	if s.lockHolder != clientID {
		return protocol.NewError(domain.CodeSessionLocked, "another client is controlling this machine")
	}
	return nil
}

// ReleaseLock frees the advisory lock when its holder disconnects.
func (s *Session) ReleaseLock(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockHolder == clientID {
		s.lockHolder = ""
	}
}

// LockHolder returns the advisory lock owner, empty when unheld.
func (s *Session) LockHolder() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lockHolder
}

// Events returns a copy of the active recording's event log.
func (s *Session) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

// Close stops any running playback. Called when the hub shuts down.
func (s *Session) Close() {
	s.replay.stop()
}
