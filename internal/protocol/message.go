// Package protocol defines the closed set of JSON frames exchanged on a
// live channel. Every frame is a self-describing object with a mandatory
// "type" discriminator; nothing on the wire depends on a prior frame's
// schema. Decode rejects anything outside the closed set so receivers can
// drop unknown traffic without interpreting it.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roastwire/roastwire/internal/domain"
)

// MessageType discriminates the frame union.
type MessageType string

// Server → client frame types.
const (
	TypeTemperature MessageType = "temperature"
	TypeEvent       MessageType = "event"
	TypeState       MessageType = "state"
	TypeAlarm       MessageType = "alarm"
	TypeReplay      MessageType = "replay"
	TypeControlAck  MessageType = "control_ack"
	TypeError       MessageType = "error"
	TypeConnection  MessageType = "connection"
)

// Client → server frame types.
const (
	TypeControl       MessageType = "control"
	TypeCommand       MessageType = "command"
	TypeReplayControl MessageType = "replay_control"
)

// Command actions.
const (
	ActionStartMonitoring = "start_monitoring"
	ActionStartRecording  = "start_recording"
	ActionStopRecording   = "stop_recording"
	ActionMarkEvent       = "mark_event"
	ActionReset           = "reset"
	ActionSync            = "sync"
)

// Replay control actions.
const (
	ReplayStart  = "start"
	ReplayPause  = "pause"
	ReplayResume = "resume"
	ReplayStop   = "stop"
	ReplaySeek   = "seek"
)

// ErrMissingType indicates a frame without a "type" field.
var ErrMissingType = errors.New("protocol: frame has no type")

// ErrUnknownType indicates a "type" outside the closed set.
var ErrUnknownType = errors.New("protocol: unknown frame type")

// Message is one frame of the live channel protocol.
type Message interface {
	MessageType() MessageType
}

// Temperature is one live (or replayed-via-sync) telemetry sample.
type Temperature struct {
	Type        MessageType        `json:"type"`
	TimestampMs int64              `json:"timestamp_ms"`
	ET          float64            `json:"et"`
	BT          float64            `json:"bt"`
	ETRoR       float64            `json:"et_ror"`
	BTRoR       float64            `json:"bt_ror"`
	Extra       map[string]float64 `json:"extra_channels,omitempty"`
}

func (*Temperature) MessageType() MessageType { return TypeTemperature }

// NewTemperature builds a temperature frame from a domain sample.
func NewTemperature(s *domain.Sample) *Temperature {
	return &Temperature{
		Type:        TypeTemperature,
		TimestampMs: s.TimestampMs,
		ET:          s.ET,
		BT:          s.BT,
		ETRoR:       s.ETRoR,
		BTRoR:       s.BTRoR,
		Extra:       s.Extra,
	}
}

// Event announces a roast milestone. AutoDetected distinguishes the
// detection algorithm's output from a user-marked event.
type Event struct {
	Type         MessageType      `json:"type"`
	EventType    domain.EventType `json:"event_type"`
	TimestampMs  int64            `json:"timestamp_ms"`
	AutoDetected bool             `json:"auto_detected"`
	BTAtEvent    float64          `json:"bt_at_event"`
	ETAtEvent    float64          `json:"et_at_event"`
}

func (*Event) MessageType() MessageType { return TypeEvent }

// NewEvent builds an event frame from a recorded milestone.
func NewEvent(e domain.Event) *Event {
	return &Event{
		Type:         TypeEvent,
		EventType:    e.Type,
		TimestampMs:  e.TimestampMs,
		AutoDetected: e.AutoDetected,
		BTAtEvent:    e.BT,
		ETAtEvent:    e.ET,
	}
}

// State reports a session transition. Every transition carries both the
// new and the previous state so observers never need to reconstruct
// history from ordering.
type State struct {
	Type          MessageType         `json:"type"`
	State         domain.SessionState `json:"state"`
	PreviousState domain.SessionState `json:"previous_state"`
}

func (*State) MessageType() MessageType { return TypeState }

// NewState builds a state transition frame.
func NewState(to, from domain.SessionState) *State {
	return &State{Type: TypeState, State: to, PreviousState: from}
}

// Alarm reports a threshold rule firing.
type Alarm struct {
	Type        MessageType          `json:"type"`
	AlarmID     string               `json:"alarm_id"`
	Message     string               `json:"message"`
	Severity    domain.AlarmSeverity `json:"severity"`
	TimestampMs int64                `json:"timestamp_ms"`
	BT          float64              `json:"bt"`
	ET          float64              `json:"et"`
}

func (*Alarm) MessageType() MessageType { return TypeAlarm }

// Replay is one frame of profile playback. Unlike sync catch-up (which
// reuses temperature frames), playback is a distinct stream with its own
// progress bookkeeping.
type Replay struct {
	Type            MessageType        `json:"type"`
	TimestampMs     int64              `json:"timestamp_ms"`
	ET              float64            `json:"et"`
	BT              float64            `json:"bt"`
	ETRoR           float64            `json:"et_ror"`
	BTRoR           float64            `json:"bt_ror"`
	Controls        map[string]float64 `json:"controls,omitempty"`
	ProgressPct     float64            `json:"progress_pct"`
	TotalDurationMs int64              `json:"total_duration_ms"`
}

func (*Replay) MessageType() MessageType { return TypeReplay }

// ControlAck answers a control frame. Applied false with a message is the
// only rejection path; the session state never changes on a bad control.
type ControlAck struct {
	Type    MessageType `json:"type"`
	Channel string      `json:"channel"`
	Value   float64     `json:"value"`
	Applied bool        `json:"applied"`
	Message string      `json:"message,omitempty"`
}

func (*ControlAck) MessageType() MessageType { return TypeControlAck }

// Error carries an application-level failure. The channel stays up; the
// recoverable flag tells the owner whether retrying can help.
type Error struct {
	Type        MessageType      `json:"type"`
	Code        domain.ErrorCode `json:"code"`
	Message     string           `json:"message"`
	Recoverable bool             `json:"recoverable"`
}

func (*Error) MessageType() MessageType { return TypeError }

// NewError builds an error frame, deriving recoverable from the code.
func NewError(code domain.ErrorCode, msg string) *Error {
	return &Error{Type: TypeError, Code: code, Message: msg, Recoverable: code.Recoverable()}
}

// Connection reports driver-level connectivity for the machine.
type Connection struct {
	Type        MessageType `json:"type"`
	DriverState string      `json:"driver_state"`
	DriverName  string      `json:"driver_name"`
	Message     string      `json:"message,omitempty"`
}

func (*Connection) MessageType() MessageType { return TypeConnection }

// Control sets one output channel to a normalized value in [0,1].
type Control struct {
	Type    MessageType `json:"type"`
	Channel string      `json:"channel"`
	Value   float64     `json:"value"`
}

func (*Control) MessageType() MessageType { return TypeControl }

// Command requests a session operation. EventType is set for mark_event;
// LastTimestampMs for sync.
type Command struct {
	Type            MessageType      `json:"type"`
	Action          string           `json:"action"`
	EventType       domain.EventType `json:"event_type,omitempty"`
	LastTimestampMs int64            `json:"last_timestamp_ms,omitempty"`
}

func (*Command) MessageType() MessageType { return TypeCommand }

// NewSync builds the gap-recovery command a resuming client sends first.
func NewSync(lastTimestampMs int64) *Command {
	return &Command{Type: TypeCommand, Action: ActionSync, LastTimestampMs: lastTimestampMs}
}

// ReplayControl drives profile playback.
type ReplayControl struct {
	Type      MessageType `json:"type"`
	Action    string      `json:"action"`
	ProfileID string      `json:"profile_id,omitempty"`
	Speed     float64     `json:"speed,omitempty"`
	SeekMs    int64       `json:"seek_ms,omitempty"`
}

func (*ReplayControl) MessageType() MessageType { return TypeReplayControl }

// Encode serializes a frame. The discriminator is stamped from the
// message's own type so hand-constructed values round-trip correctly.
func Encode(m Message) ([]byte, error) {
	stampType(m)
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.MessageType(), err)
	}
	return data, nil
}

// Decode parses one frame. Frames that are not JSON objects, carry no
// type, or carry a type outside the closed set are rejected; callers are
// expected to drop them without surfacing anything further.
func Decode(data []byte) (Message, error) {
	var env struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}

	var m Message
	switch env.Type {
	case TypeTemperature:
		m = &Temperature{}
	case TypeEvent:
		m = &Event{}
	case TypeState:
		m = &State{}
	case TypeAlarm:
		m = &Alarm{}
	case TypeReplay:
		m = &Replay{}
	case TypeControlAck:
		m = &ControlAck{}
	case TypeError:
		m = &Error{}
	case TypeConnection:
		m = &Connection{}
	case TypeControl:
		m = &Control{}
	case TypeCommand:
		m = &Command{}
	case TypeReplayControl:
		m = &ReplayControl{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", env.Type, err)
	}
	return m, nil
}

// stampType fills the Type field on the concrete struct so Encode output
// always carries the discriminator even for zero-constructed values.
func stampType(m Message) {
	switch v := m.(type) {
	case *Temperature:
		v.Type = TypeTemperature
	case *Event:
		v.Type = TypeEvent
	case *State:
		v.Type = TypeState
	case *Alarm:
		v.Type = TypeAlarm
	case *Replay:
		v.Type = TypeReplay
	case *ControlAck:
		v.Type = TypeControlAck
	case *Error:
		v.Type = TypeError
	case *Connection:
		v.Type = TypeConnection
	case *Control:
		v.Type = TypeControl
	case *Command:
		v.Type = TypeCommand
	case *ReplayControl:
		v.Type = TypeReplayControl
	}
}
