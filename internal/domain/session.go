package domain

// SessionState is the server-side roast session lifecycle state.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateMonitoring SessionState = "monitoring"
	StateRecording  SessionState = "recording"
	StateFinished   SessionState = "finished"
)

// EventType identifies a roast milestone, auto-detected or user-marked.
type EventType string

const (
	EventCharge       EventType = "CHARGE"
	EventDryEnd       EventType = "DRY_END"
	EventFirstCrackS  EventType = "FCs"
	EventFirstCrackE  EventType = "FCe"
	EventSecondCrackS EventType = "SCs"
	EventSecondCrackE EventType = "SCe"
	EventDrop         EventType = "DROP"
	EventCool         EventType = "COOL"
	EventTurningPoint EventType = "TP"
)

// KnownEventType reports whether t is one of the defined roast milestones.
func KnownEventType(t EventType) bool {
	switch t {
	case EventCharge, EventDryEnd, EventFirstCrackS, EventFirstCrackE,
		EventSecondCrackS, EventSecondCrackE, EventDrop, EventCool,
		EventTurningPoint:
		return true
	}
	return false
}

// Event is one roast milestone as recorded by a session.
type Event struct {
	Type         EventType `json:"event_type"`
	TimestampMs  int64     `json:"timestamp_ms"`
	AutoDetected bool      `json:"auto_detected"`
	BT           float64   `json:"bt_at_event"`
	ET           float64   `json:"et_at_event"`
}

// Recording is the terminal snapshot of a finished roast, handed to the
// archive when the session leaves the recording state. The live stream
// itself is never persisted; this is only the summary the session already
// holds.
type Recording struct {
	MachineID   string
	StartedMs   int64
	FinishedMs  int64
	SampleCount int
	Events      []Event
}

// Profile is a previously recorded roast used by the replay engine.
// Profile storage and CRUD live outside roastwire; a ProfileSource hands
// profiles over at this boundary.
type Profile struct {
	ID       string
	Samples  []*Sample
	Controls []map[string]float64 // parallel to Samples; nil entries allowed
}

// TotalDurationMs returns the span from the first to the last sample.
func (p *Profile) TotalDurationMs() int64 {
	if p == nil || len(p.Samples) == 0 {
		return 0
	}
	return p.Samples[len(p.Samples)-1].TimestampMs - p.Samples[0].TimestampMs
}
