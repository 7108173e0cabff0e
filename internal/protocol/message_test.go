package protocol

import (
	"errors"
	"reflect"
	"testing"

	"github.com/roastwire/roastwire/internal/domain"
)

func TestDecodeRoundTrip(t *testing.T) {
	msgs := []Message{
		NewTemperature(&domain.Sample{
			TimestampMs: 12000,
			ET:          210.4,
			BT:          184.2,
			ETRoR:       4.1,
			BTRoR:       9.8,
			Extra:       map[string]float64{"inlet": 231.0},
		}),
		NewEvent(domain.Event{
			Type:         domain.EventFirstCrackS,
			TimestampMs:  540_000,
			AutoDetected: true,
			BT:           196.5,
			ET:           214.0,
		}),
		NewState(domain.StateRecording, domain.StateMonitoring),
		&Alarm{
			AlarmID:     "3f0c",
			Message:     "BT above 230C",
			Severity:    domain.SeverityCritical,
			TimestampMs: 601_200,
			BT:          231.7,
			ET:          240.2,
		},
		&Replay{
			TimestampMs:     30_000,
			ET:              160.0,
			BT:              120.0,
			Controls:        map[string]float64{"burner": 0.65},
			ProgressPct:     12.5,
			TotalDurationMs: 720_000,
		},
		&ControlAck{Channel: "burner", Value: 0.4, Applied: true},
		NewError(domain.CodeInvalidStateTransition, "start_recording while idle"),
		&Connection{DriverState: "connected", DriverName: "sim"},
		&Control{Channel: "air", Value: 0.8},
		NewSync(12000),
		&Command{Action: ActionMarkEvent, EventType: domain.EventDrop},
		&ReplayControl{Action: ReplaySeek, ProfileID: "p-17", Speed: 2, SeekMs: 45_000},
	}

	for _, in := range msgs {
		data, err := Encode(in)
		if err != nil {
			t.Fatalf("encode %s: %v", in.MessageType(), err)
		}
		out, err := Decode(data)
		if err != nil {
			t.Fatalf("decode %s: %v", in.MessageType(), err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("round trip %s:\n in: %+v\nout: %+v", in.MessageType(), in, out)
		}
	}
}

func TestEncodeStampsDiscriminator(t *testing.T) {
	// A zero-constructed frame has an empty Type field; Encode must fill it.
	data, err := Encode(&Control{Channel: "burner", Value: 0.5})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	m, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.MessageType() != TypeControl {
		t.Fatalf("expected control frame, got %s", m.MessageType())
	}
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	cases := map[string]struct {
		frame   string
		wantErr error
	}{
		"not json":     {frame: "not a frame", wantErr: nil},
		"missing type": {frame: `{"timestamp_ms":1000}`, wantErr: ErrMissingType},
		"unknown type": {frame: `{"type":"firmware_update"}`, wantErr: ErrUnknownType},
		"wrong shape":  {frame: `[1,2,3]`, wantErr: nil},
	}

	for name, tc := range cases {
		m, err := Decode([]byte(tc.frame))
		if err == nil {
			t.Fatalf("%s: expected error, got %+v", name, m)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: expected %v, got %v", name, tc.wantErr, err)
		}
	}
}

func TestErrorRecoverability(t *testing.T) {
	if e := NewError(domain.CodeMachineNotFound, "no such machine"); e.Recoverable {
		t.Fatalf("MACHINE_NOT_FOUND must be non-recoverable")
	}
	if e := NewError(domain.CodeSessionLocked, "another client controlling"); !e.Recoverable {
		t.Fatalf("SESSION_LOCKED must be recoverable")
	}
}
