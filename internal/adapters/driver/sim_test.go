package driver

import (
	"testing"
	"time"

	"github.com/roastwire/roastwire/internal/domain"
	"github.com/roastwire/roastwire/internal/ports"
)

func TestSimLifecycle(t *testing.T) {
	sim, err := NewSim(Config{MachineID: "north", Interval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}

	out := make(chan *domain.Sample, 16)
	if err := sim.Start(out); err != nil {
		t.Fatalf("start: %v", err)
	}
	if sim.State() != ports.DriverConnected {
		t.Fatalf("expected connected after start, got %s", sim.State())
	}
	if err := sim.Start(out); err == nil {
		t.Fatalf("second start must fail")
	}

	select {
	case s := <-out:
		if s.MachineID != "north" {
			t.Fatalf("sample machine = %q", s.MachineID)
		}
		if s.TimestampMs == 0 {
			t.Fatalf("sample must carry a timestamp")
		}
	case <-time.After(time.Second):
		t.Fatalf("no sample produced")
	}

	if err := sim.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if sim.State() != ports.DriverDisconnected {
		t.Fatalf("expected disconnected after stop, got %s", sim.State())
	}
	if err := sim.Stop(); err != nil {
		t.Fatalf("stop must be idempotent: %v", err)
	}
}

func TestSimReportsStatusTransitions(t *testing.T) {
	sim, err := NewSim(Config{MachineID: "north", Interval: time.Hour})
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}

	out := make(chan *domain.Sample, 1)
	if err := sim.Start(out); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sim.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	for _, want := range []ports.DriverState{ports.DriverConnected, ports.DriverDisconnected} {
		select {
		case st := <-sim.Status():
			if st.State != want || st.Err != nil {
				t.Fatalf("status = %+v, want clean %s", st, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("no %s status reported", want)
		}
	}
}

func TestSimControls(t *testing.T) {
	sim, err := NewSim(Config{MachineID: "north"})
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}

	if err := sim.SetControl("burner", 0.8); err != nil {
		t.Fatalf("set burner: %v", err)
	}
	if err := sim.SetControl("burner", 1.5); err == nil {
		t.Fatalf("out-of-range control must be rejected")
	}
	if err := sim.SetControl("afterburner", 0.5); err == nil {
		t.Fatalf("unknown channel must be rejected")
	}
}

func TestSimHeatsTowardBurnerTarget(t *testing.T) {
	sim, err := NewSim(Config{MachineID: "north", Interval: time.Second})
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}
	if err := sim.SetControl("burner", 1); err != nil {
		t.Fatalf("set burner: %v", err)
	}

	start := time.Now()
	var last *domain.Sample
	for i := 0; i < 120; i++ {
		last = sim.step(start.Add(time.Duration(i) * time.Second))
	}

	if last.ET <= sim.cfg.AmbientC+50 {
		t.Fatalf("ET should rise well above ambient after two minutes at full burner, got %.1f", last.ET)
	}
	if last.BT >= last.ET {
		t.Fatalf("BT must lag ET while heating: bt=%.1f et=%.1f", last.BT, last.ET)
	}
}
