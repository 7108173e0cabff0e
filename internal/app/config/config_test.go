package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roastwire/roastwire/internal/adapters/history"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
policy:
  send_buffer: 512
machines:
  - id: north
alarms:
  - channel: bt
    op: above
    value: 225
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Fatalf("expected default listen addr :8080, got %s", cfg.Server.ListenAddr)
	}
	if cfg.Policy.HistoryWindow != history.DefaultWindow {
		t.Fatalf("expected default history window, got %s", cfg.Policy.HistoryWindow)
	}
	if cfg.Policy.SendBuffer != 512 {
		t.Fatalf("expected send buffer 512, got %d", cfg.Policy.SendBuffer)
	}
	if cfg.Archive.Table != "recordings" {
		t.Fatalf("expected default archive table, got %s", cfg.Archive.Table)
	}

	m := cfg.Machines[0]
	if m.Name != "north" {
		t.Fatalf("machine name should default to id, got %s", m.Name)
	}
	if m.Sim.MachineID != "north" {
		t.Fatalf("sim machine id should default to machine id, got %s", m.Sim.MachineID)
	}
	if m.Sim.Interval != time.Second {
		t.Fatalf("sim interval default missing, got %s", m.Sim.Interval)
	}

	if cfg.Alarms[0].Severity == "" {
		t.Fatalf("alarm severity default missing")
	}
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	cases := map[string]string{
		"no machines": `
server:
  listen_addr: ":8080"
`,
		"duplicate ids": `
machines:
  - id: north
  - id: north
`,
		"missing id": `
machines:
  - name: unnamed
`,
		"bad alarm op": `
machines:
  - id: north
alarms:
  - channel: bt
    op: sideways
    value: 200
`,
	}

	for name, data := range cases {
		if _, err := Load(writeConfig(t, data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
