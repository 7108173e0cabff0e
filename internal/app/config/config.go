package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roastwire/roastwire/internal/adapters/driver"
	"github.com/roastwire/roastwire/internal/adapters/history"
	"github.com/roastwire/roastwire/internal/ports"
	"github.com/roastwire/roastwire/internal/session"
)

type Config struct {
	Server   ServerConfig        `yaml:"server"`
	Policy   ports.Policy        `yaml:"policy"`
	Machines []MachineConfig     `yaml:"machines"`
	Alarms   []session.AlarmRule `yaml:"alarms"`
	Archive  ArchiveConfig       `yaml:"archive"`
	Profiles ProfilesConfig      `yaml:"profiles"`
}

type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type MachineConfig struct {
	ID   string        `yaml:"id"`
	Name string        `yaml:"name"`
	Sim  driver.Config `yaml:"sim"`
}

type ArchiveConfig struct {
	// ConnString empty disables archiving.
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type ProfilesConfig struct {
	// Dir empty disables profile playback.
	Dir string `yaml:"dir"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Policy.HistoryWindow == 0 {
		c.Policy.HistoryWindow = history.DefaultWindow
	}
	if c.Archive.Table == "" {
		c.Archive.Table = "recordings"
	}

	for i := range c.Machines {
		m := &c.Machines[i]
		if m.Sim.MachineID == "" {
			m.Sim.MachineID = m.ID
		}
		if m.Name == "" {
			m.Name = m.ID
		}
		m.Sim.ApplyDefaults()
	}

	for i := range c.Alarms {
		c.Alarms[i].ApplyDefaults()
	}
}

func (c *Config) validate() error {
	if len(c.Machines) == 0 {
		return fmt.Errorf("at least one machine is required")
	}

	seen := make(map[string]bool, len(c.Machines))
	for _, m := range c.Machines {
		if m.ID == "" {
			return fmt.Errorf("machine id is required")
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate machine id %q", m.ID)
		}
		seen[m.ID] = true
		if err := m.Sim.Validate(); err != nil {
			return fmt.Errorf("machine %s: %w", m.ID, err)
		}
	}

	for i, rule := range c.Alarms {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("alarm %d: %w", i, err)
		}
	}
	return nil
}
