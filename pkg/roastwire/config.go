package roastwire

import (
	"github.com/roastwire/roastwire/internal/adapters/driver"
	"github.com/roastwire/roastwire/internal/app/config"
	"github.com/roastwire/roastwire/internal/ports"
	"github.com/roastwire/roastwire/internal/session"
)

// Config re-exports the root configuration struct so downstream projects
// can construct or modify it programmatically.
type Config = config.Config

type (
	// ServerConfig holds the listen addresses.
	ServerConfig = config.ServerConfig
	// MachineConfig describes one roaster.
	MachineConfig = config.MachineConfig
	// ArchiveConfig configures the finished-recording archive.
	ArchiveConfig = config.ArchiveConfig
	// ProfilesConfig points at the stored-profile directory.
	ProfilesConfig = config.ProfilesConfig
	// Policy controls history retention and channel transport tuning.
	Policy = ports.Policy
	// SimConfig tunes the built-in simulator driver.
	SimConfig = driver.Config
	// AlarmRule is one configured threshold check.
	AlarmRule = session.AlarmRule
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
