package roastwire

import (
	base "github.com/roastwire/roastwire/pkg/roastwire"
)

// Type aliases so consumers can import github.com/roastwire/roastwire
// directly.
type (
	Config          = base.Config
	ServerConfig    = base.ServerConfig
	MachineConfig   = base.MachineConfig
	ArchiveConfig   = base.ArchiveConfig
	ProfilesConfig  = base.ProfilesConfig
	Policy          = base.Policy
	SimConfig       = base.SimConfig
	AlarmRule       = base.AlarmRule
	Runtime         = base.Runtime
	RuntimeOption   = base.RuntimeOption
	Flow            = base.Flow
	FlowOption      = base.FlowOption
	Driver          = base.Driver
	DriverState     = base.DriverState
	DriverStatus    = base.DriverStatus
	Observability   = base.Observability
	Archive         = base.Archive
	ProfileSource   = base.ProfileSource
	Session         = base.Session
	Channel         = base.Channel
	ChannelOptions  = base.ChannelOptions
	ChannelState    = base.ChannelState
	ReconnectPolicy = base.ReconnectPolicy
	Message         = base.Message
	Temperature     = base.Temperature
	Event           = base.Event
	StateChange     = base.StateChange
	Alarm           = base.Alarm
	Replay          = base.Replay
	ControlAck      = base.ControlAck
	ErrorFrame      = base.ErrorFrame
	Connection      = base.Connection
	Control         = base.Control
	Command         = base.Command
	ReplayControl   = base.ReplayControl
	Sample          = base.Sample
	SessionState    = base.SessionState
	EventType       = base.EventType
	ErrorCode       = base.ErrorCode
)

// Channel lifecycle states.
const (
	StateDisconnected = base.StateDisconnected
	StateConnecting   = base.StateConnecting
	StateConnected    = base.StateConnected
	StateError        = base.StateError
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

// Runtime helpers.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithDriver(machineID string, drv Driver) RuntimeOption {
	return base.WithDriver(machineID, drv)
}

func WithArchive(a Archive) RuntimeOption {
	return base.WithArchive(a)
}

func WithProfiles(src ProfileSource) RuntimeOption {
	return base.WithProfiles(src)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

// Channel helpers.
func NewChannel(opts ChannelOptions) (*Channel, error) {
	return base.NewChannel(opts)
}
