package roastwire

import (
	"github.com/roastwire/roastwire/internal/client"
	"github.com/roastwire/roastwire/internal/domain"
	"github.com/roastwire/roastwire/internal/protocol"
)

// Channel is the client side of a live connection: one machine, automatic
// reconnection with jittered backoff, and gap recovery over the server's
// history buffer.
type Channel = client.Conn

type (
	// ChannelOptions configures a Channel.
	ChannelOptions = client.Options
	// ChannelState is the connection lifecycle state.
	ChannelState = client.State
	// ReconnectPolicy tunes the backoff between connection attempts.
	ReconnectPolicy = client.ReconnectPolicy
)

// Channel lifecycle states.
const (
	StateDisconnected = client.StateDisconnected
	StateConnecting   = client.StateConnecting
	StateConnected    = client.StateConnected
	StateError        = client.StateError
)

// Wire frame types, for switching on Channel traffic.
type (
	Message       = protocol.Message
	Temperature   = protocol.Temperature
	Event         = protocol.Event
	StateChange   = protocol.State
	Alarm         = protocol.Alarm
	Replay        = protocol.Replay
	ControlAck    = protocol.ControlAck
	ErrorFrame    = protocol.Error
	Connection    = protocol.Connection
	Control       = protocol.Control
	Command       = protocol.Command
	ReplayControl = protocol.ReplayControl
)

// Domain types surfaced in frames.
type (
	Sample       = domain.Sample
	SessionState = domain.SessionState
	EventType    = domain.EventType
	ErrorCode    = domain.ErrorCode
)

// NewChannel builds a channel manager. It does not dial; call Connect.
func NewChannel(opts ChannelOptions) (*Channel, error) {
	return client.New(opts)
}
