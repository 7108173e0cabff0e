package ports

import "time"

// Policy bundles the tuning knobs shared by the hub and its per-machine
// runtimes.
type Policy struct {
	// HistoryWindow is the rolling retention span of the history buffer.
	HistoryWindow time.Duration `yaml:"history_window"`

	// SendBuffer is the per-connection outbound queue depth. A client that
	// cannot drain this fast enough is disconnected rather than allowed to
	// stall the machine's fan-out.
	SendBuffer int `yaml:"send_buffer"`

	// FeedBuffer is the driver→session channel depth.
	FeedBuffer int `yaml:"feed_buffer"`

	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxFrameBytes caps inbound frames; larger ones close the connection.
	MaxFrameBytes int64 `yaml:"max_frame_bytes"`
}
