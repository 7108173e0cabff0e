package ports

import "github.com/roastwire/roastwire/internal/domain"

// DriverState mirrors what the connection frame reports to clients.
type DriverState string

const (
	DriverIdle         DriverState = "idle"
	DriverConnected    DriverState = "connected"
	DriverDisconnected DriverState = "disconnected"
	DriverErrored      DriverState = "errored"
)

// DriverStatus is one lifecycle notification from a driver. A non-nil
// Err with State still DriverConnected means a read failed but the
// transport survived; a state change with Err set carries its cause.
type DriverStatus struct {
	State DriverState
	Err   error
}

// Driver is the boundary to one machine's hardware transport. Real
// transports (Modbus, serial) live outside roastwire; the simulator in
// internal/adapters/driver is the in-tree implementation.
type Driver interface {
	// Start begins sampling and pushes readings into out until Stop.
	Start(out chan<- *domain.Sample) error
	Stop() error

	Name() string
	State() DriverState

	// Status delivers state transitions and read failures observed
	// after Start. Sends must not block; a nil channel means the driver
	// never reports.
	Status() <-chan DriverStatus

	// SetControl applies a normalized [0,1] value to an output channel.
	SetControl(channel string, value float64) error
}
