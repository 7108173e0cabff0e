package domain

// ErrorCode is a stable application-level failure code carried in error
// frames. The channel keeps running after every one of these; recoverable
// tells the client whether retrying the operation can ever succeed.
type ErrorCode string

const (
	CodeDriverReadFailed       ErrorCode = "DRIVER_READ_FAILED"
	CodeDriverWriteFailed      ErrorCode = "DRIVER_WRITE_FAILED"
	CodeDriverDisconnected     ErrorCode = "DRIVER_DISCONNECTED"
	CodeInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"
	CodeInvalidMessage         ErrorCode = "INVALID_MESSAGE"
	CodeMachineNotFound        ErrorCode = "MACHINE_NOT_FOUND"
	CodeSessionLocked          ErrorCode = "SESSION_LOCKED"
)

// Recoverable reports whether the client can meaningfully retry after
// receiving code. MACHINE_NOT_FOUND is the only terminal code: retrying
// cannot conjure the machine, so the owner should stop reconnecting.
func (c ErrorCode) Recoverable() bool {
	return c != CodeMachineNotFound
}

// AlarmSeverity grades alarm frames.
type AlarmSeverity string

const (
	SeverityInfo     AlarmSeverity = "info"
	SeverityWarning  AlarmSeverity = "warning"
	SeverityCritical AlarmSeverity = "critical"
)
