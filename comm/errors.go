package comm

import "fmt"

// CommunicatorError reports a failed group split or collective
// operation. It is fatal: a failed collective implies the global state
// has already diverged, so callers are expected to abort the run
// rather than retry.
type CommunicatorError struct {
	Op  string
	Err error
}

func (e *CommunicatorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("communicator: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("communicator: %s failed", e.Op)
}

func (e *CommunicatorError) Unwrap() error { return e.Err }

// SharedMemoryError reports a failed window allocation or query.
// Fatal for the same reason as CommunicatorError.
type SharedMemoryError struct {
	Op  string
	Err error
}

func (e *SharedMemoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("shared memory: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("shared memory: %s failed", e.Op)
}

func (e *SharedMemoryError) Unwrap() error { return e.Err }

// ConfigurationError reports a mismatch between a declared and an
// actual group layout, such as a device group whose declared total
// does not match the number of participants.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

// ProtocolViolation reports an internally inconsistent result from the
// substrate, such as a group split that leaves the global root with a
// non-zero cross-node rank.
type ProtocolViolation struct {
	Reason string
}

func (e *ProtocolViolation) Error() string {
	return "protocol violation: " + e.Reason
}
