package container

import "fmt"

// StartError wraps a failure to bring up a per-session worker (§4.9, §7).
// The session-creation boundary is responsible for cleaning up any partial
// state before propagating this.
type StartError struct {
	SessionID string
	Cause     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("container start failed for session %s: %v", e.SessionID, e.Cause)
}

func (e *StartError) Unwrap() error { return e.Cause }

// HealthCheckTimeoutError is raised when a worker never reports healthy
// within its configured deadline (§4.9).
type HealthCheckTimeoutError struct {
	SessionID string
	Deadline  string
}

func (e *HealthCheckTimeoutError) Error() string {
	return fmt.Sprintf("health check timed out for session %s after %s", e.SessionID, e.Deadline)
}
