// ABOUTME: Error taxonomy for agent resolution and invocation
// ABOUTME: Resolution errors are sentinels; construction and processing failures are *Failure

package agent

import (
	"errors"
	"fmt"
)

// ErrAgentNotFound indicates no agent configuration exists for the id.
var ErrAgentNotFound = errors.New("agent not found")

// ErrUnknownType indicates the configured type key has no registered factory.
var ErrUnknownType = errors.New("unknown agent type")

// ErrDuplicateType indicates a factory is already registered for the key.
var ErrDuplicateType = errors.New("agent type already registered")

// ErrTimeout indicates an invocation did not finish within its deadline.
var ErrTimeout = errors.New("agent invocation timed out")

// Failure is an agent construction or invocation failure carrying the
// underlying cause.
type Failure struct {
	Op      string // "construct" or "process"
	AgentID string
	Err     error
}

func (f *Failure) Error() string {
	if f.AgentID == "" {
		return fmt.Sprintf("agent %s failed: %v", f.Op, f.Err)
	}
	return fmt.Sprintf("agent %s %s failed: %v", f.AgentID, f.Op, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsResolutionError reports whether err means the agent could not be
// resolved to a registered type.
func IsResolutionError(err error) bool {
	return errors.Is(err, ErrAgentNotFound) || errors.Is(err, ErrUnknownType)
}
