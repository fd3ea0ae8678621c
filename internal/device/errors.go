package device

import (
	"errors"
	"fmt"
)

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents a connection-related problem reported by the stack
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}

	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrUnsupported  = errors.New("unsupported")
)

// CorrelationReason classifies why a correlated operation did not receive a
// collaborator result.
type CorrelationReason string

const (
	ReasonSuperseded    CorrelationReason = "superseded"
	ReasonCancelled     CorrelationReason = "cancelled"
	ReasonDuplicateKey  CorrelationReason = "duplicate_key"
	ReasonAdapterClosed CorrelationReason = "adapter_closed"
)

// CorrelationError is delivered to a waiter whose operation ended without a
// collaborator result. Key is the rendered operation key ("kind:id").
type CorrelationError struct {
	Reason CorrelationReason
	Key    string
	Cause  error
}

func (e *CorrelationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Reason)
	if e.Key != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Key)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Is compares CorrelationError values by Reason
func (e *CorrelationError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*CorrelationError)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

func (e *CorrelationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

var (
	// ErrSuperseded is delivered to a waiter replaced by a newer same-key operation.
	ErrSuperseded = &CorrelationError{Reason: ReasonSuperseded}
	// ErrCancelled is delivered to a waiter that abandoned its own wait.
	ErrCancelled = &CorrelationError{Reason: ReasonCancelled}
	// ErrDuplicateKey is returned by registration when the key is taken and
	// the operation kind does not supersede.
	ErrDuplicateKey = &CorrelationError{Reason: ReasonDuplicateKey}
	// ErrAdapterClosed is delivered to waiters still pending when their
	// adapter is closed, and returned by operations issued afterwards.
	ErrAdapterClosed = &CorrelationError{Reason: ReasonAdapterClosed}
)

// HardwareError carries a failure reported by the collaborator for one
// operation. Err is the collaborator error, unchanged.
type HardwareError struct {
	Op     string
	Target string
	Err    error
}

// NewHardwareError wraps err, returning nil when err is nil.
func NewHardwareError(op, target string, err error) error {
	if err == nil {
		return nil
	}
	return &HardwareError{Op: op, Target: target, Err: err}
}

func (e *HardwareError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q failed: %v", e.Op, e.Target, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// NotFoundError represents an error when a GATT entity is not known
type NotFoundError struct {
	Resource string // "peripheral", "service", "characteristic", "descriptor"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}
