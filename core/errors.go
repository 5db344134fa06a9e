package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for internal conditions that are not part of the
// wire-level A2AErrorCode taxonomy but are useful for errors.Is checks
// inside the bus and agent packages.
var (
	ErrAgentAlreadyRegistered   = errors.New("agent already registered")
	ErrUnknownCoordinationMode  = errors.New("unsupported coordination mode")
	ErrNoAgentsForTarget        = errors.New("no agents found for target")
	ErrBusClosed                = errors.New("bus is closed")
	ErrInsufficientParticipants = errors.New("insufficient participants for consensus")
	ErrAgentNotFound            = errors.New("agent not found")
	ErrConsensusNotReached      = errors.New("consensus not reached")
)

// FrameworkError provides structured error information with context. It
// implements the error interface and supports error wrapping via errors.Is
// and errors.As.
type FrameworkError struct {
	Op      string // Operation that failed (e.g., "bus.Route")
	Kind    string // Error kind (e.g., "agent", "bus", "config")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

func (e *FrameworkError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *FrameworkError) Unwrap() error {
	return e.Err
}

// NewFrameworkError creates a new FrameworkError.
func NewFrameworkError(op, kind string, err error) *FrameworkError {
	return &FrameworkError{Op: op, Kind: kind, Err: err}
}

// A2AErrorCode enumerates the wire-level error taxonomy.
type A2AErrorCode string

const (
	ErrCodeAgentNotFound         A2AErrorCode = "AGENT_NOT_FOUND"
	ErrCodeToolNotSupported      A2AErrorCode = "TOOL_NOT_SUPPORTED"
	ErrCodeInsufficientResources A2AErrorCode = "INSUFFICIENT_RESOURCES"
	ErrCodeStateConflict         A2AErrorCode = "STATE_CONFLICT"
	ErrCodeTimeout               A2AErrorCode = "TIMEOUT"
	ErrCodeAuthorizationFailed   A2AErrorCode = "AUTHORIZATION_FAILED"
	ErrCodeCoordinationFailed    A2AErrorCode = "COORDINATION_FAILED"
)

// SuggestedAction accompanies an A2AError and advises the caller on how
// to react. It is advisory only; the bus never acts on it itself.
type SuggestedAction struct {
	Action  string `json:"action"`
	DelayMS int64  `json:"delay_ms,omitempty"`
}

// DefaultSuggestedAction is the "retry in one second" default every
// agent-internal failure carries unless a more specific action applies.
func DefaultSuggestedAction() SuggestedAction {
	return SuggestedAction{Action: "retry", DelayMS: 1000}
}

// A2AError is the structured error carried by a failed Response. It
// implements the error interface so handlers and tests can use
// errors.Is/errors.As against it like any other Go error.
type A2AError struct {
	Code        A2AErrorCode    `json:"code"`
	Message     string          `json:"message"`
	Recoverable bool            `json:"recoverable"`
	Suggested   SuggestedAction `json:"suggested_action"`
}

func (e *A2AError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewA2AError builds an A2AError with the standard recoverability and
// suggested action: recoverable is false only for TOOL_NOT_SUPPORTED
// and AGENT_NOT_FOUND, true otherwise.
func NewA2AError(code A2AErrorCode, message string) *A2AError {
	return &A2AError{
		Code:        code,
		Message:     message,
		Recoverable: code != ErrCodeToolNotSupported && code != ErrCodeAgentNotFound,
		Suggested:   DefaultSuggestedAction(),
	}
}

// ClassifyError maps an arbitrary error to an A2AErrorCode by message
// substring. It exists for errors that originate outside the bus's
// control (a user-supplied tool handler's return value, for instance)
// where there is no typed error to match against; agent-internal
// failures carry their code directly and never pass through here.
func ClassifyError(err error) A2AErrorCode {
	if err == nil {
		return ErrCodeCoordinationFailed
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not supported"):
		return ErrCodeToolNotSupported
	case strings.Contains(msg, "not found"):
		return ErrCodeAgentNotFound
	case strings.Contains(msg, "Insufficient") || strings.Contains(msg, "insufficient"):
		return ErrCodeInsufficientResources
	case strings.Contains(msg, "expired"):
		return ErrCodeTimeout
	default:
		return ErrCodeCoordinationFailed
	}
}
