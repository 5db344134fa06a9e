package core

import "time"

// Default per-agent resource pool amounts applied when an agent is
// constructed without explicit pool overrides.
const (
	DefaultCPUPool     = 100
	DefaultMemoryPool  = 1024
	DefaultNetworkPool = 1000
)

// DefaultHistoryLimit bounds the bus's in-memory message history ring
// buffer absent an explicit WithHistoryLimit option.
const DefaultHistoryLimit = 1000

// DefaultRetryPolicy is applied to a Message whose producer left
// RetryPolicy zero-valued.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		BackoffStrategy: BackoffExponential,
		BaseDelay:       100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		RetryableErrors: []A2AErrorCode{ErrCodeTimeout, ErrCodeCoordinationFailed},
	}
}
