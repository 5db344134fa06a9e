package core

import (
	"time"

	"github.com/google/uuid"
)

// Priority is the message's scheduling priority. The core does not use
// it to reorder dispatch; it is carried through to agents and handlers
// as advisory metadata.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// BackoffStrategy selects how RetryPolicy.BaseDelay grows between retry
// attempts.
type BackoffStrategy string

const (
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
	BackoffCustom      BackoffStrategy = "custom"
)

// RetryPolicy governs how a direct coordination retries a failed
// dispatch. Every pipeline stage is dispatched as a direct coordination,
// so it retries under this policy whatever the failureStrategy.
type RetryPolicy struct {
	MaxRetries      int             `json:"max_retries"`
	BackoffStrategy BackoffStrategy `json:"backoff_strategy"`
	BaseDelay       time.Duration   `json:"base_delay"`
	MaxDelay        time.Duration   `json:"max_delay"`
	RetryableErrors []A2AErrorCode  `json:"retryable_errors"`
}

// IsRetryable reports whether code is listed in RetryableErrors.
func (p RetryPolicy) IsRetryable(code A2AErrorCode) bool {
	for _, c := range p.RetryableErrors {
		if c == code {
			return true
		}
	}
	return false
}

// AgentIdentifier names the producer or responder of a message.
type AgentIdentifier struct {
	AgentID      string   `json:"agent_id"`
	Role         string   `json:"role"`
	Capabilities []string `json:"capabilities,omitempty"`
	Version      string   `json:"version,omitempty"`
}

// Message is the transient, per-request envelope a producer hands to
// the bus.
type Message struct {
	ID            string          `json:"id"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Source        AgentIdentifier `json:"source"`
	Target        Target          `json:"target"`
	ToolName      string          `json:"tool_name"`
	Parameters    interface{}     `json:"parameters"`
	Timestamp     int64           `json:"timestamp"` // ms since epoch
	TTL           int64           `json:"ttl"`       // ms

	Priority     Priority     `json:"priority"`
	RetryPolicy  RetryPolicy  `json:"retry_policy"`
	Coordination Coordination `json:"coordination"`

	StateRequirements    []StateRequirement    `json:"state_requirements,omitempty"`
	ResourceRequirements []ResourceRequirement `json:"resource_requirements,omitempty"`

	// Route records the inbound hop chain this message has already
	// traversed. Hops for the next response is len(Route)+1.
	Route []string `json:"route,omitempty"`
}

// NewMessage constructs a direct-coordination Message addressed to
// target, with a generated ID, the current timestamp, a 30s TTL, and
// the default retry policy. Producers needing other coordination modes
// or policies set the fields on the returned value.
func NewMessage(source AgentIdentifier, target Target, toolName string, parameters interface{}) *Message {
	return &Message{
		ID:           uuid.New().String(),
		Source:       source,
		Target:       target,
		ToolName:     toolName,
		Parameters:   parameters,
		Timestamp:    NowMS(),
		TTL:          30000,
		Priority:     PriorityMedium,
		RetryPolicy:  DefaultRetryPolicy(),
		Coordination: Coordination{Mode: CoordinationDirect},
	}
}

// EffectiveCorrelationID returns CorrelationID, defaulting to ID when
// the producer did not set one.
func (m *Message) EffectiveCorrelationID() string {
	if m.CorrelationID != "" {
		return m.CorrelationID
	}
	return m.ID
}

// ExpiresAt returns the wall-clock instant (ms since epoch) at which this
// message expires.
func (m *Message) ExpiresAt() int64 {
	return m.Timestamp + m.TTL
}

// IsExpired reports whether the message had already expired at nowMS.
func (m *Message) IsExpired(nowMS int64) bool {
	return m.ExpiresAt() < nowMS
}

// NowMS returns the current wall-clock time in milliseconds since epoch,
// the unit Message.Timestamp and Message.TTL are expressed in.
func NowMS() int64 {
	return time.Now().UnixMilli()
}
