package core

// ResourceUsage reports how much an agent has drawn from its resource
// pools since its initial pool snapshot (initial minus current). Pools
// are never replenished, so the figure is cumulative across every
// message the agent has allocated for, not a per-message delta.
type ResourceUsage struct {
	CPU     int `json:"cpu,omitempty"`
	Memory  int `json:"memory,omitempty"`
	Network int `json:"network,omitempty"`
}

// ResponseMetadata carries bookkeeping the bus and caller use without
// inspecting Result itself.
type ResponseMetadata struct {
	ProcessingTimeMS int64         `json:"processing_time_ms"`
	ResourceUsage    ResourceUsage `json:"resource_usage"`
	Hops             int           `json:"hops"`
	Cached           bool          `json:"cached"`
}

// Response is the envelope an agent, or a coordination executor on an
// agent's behalf, returns for a processed Message. Error is
// populated iff Success is false.
type Response struct {
	MessageID     string           `json:"message_id"`
	CorrelationID string           `json:"correlation_id"`
	Source        AgentIdentifier  `json:"source"`
	Success       bool             `json:"success"`
	Result        interface{}      `json:"result,omitempty"`
	Error         *A2AError        `json:"error,omitempty"`
	Metadata      ResponseMetadata `json:"metadata"`
	Timestamp     int64            `json:"timestamp"`
}

// NewErrorResponse builds a failure Response for m. source identifies
// the responder producing the failure, never the message's producer;
// callers report broadcast and consensus failures per agent, so the
// responder identity is what makes those failures attributable.
func NewErrorResponse(m *Message, source AgentIdentifier, code A2AErrorCode, message string, hops int) *Response {
	return &Response{
		MessageID:     m.ID,
		CorrelationID: m.EffectiveCorrelationID(),
		Source:        source,
		Success:       false,
		Error:         NewA2AError(code, message),
		Metadata:      ResponseMetadata{Hops: hops},
		Timestamp:     NowMS(),
	}
}

// UnknownSource is the source identity a synthesized broadcast/consensus
// failure response carries when the dispatch itself threw before an
// agent identity was ever established.
func UnknownSource() AgentIdentifier {
	return AgentIdentifier{AgentID: "unknown", Role: "unknown"}
}
