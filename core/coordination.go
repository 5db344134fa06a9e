package core

import "time"

// CoordinationMode selects the strategy applied to a message's resolved
// target set. Only the mode's own fields below are meaningful.
type CoordinationMode string

const (
	CoordinationDirect    CoordinationMode = "direct"
	CoordinationBroadcast CoordinationMode = "broadcast"
	CoordinationConsensus CoordinationMode = "consensus"
	CoordinationPipeline  CoordinationMode = "pipeline"
)

// AggregationMode decides a broadcast's caller-visible verdict from its
// per-agent responses.
type AggregationMode string

const (
	AggregateAll      AggregationMode = "all"
	AggregateMajority AggregationMode = "majority"
	AggregateFirst    AggregationMode = "first"
	AggregateAny      AggregationMode = "any"
)

// ConsensusType picks the success threshold for a consensus coordination.
type ConsensusType string

const (
	ConsensusUnanimous ConsensusType = "unanimous"
	ConsensusMajority  ConsensusType = "majority"
	ConsensusWeighted  ConsensusType = "weighted"
)

// FailureStrategy controls how a pipeline reacts to a non-success stage
// response or a thrown exception at a stage.
type FailureStrategy string

const (
	FailureAbort FailureStrategy = "abort"
	FailureSkip  FailureStrategy = "skip"
	FailureRetry FailureStrategy = "retry"
)

// Weigher computes a vote weight for a response under a "weighted"
// consensus. Weighted reduces to majority unless a weighting function
// is supplied here; it is never called for unanimous or majority
// consensus.
type Weigher func(Response) float64

// Transform reshapes a pipeline stage's input or output.
type Transform func(interface{}) interface{}

// PipelineStage is one step of an ordered pipeline coordination.
type PipelineStage struct {
	AgentTarget     Target    `json:"agent_target"`
	ToolName        string    `json:"tool_name"`
	InputTransform  Transform `json:"-"`
	OutputTransform Transform `json:"-"`
}

// Coordination is the per-message coordination policy. Only
// the fields relevant to Mode are meaningful.
type Coordination struct {
	Mode    CoordinationMode `json:"mode"`
	Timeout time.Duration    `json:"timeout,omitempty"`

	// direct
	Acknowledgment bool `json:"acknowledgment,omitempty"`

	// broadcast
	Aggregation    AggregationMode `json:"aggregation,omitempty"`
	PartialSuccess bool            `json:"partial_success,omitempty"`

	// consensus
	ConsensusType       ConsensusType `json:"consensus_type,omitempty"`
	MinimumParticipants int           `json:"minimum_participants,omitempty"`
	VotingTimeout       time.Duration `json:"voting_timeout,omitempty"`
	Weigher             Weigher       `json:"-"`

	// pipeline
	Stages          []PipelineStage `json:"stages,omitempty"`
	FailureStrategy FailureStrategy `json:"failure_strategy,omitempty"`
}
