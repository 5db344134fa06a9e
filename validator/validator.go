// Package validator implements the outbound-message compliance
// checker: a pure function over a core.Message that reports structural
// errors and advisory warnings without ever touching a bus or agent.
// It is intentionally separate from core.ValidateMessage, the structural
// dispatch-precondition check (agents run their own envelope check at
// dispatch time and call neither): this one is a producer-facing
// compliance report a host can run before a message is ever sent,
// covering more than dispatch strictly requires (e.g. consensus
// minimumParticipants, retry/ttl hygiene warnings).
package validator

import "github.com/a2aforge/meshbus/core"

// Result is the compliance report Validate produces.
type Result struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Valid    bool     `json:"valid"`
}

// Validate computes errors and warnings for m. Valid is true iff
// Errors is empty.
func Validate(m *core.Message) Result {
	var errs, warnings []string

	if m.ID == "" {
		errs = append(errs, "id is required")
	}
	if m.Source.AgentID == "" {
		errs = append(errs, "source.agentId is required")
	}
	if m.Target.Type == "" {
		errs = append(errs, "target is required")
	}
	if m.ToolName == "" {
		errs = append(errs, "toolName is required")
	}
	if m.Timestamp == 0 {
		errs = append(errs, "timestamp is required")
	}
	if m.Coordination.Mode == core.CoordinationConsensus && m.Coordination.MinimumParticipants < 2 {
		errs = append(errs, "consensus coordination requires minimumParticipants >= 2")
	}

	if m.TTL < 1000 {
		warnings = append(warnings, "ttl is below 1000ms; message may expire before an agent can process it")
	}
	if m.RetryPolicy.MaxRetries > 10 {
		warnings = append(warnings, "retryPolicy.maxRetries exceeds 10; consider a lower bound with backoff")
	}

	return Result{Errors: errs, Warnings: warnings, Valid: len(errs) == 0}
}
