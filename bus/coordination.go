package bus

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/a2aforge/meshbus/core"
	"github.com/a2aforge/meshbus/resilience"
)

// dispatchOne runs a single agent's ProcessMessage, tracking in-flight
// count for the load-balanced selection strategy and recovering from a
// handler panic into a synthesized COORDINATION_FAILED response, so one
// misbehaving handler never takes down the dispatch loop.
func (b *Bus) dispatchOne(a interface{ ProcessMessage(*core.Message) *core.Response }, agentID string, m *core.Message) (resp *core.Response) {
	b.incInFlight(agentID)
	defer b.decInFlight(agentID)
	defer func() {
		if r := recover(); r != nil {
			debug.PrintStack()
			resp = &core.Response{
				MessageID:     m.ID,
				CorrelationID: m.EffectiveCorrelationID(),
				Source:        core.UnknownSource(),
				Success:       false,
				Error:         core.NewA2AError(core.ErrCodeCoordinationFailed, fmt.Sprintf("dispatch panic: %v", r)),
				Metadata:      core.ResponseMetadata{Hops: len(m.Route) + 1},
				Timestamp:     core.NowMS(),
			}
			// synthesized here, so no agent event will ever report it
			b.metrics.recordResponse(resp)
		}
	}()
	return a.ProcessMessage(m)
}

// dispatchParallel dispatches m to every id in agentIDs concurrently,
// synthesizing an AGENT_NOT_FOUND response for any id that isn't
// currently registered (a dispatch that panics gets a COORDINATION_FAILED
// response from dispatchOne), and preserves agentIDs' order in the result.
func (b *Bus) dispatchParallel(m *core.Message, agentIDs []string) []*core.Response {
	responses := make([]*core.Response, len(agentIDs))
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, id := range agentIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			a := b.lookupAgent(id)
			var resp *core.Response
			if a == nil {
				resp = &core.Response{
					MessageID:     m.ID,
					CorrelationID: m.EffectiveCorrelationID(),
					Source:        core.UnknownSource(),
					Success:       false,
					Error:         core.NewA2AError(core.ErrCodeAgentNotFound, fmt.Sprintf("agent %s not found", id)),
					Metadata:      core.ResponseMetadata{Hops: len(m.Route) + 1},
					Timestamp:     core.NowMS(),
				}
				b.metrics.recordResponse(resp)
			} else {
				stageMsg := *m
				resp = b.dispatchOne(a, id, &stageMsg)
			}
			mu.Lock()
			responses[i] = resp
			mu.Unlock()
		}(i, id)
	}
	wg.Wait()
	// success/failure counters for agent-produced responses arrive via
	// the messageProcessed/messageError wiring set up at registration;
	// only history is recorded here to avoid counting twice.
	for _, r := range responses {
		b.history.recordResponse(r)
	}
	b.history.recordMessage(m)
	return responses
}

// executeDirect runs the "direct" coordination mode: resolve, fail fast if
// empty or the head id is unregistered, then dispatch with retries
// governed by m.RetryPolicy.
func (b *Bus) executeDirect(m *core.Message) (*core.Response, error) {
	ids, err := b.resolveTarget(m.Target, m.Source.AgentID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("No agents found for target: %w", core.ErrNoAgentsForTarget)
	}
	a := b.lookupAgent(ids[0])
	if a == nil {
		return nil, fmt.Errorf("agent %s: %w", ids[0], core.ErrAgentNotFound)
	}

	b.history.recordMessage(m)

	policy := m.RetryPolicy
	if policy.MaxRetries == 0 && policy.BackoffStrategy == "" {
		policy = core.DefaultRetryPolicy()
	}
	var custom *resilience.CustomBackoff
	if policy.BackoffStrategy == core.BackoffCustom {
		custom = resilience.NewCustomBackoff(policy.BaseDelay, policy.MaxDelay)
	}

	ctx := context.Background()
	if m.Coordination.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Coordination.Timeout)
		defer cancel()
	}

	var resp *core.Response
	attempt := 0
	for {
		resp = b.dispatchOne(a, ids[0], m)
		b.history.recordResponse(resp)
		if resp.Success {
			return resp, nil
		}
		if attempt >= policy.MaxRetries || resp.Error == nil || !policy.IsRetryable(resp.Error.Code) {
			return resp, nil
		}
		attempt++
		var delay time.Duration
		if custom != nil {
			delay = custom.Next()
		} else {
			delay = resilience.BackoffDelay(policy.BackoffStrategy, attempt, policy.BaseDelay, policy.MaxDelay)
		}
		if err := resilience.Sleep(ctx, delay); err != nil {
			return resp, nil
		}
	}
}

// executeBroadcast runs the "broadcast" coordination mode: fan out to
// every resolved target concurrently and collect all responses.
func (b *Bus) executeBroadcast(m *core.Message) ([]*core.Response, error) {
	ids, err := b.resolveTarget(m.Target, m.Source.AgentID)
	if err != nil {
		return nil, err
	}
	responses := b.dispatchParallel(m, ids)

	// Route returns the full response list, not a single boolean, so
	// the aggregated verdict surfaces through logging and metrics;
	// callers needing it programmatically call AggregateBroadcast on
	// the returned responses.
	verdict := AggregateBroadcast(responses, m.Coordination.Aggregation, m.Coordination.PartialSuccess)
	b.Logger.Debug("broadcast aggregated", map[string]interface{}{
		"message_id": m.ID, "aggregation": string(m.Coordination.Aggregation),
		"targets": len(ids), "verdict": verdict,
	})
	outcome := "failed"
	if verdict {
		outcome = "succeeded"
	}
	b.Telemetry.RecordMetric("bus.broadcast_verdict", float64(len(responses)), map[string]string{
		"aggregation": string(m.Coordination.Aggregation), "outcome": outcome,
	})
	return responses, nil
}

// AggregateBroadcast computes the success verdict for a set of broadcast
// responses under the given aggregation mode.
func AggregateBroadcast(responses []*core.Response, mode core.AggregationMode, partialSuccess bool) bool {
	if len(responses) == 0 {
		return false
	}
	successCount := 0
	for _, r := range responses {
		if r.Success {
			successCount++
		}
	}
	switch mode {
	case core.AggregateAll:
		return successCount == len(responses)
	case core.AggregateMajority:
		return successCount > len(responses)/2
	case core.AggregateFirst:
		return responses[0].Success
	case core.AggregateAny:
		return successCount > 0
	default:
		if partialSuccess {
			return successCount > 0
		}
		return successCount == len(responses)
	}
}

// executeConsensus runs the "consensus" coordination mode: broadcast
// dispatch followed by a success-count (or weight) threshold check.
func (b *Bus) executeConsensus(m *core.Message) ([]*core.Response, error) {
	ids, err := b.resolveTarget(m.Target, m.Source.AgentID)
	if err != nil {
		return nil, err
	}
	if m.Coordination.MinimumParticipants > 0 && len(ids) < m.Coordination.MinimumParticipants {
		return nil, fmt.Errorf("consensus requires %d participants, resolved %d: %w",
			m.Coordination.MinimumParticipants, len(ids), core.ErrInsufficientParticipants)
	}

	responses := b.dispatchParallel(m, ids)

	if m.Coordination.ConsensusType == core.ConsensusWeighted && m.Coordination.Weigher != nil {
		var total, agreed float64
		for _, r := range responses {
			w := m.Coordination.Weigher(*r)
			total += w
			if r.Success {
				agreed += w
			}
		}
		if agreed*2 <= total {
			return responses, fmt.Errorf("Consensus not reached (weight %.2f of %.2f): %w",
				agreed, total, core.ErrConsensusNotReached)
		}
		return responses, nil
	}

	threshold := consensusThreshold(len(ids), m.Coordination.ConsensusType)
	successCount := 0
	for _, r := range responses {
		if r.Success {
			successCount++
		}
	}
	if successCount < threshold {
		return responses, fmt.Errorf("Consensus not reached (%d/%d, need %d): %w",
			successCount, len(ids), threshold, core.ErrConsensusNotReached)
	}
	return responses, nil
}

// consensusThreshold returns the number of successful responses a
// consensus needs: all of them for unanimous, half of them rounded up
// for majority and for weighted without a Weigher hook.
func consensusThreshold(total int, consensusType core.ConsensusType) int {
	if consensusType == core.ConsensusUnanimous {
		return total
	}
	return (total + 1) / 2
}
