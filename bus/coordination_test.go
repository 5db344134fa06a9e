package bus

import (
	"errors"
	"testing"
	"time"

	"github.com/a2aforge/meshbus/agent"
	"github.com/a2aforge/meshbus/core"
)

func failingAgent(role string) *agent.Agent {
	a := agent.New(role)
	a.AddTool("flaky", func(params interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	})
	return a
}

func broadcastMessage(ids []string, mode core.AggregationMode) *core.Message {
	return &core.Message{
		ID:        "bm1",
		Source:    core.AgentIdentifier{AgentID: "caller"},
		Target:    core.Target{Type: core.TargetMultiple, AgentIDs: ids},
		ToolName:  "echo",
		TTL:       30000,
		Timestamp: core.NowMS(),
		Coordination: core.Coordination{
			Mode:        core.CoordinationBroadcast,
			Timeout:     5 * time.Second,
			Aggregation: mode,
		},
	}
}

// Broadcast with majority aggregation and one failing participant.
func TestExecuteBroadcast_MajoritySucceedsWithOneFailure(t *testing.T) {
	b := newTestBus()
	good1 := echoAgent("worker")
	good2 := echoAgent("worker")
	bad := failingAgent("worker")
	b.RegisterAgent(good1)
	b.RegisterAgent(good2)
	b.RegisterAgent(bad)

	bad.AddTool("echo", func(params interface{}) (interface{}, error) { return nil, errors.New("boom") })

	m := broadcastMessage([]string{good1.ID, good2.ID, bad.ID}, core.AggregateMajority)
	responses, err := b.executeBroadcast(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(responses) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(responses))
	}
	verdict := AggregateBroadcast(responses, core.AggregateMajority, false)
	if !verdict {
		t.Fatalf("expected majority verdict to be true with 2/3 succeeding")
	}
}

func TestExecuteBroadcast_UnregisteredAgentSynthesizesFailure(t *testing.T) {
	b := newTestBus()
	good := echoAgent("worker")
	b.RegisterAgent(good)

	m := broadcastMessage([]string{good.ID, "ghost"}, core.AggregateAll)
	responses, err := b.executeBroadcast(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	if responses[1].Success {
		t.Fatalf("expected the unregistered agent to synthesize a failed response")
	}
	if responses[1].Error.Code != core.ErrCodeAgentNotFound {
		t.Errorf("Error.Code = %v, want AGENT_NOT_FOUND", responses[1].Error.Code)
	}
}

// Unanimous consensus fails when any participant fails.
func TestExecuteConsensus_UnanimousFailsOnOneFailure(t *testing.T) {
	b := newTestBus()
	good := echoAgent("worker")
	bad := failingAgent("worker")
	bad.AddTool("echo", func(params interface{}) (interface{}, error) { return nil, errors.New("boom") })
	b.RegisterAgent(good)
	b.RegisterAgent(bad)

	m := &core.Message{
		ID:        "cm1",
		Source:    core.AgentIdentifier{AgentID: "caller"},
		Target:    core.Target{Type: core.TargetMultiple, AgentIDs: []string{good.ID, bad.ID}},
		ToolName:  "echo",
		Timestamp: core.NowMS(),
		TTL:       30000,
		Coordination: core.Coordination{
			Mode:          core.CoordinationConsensus,
			Timeout:       5 * time.Second,
			ConsensusType: core.ConsensusUnanimous,
		},
	}

	_, err := b.executeConsensus(m)
	if !errors.Is(err, core.ErrConsensusNotReached) {
		t.Fatalf("expected ErrConsensusNotReached, got %v", err)
	}
}

func TestExecuteConsensus_MajoritySucceeds(t *testing.T) {
	b := newTestBus()
	good1 := echoAgent("worker")
	good2 := echoAgent("worker")
	bad := failingAgent("worker")
	bad.AddTool("echo", func(params interface{}) (interface{}, error) { return nil, errors.New("boom") })
	b.RegisterAgent(good1)
	b.RegisterAgent(good2)
	b.RegisterAgent(bad)

	m := &core.Message{
		ID:        "cm2",
		Source:    core.AgentIdentifier{AgentID: "caller"},
		Target:    core.Target{Type: core.TargetMultiple, AgentIDs: []string{good1.ID, good2.ID, bad.ID}},
		ToolName:  "echo",
		Timestamp: core.NowMS(),
		TTL:       30000,
		Coordination: core.Coordination{
			Mode:          core.CoordinationConsensus,
			Timeout:       5 * time.Second,
			ConsensusType: core.ConsensusMajority,
		},
	}

	responses, err := b.executeConsensus(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(responses) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(responses))
	}
}

func TestExecuteConsensus_InsufficientParticipants(t *testing.T) {
	b := newTestBus()
	good := echoAgent("worker")
	b.RegisterAgent(good)

	m := &core.Message{
		ID:        "cm3",
		Source:    core.AgentIdentifier{AgentID: "caller"},
		Target:    core.Target{Type: core.TargetMultiple, AgentIDs: []string{good.ID}},
		ToolName:  "echo",
		Timestamp: core.NowMS(),
		TTL:       30000,
		Coordination: core.Coordination{
			Mode:                core.CoordinationConsensus,
			MinimumParticipants: 3,
		},
	}
	_, err := b.executeConsensus(m)
	if !errors.Is(err, core.ErrInsufficientParticipants) {
		t.Fatalf("expected ErrInsufficientParticipants, got %v", err)
	}
}

func TestExecuteDirect_RetriesOnRetryableFailure(t *testing.T) {
	b := newTestBus()
	attempts := 0
	a := agent.New("worker")
	a.AddTool("flaky", func(params interface{}) (interface{}, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("transient failure")
		}
		return "ok", nil
	})
	b.RegisterAgent(a)

	m := singleTargetMessage(a.ID, "flaky")
	m.RetryPolicy = core.RetryPolicy{
		MaxRetries:      3,
		BackoffStrategy: core.BackoffLinear,
		BaseDelay:       1 * time.Millisecond,
		MaxDelay:        10 * time.Millisecond,
		RetryableErrors: []core.A2AErrorCode{core.ErrCodeCoordinationFailed},
	}

	resp, err := b.executeDirect(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected eventual success after retry, got %+v", resp.Error)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestExecuteConsensus_WeightedUsesWeigher(t *testing.T) {
	b := newTestBus()
	heavy := echoAgent("worker")
	light := failingAgent("worker")
	light.AddTool("echo", func(params interface{}) (interface{}, error) { return nil, errors.New("boom") })
	b.RegisterAgent(heavy)
	b.RegisterAgent(light)

	m := &core.Message{
		ID:        "cm4",
		Source:    core.AgentIdentifier{AgentID: "caller"},
		Target:    core.Target{Type: core.TargetMultiple, AgentIDs: []string{heavy.ID, light.ID}},
		ToolName:  "echo",
		Timestamp: core.NowMS(),
		TTL:       30000,
		Coordination: core.Coordination{
			Mode:          core.CoordinationConsensus,
			ConsensusType: core.ConsensusWeighted,
			Weigher: func(r core.Response) float64 {
				if r.Source.AgentID == heavy.ID {
					return 3
				}
				return 1
			},
		},
	}

	// 3 of 4 total weight agrees; a plain majority count would be a 1/2 tie.
	responses, err := b.executeConsensus(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
}

func TestExecuteConsensus_WeightedWithoutWeigherIsMajority(t *testing.T) {
	b := newTestBus()
	good := echoAgent("worker")
	bad := failingAgent("worker")
	bad.AddTool("echo", func(params interface{}) (interface{}, error) { return nil, errors.New("boom") })
	b.RegisterAgent(good)
	b.RegisterAgent(bad)

	m := &core.Message{
		ID:        "cm5",
		Source:    core.AgentIdentifier{AgentID: "caller"},
		Target:    core.Target{Type: core.TargetMultiple, AgentIDs: []string{good.ID, bad.ID}},
		ToolName:  "echo",
		Timestamp: core.NowMS(),
		TTL:       30000,
		Coordination: core.Coordination{
			Mode:          core.CoordinationConsensus,
			ConsensusType: core.ConsensusWeighted,
		},
	}

	// majority of 2 needs 1 success; one of two succeeded, so it passes
	if _, err := b.executeConsensus(m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAggregateBroadcast_Modes(t *testing.T) {
	ok := &core.Response{Success: true}
	fail := &core.Response{Success: false}

	tests := []struct {
		name      string
		responses []*core.Response
		mode      core.AggregationMode
		want      bool
	}{
		{"all succeeds", []*core.Response{ok, ok}, core.AggregateAll, true},
		{"all fails on one failure", []*core.Response{ok, fail}, core.AggregateAll, false},
		{"majority 2 of 3", []*core.Response{ok, ok, fail}, core.AggregateMajority, true},
		{"majority 1 of 3", []*core.Response{ok, fail, fail}, core.AggregateMajority, false},
		{"first success", []*core.Response{ok, fail}, core.AggregateFirst, true},
		{"first failure", []*core.Response{fail, ok}, core.AggregateFirst, false},
		{"any", []*core.Response{fail, ok}, core.AggregateAny, true},
		{"empty", nil, core.AggregateAll, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AggregateBroadcast(tt.responses, tt.mode, false); got != tt.want {
				t.Errorf("AggregateBroadcast(%s) = %v, want %v", tt.mode, got, tt.want)
			}
		})
	}
}

func TestExecuteDirect_CustomBackoffRetries(t *testing.T) {
	b := newTestBus()
	attempts := 0
	a := agent.New("worker")
	a.AddTool("flaky", func(params interface{}) (interface{}, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("transient failure")
		}
		return "ok", nil
	})
	b.RegisterAgent(a)

	m := singleTargetMessage(a.ID, "flaky")
	m.RetryPolicy = core.RetryPolicy{
		MaxRetries:      3,
		BackoffStrategy: core.BackoffCustom,
		BaseDelay:       1 * time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		RetryableErrors: []core.A2AErrorCode{core.ErrCodeCoordinationFailed},
	}

	resp, err := b.executeDirect(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected eventual success under custom backoff, got %+v", resp.Error)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestExecuteBroadcast_FailureSourcesIdentifyAgents(t *testing.T) {
	b := newTestBus()
	good := echoAgent("worker")
	bad := failingAgent("worker")
	bad.AddTool("echo", func(params interface{}) (interface{}, error) { return nil, errors.New("boom") })
	b.RegisterAgent(good)
	b.RegisterAgent(bad)

	m := broadcastMessage([]string{good.ID, bad.ID}, core.AggregateMajority)
	responses, err := b.executeBroadcast(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if responses[1].Success {
		t.Fatalf("expected the failing agent's response to fail")
	}
	if responses[1].Source.AgentID != bad.ID {
		t.Errorf("failure Source = %q, want the failing agent %q", responses[1].Source.AgentID, bad.ID)
	}
}
