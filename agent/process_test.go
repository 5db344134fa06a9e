package agent

import (
	"testing"
	"time"

	"github.com/a2aforge/meshbus/core"
)

func directMessage(a *Agent, tool string) *core.Message {
	return &core.Message{
		ID:        "m1",
		Source:    core.AgentIdentifier{AgentID: "src", Role: "tester"},
		Target:    core.Target{Type: core.TargetSingle, AgentID: a.ID},
		ToolName:  tool,
		Timestamp: core.NowMS(),
		TTL:       30000,
		Coordination: core.Coordination{
			Mode:           core.CoordinationDirect,
			Timeout:        5 * time.Second,
			Acknowledgment: true,
		},
	}
}

// Direct success with the default mock handler.
func TestProcessMessage_DirectSuccess(t *testing.T) {
	a := New("worker")
	a.AddTool("t1", nil)

	m := directMessage(a, "t1")
	m.Parameters = map[string]interface{}{"x": 1}

	resp := a.ProcessMessage(m)
	if !resp.Success {
		t.Fatalf("expected success, got error %+v", resp.Error)
	}
	if resp.MessageID != "m1" {
		t.Errorf("MessageID = %q, want m1", resp.MessageID)
	}
	if resp.CorrelationID != "m1" {
		t.Errorf("CorrelationID = %q, want m1 (defaulted)", resp.CorrelationID)
	}
	if resp.Metadata.Hops != 1 {
		t.Errorf("Hops = %d, want 1", resp.Metadata.Hops)
	}
}

// An already-expired message fails with TIMEOUT.
func TestProcessMessage_TTLExpiry(t *testing.T) {
	a := New("worker")
	a.AddTool("t1", nil)

	m := directMessage(a, "t1")
	m.Timestamp = core.NowMS() - 60000
	m.TTL = 1000

	resp := a.ProcessMessage(m)
	if resp.Success {
		t.Fatalf("expected failure for expired message")
	}
	if resp.Error.Code != core.ErrCodeTimeout {
		t.Errorf("Error.Code = %v, want TIMEOUT", resp.Error.Code)
	}
}

// A requirement exceeding the pool fails with INSUFFICIENT_RESOURCES.
func TestProcessMessage_InsufficientResources(t *testing.T) {
	a := New("worker")
	a.AddTool("t1", nil)

	m := directMessage(a, "t1")
	m.ResourceRequirements = []core.ResourceRequirement{
		{Type: core.ResourceCPU, Amount: 150},
	}

	resp := a.ProcessMessage(m)
	if resp.Success {
		t.Fatalf("expected failure for insufficient resources")
	}
	if resp.Error.Code != core.ErrCodeInsufficientResources {
		t.Errorf("Error.Code = %v, want INSUFFICIENT_RESOURCES", resp.Error.Code)
	}
}

func TestProcessMessage_ToolNotSupported(t *testing.T) {
	a := New("worker")
	m := directMessage(a, "unknown-tool")
	resp := a.ProcessMessage(m)
	if resp.Success {
		t.Fatalf("expected failure for unsupported tool")
	}
	if resp.Error.Code != core.ErrCodeToolNotSupported {
		t.Errorf("Error.Code = %v, want TOOL_NOT_SUPPORTED", resp.Error.Code)
	}
	if resp.Error.Recoverable {
		t.Errorf("TOOL_NOT_SUPPORTED must not be recoverable")
	}
}

func TestProcessMessage_CustomHandler(t *testing.T) {
	a := New("worker")
	a.AddTool("echo", func(params interface{}) (interface{}, error) {
		return params, nil
	})
	m := directMessage(a, "echo")
	m.Parameters = "hello"

	resp := a.ProcessMessage(m)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp.Error)
	}
	if resp.Result != "hello" {
		t.Errorf("Result = %v, want hello", resp.Result)
	}
}

func TestProcessMessage_ResourceUsageReportsDelta(t *testing.T) {
	a := New("worker")
	a.AddTool("t1", nil)
	m := directMessage(a, "t1")
	m.ResourceRequirements = []core.ResourceRequirement{
		{Type: core.ResourceCPU, Amount: 10},
	}
	resp := a.ProcessMessage(m)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp.Error)
	}
	if resp.Metadata.ResourceUsage.CPU != 10 {
		t.Errorf("ResourceUsage.CPU = %d, want 10", resp.Metadata.ResourceUsage.CPU)
	}
}

func TestProcessMessage_StateRequirements(t *testing.T) {
	a := New("worker")
	a.AddTool("t1", nil)
	m := directMessage(a, "t1")
	m.StateRequirements = []core.StateRequirement{
		{Type: core.StateRead, Namespace: "ns", Keys: []string{"k1"}},
		{Type: core.StateWrite, Namespace: "ns", Keys: []string{"k2"}},
	}
	resp := a.ProcessMessage(m)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp.Error)
	}
}

func TestSimulateFailure_Tool(t *testing.T) {
	a := New("worker")
	a.AddTool("t1", nil)
	a.SimulateFailure(FailureTool, 50*time.Millisecond)

	resp := a.ProcessMessage(directMessage(a, "t1"))
	if resp.Success {
		t.Fatalf("expected tool failure to be injected")
	}
	if resp.Error.Code != core.ErrCodeToolNotSupported {
		t.Errorf("Error.Code = %v, want TOOL_NOT_SUPPORTED", resp.Error.Code)
	}

	time.Sleep(60 * time.Millisecond)
	resp = a.ProcessMessage(directMessage(a, "t1"))
	if !resp.Success {
		t.Fatalf("expected failure injection to have expired")
	}
}

func TestSimulateFailure_Resource(t *testing.T) {
	a := New("worker")
	a.AddTool("t1", nil)
	a.SimulateFailure(FailureResource, 50*time.Millisecond)

	m := directMessage(a, "t1")
	m.ResourceRequirements = []core.ResourceRequirement{{Type: core.ResourceCPU, Amount: 1}}
	resp := a.ProcessMessage(m)
	if resp.Success {
		t.Fatalf("expected resource failure to be injected")
	}
	if resp.Error.Code != core.ErrCodeInsufficientResources {
		t.Errorf("Error.Code = %v, want INSUFFICIENT_RESOURCES", resp.Error.Code)
	}

	time.Sleep(60 * time.Millisecond)
	resp = a.ProcessMessage(m)
	if !resp.Success {
		t.Fatalf("expected pools to be usable again after expiry, got %+v", resp.Error)
	}
}

func TestSimulateFailure_State(t *testing.T) {
	a := New("worker")
	a.AddTool("t1", nil)
	a.SimulateFailure(FailureState, 50*time.Millisecond)

	m := directMessage(a, "t1")
	m.StateRequirements = []core.StateRequirement{{Type: core.StateRead, Namespace: "ns", Keys: []string{"k"}}}
	resp := a.ProcessMessage(m)
	if resp.Success {
		t.Fatalf("expected state conflict to be injected")
	}
	if resp.Error.Code != core.ErrCodeStateConflict {
		t.Errorf("Error.Code = %v, want STATE_CONFLICT", resp.Error.Code)
	}
}

func TestSimulateFailure_Timeout(t *testing.T) {
	a := New("worker")
	a.AddTool("t1", nil)
	a.SimulateFailure(FailureTimeout, 10*time.Millisecond)

	start := time.Now()
	resp := a.ProcessMessage(directMessage(a, "t1"))
	elapsed := time.Since(start)
	if !resp.Success {
		t.Fatalf("expected eventual success after injected delay, got %+v", resp.Error)
	}
	if elapsed < 1*time.Second {
		t.Errorf("expected injected sleep of duration+1s, elapsed only %v", elapsed)
	}
}

func TestAddRemoveTool(t *testing.T) {
	a := New("worker")
	a.AddTool("t1", nil)
	status := a.GetStatus()
	if len(status.SupportedTools) != 1 {
		t.Fatalf("expected 1 supported tool, got %d", len(status.SupportedTools))
	}
	a.RemoveTool("t1")
	status = a.GetStatus()
	if len(status.SupportedTools) != 0 {
		t.Fatalf("expected 0 supported tools after removal, got %d", len(status.SupportedTools))
	}
}

func TestEvents_MessageProcessedAndError(t *testing.T) {
	a := New("worker")
	a.AddTool("t1", nil)

	var processed, failed bool
	a.On("messageProcessed", func(args ...interface{}) { processed = true })
	a.On("messageError", func(args ...interface{}) { failed = true })

	a.ProcessMessage(directMessage(a, "t1"))
	if !processed {
		t.Errorf("expected messageProcessed to fire on success")
	}

	a.ProcessMessage(directMessage(a, "missing"))
	if !failed {
		t.Errorf("expected messageError to fire on failure")
	}
}

func TestProcessMessage_HopsAndCorrelation(t *testing.T) {
	a := New("worker")
	a.AddTool("t1", nil)

	m := directMessage(a, "t1")
	m.CorrelationID = "corr-9"
	m.Route = []string{"gateway", "relay"}

	resp := a.ProcessMessage(m)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp.Error)
	}
	if resp.Metadata.Hops != 3 {
		t.Errorf("Hops = %d, want 3 (route length + 1)", resp.Metadata.Hops)
	}
	if resp.CorrelationID != "corr-9" {
		t.Errorf("CorrelationID = %q, want corr-9", resp.CorrelationID)
	}
}

func TestProcessMessage_ErrorResponseAttributedToAgent(t *testing.T) {
	a := New("worker")
	m := directMessage(a, "missing")

	resp := a.ProcessMessage(m)
	if resp.Success {
		t.Fatalf("expected failure for unsupported tool")
	}
	if resp.Source.AgentID != a.ID || resp.Source.Role != a.Role {
		t.Errorf("error Source = %+v, want the responding agent %s", resp.Source, a.ID)
	}
}
