package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/a2aforge/meshbus/core"
)

// ProcessMessage runs the envelope through validation, tool-support
// and resource checks, state reconciliation, and tool dispatch, and
// builds the response. Every short-circuit
// path produces a Response rather than an error; agent-internal
// failures never escape as Go errors.
func (a *Agent) ProcessMessage(m *core.Message) *core.Response {
	_, span := a.Telemetry.StartSpan(context.Background(), "agent.process_message")
	span.SetAttribute("agent_id", a.ID)
	span.SetAttribute("message_id", m.ID)
	span.SetAttribute("tool", m.ToolName)
	defer span.End()

	resp := a.process(m)
	if resp.Success {
		a.Logger.Debug("message processed", map[string]interface{}{
			"message_id": m.ID, "tool": m.ToolName, "processing_time_ms": resp.Metadata.ProcessingTimeMS,
		})
	} else {
		span.RecordError(resp.Error)
		a.Logger.Error("message processing failed", map[string]interface{}{
			"message_id": m.ID, "tool": m.ToolName, "code": string(resp.Error.Code), "error": resp.Error.Message,
		})
	}
	return resp
}

// identity is the AgentIdentifier this agent stamps on every response
// it produces, success or failure.
func (a *Agent) identity() core.AgentIdentifier {
	return core.AgentIdentifier{AgentID: a.ID, Role: a.Role, Capabilities: a.Capabilities, Version: a.Version}
}

// errorResponse builds a failure Response attributed to this agent.
func (a *Agent) errorResponse(m *core.Message, code core.A2AErrorCode, message string, hops int) *core.Response {
	return core.NewErrorResponse(m, a.identity(), code, message, hops)
}

func (a *Agent) process(m *core.Message) *core.Response {
	start := time.Now()
	hops := len(m.Route) + 1

	a.mu.Lock()
	var injectedSleep time.Duration
	if a.hasActiveFailure(FailureTimeout) {
		injectedSleep = a.failures[string(FailureTimeout)].duration + time.Second
	}
	a.mu.Unlock()
	if injectedSleep > 0 {
		time.Sleep(injectedSleep)
	}

	if resp := a.validateEnvelope(m, hops); resp != nil {
		a.emit("messageError", m, resp)
		return resp
	}

	a.mu.Lock()
	toolFailureActive := a.hasActiveFailure(FailureTool)
	_, hasTool := a.tools[m.ToolName]
	a.mu.Unlock()

	if toolFailureActive || !hasTool {
		resp := a.errorResponse(m, core.ErrCodeToolNotSupported,
			fmt.Sprintf("Tool %s not supported", m.ToolName), hops)
		a.emit("messageError", m, resp)
		return resp
	}

	a.mu.Lock()
	a.inFlight++
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.inFlight--
		a.mu.Unlock()
	}()

	// allocation and state reconciliation happen in one critical
	// section: no other message interleaves between them on this agent
	a.mu.Lock()
	usage, resp := a.allocateResources(m, hops)
	if resp == nil {
		resp = a.reconcileState(m, hops)
	}
	a.mu.Unlock()
	if resp != nil {
		a.emit("messageError", m, resp)
		return resp
	}

	result, err := a.dispatchTool(m)
	if err != nil {
		code := core.ClassifyError(err)
		resp := a.errorResponse(m, code, err.Error(), hops)
		a.emit("messageError", m, resp)
		return resp
	}

	resp = &core.Response{
		MessageID:     m.ID,
		CorrelationID: m.EffectiveCorrelationID(),
		Source:        a.identity(),
		Success:       true,
		Result:        result,
		Metadata: core.ResponseMetadata{
			ProcessingTimeMS: time.Since(start).Milliseconds(),
			ResourceUsage:    usage,
			Hops:             hops,
			Cached:           false,
		},
		Timestamp: core.NowMS(),
	}
	a.emit("messageProcessed", m, resp)
	return resp
}

// validateEnvelope rejects envelopes missing required fields and
// messages whose TTL has already elapsed.
func (a *Agent) validateEnvelope(m *core.Message, hops int) *core.Response {
	if m.ID == "" || m.Source.AgentID == "" || m.ToolName == "" {
		return a.errorResponse(m, core.ErrCodeCoordinationFailed, "Malformed message envelope", hops)
	}
	if m.Target.Type == "" {
		return a.errorResponse(m, core.ErrCodeCoordinationFailed, "Malformed message envelope", hops)
	}
	now := core.NowMS()
	if m.IsExpired(now) {
		return a.errorResponse(m, core.ErrCodeTimeout, "Message expired", hops)
	}
	return nil
}

// allocateResources decrements the pools by each requirement in
// declaration order; the first shortfall fails the whole message.
// Partial allocations already committed before the shortfall are not
// rolled back (see DESIGN.md). Callers must hold a.mu.
func (a *Agent) allocateResources(m *core.Message, hops int) (core.ResourceUsage, *core.Response) {
	a.ensureInitialSnapshot()

	// an injected resource failure makes every pool read as empty while
	// the flag is active; the pools themselves revert untouched when it
	// expires
	drained := a.hasActiveFailure(FailureResource)

	for _, req := range m.ResourceRequirements {
		if req.Amount <= 0 {
			continue
		}
		available, ok := a.resources[req.Type]
		if drained {
			available, ok = 0, true
		}
		if !ok || available < req.Amount {
			return core.ResourceUsage{}, a.errorResponse(m, core.ErrCodeInsufficientResources,
				fmt.Sprintf("Insufficient %s: requested %d, available %d", req.Type, req.Amount, available), hops)
		}
		a.resources[req.Type] = available - req.Amount
	}

	usage := core.ResourceUsage{
		CPU:     a.initial[core.ResourceCPU] - a.resources[core.ResourceCPU],
		Memory:  a.initial[core.ResourceMemory] - a.resources[core.ResourceMemory],
		Network: a.initial[core.ResourceNetwork] - a.resources[core.ResourceNetwork],
	}
	return usage, nil
}

// reconcileState applies the message's state requirements to the
// agent's state map in declaration order. Callers must hold a.mu.
func (a *Agent) reconcileState(m *core.Message, hops int) *core.Response {
	if a.hasActiveFailure(FailureState) {
		return a.errorResponse(m, core.ErrCodeStateConflict, "State conflict injected", hops)
	}

	now := core.NowMS()
	for _, req := range m.StateRequirements {
		key := req.CompositeKey()
		switch req.Type {
		case core.StateRead:
			if _, exists := a.state[key]; !exists {
				a.state[key] = &StateRecord{Timestamp: now}
			}
		case core.StateWrite, core.StateExclusive:
			a.state[key] = &StateRecord{Locked: true, Timestamp: now}
		case core.StateShared:
			existing, exists := a.state[key]
			if !exists {
				existing = &StateRecord{}
			}
			existing.Shared = true
			existing.Timestamp = now
			a.state[key] = existing
		default:
			return a.errorResponse(m, core.ErrCodeStateConflict,
				fmt.Sprintf("unknown state requirement type %q", req.Type), hops)
		}
	}
	return nil
}

// dispatchTool invokes the registered handler, or synthesizes the
// stock mock response when none was supplied.
func (a *Agent) dispatchTool(m *core.Message) (interface{}, error) {
	a.mu.Lock()
	handler := a.tools[m.ToolName]
	b := a.breaker
	a.mu.Unlock()

	if handler == nil {
		return map[string]interface{}{
			"tool":       m.ToolName,
			"parameters": m.Parameters,
			"result":     "mock_success",
			"timestamp":  core.NowMS(),
			"agentId":    a.ID,
		}, nil
	}

	if b != nil && !b.CanExecute() {
		return nil, fmt.Errorf("tool %s: circuit breaker open", m.ToolName)
	}

	result, err := handler(m.Parameters)
	if b != nil {
		if err != nil {
			b.RecordFailure()
		} else {
			b.RecordSuccess()
		}
	}
	return result, err
}
