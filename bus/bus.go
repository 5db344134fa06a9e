// Package bus implements the message bus: agent registry, target
// resolution, coordination-mode execution, metrics, and bounded
// history.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/a2aforge/meshbus/agent"
	"github.com/a2aforge/meshbus/core"
)

// registeredAgent pairs an Agent with its registration order, needed
// for the resolver's registration-order tie-break, plus
// the unsubscribe hooks for its metrics event wiring.
type registeredAgent struct {
	agent  *agent.Agent
	order  int
	detach []func()
}

// Bus is a single bus instance: an agent registry plus the coordination
// engine, metrics, and history for that registry. Bus instances are
// never process-wide singletons; each caller owns its own.
type Bus struct {
	Logger    core.Logger
	Telemetry core.Telemetry

	mu        sync.RWMutex
	agents    map[string]*registeredAgent
	nextOrder int
	closed    bool

	metrics *metrics
	history *history

	inFlightMu sync.Mutex
	inFlight   map[string]int

	listeners map[string][]func(args ...interface{})
}

// Config holds the construction-time options a Bus accepts; see
// config.BusConfig for the env/file-driven loader that produces one.
type Config struct {
	Logger       core.Logger
	Telemetry    core.Telemetry
	HistoryLimit int
	HistoryStore HistoryStore
}

// New constructs a Bus. A zero-valued Config uses NoOp logging and
// telemetry and the default history limit.
func New(cfg Config) *Bus {
	if cfg.Logger == nil {
		cfg.Logger = &core.NoOpLogger{}
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = &core.NoOpTelemetry{}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = core.DefaultHistoryLimit
	}
	return &Bus{
		Logger:    cfg.Logger,
		Telemetry: cfg.Telemetry,
		agents:    make(map[string]*registeredAgent),
		metrics:   newMetrics(),
		history:   newHistory(cfg.HistoryLimit, cfg.HistoryStore),
		inFlight:  make(map[string]int),
		listeners: make(map[string][]func(args ...interface{})),
	}
}

// inFlightSnapshot returns a copy of the current per-agent in-flight
// dispatch counts, read by the load-balanced selection strategy.
func (b *Bus) inFlightSnapshot() map[string]int {
	b.inFlightMu.Lock()
	defer b.inFlightMu.Unlock()
	out := make(map[string]int, len(b.inFlight))
	for k, v := range b.inFlight {
		out[k] = v
	}
	return out
}

func (b *Bus) incInFlight(agentID string) {
	b.inFlightMu.Lock()
	b.inFlight[agentID]++
	b.inFlightMu.Unlock()
}

func (b *Bus) decInFlight(agentID string) {
	b.inFlightMu.Lock()
	b.inFlight[agentID]--
	b.inFlightMu.Unlock()
}

// On registers a bus-level event handler ("agentRegistered",
// "agentUnregistered").
func (b *Bus) On(event string, handler func(args ...interface{})) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[event] = append(b.listeners[event], handler)
}

func (b *Bus) emit(event string, args ...interface{}) {
	b.mu.RLock()
	handlers := append(([]func(args ...interface{}))(nil), b.listeners[event]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(args...)
	}
}

// RegisterAgent adds an agent to the registry and wires its
// messageProcessed/messageError events into the bus metrics.
func (b *Bus) RegisterAgent(a *agent.Agent) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return core.ErrBusClosed
	}
	if _, exists := b.agents[a.ID]; exists {
		b.mu.Unlock()
		return core.ErrAgentAlreadyRegistered
	}
	ra := &registeredAgent{agent: a, order: b.nextOrder}
	b.agents[a.ID] = ra
	b.nextOrder++
	b.mu.Unlock()

	record := func(args ...interface{}) {
		if len(args) < 2 {
			return
		}
		if resp, ok := args[1].(*core.Response); ok {
			b.metrics.recordResponse(resp)
		}
	}
	ra.detach = append(ra.detach,
		a.On("messageProcessed", record),
		a.On("messageError", record),
	)

	b.Logger.Info("agent registered", map[string]interface{}{"agent_id": a.ID, "role": a.Role})
	b.emit("agentRegistered", a.ID)
	return nil
}

// UnregisterAgent detaches the agent's metrics event wiring and drops
// it from the registry.
func (b *Bus) UnregisterAgent(agentID string) {
	b.mu.Lock()
	ra := b.agents[agentID]
	delete(b.agents, agentID)
	b.mu.Unlock()
	if ra != nil {
		for _, detach := range ra.detach {
			detach()
		}
	}
	b.Logger.Info("agent unregistered", map[string]interface{}{"agent_id": agentID})
	b.emit("agentUnregistered", agentID)
}

// AgentStatus is one element of ListAgents' result.
type AgentStatus struct {
	agent.Status
}

// ListAgents returns the status of every registered agent.
func (b *Bus) ListAgents() []AgentStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]AgentStatus, 0, len(b.agents))
	for _, ra := range b.agents {
		out = append(out, AgentStatus{Status: ra.agent.GetStatus()})
	}
	return out
}

// lookupAgent returns the agent registered under id, or nil.
func (b *Bus) lookupAgent(id string) *agent.Agent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ra, ok := b.agents[id]
	if !ok {
		return nil
	}
	return ra.agent
}

// snapshotRegistry returns a stable, registration-ordered view of the
// registry for target resolution.
func (b *Bus) snapshotRegistry() []*registeredAgent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*registeredAgent, 0, len(b.agents))
	for _, ra := range b.agents {
		out = append(out, ra)
	}
	return orderByRegistration(out)
}

// Send dispatches m to its resolved single target without retry and
// returns that one response. Unresolvable targets surface as errors.
func (b *Bus) Send(m *core.Message) (*core.Response, error) {
	b.metrics.recordSent(m)
	ids, err := b.resolveTarget(m.Target, m.Source.AgentID)
	if err != nil {
		return nil, &core.FrameworkError{Op: "bus.Send", Kind: "bus", ID: m.ID, Err: err}
	}
	if len(ids) == 0 {
		return nil, &core.FrameworkError{Op: "bus.Send", Kind: "bus", ID: m.ID, Err: core.ErrNoAgentsForTarget}
	}
	a := b.lookupAgent(ids[0])
	if a == nil {
		return nil, &core.FrameworkError{Op: "bus.Send", Kind: "bus", ID: ids[0], Err: core.ErrAgentNotFound}
	}
	b.history.recordMessage(m)
	resp := b.dispatchOne(a, ids[0], m)
	b.history.recordResponse(resp)
	return resp, nil
}

// Broadcast dispatches explicitly to the given id list, tolerating
// individual dispatch failures: an id that isn't registered gets a
// synthesized AGENT_NOT_FOUND response, and a dispatch that panics gets
// a synthesized COORDINATION_FAILED one.
func (b *Bus) Broadcast(m *core.Message, agentIDs []string) []*core.Response {
	b.metrics.recordSent(m)
	return b.dispatchParallel(m, agentIDs)
}

// Route switches on m.Coordination.Mode and delegates to the matching
// executor.
func (b *Bus) Route(m *core.Message) ([]*core.Response, error) {
	_, span := b.Telemetry.StartSpan(context.Background(), "bus.route")
	span.SetAttribute("message_id", m.ID)
	span.SetAttribute("mode", string(m.Coordination.Mode))
	defer span.End()

	responses, err := b.routeByMode(m)
	if err != nil {
		span.RecordError(err)
	}
	b.Telemetry.RecordMetric("bus.messages_routed", 1, map[string]string{"mode": string(m.Coordination.Mode)})
	return responses, err
}

func (b *Bus) routeByMode(m *core.Message) ([]*core.Response, error) {
	b.metrics.recordSent(m)
	switch m.Coordination.Mode {
	case core.CoordinationDirect, "":
		resp, err := b.executeDirect(m)
		if err != nil {
			return nil, err
		}
		return []*core.Response{resp}, nil
	case core.CoordinationBroadcast:
		return b.executeBroadcast(m)
	case core.CoordinationConsensus:
		return b.executeConsensus(m)
	case core.CoordinationPipeline:
		return b.executePipeline(m)
	default:
		return nil, fmt.Errorf("Unsupported coordination mode: %s: %w", m.Coordination.Mode, core.ErrUnknownCoordinationMode)
	}
}

// GetMetrics returns a point-in-time snapshot of bus metrics.
func (b *Bus) GetMetrics() MetricsSnapshot {
	return b.metrics.snapshot()
}

// ResetMetrics zeroes all counters and clears both histories.
func (b *Bus) ResetMetrics() {
	b.metrics.reset()
	b.history.clear()
}

// Close marks the bus closed; further registrations are rejected.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// MessageHistory returns the currently retained message history,
// bounded by the bus's configured HistoryLimit.
func (b *Bus) MessageHistory() []*core.Message {
	return b.history.Messages()
}

// ResponseHistory returns the currently retained response history,
// bounded by the bus's configured HistoryLimit.
func (b *Bus) ResponseHistory() []*core.Response {
	return b.history.Responses()
}
