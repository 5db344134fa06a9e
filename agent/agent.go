// Package agent implements the per-agent runtime: tool dispatch,
// resource pools, state reconciliation, and failure injection, built
// against the envelope types in core.
package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/a2aforge/meshbus/core"
)

// ToolHandler executes a named tool against opaque parameters. A nil
// handler means the agent supports the tool only via the default mock
// response.
type ToolHandler func(parameters interface{}) (interface{}, error)

// StateRecord is the opaque value an agent's state map holds at a
// composite key.
type StateRecord struct {
	Locked    bool        `json:"locked,omitempty"`
	Shared    bool        `json:"shared,omitempty"`
	Conflict  bool        `json:"conflict,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Value     interface{} `json:"value,omitempty"`
}

// failureFlag is a time-bounded failure-injection toggle for one
// failure type. duration is the value passed to SimulateFailure,
// reused by the "timeout" type as its injected sleep length.
type failureFlag struct {
	active   bool
	expireAt time.Time
	duration time.Duration
}

// Status is the snapshot returned by GetStatus.
type Status struct {
	ID             string         `json:"id"`
	Role           string         `json:"role"`
	Capabilities   []string       `json:"capabilities"`
	SupportedTools []string       `json:"supported_tools"`
	Resources      map[string]int `json:"resources"`
	MessageQueue   int            `json:"message_queue"`
	Uptime         time.Duration  `json:"uptime"`
}

// EventHandler receives agent lifecycle events. Multiple handlers may
// be registered per event name; delivery order matches registration
// order and runs synchronously on the goroutine that emitted the event.
type EventHandler func(args ...interface{})

// listenerEntry wraps a handler so On can hand back an unsubscribe
// that removes exactly this registration.
type listenerEntry struct {
	fn EventHandler
}

// Agent is a single in-process addressable unit that executes named
// tools against JSON-shaped parameters.
type Agent struct {
	ID           string
	Role         string
	Capabilities []string
	Version      string

	Logger    core.Logger
	Telemetry core.Telemetry

	mu         sync.Mutex
	tools      map[string]ToolHandler
	resources  map[core.ResourceType]int
	initial    map[core.ResourceType]int
	state      map[string]*StateRecord
	failures   map[string]*failureFlag
	startedAt  time.Time
	inFlight   int // queue depth proxy for GetStatus.MessageQueue
	listeners  map[string][]*listenerEntry
	breaker    breaker // optional guard around tool dispatch, see WithCircuitBreaker
}

// breaker is the minimal surface Agent needs from a circuit breaker,
// satisfied by *resilience.CircuitBreaker. Kept as an interface so
// agent does not import resilience unless a caller opts in.
type breaker interface {
	CanExecute() bool
	RecordSuccess()
	RecordFailure()
}

// New constructs an Agent with default resource pools.
func New(role string, capabilities ...string) *Agent {
	return &Agent{
		ID:           fmt.Sprintf("%s-%s", role, uuid.New().String()[:8]),
		Role:         role,
		Capabilities: capabilities,
		Version:      "1.0.0",
		Logger:       &core.NoOpLogger{},
		Telemetry:    &core.NoOpTelemetry{},
		tools:        make(map[string]ToolHandler),
		resources: map[core.ResourceType]int{
			core.ResourceCPU:     core.DefaultCPUPool,
			core.ResourceMemory:  core.DefaultMemoryPool,
			core.ResourceNetwork: core.DefaultNetworkPool,
		},
		state:     make(map[string]*StateRecord),
		failures:  make(map[string]*failureFlag),
		startedAt: time.Now(),
		listeners: make(map[string][]*listenerEntry),
	}
	// initial pool snapshot is taken lazily on first ProcessMessage call
	// so WithResourcePool overrides (see options.go) are reflected.
}

func (a *Agent) ensureInitialSnapshot() {
	if a.initial != nil {
		return
	}
	a.initial = make(map[core.ResourceType]int, len(a.resources))
	for k, v := range a.resources {
		a.initial[k] = v
	}
}

// AddTool registers a tool by name. A nil handler means "supported but
// dispatches via the default mock response".
func (a *Agent) AddTool(name string, handler ToolHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tools[name] = handler
}

// RemoveTool deregisters a tool.
func (a *Agent) RemoveTool(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tools, name)
}

// On registers an event handler for the named agent event
// ("messageProcessed", "messageError", "failureSimulated") and returns
// a function that removes it again. The bus uses this to detach its
// metrics wiring when the agent is unregistered.
func (a *Agent) On(event string, handler EventHandler) func() {
	entry := &listenerEntry{fn: handler}
	a.mu.Lock()
	a.listeners[event] = append(a.listeners[event], entry)
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		list := a.listeners[event]
		for i, e := range list {
			if e == entry {
				a.listeners[event] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (a *Agent) emit(event string, args ...interface{}) {
	a.mu.Lock()
	entries := append([]*listenerEntry(nil), a.listeners[event]...)
	a.mu.Unlock()
	for _, e := range entries {
		e.fn(args...)
	}
}

// GetStatus returns a snapshot of the agent's current condition.
func (a *Agent) GetStatus() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	tools := make([]string, 0, len(a.tools))
	for name := range a.tools {
		tools = append(tools, name)
	}
	resources := make(map[string]int, len(a.resources))
	for k, v := range a.resources {
		resources[string(k)] = v
	}
	return Status{
		ID:             a.ID,
		Role:           a.Role,
		Capabilities:   append([]string(nil), a.Capabilities...),
		SupportedTools: tools,
		Resources:      resources,
		MessageQueue:   a.inFlight,
		Uptime:         time.Since(a.startedAt),
	}
}
