package agent

import "github.com/a2aforge/meshbus/core"

// Option configures an Agent at construction time.
type Option func(*Agent)

// WithLogger overrides the agent's logger, tagging it with the
// "agent/<id>" component convention when the logger supports it.
func WithLogger(logger core.Logger) Option {
	return func(a *Agent) {
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			a.Logger = cal.WithComponent("agent/" + a.ID)
			return
		}
		a.Logger = logger
	}
}

// WithTelemetry overrides the agent's telemetry sink.
func WithTelemetry(t core.Telemetry) Option {
	return func(a *Agent) { a.Telemetry = t }
}

// WithResourcePool overrides the starting amount for one resource type.
func WithResourcePool(resourceType core.ResourceType, amount int) Option {
	return func(a *Agent) { a.resources[resourceType] = amount }
}

// WithVersion overrides the agent's advertised version string.
func WithVersion(version string) Option {
	return func(a *Agent) { a.Version = version }
}

// WithCircuitBreaker guards tool dispatch with b: a handler is not
// invoked while b reports its circuit open, and the short-circuit is
// classified the same way any other dispatch error is. Accepts
// anything satisfying CanExecute/RecordSuccess/RecordFailure,
// including *resilience.CircuitBreaker.
func WithCircuitBreaker(b interface {
	CanExecute() bool
	RecordSuccess()
	RecordFailure()
}) Option {
	return func(a *Agent) { a.breaker = b }
}

// NewWithOptions constructs an Agent and applies opts in order.
func NewWithOptions(role string, capabilities []string, opts ...Option) *Agent {
	a := New(role, capabilities...)
	for _, opt := range opts {
		opt(a)
	}
	return a
}
