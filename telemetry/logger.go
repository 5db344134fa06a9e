package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/a2aforge/meshbus/core"
)

// levelRank orders the four log levels for the shouldLog comparison.
var levelRank = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

// StructuredLogger is the module's concrete core.ComponentAwareLogger:
// JSON output in a Kubernetes-shaped environment, human-readable text
// otherwise, with error-level rate limiting so a cascading storm of
// agent failures can't flood stdout. Every StructuredLogger is owned by
// the component that creates it (a Bus, an Agent, a coordination
// executor); there is no process-wide singleton.
type StructuredLogger struct {
	mu        sync.RWMutex
	level     string
	format    string // "json" or "text"
	service   string
	component string
	output    io.Writer
	errors    *RateLimiter
}

// NewStructuredLogger builds a StructuredLogger for service, auto-
// detecting JSON vs text format from KUBERNETES_SERVICE_HOST unless
// LOG_FORMAT overrides it, and defaulting to INFO level unless
// LOG_LEVEL overrides it.
func NewStructuredLogger(service string) *StructuredLogger {
	level := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "INFO"
	}
	format := "text"
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		format = "json"
	}
	if f := os.Getenv("LOG_FORMAT"); f != "" {
		format = f
	}
	return &StructuredLogger{
		level:   level,
		format:  format,
		service: service,
		output:  os.Stdout,
		errors:  NewRateLimiter(time.Second),
	}
}

// WithComponent returns a logger tagging every entry with component
// ("bus/registry", "agent/<id>", ...). It copies this logger's current
// level/format/output and shares its rate limiter.
func (l *StructuredLogger) WithComponent(component string) core.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &StructuredLogger{
		level:     l.level,
		format:    l.format,
		service:   l.service,
		component: component,
		output:    l.output,
		errors:    l.errors,
	}
}

// SetOutput redirects log output; primarily useful in tests.
func (l *StructuredLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

func (l *StructuredLogger) Info(msg string, fields map[string]interface{})  { l.log("INFO", msg, fields) }
func (l *StructuredLogger) Warn(msg string, fields map[string]interface{})  { l.log("WARN", msg, fields) }
func (l *StructuredLogger) Debug(msg string, fields map[string]interface{}) { l.log("DEBUG", msg, fields) }

// Error rate-limits via the shared token-bucket RateLimiter so a burst
// of agent failures produces one log line per window instead of a
// flood.
func (l *StructuredLogger) Error(msg string, fields map[string]interface{}) {
	if l.errors != nil && !l.errors.Allow() {
		return
	}
	l.log("ERROR", msg, fields)
}

func (l *StructuredLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Info(msg, withTraceFields(ctx, fields))
}
func (l *StructuredLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Error(msg, withTraceFields(ctx, fields))
}
func (l *StructuredLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Warn(msg, withTraceFields(ctx, fields))
}
func (l *StructuredLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Debug(msg, withTraceFields(ctx, fields))
}

// withTraceFields is a hook for a future trace/span-ID correlation
// layer; today it passes fields through unchanged.
func withTraceFields(_ context.Context, fields map[string]interface{}) map[string]interface{} {
	return fields
}

func (l *StructuredLogger) log(level, msg string, fields map[string]interface{}) {
	l.mu.RLock()
	format, service, component, output, configured := l.format, l.service, l.component, l.output, l.level
	l.mu.RUnlock()

	if levelRank[level] < levelRank[configured] {
		return
	}

	ts := time.Now().Format(time.RFC3339)
	if format == "json" {
		entry := map[string]interface{}{
			"timestamp": ts,
			"level":     level,
			"service":   service,
			"message":   msg,
		}
		if component != "" {
			entry["component"] = component
		}
		for k, v := range fields {
			if _, reserved := entry[k]; !reserved {
				entry[k] = v
			}
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(output, string(data))
		}
		return
	}

	tag := service
	if component != "" {
		tag = service + ":" + component
	}
	var b strings.Builder
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	fmt.Fprintf(output, "%s [%s] [%s] %s%s\n", ts, level, tag, msg, b.String())
}

// NewNoOpLogger exposes core.NoOpLogger under the telemetry package for
// callers that only import telemetry.
func NewNoOpLogger() core.Logger { return &core.NoOpLogger{} }
