package agent

import "time"

// FailureType names an injectable failure mode.
type FailureType string

const (
	FailureTimeout  FailureType = "timeout"
	FailureResource FailureType = "resource"
	FailureTool     FailureType = "tool"
	FailureState    FailureType = "state"
)

// SimulateFailure activates a time-bounded failure of the given type;
// the flag clears itself automatically after duration elapses. timeout
// delays dispatch by duration+1s; resource makes every pool read as
// empty; tool makes every tool unsupported; state forces a conflict in
// reconcileState.
func (a *Agent) SimulateFailure(failureType FailureType, duration time.Duration) {
	a.mu.Lock()
	a.failures[string(failureType)] = &failureFlag{
		active:   true,
		expireAt: time.Now().Add(duration),
		duration: duration,
	}
	a.mu.Unlock()

	a.emit("failureSimulated", failureType, duration)

	time.AfterFunc(duration, func() {
		a.mu.Lock()
		delete(a.failures, string(failureType))
		a.mu.Unlock()
	})
}

// hasActiveFailure reports whether failureType is currently injected.
// Callers must hold a.mu.
func (a *Agent) hasActiveFailure(failureType FailureType) bool {
	flag, ok := a.failures[string(failureType)]
	return ok && flag.active
}
