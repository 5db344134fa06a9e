package core

import "testing"

func TestNewMessage_Defaults(t *testing.T) {
	m := NewMessage(AgentIdentifier{AgentID: "src"}, Target{Type: TargetSingle, AgentID: "A"}, "t1", nil)
	if m.ID == "" {
		t.Fatalf("expected a generated message id")
	}
	if m.Coordination.Mode != CoordinationDirect {
		t.Errorf("Coordination.Mode = %q, want direct", m.Coordination.Mode)
	}
	if m.TTL != 30000 || m.Timestamp == 0 {
		t.Errorf("unexpected ttl/timestamp defaults: %d/%d", m.TTL, m.Timestamp)
	}
	if m.RetryPolicy.MaxRetries != DefaultRetryPolicy().MaxRetries {
		t.Errorf("expected default retry policy")
	}
}

func TestMessage_EffectiveCorrelationID(t *testing.T) {
	m := &Message{ID: "m1"}
	if got := m.EffectiveCorrelationID(); got != "m1" {
		t.Errorf("expected correlation id to default to id, got %q", got)
	}
	m.CorrelationID = "corr-1"
	if got := m.EffectiveCorrelationID(); got != "corr-1" {
		t.Errorf("expected explicit correlation id, got %q", got)
	}
}

func TestMessage_IsExpired(t *testing.T) {
	m := &Message{Timestamp: 1000, TTL: 500}
	if !m.IsExpired(1600) {
		t.Errorf("expected message to be expired at now=1600")
	}
	if m.IsExpired(1400) {
		t.Errorf("expected message not expired at now=1400")
	}
}

func TestRetryPolicy_IsRetryable(t *testing.T) {
	p := RetryPolicy{RetryableErrors: []A2AErrorCode{ErrCodeTimeout, ErrCodeCoordinationFailed}}
	if !p.IsRetryable(ErrCodeTimeout) {
		t.Errorf("expected TIMEOUT to be retryable")
	}
	if p.IsRetryable(ErrCodeAgentNotFound) {
		t.Errorf("expected AGENT_NOT_FOUND to not be retryable")
	}
}

func TestStateRequirement_CompositeKey(t *testing.T) {
	r := StateRequirement{Namespace: "ns", Keys: []string{"a", "b"}}
	if got := r.CompositeKey(); got != "ns:a:b" {
		t.Errorf("CompositeKey() = %q, want %q", got, "ns:a:b")
	}
}
