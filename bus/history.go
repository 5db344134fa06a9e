package bus

import (
	"sync"

	"github.com/a2aforge/meshbus/core"
)

// HistoryStore lets a bus additionally persist message/response history
// somewhere durable for observability. It is never consulted for
// delivery or consensus decisions.
type HistoryStore interface {
	RecordMessage(m *core.Message)
	RecordResponse(r *core.Response)
}

// history is a bounded ring buffer of recent messages/responses, with
// an optional fan-out to a durable HistoryStore.
type history struct {
	mu        sync.Mutex
	limit     int
	messages  []*core.Message
	responses []*core.Response
	store     HistoryStore
}

func newHistory(limit int, store HistoryStore) *history {
	return &history{limit: limit, store: store}
}

func (h *history) recordMessage(m *core.Message) {
	h.mu.Lock()
	h.messages = append(h.messages, m)
	if len(h.messages) > h.limit {
		h.messages = h.messages[len(h.messages)-h.limit:]
	}
	h.mu.Unlock()
	if h.store != nil {
		h.store.RecordMessage(m)
	}
}

func (h *history) recordResponse(r *core.Response) {
	if r == nil {
		return
	}
	h.mu.Lock()
	h.responses = append(h.responses, r)
	if len(h.responses) > h.limit {
		h.responses = h.responses[len(h.responses)-h.limit:]
	}
	h.mu.Unlock()
	if h.store != nil {
		h.store.RecordResponse(r)
	}
}

func (h *history) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
	h.responses = nil
}

// Messages returns a copy of the currently retained message history.
func (h *history) Messages() []*core.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*core.Message(nil), h.messages...)
}

// Responses returns a copy of the currently retained response history.
func (h *history) Responses() []*core.Response {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*core.Response(nil), h.responses...)
}
