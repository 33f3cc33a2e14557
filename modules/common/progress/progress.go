package progress

import (
	"log"
	"sync"
	"time"
)

// Event types published during a batch run
const (
	EventRunStarted   = "run_started"
	EventBatchCreated = "batch_created"
	EventPolling      = "polling"
	EventWarning      = "warning"
	EventImageReady   = "image_ready"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
)

// Event - one progress update for a run
type Event struct {
	Type      string    `json:"type"`
	RunID     string    `json:"runId"`
	PatternID string    `json:"patternId,omitempty"`
	Layout    string    `json:"layout,omitempty"`
	State     string    `json:"state,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriber struct {
	events chan Event
}

// Hub - in-process pub/sub, one topic per run. Slow subscribers are dropped
// rather than blocking the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]bool
}

// NewHub - empty hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*subscriber]bool),
	}
}

// Subscribe - receive events for one run. The returned cancel func must be
// called when the listener goes away.
func (h *Hub) Subscribe(runID string) (<-chan Event, func()) {
	sub := &subscriber{events: make(chan Event, 64)}

	h.mu.Lock()
	if h.subscribers[runID] == nil {
		h.subscribers[runID] = make(map[*subscriber]bool)
	}
	h.subscribers[runID][sub] = true
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subscribers[runID]; ok {
			if subs[sub] {
				delete(subs, sub)
				close(sub.events)
			}
			if len(subs) == 0 {
				delete(h.subscribers, runID)
			}
		}
		h.mu.Unlock()
	}
	return sub.events, cancel
}

// Publish - fan an event out to every subscriber of its run
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers[event.RunID] {
		select {
		case sub.events <- event:
		default:
			log.Printf("⚠️  Progress subscriber for run %s is not keeping up, dropping event", event.RunID)
		}
	}
}
