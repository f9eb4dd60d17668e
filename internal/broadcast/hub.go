package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"magpie/internal/logging"
)

// subscriberBuffer bounds each subscriber's channel. A consumer that stops
// draining loses events rather than blocking publishers on other jobs.
const subscriberBuffer = 1024

type subscriber struct {
	ch      chan Event
	jobID   string // empty for global observers
	closed  bool
	dropped int
}

type jobStream struct {
	history  []Event
	terminal bool
	subs     []*subscriber
}

// Hub fans job events out to per-job and global subscribers. Every event is
// appended to its job's history so late subscribers replay the full stream.
// The first terminal event per job wins; later terminal publishes are
// dropped and logged as anomalies.
type Hub struct {
	mu      sync.Mutex
	logger  *slog.Logger
	jobs    map[string]*jobStream
	global  []*subscriber
	nextSeq uint64
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logging.NewComponentLogger(logger, "broadcast"),
		jobs:   make(map[string]*jobStream),
	}
}

// Publish stamps and delivers an event. Events published after a job's
// terminal event are discarded.
func (h *Hub) Publish(evt Event) {
	if evt.JobID == "" {
		return
	}

	h.mu.Lock()
	stream, ok := h.jobs[evt.JobID]
	if !ok {
		stream = &jobStream{}
		h.jobs[evt.JobID] = stream
	}
	if stream.terminal {
		h.mu.Unlock()
		if evt.Terminal() {
			h.logger.Warn("duplicate terminal event dropped",
				logging.JobID(evt.JobID),
				logging.String(logging.FieldEventType, "duplicate_terminal"),
				logging.String("kind", string(evt.Kind)))
		} else {
			h.logger.Debug("event after terminal dropped",
				logging.JobID(evt.JobID),
				logging.String("kind", string(evt.Kind)))
		}
		return
	}

	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if evt.Terminal() {
		stream.terminal = true
	}
	stream.history = append(stream.history, evt)

	targets := make([]*subscriber, 0, len(stream.subs)+len(h.global))
	targets = append(targets, stream.subs...)
	targets = append(targets, h.global...)
	var overflowed []*subscriber
	for _, sub := range targets {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			sub.dropped++
			if sub.dropped == 1 {
				overflowed = append(overflowed, sub)
			}
		}
	}
	h.mu.Unlock()

	for _, sub := range overflowed {
		h.logger.Warn("subscriber buffer full, dropping events",
			logging.JobID(sub.jobID),
			logging.String(logging.FieldEventType, "subscriber_overflow"),
			logging.String(logging.FieldErrorHint, "consumer is not draining its event stream"))
	}
}

// Subscribe attaches to one job's stream. The returned slice replays the
// job's full history so far; the channel carries everything after that.
// Call cancel when done; the channel is closed on cancel and on Release.
func (h *Hub) Subscribe(jobID string) ([]Event, <-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer), jobID: jobID}

	h.mu.Lock()
	stream, ok := h.jobs[jobID]
	if !ok {
		stream = &jobStream{}
		h.jobs[jobID] = stream
	}
	replay := make([]Event, len(stream.history))
	copy(replay, stream.history)
	stream.subs = append(stream.subs, sub)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if stream, ok := h.jobs[jobID]; ok {
			stream.subs = removeSubscriber(stream.subs, sub)
		}
		closeSubscriberLocked(sub)
	}
	return replay, sub.ch, cancel
}

// SubscribeAll attaches a passive observer that receives every event from
// every job. Global observers get no replay.
func (h *Hub) SubscribeAll() (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	h.global = append(h.global, sub)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.global = removeSubscriber(h.global, sub)
		closeSubscriberLocked(sub)
	}
	return sub.ch, cancel
}

// History returns a copy of the events published for a job so far.
func (h *Hub) History(jobID string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	stream, ok := h.jobs[jobID]
	if !ok {
		return nil
	}
	out := make([]Event, len(stream.history))
	copy(out, stream.history)
	return out
}

// Terminal reports whether the job's stream has ended.
func (h *Hub) Terminal(jobID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	stream, ok := h.jobs[jobID]
	return ok && stream.terminal
}

// Release drops a job's history and closes its remaining subscribers. The
// orchestrator calls this when the job is evicted after its retention window.
func (h *Hub) Release(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stream, ok := h.jobs[jobID]
	if !ok {
		return
	}
	for _, sub := range stream.subs {
		closeSubscriberLocked(sub)
	}
	delete(h.jobs, jobID)
}

func removeSubscriber(subs []*subscriber, target *subscriber) []*subscriber {
	for i, sub := range subs {
		if sub == target {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

func closeSubscriberLocked(sub *subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
}
