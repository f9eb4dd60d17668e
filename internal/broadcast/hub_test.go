package broadcast_test

import (
	"testing"
	"time"

	"magpie/internal/broadcast"
	"magpie/internal/logging"
)

func progressEvent(jobID, status string) broadcast.Event {
	return broadcast.Event{JobID: jobID, Kind: broadcast.KindProgress, Status: status}
}

func completeEvent(jobID string) broadcast.Event {
	return broadcast.Event{JobID: jobID, Kind: broadcast.KindComplete, Result: &broadcast.Result{Platform: "generic"}}
}

func receiveEvent(t *testing.T, ch <-chan broadcast.Event) broadcast.Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed unexpectedly")
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return broadcast.Event{}
}

func TestSubscribeReceivesLiveEvents(t *testing.T) {
	hub := broadcast.NewHub(logging.NewNop())
	replay, ch, cancel := hub.Subscribe("job-1")
	defer cancel()

	if len(replay) != 0 {
		t.Fatalf("expected empty replay for new job, got %d events", len(replay))
	}

	hub.Publish(progressEvent("job-1", "resolving"))
	evt := receiveEvent(t, ch)
	if evt.Status != "resolving" {
		t.Fatalf("expected resolving event, got %+v", evt)
	}
	if evt.Sequence == 0 {
		t.Error("expected a stamped sequence number")
	}
	if evt.Timestamp.IsZero() {
		t.Error("expected a stamped timestamp")
	}
}

func TestLateSubscriberReplaysFullHistory(t *testing.T) {
	hub := broadcast.NewHub(logging.NewNop())

	hub.Publish(progressEvent("job-1", "resolving"))
	hub.Publish(progressEvent("job-1", "running"))
	hub.Publish(completeEvent("job-1"))

	replay, _, cancel := hub.Subscribe("job-1")
	defer cancel()

	if len(replay) != 3 {
		t.Fatalf("expected 3 replayed events, got %d", len(replay))
	}
	if replay[0].Status != "resolving" || replay[1].Status != "running" {
		t.Errorf("replay out of order: %+v", replay)
	}
	if !replay[2].Terminal() {
		t.Error("expected terminal event last in replay")
	}
	for i := 1; i < len(replay); i++ {
		if replay[i].Sequence <= replay[i-1].Sequence {
			t.Fatalf("sequence numbers not increasing: %d then %d", replay[i-1].Sequence, replay[i].Sequence)
		}
	}
}

func TestFirstTerminalEventWins(t *testing.T) {
	hub := broadcast.NewHub(logging.NewNop())

	hub.Publish(completeEvent("job-1"))
	hub.Publish(broadcast.Event{JobID: "job-1", Kind: broadcast.KindError, Message: "late failure"})
	hub.Publish(progressEvent("job-1", "straggler"))

	history := hub.History("job-1")
	if len(history) != 1 {
		t.Fatalf("expected exactly one event after terminal, got %d", len(history))
	}
	if history[0].Kind != broadcast.KindComplete {
		t.Fatalf("expected complete to win, got %s", history[0].Kind)
	}
	if !hub.Terminal("job-1") {
		t.Error("expected job stream to be terminal")
	}
}

func TestSubscribeAllObservesEveryJob(t *testing.T) {
	hub := broadcast.NewHub(logging.NewNop())
	ch, cancel := hub.SubscribeAll()
	defer cancel()

	hub.Publish(progressEvent("job-a", "running"))
	hub.Publish(progressEvent("job-b", "running"))

	first := receiveEvent(t, ch)
	second := receiveEvent(t, ch)
	seen := map[string]bool{first.JobID: true, second.JobID: true}
	if !seen["job-a"] || !seen["job-b"] {
		t.Fatalf("expected events from both jobs, got %v", seen)
	}
}

func TestReleaseClosesSubscribersAndDropsHistory(t *testing.T) {
	hub := broadcast.NewHub(logging.NewNop())
	_, ch, cancel := hub.Subscribe("job-1")
	defer cancel()

	hub.Publish(completeEvent("job-1"))
	receiveEvent(t, ch)

	hub.Release("job-1")

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel close, got event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}

	if history := hub.History("job-1"); history != nil {
		t.Fatalf("expected history dropped after release, got %d events", len(history))
	}
}

func TestPublishIgnoresEmptyJobID(t *testing.T) {
	hub := broadcast.NewHub(logging.NewNop())
	ch, cancel := hub.SubscribeAll()
	defer cancel()

	hub.Publish(broadcast.Event{Kind: broadcast.KindProgress, Status: "orphan"})

	select {
	case evt := <-ch:
		t.Fatalf("expected no delivery for empty job id, got %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}
}
