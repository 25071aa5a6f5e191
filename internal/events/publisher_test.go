package events

import (
	"sync"
	"testing"
	"time"
)

func TestNewEvent(t *testing.T) {
	before := time.Now()
	event := NewEvent(EventMergeStarted, "/repos/proj", map[string]string{"strategy": "merge"})
	after := time.Now()

	if event.Type != EventMergeStarted {
		t.Errorf("expected type %s, got %s", EventMergeStarted, event.Type)
	}
	if event.Repo != "/repos/proj" {
		t.Errorf("expected repo /repos/proj, got %s", event.Repo)
	}
	if event.Time.Before(before) || event.Time.After(after) {
		t.Errorf("event time %v not between %v and %v", event.Time, before, after)
	}
}

func TestMemoryPublisher_PublishAndSubscribe(t *testing.T) {
	pub := NewMemoryPublisher()
	defer pub.Close()

	// Subscribe to repo
	ch := pub.Subscribe("/repos/proj")

	// Publish event
	event := NewEvent(EventMergeStarted, "/repos/proj", "test data")
	pub.Publish(event)

	// Receive event
	select {
	case received := <-ch:
		if received.Type != EventMergeStarted {
			t.Errorf("expected type %s, got %s", EventMergeStarted, received.Type)
		}
		if received.Repo != "/repos/proj" {
			t.Errorf("expected repo /repos/proj, got %s", received.Repo)
		}
		if received.Data != "test data" {
			t.Errorf("expected data 'test data', got %v", received.Data)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestMemoryPublisher_MultipleSubscribers(t *testing.T) {
	pub := NewMemoryPublisher()
	defer pub.Close()

	// Multiple subscribers
	ch1 := pub.Subscribe("/repos/proj")
	ch2 := pub.Subscribe("/repos/proj")

	// Publish event
	event := NewEvent(EventMergeProgress, "/repos/proj", "phase data")
	pub.Publish(event)

	// Both should receive
	received := 0
loop:
	for i := 0; i < 2; i++ {
		select {
		case <-ch1:
			received++
		case <-ch2:
			received++
		case <-time.After(100 * time.Millisecond):
			break loop
		}
	}

	if received != 2 {
		t.Errorf("expected 2 receivers, got %d", received)
	}
}

func TestMemoryPublisher_DifferentRepos(t *testing.T) {
	pub := NewMemoryPublisher()
	defer pub.Close()

	ch1 := pub.Subscribe("/repos/alpha")
	ch2 := pub.Subscribe("/repos/beta")

	// Publish to alpha only
	event := NewEvent(EventMergeStarted, "/repos/alpha", "data")
	pub.Publish(event)

	// alpha should receive
	select {
	case <-ch1:
		// Expected
	case <-time.After(100 * time.Millisecond):
		t.Error("alpha subscriber should have received event")
	}

	// beta should not receive
	select {
	case <-ch2:
		t.Error("beta subscriber should not have received event")
	case <-time.After(50 * time.Millisecond):
		// Expected
	}
}

func TestMemoryPublisher_GlobalSubscriber(t *testing.T) {
	pub := NewMemoryPublisher()
	defer pub.Close()

	global := pub.Subscribe(GlobalRepo)

	pub.Publish(NewEvent(EventWorktreeCreated, "/repos/alpha", nil))
	pub.Publish(NewEvent(EventWorktreeRemoved, "/repos/beta", nil))

	received := 0
	for received < 2 {
		select {
		case <-global:
			received++
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("global subscriber received %d events, want 2", received)
		}
	}
}

func TestMemoryPublisher_Unsubscribe(t *testing.T) {
	pub := NewMemoryPublisher()
	defer pub.Close()

	ch := pub.Subscribe("/repos/proj")

	if pub.SubscriberCount("/repos/proj") != 1 {
		t.Errorf("expected 1 subscriber, got %d", pub.SubscriberCount("/repos/proj"))
	}

	pub.Unsubscribe("/repos/proj", ch)

	if pub.SubscriberCount("/repos/proj") != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", pub.SubscriberCount("/repos/proj"))
	}

	// Channel should be closed
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("channel should be closed")
		}
	default:
		// Channel might be empty but should be closed
	}
}

func TestMemoryPublisher_Close(t *testing.T) {
	pub := NewMemoryPublisher()

	ch1 := pub.Subscribe("/repos/alpha")
	ch2 := pub.Subscribe("/repos/beta")

	pub.Close()

	// Channels should be closed
	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case _, ok := <-ch:
			if ok {
				t.Error("channel should be closed after publisher Close()")
			}
		default:
			// Empty but might not be closed yet - wait a bit
		}
	}

	// Publish after close should not panic
	pub.Publish(NewEvent(EventMergeStarted, "/repos/alpha", "data"))

	// Subscribe after close should return closed channel
	ch := pub.Subscribe("/repos/gamma")
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("subscribe after close should return closed channel")
		}
	default:
		// Empty closed channel
	}
}

func TestMemoryPublisher_NonBlockingPublish(t *testing.T) {
	// Small buffer to test non-blocking behavior
	pub := NewMemoryPublisher(WithBufferSize(1))
	defer pub.Close()

	ch := pub.Subscribe("/repos/proj")

	// Fill the buffer
	pub.Publish(NewEvent(EventMergeProgress, "/repos/proj", "event1"))

	// This should not block even though buffer is full
	done := make(chan bool)
	go func() {
		pub.Publish(NewEvent(EventMergeProgress, "/repos/proj", "event2"))
		pub.Publish(NewEvent(EventMergeProgress, "/repos/proj", "event3"))
		done <- true
	}()

	select {
	case <-done:
		// Good, didn't block
	case <-time.After(100 * time.Millisecond):
		t.Error("publish should not block when buffer is full")
	}

	// Drain the channel
	<-ch
}

func TestMemoryPublisher_Concurrent(t *testing.T) {
	pub := NewMemoryPublisher()
	defer pub.Close()

	var wg sync.WaitGroup
	repo := "/repos/proj"

	// Concurrent subscribers
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := pub.Subscribe(repo)
			// Read some events
			for j := 0; j < 5; j++ {
				select {
				case <-ch:
				case <-time.After(200 * time.Millisecond):
				}
			}
			pub.Unsubscribe(repo, ch)
		}()
	}

	// Concurrent publishers
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				pub.Publish(NewEvent(EventMergeProgress, repo, i*10+j))
			}
		}(i)
	}

	wg.Wait()
}

func TestMemoryPublisher_SubscriberCount(t *testing.T) {
	pub := NewMemoryPublisher()
	defer pub.Close()

	if pub.RepoCount() != 0 {
		t.Errorf("expected 0 repos, got %d", pub.RepoCount())
	}

	ch1 := pub.Subscribe("/repos/alpha")
	ch2 := pub.Subscribe("/repos/alpha")
	pub.Subscribe("/repos/beta")

	if pub.SubscriberCount("/repos/alpha") != 2 {
		t.Errorf("expected 2 subscribers for alpha, got %d", pub.SubscriberCount("/repos/alpha"))
	}
	if pub.SubscriberCount("/repos/beta") != 1 {
		t.Errorf("expected 1 subscriber for beta, got %d", pub.SubscriberCount("/repos/beta"))
	}
	if pub.RepoCount() != 2 {
		t.Errorf("expected 2 repos, got %d", pub.RepoCount())
	}

	pub.Unsubscribe("/repos/alpha", ch1)
	pub.Unsubscribe("/repos/alpha", ch2)

	if pub.RepoCount() != 1 {
		t.Errorf("expected 1 repo after unsubscribe, got %d", pub.RepoCount())
	}
}

func TestNopPublisher(t *testing.T) {
	pub := NewNopPublisher()

	// Should not panic
	pub.Publish(NewEvent(EventMergeStarted, "/repos/proj", "data"))

	// Subscribe returns closed channel
	ch := pub.Subscribe("/repos/proj")
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("nop publisher subscribe should return closed channel")
		}
	default:
		// Empty closed channel
	}

	// Should not panic
	pub.Unsubscribe("/repos/proj", ch)
	pub.Close()
}

func TestMergeUpdate(t *testing.T) {
	update := MergeUpdate{
		Phase:        "merging",
		SourceBranch: "feature/login",
		TargetBranch: "main",
		Strategy:     "squash",
	}

	if update.Phase != "merging" {
		t.Errorf("expected phase merging, got %s", update.Phase)
	}
	if update.Strategy != "squash" {
		t.Errorf("expected strategy squash, got %s", update.Strategy)
	}
}

func TestStashUpdate(t *testing.T) {
	update := StashUpdate{
		TreePath: "/repos/proj/.worktrees/feat",
		Status:   "stashed",
	}

	if update.Status != "stashed" {
		t.Errorf("expected status stashed, got %s", update.Status)
	}
}

func TestConflictUpdate(t *testing.T) {
	update := ConflictUpdate{
		Files: []string{"src/app.ts", "README.md"},
		Count: 2,
	}

	if update.Count != len(update.Files) {
		t.Errorf("count %d does not match files length %d", update.Count, len(update.Files))
	}
}
