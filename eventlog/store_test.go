package eventlog

import (
	"sync"
	"testing"
	"time"
)

func TestAppendSubscribeOrder(t *testing.T) {
	store := New("claude", 0)
	store.Append(NormalizedEvent{Type: EntryOutput, Content: "one", AgentType: "claude"})
	store.Append(NormalizedEvent{Type: EntryOutput, Content: "two", AgentType: "claude"})

	sub := store.Subscribe()
	defer sub.Unsubscribe()

	store.Append(NormalizedEvent{Type: EntryOutput, Content: "three", AgentType: "claude"})

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case e := <-sub.Events:
			got = append(got, e.Content)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	want := []string{"one", "two", "three"}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("event %d = %q, want %q", i, got[i], w)
		}
	}
}

func TestSubscribeAfterTIsSuffixOfGlobalOrder(t *testing.T) {
	store := New("cursor", 0)
	store.Append(NormalizedEvent{Type: EntryOutput, Content: "before", AgentType: "cursor"})

	sub := store.Subscribe()
	defer sub.Unsubscribe()

	store.Append(NormalizedEvent{Type: EntryOutput, Content: "after-1", AgentType: "cursor"})
	store.Append(NormalizedEvent{Type: EntryOutput, Content: "after-2", AgentType: "cursor"})

	e1 := <-sub.Events
	if e1.Content != "before" {
		t.Fatalf("expected replay of buffered event first, got %q", e1.Content)
	}
	e2 := <-sub.Events
	if e2.Content != "after-1" {
		t.Fatalf("expected after-1, got %q", e2.Content)
	}
	e3 := <-sub.Events
	if e3.Content != "after-2" {
		t.Fatalf("expected after-2, got %q", e3.Content)
	}
}

func TestSlowSubscriberIsEvictedWithMarker(t *testing.T) {
	store := New("claude", 2) // tiny buffer to force eviction
	sub := store.Subscribe()
	defer sub.Unsubscribe()

	for i := 0; i < 50; i++ {
		store.Append(NormalizedEvent{Type: EntryOutput, Content: "x", AgentType: "claude"})
	}

	// Drain until Done closes; the last delivered event should be a System
	// marker, and no goroutine should have blocked (Append above already
	// returned, proving the producer was never blocked).
	var last NormalizedEvent
	timeout := time.After(2 * time.Second)
drain:
	for {
		select {
		case e, ok := <-sub.Events:
			if !ok {
				break drain
			}
			last = e
		case <-sub.Done:
			break drain
		case <-timeout:
			t.Fatal("timed out waiting for eviction")
		}
	}

	if last.Type != EntrySystem {
		t.Errorf("expected last event to be a System drop marker, got %v: %q", last.Type, last.Content)
	}
}

func TestCloseSignalsNoMoreWrites(t *testing.T) {
	store := New("claude", 0)
	sub := store.Subscribe()
	store.Append(NormalizedEvent{Type: EntryOutput, Content: "last", AgentType: "claude"})
	store.Close()

	var got []NormalizedEvent
	for e := range sub.Events {
		got = append(got, e)
	}
	select {
	case <-sub.Done:
	case <-time.After(time.Second):
		t.Fatal("Done was not closed after Events drained")
	}
	if len(got) != 1 || got[0].Content != "last" {
		t.Errorf("expected exactly the buffered event, got %+v", got)
	}

	// Append after Close is a silent no-op.
	store.Append(NormalizedEvent{Type: EntryOutput, Content: "too-late", AgentType: "claude"})
	if n := store.Len(); n != 1 {
		t.Errorf("expected Len()==1 after Close, got %d", n)
	}
}

func TestConcurrentSubscribersRaceFree(t *testing.T) {
	store := New("claude", 64)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := store.Subscribe()
			defer sub.Unsubscribe()
			for {
				select {
				case _, ok := <-sub.Events:
					if !ok {
						return
					}
				case <-sub.Done:
					return
				case <-time.After(200 * time.Millisecond):
					return
				}
			}
		}()
	}
	for i := 0; i < 100; i++ {
		store.Append(NormalizedEvent{Type: EntryOutput, Content: "x", AgentType: "claude"})
	}
	store.Close()
	wg.Wait()
}
