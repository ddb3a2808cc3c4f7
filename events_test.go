package main

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEventBuffer_GetAfter(t *testing.T) {
	eb := newEventBuffer(3)
	for i := 1; i <= 5; i++ {
		eb.add(fmt.Sprintf("event-%d", i))
	}

	got := eb.getAfter("3")
	if len(got) != 2 || got[0].data != "event-4" || got[1].data != "event-5" {
		t.Errorf("getAfter(3) = %v", got)
	}
	if got := eb.getAfter("1"); len(got) != 0 {
		t.Errorf("evicted id should replay nothing, got %v", got)
	}
	if got := eb.getAfter("5"); len(got) != 0 {
		t.Errorf("latest id should replay nothing, got %v", got)
	}
}

func TestEventHub_PublishIsPerWindow(t *testing.T) {
	hub := newEventHub(10)
	hub.Open("a")
	hub.Open("b")

	chA, err := hub.subscribe("a")
	if err != nil {
		t.Fatal(err)
	}
	chB, err := hub.subscribe("b")
	if err != nil {
		t.Fatal(err)
	}
	drain(chA)
	drain(chB)

	hub.Publish("a", Event{Type: eventFileChanged, Path: "/root/a.md"})

	select {
	case msg := <-chA:
		assertContains(t, msg, "id: ")
		assertContains(t, msg, `"type":"file_changed"`)
		assertContains(t, msg, `"path":"/root/a.md"`)
	case <-time.After(time.Second):
		t.Fatal("no event for window a")
	}
	if len(chB) != 0 {
		t.Errorf("window b received %q", <-chB)
	}
}

func TestEventHub_SubscribeUnknownWindow(t *testing.T) {
	hub := newEventHub(10)
	if _, err := hub.subscribe("missing"); err == nil {
		t.Fatal("expected an error")
	}
	// Publishing to a window without a stream is a no-op.
	hub.Publish("missing", Event{Type: eventFocus})
}

func TestEventHub_DropClosesClients(t *testing.T) {
	hub := newEventHub(10)
	hub.Open("a")
	ch, err := hub.subscribe("a")
	if err != nil {
		t.Fatal(err)
	}

	hub.Drop("a")
	drain(ch)
	if _, ok := <-ch; ok {
		t.Error("channel still open after Drop")
	}
	// Unsubscribing after Drop must not close the channel a second time.
	hub.unsubscribe("a", ch)
	hub.Drop("a")
	if n := hub.clientCount("a"); n != 0 {
		t.Errorf("clientCount = %d", n)
	}
}

func TestEventHub_IdleCallback(t *testing.T) {
	hub := newEventHub(10)
	var mu sync.Mutex
	var idle []string
	hub.onIdle = func(id string) {
		mu.Lock()
		defer mu.Unlock()
		idle = append(idle, id)
	}
	hub.Open("a")

	ch1, _ := hub.subscribe("a")
	ch2, _ := hub.subscribe("a")
	hub.unsubscribe("a", ch1)
	mu.Lock()
	if len(idle) != 0 {
		t.Errorf("idle after first unsubscribe: %v", idle)
	}
	mu.Unlock()

	hub.unsubscribe("a", ch2)
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(idle, ",") != "a" {
		t.Errorf("idle = %v, want [a]", idle)
	}
}

func TestEventHub_ReplayAfterReconnect(t *testing.T) {
	hub := newEventHub(50)
	hub.Open("a")
	hub.Publish("a", Event{Type: eventFileAdded, Path: "/r/1.md"})
	hub.Publish("a", Event{Type: eventFileAdded, Path: "/r/2.md"})
	hub.Publish("a", Event{Type: eventFileRemoved, Path: "/r/1.md"})

	missed := hub.replay("a", "1")
	if len(missed) != 2 {
		t.Fatalf("replay returned %d events, want 2", len(missed))
	}
	assertContains(t, missed[0].data, "2.md")
	assertContains(t, missed[1].data, "file_removed")
	if got := hub.replay("missing", "1"); got != nil {
		t.Errorf("replay of unknown window = %v", got)
	}
}

func TestEventHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := newEventHub(50)
	hub.Open("a")
	if _, err := hub.subscribe("a"); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish("a", Event{Type: eventFileChanged, Path: "/r/x.md"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a client that never reads")
	}
}

func TestFileEvent(t *testing.T) {
	tests := []struct {
		kind ChangeKind
		want string
	}{
		{ChangeAdded, eventFileAdded},
		{ChangeChanged, eventFileChanged},
		{ChangeRemoved, eventFileRemoved},
	}
	for _, tt := range tests {
		ev := fileEvent(ChangeEvent{Kind: tt.kind, Path: "/r/a.md"})
		if ev.Type != tt.want || ev.Path != "/r/a.md" {
			t.Errorf("fileEvent(%s) = %+v", tt.kind, ev)
		}
	}
}
