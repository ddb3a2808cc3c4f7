package main

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// Event is a message pushed to one window over its SSE stream.
type Event struct {
	Type      string `json:"type"`
	Path      string `json:"path,omitempty"`
	Count     int    `json:"count,omitempty"`
	Directory string `json:"directory,omitempty"`
	Title     string `json:"title,omitempty"`
}

const (
	eventFileChanged      = "file_changed"
	eventFileAdded        = "file_added"
	eventFileRemoved      = "file_removed"
	eventFocus            = "focus"
	eventClose            = "close"
	eventDirectoryChanged = "directory_changed"
	eventConnectionStatus = "connection_status"
)

func fileEvent(ev ChangeEvent) Event {
	switch ev.Kind {
	case ChangeAdded:
		return Event{Type: eventFileAdded, Path: ev.Path}
	case ChangeRemoved:
		return Event{Type: eventFileRemoved, Path: ev.Path}
	default:
		return Event{Type: eventFileChanged, Path: ev.Path}
	}
}

// eventRecord stores a single SSE event with ID for replay
type eventRecord struct {
	id   string
	data string
}

// eventBuffer keeps the most recent events of one stream so a client that
// reconnects with Last-Event-ID can catch up.
type eventBuffer struct {
	mu      sync.RWMutex
	events  []eventRecord
	counter uint64
	maxSize int
}

func newEventBuffer(maxSize int) *eventBuffer {
	return &eventBuffer{
		events:  make([]eventRecord, 0, maxSize),
		maxSize: maxSize,
	}
}

// add assigns the next ID, stores the event and returns the record.
func (eb *eventBuffer) add(data string) eventRecord {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.counter++
	rec := eventRecord{id: fmt.Sprintf("%d", eb.counter), data: data}

	if len(eb.events) >= eb.maxSize {
		eb.events = eb.events[1:]
	}
	eb.events = append(eb.events, rec)
	return rec
}

// getAfter returns all events after the specified ID
func (eb *eventBuffer) getAfter(lastID string) []eventRecord {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	var result []eventRecord
	foundLast := false
	for _, evt := range eb.events {
		if foundLast {
			result = append(result, evt)
		}
		if evt.id == lastID {
			foundLast = true
		}
	}
	return result
}

// stream is the subscriber set of one window.
type stream struct {
	clients map[chan string]bool
	buffer  *eventBuffer
}

// eventHub fans events out to the SSE clients of each window. Streams are
// isolated: publishing to one window never reaches another.
type eventHub struct {
	mu         sync.RWMutex
	streams    map[string]*stream
	bufferSize int

	// onIdle, if set, is called after the last client of a window
	// disconnects.
	onIdle func(sessionID string)
}

func newEventHub(bufferSize int) *eventHub {
	return &eventHub{
		streams:    make(map[string]*stream),
		bufferSize: bufferSize,
	}
}

// Open creates the stream for a window. Opening twice is harmless.
func (h *eventHub) Open(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.streams[sessionID]; !ok {
		h.streams[sessionID] = &stream{
			clients: make(map[chan string]bool),
			buffer:  newEventBuffer(h.bufferSize),
		}
	}
}

// Drop removes a window's stream and disconnects its clients.
func (h *eventHub) Drop(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.streams[sessionID]
	if !ok {
		return
	}
	for ch := range st.clients {
		close(ch)
	}
	delete(h.streams, sessionID)
}

// Publish sends ev to every client of sessionID. Slow clients drop events
// rather than block the publisher; they can replay on reconnect.
func (h *eventHub) Publish(sessionID string, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", ev.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.streams[sessionID]
	if !ok {
		return
	}
	rec := st.buffer.add(string(data))
	msg := fmt.Sprintf("id: %s\ndata: %s", rec.id, rec.data)
	for ch := range st.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// subscribe registers a client channel. It fails for unknown windows.
func (h *eventHub) subscribe(sessionID string) (chan string, error) {
	h.mu.Lock()
	st, ok := h.streams[sessionID]
	if !ok {
		h.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", sessionID, ErrUnknownSession)
	}
	ch := make(chan string, 10)
	st.clients[ch] = true
	count := len(st.clients)
	h.mu.Unlock()

	h.Publish(sessionID, Event{Type: eventConnectionStatus, Count: count})
	return ch, nil
}

func (h *eventHub) unsubscribe(sessionID string, ch chan string) {
	h.mu.Lock()
	st, ok := h.streams[sessionID]
	if !ok || !st.clients[ch] {
		// Dropped already; the channel was closed there.
		h.mu.Unlock()
		return
	}
	delete(st.clients, ch)
	close(ch)
	count := len(st.clients)
	h.mu.Unlock()

	h.Publish(sessionID, Event{Type: eventConnectionStatus, Count: count})
	if count == 0 && h.onIdle != nil {
		h.onIdle(sessionID)
	}
}

func (h *eventHub) replay(sessionID, lastID string) []eventRecord {
	h.mu.RLock()
	st, ok := h.streams[sessionID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return st.buffer.getAfter(lastID)
}

func (h *eventHub) clientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if st, ok := h.streams[sessionID]; ok {
		return len(st.clients)
	}
	return 0
}
