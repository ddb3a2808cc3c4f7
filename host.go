package main

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// browserHost shows windows as browser tabs pointed at the content server.
// Focus and close requests travel to the page over its event stream.
type browserHost struct {
	baseURL string
	hub     *eventHub
	open    func(url string) error
	launch  bool
	grace   time.Duration

	// closed reports a window the user closed. Set during wiring.
	closed func(id string, bounds *Rect)

	mu   sync.Mutex
	idle map[string]*time.Timer
}

func newBrowserHost(baseURL string, hub *eventHub, launch bool, grace time.Duration) *browserHost {
	h := &browserHost{
		baseURL: baseURL,
		hub:     hub,
		open:    openURL,
		launch:  launch,
		grace:   grace,
		idle:    make(map[string]*time.Timer),
	}
	hub.onIdle = h.clientGone
	return h
}

func (h *browserHost) windowURL(id string) string {
	return fmt.Sprintf("%s/w/%s/", h.baseURL, id)
}

func (h *browserHost) Open(ctx context.Context, s WindowSession) error {
	url := h.windowURL(s.ID)
	if !h.launch {
		log.Printf("Window %q ready at %s", s.Title, url)
		return nil
	}
	return h.open(url)
}

// Focus asks the page to raise itself. A window with no connected page is
// opened again.
func (h *browserHost) Focus(ctx context.Context, id string) error {
	if h.hub.clientCount(id) == 0 {
		if !h.launch {
			log.Printf("Window %s has no page open, visit %s", id, h.windowURL(id))
			return nil
		}
		return h.open(h.windowURL(id))
	}
	h.hub.Publish(id, Event{Type: eventFocus})
	return nil
}

// Close asks the page to close. The page answers by reporting its final
// bounds; a window with no connected page is closed at once.
func (h *browserHost) Close(ctx context.Context, id string) error {
	if h.hub.clientCount(id) == 0 {
		h.reportClosed(id)
		return nil
	}
	h.hub.Publish(id, Event{Type: eventClose})
	return nil
}

// clientGone starts the grace period after the last page of a window
// disconnects. A reload reconnects well within it.
func (h *browserHost) clientGone(id string) {
	if h.grace <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if t := h.idle[id]; t != nil {
		t.Stop()
	}
	h.idle[id] = time.AfterFunc(h.grace, func() {
		h.mu.Lock()
		delete(h.idle, id)
		h.mu.Unlock()
		if h.hub.clientCount(id) == 0 {
			log.Printf("Window %s disconnected, closing", id)
			h.reportClosed(id)
		}
	})
}

func (h *browserHost) reportClosed(id string) {
	if h.closed != nil {
		h.closed(id, nil)
	}
}

// stop cancels pending disconnect timers.
func (h *browserHost) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, t := range h.idle {
		t.Stop()
		delete(h.idle, id)
	}
}

// openURL opens url in the default browser.
func openURL(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", "", url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}

	if err := exec.Command(cmd, args...).Start(); err != nil {
		log.Printf("Failed to open URL %s: %v", url, err)
		return fmt.Errorf("open %s: %v: %w", url, err, ErrExternalTool)
	}
	return nil
}
