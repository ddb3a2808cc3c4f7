package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

var errLocked = errors.New("another peekdeck instance is running")

// instanceInfo is written into the lock file by the primary instance.
type instanceInfo struct {
	PID  int `json:"pid"`
	Port int `json:"port"`
}

// primaryLock is held by the one process that owns the window registry.
type primaryLock struct {
	lock *fileLock
}

// acquirePrimary takes the instance lock and records our pid and port in
// it. It returns errLocked when another process is the primary.
func acquirePrimary(paths dataPaths, port int) (*primaryLock, error) {
	lock, err := tryLock(paths.lockFile())
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(instanceInfo{PID: os.Getpid(), Port: port})
	if err == nil {
		f := lock.file()
		if err := f.Truncate(0); err == nil {
			f.WriteAt(data, 0)
		}
	}
	return &primaryLock{lock: lock}, nil
}

func (p *primaryLock) Release() error {
	return p.lock.Unlock()
}

// readInstanceInfo reads the lock file of the running primary.
func readInstanceInfo(paths dataPaths) (instanceInfo, error) {
	var info instanceInfo
	data, err := os.ReadFile(paths.lockFile())
	if err != nil {
		return info, fmt.Errorf("no running instance: %w", err)
	}
	if err := json.Unmarshal(data, &info); err != nil || info.Port == 0 {
		return info, fmt.Errorf("no running instance")
	}
	return info, nil
}

// HandoffPayload carries a launch request from a secondary process to the
// primary. It is self-contained so argument order never matters.
type HandoffPayload struct {
	Directory        string    `json:"directory"`
	Title            string    `json:"title,omitempty"`
	TerminalPID      int       `json:"terminalPid,omitempty"`
	TerminalBundleID string    `json:"terminalBundleId,omitempty"`
	NewWindow        bool      `json:"newWindow,omitempty"`
	RequestedAt      time.Time `json:"requestedAt"`
}

func payloadFor(req LaunchRequest) HandoffPayload {
	p := HandoffPayload{
		Directory:   req.Directory,
		Title:       req.Title,
		NewWindow:   req.NewWindow,
		RequestedAt: time.Now().UTC(),
	}
	if req.Terminal != nil {
		p.TerminalPID = req.Terminal.PID
		p.TerminalBundleID = req.Terminal.BundleID
	}
	return p
}

func (p HandoffPayload) launchRequest() LaunchRequest {
	req := LaunchRequest{
		Directory: p.Directory,
		Title:     p.Title,
		NewWindow: p.NewWindow,
	}
	if p.TerminalPID > 0 {
		req.Terminal = &TerminalContext{PID: p.TerminalPID, BundleID: p.TerminalBundleID}
	}
	return req
}

// writeHandoff atomically drops a payload into the inbox directory and
// returns its path.
func writeHandoff(inbox string, p HandoffPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode handoff: %w", err)
	}
	if err := os.MkdirAll(inbox, 0700); err != nil {
		return "", fmt.Errorf("create handoff directory: %w", err)
	}
	path := filepath.Join(inbox, uuid.NewString()+".json")
	if err := atomicWriteFile(path, data, 0600); err != nil {
		return "", err
	}
	return path, nil
}

// handOff passes req to the running primary and waits for it to pick the
// payload up. If nobody consumes it within timeout the payload is
// withdrawn and false is returned.
func handOff(ctx context.Context, inbox string, req LaunchRequest, timeout time.Duration) (bool, error) {
	path, err := writeHandoff(inbox, payloadFor(req))
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		select {
		case <-ctx.Done():
			if err := os.Remove(path); errors.Is(err, fs.ErrNotExist) {
				// Consumed at the last moment.
				return true, nil
			}
			return false, nil
		case <-ticker.C:
		}
	}
}

// handoffInbox is the primary's side: it consumes every payload dropped
// into the inbox directory exactly once.
type handoffInbox struct {
	dir     string
	fsw     *fsnotify.Watcher
	deliver func(HandoffPayload)
	done    chan struct{}
}

// startHandoffInbox begins watching dir, then drains payloads that were
// written before the watch existed.
func startHandoffInbox(dir string, deliver func(HandoffPayload)) (*handoffInbox, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create handoff directory: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create handoff watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	in := &handoffInbox{dir: dir, fsw: fsw, deliver: deliver, done: make(chan struct{})}
	go in.loop()
	in.drain()
	return in, nil
}

func (in *handoffInbox) loop() {
	defer close(in.done)
	for {
		select {
		case event, ok := <-in.fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				in.consume(event.Name)
			}
		case err, ok := <-in.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("Handoff watcher error: %v", err)
		}
	}
}

func (in *handoffInbox) drain() {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		log.Printf("Warning: cannot read handoff directory: %v", err)
		return
	}
	for _, e := range entries {
		in.consume(filepath.Join(in.dir, e.Name()))
	}
}

// consume reads and deletes one payload. Whoever deletes the file owns
// it, so a payload seen twice is delivered once.
func (in *handoffInbox) consume(path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if err := os.Remove(path); err != nil {
		return
	}

	var p HandoffPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Directory == "" {
		log.Printf("Warning: discarding invalid handoff payload %s", name)
		return
	}
	log.Printf("Handoff received for %s", p.Directory)
	in.deliver(p)
}

func (in *handoffInbox) Close() error {
	err := in.fsw.Close()
	<-in.done
	return err
}
