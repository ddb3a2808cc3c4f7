package main

import (
	"fmt"
	"os"
	"path/filepath"
)

const dataDirEnv = "PEEKDECK_HOME"

// dataPaths is the layout of the application data directory.
type dataPaths struct {
	root string
}

// defaultDataPaths returns $PEEKDECK_HOME, or ~/.peekdeck when unset.
func defaultDataPaths() (dataPaths, error) {
	if dir := os.Getenv(dataDirEnv); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return dataPaths{}, fmt.Errorf("resolve %s: %w", dataDirEnv, err)
		}
		return dataPaths{root: abs}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return dataPaths{}, fmt.Errorf("cannot determine home directory: %w", err)
	}
	return dataPaths{root: filepath.Join(home, ".peekdeck")}, nil
}

func (p dataPaths) configFile() string { return filepath.Join(p.root, "config.toml") }
func (p dataPaths) stateFile() string { return filepath.Join(p.root, "window-state.json") }
func (p dataPaths) lockFile() string { return filepath.Join(p.root, "instance.lock") }
func (p dataPaths) handoffDir() string { return filepath.Join(p.root, "handoff") }
func (p dataPaths) logFile() string { return filepath.Join(p.root, "logs", "peekdeck.log") }

func (p dataPaths) ensure() error {
	for _, dir := range []string{p.root, p.handoffDir(), filepath.Dir(p.logFile())} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
