package main

import (
	"log"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents config.toml in the data directory.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Window   WindowConfig   `toml:"window"`
	Sidebar  SidebarConfig  `toml:"sidebar"`
	Zoom     ZoomConfig     `toml:"zoom"`
	Watcher  WatcherConfig  `toml:"watcher"`
	Security SecurityConfig `toml:"security"`
	Terminal TerminalConfig `toml:"terminal"`
	Render   RenderConfig   `toml:"render"`
	App      AppSettings    `toml:"app"`
}

type ServerConfig struct {
	Port        int  `toml:"port"`
	OpenBrowser bool `toml:"open_browser"`
}

type WindowConfig struct {
	DefaultWidth  float64 `toml:"default_width"`
	DefaultHeight float64 `toml:"default_height"`
	MinWidth      float64 `toml:"min_width"`
	MinHeight     float64 `toml:"min_height"`
	// DisconnectGraceSeconds is how long a window may have no connected
	// page before it is treated as closed. Zero disables the check.
	DisconnectGraceSeconds int `toml:"disconnect_grace_seconds"`
}

type SidebarConfig struct {
	DefaultWidth float64 `toml:"default_width"`
	MinWidth     float64 `toml:"min_width"`
	MaxWidth     float64 `toml:"max_width"`
}

type ZoomConfig struct {
	Min  float64 `toml:"min"`
	Max  float64 `toml:"max"`
	Step float64 `toml:"step"`
}

type WatcherConfig struct {
	DebounceMS int `toml:"debounce_ms"`
}

// SecurityConfig controls the asset trust boundary. Document reads are
// always confined to the window root; this only affects /local-file.
type SecurityConfig struct {
	RestrictAssetsToRoot bool `toml:"restrict_assets_to_root"`
}

type TerminalConfig struct {
	// FallbackApp is the application asked to open a new session when the
	// launching terminal is gone.
	FallbackApp string `toml:"fallback_app"`
}

// RenderConfig points the viewer at the diagram libraries. An empty URL
// leaves that kind of diagram as plain source.
type RenderConfig struct {
	MermaidURL   string `toml:"mermaid_url"`
	VegaEmbedURL string `toml:"vega_embed_url"`
}

type AppSettings struct {
	// KeepRunning keeps the process alive after the last window closes.
	KeepRunning bool `toml:"keep_running"`
}

func defaultConfig() Config {
	return Config{
		Server:   ServerConfig{Port: 6419, OpenBrowser: true},
		Window:   WindowConfig{DefaultWidth: 1200, DefaultHeight: 800, MinWidth: 600, MinHeight: 400, DisconnectGraceSeconds: 30},
		Sidebar:  SidebarConfig{DefaultWidth: 240, MinWidth: 180, MaxWidth: 400},
		Zoom:     ZoomConfig{Min: -3, Max: 5, Step: 0.5},
		Watcher:  WatcherConfig{DebounceMS: 100},
		Security: SecurityConfig{RestrictAssetsToRoot: true},
		Terminal: TerminalConfig{FallbackApp: "Terminal"},
		Render: RenderConfig{
			MermaidURL:   "https://cdn.jsdelivr.net/npm/mermaid@11/dist/mermaid.min.js",
			VegaEmbedURL: "https://cdn.jsdelivr.net/npm/vega-embed@6/build/vega-embed.min.js",
		},
	}
}

// loadConfig reads path. A missing file yields the defaults; a file that
// fails to parse is logged and also yields the defaults.
func loadConfig(path string) Config {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: cannot read config %s: %v", path, err)
		}
		return cfg
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		log.Printf("Warning: invalid config %s, using defaults: %v", path, err)
		return defaultConfig()
	}

	cfg.validate()
	return cfg
}

// validate replaces out-of-range values with their defaults.
func (c *Config) validate() {
	def := defaultConfig()

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		c.Server.Port = def.Server.Port
	}

	if c.Window.MinWidth <= 0 {
		c.Window.MinWidth = def.Window.MinWidth
	}
	if c.Window.MinHeight <= 0 {
		c.Window.MinHeight = def.Window.MinHeight
	}
	if c.Window.DefaultWidth < c.Window.MinWidth {
		c.Window.DefaultWidth = max(def.Window.DefaultWidth, c.Window.MinWidth)
	}
	if c.Window.DefaultHeight < c.Window.MinHeight {
		c.Window.DefaultHeight = max(def.Window.DefaultHeight, c.Window.MinHeight)
	}

	if c.Sidebar.MinWidth <= 0 || c.Sidebar.MaxWidth < c.Sidebar.MinWidth {
		c.Sidebar = def.Sidebar
	}
	if c.Sidebar.DefaultWidth < c.Sidebar.MinWidth || c.Sidebar.DefaultWidth > c.Sidebar.MaxWidth {
		c.Sidebar.DefaultWidth = clamp(def.Sidebar.DefaultWidth, c.Sidebar.MinWidth, c.Sidebar.MaxWidth)
	}

	if c.Zoom.Max < c.Zoom.Min || c.Zoom.Min > 0 || c.Zoom.Max < 0 {
		c.Zoom.Min, c.Zoom.Max = def.Zoom.Min, def.Zoom.Max
	}
	if c.Zoom.Step <= 0 {
		c.Zoom.Step = def.Zoom.Step
	}

	if c.Window.DisconnectGraceSeconds < 0 {
		c.Window.DisconnectGraceSeconds = def.Window.DisconnectGraceSeconds
	}

	if c.Watcher.DebounceMS <= 0 {
		c.Watcher.DebounceMS = def.Watcher.DebounceMS
	}

	if c.Terminal.FallbackApp == "" {
		c.Terminal.FallbackApp = def.Terminal.FallbackApp
	}
}

func (c Config) debounce() time.Duration {
	return time.Duration(c.Watcher.DebounceMS) * time.Millisecond
}

func (c Config) disconnectGrace() time.Duration {
	return time.Duration(c.Window.DisconnectGraceSeconds) * time.Second
}

// clampState forces persisted UI values into the configured bounds.
// Non-positive geometry falls back to the default window size.
func (c Config) clampState(s WindowState) WindowState {
	s.SidebarWidth = clamp(s.SidebarWidth, c.Sidebar.MinWidth, c.Sidebar.MaxWidth)
	s.ZoomLevel = clamp(s.ZoomLevel, c.Zoom.Min, c.Zoom.Max)
	if s.Width <= 0 {
		s.Width = c.Window.DefaultWidth
	}
	if s.Height <= 0 {
		s.Height = c.Window.DefaultHeight
	}
	s.Width = max(s.Width, c.Window.MinWidth)
	s.Height = max(s.Height, c.Window.MinHeight)
	return s
}

// defaultState is the state of a directory that was never saved.
func (c Config) defaultState() WindowState {
	return WindowState{
		Width:        c.Window.DefaultWidth,
		Height:       c.Window.DefaultHeight,
		SidebarWidth: c.Sidebar.DefaultWidth,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	return min(max(v, lo), hi)
}
