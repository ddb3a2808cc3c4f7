package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Build info (set via ldflags)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	// handoffTimeout bounds how long a second launch waits for the running
	// instance to pick up its request.
	handoffTimeout = 3 * time.Second
	eventReplay    = 50
)

// exitError is printed as-is after "Error: " before exiting with status 1.
type exitError struct{ msg string }

func (e exitError) Error() string { return e.msg }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type launchOptions struct {
	title            string
	newWindow        bool
	noBrowser        bool
	terminalPID      int
	terminalBundleID string
	configPath       string
	debug            bool
}

func newRootCmd() *cobra.Command {
	opts := &launchOptions{}
	root := &cobra.Command{
		Use:   "peekdeck [directory]",
		Short: "Browse Markdown folders in live-reloading windows",
		Long: `peekdeck opens a viewer window for a directory of Markdown files.

Every directory gets its own window with a file tree, rendered preview,
live reload and a shortcut back to the terminal it was launched from.
Running peekdeck again while an instance is up opens the new directory
in that instance.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(cmd.Context(), args, opts)
		},
	}
	addLaunchFlags(root, opts)

	launchOpts := &launchOptions{}
	launch := &cobra.Command{
		Use:   "launch [directory]",
		Short: "Open a window for a directory (the default command)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(cmd.Context(), args, launchOpts)
		},
	}
	addLaunchFlags(launch, launchOpts)

	root.AddCommand(launch, newWindowsCmd(), newIgnoredCmd(), newVersionCmd())
	return root
}

func addLaunchFlags(cmd *cobra.Command, opts *launchOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.title, "title", "", "window title (defaults to the directory name)")
	f.BoolVar(&opts.newWindow, "new-window", false, "open another window even if the directory is already open")
	f.BoolVar(&opts.noBrowser, "no-browser", false, "do not open a browser; print the window URL instead")
	f.IntVar(&opts.terminalPID, "terminal-pid", 0, "pid of the shell to return to (detected when omitted)")
	f.StringVar(&opts.terminalBundleID, "terminal-bundle-id", "", "bundle id of the terminal application")
	f.StringVar(&opts.configPath, "config", "", "config file (default ~/.peekdeck/config.toml)")
	f.BoolVar(&opts.debug, "debug", false, "mirror the log to stderr")
}

// launchTarget resolves the directory argument, reporting user-facing
// errors for paths that cannot be opened.
func launchTarget(args []string) (string, error) {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	dir, err := validateDirectory(abs)
	switch {
	case errors.Is(err, ErrNotFound):
		return "", exitError{fmt.Sprintf("Directory not found: %s", abs)}
	case errors.Is(err, ErrNotADirectory):
		return "", exitError{fmt.Sprintf("Not a directory: %s", abs)}
	case err != nil:
		return "", err
	}
	return dir, nil
}

func runLaunch(ctx context.Context, args []string, opts *launchOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	dir, err := launchTarget(args)
	if err != nil {
		return err
	}

	paths, err := defaultDataPaths()
	if err != nil {
		return err
	}
	if err := paths.ensure(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logs := setupLogging(paths.logFile(), opts.debug)
	defer logs.Close()

	configPath := opts.configPath
	if configPath == "" {
		configPath = paths.configFile()
	}
	cfg := loadConfig(configPath)
	if opts.noBrowser {
		cfg.Server.OpenBrowser = false
	}

	req := LaunchRequest{
		Directory: dir,
		Title:     opts.title,
		NewWindow: opts.newWindow,
		Terminal:  launchTerminal(ctx, opts),
	}

	lock, err := acquirePrimary(paths, cfg.Server.Port)
	if errors.Is(err, errLocked) {
		handed, herr := handOff(ctx, paths.handoffDir(), req, handoffTimeout)
		if herr != nil {
			return herr
		}
		if handed {
			log.Printf("Handed %s to the running instance", dir)
			fmt.Printf("Opened %s in the running peekdeck\n", shortenHome(dir))
			return nil
		}
		// The holder did not answer; it may have exited in the meantime.
		lock, err = acquirePrimary(paths, cfg.Server.Port)
		if errors.Is(err, errLocked) {
			return exitError{"peekdeck is already running but did not respond"}
		}
	}
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	defer lock.Release()

	return runPrimary(ctx, cfg, paths, req)
}

// launchTerminal prefers the flags and falls back to inspecting the
// process tree.
func launchTerminal(ctx context.Context, opts *launchOptions) *TerminalContext {
	if opts.terminalPID > 0 {
		return &TerminalContext{PID: opts.terminalPID, BundleID: opts.terminalBundleID}
	}
	term := detectTerminalContext(ctx, execRunner)
	if term != nil && opts.terminalBundleID != "" {
		term.BundleID = opts.terminalBundleID
	}
	return term
}

// runPrimary serves every window until a signal arrives or, unless
// keep_running is set, the last window closes.
func runPrimary(ctx context.Context, cfg Config, paths dataPaths, req LaunchRequest) error {
	addr := fmt.Sprintf("localhost:%d", cfg.Server.Port)
	baseURL := "http://" + addr

	hub := newEventHub(eventReplay)
	host := newBrowserHost(baseURL, hub, cfg.Server.OpenBrowser, cfg.disconnectGrace())

	quit := make(chan struct{})
	var quitOnce sync.Once
	reg := NewRegistry(RegistryOptions{
		Config: cfg,
		Store:  newStateStore(paths.stateFile()),
		Hub:    hub,
		Host:   host,
		Bridge: newTerminalBridge(cfg.Terminal),
		OnEmpty: func() {
			if cfg.App.KeepRunning {
				log.Println("Last window closed; still running")
				return
			}
			quitOnce.Do(func() { close(quit) })
		},
	})
	host.closed = reg.WindowClosed

	srv, err := newServer(reg, hub, cfg, cfg.Server.Port)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	server := &http.Server{
		Handler:     srv.routes(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: event streams are long-lived.
		IdleTimeout: 60 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	inbox, err := startHandoffInbox(paths.handoffDir(), func(p HandoffPayload) {
		if _, _, err := reg.Launch(context.Background(), p.launchRequest()); err != nil {
			log.Printf("Error opening handed-off directory %s: %v", p.Directory, err)
		}
	})
	if err != nil {
		log.Printf("Warning: later launches cannot reach this instance: %v", err)
	}

	log.Printf("peekdeck %s serving on %s", version, baseURL)
	if _, _, err := reg.Launch(ctx, req); err != nil {
		shutdown(reg, inbox, host, server)
		return err
	}
	fmt.Println("Press Ctrl+C to quit")

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigint)

	select {
	case <-sigint:
		log.Println("Shutting down gracefully...")
	case <-quit:
		log.Println("Last window closed, exiting")
	case err := <-serveErr:
		shutdown(reg, inbox, host, server)
		return fmt.Errorf("server: %w", err)
	}
	shutdown(reg, inbox, host, server)
	return nil
}

// shutdown persists and tears down every window before stopping the
// server, so open event streams end on their own.
func shutdown(reg *Registry, inbox *handoffInbox, host *browserHost, server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if inbox != nil {
		inbox.Close()
	}
	if err := reg.Shutdown(ctx); err != nil {
		log.Printf("Registry shutdown error: %v", err)
	}
	host.stop()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
