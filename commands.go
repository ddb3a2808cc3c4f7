package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "peekdeck %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func newWindowsCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "windows",
		Short: "List the windows of the running instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := defaultDataPaths()
			if err != nil {
				return err
			}
			info, err := readInstanceInfo(paths)
			if err != nil {
				return err
			}
			windows, err := fetchWindows(fmt.Sprintf("http://localhost:%d", info.Port))
			if err != nil {
				return err
			}
			return printWindows(cmd.OutOrStdout(), windows, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	return cmd
}

// fetchWindows asks a running instance for its window list.
func fetchWindows(baseURL string) ([]WindowInfo, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL + "/api/windows")
	if err != nil {
		return nil, fmt.Errorf("instance not reachable: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Data  []WindowInfo `json:"data"`
		Error string       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode window list: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instance returned %d: %s", resp.StatusCode, body.Error)
	}
	return body.Data, nil
}

// windowRow is the yaml shape of one window.
type windowRow struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Directory   string `yaml:"directory"`
	CurrentFile string `yaml:"currentFile,omitempty"`
	Terminal    string `yaml:"terminal"`
}

func terminalStatus(w WindowInfo) string {
	switch {
	case !w.HasTerminal:
		return "none"
	case w.TerminalAlive:
		return "alive"
	default:
		return "gone"
	}
}

func printWindows(out io.Writer, windows []WindowInfo, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(windows)
	case "yaml":
		rows := make([]windowRow, 0, len(windows))
		for _, w := range windows {
			rows = append(rows, windowRow{
				ID:          w.ID,
				Title:       w.Title,
				Directory:   w.Directory,
				CurrentFile: w.CurrentFile,
				Terminal:    terminalStatus(w),
			})
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		if len(windows) == 0 {
			fmt.Fprintln(out, "No open windows")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tDIRECTORY\tTERMINAL")
		for _, win := range windows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", shortID(win.ID), win.Title, shortenHome(win.Directory), terminalStatus(win))
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newIgnoredCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ignored [directory]",
		Short: "Show which directories and patterns are excluded",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := launchTarget(args)
			if err != nil {
				return err
			}
			printIgnored(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}

func printIgnored(out io.Writer, dir string) {
	fmt.Fprintln(out, "Always excluded:")
	names := make([]string, 0, len(excludedDirs))
	for name := range excludedDirs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", name)
	}

	patterns := ignorePatterns(dir)
	if len(patterns) == 0 {
		fmt.Fprintf(out, "\nNo %s file found in %s\n", ignoreFileName, dir)
		return
	}
	fmt.Fprintf(out, "\nCustom exclusions (%s):\n", filepath.Join(dir, ignoreFileName))
	for _, p := range patterns {
		fmt.Fprintf(out, "  %s\n", p)
	}
}
