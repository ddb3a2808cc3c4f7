package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var testWindows = []WindowInfo{
	{ID: "0123456789abcdef", Title: "docs", Directory: "/srv/docs", CurrentFile: "/srv/docs/a.md", HasTerminal: true, TerminalAlive: true},
	{ID: "fedcba9876543210", Title: "notes", Directory: "/srv/notes", HasTerminal: true},
	{ID: "short", Title: "plain", Directory: "/srv/plain"},
}

func TestPrintWindows_Table(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printWindows(&out, testWindows, "table"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"ID", "TITLE", "DIRECTORY", "TERMINAL"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"01234567", "docs", "/srv/docs", "alive"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"fedcba98", "notes", "/srv/notes", "gone"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"short", "plain", "/srv/plain", "none"}, strings.Fields(lines[3]))

	out.Reset()
	require.NoError(t, printWindows(&out, nil, ""))
	assert.Equal(t, "No open windows\n", out.String())
}

func TestPrintWindows_JSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printWindows(&out, testWindows, "json"))

	var got []WindowInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, testWindows, got)
}

func TestPrintWindows_YAML(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printWindows(&out, testWindows[:2], "yaml"))

	var rows []windowRow
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "alive", rows[0].Terminal)
	assert.Equal(t, "/srv/docs/a.md", rows[0].CurrentFile)
	assert.Equal(t, "gone", rows[1].Terminal)
	assertNotContains(t, out.String(), "currentFile: \"\"")
}

func TestPrintWindows_UnknownFormat(t *testing.T) {
	assert.Error(t, printWindows(&bytes.Buffer{}, testWindows, "xml"))
}

func TestFetchWindows(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/windows" {
			writeError(w, ErrNotFound)
			return
		}
		writeData(w, testWindows)
	}))
	defer ts.Close()

	got, err := fetchWindows(ts.URL)
	require.NoError(t, err)
	assert.Equal(t, testWindows, got)
}

func TestFetchWindows_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, ErrPersistence)
	}))
	_, err := fetchWindows(ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")

	ts.Close()
	_, err = fetchWindows(ts.URL)
	assert.ErrorContains(t, err, "not reachable")
}

func TestPrintIgnored(t *testing.T) {
	dir := testDir(t)

	var out bytes.Buffer
	printIgnored(&out, dir)
	assertContains(t, out.String(), "  .git\n")
	assertContains(t, out.String(), "  node_modules\n")
	assertContains(t, out.String(), "No "+ignoreFileName+" file found")

	createTestMarkdownFile(t, dir, ignoreFileName, "# comment\n\nbuild/\n*.draft.md\n")
	out.Reset()
	printIgnored(&out, dir)
	assertContains(t, out.String(), filepath.Join(dir, ignoreFileName))
	assertContains(t, out.String(), "  build/\n  *.draft.md\n")
	assertNotContains(t, out.String(), "comment")
}

func TestLaunchTarget(t *testing.T) {
	dir := testDir(t)
	file := createTestMarkdownFile(t, dir, "a.md", testMarkdownSimple)

	got, err := launchTarget([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = launchTarget([]string{file})
	var exit exitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, "Not a directory: "+file, exit.Error())

	missing := filepath.Join(dir, "missing")
	_, err = launchTarget([]string{missing})
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, "Directory not found: "+missing, exit.Error())
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assertContains(t, out.String(), "peekdeck dev")

	cmd = newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"a", "b"})
	assert.Error(t, cmd.Execute(), "more than one directory is rejected")

	for _, name := range []string{"launch", "windows", "ignored", "version"} {
		sub, _, err := newRootCmd().Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}
