package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

const ignoreFileName = ".peekdeckignore"

// Control and dependency directories. Never scanned or watched, even when
// they contain Markdown.
var excludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// ignoreRules decides which paths below a root are skipped by the tree
// scanner and the watcher.
type ignoreRules struct {
	root    string
	matcher *ignore.GitIgnore
}

// loadIgnoreRules reads the optional .peekdeckignore in root (gitignore
// syntax). A missing or unreadable file means no extra rules.
func loadIgnoreRules(root string) *ignoreRules {
	rules := &ignoreRules{root: root}

	path := filepath.Join(root, ignoreFileName)
	if _, err := os.Stat(path); err != nil {
		return rules
	}
	matcher, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		log.Printf("Warning: ignoring unreadable %s: %v", path, err)
		return rules
	}
	rules.matcher = matcher
	return rules
}

// skipDir reports whether the directory at path (below root) is excluded.
func (r *ignoreRules) skipDir(path string) bool {
	if excludedDirs[filepath.Base(path)] {
		return true
	}
	return r.matches(path, true)
}

// skipFile reports whether the file at path (below root) is excluded.
func (r *ignoreRules) skipFile(path string) bool {
	return r.matches(path, false)
}

// inExcludedDir reports whether any path element between root and path is
// a control or dependency directory.
func (r *ignoreRules) inExcludedDir(path string) bool {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if excludedDirs[part] {
			return true
		}
	}
	return false
}

func (r *ignoreRules) matches(path string, isDir bool) bool {
	if r == nil || r.matcher == nil {
		return false
	}
	rel, err := filepath.Rel(r.root, path)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	if isDir {
		rel += "/"
	}
	return r.matcher.MatchesPath(rel)
}

// ignorePatterns returns the non-comment lines of root's .peekdeckignore.
func ignorePatterns(root string) []string {
	data, err := os.ReadFile(filepath.Join(root, ignoreFileName))
	if err != nil {
		return nil
	}
	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}
