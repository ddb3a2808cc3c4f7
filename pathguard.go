package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".svg":  true,
	".webp": true,
	".bmp":  true,
	".ico":  true,
	".avif": true,
}

// isMarkdown reports whether name has a .md extension, ignoring case.
func isMarkdown(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".md")
}

// canonicalPath makes p absolute, collapses relative segments and resolves
// symlinks. A path that does not exist yields ErrNotFound.
func canonicalPath(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", p, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", abs, ErrNotFound)
		}
		return "", fmt.Errorf("resolve %s: %w", abs, err)
	}
	return resolved, nil
}

// withinRoot reports whether path equals root or lies below it. Both must
// already be canonical. The match is separator-bounded: /a/bc does not
// contain /a/bcd.
func withinRoot(path, root string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// resolveUnder joins a relative request onto root and canonicalizes both.
func resolveUnder(requested, root string) (path, canonRoot string, err error) {
	if strings.ContainsRune(requested, 0) {
		return "", "", fmt.Errorf("invalid path: %w", ErrOutsideRoot)
	}
	canonRoot, err = canonicalPath(root)
	if err != nil {
		return "", "", err
	}
	if !filepath.IsAbs(requested) {
		requested = filepath.Join(root, requested)
	}
	path, err = canonicalPath(requested)
	if err != nil {
		return "", "", err
	}
	return path, canonRoot, nil
}

// resolveDocumentPath is the only way a document read reaches the disk.
// It accepts requested (absolute, or relative to root) iff its canonical
// form is inside the canonical root and ends in .md.
func resolveDocumentPath(requested, root string) (string, error) {
	path, canonRoot, err := resolveUnder(requested, root)
	if err != nil {
		return "", err
	}
	if !withinRoot(path, canonRoot) {
		return "", fmt.Errorf("%s: %w", requested, ErrOutsideRoot)
	}
	if !isMarkdown(path) {
		return "", fmt.Errorf("%s: %w", requested, ErrNotMarkdown)
	}
	return path, nil
}

// resolveAssetPath validates an image request. This boundary is weaker than
// resolveDocumentPath: root containment is only enforced when restrict is
// set, and any image extension is accepted.
func resolveAssetPath(requested, root string, restrict bool) (string, error) {
	path, canonRoot, err := resolveUnder(requested, root)
	if err != nil {
		return "", err
	}
	if restrict && !withinRoot(path, canonRoot) {
		return "", fmt.Errorf("%s: %w", requested, ErrOutsideRoot)
	}
	if !imageExtensions[strings.ToLower(filepath.Ext(path))] {
		return "", fmt.Errorf("%s: unsupported asset type: %w", requested, ErrNotFound)
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s: %w", requested, ErrNotFound)
	}
	return path, nil
}

// validateDirectory resolves dir to its canonical absolute path and checks
// that it exists and is a directory. Every window root goes through here,
// so the tree, the watcher and the path guard all agree on one spelling.
func validateDirectory(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("directory not found: %s: %w", abs, ErrNotFound)
		}
		return "", fmt.Errorf("access %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s: %w", abs, ErrNotADirectory)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", abs, err)
	}
	return resolved, nil
}
