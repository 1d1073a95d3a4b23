// Package repotool mutates a sandboxed file tree from unified diffs. It is
// the only component that writes generated project files; every path is
// resolved relative to the sandbox root and traversal outside it is
// rejected.
package repotool

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
)

// Tree is a sandboxed file tree rooted at a single directory. One build
// session exclusively owns its tree; trees are never shared across builds.
type Tree struct {
	root string
}

// NewTree creates a tree rooted at dir, creating the directory if needed
func NewTree(dir string) (*Tree, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to resolve sandbox root", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to create sandbox root", err)
	}
	return &Tree{root: abs}, nil
}

// Root returns the sandbox root directory
func (t *Tree) Root() string {
	return t.root
}

// resolve maps a repo-relative path onto the filesystem, rejecting absolute
// paths and any form of `..` escape.
func (t *Tree) resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New(errors.ErrCodePatchPathEscape, "empty path")
	}
	if filepath.IsAbs(path) {
		return "", errors.NewPathEscapeError(path)
	}

	cleaned := filepath.Clean(filepath.FromSlash(path))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", errors.NewPathEscapeError(path)
	}

	full := filepath.Join(t.root, cleaned)
	if full != t.root && !strings.HasPrefix(full, t.root+string(filepath.Separator)) {
		return "", errors.NewPathEscapeError(path)
	}
	return full, nil
}

// Read returns the lines [startLine, endLine] of a file, 1-based and
// inclusive. startLine 0 means the beginning and endLine 0 means the end.
func (t *Tree) Read(path string, startLine, endLine int) (string, error) {
	content, err := t.ReadFile(path)
	if err != nil {
		return "", err
	}
	if startLine <= 0 && endLine <= 0 {
		return content, nil
	}

	lines := splitLines(content)
	if startLine <= 0 {
		startLine = 1
	}
	if endLine <= 0 || endLine > len(lines) {
		endLine = len(lines)
	}
	if startLine > len(lines) {
		return "", nil
	}
	return strings.Join(lines[startLine-1:endLine], "\n"), nil
}

// ReadFile returns the full content of a file
func (t *Tree) ReadFile(path string) (string, error) {
	full, err := t.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Newf(errors.ErrCodeFileNotFound, "file not found: %s", path)
		}
		return "", errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read "+path, err)
	}
	return string(data), nil
}

// WriteFile writes content to a file, creating parent directories
func (t *Tree) WriteFile(path, content string) error {
	full, err := t.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to create parent directory", err)
	}
	if err := os.WriteFile(full, []byte(content), 0600); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write "+path, err)
	}
	return nil
}

// Remove deletes a file; missing files are not an error. Empty parent
// directories are left in place.
func (t *Tree) Remove(path string) error {
	full, err := t.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to remove "+path, err)
	}
	return nil
}

// Exists reports whether a file exists in the tree
func (t *Tree) Exists(path string) bool {
	full, err := t.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && !info.IsDir()
}

// Search returns the sorted repo-relative paths matching a glob pattern.
// A pattern without a separator matches at any depth.
func (t *Tree) Search(pattern string) ([]string, error) {
	anyDepth := !strings.Contains(pattern, "/")

	var matches []string
	err := filepath.Walk(t.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != t.root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		target := rel
		if anyDepth {
			target = filepath.Base(rel)
		}
		ok, err := filepath.Match(pattern, target)
		if err != nil {
			return err
		}
		if ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to search sandbox", err)
	}

	sort.Strings(matches)
	return matches, nil
}

// Snapshot captures the full tree as a map of repo-relative path to content
func (t *Tree) Snapshot() (map[string]string, error) {
	snapshot := make(map[string]string)
	err := filepath.Walk(t.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != t.root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		snapshot[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to snapshot sandbox", err)
	}
	return snapshot, nil
}

// Restore rewrites the tree to exactly match a snapshot, removing files that
// are not part of it.
func (t *Tree) Restore(snapshot map[string]string) error {
	current, err := t.Snapshot()
	if err != nil {
		return err
	}

	for path := range current {
		if _, keep := snapshot[path]; !keep {
			if err := t.Remove(path); err != nil {
				return err
			}
		}
	}
	for path, content := range snapshot {
		if current[path] == content {
			continue
		}
		if err := t.WriteFile(path, content); err != nil {
			return err
		}
	}
	return nil
}

// splitLines splits content into lines without trailing newline artifacts.
// Empty content yields no lines.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	trimmed := strings.TrimSuffix(content, "\n")
	return strings.Split(trimmed, "\n")
}

// joinLines reassembles lines into file content with a trailing newline
func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
