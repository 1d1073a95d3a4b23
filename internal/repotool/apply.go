package repotool

import (
	"sort"
	"strings"

	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
)

// maxHunkOffset bounds the search distance when a hunk does not apply at
// its declared position
const maxHunkOffset = 200

// ApplyResult describes a successful patch application. Applied is always
// true here; a failed apply returns an error and leaves the tree untouched.
type ApplyResult struct {
	Applied bool     `json:"applied"`
	Touched []string `json:"touched"`
}

// ApplyPatch applies a unified diff to the tree atomically. All file
// contents are staged in memory first; nothing is written to disk unless
// every hunk of every file applies cleanly.
func (t *Tree) ApplyPatch(diffText string) (*ApplyResult, error) {
	diffs, err := ParseDiff(diffText)
	if err != nil {
		return nil, err
	}

	// staged maps path to new content; deleted marks removals
	staged := make(map[string]string)
	deleted := make(map[string]bool)

	readStaged := func(path string) (string, bool, error) {
		if deleted[path] {
			return "", false, nil
		}
		if content, ok := staged[path]; ok {
			return content, true, nil
		}
		if !t.Exists(path) {
			return "", false, nil
		}
		content, err := t.ReadFile(path)
		if err != nil {
			return "", false, err
		}
		return content, true, nil
	}

	for _, fd := range diffs {
		if _, err := t.resolve(fd.Path()); err != nil {
			return nil, err
		}

		switch {
		case fd.IsCreate:
			if _, exists, err := readStaged(fd.Path()); err != nil {
				return nil, err
			} else if exists {
				return nil, errors.Newf(errors.ErrCodePatchApplyConflict,
					"cannot create %s: file already exists", fd.Path())
			}
			content, err := applyCreate(&fd)
			if err != nil {
				return nil, err
			}
			staged[fd.Path()] = content
			delete(deleted, fd.Path())

		case fd.IsDelete:
			content, exists, err := readStaged(fd.OldPath)
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, errors.Newf(errors.ErrCodePatchApplyConflict,
					"cannot delete %s: file does not exist", fd.OldPath)
			}
			if err := verifyDelete(&fd, content); err != nil {
				return nil, err
			}
			deleted[fd.OldPath] = true
			delete(staged, fd.OldPath)

		default:
			content, exists, err := readStaged(fd.OldPath)
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, errors.Newf(errors.ErrCodePatchApplyConflict,
					"cannot patch %s: file does not exist", fd.OldPath)
			}
			updated, err := applyHunks(fd.OldPath, content, fd.Hunks)
			if err != nil {
				return nil, err
			}
			if fd.NewPath != fd.OldPath {
				deleted[fd.OldPath] = true
				delete(staged, fd.OldPath)
			}
			staged[fd.NewPath] = updated
			delete(deleted, fd.NewPath)
		}
	}

	// Everything staged cleanly; commit to disk.
	touched := make([]string, 0, len(staged)+len(deleted))
	for path := range deleted {
		if err := t.Remove(path); err != nil {
			return nil, err
		}
		touched = append(touched, path)
	}
	for path, content := range staged {
		if err := t.WriteFile(path, content); err != nil {
			return nil, err
		}
		touched = append(touched, path)
	}
	sort.Strings(touched)

	return &ApplyResult{Applied: true, Touched: touched}, nil
}

// applyCreate builds a new file's content from a creation diff. Every hunk
// line must be an addition.
func applyCreate(fd *FileDiff) (string, error) {
	var lines []string
	for _, h := range fd.Hunks {
		for _, l := range h.Lines {
			if l.Op != '+' {
				return "", errors.Newf(errors.ErrCodePatchApplyConflict,
					"creation diff for %s contains non-addition lines", fd.NewPath)
			}
			lines = append(lines, l.Text)
		}
	}
	return joinLines(lines), nil
}

// verifyDelete checks a deletion diff's removed lines against the file
func verifyDelete(fd *FileDiff, content string) error {
	fileLines := splitLines(content)
	var removed []string
	for _, h := range fd.Hunks {
		for _, l := range h.Lines {
			if l.Op == '+' {
				return errors.Newf(errors.ErrCodePatchApplyConflict,
					"deletion diff for %s contains additions", fd.OldPath)
			}
			removed = append(removed, l.Text)
		}
	}
	if len(removed) != len(fileLines) {
		return errors.Newf(errors.ErrCodePatchApplyConflict,
			"deletion diff for %s does not match file content", fd.OldPath)
	}
	for i := range removed {
		if removed[i] != fileLines[i] {
			return errors.Newf(errors.ErrCodePatchApplyConflict,
				"deletion diff for %s does not match file content at line %d", fd.OldPath, i+1)
		}
	}
	return nil
}

// applyHunks applies a file's hunks in order, returning the new content.
// Each hunk must match at its declared position adjusted for prior hunks,
// or within maxHunkOffset lines of it.
func applyHunks(path string, content string, hunks []Hunk) (string, error) {
	lines := splitLines(content)
	delta := 0

	for i, h := range hunks {
		want := h.OldStart - 1 + delta
		if h.OldLines == 0 {
			// a -N,0 range inserts after line N
			want = h.OldStart + delta
		}
		pos, ok := locateHunk(lines, &h, want)
		if !ok {
			return "", errors.Newf(errors.ErrCodePatchApplyConflict,
				"hunk %d of %s does not match file content near line %d", i+1, path, h.OldStart)
		}

		var replaced []string
		replaced = append(replaced, lines[:pos]...)
		for _, l := range h.Lines {
			if l.Op == ' ' || l.Op == '+' {
				replaced = append(replaced, l.Text)
			}
		}
		replaced = append(replaced, lines[pos+h.OldLines:]...)
		lines = replaced
		delta += h.NewLines - h.OldLines
	}

	result := joinLines(lines)
	if result == "" && strings.TrimSpace(content) != "" && len(hunks) == 0 {
		return content, nil
	}
	return result, nil
}

// locateHunk finds the position where a hunk's old side matches the file,
// preferring the expected position and searching outward from it.
func locateHunk(lines []string, h *Hunk, want int) (int, bool) {
	if hunkMatchesAt(lines, h, want) {
		return want, true
	}
	for offset := 1; offset <= maxHunkOffset; offset++ {
		if hunkMatchesAt(lines, h, want-offset) {
			return want - offset, true
		}
		if hunkMatchesAt(lines, h, want+offset) {
			return want + offset, true
		}
	}
	return 0, false
}

// hunkMatchesAt checks the hunk's context and removal lines against the
// file starting at pos
func hunkMatchesAt(lines []string, h *Hunk, pos int) bool {
	if pos < 0 || pos+h.OldLines > len(lines) {
		return false
	}
	i := pos
	for _, l := range h.Lines {
		if l.Op == '+' {
			continue
		}
		if lines[i] != l.Text {
			return false
		}
		i++
	}
	return true
}
