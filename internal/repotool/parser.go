package repotool

import (
	"fmt"
	"strings"

	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
)

// FileDiff is one file's portion of a unified diff
type FileDiff struct {
	OldPath  string
	NewPath  string
	IsCreate bool
	IsDelete bool
	Hunks    []Hunk
}

// Path returns the effective repo-relative path the diff targets
func (d *FileDiff) Path() string {
	if d.IsDelete {
		return d.OldPath
	}
	return d.NewPath
}

// Hunk is a single @@ block
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []HunkLine
}

// HunkLine is one line of a hunk body. Op is ' ', '+' or '-'.
type HunkLine struct {
	Op   byte
	Text string
}

// ParseDiff parses a unified diff into per-file diffs. Git-style headers
// (diff --git, index, mode lines) are tolerated; /dev/null on either side
// marks creation or deletion.
func ParseDiff(diffText string) ([]FileDiff, error) {
	if strings.TrimSpace(diffText) == "" {
		return nil, errors.New(errors.ErrCodePatchEmpty, "diff is empty")
	}

	lines := strings.Split(strings.ReplaceAll(diffText, "\r\n", "\n"), "\n")
	// a trailing newline yields a final empty element that is not a diff line
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var diffs []FileDiff
	var current *FileDiff
	var hunk *Hunk

	flushHunk := func() error {
		if hunk == nil {
			return nil
		}
		if err := checkHunkCounts(hunk); err != nil {
			return err
		}
		current.Hunks = append(current.Hunks, *hunk)
		hunk = nil
		return nil
	}
	flushFile := func() error {
		if current == nil {
			return nil
		}
		if err := flushHunk(); err != nil {
			return err
		}
		if len(current.Hunks) == 0 {
			return errors.Newf(errors.ErrCodePatchParseFailed, "no hunks for %s", current.Path())
		}
		diffs = append(diffs, *current)
		current = nil
		return nil
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		switch {
		case strings.HasPrefix(line, "--- "):
			if err := flushFile(); err != nil {
				return nil, err
			}
			if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "+++ ") {
				return nil, errors.Newf(errors.ErrCodePatchParseFailed, "line %d: --- header without +++ header", i+1)
			}
			oldPath := parseHeaderPath(line[4:])
			newPath := parseHeaderPath(lines[i+1][4:])
			if oldPath == "" && newPath == "" {
				return nil, errors.Newf(errors.ErrCodePatchParseFailed, "line %d: both sides of diff are /dev/null", i+1)
			}
			current = &FileDiff{
				OldPath:  oldPath,
				NewPath:  newPath,
				IsCreate: oldPath == "",
				IsDelete: newPath == "",
			}
			i++

		case strings.HasPrefix(line, "@@"):
			if current == nil {
				return nil, errors.Newf(errors.ErrCodePatchParseFailed, "line %d: hunk header before file header", i+1)
			}
			if err := flushHunk(); err != nil {
				return nil, err
			}
			h, err := parseHunkHeader(line)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodePatchParseFailed, fmt.Sprintf("line %d", i+1), err)
			}
			hunk = h

		case hunk != nil && len(line) > 0 && (line[0] == ' ' || line[0] == '+' || line[0] == '-'):
			hunk.Lines = append(hunk.Lines, HunkLine{Op: line[0], Text: line[1:]})

		case hunk != nil && line == "":
			// an empty context line with the leading space stripped
			hunk.Lines = append(hunk.Lines, HunkLine{Op: ' ', Text: ""})

		case strings.HasPrefix(line, "\\ No newline"):
			// advisory marker, the staged content keeps a trailing newline

		default:
			// diff --git, index, mode lines, or trailing noise between files
			if hunk != nil && strings.TrimSpace(line) != "" && !isGitHeader(line) {
				if err := flushHunk(); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := flushFile(); err != nil {
		return nil, err
	}
	if len(diffs) == 0 {
		return nil, errors.New(errors.ErrCodePatchParseFailed, "no file headers found in diff")
	}
	return diffs, nil
}

// parseHeaderPath normalizes a ---/+++ header path. /dev/null becomes the
// empty string; a/ and b/ prefixes and tab-separated timestamps are
// stripped.
func parseHeaderPath(raw string) string {
	path := strings.TrimSpace(raw)
	if idx := strings.IndexByte(path, '\t'); idx >= 0 {
		path = path[:idx]
	}
	if path == "/dev/null" {
		return ""
	}
	path = strings.TrimPrefix(path, "a/")
	path = strings.TrimPrefix(path, "b/")
	return path
}

// parseHunkHeader parses "@@ -oldStart,oldLines +newStart,newLines @@"
func parseHunkHeader(line string) (*Hunk, error) {
	inner := strings.TrimPrefix(line, "@@")
	end := strings.Index(inner, "@@")
	if end < 0 {
		return nil, fmt.Errorf("malformed hunk header: %s", line)
	}
	fields := strings.Fields(inner[:end])
	if len(fields) != 2 || !strings.HasPrefix(fields[0], "-") || !strings.HasPrefix(fields[1], "+") {
		return nil, fmt.Errorf("malformed hunk header: %s", line)
	}

	oldStart, oldLines, err := parseRange(fields[0][1:])
	if err != nil {
		return nil, fmt.Errorf("malformed hunk header: %s", line)
	}
	newStart, newLines, err := parseRange(fields[1][1:])
	if err != nil {
		return nil, fmt.Errorf("malformed hunk header: %s", line)
	}
	return &Hunk{OldStart: oldStart, OldLines: oldLines, NewStart: newStart, NewLines: newLines}, nil
}

// parseRange parses "start,count" where count defaults to 1
func parseRange(s string) (start, count int, err error) {
	count = 1
	if idx := strings.IndexByte(s, ','); idx >= 0 {
		if _, err = fmt.Sscanf(s[idx+1:], "%d", &count); err != nil {
			return 0, 0, err
		}
		s = s[:idx]
	}
	if _, err = fmt.Sscanf(s, "%d", &start); err != nil {
		return 0, 0, err
	}
	return start, count, nil
}

// checkHunkCounts verifies the hunk body against its declared line counts
func checkHunkCounts(h *Hunk) error {
	var oldCount, newCount int
	for _, l := range h.Lines {
		switch l.Op {
		case ' ':
			oldCount++
			newCount++
		case '-':
			oldCount++
		case '+':
			newCount++
		}
	}
	if oldCount != h.OldLines || newCount != h.NewLines {
		return errors.Newf(errors.ErrCodePatchParseFailed,
			"hunk line counts do not match header: declared -%d +%d, found -%d +%d",
			h.OldLines, h.NewLines, oldCount, newCount)
	}
	return nil
}

func isGitHeader(line string) bool {
	return strings.HasPrefix(line, "diff --git ") ||
		strings.HasPrefix(line, "index ") ||
		strings.HasPrefix(line, "new file mode") ||
		strings.HasPrefix(line, "deleted file mode") ||
		strings.HasPrefix(line, "old mode") ||
		strings.HasPrefix(line, "new mode") ||
		strings.HasPrefix(line, "similarity index") ||
		strings.HasPrefix(line, "rename from") ||
		strings.HasPrefix(line, "rename to")
}
