package repotool

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
)

// contextLines is the number of unchanged lines kept around each change
// when generating a diff
const contextLines = 3

// DiffGenerator produces unified diffs between file contents. It is the
// inverse side of ApplyPatch: diffs it generates always apply cleanly to
// the old content.
type DiffGenerator struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewDiffGenerator creates a diff generator
func NewDiffGenerator() *DiffGenerator {
	return &DiffGenerator{dmp: diffmatchpatch.New()}
}

// Generate returns a unified diff transforming oldContent into newContent
// for the given repo-relative path. An empty oldContent produces a creation
// diff and an empty newContent a deletion diff. Identical contents return
// the empty string.
func (g *DiffGenerator) Generate(path, oldContent, newContent string) string {
	if oldContent == newContent {
		return ""
	}

	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	switch {
	case len(oldLines) == 0:
		return wholeFileDiff(path, newLines, true)
	case len(newLines) == 0:
		return wholeFileDiff(path, oldLines, false)
	}

	ops := g.lineOps(oldContent, newContent)
	hunks := groupHunks(ops)
	if len(hunks) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n", path)
	fmt.Fprintf(&b, "+++ b/%s\n", path)
	for _, h := range hunks {
		writeHunk(&b, h)
	}
	return b.String()
}

// lineOp is one line of a line-level diff
type lineOp struct {
	op   byte // ' ', '-' or '+'
	text string
}

// lineOps computes a line-level edit script between the two contents
func (g *DiffGenerator) lineOps(oldContent, newContent string) []lineOp {
	oldChars, newChars, lineArray := g.dmp.DiffLinesToChars(normalizeEOF(oldContent), normalizeEOF(newContent))
	diffs := g.dmp.DiffMain(oldChars, newChars, false)
	diffs = g.dmp.DiffCharsToLines(diffs, lineArray)

	var ops []lineOp
	for _, d := range diffs {
		var op byte
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			op = ' '
		case diffmatchpatch.DiffDelete:
			op = '-'
		case diffmatchpatch.DiffInsert:
			op = '+'
		}
		for _, line := range splitLines(d.Text) {
			ops = append(ops, lineOp{op: op, text: line})
		}
	}
	return ops
}

// groupHunks partitions an edit script into hunks with surrounding context
func groupHunks(ops []lineOp) []Hunk {
	var hunks []Hunk
	oldLine, newLine := 1, 1

	i := 0
	for i < len(ops) {
		// skip unchanged runs
		if ops[i].op == ' ' {
			oldLine++
			newLine++
			i++
			continue
		}

		// backtrack for leading context
		start := i
		ctx := 0
		for start > 0 && ctx < contextLines && ops[start-1].op == ' ' {
			start--
			ctx++
		}

		h := Hunk{
			OldStart: oldLine - ctx,
			NewStart: newLine - ctx,
		}

		// consume until a run of unchanged lines longer than twice the
		// context separates this change from the next
		j := start
		equalRun := 0
		for j < len(ops) {
			if ops[j].op == ' ' {
				equalRun++
				if equalRun > contextLines*2 {
					break
				}
			} else {
				equalRun = 0
			}
			j++
		}
		end := j
		if end == len(ops) {
			// trim trailing context to contextLines
			trailing := 0
			for end > start && ops[end-1].op == ' ' {
				trailing++
				end--
			}
			if trailing > contextLines {
				trailing = contextLines
			}
			end += trailing
		} else {
			// j sits on the last counted equal line
			end = j + 1 - (equalRun - contextLines)
		}

		for k := start; k < end; k++ {
			h.Lines = append(h.Lines, HunkLine{Op: ops[k].op, Text: ops[k].text})
			switch ops[k].op {
			case ' ':
				h.OldLines++
				h.NewLines++
				if k >= i {
					oldLine++
					newLine++
				}
			case '-':
				h.OldLines++
				if k >= i {
					oldLine++
				}
			case '+':
				h.NewLines++
				if k >= i {
					newLine++
				}
			}
		}
		hunks = append(hunks, h)
		i = end
	}
	return hunks
}

// wholeFileDiff emits a creation or deletion diff for the full file
func wholeFileDiff(path string, lines []string, create bool) string {
	var b strings.Builder
	if create {
		fmt.Fprintf(&b, "--- /dev/null\n")
		fmt.Fprintf(&b, "+++ b/%s\n", path)
		fmt.Fprintf(&b, "@@ -0,0 +1,%d @@\n", len(lines))
		for _, line := range lines {
			b.WriteString("+" + line + "\n")
		}
	} else {
		fmt.Fprintf(&b, "--- a/%s\n", path)
		fmt.Fprintf(&b, "+++ /dev/null\n")
		fmt.Fprintf(&b, "@@ -1,%d +0,0 @@\n", len(lines))
		for _, line := range lines {
			b.WriteString("-" + line + "\n")
		}
	}
	return b.String()
}

func writeHunk(b *strings.Builder, h Hunk) {
	oldStart, newStart := h.OldStart, h.NewStart
	if h.OldLines == 0 && oldStart > 0 {
		oldStart--
	}
	if h.NewLines == 0 && newStart > 0 {
		newStart--
	}
	fmt.Fprintf(b, "@@ -%d,%d +%d,%d @@\n", oldStart, h.OldLines, newStart, h.NewLines)
	for _, l := range h.Lines {
		b.WriteByte(l.Op)
		b.WriteString(l.Text)
		b.WriteByte('\n')
	}
}

// Invert reverses a unified diff so that applying the result undoes the
// original. Creations become deletions and vice versa.
func Invert(diffText string) (string, error) {
	diffs, err := ParseDiff(diffText)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodePatchParseFailed, "cannot invert diff", err)
	}

	var b strings.Builder
	for _, fd := range diffs {
		switch {
		case fd.IsCreate:
			fmt.Fprintf(&b, "--- a/%s\n", fd.NewPath)
			fmt.Fprintf(&b, "+++ /dev/null\n")
		case fd.IsDelete:
			fmt.Fprintf(&b, "--- /dev/null\n")
			fmt.Fprintf(&b, "+++ b/%s\n", fd.OldPath)
		default:
			fmt.Fprintf(&b, "--- a/%s\n", fd.NewPath)
			fmt.Fprintf(&b, "+++ b/%s\n", fd.OldPath)
		}
		for _, h := range fd.Hunks {
			inv := Hunk{
				OldStart: h.NewStart,
				OldLines: h.NewLines,
				NewStart: h.OldStart,
				NewLines: h.OldLines,
			}
			for _, l := range h.Lines {
				switch l.Op {
				case '+':
					inv.Lines = append(inv.Lines, HunkLine{Op: '-', Text: l.Text})
				case '-':
					inv.Lines = append(inv.Lines, HunkLine{Op: '+', Text: l.Text})
				default:
					inv.Lines = append(inv.Lines, l)
				}
			}
			writeHunk(&b, inv)
		}
	}
	return b.String(), nil
}

// normalizeEOF guarantees a trailing newline so line-mode diffs treat the
// last line like any other
func normalizeEOF(content string) string {
	if content == "" || strings.HasSuffix(content, "\n") {
		return content
	}
	return content + "\n"
}
