package code

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"loom/internal/models"
)

const contextLines = 3

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
)

type lineOp struct {
	op   diffmatchpatch.Operation
	text string
}

// UnifiedDiff renders a diff as a unified patch. It returns "" when the
// diff changes nothing.
func UnifiedDiff(d models.CodeDiff, color bool) string {
	if !d.Changed() {
		return ""
	}

	dmp := diffmatchpatch.New()
	chars1, chars2, lineArray := dmp.DiffLinesToChars(d.Original, d.Generated)
	diffs := dmp.DiffMain(chars1, chars2, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var ops []lineOp
	for _, df := range diffs {
		if df.Text == "" {
			continue
		}
		for _, line := range strings.Split(strings.TrimSuffix(df.Text, "\n"), "\n") {
			ops = append(ops, lineOp{op: df.Type, text: line})
		}
	}

	paint := func(c, s string) string {
		if !color {
			return s
		}
		return c + s + colorReset
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", d.Path, d.Path)

	oldLine, newLine := 1, 1
	for i := 0; i < len(ops); {
		if ops[i].op == diffmatchpatch.DiffEqual {
			oldLine++
			newLine++
			i++
			continue
		}

		// Open a hunk with leading context.
		start := i - contextLines
		if start < 0 {
			start = 0
		}
		for start < i && ops[start].op != diffmatchpatch.DiffEqual {
			start++
		}
		back := i - start
		oldStart, newStart := oldLine-back, newLine-back

		// Extend until a run of equal lines longer than twice the context.
		end := i
		for end < len(ops) {
			if ops[end].op != diffmatchpatch.DiffEqual {
				end++
				continue
			}
			run := end
			for run < len(ops) && ops[run].op == diffmatchpatch.DiffEqual {
				run++
			}
			if run == len(ops) || run-end > 2*contextLines {
				end += min(contextLines, run-end)
				break
			}
			end = run
		}

		var lines []string
		oldCount, newCount := 0, 0
		for _, o := range ops[start:end] {
			switch o.op {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, " "+o.text)
				oldCount++
				newCount++
			case diffmatchpatch.DiffDelete:
				lines = append(lines, paint(colorRed, "-"+o.text))
				oldCount++
			case diffmatchpatch.DiffInsert:
				lines = append(lines, paint(colorGreen, "+"+o.text))
				newCount++
			}
		}
		b.WriteString(paint(colorCyan, fmt.Sprintf("@@ -%d,%d +%d,%d @@", oldStart, oldCount, newStart, newCount)))
		b.WriteByte('\n')
		for _, l := range lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}

		for _, o := range ops[i:end] {
			if o.op != diffmatchpatch.DiffInsert {
				oldLine++
			}
			if o.op != diffmatchpatch.DiffDelete {
				newLine++
			}
		}
		i = end
	}
	return b.String()
}
