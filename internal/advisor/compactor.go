package advisor

import (
	"context"
	"fmt"
	"strings"
)

// displayCellLimit caps line length in the display rendition so wide note
// rows do not swamp a terminal or UI.
const displayCellLimit = 160

const noteSummaryPrompt = `Summarize the following clinical note in one or two sentences, keeping only
what could relate to: %s

Note:
%s`

// Compact rewrites the raw executor output into the context handed to
// synthesis and a display-safe rendition. Sections whose columns include
// note_content get a per-row summary call; every other section has exact
// duplicate rows squashed with an (xN) marker. Summary failures leave the
// row unchanged.
func (a *Advisor) Compact(ctx context.Context, symptoms, raw string) (string, string) {
	if !strings.Contains(raw, "--- ") {
		return raw, raw
	}

	var out []string
	for _, sec := range splitSections(raw) {
		if !strings.HasPrefix(sec.header, "--- Query:") || len(sec.lines) == 0 {
			out = append(out, sec.render())
			continue
		}

		cols := strings.Split(sec.lines[0], " | ")
		if idx := columnIndex(cols, "note_content"); idx >= 0 {
			sec.lines = a.summarizeRows(ctx, symptoms, sec.lines, idx)
		} else {
			sec.lines = squashDuplicates(sec.lines)
		}
		out = append(out, sec.render())
	}

	full := strings.Join(out, "\n\n")
	return full, truncateLines(full, displayCellLimit)
}

type section struct {
	header string
	lines  []string
}

func (s section) render() string {
	if len(s.lines) == 0 {
		return s.header
	}
	return s.header + "\n" + strings.Join(s.lines, "\n")
}

// splitSections groups the raw text into header-led sections. Text before
// the first header becomes a headerless section and passes through.
func splitSections(raw string) []section {
	var out []section
	cur := section{}
	flush := func() {
		if cur.header != "" || len(cur.lines) > 0 {
			out = append(out, cur)
		}
		cur = section{}
	}
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, "--- ") {
			flush()
			cur.header = line
			continue
		}
		if line == "" {
			continue
		}
		cur.lines = append(cur.lines, line)
	}
	flush()
	return out
}

func columnIndex(cols []string, name string) int {
	for i, c := range cols {
		if strings.TrimSpace(c) == name {
			return i
		}
	}
	return -1
}

// summarizeRows replaces the note_content cell of each data row with a short
// symptom-scoped summary, one sequential call per row. Rows that do not
// split into the expected number of cells pass through untouched.
func (a *Advisor) summarizeRows(ctx context.Context, symptoms string, lines []string, idx int) []string {
	header := lines[0]
	want := len(strings.Split(header, " | "))

	out := []string{header}
	for _, line := range lines[1:] {
		cells := strings.Split(line, " | ")
		if len(cells) != want || strings.TrimSpace(cells[idx]) == "" {
			out = append(out, line)
			continue
		}
		summary, err := a.llm.Generate(ctx, fmt.Sprintf(noteSummaryPrompt, symptoms, cells[idx]))
		if err != nil {
			a.logger.Warn().Err(err).Msg("note summary failed, keeping original row")
			out = append(out, line)
			continue
		}
		cells[idx] = strings.TrimSpace(summary)
		out = append(out, strings.Join(cells, " | "))
	}
	return out
}

// squashDuplicates collapses identical data rows, keeping first-seen order
// and appending an (xN) count to repeated rows.
func squashDuplicates(lines []string) []string {
	out := []string{lines[0]}
	counts := make(map[string]int)
	var order []string
	for _, line := range lines[1:] {
		key := strings.TrimSpace(line)
		if key == "" {
			continue
		}
		if counts[key] == 0 {
			order = append(order, key)
		}
		counts[key]++
	}
	for _, key := range order {
		if n := counts[key]; n > 1 {
			out = append(out, fmt.Sprintf("%s (x%d)", key, n))
		} else {
			out = append(out, key)
		}
	}
	return out
}

func truncateLines(s string, limit int) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if runes := []rune(line); len(runes) > limit {
			lines[i] = string(runes[:limit]) + "..."
		}
	}
	return strings.Join(lines, "\n")
}
