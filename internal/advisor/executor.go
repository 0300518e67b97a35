package advisor

import (
	"context"
	"fmt"
	"strings"
)

const noDataMessage = "The queries ran successfully but returned no data."

// Execute runs every planned query and renders the combined result text.
// Queries carrying a ? placeholder are bound to the store's sole patient id.
// A failing or rejected query becomes an inline error block; the batch never
// aborts early.
func (a *Advisor) Execute(ctx context.Context, schema string, queries []string) string {
	pid, pidErr := a.store.SolePatientID(ctx)

	var blocks []string
	for _, raw := range queries {
		q := SanitizeSQL(raw)
		if q == "" {
			a.logger.Warn().Str("query", raw).Msg("query rejected by sanitizer")
			blocks = append(blocks, errorBlock(strings.TrimSpace(raw), "rejected: not a single read-only SELECT statement"))
			continue
		}

		block, err := a.runQuery(ctx, q, pid, pidErr)
		if err != nil {
			a.logger.Warn().Err(err).Str("query", q).Msg("query failed, attempting repair")
			if repaired, rerr := a.RepairQuery(ctx, q, err.Error(), schema); rerr == nil && repaired != "" {
				if block, err2 := a.runQuery(ctx, repaired, pid, pidErr); err2 == nil {
					if block != "" {
						blocks = append(blocks, block)
					}
					continue
				}
			}
			blocks = append(blocks, errorBlock(q, err.Error()))
			continue
		}
		if block != "" {
			blocks = append(blocks, block)
		}
	}

	if len(blocks) == 0 {
		return noDataMessage
	}
	return strings.Join(blocks, "\n\n")
}

func (a *Advisor) runQuery(ctx context.Context, q string, pid int64, pidErr error) (string, error) {
	var args []any
	if n := countPlaceholders(q); n > 0 {
		if pidErr != nil {
			return "", pidErr
		}
		for i := 0; i < n; i++ {
			args = append(args, pid)
		}
	}

	cols, rows, err := a.store.Query(ctx, q, args...)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- Query: %s ---\n", q)
	b.WriteString(strings.Join(cols, " | "))
	for _, row := range rows {
		b.WriteString("\n")
		b.WriteString(renderRow(row))
	}
	return b.String(), nil
}

// renderRow joins the cells of one result row onto a single physical line.
// Multi-line values (note narratives) are flattened so the compactor can
// treat every data row as exactly one line.
func renderRow(row []string) string {
	cells := make([]string, len(row))
	for i, cell := range row {
		cells[i] = strings.Join(strings.Fields(cell), " ")
	}
	return strings.Join(cells, " | ")
}

// countPlaceholders counts ? markers outside quoted literals, so a ? inside
// a string never binds an argument.
func countPlaceholders(q string) int {
	n := 0
	inSingle, inDouble := false, false
	for i := 0; i < len(q); i++ {
		switch c := q[i]; {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case c == '?' && !inSingle && !inDouble:
			n++
		}
	}
	return n
}

func errorBlock(q, msg string) string {
	return fmt.Sprintf("--- Error running query: %s ---\nError: %s", q, msg)
}
