package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNoPatients is returned when the store holds no patient rows yet.
var ErrNoPatients = errors.New("no patient records in database")

// SchemaText returns the CREATE TABLE statements of every user table, the
// form the query planner is shown.
func (s *Store) SchemaText(ctx context.Context) (string, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var ddl sql.NullString
		if err := rows.Scan(&ddl); err != nil {
			return "", fmt.Errorf("scan schema row: %w", err)
		}
		if ddl.Valid {
			stmts = append(stmts, ddl.String)
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate schema rows: %w", err)
	}
	return strings.Join(stmts, "\n"), nil
}

// SolePatientID returns the id of the single patient the store is expected to
// hold. With several patients present the first row wins; with none,
// ErrNoPatients.
func (s *Store) SolePatientID(ctx context.Context) (int64, error) {
	var id int64
	err := s.conn.QueryRowContext(ctx, `SELECT id FROM patients ORDER BY id LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoPatients
	}
	if err != nil {
		return 0, fmt.Errorf("sole patient id: %w", err)
	}
	return id, nil
}

// Query runs a read-only statement and returns the column names plus every
// row rendered as strings. NULLs render as empty strings.
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]string, [][]string, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]string
	for rows.Next() {
		raw := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(cols))
		for i, v := range raw {
			if v.Valid {
				row[i] = v.String
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return cols, out, nil
}

// Dump reads every table into a JSON-friendly structure keyed by table name.
func (s *Store) Dump(ctx context.Context) (map[string][]map[string]string, error) {
	out := make(map[string][]map[string]string, len(Tables))
	for _, table := range Tables {
		cols, rows, err := s.Query(ctx, "SELECT * FROM "+table)
		if err != nil {
			return nil, fmt.Errorf("dump %s: %w", table, err)
		}
		records := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			rec := make(map[string]string, len(cols))
			for i, col := range cols {
				rec[col] = row[i]
			}
			records = append(records, rec)
		}
		out[table] = records
	}
	return out, nil
}
