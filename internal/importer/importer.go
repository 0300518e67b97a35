// Package importer drives the parse, ingest and persist pipeline for CDA
// export files.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/mychart/explorer/internal/ccda"
	"github.com/mychart/explorer/internal/platform/xmltree"
	"github.com/mychart/explorer/internal/store"
)

type Importer struct {
	store  *store.Store
	logger zerolog.Logger
}

func New(st *store.Store, logger zerolog.Logger) *Importer {
	return &Importer{store: st, logger: logger}
}

// FileResult reports the outcome for one file of a batch.
type FileResult struct {
	File     string
	Inserted int
	Err      error
}

// Import parses one document from r and persists its records, returning the
// number of rows inserted. name is only used in error text.
func (imp *Importer) Import(ctx context.Context, name string, r io.Reader) (int, error) {
	root, err := xmltree.Build(r)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	recs, err := ccda.ParseDocument(root)
	if err != nil {
		return 0, fmt.Errorf("ingest %s: %w", name, err)
	}
	n, err := imp.store.InsertBatch(ctx, recs)
	if err != nil {
		return 0, fmt.Errorf("persist %s: %w", name, err)
	}
	return n, nil
}

// ImportFile imports a single file from disk.
func (imp *Importer) ImportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return imp.Import(ctx, path, f)
}

// ImportFiles imports the given files one at a time. A failing file is
// logged and reported in its result; the rest of the batch still runs.
func (imp *Importer) ImportFiles(ctx context.Context, paths []string) []FileResult {
	results := make([]FileResult, 0, len(paths))
	for _, path := range paths {
		n, err := imp.ImportFile(ctx, path)
		if err != nil {
			imp.logger.Warn().Err(err).Str("file", path).Msg("file skipped")
		} else {
			imp.logger.Info().Str("file", path).Int("inserted", n).Msg("file imported")
		}
		results = append(results, FileResult{File: path, Inserted: n, Err: err})
	}
	return results
}
