package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/kraken/internal/indexer"
	"github.com/dshills/kraken/internal/storage"
	"github.com/dshills/kraken/internal/vectorindex"
	"github.com/dshills/kraken/pkg/types"
)

var (
	// ErrUnknownFile is returned for files whose name maps to no table
	ErrUnknownFile = errors.New("file does not map to a catalog table")
	// ErrUnsupportedFormat is returned for anything but CSV and xlsx/xlsm
	// workbooks. Legacy .xls files must be re-saved as xlsx.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyRow is recorded for rows with no usable values
	ErrEmptyRow = errors.New("row has no values")
)

// Appender appends entities to a named vector index. *vectorindex.Manager implements it.
type Appender interface {
	Add(ctx context.Context, name string, texts, ids []string) error
}

// Ingester loads catalog exports into storage
type Ingester struct {
	store  storage.Storage
	index  Appender
	logger *slog.Logger
	runID  func() string
}

// Option configures an Ingester
type Option func(*Ingester)

// WithIndex appends newly stored entities to their vector index
func WithIndex(a Appender) Option {
	return func(in *Ingester) {
		in.index = a
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(in *Ingester) {
		if logger != nil {
			in.logger = logger
		}
	}
}

// New creates an Ingester writing to store
func New(store storage.Storage, opts ...Option) *Ingester {
	in := &Ingester{
		store:  store,
		logger: slog.Default(),
		runID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(in)
	}
	in.logger = in.logger.With("component", "ingest")
	return in
}

// FileResult reports the ingestion of one file
type FileResult struct {
	File       string
	Table      string
	EntityType types.EntityType // Empty for tables without entities
	Inserted   int
	Updated    int
	Failed     int
	Indexed    int    // Entities appended to the vector index
	IndexNote  string // Why nothing was appended, when applicable
	Skipped    string // Why the file was skipped, when applicable
}

// Report summarizes one ingestion run
type Report struct {
	RunID    string
	Files    []FileResult
	Duration time.Duration
}

// Ingest loads every path. Directories contribute their CSV and xlsx files
// in name order. Files that map to no table are reported as skipped.
func (in *Ingester) Ingest(ctx context.Context, paths ...string) (*Report, error) {
	start := time.Now()
	files, err := expand(paths)
	if err != nil {
		return nil, err
	}

	report := &Report{RunID: in.runID()}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := in.IngestFile(ctx, report.RunID, path)
		switch {
		case errors.Is(err, ErrUnknownFile), errors.Is(err, ErrUnsupportedFormat):
			in.logger.Warn("skipping file", "file", path, "reason", err)
			res.Skipped = err.Error()
		case err != nil:
			return report, err
		}
		report.Files = append(report.Files, res)
	}
	report.Duration = time.Since(start)
	in.logger.Info("ingestion complete", "run_id", report.RunID, "files", len(report.Files), "duration", report.Duration)
	return report, nil
}

// expand replaces directories by the supported files they contain
func expand(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var matches []string
		for _, e := range entries {
			if e.IsDir() || !supportedFormat(e.Name()) {
				continue
			}
			matches = append(matches, filepath.Join(p, e.Name()))
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}

// IngestFile loads one CSV or xlsx export under runID. Rows that fail are
// logged, counted and skipped. The rows are stored in one transaction;
// afterwards new entities are appended to the attached vector index, if any.
func (in *Ingester) IngestFile(ctx context.Context, runID, path string) (FileResult, error) {
	res := FileResult{File: filepath.Base(path)}

	stem := strings.TrimSuffix(res.File, filepath.Ext(res.File))
	tgt, ok := fileTargets[stem]
	if !ok {
		return res, fmt.Errorf("%s: %w", res.File, ErrUnknownFile)
	}
	res.Table = tgt.table
	res.EntityType = tgt.entityType
	if !supportedFormat(path) {
		return res, fmt.Errorf("%s: %w", res.File, ErrUnsupportedFormat)
	}

	src, err := openRecords(path)
	if err != nil {
		return res, fmt.Errorf("open %s: %w", res.File, err)
	}
	defer src.Close()

	tx, err := in.store.BeginTx(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	logger := in.logger.With("file", res.File, "run_id", runID)
	var added []types.Entity
	err = readRows(src, tgt.columns, func(line int, row map[string]string, rowErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rowErr == nil {
			var e types.Entity
			var created bool
			e, created, rowErr = storeRow(ctx, tx, tgt, row)
			if rowErr == nil {
				if created {
					res.Inserted++
					if tgt.entityType != "" {
						added = append(added, e)
					}
				} else {
					res.Updated++
				}
				return nil
			}
		}
		res.Failed++
		logger.Error("skipping row", "line", line, "error", rowErr)
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("read %s: %w", res.File, err)
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("failed to commit transaction: %w", err)
	}

	in.appendToIndex(ctx, logger, &res, added)

	entry := &storage.IngestionLog{
		RunID:        runID,
		FileName:     res.File,
		TableName:    tgt.table,
		RowsInserted: res.Inserted + res.Updated,
		RowsFailed:   res.Failed,
		Details:      details(res),
	}
	if err := in.store.InsertIngestionLog(ctx, entry); err != nil {
		return res, err
	}

	logger.Info("file ingested",
		"table", entry.TableName,
		"inserted", res.Inserted,
		"updated", res.Updated,
		"failed", res.Failed,
		"indexed", res.Indexed)
	return res, nil
}

func (in *Ingester) appendToIndex(ctx context.Context, logger *slog.Logger, res *FileResult, added []types.Entity) {
	if in.index == nil || len(added) == 0 {
		return
	}
	name := res.EntityType.IndexName()
	texts, ids := indexer.Corpus(added)
	if len(ids) == 0 {
		return
	}
	err := in.index.Add(ctx, name, texts, ids)
	switch {
	case errors.Is(err, vectorindex.ErrNotLoaded):
		res.IndexNote = "index not loaded"
		logger.Info("index not loaded, new entities not appended", "index", name, "entities", len(ids))
	case err != nil:
		res.IndexNote = err.Error()
		logger.Warn("failed to append to index", "index", name, "error", err)
	default:
		res.Indexed = len(ids)
	}
}

func details(res FileResult) string {
	d := fmt.Sprintf("%s: %d inserted, %d updated, %d failed", res.File, res.Inserted, res.Updated, res.Failed)
	if res.IndexNote != "" {
		d += "; " + res.IndexNote
	} else if res.Indexed > 0 {
		d += fmt.Sprintf("; %d indexed", res.Indexed)
	}
	return d
}

// readRows reads the header from src and calls fn for each data row. Rows
// that cannot be decoded reach fn with a non-nil rowErr.
func readRows(src records, columns []column, fn func(line int, row map[string]string, rowErr error) error) error {
	header, _, err := src.next()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	fields := mapHeader(columns, header)

	for {
		record, line, err := src.next()
		if err == io.EOF {
			return nil
		}
		var rerr *rowError
		if errors.As(err, &rerr) {
			if err := fn(line, nil, rerr.err); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if len(record) != len(header) {
			rowErr := fmt.Errorf("expected %d fields, got %d", len(header), len(record))
			if err := fn(line, nil, rowErr); err != nil {
				return err
			}
			continue
		}

		row := make(map[string]string, len(fields))
		for field, i := range fields {
			row[field] = strings.TrimSpace(record[i])
		}
		if err := fn(line, row, nil); err != nil {
			return err
		}
	}
}
