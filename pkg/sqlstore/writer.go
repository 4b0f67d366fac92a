package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stratadb/strata/internal/codec"
	"github.com/stratadb/strata/pkg/schema"
	"github.com/stratadb/strata/pkg/types"
)

// Put inserts entries with at-most-once semantics per key: later writes
// with an index value already present are silently ignored via ON
// CONFLICT DO NOTHING. Calls are serialized through the store's
// single-slot queue; each task opens the database, runs, and closes it.
func (s *Store) Put(ctx context.Context, entries ...types.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.slot }()

	return s.putTask(ctx, entries)
}

// putTask is one serialized write task.
func (s *Store) putTask(ctx context.Context, entries []types.Entry) error {
	task := uuid.New().String()[:8]
	trace := s.log.With().Str("task", task).Logger()

	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	sch, err := s.resolve(ctx, db)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := schema.Validate(e, sch); err != nil {
			return err
		}
	}

	names := sch.FieldNames()
	chunkSize := maxParams / len(names)
	if chunkSize < 1 {
		chunkSize = 1
	}

	rowMarks := "(" + strings.TrimSuffix(strings.Repeat("?,", len(names)), ",") + ")"
	for start := 0; start < len(entries); start += chunkSize {
		end := start + chunkSize
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[start:end]

		args := make([]interface{}, 0, len(chunk)*len(names))
		for _, e := range chunk {
			for _, f := range sch.Fields {
				bound, err := codec.HydrateSQL(f.Type, e[f.Name])
				if err != nil {
					return err
				}
				args = append(args, bound)
			}
		}

		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT DO NOTHING",
			recordsTable, strings.Join(names, ", "),
			strings.TrimSuffix(strings.Repeat(rowMarks+",", len(chunk)), ","))

		started := time.Now()
		res, err := db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return types.Wrap(types.ErrCategoryDatabase, types.CodeWriteFailed, "insert chunk", err)
		}
		s.statements.Add(1)

		inserted, _ := res.RowsAffected()
		trace.Debug().
			Int("entries", len(chunk)).
			Int64("inserted", inserted).
			Dur("elapsed", time.Since(started)).
			Msg("chunk inserted")
	}
	return nil
}

// Statements returns the number of chunked INSERT statements the store
// has issued.
func (s *Store) Statements() int64 {
	return s.statements.Load()
}
