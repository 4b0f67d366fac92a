package csvstore

import (
	"bytes"
	"context"
	"encoding/csv"
	"sort"
	"time"

	"github.com/stratadb/strata/internal/codec"
	"github.com/stratadb/strata/pkg/types"
)

// writePartition drains one batch into a partition. Append mode applies
// iff the file exists and the batch's minimum index is strictly greater
// than the file's last index: the batch is emitted without a header via
// Append, O(batch) I/O. Anything else degrades to rewrite mode: read the
// partition, merge, deduplicate by key keeping the latest occurrence,
// sort ascending, emit with a header via Write.
func (s *Store) writePartition(ctx context.Context, name string, batch []types.Entry) error {
	started := time.Now()
	sch, err := s.Schema(ctx)
	if err != nil {
		return err
	}
	kind := sch.IndexType().Kind
	path := name + "." + partitionExt

	batch, err = dedupe(sch, batch)
	if err != nil {
		return err
	}
	if err := sortByIndex(sch, batch); err != nil {
		return err
	}

	exists, err := s.adapter.Exists(ctx, path)
	if err != nil {
		return types.Wrap(types.ErrCategoryStorage, types.CodeReadFailed, "probe partition", err)
	}

	mode := "rewrite"
	if exists {
		last, ok, err := s.lastIndexValue(ctx, sch, path)
		if err != nil {
			return err
		}
		if ok {
			cmp, err := codec.CompareIndex(kind, batch[0][sch.Index], last)
			if err != nil {
				return err
			}
			if cmp > 0 {
				mode = "append"
			}
		}
	}

	if mode == "append" {
		data, err := encodeRows(sch, batch, false)
		if err != nil {
			return err
		}
		if err := s.adapter.Append(ctx, path, data); err != nil {
			return types.Wrap(types.ErrCategoryStorage, types.CodeWriteFailed, "append partition", err)
		}
	} else {
		var existing []types.Entry
		if exists {
			data, err := s.readPartition(ctx, path)
			if err != nil {
				return err
			}
			records, err := parseCSV(data)
			if err != nil {
				return err
			}
			if len(records) > 1 {
				header := records[0]
				for _, row := range records[1:] {
					e, err := rowToEntry(sch, header, row)
					if err != nil {
						return err
					}
					existing = append(existing, e)
				}
			}
		}

		merged, err := dedupe(sch, append(existing, batch...))
		if err != nil {
			return err
		}
		if err := sortByIndex(sch, merged); err != nil {
			return err
		}
		data, err := encodeRows(sch, merged, true)
		if err != nil {
			return err
		}
		if err := s.adapter.Write(ctx, path, data); err != nil {
			return types.Wrap(types.ErrCategoryStorage, types.CodeWriteFailed, "rewrite partition", err)
		}
	}

	if s.pages != nil {
		s.pages.Invalidate(path)
	}
	s.log.Debug().
		Str("partition", name).
		Str("mode", mode).
		Int("entries", len(batch)).
		Dur("elapsed", time.Since(started)).
		Msg("partition drained")
	return nil
}

// lastIndexValue reads the partition's last entry's index with two line
// probes. ok is false for a file holding no data rows.
func (s *Store) lastIndexValue(ctx context.Context, sch types.Schema, path string) (interface{}, bool, error) {
	head, err := s.adapter.Head(ctx, path, 1)
	if err != nil {
		return nil, false, types.Wrap(types.ErrCategoryStorage, types.CodeReadFailed, "head partition", err)
	}
	tail, err := s.adapter.Tail(ctx, path, 1)
	if err != nil {
		return nil, false, types.Wrap(types.ErrCategoryStorage, types.CodeReadFailed, "tail partition", err)
	}
	if bytes.Equal(head, tail) {
		return nil, false, nil
	}
	records, err := parseCSV(append(head, tail...))
	if err != nil {
		return nil, false, err
	}
	if len(records) < 2 {
		return nil, false, nil
	}
	idxCol := columnOf(records[0], sch.Index)
	if idxCol < 0 || idxCol >= len(records[1]) {
		return nil, false, types.New(types.ErrCategoryStorage, types.CodeReadFailed,
			"partition lacks the index column")
	}
	v, err := codec.DehydrateCSV(sch.IndexType(), records[1][idxCol])
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// dedupe drops duplicate keys keeping the latest occurrence in iteration
// order. The relative order of survivors is preserved.
func dedupe(sch types.Schema, entries []types.Entry) ([]types.Entry, error) {
	kind := sch.IndexType().Kind
	last := make(map[string]int, len(entries))
	for i, e := range entries {
		key, err := codec.KeyString(kind, e[sch.Index])
		if err != nil {
			return nil, err
		}
		last[key] = i
	}
	if len(last) == len(entries) {
		return entries, nil
	}
	out := make([]types.Entry, 0, len(last))
	for i, e := range entries {
		key, _ := codec.KeyString(kind, e[sch.Index])
		if last[key] == i {
			out = append(out, e)
		}
	}
	return out, nil
}

// sortByIndex orders entries ascending by index value.
func sortByIndex(sch types.Schema, entries []types.Entry) error {
	kind := sch.IndexType().Kind
	var sortErr error
	sort.SliceStable(entries, func(i, j int) bool {
		cmp, err := codec.CompareIndex(kind, entries[i][sch.Index], entries[j][sch.Index])
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return cmp < 0
	})
	return sortErr
}

// encodeRows hydrates entries into CSV bytes, optionally header-first, in
// schema field order.
func encodeRows(sch types.Schema, entries []types.Entry, header bool) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if header {
		if err := w.Write(sch.FieldNames()); err != nil {
			return nil, types.Wrap(types.ErrCategoryInternal, types.CodeUnexpected, "write header", err)
		}
	}
	row := make([]string, len(sch.Fields))
	for _, e := range entries {
		for i, f := range sch.Fields {
			cell, err := codec.HydrateCSV(f.Type, e[f.Name])
			if err != nil {
				return nil, err
			}
			row[i] = cell
		}
		if err := w.Write(row); err != nil {
			return nil, types.Wrap(types.ErrCategoryInternal, types.CodeUnexpected, "write row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, types.Wrap(types.ErrCategoryInternal, types.CodeUnexpected, "flush rows", err)
	}
	return buf.Bytes(), nil
}
