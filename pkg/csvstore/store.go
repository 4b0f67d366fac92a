// Package csvstore implements the partitioned CSV backend: one text file
// per partition behind a storage adapter, append-fast batched writes, and
// first/last probing that reads two lines instead of a partition.
package csvstore

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stratadb/strata/internal/cache"
	"github.com/stratadb/strata/internal/cargo"
	"github.com/stratadb/strata/internal/codec"
	"github.com/stratadb/strata/pkg/partition"
	"github.com/stratadb/strata/pkg/schema"
	"github.com/stratadb/strata/pkg/storage"
	"github.com/stratadb/strata/pkg/types"
)

// schemaFile is the reserved path of the persisted schema at the adapter
// root.
const schemaFile = "schema.json"

// partitionExt is the extension of partition data files.
const partitionExt = "csv"

// Store is the CSV backend. All persistent state goes through the storage
// adapter; the partitioner maps index values to file names.
type Store struct {
	adapter  storage.Adapter
	parter   partition.Partitioner
	template *schema.Template
	log      zerolog.Logger
	pages    *cache.Cache

	mu       sync.Mutex
	resolved *types.Schema

	qmu    sync.Mutex
	queues map[string]*cargo.Queue
}

// Option configures a Store.
type Option func(*Store)

// WithTemplate declares the entry template the store's schema derives from.
func WithTemplate(t schema.Template) Option {
	return func(s *Store) { s.template = &t }
}

// WithLogger sets the structured logger. The default discards.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithCacheBytes bounds the in-memory partition page cache. Zero disables
// caching.
func WithCacheBytes(maxBytes int64) Option {
	return func(s *Store) {
		if maxBytes == 0 {
			s.pages = nil
			return
		}
		s.pages = cache.New(maxBytes)
	}
}

// New creates a CSV store over the given adapter and partitioner.
func New(adapter storage.Adapter, parter partition.Partitioner, opts ...Option) *Store {
	s := &Store{
		adapter: adapter,
		parter:  parter,
		log:     zerolog.Nop(),
		pages:   cache.New(0),
		queues:  make(map[string]*cargo.Queue),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schema returns the resolved schema, resolving it on first use.
func (s *Store) Schema(ctx context.Context) (types.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(ctx)
}

// resolveLocked reconciles the persisted schema with the declared template,
// persisting the declared one when nothing is stored yet. The result is
// cached for the store's lifetime.
func (s *Store) resolveLocked(ctx context.Context) (types.Schema, error) {
	if s.resolved != nil {
		return *s.resolved, nil
	}

	var stored *types.Schema
	exists, err := s.adapter.Exists(ctx, schemaFile)
	if err != nil {
		return types.Schema{}, types.Wrap(types.ErrCategoryStorage, types.CodeReadFailed, "probe schema", err)
	}
	if exists {
		data, err := s.adapter.Read(ctx, schemaFile)
		if err != nil {
			return types.Schema{}, types.Wrap(types.ErrCategoryStorage, types.CodeReadFailed, "read schema", err)
		}
		doc := schema.NewDocument()
		if err := json.Unmarshal(data, doc); err != nil {
			return types.Schema{}, types.Wrap(types.ErrCategoryStorage, types.CodeReadFailed, "parse schema", err)
		}
		sch, err := schema.Decode(doc)
		if err != nil {
			return types.Schema{}, err
		}
		stored = &sch
	}

	var declared *types.Schema
	if s.template != nil {
		sch, err := s.template.Schema()
		if err != nil {
			return types.Schema{}, err
		}
		declared = &sch
	}

	resolved, err := schema.Reconcile(stored, declared)
	if err != nil {
		return types.Schema{}, err
	}

	if stored == nil {
		data, err := json.Marshal(schema.Encode(resolved))
		if err != nil {
			return types.Schema{}, types.Wrap(types.ErrCategoryInternal, types.CodeUnexpected, "encode schema", err)
		}
		if err := s.adapter.Write(ctx, schemaFile, data); err != nil {
			return types.Schema{}, types.Wrap(types.ErrCategoryStorage, types.CodeWriteFailed, "persist schema", err)
		}
		s.log.Debug().Str("file", schemaFile).Msg("schema persisted")
	}

	s.resolved = &resolved
	return resolved, nil
}

// Fields returns the schema's field names in declaration order.
func (s *Store) Fields(ctx context.Context) ([]string, error) {
	sch, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}
	return sch.FieldNames(), nil
}

// Get returns the entry stored under key, or nil when absent.
func (s *Store) Get(ctx context.Context, key interface{}) (types.Entry, error) {
	sch, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}

	name, err := s.parter.Partition(key)
	if err != nil {
		return nil, err
	}
	path := name + "." + partitionExt

	exists, err := s.adapter.Exists(ctx, path)
	if err != nil {
		return nil, types.Wrap(types.ErrCategoryStorage, types.CodeReadFailed, "probe partition", err)
	}
	if !exists {
		return nil, nil
	}

	data, err := s.readPartition(ctx, path)
	if err != nil {
		return nil, err
	}
	records, err := parseCSV(data)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}

	keyStr, err := codec.KeyString(sch.IndexType().Kind, key)
	if err != nil {
		return nil, err
	}
	header := records[0]
	idxCol := columnOf(header, sch.Index)
	if idxCol < 0 {
		return nil, types.New(types.ErrCategoryStorage, types.CodeReadFailed,
			fmt.Sprintf("partition %s lacks index column %q", path, sch.Index))
	}

	for _, row := range records[1:] {
		if idxCol >= len(row) {
			continue
		}
		if row[idxCol] == keyStr {
			return rowToEntry(sch, header, row)
		}
	}
	return nil, nil
}

// First returns the earliest entry under the partitioner's order, or nil
// on an empty store. Only two lines of the first partition are read.
func (s *Store) First(ctx context.Context) (types.Entry, error) {
	sch, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}

	path, ok, err := s.edgePartition(ctx, true)
	if err != nil || !ok {
		return nil, err
	}

	data, err := s.adapter.Head(ctx, path, 2)
	if err != nil {
		return nil, types.Wrap(types.ErrCategoryStorage, types.CodeReadFailed, "head partition", err)
	}
	return edgeEntry(sch, data)
}

// Last returns the latest entry under the partitioner's order, or nil on
// an empty store. One line is read from the head of the last partition and
// one from its tail.
func (s *Store) Last(ctx context.Context) (types.Entry, error) {
	sch, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}

	path, ok, err := s.edgePartition(ctx, false)
	if err != nil || !ok {
		return nil, err
	}

	head, err := s.adapter.Head(ctx, path, 1)
	if err != nil {
		return nil, types.Wrap(types.ErrCategoryStorage, types.CodeReadFailed, "head partition", err)
	}
	tail, err := s.adapter.Tail(ctx, path, 1)
	if err != nil {
		return nil, types.Wrap(types.ErrCategoryStorage, types.CodeReadFailed, "tail partition", err)
	}
	if bytes.Equal(head, tail) {
		return nil, nil
	}
	return edgeEntry(sch, append(head, tail...))
}

// FirstKey returns the index value of the first entry, or nil.
func (s *Store) FirstKey(ctx context.Context) (interface{}, error) {
	e, err := s.First(ctx)
	return s.projectKey(ctx, e, err)
}

// LastKey returns the index value of the last entry, or nil.
func (s *Store) LastKey(ctx context.Context) (interface{}, error) {
	e, err := s.Last(ctx)
	return s.projectKey(ctx, e, err)
}

func (s *Store) projectKey(ctx context.Context, e types.Entry, err error) (interface{}, error) {
	if err != nil || e == nil {
		return nil, err
	}
	sch, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}
	return e[sch.Index], nil
}

// edgePartition resolves the first or last populated partition's file
// path. ok is false on an empty store.
func (s *Store) edgePartition(ctx context.Context, first bool) (string, bool, error) {
	files, err := s.adapter.Collection(ctx, partitionExt)
	if err != nil {
		return "", false, types.Wrap(types.ErrCategoryStorage, types.CodeReadFailed, "list partitions", err)
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, trimExt(f))
	}

	rng, ok := s.parter.Range(names)
	if !ok {
		return "", false, nil
	}
	name := rng.First
	if !first {
		name = rng.Last
	}
	path := name + "." + partitionExt

	// A partitioner may answer a range on an empty store (Single does);
	// the file decides.
	exists, err := s.adapter.Exists(ctx, path)
	if err != nil {
		return "", false, types.Wrap(types.ErrCategoryStorage, types.CodeReadFailed, "probe partition", err)
	}
	return path, exists, nil
}

// edgeEntry parses a header line plus one data line into an entry.
func edgeEntry(sch types.Schema, data []byte) (types.Entry, error) {
	records, err := parseCSV(data)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}
	return rowToEntry(sch, records[0], records[1])
}

// Put validates entries, buckets them by partition, and drains each
// bucket through its partition's queue. It returns once every touched
// queue has drained; partitions fail independently.
func (s *Store) Put(ctx context.Context, entries ...types.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	sch, err := s.Schema(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := schema.Validate(e, sch); err != nil {
			return err
		}
	}

	buckets := make(map[string][]types.Entry)
	var order []string
	for _, e := range entries {
		name, err := s.parter.Partition(e[sch.Index])
		if err != nil {
			return err
		}
		if _, ok := buckets[name]; !ok {
			order = append(order, name)
		}
		buckets[name] = append(buckets[name], e)
	}

	waits := make([]<-chan error, 0, len(order))
	for _, name := range order {
		waits = append(waits, s.queue(name).Push(ctx, buckets[name]))
	}

	var errs []error
	for _, w := range waits {
		if err := <-w; err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// queue returns the partition's write queue, creating it on first use.
func (s *Store) queue(name string) *cargo.Queue {
	s.qmu.Lock()
	defer s.qmu.Unlock()

	q, ok := s.queues[name]
	if !ok {
		q = cargo.New(func(ctx context.Context, batch []types.Entry) error {
			return s.writePartition(ctx, name, batch)
		})
		s.queues[name] = q
	}
	return q
}

// readPartition reads a partition file through the page cache.
func (s *Store) readPartition(ctx context.Context, path string) ([]byte, error) {
	if s.pages != nil {
		if data, ok := s.pages.Get(path); ok {
			return data, nil
		}
	}
	data, err := s.adapter.Read(ctx, path)
	if err != nil {
		return nil, types.Wrap(types.ErrCategoryStorage, types.CodeReadFailed, "read partition", err)
	}
	if s.pages != nil {
		s.pages.Put(path, data)
	}
	return data, nil
}

// parseCSV parses partition bytes into records. A trailing empty row is
// permitted on read.
func parseCSV(data []byte) ([][]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, types.Wrap(types.ErrCategoryStorage, types.CodeReadFailed, "parse partition", err)
	}
	return records, nil
}

// rowToEntry dehydrates one CSV row under the file's header order. Nil
// values of nullable fields are omitted from the entry.
func rowToEntry(sch types.Schema, header, row []string) (types.Entry, error) {
	if len(row) < len(header) {
		return nil, types.New(types.ErrCategoryStorage, types.CodeReadFailed,
			fmt.Sprintf("row has %d cells, header has %d", len(row), len(header)))
	}
	e := make(types.Entry, len(header))
	for i, col := range header {
		ft, ok := sch.Lookup(col)
		if !ok {
			return nil, types.New(types.ErrCategoryStorage, types.CodeReadFailed,
				fmt.Sprintf("column %q is not in the schema", col))
		}
		v, err := codec.DehydrateCSV(ft, row[i])
		if err != nil {
			return nil, err
		}
		if v != nil {
			e[col] = v
		}
	}
	return e, nil
}

// columnOf returns the position of a column in a header, or -1.
func columnOf(header []string, name string) int {
	for i, col := range header {
		if col == name {
			return i
		}
	}
	return -1
}

// trimExt strips the partition extension from a file path.
func trimExt(path string) string {
	suffix := "." + partitionExt
	if len(path) > len(suffix) && path[len(path)-len(suffix):] == suffix {
		return path[:len(path)-len(suffix)]
	}
	return path
}
