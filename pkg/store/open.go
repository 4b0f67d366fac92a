package store

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/stratadb/strata/pkg/csvstore"
	"github.com/stratadb/strata/pkg/partition"
	"github.com/stratadb/strata/pkg/schema"
	"github.com/stratadb/strata/pkg/sqlstore"
	"github.com/stratadb/strata/pkg/storage"
)

// Open wires a store from configuration. The template is optional; a nil
// template opens the store against whatever schema is persisted.
func Open(ctx context.Context, cfg *Config, template *schema.Template) (Store, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := newLogger(cfg.Logging)

	if cfg.Backend == BackendSQLite {
		opts := []sqlstore.Option{sqlstore.WithLogger(log)}
		if template != nil {
			opts = append(opts, sqlstore.WithTemplate(*template))
		}
		return sqlstore.New(cfg.Database.Path, opts...), nil
	}

	adapter, err := newAdapter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	parter, err := newPartitioner(cfg.Partitioner)
	if err != nil {
		return nil, err
	}

	opts := []csvstore.Option{
		csvstore.WithLogger(log),
		csvstore.WithCacheBytes(cfg.Cache.MaxBytes),
	}
	if template != nil {
		opts = append(opts, csvstore.WithTemplate(*template))
	}
	return csvstore.New(adapter, parter, opts...), nil
}

// newAdapter builds the configured storage adapter.
func newAdapter(ctx context.Context, cfg *Config) (storage.Adapter, error) {
	switch cfg.Storage.Type {
	case "local":
		return storage.NewLocal(cfg.Storage.Path)
	case "s3":
		return storage.NewS3(ctx, cfg.Storage.S3.Bucket, storage.S3Config{
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
			Prefix:       cfg.Storage.S3.Prefix,
		})
	}
	return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
}

// newPartitioner builds the configured partitioner.
func newPartitioner(cfg PartitionerConfig) (partition.Partitioner, error) {
	switch cfg.Type {
	case "single":
		return partition.NewSingle(cfg.Name), nil
	case "fixedsize":
		return partition.NewFixedSize(cfg.Size), nil
	case "yearmonth":
		return partition.NewYearMonth(), nil
	case "hash":
		return partition.NewHash(cfg.Buckets), nil
	}
	return nil, fmt.Errorf("unknown partitioner type: %s", cfg.Type)
}

// newLogger builds a zerolog logger from configuration; an empty level
// discards everything.
func newLogger(cfg LoggingConfig) zerolog.Logger {
	if cfg.Level == "" {
		return zerolog.Nop()
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
