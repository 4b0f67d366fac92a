package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3 implements Adapter over an S3 bucket. Object keys live under an
// optional prefix; Head and Tail probe with ranged GETs so bounded reads
// never download a whole object. S3 has no native append, so Append is a
// read-modify-write; the single-writer-per-partition discipline of the CSV
// engine makes that safe within one process.
type S3 struct {
	client     *s3.Client
	bucket     string
	prefix     string
	maxRetries int
}

// S3Config holds configuration for the S3 adapter.
type S3Config struct {
	// Region is the AWS region for the bucket.
	Region string
	// Endpoint is an optional custom endpoint (for MinIO, LocalStack, etc.).
	Endpoint string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
	// Prefix roots the adapter under a key prefix within the bucket.
	Prefix string
}

// NewS3 creates a new S3 adapter.
func NewS3(ctx context.Context, bucket string, cfg S3Config) (*S3, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3WithClient(s3.NewFromConfig(awsCfg, s3Opts...), bucket, cfg), nil
}

// NewS3WithClient creates an S3 adapter with a pre-configured client.
func NewS3WithClient(client *s3.Client, bucket string, cfg S3Config) *S3 {
	return &S3{
		client:     client,
		bucket:     bucket,
		prefix:     strings.TrimSuffix(cfg.Prefix, "/"),
		maxRetries: 3,
	}
}

// Collection lists objects under the prefix matching the extension.
func (s *S3) Collection(ctx context.Context, ext string) ([]string, error) {
	var paths []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix + "/")
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix+"/")
			if s.prefix == "" {
				rel = aws.ToString(obj.Key)
			}
			if hiddenPath(rel) || !matchExtension(rel, ext) {
				continue
			}
			paths = append(paths, rel)
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// Exists reports whether the object exists.
func (s *S3) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return true, nil
}

// Size returns the object size in bytes.
func (s *S3) Size(ctx context.Context, path string) (int64, error) {
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return aws.ToInt64(resp.ContentLength), nil
}

// Read returns the whole object contents.
func (s *S3) Read(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := s.retryWithBackoff(ctx, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(path)),
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return data, nil
}

// Head returns the first n lines via ranged GETs from the start.
func (s *S3) Head(ctx context.Context, path string, n int) ([]byte, error) {
	size, err := s.Size(ctx, path)
	if err != nil {
		return nil, err
	}

	var data []byte
	var off int64
	for off < size {
		end := off + probeChunkSize - 1
		if end >= size {
			end = size - 1
		}
		chunk, err := s.readRange(ctx, path, off, end)
		if err != nil {
			return nil, err
		}
		data = append(data, chunk...)
		if cut := headSplit(data, n); cut >= 0 {
			return data[:cut], nil
		}
		off = end + 1
	}
	return data, nil
}

// Tail returns the last n lines via ranged GETs from the end.
func (s *S3) Tail(ctx context.Context, path string, n int) ([]byte, error) {
	size, err := s.Size(ctx, path)
	if err != nil {
		return nil, err
	}

	var data []byte
	off := size
	for off > 0 {
		readLen := int64(probeChunkSize)
		if readLen > off {
			readLen = off
		}
		off -= readLen
		chunk, err := s.readRange(ctx, path, off, off+readLen-1)
		if err != nil {
			return nil, err
		}
		data = append(chunk, data...)
		if start := tailSplit(data, n); start >= 0 {
			return data[start:], nil
		}
	}
	return data, nil
}

// Append extends the object via read-modify-write, creating it if missing.
func (s *S3) Append(ctx context.Context, path string, data []byte) error {
	existing, err := s.Read(ctx, path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.Write(ctx, path, append(existing, data...))
}

// Write replaces the object contents. S3 puts are atomic per object.
func (s *S3) Write(ctx context.Context, path string, data []byte) error {
	err := s.retryWithBackoff(ctx, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(path)),
			Body:   bytes.NewReader(data),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// readRange fetches an inclusive byte range of the object.
func (s *S3) readRange(ctx context.Context, path string, start, end int64) ([]byte, error) {
	var data []byte
	err := s.retryWithBackoff(ctx, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(path)),
			Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return data, nil
}

// retryWithBackoff retries transient failures with exponential backoff.
func (s *S3) retryWithBackoff(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond):
			}
		}
		if err = op(); err == nil {
			return nil
		}
		if isNotFound(err) {
			return err
		}
	}
	return err
}

// key returns the full object key for a relative path.
func (s *S3) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

// hiddenPath reports whether any segment of a relative path is hidden.
func hiddenPath(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// isNotFound reports whether an S3 error means the object does not exist.
func isNotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
