// Package s3backend implements recorder.BackendContract as a
// write-behind archival sink: every Notify batch is msgpack-encoded and
// uploaded as one object per (table, flush) to an S3-compatible bucket,
// grounded on the teacher's staged-archive-then-upload shape in
// internal/reliability/r2_backup_service.go (checksummed, timestamped
// objects under a run-scoped prefix).
package s3backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/aristath/simkernel/internal/kernerr"
	"github.com/aristath/simkernel/internal/recorder"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Config names the bucket and key prefix a run's rows are archived
// under.
type Config struct {
	Bucket string
	Prefix string // e.g. "runs/<sim-id>/"
	Region string
}

// Backend uploads batches to S3 via the multipart manager.Uploader, so
// large Flush-triggered batches don't need to fit in one PutObject
// call.
type Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
	seq      map[string]int
}

// New loads the default AWS credential chain (env vars, shared config,
// IAM role) and constructs a Backend targeting cfg.Bucket.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Backend, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, kernerr.New(kernerr.IOError, fmt.Errorf("load aws config: %w", err))
	}
	client := s3.NewFromConfig(awsCfg)
	return &Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		log:      log.With().Str("component", "s3backend").Str("bucket", cfg.Bucket).Logger(),
		seq:      make(map[string]int),
	}, nil
}

var _ recorder.BackendContract = (*Backend)(nil)

func (b *Backend) Name() string { return "s3:" + b.bucket + "/" + b.prefix }

// Notify msgpack-encodes the batch and uploads it as one object keyed
// by table name and an incrementing per-table sequence number, so
// objects sort in write order within a table's prefix.
func (b *Backend) Notify(rows []recorder.Row) error {
	byTable := make(map[string][]recorder.Row)
	for _, r := range rows {
		byTable[r.Table] = append(byTable[r.Table], r)
	}
	for table, trows := range byTable {
		if err := b.uploadBatch(table, trows); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) uploadBatch(table string, rows []recorder.Row) error {
	payload, err := msgpack.Marshal(rows)
	if err != nil {
		return kernerr.New(kernerr.CastError, fmt.Errorf("msgpack encode %s batch: %w", table, err))
	}
	sum := sha256.Sum256(payload)
	b.seq[table]++
	key := fmt.Sprintf("%s%s/%06d-%s.msgpack", b.prefix, table, b.seq[table], hex.EncodeToString(sum[:8]))

	_, err = b.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return kernerr.New(kernerr.IOError, fmt.Errorf("upload %s: %w", key, err))
	}
	b.log.Debug().Str("table", table).Str("key", key).Int("rows", len(rows)).Msg("archived batch")
	return nil
}

// Flush is a no-op: each Notify batch is already durably uploaded.
func (b *Backend) Flush() error { return nil }

// Close has nothing to release; the S3 client holds no persistent
// connection that needs draining.
func (b *Backend) Close() error { return nil }

// Query is unsupported: S3 archival is write-only from the kernel's
// perspective (spec §6 read paths go through the SQLite backend).
func (b *Backend) Query(table string) ([]recorder.Row, error) {
	return nil, kernerr.Newf(kernerr.KeyError, "s3 backend %q does not support query", table)
}
