// Package archive persists the result files of successfully completed batch
// jobs. It subscribes to completion events and, on success, downloads the
// result content from the provider and writes it to a blob store. Retrieval
// happens here, not in the monitor, so result bytes are only fetched when
// something actually consumes them.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/batchops/batchwatch/internal/batch"
	"github.com/batchops/batchwatch/internal/bus"
	"github.com/batchops/batchwatch/internal/hash/sha256"
	"github.com/batchops/batchwatch/internal/relay"
	"github.com/batchops/batchwatch/internal/storage"
)

const resultContentType = "application/jsonl"

// ResultSource downloads a provider-side file. batch.Provider satisfies it.
type ResultSource interface {
	RetrieveResult(ctx context.Context, ref batch.ResultRef) ([]byte, error)
}

// Config controls where archived results are written.
type Config struct {
	// Prefix is prepended to every object path (default "results").
	Prefix string
}

// Archiver retrieves and stores result files for completed jobs.
type Archiver struct {
	source ResultSource
	blobs  storage.BlobStore
	hasher *sha256.Hasher
	logger *zap.Logger
	cfg    Config
}

// New constructs an Archiver.
func New(source ResultSource, blobs storage.BlobStore, logger *zap.Logger, cfg Config) *Archiver {
	if cfg.Prefix == "" {
		cfg.Prefix = "results"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		source: source,
		blobs:  blobs,
		hasher: sha256.New(),
		logger: logger,
		cfg:    cfg,
	}
}

// Attach subscribes the archiver to completion events on b.
func (a *Archiver) Attach(b *bus.Bus) {
	b.Register(batch.EventJobCompleted, a.Handle)
}

// Handle archives one completion event. Failed jobs have no result file and
// are skipped. Retrieval or store failures propagate to the triggering
// caller.
func (a *Archiver) Handle(ctx context.Context, payload any) error {
	completion, ok := relay.Normalize(payload)
	if !ok {
		a.logger.Warn("dropping non-completion payload", zap.Any("payload", payload))
		return nil
	}
	if !completion.Success {
		a.logger.Debug("skipping archive for failed job", zap.String("job_id", completion.ID))
		return nil
	}
	if completion.ResultRef == "" {
		a.logger.Warn("completed job has no result reference", zap.String("job_id", completion.ID))
		return nil
	}

	content, err := a.source.RetrieveResult(ctx, batch.ResultRef(completion.ResultRef))
	if err != nil {
		return fmt.Errorf("archive job %s: %w", completion.ID, err)
	}

	objectPath := path.Join(a.cfg.Prefix, completion.ID+".jsonl")
	uri, err := a.blobs.PutObject(ctx, objectPath, resultContentType, bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("store result for job %s: %w", completion.ID, err)
	}
	a.logger.Info("result archived",
		zap.String("job_id", completion.ID),
		zap.String("uri", uri),
		zap.Int("bytes", len(content)),
		zap.String("sha256", a.hasher.Hash(content)),
	)
	return nil
}
