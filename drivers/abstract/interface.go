package abstract

import (
	"context"
	"time"

	"github.com/datamorph-io/forcetap/types"
)

// DriverInterface is implemented by every source connector.
type DriverInterface interface {
	GetConfigRef() any
	Spec() map[string]any
	Type() string
	Setup(ctx context.Context) error
	SetupState(state *types.State)
	Close() error
	// DefaultStartDate is the lower bound used when a stream has no bookmark.
	DefaultStartDate() time.Time
	Discover(ctx context.Context) ([]*types.Stream, error)
	NewExtractor(stream types.StreamInterface) (Extractor, error)
}

// RecordFn consumes one extracted record.
type RecordFn func(record types.Record) error

// CheckpointFn is called by chunked extractors after one batch fully drains;
// it persists the batch removal and the high-water bookmark.
type CheckpointFn func(batchID string)

// Extractor drives one stream's extraction. Chunked extractors run an
// asynchronous server-side job whose batches may arrive out of order, so
// bookkeeping happens per batch; non-chunked extractors return ordered rows
// and the bookmark advances per record.
type Extractor interface {
	Chunked() bool
	Extract(ctx context.Context, startDate time.Time, onRecord RecordFn, checkpoint CheckpointFn) error
	// Resume drains the batches persisted by an interrupted run. Returns an
	// error wrapping constants.ErrStaleJob when the job no longer exists
	// server-side.
	Resume(ctx context.Context, progress *types.ExtractionProgress, onRecord RecordFn, checkpoint CheckpointFn) error
}
