package abstract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datamorph-io/forcetap/constants"
	"github.com/datamorph-io/forcetap/types"
	"github.com/datamorph-io/forcetap/utils/logger"
	"github.com/datamorph-io/forcetap/utils/typeutils"
)

// AbstractDriver orchestrates the sync across streams: versioning,
// activate-version signalling, bookmark advancement and resumption. Streams
// run strictly sequentially so bookmark and quota accounting stay ordered.
type AbstractDriver struct {
	driver DriverInterface
	state  *types.State
}

func NewAbstractDriver(driver DriverInterface) *AbstractDriver {
	return &AbstractDriver{
		driver: driver,
	}
}

func (a *AbstractDriver) GetConfigRef() any {
	return a.driver.GetConfigRef()
}

func (a *AbstractDriver) Spec() map[string]any {
	return a.driver.Spec()
}

func (a *AbstractDriver) Type() string {
	return a.driver.Type()
}

func (a *AbstractDriver) Setup(ctx context.Context) error {
	return a.driver.Setup(ctx)
}

func (a *AbstractDriver) Close() error {
	return a.driver.Close()
}

func (a *AbstractDriver) Discover(ctx context.Context) ([]*types.Stream, error) {
	return a.driver.Discover(ctx)
}

func (a *AbstractDriver) SetupState(state *types.State) {
	a.state = state
	a.driver.SetupState(state)
}

// Sync processes the selected streams in catalog order. A persisted
// current_stream marker makes an interrupted run skip already-completed
// streams and resume exactly at the interrupted one.
func (a *AbstractDriver) Sync(ctx context.Context, streams []types.StreamInterface) error {
	startingStream := a.state.GetCurrentStream()
	if startingStream != "" {
		logger.Infof("Resuming sync from %s", startingStream)
	} else {
		logger.Info("Starting sync")
	}

	for _, stream := range streams {
		if startingStream != "" {
			if startingStream != stream.ID() {
				logger.Infof("%s: Skipping - already synced", stream.ID())
				continue
			}
			logger.Infof("%s: Resuming", stream.ID())
			startingStream = ""
		} else {
			logger.Infof("%s: Starting", stream.ID())
		}

		a.state.SetCurrentStream(stream.ID())
		logger.LogState(a.state)

		logger.LogSchema(stream)

		if err := a.syncStream(ctx, stream); err != nil {
			return fmt.Errorf("failed to sync stream[%s]: %w", stream.ID(), err)
		}
		logger.LogState(a.state)
	}

	a.state.SetCurrentStream("")
	logger.LogState(a.state)
	logger.Info("Finished sync")
	return nil
}

func (a *AbstractDriver) syncStream(ctx context.Context, stream types.StreamInterface) error {
	runStart := time.Now().UTC()
	replicationKey := stream.ReplicationKey()
	hadBookmark := a.state.Has(stream.ID())
	bookmark := a.state.Get(stream.ID())
	version := streamVersion(bookmark, replicationKey, runStart)

	extractor, err := a.driver.NewExtractor(stream)
	if err != nil {
		return err
	}

	counter := 0
	run := &streamRun{
		stream:         stream,
		bookmark:       bookmark,
		replicationKey: replicationKey,
		version:        version,
		runStart:       runStart,
		chunked:        extractor.Chunked(),
		counter:        &counter,
	}
	run.highWater = a.startDate(bookmark, replicationKey)

	if progress := bookmark.Progress(); progress != nil {
		logger.Infof("Found job from previous run. Resuming sync for job: %s", progress.JobID)
		if progress.HighWater != "" {
			if parsed, err := typeutils.ParseTimestamp(progress.HighWater); err == nil {
				run.highWater = parsed
			}
		}

		err := extractor.Resume(ctx, progress, a.onRecord(run), a.checkpoint(run))
		if err != nil && !errors.Is(err, constants.ErrStaleJob) {
			return err
		}
		if err == nil {
			a.reconcile(run)
			logger.Infof("%s: Completed sync (%d rows)", stream.ID(), counter)
			return nil
		}

		// the stored job no longer exists server-side; discard it and fall
		// back to a fresh extraction
		logger.Info("Found stored job that no longer exists, resetting bookmark and removing job from state.")
		bookmark.ClearProgress()
		run.highWater = a.startDate(bookmark, replicationKey)
		logger.LogState(a.state)
	}

	// Streams with a replication key or an empty bookmark emit an
	// activate-version at the beginning of their sync
	if replicationKey != "" || !hadBookmark {
		logger.LogActivateVersion(stream.ID(), version)
		bookmark.SetVersion(version)
		logger.LogState(a.state)
	}

	if err := extractor.Extract(ctx, a.startDate(bookmark, replicationKey), a.onRecord(run), a.checkpoint(run)); err != nil {
		return err
	}

	if run.chunked {
		a.reconcile(run)
	}

	// Streams with no replication key activate the version once extraction
	// completes and null it out so the next run refreshes the whole table.
	if replicationKey == "" {
		logger.LogActivateVersion(stream.ID(), version)
		bookmark.SetNullVersion()
		logger.LogState(a.state)
	}

	logger.Infof("%s: Completed sync (%d rows)", stream.ID(), counter)
	return nil
}

type streamRun struct {
	stream         types.StreamInterface
	bookmark       *types.Bookmark
	replicationKey string
	version        int64
	runStart       time.Time
	chunked        bool
	highWater      time.Time
	counter        *int
}

// onRecord returns the per-record pipeline: transform, emit, advance
// bookmark. A record whose replication key value lies past the run start is
// emitted but never moves the watermark.
func (a *AbstractDriver) onRecord(run *streamRun) RecordFn {
	return func(record types.Record) error {
		record = typeutils.ReformatRecord(record, run.stream.Schema())
		*run.counter++

		logger.LogRecord(&types.RecordRow{
			Stream:        run.stream.ID(),
			Record:        record,
			Version:       run.version,
			TimeExtracted: run.runStart,
		})

		if run.replicationKey == "" {
			return nil
		}
		raw, ok := record[run.replicationKey].(string)
		if !ok {
			return nil
		}
		value, err := typeutils.ParseTimestamp(raw)
		if err != nil || value.After(run.runStart) {
			return nil
		}

		if run.chunked {
			if value.After(run.highWater) {
				run.highWater = value
			}
			return nil
		}

		if err := run.bookmark.SetCursor(run.replicationKey, raw); err != nil {
			return err
		}
		logger.LogState(a.state)
		return nil
	}
}

// checkpoint persists one drained batch: the high-water mark is flushed and
// the batch id leaves the pending list, making the batch the atomic unit of
// resumability.
func (a *AbstractDriver) checkpoint(run *streamRun) CheckpointFn {
	return func(batchID string) {
		if run.replicationKey != "" {
			run.bookmark.SetHighWater(typeutils.FormatTimestamp(run.highWater))
		}
		run.bookmark.RemoveBatch(batchID)
		logger.Infof("Finished syncing batch %s. Removing batch from state.", batchID)
		logger.LogState(a.state)
	}
}

// reconcile promotes the job's high-water mark to the replication key
// bookmark once every batch drained; with no high-water seen the prior
// bookmark stays untouched.
func (a *AbstractDriver) reconcile(run *streamRun) {
	if run.replicationKey != "" && run.bookmark.HighWater() != "" {
		_ = run.bookmark.SetCursor(run.replicationKey, run.bookmark.HighWater())
	}
	run.bookmark.ClearProgress()
	logger.LogState(a.state)
}

// streamVersion reuses the persisted version for incremental streams;
// streams without a replication key mint a fresh version every run.
func streamVersion(bookmark *types.Bookmark, replicationKey string, runStart time.Time) int64 {
	if replicationKey != "" {
		if version, found := bookmark.Version(); found {
			return version
		}
	}
	return runStart.UnixMilli()
}

func (a *AbstractDriver) startDate(bookmark *types.Bookmark, replicationKey string) time.Time {
	if replicationKey != "" {
		if raw, ok := bookmark.GetCursor(replicationKey).(string); ok {
			if parsed, err := typeutils.ParseTimestamp(raw); err == nil {
				return parsed
			}
		}
	}
	return a.driver.DefaultStartDate()
}
