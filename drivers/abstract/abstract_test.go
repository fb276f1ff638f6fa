package abstract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datamorph-io/forcetap/constants"
	"github.com/datamorph-io/forcetap/types"
	"github.com/datamorph-io/forcetap/utils/logger"
)

type fakeExtractor struct {
	chunked       bool
	records       []types.Record
	batchID       string
	resumeRecords []types.Record
	resumeErr     error

	extractCalls int
	resumeCalls  int
	lastStart    time.Time
}

func (f *fakeExtractor) Chunked() bool {
	return f.chunked
}

func (f *fakeExtractor) Extract(_ context.Context, start time.Time, onRecord RecordFn, checkpoint CheckpointFn) error {
	f.extractCalls++
	f.lastStart = start
	for _, record := range f.records {
		if err := onRecord(record); err != nil {
			return err
		}
	}
	if f.chunked && f.batchID != "" {
		checkpoint(f.batchID)
	}
	return nil
}

func (f *fakeExtractor) Resume(_ context.Context, progress *types.ExtractionProgress, onRecord RecordFn, checkpoint CheckpointFn) error {
	f.resumeCalls++
	if f.resumeErr != nil {
		return f.resumeErr
	}
	for _, record := range f.resumeRecords {
		if err := onRecord(record); err != nil {
			return err
		}
	}
	for _, batchID := range progress.BatchIDs {
		checkpoint(batchID)
	}
	return nil
}

type fakeDriver struct {
	extractors map[string]*fakeExtractor
	startDate  time.Time
	state      *types.State
}

func (f *fakeDriver) GetConfigRef() any { return &struct{}{} }

func (f *fakeDriver) Spec() map[string]any { return map[string]any{} }

func (f *fakeDriver) Type() string { return "fake" }

func (f *fakeDriver) Setup(context.Context) error { return nil }

func (f *fakeDriver) SetupState(state *types.State) { f.state = state }

func (f *fakeDriver) Close() error { return nil }

func (f *fakeDriver) DefaultStartDate() time.Time { return f.startDate }

func (f *fakeDriver) Discover(context.Context) ([]*types.Stream, error) {
	return nil, nil
}

func (f *fakeDriver) NewExtractor(stream types.StreamInterface) (Extractor, error) {
	extractor, found := f.extractors[stream.ID()]
	if !found {
		return nil, fmt.Errorf("no extractor for stream %s", stream.ID())
	}
	return extractor, nil
}

func fakeStream(name, replicationKey string) types.StreamInterface {
	stream := types.NewStream(name, name)
	stream.UpsertField("Id", &types.Property{Type: types.NewSet(types.String)}, &types.FieldMetadata{Inclusion: types.InclusionAutomatic})
	if replicationKey != "" {
		stream.UpsertField(replicationKey, &types.Property{
			Type:   types.NewSet(types.String, types.Null),
			Format: types.FormatDateTime,
		}, &types.FieldMetadata{Inclusion: types.InclusionAvailable})
		stream.WithReplicationKey(replicationKey)
	}
	return &types.ConfiguredStream{Stream: stream}
}

func newTestDriver(extractors map[string]*fakeExtractor) (*AbstractDriver, *types.State) {
	state := types.NewState()
	driver := NewAbstractDriver(&fakeDriver{
		extractors: extractors,
		startDate:  time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	driver.SetupState(state)
	return driver, state
}

func TestSyncAdvancesIncrementalBookmark(t *testing.T) {
	extractor := &fakeExtractor{records: []types.Record{
		{"Id": "001", "SystemModstamp": "2023-02-01T00:00:00.000Z"},
		{"Id": "002", "SystemModstamp": "2023-03-01T00:00:00.000Z"},
		// records dated past the run start are emitted but never advance
		// the watermark
		{"Id": "003", "SystemModstamp": "2999-01-01T00:00:00.000Z"},
	}}
	driver, state := newTestDriver(map[string]*fakeExtractor{"Account": extractor})

	err := driver.Sync(context.Background(), []types.StreamInterface{fakeStream("Account", "SystemModstamp")})
	require.NoError(t, err)

	assert.Equal(t, 1, extractor.extractCalls)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), extractor.lastStart)

	bookmark := state.Get("Account")
	assert.Equal(t, "2023-03-01T00:00:00.000Z", bookmark.GetCursor("SystemModstamp"))

	// the minted version is persisted for the next run
	_, found := bookmark.Version()
	assert.True(t, found)
	assert.Empty(t, state.GetCurrentStream())
}

func TestSyncStartsFromStoredCursor(t *testing.T) {
	extractor := &fakeExtractor{}
	driver, state := newTestDriver(map[string]*fakeExtractor{"Account": extractor})

	bookmark := state.Get("Account")
	require.NoError(t, bookmark.SetCursor("SystemModstamp", "2023-06-01T00:00:00.000Z"))
	bookmark.SetVersion(7)

	err := driver.Sync(context.Background(), []types.StreamInterface{fakeStream("Account", "SystemModstamp")})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), extractor.lastStart)

	version, found := bookmark.Version()
	require.True(t, found)
	assert.EqualValues(t, 7, version)
}

func TestSyncFullTableNullsVersion(t *testing.T) {
	extractor := &fakeExtractor{records: []types.Record{{"Id": "001"}}}
	driver, state := newTestDriver(map[string]*fakeExtractor{"LoginEvent": extractor})

	err := driver.Sync(context.Background(), []types.StreamInterface{fakeStream("LoginEvent", "")})
	require.NoError(t, err)

	// a null version signals the destination that the refresh is complete
	_, found := state.Get("LoginEvent").Version()
	assert.False(t, found)

	data, err := json.Marshal(state)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version":null`)
}

func TestSyncFullTableActivateVersionPair(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)
	defer logger.SetOutput(os.Stdout)

	extractor := &fakeExtractor{records: []types.Record{{"Id": "001"}, {"Id": "002"}}}
	driver, _ := newTestDriver(map[string]*fakeExtractor{"LoginEvent": extractor})

	err := driver.Sync(context.Background(), []types.StreamInterface{fakeStream("LoginEvent", "")})
	require.NoError(t, err)

	flow := []types.MessageType{}
	versions := []int64{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		message := types.Message{}
		require.NoError(t, json.Unmarshal([]byte(line), &message))

		switch message.Type {
		case types.RecordMessage:
			flow = append(flow, message.Type)
		case types.ActivateVersionMessage:
			flow = append(flow, message.Type)
			versions = append(versions, message.ActivateVersion.Version)
			assert.Equal(t, "LoginEvent", message.ActivateVersion.Stream)
		}
	}

	// a full refresh activates exactly once before the records and once after
	assert.Equal(t, []types.MessageType{
		types.ActivateVersionMessage,
		types.RecordMessage,
		types.RecordMessage,
		types.ActivateVersionMessage,
	}, flow)

	// both signals carry the version the emitted records were stamped with
	require.Len(t, versions, 2)
	assert.Equal(t, versions[0], versions[1])
}

func TestSyncSkipsStreamsBeforeCurrent(t *testing.T) {
	first := &fakeExtractor{}
	second := &fakeExtractor{}
	driver, state := newTestDriver(map[string]*fakeExtractor{"First": first, "Second": second})
	state.SetCurrentStream("Second")

	err := driver.Sync(context.Background(), []types.StreamInterface{
		fakeStream("First", "SystemModstamp"),
		fakeStream("Second", "SystemModstamp"),
	})
	require.NoError(t, err)

	assert.Zero(t, first.extractCalls)
	assert.Equal(t, 1, second.extractCalls)
}

func TestSyncResumesInterruptedJob(t *testing.T) {
	extractor := &fakeExtractor{
		chunked: true,
		resumeRecords: []types.Record{
			{"Id": "001", "SystemModstamp": "2023-04-01T00:00:00.000Z"},
		},
	}
	driver, state := newTestDriver(map[string]*fakeExtractor{"Account": extractor})

	bookmark := state.Get("Account")
	require.NoError(t, bookmark.SetCursor("SystemModstamp", "2023-02-01T00:00:00.000Z"))
	bookmark.SetVersion(7)
	bookmark.SetProgress(&types.ExtractionProgress{
		JobID:     "750A",
		BatchIDs:  []string{"751B"},
		HighWater: "2023-03-01T00:00:00.000000Z",
	})

	err := driver.Sync(context.Background(), []types.StreamInterface{fakeStream("Account", "SystemModstamp")})
	require.NoError(t, err)

	assert.Equal(t, 1, extractor.resumeCalls)
	assert.Zero(t, extractor.extractCalls)

	// the drained batch advanced the high-water mark past the stored one
	assert.Equal(t, "2023-04-01T00:00:00.000000Z", bookmark.GetCursor("SystemModstamp"))
	assert.Nil(t, bookmark.Progress())
}

func TestSyncStaleJobFallsBackToFreshExtraction(t *testing.T) {
	extractor := &fakeExtractor{
		chunked:   true,
		resumeErr: fmt.Errorf("job 750A: %w", constants.ErrStaleJob),
		records: []types.Record{
			{"Id": "001", "SystemModstamp": "2023-05-01T00:00:00.000Z"},
		},
		batchID: "751C",
	}
	driver, state := newTestDriver(map[string]*fakeExtractor{"Account": extractor})

	bookmark := state.Get("Account")
	bookmark.SetProgress(&types.ExtractionProgress{JobID: "750A", BatchIDs: []string{"751B"}})

	err := driver.Sync(context.Background(), []types.StreamInterface{fakeStream("Account", "SystemModstamp")})
	require.NoError(t, err)

	assert.Equal(t, 1, extractor.resumeCalls)
	assert.Equal(t, 1, extractor.extractCalls)
	assert.Equal(t, "2023-05-01T00:00:00.000000Z", bookmark.GetCursor("SystemModstamp"))
	assert.Nil(t, bookmark.Progress())
}

func TestSyncResumeFailureStopsRun(t *testing.T) {
	extractor := &fakeExtractor{resumeErr: fmt.Errorf("result fetch failed")}
	driver, state := newTestDriver(map[string]*fakeExtractor{"Account": extractor})

	bookmark := state.Get("Account")
	bookmark.SetProgress(&types.ExtractionProgress{JobID: "750A", BatchIDs: []string{"751B"}})

	err := driver.Sync(context.Background(), []types.StreamInterface{fakeStream("Account", "SystemModstamp")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Account")
	assert.Zero(t, extractor.extractCalls)

	// the interrupted stream stays marked for the next run
	assert.Equal(t, "Account", state.GetCurrentStream())
}

func TestSyncChunkedPromotesHighWater(t *testing.T) {
	extractor := &fakeExtractor{
		chunked: true,
		records: []types.Record{
			{"Id": "002", "SystemModstamp": "2023-03-01T00:00:00.000Z"},
			{"Id": "001", "SystemModstamp": "2023-02-01T00:00:00.000Z"},
		},
		batchID: "751B",
	}
	driver, state := newTestDriver(map[string]*fakeExtractor{"Account": extractor})

	err := driver.Sync(context.Background(), []types.StreamInterface{fakeStream("Account", "SystemModstamp")})
	require.NoError(t, err)

	// out-of-order batches settle on the highest value seen
	bookmark := state.Get("Account")
	assert.Equal(t, "2023-03-01T00:00:00.000000Z", bookmark.GetCursor("SystemModstamp"))
	assert.Nil(t, bookmark.Progress())
}
