package types

import (
	"sync"

	"github.com/goccy/go-json"
)

// State is the resumable position of a sync run. It round-trips losslessly:
// keys written by other tools (or newer versions) are preserved byte for
// byte, so emitting state never destroys information we do not understand.
type State struct {
	*sync.RWMutex
	CurrentStream string
	Streams       map[string]*Bookmark
	extra         map[string]json.RawMessage
}

func NewState() *State {
	return &State{
		RWMutex: &sync.RWMutex{},
		Streams: map[string]*Bookmark{},
	}
}

func (s *State) MarshalJSON() ([]byte, error) {
	s.RLock()
	defer s.RUnlock()

	output := map[string]json.RawMessage{}
	for key, value := range s.extra {
		output[key] = value
	}
	if s.CurrentStream != "" {
		raw, err := json.Marshal(s.CurrentStream)
		if err != nil {
			return nil, err
		}
		output["current_stream"] = raw
	}
	if len(s.Streams) > 0 {
		raw, err := json.Marshal(s.Streams)
		if err != nil {
			return nil, err
		}
		output["bookmarks"] = raw
	}
	return json.Marshal(output)
}

func (s *State) UnmarshalJSON(data []byte) error {
	if s.RWMutex == nil {
		s.RWMutex = &sync.RWMutex{}
	}
	s.Lock()
	defer s.Unlock()

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Streams = map[string]*Bookmark{}
	s.extra = map[string]json.RawMessage{}
	for key, value := range raw {
		switch key {
		case "current_stream":
			if err := json.Unmarshal(value, &s.CurrentStream); err != nil {
				return err
			}
		case "bookmarks":
			if err := json.Unmarshal(value, &s.Streams); err != nil {
				return err
			}
		default:
			s.extra[key] = value
		}
	}
	return nil
}

func (s *State) IsZero() bool {
	s.RLock()
	defer s.RUnlock()
	return s.CurrentStream == "" && len(s.Streams) == 0 && len(s.extra) == 0
}

func (s *State) SetCurrentStream(streamID string) {
	s.Lock()
	defer s.Unlock()
	s.CurrentStream = streamID
}

func (s *State) GetCurrentStream() string {
	s.RLock()
	defer s.RUnlock()
	return s.CurrentStream
}

// Get returns the bookmark for a stream, creating an empty one if absent.
func (s *State) Get(streamID string) *Bookmark {
	s.Lock()
	defer s.Unlock()
	if s.Streams == nil {
		s.Streams = map[string]*Bookmark{}
	}
	bookmark, found := s.Streams[streamID]
	if !found {
		bookmark = &Bookmark{}
		s.Streams[streamID] = bookmark
	}
	return bookmark
}

func (s *State) Has(streamID string) bool {
	s.RLock()
	defer s.RUnlock()
	_, found := s.Streams[streamID]
	return found
}

// Bookmark is the per-stream slice of state. Replication key cursors live
// under the key field's own name; unknown keys are carried through unchanged.
type Bookmark struct {
	versionSet bool
	version    *int64

	jobID       string
	batchIDs    []string
	highWater   string
	highWaterOK bool

	extra map[string]json.RawMessage
}

// ExtractionProgress identifies an interrupted server-side extraction job
// along with the highest cursor value seen across its emitted batches.
type ExtractionProgress struct {
	JobID     string
	BatchIDs  []string
	HighWater string
}

const (
	bookmarkVersionKey   = "version"
	bookmarkJobKey       = "JobID"
	bookmarkBatchesKey   = "BatchIDs"
	bookmarkHighWaterKey = "JobHighestBookmarkSeen"
)

func (b *Bookmark) MarshalJSON() ([]byte, error) {
	output := map[string]json.RawMessage{}
	for key, value := range b.extra {
		output[key] = value
	}
	if b.versionSet {
		raw, err := json.Marshal(b.version)
		if err != nil {
			return nil, err
		}
		output[bookmarkVersionKey] = raw
	}
	if b.jobID != "" {
		raw, err := json.Marshal(b.jobID)
		if err != nil {
			return nil, err
		}
		output[bookmarkJobKey] = raw
	}
	if len(b.batchIDs) > 0 {
		raw, err := json.Marshal(b.batchIDs)
		if err != nil {
			return nil, err
		}
		output[bookmarkBatchesKey] = raw
	}
	if b.highWaterOK {
		raw, err := json.Marshal(b.highWater)
		if err != nil {
			return nil, err
		}
		output[bookmarkHighWaterKey] = raw
	}
	return json.Marshal(output)
}

func (b *Bookmark) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*b = Bookmark{extra: map[string]json.RawMessage{}}
	for key, value := range raw {
		switch key {
		case bookmarkVersionKey:
			if err := json.Unmarshal(value, &b.version); err != nil {
				return err
			}
			b.versionSet = true
		case bookmarkJobKey:
			if err := json.Unmarshal(value, &b.jobID); err != nil {
				return err
			}
		case bookmarkBatchesKey:
			if err := json.Unmarshal(value, &b.batchIDs); err != nil {
				return err
			}
		case bookmarkHighWaterKey:
			if err := json.Unmarshal(value, &b.highWater); err != nil {
				return err
			}
			b.highWaterOK = true
		default:
			b.extra[key] = value
		}
	}
	return nil
}

// GetCursor returns the bookmark value stored under the replication key
// field name, or nil if none is stored.
func (b *Bookmark) GetCursor(field string) any {
	raw, found := b.extra[field]
	if !found {
		return nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return value
}

func (b *Bookmark) SetCursor(field string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if b.extra == nil {
		b.extra = map[string]json.RawMessage{}
	}
	b.extra[field] = raw
	return nil
}

// Version returns the persisted table version; found is false when the
// bookmark never carried one or carries an explicit null.
func (b *Bookmark) Version() (int64, bool) {
	if !b.versionSet || b.version == nil {
		return 0, false
	}
	return *b.version, true
}

func (b *Bookmark) SetVersion(version int64) {
	b.versionSet = true
	b.version = &version
}

// SetNullVersion records an explicit null version, signalling the
// destination that no version is live for the stream.
func (b *Bookmark) SetNullVersion() {
	b.versionSet = true
	b.version = nil
}

// Progress returns the interrupted extraction job, or nil when there is
// nothing to resume. A job id without batch ids is unusable and reported as
// no progress.
func (b *Bookmark) Progress() *ExtractionProgress {
	if b.jobID == "" || len(b.batchIDs) == 0 {
		return nil
	}
	return &ExtractionProgress{
		JobID:     b.jobID,
		BatchIDs:  append([]string{}, b.batchIDs...),
		HighWater: b.highWater,
	}
}

func (b *Bookmark) SetProgress(progress *ExtractionProgress) {
	b.jobID = progress.JobID
	b.batchIDs = append([]string{}, progress.BatchIDs...)
	b.highWater = progress.HighWater
	b.highWaterOK = progress.HighWater != ""
}

func (b *Bookmark) SetHighWater(value string) {
	b.highWater = value
	b.highWaterOK = true
}

func (b *Bookmark) HighWater() string {
	return b.highWater
}

// RemoveBatch drops one finished batch id from the pending list.
func (b *Bookmark) RemoveBatch(batchID string) {
	remaining := b.batchIDs[:0]
	for _, id := range b.batchIDs {
		if id != batchID {
			remaining = append(remaining, id)
		}
	}
	b.batchIDs = remaining
}

// ClearProgress removes all job tracking keys once an extraction completes.
func (b *Bookmark) ClearProgress() {
	b.jobID = ""
	b.batchIDs = nil
	b.highWater = ""
	b.highWaterOK = false
}
