package types

import (
	"fmt"
)

// Stream describes one extractable table (a CRM object or report), as
// produced by discovery. Immutable during a sync run.
type Stream struct {
	Name              string                    `json:"stream"`
	TapStreamID       string                    `json:"tap_stream_id"`
	Schema            *TypeSchema               `json:"schema,omitempty"`
	KeyProperties     []string                  `json:"key_properties,omitempty"`
	ReplicationKey    string                    `json:"replication_key,omitempty"`
	ColumnOrder       []string                  `json:"column_order,omitempty"`
	SourceColumnTypes map[string]string         `json:"source_column_types,omitempty"`
	Metadata          map[string]*FieldMetadata `json:"metadata,omitempty"`
}

// FieldMetadata carries per-field discovery outcome; unsupported fields are
// excluded from selection instead of failing the run.
type FieldMetadata struct {
	Inclusion              string `json:"inclusion,omitempty"` // automatic, available or unsupported
	Selected               *bool  `json:"selected,omitempty"`
	SelectedByDefault      bool   `json:"selected-by-default,omitempty"`
	UnsupportedDescription string `json:"unsupported-description,omitempty"`
}

const (
	InclusionAutomatic   = "automatic"
	InclusionAvailable   = "available"
	InclusionUnsupported = "unsupported"
)

func NewStream(name, tapStreamID string) *Stream {
	return &Stream{
		Name:              name,
		TapStreamID:       tapStreamID,
		Schema:            NewTypeSchema(),
		SourceColumnTypes: map[string]string{},
		Metadata:          map[string]*FieldMetadata{},
	}
}

func (s *Stream) ID() string {
	return s.TapStreamID
}

func (s *Stream) UpsertField(column string, property *Property, metadata *FieldMetadata) {
	if metadata == nil {
		metadata = &FieldMetadata{Inclusion: InclusionAvailable}
	}
	s.Schema.AddProperty(column, property)
	s.Metadata[column] = metadata
	s.ColumnOrder = append(s.ColumnOrder, column)
}

func (s *Stream) WithPrimaryKey(columns ...string) *Stream {
	s.KeyProperties = append(s.KeyProperties, columns...)
	return s
}

func (s *Stream) WithReplicationKey(column string) *Stream {
	s.ReplicationKey = column
	if md, found := s.Metadata[column]; found {
		md.Inclusion = InclusionAutomatic
	}
	return s
}

// SelectedFields returns the queryable fields in discovery column order.
// Inclusion rules: automatic fields always sync, unsupported fields never
// sync, available fields follow the explicit selection flag or fall back to
// selectByDefault.
func (s *Stream) SelectedFields(selectByDefault bool) []string {
	fields := []string{}
	for _, column := range s.ColumnOrder {
		md, found := s.Metadata[column]
		if !found {
			continue
		}
		switch {
		case md.Inclusion == InclusionAutomatic:
			fields = append(fields, column)
		case md.Inclusion == InclusionUnsupported:
			continue
		case md.Selected != nil:
			if *md.Selected {
				fields = append(fields, column)
			}
		case selectByDefault || md.SelectedByDefault:
			fields = append(fields, column)
		}
	}
	return fields
}

// ConfiguredStream is a catalog entry: a discovered stream plus selection.
type ConfiguredStream struct {
	Stream   *Stream `json:"stream,omitempty"`
	Selected *bool   `json:"selected,omitempty"`
}

func (c *ConfiguredStream) ID() string {
	return c.Stream.ID()
}

func (c *ConfiguredStream) Self() *ConfiguredStream {
	return c
}

func (c *ConfiguredStream) Name() string {
	return c.Stream.Name
}

func (c *ConfiguredStream) Schema() *TypeSchema {
	return c.Stream.Schema
}

func (c *ConfiguredStream) GetStream() *Stream {
	return c.Stream
}

func (c *ConfiguredStream) ReplicationKey() string {
	return c.Stream.ReplicationKey
}

func (c *ConfiguredStream) KeyProperties() []string {
	return c.Stream.KeyProperties
}

func (c *ConfiguredStream) SelectedFields(selectByDefault bool) []string {
	return c.Stream.SelectedFields(selectByDefault)
}

func (c *ConfiguredStream) SourceColumnTypes() map[string]string {
	return c.Stream.SourceColumnTypes
}

func (c *ConfiguredStream) IsSelected() bool {
	return c.Selected == nil || *c.Selected
}

// Validate checks a configured stream against its discovered counterpart.
func (c *ConfiguredStream) Validate(source *Stream) error {
	if c.Stream == nil {
		return fmt.Errorf("catalog entry carries no stream")
	}
	if c.Stream.TapStreamID != source.TapStreamID {
		return fmt.Errorf("configured stream [%s] does not match source stream [%s]", c.Stream.TapStreamID, source.TapStreamID)
	}
	if c.Stream.ReplicationKey != "" {
		if _, err := source.Schema.GetProperty(c.Stream.ReplicationKey); err != nil {
			return fmt.Errorf("invalid replication key [%s]: %s", c.Stream.ReplicationKey, err)
		}
	}
	return nil
}

type StreamInterface interface {
	ID() string
	Name() string
	Self() *ConfiguredStream
	GetStream() *Stream
	Schema() *TypeSchema
	ReplicationKey() string
	KeyProperties() []string
	SelectedFields(selectByDefault bool) []string
	SourceColumnTypes() map[string]string
	IsSelected() bool
	Validate(source *Stream) error
}

func StreamsToMap(streams ...*Stream) map[string]*Stream {
	output := map[string]*Stream{}
	for _, stream := range streams {
		output[stream.ID()] = stream
	}
	return output
}
