package types

import (
	"time"
)

// Message is the typed envelope written to stdout; every line the connector
// emits is exactly one marshalled Message.
type Message struct {
	Type             MessageType          `json:"type"`
	Log              *Log                 `json:"log,omitempty"`
	ConnectionStatus *StatusRow           `json:"connectionStatus,omitempty"`
	Spec             map[string]any       `json:"spec,omitempty"`
	Catalog          *Catalog             `json:"catalog,omitempty"`
	Schema           *SchemaRow           `json:"schema,omitempty"`
	Record           *RecordRow           `json:"record,omitempty"`
	State            *State               `json:"state,omitempty"`
	ActivateVersion  *ActivateVersionRow  `json:"activate_version,omitempty"`
}

type Log struct {
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
}

type StatusRow struct {
	Status  ConnectionStatus `json:"status,omitempty"`
	Message string           `json:"message,omitempty"`
}

// Catalog is the discover output: one configured entry per stream.
type Catalog struct {
	Streams []*ConfiguredStream `json:"streams,omitempty"`
}

func GetWrappedCatalog(streams []*Stream) *Catalog {
	catalog := &Catalog{
		Streams: []*ConfiguredStream{},
	}
	for _, stream := range streams {
		catalog.Streams = append(catalog.Streams, &ConfiguredStream{
			Stream: stream,
		})
	}
	return catalog
}

type SchemaRow struct {
	Stream         string      `json:"stream"`
	Schema         *TypeSchema `json:"schema"`
	KeyProperties  []string    `json:"key_properties"`
	ReplicationKey string      `json:"bookmark_properties,omitempty"`
}

type RecordRow struct {
	Stream        string    `json:"stream"`
	Record        Record    `json:"record"`
	Version       int64     `json:"version,omitempty"`
	TimeExtracted time.Time `json:"time_extracted"`
}

// ActivateVersionRow tells the destination which record version is live;
// records carrying older versions become eligible for reaping.
type ActivateVersionRow struct {
	Stream  string `json:"stream"`
	Version int64  `json:"version"`
}
