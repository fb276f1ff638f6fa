package logger

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/goccy/go-json"
	"github.com/spf13/viper"

	"github.com/datamorph-io/forcetap/constants"
	"github.com/datamorph-io/forcetap/types"
)

// stdout is the single typed message channel consumed by the caller; every
// emitted message is one JSON line.
var (
	stdoutMu     sync.Mutex
	stdoutWriter = bufio.NewWriter(os.Stdout)
)

// SetOutput redirects the message channel away from stdout. Embedding callers
// and tests capture emitted messages this way.
func SetOutput(w io.Writer) {
	stdoutMu.Lock()
	defer stdoutMu.Unlock()
	stdoutWriter.Flush()
	stdoutWriter = bufio.NewWriter(w)
}

func emit(message types.Message) {
	stdoutMu.Lock()
	defer stdoutMu.Unlock()

	data, err := json.Marshal(message)
	if err != nil {
		Errorf("failed to marshal %s message: %s", message.Type, err)
		return
	}

	if _, err := stdoutWriter.Write(append(data, '\n')); err != nil {
		Fatalf("failed to write %s message: %s", message.Type, err)
	}
	if err := stdoutWriter.Flush(); err != nil {
		Fatalf("failed to flush %s message: %s", message.Type, err)
	}
}

func LogSpec(spec map[string]any) {
	emit(types.Message{
		Type: types.SpecMessage,
		Spec: spec,
	})

	if err := FileLogger(spec, "spec", ".json"); err != nil {
		Fatalf("failed to write spec file: %s", err)
	}
}

func LogConnectionStatus(err error) {
	status := &types.StatusRow{
		Status: types.ConnectionSucceed,
	}
	if err != nil {
		status.Status = types.ConnectionFailed
		status.Message = err.Error()
	}

	emit(types.Message{
		Type:             types.ConnectionStatusMessage,
		ConnectionStatus: status,
	})
}

func LogCatalog(streams []*types.Stream) {
	catalog := types.GetWrappedCatalog(streams)
	emit(types.Message{
		Type:    types.CatalogMessage,
		Catalog: catalog,
	})

	// persist for editing and reuse with the sync command
	streamsPath := viper.GetString(constants.StreamsPath)
	if streamsPath == "" {
		if err := FileLogger(catalog, "streams", ".json"); err != nil {
			Fatalf("failed to write catalog file: %s", err)
		}
		return
	}
	if err := writeJSONFile(streamsPath, catalog); err != nil {
		Fatalf("failed to write catalog file: %s", err)
	}
}

func LogSchema(stream types.StreamInterface) {
	emit(types.Message{
		Type: types.SchemaMessage,
		Schema: &types.SchemaRow{
			Stream:         stream.ID(),
			Schema:         stream.Schema(),
			KeyProperties:  stream.KeyProperties(),
			ReplicationKey: stream.ReplicationKey(),
		},
	})
}

func LogRecord(record *types.RecordRow) {
	emit(types.Message{
		Type:   types.RecordMessage,
		Record: record,
	})
}

func LogActivateVersion(stream string, version int64) {
	emit(types.Message{
		Type: types.ActivateVersionMessage,
		ActivateVersion: &types.ActivateVersionRow{
			Stream:  stream,
			Version: version,
		},
	})
}

// LogState emits the state message and persists it to the configured state
// path so an interrupted run can resume from disk.
func LogState(state *types.State) {
	emit(types.Message{
		Type:  types.StateMessage,
		State: state,
	})

	statePath := viper.GetString(constants.StatePath)
	if statePath == "" {
		return
	}
	if err := writeJSONFile(statePath, state); err != nil {
		Fatalf("failed to persist state file: %s", err)
	}
}

func writeJSONFile(path string, content any) error {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
