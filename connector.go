package forcetap

import (
	"errors"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/viper"

	"github.com/datamorph-io/forcetap/constants"
	"github.com/datamorph-io/forcetap/protocol"
	"github.com/datamorph-io/forcetap/types"
	"github.com/datamorph-io/forcetap/utils/logger"
	"github.com/datamorph-io/forcetap/utils/safego"
)

// markers let the caller scrape the failure off the log stream even when the
// error file could not be written
const (
	errorStartMarker = "[tap_error_start]"
	errorEndMarker   = "[tap_error_end]"
)

// RegisterDriver runs the connector. Quota exhaustion exits with code 2 so
// the caller can tell it apart from ordinary failures.
func RegisterDriver(driver protocol.Driver) {
	defer safego.Recovery(true)

	err := protocol.CreateRootCommand(driver).Execute()
	if err != nil {
		reportError(err)
		if errors.Is(err, constants.ErrQuotaExceeded) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	os.Exit(0)
}

type errorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func reportError(err error) {
	logger.Error(err)

	info := errorInfo{Message: err.Error()}
	classified := &types.ClassifiedError{}
	if errors.As(err, &classified) {
		info.Code = classified.Code
	}

	data, marshalErr := json.Marshal(info)
	if marshalErr != nil {
		return
	}

	if path := viper.GetString(constants.ErrorFilePath); path != "" {
		if writeErr := os.WriteFile(path, data, 0644); writeErr != nil {
			logger.Errorf("failed to write error file: %s", writeErr)
		}
	}
	logger.Infof("%s%s%s", errorStartMarker, string(data), errorEndMarker)
}
