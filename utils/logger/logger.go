package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/datamorph-io/forcetap/constants"
)

var logger zerolog.Logger

// Init wires the global logger: human readable console output on stderr and
// a rotated file under the config folder. Stdout stays reserved for the
// typed message channel.
func Init() {
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	writers := []io.Writer{console}

	configFolder := viper.GetString(constants.ConfigFolder)
	if configFolder != "" {
		logDir := filepath.Join(configFolder, "logs", fmt.Sprintf("sync_%s", time.Now().UTC().Format("2006-01-02_15-04-05")))
		if err := os.MkdirAll(logDir, os.ModePerm); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   filepath.Join(logDir, "forcetap.log"),
				MaxSize:    100, // megabytes
				MaxBackups: 5,
				MaxAge:     30, // days
			})
		}
	}

	logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(zerolog.TraceLevel).
		With().
		Timestamp().
		Logger()
}

func Debug(v ...interface{}) {
	logger.Debug().Msg(fmt.Sprint(v...))
}

func Debugf(format string, v ...interface{}) {
	logger.Debug().Msgf(format, v...)
}

func Info(v ...interface{}) {
	logger.Info().Msg(fmt.Sprint(v...))
}

func Infof(format string, v ...interface{}) {
	logger.Info().Msgf(format, v...)
}

func Warn(v ...interface{}) {
	logger.Warn().Msg(fmt.Sprint(v...))
}

func Warnf(format string, v ...interface{}) {
	logger.Warn().Msgf(format, v...)
}

func Error(v ...interface{}) {
	logger.Error().Msg(fmt.Sprint(v...))
}

func Errorf(format string, v ...interface{}) {
	logger.Error().Msgf(format, v...)
}

func Fatal(v ...interface{}) {
	logger.Fatal().Msg(fmt.Sprint(v...))
}

func Fatalf(format string, v ...interface{}) {
	logger.Fatal().Msgf(format, v...)
}

// FileLogger writes content as JSON into the config folder.
func FileLogger(content any, fileName, fileExt string) error {
	path := filepath.Join(viper.GetString(constants.ConfigFolder), fileName+fileExt)
	return writeJSONFile(path, content)
}
