package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/2beens/repcounter/pkg"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultLogFileMaxSizeMB = 50

type LoggerSetupParams struct {
	LogFileName      string
	LogFileMaxSizeMB int
	LogToStdout      bool
	LogLevel         string
	LogFormatJSON    bool
	Environment      string
	SentryEnabled    bool
	SentryDSN        string
	SentryServerName string
}

// Setup configures the global logrus logger.
// The returned func flushes pending sentry events and closes the log file, call it last.
func Setup(params LoggerSetupParams) (func(), error) {
	if params.LogFormatJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}
	logrus.SetLevel(GetLevel(params.LogLevel))

	var sentryErr error
	if params.SentryEnabled {
		sentryErr = setupSentry(params)
	}

	out, logFile := logOutput(params)
	logrus.SetOutput(out)

	cleanup := func() {
		if params.SentryEnabled && !sentry.Flush(5*time.Second) {
			fmt.Fprintln(os.Stderr, "sentry flush timed out")
		}
		if logFile != nil {
			_ = logFile.Close()
		}
	}

	return cleanup, sentryErr
}

func setupSentry(params LoggerSetupParams) error {
	err := sentry.Init(sentry.ClientOptions{
		Environment:      params.Environment,
		Dsn:              params.SentryDSN,
		TracesSampleRate: 1.0,
		ServerName:       params.SentryServerName,
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}

	logrus.AddHook(NewSentryHook([]logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
	}))
	logrus.Infoln("sentry set up successfully")
	return nil
}

// logOutput returns stdout when no log file is set. Otherwise a rotated log file,
// teed to stdout if requested.
func logOutput(params LoggerSetupParams) (io.Writer, *lumberjack.Logger) {
	if params.LogFileName == "" {
		return os.Stdout, nil
	}

	fileName := params.LogFileName
	if !strings.HasSuffix(fileName, ".log") {
		fileName += ".log"
	}
	maxSize := params.LogFileMaxSizeMB
	if maxSize <= 0 {
		maxSize = defaultLogFileMaxSizeMB
	}

	// rotated files are kept indefinitely
	logFile := &lumberjack.Logger{
		Filename:  fileName,
		MaxSize:   maxSize,
		LocalTime: false,
		Compress:  true,
	}

	if params.LogToStdout {
		return pkg.NewCombinedWriter(os.Stdout, logFile), logFile
	}
	return logFile, logFile
}

// GetLevel parses level names case-insensitively, unknown ones mean trace.
func GetLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.TraceLevel
	}
	return parsed
}
