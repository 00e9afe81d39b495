// Package logging builds the job's ectologger.Logger on top of a zap sink.
package logging

import (
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/qtlcandidateload/pkg/tracing"
)

// New returns a logger writing to zap at the given level (debug, info, warn, error). Pretty
// selects zap's development console encoder; otherwise entries are JSON with ISO8601 timestamps.
func New(appName, level string, pretty bool) (ectologger.Logger, func(), error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	var cfg zap.Config
	if pretty {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, nil, err
	}
	zapLogger = zapLogger.With(zap.String("app", appName))

	return FromZap(zapLogger), func() { _ = zapLogger.Sync() }, nil
}

// FromZap adapts zapLogger. Each ecto message keeps its level, fields and error, and carries the
// trace id of its context when a span is active.
func FromZap(zapLogger *zap.Logger) ectologger.Logger {
	return zapadapter.NewZapEctoLogger(zapLogger, withTraceID)
}

func withTraceID(msg ectologger.EctoLogMessage) ectologger.EctoLogMessage {
	if msg.Ctx == nil {
		return msg
	}
	if traceID := tracing.GetTraceID(msg.Ctx); traceID != "" {
		fields := make(map[string]any, len(msg.Fields)+1)
		for k, v := range msg.Fields {
			fields[k] = v
		}
		fields["trace_id"] = traceID
		msg.Fields = fields
	}
	return msg
}

// Discard returns a logger that drops every message. Used by tests and dry tooling.
func Discard() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}
