// Package logging builds the service logger and holds the field names shared by
// every component that logs.
package logging

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FieldRequestID    = "request_id"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldStatus       = "status"
	FieldDurationMS   = "duration_ms"
	FieldDocumentID   = "document_id"
	FieldSnapshotID   = "snapshot_id"
	FieldFromSnapshot = "from_snapshot"
	FieldToSnapshot   = "to_snapshot"
	FieldCacheHit     = "cache_hit"
	FieldComponent    = "component"
)

// New builds a JSON logger for production environments and a console logger
// otherwise. An empty level means info.
func New(environment, level string) (*zap.Logger, error) {
	parsed := zapcore.InfoLevel
	if strings.TrimSpace(level) != "" {
		var err error
		parsed, err = zapcore.ParseLevel(level)
		if err != nil {
			return nil, errors.Wrapf(err, "parse log level %q", level)
		}
	}

	var cfg zap.Config
	if IsProduction(environment) {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(parsed)

	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return logger, nil
}

func IsProduction(environment string) bool {
	switch strings.ToLower(strings.TrimSpace(environment)) {
	case "production", "prod":
		return true
	default:
		return false
	}
}
