// Package observability provides logging utilities.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/porttown/internal/config"
	"github.com/cory-johannsen/porttown/internal/game/event"
)

// NewLogger creates a structured logger from the given logging configuration.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// EventLogger writes every simulation event to a logger at debug level.
type EventLogger struct {
	logger *zap.Logger
}

// NewEventLogger returns an EventLogger writing to logger.
func NewEventLogger(logger *zap.Logger) *EventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventLogger{logger: logger.Named("events")}
}

// OnEvent logs e with only the fields its kind carries.
func (l *EventLogger) OnEvent(e event.Event) {
	if ce := l.logger.Check(zapcore.DebugLevel, string(e.Kind)); ce != nil {
		ce.Write(eventFields(e)...)
	}
}

func eventFields(e event.Event) []zap.Field {
	fields := []zap.Field{zap.String("source", e.Source)}
	switch e.Kind {
	case event.KindEconomyChanged:
		fields = append(fields, zap.Float64("economy", e.Economy))
	case event.KindPopulationChanged:
		fields = append(fields, zap.Int("population", e.Population))
	case event.KindGoodsChanged, event.KindShipCargoChanged:
		fields = append(fields, zap.String("good", e.Good), zap.Int("quantity", e.Quantity))
	case event.KindActionStateChanged:
		fields = append(fields, zap.String("state", e.State))
	case event.KindBalanceChanged:
		fields = append(fields, zap.Float64("balance", e.Balance))
	}
	return fields
}
