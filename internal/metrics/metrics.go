// Package metrics defines the narrow duration/throughput sink consumed
// by the resolver pipeline.
package metrics

import (
	"time"

	"go.uber.org/zap"
)

// Batch sources.
const (
	SourceRealtime = "realtime"
	SourceTakeout  = "takeout"
)

// Sink receives per-batch processing observations.
type Sink interface {
	ObserveBatch(source string, messages int, d time.Duration)
}

// ZapSink logs batch observations as structured records.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a sink writing to the given logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

// ObserveBatch records one batch's wall-clock duration and size.
func (s *ZapSink) ObserveBatch(source string, messages int, d time.Duration) {
	s.logger.Info("batch processed",
		zap.String("source", source),
		zap.Int("messages", messages),
		zap.Duration("duration", d),
	)
}
