package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes notifications to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("notification")}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, n Notification) error {
	fields := []zap.Field{zap.String("type", string(n.Kind))}
	if n.Swap != nil {
		fields = append(fields,
			zap.String("order_id", n.Swap.OrderID),
			zap.String("status", string(n.Swap.Status)),
			zap.String("substatus", n.Swap.Substatus),
		)
	}
	if n.Chain != "" {
		fields = append(fields, zap.String("chain", n.Chain))
	}
	if n.Event != nil {
		fields = append(fields,
			zap.String("event_type", string(n.Event.Type)),
			zap.String("tx_hash", n.Event.TransactionHash),
			zap.Uint64("log_index", n.Event.LogIndex),
		)
	}
	if n.Result != "" {
		fields = append(fields, zap.String("result", n.Result))
	}
	if n.Cursor != nil {
		fields = append(fields, zap.Uint64("height", n.Cursor.Height))
	}

	switch n.Kind {
	case KindEventFailed, KindMonitorError, KindSwapFailed:
		s.logger.Warn("notification", append(fields, zap.String("error", n.Error))...)
	case KindEventProcessed, KindSync:
		s.logger.Debug("notification", fields...)
	default:
		s.logger.Info("notification", fields...)
	}
	return nil
}
