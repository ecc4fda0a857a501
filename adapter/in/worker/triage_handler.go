package worker

import (
	"context"
	"fmt"

	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

// Handler ships telemetry jobs to the trace sink.
type Handler struct {
	sink out.TraceSink
}

func NewHandler(sink out.TraceSink) *Handler {
	return &Handler{sink: sink}
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	logger.Debug("Processing message: %s", msg.Type)

	switch msg.Type {
	case JobTraceShip:
		p, err := ParsePayload[TracePayload](msg)
		if err != nil {
			return fmt.Errorf("decode trace payload: %w", err)
		}
		return h.sink.ShipTrace(ctx, msg.UserID, &p.Trace)

	case JobAnalyticsShip:
		p, err := ParsePayload[AnalyticsPayload](msg)
		if err != nil {
			return fmt.Errorf("decode analytics payload: %w", err)
		}
		return h.sink.ShipAnalytics(ctx, msg.UserID, &p.Analytics)

	default:
		logger.Warn("Unknown job type: %s", msg.Type)
		return nil
	}
}
