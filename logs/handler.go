package logs

import (
	"context"
	"log/slog"
)

// Handler tags every record logged under a span, so the records of one run,
// rewind or merge can be grepped together.
type Handler struct {
	slog.Handler
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	if v := ctx.Value(SpanKey); v != nil {
		record.Add("span", v.(Span))
	}
	return h.Handler.Handle(ctx, record)
}
