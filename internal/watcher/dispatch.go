package watcher

import (
	"context"
	"log/slog"
)

// Handler applies file changes to a knowledge base.
type Handler interface {
	IngestFile(ctx context.Context, path string) error
	RemoveFile(ctx context.Context, path string) error
}

// Dispatch applies batches from events to h until events is closed or ctx
// is done. Handler errors are logged and do not stop dispatching.
func Dispatch(ctx context.Context, events <-chan []FileEvent, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-events:
			if !ok {
				return
			}
			for _, ev := range batch {
				var err error
				if ev.Operation == OpDelete {
					err = h.RemoveFile(ctx, ev.Path)
				} else {
					err = h.IngestFile(ctx, ev.Path)
				}
				if err != nil {
					slog.Warn("watch_event_failed",
						slog.String("path", ev.Path),
						slog.String("op", ev.Operation.String()),
						slog.String("error", err.Error()))
				}
			}
		}
	}
}
