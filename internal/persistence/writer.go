package persistence

import (
	"context"
	"log/slog"

	"github.com/arbitgo/triarb/internal/domain"
)

// mirrorRequest pairs an attempt with its fills for the cold-store pipe.
type mirrorRequest struct {
	attempt domain.TriangleAttempt
	fills   []domain.Fill
}

// AsyncWriter fans completed attempts out to the Postgres cold store without
// ever blocking the venue supervisor's critical path: a full channel drops
// the write and logs it, since the SQLiteStore write already happened
// synchronously and is the durable record.
type AsyncWriter struct {
	ch        chan mirrorRequest
	coldStore *PostgresColdStore
	logger    *slog.Logger
}

func NewAsyncWriter(coldStore *PostgresColdStore, bufferSize int, logger *slog.Logger) *AsyncWriter {
	return &AsyncWriter{
		ch:        make(chan mirrorRequest, bufferSize),
		coldStore: coldStore,
		logger:    logger,
	}
}

// Mirror enqueues an attempt for cold-store replication. Safe to call even
// when no Postgres DSN is configured; the request is simply dropped.
func (w *AsyncWriter) Mirror(attempt domain.TriangleAttempt, fills []domain.Fill) {
	if w.coldStore == nil {
		return
	}
	select {
	case w.ch <- mirrorRequest{attempt: attempt, fills: fills}:
	default:
		w.logger.Warn("cold-store write channel full, dropping attempt mirror", "attempt_id", attempt.ID)
	}
}

// Run drains the mirror channel until ctx is canceled or Stop closes it.
func (w *AsyncWriter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			if err := w.coldStore.MirrorAttempt(ctx, req.attempt, req.fills); err != nil {
				w.logger.Error("cold-store mirror failed", "attempt_id", req.attempt.ID, "error", err)
			}
		}
	}
}

func (w *AsyncWriter) Stop() {
	close(w.ch)
}
