package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/arbitgo/triarb/internal/domain"
)

// MirroredStore decorates a durable Store with an AsyncWriter, enqueuing
// every successfully written attempt for cold-store replication without
// putting the replication write on the caller's critical path. It
// implements Store itself so a venue supervisor can depend on the interface
// without knowing whether cold-store mirroring is configured.
type MirroredStore struct {
	Store
	writer *AsyncWriter
}

// NewMirroredStore wraps store. writer may be nil, in which case
// InsertAttempt behaves exactly like the underlying store.
func NewMirroredStore(store Store, writer *AsyncWriter) *MirroredStore {
	return &MirroredStore{Store: store, writer: writer}
}

func (m *MirroredStore) InsertAttempt(ctx context.Context, triangleID uuid.UUID, attempt domain.TriangleAttempt, fills []domain.Fill) error {
	if err := m.Store.InsertAttempt(ctx, triangleID, attempt, fills); err != nil {
		return err
	}
	if m.writer != nil {
		m.writer.Mirror(attempt, fills)
	}
	return nil
}

var _ Store = (*MirroredStore)(nil)
