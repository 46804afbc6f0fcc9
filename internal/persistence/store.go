// Package persistence implements the append-only triangle/attempt/fill store
// and an optional asynchronous cold-store mirror for cross-venue analytics.
package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/arbitgo/triarb/internal/domain"
	"github.com/arbitgo/triarb/internal/triangle"
)

// Store is the primary append-only sink: one row per discovered triangle,
// one per evaluated attempt, and one per fill, written after the attempt
// concludes so a crash mid-evaluation never produces a half-written row.
type Store interface {
	Migrate(ctx context.Context) error

	// InsertTriangle is idempotent on (leg_ab, leg_bc, leg_ac) and returns
	// the triangle's row id, inserting it on first sight.
	InsertTriangle(ctx context.Context, tri triangle.Triangle) (uuid.UUID, error)

	// InsertAttempt writes the attempt row and its fills (zero fills for a
	// skipped attempt, exactly three for a successful one, one or two for a
	// partial failure) in a single transaction.
	InsertAttempt(ctx context.Context, triangleID uuid.UUID, attempt domain.TriangleAttempt, fills []domain.Fill) error

	Close() error
}
