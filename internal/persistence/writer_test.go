package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arbitgo/triarb/internal/domain"
)

func TestAsyncWriter_Mirror_NoOpWhenColdStoreNil(t *testing.T) {
	w := NewAsyncWriter(nil, 4, discardLogger())
	w.Mirror(domain.TriangleAttempt{ID: uuid.Must(uuid.NewV7())}, nil)

	select {
	case <-w.ch:
		t.Fatal("expected no enqueue when cold store is disabled")
	default:
	}
}

func TestAsyncWriter_Mirror_DropsWhenChannelFull(t *testing.T) {
	cold := &PostgresColdStore{logger: discardLogger()}
	w := NewAsyncWriter(cold, 1, discardLogger())

	attempt := domain.TriangleAttempt{ID: uuid.Must(uuid.NewV7())}
	w.Mirror(attempt, nil)
	w.Mirror(attempt, nil)

	if len(w.ch) != 1 {
		t.Fatalf("expected channel to hold exactly one buffered item, got %d", len(w.ch))
	}
}

func TestAsyncWriter_Run_DrainsUntilContextCanceled(t *testing.T) {
	cold := &PostgresColdStore{logger: discardLogger()}
	w := NewAsyncWriter(cold, 4, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	w.Mirror(domain.TriangleAttempt{ID: uuid.Must(uuid.NewV7())}, nil)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestAsyncWriter_Stop_ClosesChannelAndRunReturns(t *testing.T) {
	cold := &PostgresColdStore{logger: discardLogger()}
	w := NewAsyncWriter(cold, 4, discardLogger())

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	w.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop closed the channel")
	}
}

func TestSkipReasonStrings_ConvertsEachReason(t *testing.T) {
	got := skipReasonStrings([]domain.SkipReason{domain.SkipEmptyBook, domain.SkipBelowThreshold})
	want := []string{"empty_book", "below_threshold"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
