package marketdata

import (
	"context"
	"reflect"

	"github.com/arbitgo/triarb/internal/domain"
)

// Multiplexer fans a set of per-symbol streams into a single ordered
// sequence of updates without letting a noisy symbol starve a quiet one.
//
// It does this with N parallel waits: every stream's next-value receive is
// armed simultaneously via reflect.Select, which picks uniformly among
// whichever are ready. Once a winner delivers, only that one stream's wait
// is rearmed for the next round — the others stay armed exactly as they
// were. A combined/batched reader that drained one channel fully before
// moving to the next would let a single busy symbol monopolize every tick;
// this shape gives every symbol an equal shot each round regardless of its
// own update rate.
type Multiplexer struct {
	streams map[string]<-chan domain.OrderBookSnapshot
}

func NewMultiplexer() *Multiplexer {
	return &Multiplexer{streams: make(map[string]<-chan domain.OrderBookSnapshot)}
}

func (m *Multiplexer) Add(symbol string, stream <-chan domain.OrderBookSnapshot) {
	m.streams[symbol] = stream
}

// Run delivers each update to onUpdate until ctx is canceled or every
// stream closes. onUpdate runs on the caller's goroutine — the multiplexer
// never spawns one of its own — so the venue supervisor's single-task
// ownership model extends through to book cache writes.
func (m *Multiplexer) Run(ctx context.Context, onUpdate func(symbol string, snap domain.OrderBookSnapshot)) error {
	type slot struct {
		symbol string
		ch     <-chan domain.OrderBookSnapshot
	}
	slots := make([]slot, 0, len(m.streams))
	for symbol, ch := range m.streams {
		slots = append(slots, slot{symbol: symbol, ch: ch})
	}

	cases := make([]reflect.SelectCase, 0, len(slots)+1)
	cases = append(cases, reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(ctx.Done()),
	})
	for _, s := range slots {
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(s.ch),
		})
	}

	active := len(slots)
	for active > 0 {
		chosen, value, ok := reflect.Select(cases)
		if chosen == 0 {
			return ctx.Err()
		}

		idx := chosen - 1
		if !ok {
			// This stream closed permanently; stop selecting on it but keep
			// the others running.
			cases[chosen].Chan = reflect.ValueOf((<-chan struct{})(nil))
			active--
			continue
		}

		snap := value.Interface().(domain.OrderBookSnapshot)
		onUpdate(slots[idx].symbol, snap)
	}
	return nil
}
