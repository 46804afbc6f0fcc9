package native

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/arbitgo/triarb/internal/domain"
)

// wsClient owns one websocket connection and fans incoming book snapshots
// out to per-symbol channels. It reconnects with bounded exponential
// backoff and resubscribes to every symbol a caller had open.
type wsClient struct {
	url    string
	venue  string
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *slog.Logger

	reconnectBase time.Duration
	reconnectMax  time.Duration
	maxFailures   int

	chanMu    sync.RWMutex
	bookChans map[string]chan domain.OrderBookSnapshot
	wanted    map[string]bool
}

func newWSClient(url, venue string, logger *slog.Logger) *wsClient {
	return &wsClient{
		url:           url,
		venue:         venue,
		logger:        logger,
		reconnectBase: 100 * time.Millisecond,
		reconnectMax:  30 * time.Second,
		maxFailures:   8,
		bookChans:     make(map[string]chan domain.OrderBookSnapshot),
		wanted:        make(map[string]bool),
	}
}

func (ws *wsClient) connect(ctx context.Context) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, ws.url, nil)
	if err != nil {
		return fmt.Errorf("websocket connect to %s: %w", ws.url, err)
	}
	ws.conn = conn
	ws.logger.Info("websocket connected", "venue", ws.venue, "url", ws.url)
	return nil
}

func (ws *wsClient) reconnect(ctx context.Context) error {
	delay := ws.reconnectBase
	for i := 0; i < ws.maxFailures; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		if err := ws.connect(ctx); err != nil {
			ws.logger.Warn("reconnect attempt failed", "venue", ws.venue, "attempt", i+1, "error", err)
			delay *= 2
			if delay > ws.reconnectMax {
				delay = ws.reconnectMax
			}
			continue
		}
		ws.resubscribeAll()
		return nil
	}
	return fmt.Errorf("%s: failed to reconnect after %d attempts", ws.venue, ws.maxFailures)
}

func (ws *wsClient) resubscribeAll() {
	ws.chanMu.RLock()
	symbols := make([]string, 0, len(ws.wanted))
	for s := range ws.wanted {
		symbols = append(symbols, s)
	}
	ws.chanMu.RUnlock()
	for _, s := range symbols {
		if err := ws.subscribe(s); err != nil {
			ws.logger.Error("resubscribe failed", "venue", ws.venue, "symbol", s, "error", err)
		}
	}
}

func (ws *wsClient) subscribe(venueSymbol string) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.conn == nil {
		return fmt.Errorf("%s: websocket not connected", ws.venue)
	}
	msg := map[string]interface{}{
		"op":      "subscribe",
		"channel": "orderbook",
		"args":    []string{venueSymbol},
	}
	return ws.conn.WriteJSON(msg)
}

// subscribeBook registers venueSymbol as wanted and returns its delivery
// channel, creating it on first call.
func (ws *wsClient) subscribeBook(venueSymbol string) <-chan domain.OrderBookSnapshot {
	ws.chanMu.Lock()
	defer ws.chanMu.Unlock()
	ws.wanted[venueSymbol] = true
	ch, ok := ws.bookChans[venueSymbol]
	if !ok {
		ch = make(chan domain.OrderBookSnapshot, 64)
		ws.bookChans[venueSymbol] = ch
	}
	return ch
}

func (ws *wsClient) readPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ws.mu.Lock()
		conn := ws.conn
		ws.mu.Unlock()
		if conn == nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			ws.logger.Error("websocket read error", "venue", ws.venue, "error", err)
			if reconnErr := ws.reconnect(ctx); reconnErr != nil {
				ws.logger.Error("reconnection failed permanently", "venue", ws.venue, "error", reconnErr)
				ws.closeAllChans()
				return
			}
			continue
		}
		ws.handleMessage(message)
	}
}

type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type wireBookMessage struct {
	Channel string      `json:"channel"`
	Symbol  string      `json:"symbol"`
	Bids    []wireLevel `json:"bids"`
	Asks    []wireLevel `json:"asks"`
}

var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

func (ws *wsClient) handleMessage(msg []byte) {
	var wire wireBookMessage
	if err := wireJSON.Unmarshal(msg, &wire); err != nil {
		ws.logger.Warn("failed to parse websocket message", "venue", ws.venue, "error", err)
		return
	}
	if wire.Channel != "orderbook" || wire.Symbol == "" {
		return
	}

	ws.chanMu.RLock()
	ch, ok := ws.bookChans[wire.Symbol]
	ws.chanMu.RUnlock()
	if !ok {
		return
	}

	snapshot := domain.OrderBookSnapshot{
		Venue:          ws.venue,
		Symbol:         wire.Symbol,
		Bids:           toLevels(wire.Bids),
		Asks:           toLevels(wire.Asks),
		LocalTimestamp: time.Now(),
	}

	select {
	case ch <- snapshot:
	default:
		// Drop the stale snapshot rather than block the read pump; the
		// consumer only ever cares about the most recent book anyway.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func toLevels(raw []wireLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(lvl.Size)
		if err != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out
}

func (ws *wsClient) closeAllChans() {
	ws.chanMu.Lock()
	defer ws.chanMu.Unlock()
	for sym, ch := range ws.bookChans {
		close(ch)
		delete(ws.bookChans, sym)
	}
}

func (ws *wsClient) isConnected() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.conn != nil
}

func (ws *wsClient) close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.conn != nil {
		return ws.conn.Close()
	}
	return nil
}
