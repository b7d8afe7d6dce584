package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// tick is the wire format of the broker's streaming feed.
type tick struct {
	Symbol string  `json:"symbol"`
	LTP    float64 `json:"ltp"`
	TS     int64   `json:"ts"`
}

// TickerStream keeps a websocket connection to the broker tick feed and
// caches the last traded price per identifier. It reconnects with backoff
// when the feed drops.
type TickerStream struct {
	wsURL  string
	logger *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	subs      map[string]struct{}
	last      map[string]cachedTick
	callbacks []func(symbol string, price float64)
	closed    bool
}

type cachedTick struct {
	price float64
	at    time.Time
}

func NewTickerStream(wsURL string, logger *zap.Logger) *TickerStream {
	return &TickerStream{
		wsURL:  wsURL,
		logger: logger,
		subs:   make(map[string]struct{}),
		last:   make(map[string]cachedTick),
	}
}

func (t *TickerStream) OnPriceUpdate(callback func(symbol string, price float64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, callback)
}

// Subscribe registers identifiers and connects on first use. Subscribing
// while connected sends an incremental subscribe frame.
func (t *TickerStream) Subscribe(symbols []string) error {
	t.mu.Lock()
	fresh := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := t.subs[s]; !ok {
			t.subs[s] = struct{}{}
			fresh = append(fresh, s)
		}
	}
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return t.connect()
	}
	if len(fresh) == 0 {
		return nil
	}
	return t.send(conn, fresh)
}

func (t *TickerStream) send(conn *websocket.Conn, symbols []string) error {
	msg := map[string]interface{}{
		"op":   "subscribe",
		"args": symbols,
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return conn.WriteJSON(msg)
}

func (t *TickerStream) connect() error {
	t.mu.Lock()
	if t.conn != nil || t.closed {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(t.wsURL, nil)
	if err != nil {
		return fmt.Errorf("ticker dial: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	all := make([]string, 0, len(t.subs))
	for s := range t.subs {
		all = append(all, s)
	}
	t.mu.Unlock()

	if err := t.send(conn, all); err != nil {
		conn.Close()
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		return err
	}

	go t.readLoop(conn)
	return nil
}

func (t *TickerStream) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		t.mu.Lock()
		t.conn = nil
		closed := t.closed
		t.mu.Unlock()

		if !closed {
			// Reconnect after a short pause; resubscribes everything.
			time.Sleep(5 * time.Second)
			if err := t.connect(); err != nil {
				t.logger.Warn("Ticker reconnect failed", zap.Error(err))
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			t.logger.Warn("Ticker read error", zap.Error(err))
			return
		}

		var tk tick
		if err := json.Unmarshal(message, &tk); err != nil {
			continue
		}
		if tk.Symbol == "" || tk.LTP <= 0 {
			continue
		}

		t.mu.Lock()
		t.last[tk.Symbol] = cachedTick{price: tk.LTP, at: time.Now()}
		callbacks := make([]func(string, float64), len(t.callbacks))
		copy(callbacks, t.callbacks)
		t.mu.Unlock()

		for _, cb := range callbacks {
			cb(tk.Symbol, tk.LTP)
		}
	}
}

// LastTick returns the cached price for an identifier, if any tick arrived.
func (t *TickerStream) LastTick(symbol string) (float64, time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.last[symbol]
	return c.price, c.at, ok
}

func (t *TickerStream) Close() {
	t.mu.Lock()
	t.closed = true
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// QuoteFeed answers last-price queries from the tick stream when a fresh
// tick is cached, falling back to the REST client otherwise. The stream is
// optional; with a nil stream every query goes to REST.
type QuoteFeed struct {
	stream   *TickerStream
	rest     *NSEClient
	maxStale time.Duration
}

func NewQuoteFeed(stream *TickerStream, rest *NSEClient) *QuoteFeed {
	return &QuoteFeed{stream: stream, rest: rest, maxStale: 2 * time.Minute}
}

func (q *QuoteFeed) GetLastPrice(ctx context.Context, identifier string) (float64, error) {
	if q.stream != nil {
		if price, at, ok := q.stream.LastTick(identifier); ok && time.Since(at) < q.maxStale {
			return price, nil
		}
	}
	return q.rest.GetLastPrice(ctx, identifier)
}
