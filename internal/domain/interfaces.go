package domain

import (
	"context"
	"time"
)

// PriceHistoryProvider supplies daily OHLC bars for a contract identifier.
// A range starting "today" is legal and may legitimately yield zero bars
// (same-day listings, feed lag).
type PriceHistoryProvider interface {
	GetBars(ctx context.Context, identifier string, from, to time.Time) ([]Bar, error)
}

// QuoteProvider supplies the last traded price. Used as the fallback when
// history is empty and for trailing-stop checks between bars.
type QuoteProvider interface {
	GetLastPrice(ctx context.Context, identifier string) (float64, error)
}

// OrderGateway is the engine's only write path to the broker. All calls are
// best-effort: a failure is logged and retried next tick, never allowed to
// block the in-memory state transition.
type OrderGateway interface {
	ClosePosition(ctx context.Context, p *Position, exitPrice float64, reason ExitReason) error
	PlaceProtectiveOrder(ctx context.Context, p *Position, stopPrice float64) (orderID string, err error)
	AmendProtectiveOrder(ctx context.Context, p *Position, newStopPrice float64) error
}

// PositionStore persists positions. Save writes back only the fields the
// engine mutates; closed positions are archived, never deleted.
type PositionStore interface {
	LoadOpenPositions(ctx context.Context) ([]*Position, error)
	Save(ctx context.Context, p *Position) error
	RecordCheck(ctx context.Context, rec *CheckRecord) error
}
