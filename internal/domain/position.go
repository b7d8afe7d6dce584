package domain

import "time"

type InstrumentKind string

const (
	InstrumentEquity InstrumentKind = "equity"
	InstrumentOption InstrumentKind = "option"
)

type OptionRight string

const (
	RightCall OptionRight = "CE"
	RightPut  OptionRight = "PE"
)

type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

type ExitReason string

const (
	ExitReasonTarget         ExitReason = "target"
	ExitReasonStopLoss       ExitReason = "stop_loss"
	ExitReasonTimeStop       ExitReason = "time_stop"
	ExitReasonManual         ExitReason = "manual"
	ExitReasonNoDataFallback ExitReason = "no_data_fallback"
)

type TrailingMode string

const (
	TrailingDisabled TrailingMode = "disabled"
	TrailingPercent  TrailingMode = "percent"
	TrailingFixed    TrailingMode = "fixed"
	TrailingATR      TrailingMode = "atr"
)

// Position is the unit of work for the reconciliation engine. Option-only
// fields (Strike, Right, ExpiryHint, ResolvedExpiry, LotSize) are meaningful
// only when Kind == InstrumentOption.
type Position struct {
	ID     string
	Symbol string
	Kind   InstrumentKind

	Strike         float64
	Right          OptionRight
	ExpiryHint     string    // exact date ("30-Dec-2025"), month name, or empty
	ResolvedExpiry time.Time // zero until resolved; fixed once set
	LotSize        int       // 1 for equities
	Identifier     string    // broker tradingsymbol, set once the contract resolves

	EntryPrice       float64
	EntryTime        time.Time
	Quantity         int
	StopLoss         float64 // 0 = not set yet
	Target           float64 // 0 = no target
	HighestPrice     float64 // highest favorable price since entry
	Trailing         TrailingMode
	TrailingDistance float64 // percent, absolute amount, or ATR multiple
	MaxHoldingDays   int     // 0 = no time stop

	SLOrderID    *string // broker-side protective order, if placed
	SLUpdates    int
	LastSLUpdate time.Time

	Status     Status
	ExitPrice  float64
	ExitTime   time.Time
	ExitReason ExitReason
	GrossPnL   float64
	Cost       float64
	NetPnL     float64
	PctReturn  float64

	CreatedAt time.Time
}

func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

func (p *Position) IsOption() bool {
	return p.Kind == InstrumentOption
}

// EffectiveQuantity converts lots into underlying-equivalent quantity.
func (p *Position) EffectiveQuantity() int {
	lot := p.LotSize
	if lot < 1 {
		lot = 1
	}
	return p.Quantity * lot
}

func (p *Position) DaysHeld(now time.Time) int {
	if now.Before(p.EntryTime) {
		return 0
	}
	return int(now.Sub(p.EntryTime).Hours() / 24)
}

// CheckRecord is one audit row written per reconciliation pass over a
// position, whether or not it closed.
type CheckRecord struct {
	Time         time.Time
	PositionID   string
	Symbol       string
	Status       string
	EntryPrice   float64
	CurrentPrice float64
	High         float64
	Low          float64
	StopLoss     float64
	Target       float64
	DaysHeld     int
	PnLPct       float64
}
