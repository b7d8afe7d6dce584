package domain

import "time"

// Bar is one OHLC observation for a contract or underlying.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume,omitempty"`
}

type ExitStatus string

const (
	ExitStatusOpen        ExitStatus = "OPEN"
	ExitStatusTargetHit   ExitStatus = "TARGET_HIT"
	ExitStatusStopLossHit ExitStatus = "STOP_LOSS_HIT"
	ExitStatusTimeStop    ExitStatus = "TIME_STOP"
)

// ExitOutcome is the immutable result of classifying a price history against
// entry, stop-loss and target levels. StopLossDate and TargetDate carry the
// first date each level was touched, when touched at all, so that same-day
// collisions stay diagnosable.
type ExitOutcome struct {
	Status       ExitStatus `json:"status"`
	ExitPrice    float64    `json:"exit_price,omitempty"`
	ExitDate     time.Time  `json:"exit_date,omitempty"`
	StopLossDate time.Time  `json:"stop_loss_date,omitempty"`
	TargetDate   time.Time  `json:"target_date,omitempty"`

	CurrentPrice   float64 `json:"current_price"`
	RunningHigh    float64 `json:"running_high"`
	RunningLow     float64 `json:"running_low"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	DaysToExit     int     `json:"days_to_exit,omitempty"`
}

func (o ExitOutcome) Terminal() bool {
	return o.Status != ExitStatusOpen
}

func (o ExitOutcome) Reason() ExitReason {
	switch o.Status {
	case ExitStatusTargetHit:
		return ExitReasonTarget
	case ExitStatusStopLossHit:
		return ExitReasonStopLoss
	case ExitStatusTimeStop:
		return ExitReasonTimeStop
	}
	return ""
}
