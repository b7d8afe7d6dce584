package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arjunm/nse_option_engine/internal/domain"
)

// TrailingStopController ratchets a position's stop-loss upward as the
// favorable excursion grows. The internal risk model is authoritative:
// a raise is recorded on the position even when the broker-side amendment
// fails, and the next tick retries the (now larger) amendment.
type TrailingStopController struct {
	gateway domain.OrderGateway
	logger  *zap.Logger
}

func NewTrailingStopController(gateway domain.OrderGateway, logger *zap.Logger) *TrailingStopController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrailingStopController{gateway: gateway, logger: logger}
}

// Candidate computes the stop the configured policy wants, given the
// highest favorable price so far. atr is only consulted by the ATR policy.
func Candidate(mode domain.TrailingMode, highest, distance, atr float64) float64 {
	switch mode {
	case domain.TrailingPercent:
		return highest * (1 - distance/100)
	case domain.TrailingFixed:
		return highest - distance
	case domain.TrailingATR:
		if atr <= 0 {
			return 0
		}
		return highest - distance*atr
	}
	return 0
}

// Observe folds one price observation into the ratchet. It updates the
// running high, raises the stop when the policy candidate is strictly
// better, and best-effort amends the protective order. Returns true when
// the stop moved.
func (c *TrailingStopController) Observe(ctx context.Context, pos *domain.Position, observedHigh, atr float64, now time.Time) bool {
	if pos.Trailing == domain.TrailingDisabled || pos.Trailing == "" || observedHigh <= 0 {
		return false
	}
	if pos.HighestPrice < pos.EntryPrice {
		pos.HighestPrice = pos.EntryPrice
	}
	if observedHigh > pos.HighestPrice {
		pos.HighestPrice = observedHigh
	}

	candidate := Candidate(pos.Trailing, pos.HighestPrice, pos.TrailingDistance, atr)
	if candidate <= pos.StopLoss || candidate <= 0 {
		return false
	}

	previous := pos.StopLoss
	pos.StopLoss = candidate
	pos.SLUpdates++
	pos.LastSLUpdate = now

	if pos.SLOrderID != nil {
		if err := c.gateway.AmendProtectiveOrder(ctx, pos, candidate); err != nil {
			// Keep the raised stop; the broker order catches up next tick.
			c.logger.Warn("Failed to amend protective order",
				zap.String("position", pos.ID),
				zap.String("symbol", pos.Symbol),
				zap.Float64("new_stop", candidate),
				zap.Error(err))
		}
	}

	c.logger.Info("Trailing stop raised",
		zap.String("position", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.Float64("from", previous),
		zap.Float64("to", candidate),
		zap.Float64("highest", pos.HighestPrice))
	return true
}
