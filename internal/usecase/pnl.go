package usecase

import "github.com/arjunm/nse_option_engine/internal/domain"

// ComputePnL books the money for a closed position. Percentage return is
// measured against capital deployed (entry price x effective quantity),
// never against the raw price delta.
func ComputePnL(pos *domain.Position, exitPrice, roundTripCost float64) (gross, net, pct float64) {
	qty := float64(pos.EffectiveQuantity())
	gross = (exitPrice - pos.EntryPrice) * qty
	net = gross - roundTripCost
	deployed := pos.EntryPrice * qty
	if deployed > 0 {
		pct = net / deployed * 100
	}
	return gross, net, pct
}
