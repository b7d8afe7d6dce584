package usecase

import "github.com/arjunm/nse_option_engine/internal/domain"

// AverageTrueRange computes Wilder-smoothed ATR over daily bars. Returns 0
// when fewer than period+1 bars are available; the trailing controller
// treats that as "no volatility estimate" and skips the ATR policy for the
// tick rather than trailing off a junk number.
func AverageTrueRange(bars []domain.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}
	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		tr := bars[i].High - bars[i].Low
		if hc := abs(bars[i].High - bars[i-1].Close); hc > tr {
			tr = hc
		}
		if lc := abs(bars[i].Low - bars[i-1].Close); lc > tr {
			tr = lc
		}
		trs = append(trs, tr)
	}
	if len(trs) < period {
		return 0
	}
	atr := 0.0
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)
	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
