package usecase

// AutoStopPolicy assigns a default stop-loss when a position was created
// without one. The percentages came out of backtesting stored trades:
// short-dated options carry more gamma risk and get the wider bucket, the
// floor caps the worst-case loss regardless of bucket, and equities use a
// tight fixed stop. The result is reproducible from
// (entryPrice, isOption, daysToExpiry) alone.
type AutoStopPolicy struct {
	WeeklyPct        float64 // options within WeeklyWindowDays of expiry
	MonthlyPct       float64 // longer-dated options
	FloorPct         float64 // stop never sits further than this below entry
	EquityPct        float64
	WeeklyWindowDays int
}

func DefaultAutoStopPolicy() AutoStopPolicy {
	return AutoStopPolicy{
		WeeklyPct:        40.0,
		MonthlyPct:       30.0,
		FloorPct:         25.0,
		EquityPct:        4.0,
		WeeklyWindowDays: 7,
	}
}

// StopFor returns the default stop-loss price. daysToExpiry is ignored for
// equities; use 0 when the instrument has no expiry.
func (p AutoStopPolicy) StopFor(entryPrice float64, isOption bool, daysToExpiry int) float64 {
	if entryPrice <= 0 {
		return 0
	}
	if !isOption {
		return entryPrice * (1 - p.EquityPct/100)
	}
	pct := p.MonthlyPct
	if daysToExpiry > 0 && daysToExpiry <= p.WeeklyWindowDays {
		pct = p.WeeklyPct
	}
	stop := entryPrice * (1 - pct/100)
	if floor := entryPrice * (1 - p.FloorPct/100); stop < floor {
		stop = floor
	}
	return stop
}
