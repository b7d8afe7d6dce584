package usecase

import (
	"sort"
	"time"

	"github.com/arjunm/nse_option_engine/internal/domain"
)

// ExitParams carries everything the classifier needs. It is deliberately a
// plain value: ExitResolver has no dependencies and no side effects, so the
// same inputs always classify the same way.
type ExitParams struct {
	EntryPrice     float64
	EntryTime      time.Time
	StopLoss       float64 // 0 disables the stop check
	Target         float64 // 0 disables the target check
	MaxHoldingDays int     // 0 disables the time stop
	Now            time.Time
}

type ExitResolver struct{}

func NewExitResolver() *ExitResolver {
	return &ExitResolver{}
}

// Resolve classifies a bar history against entry, stop-loss and target.
//
// Daily bars carry no intraday sequencing, which forces two policies here:
// on the entry day a touch only counts when the open is on the right side
// of the entry price (otherwise the move predates the fill), and when both
// levels are first touched on the same date the stop-loss wins. The
// tie-break is a capital-protection bias, not a reconstruction of the true
// intraday order.
//
// An empty history is not an error in the trading sense: the caller is
// expected to fall back to a live quote on ErrInsufficientData.
func (r *ExitResolver) Resolve(p ExitParams, bars []domain.Bar) (domain.ExitOutcome, error) {
	sorted := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		// Zero-priced rows come from feed gaps; they carry no information.
		if b.Low <= 0 || b.High <= 0 {
			continue
		}
		if dateOf(b.Date).Before(dateOf(p.EntryTime)) {
			continue
		}
		sorted = append(sorted, b)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	if len(sorted) == 0 {
		return domain.ExitOutcome{}, domain.ErrInsufficientData
	}

	var (
		slDate, targetDate time.Time
		slIdx, targetIdx   int
		runningHigh        = sorted[0].High
		runningLow         = sorted[0].Low
		maxDrawdown        float64
	)

	for i, b := range sorted {
		if b.High > runningHigh {
			runningHigh = b.High
		}
		if b.Low < runningLow {
			runningLow = b.Low
		}
		if p.EntryPrice > 0 {
			if dd := (p.EntryPrice - b.Low) / p.EntryPrice * 100; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}

		entryDay := sameDay(b.Date, p.EntryTime)

		if p.Target > 0 && targetDate.IsZero() && b.High >= p.Target {
			if !entryDay || p.EntryPrice >= b.Open {
				targetDate = dateOf(b.Date)
				targetIdx = i
			}
		}
		if p.StopLoss > 0 && slDate.IsZero() && b.Low <= p.StopLoss {
			if !entryDay || p.EntryPrice <= b.Open {
				slDate = dateOf(b.Date)
				slIdx = i
			}
		}
	}

	last := sorted[len(sorted)-1]
	out := domain.ExitOutcome{
		CurrentPrice:   last.Close,
		RunningHigh:    runningHigh,
		RunningLow:     runningLow,
		MaxDrawdownPct: maxDrawdown,
		StopLossDate:   slDate,
		TargetDate:     targetDate,
	}

	switch {
	case !targetDate.IsZero() && slDate.IsZero():
		out.Status = domain.ExitStatusTargetHit
		out.ExitPrice = p.Target
		out.ExitDate = targetDate
		out.DaysToExit = targetIdx + 1
	case !slDate.IsZero() && targetDate.IsZero():
		out.Status = domain.ExitStatusStopLossHit
		out.ExitPrice = p.StopLoss
		out.ExitDate = slDate
		out.DaysToExit = slIdx + 1
	case !slDate.IsZero() && !targetDate.IsZero():
		if targetDate.Before(slDate) {
			out.Status = domain.ExitStatusTargetHit
			out.ExitPrice = p.Target
			out.ExitDate = targetDate
			out.DaysToExit = targetIdx + 1
		} else {
			// Same date included: stop-loss first by policy.
			out.Status = domain.ExitStatusStopLossHit
			out.ExitPrice = p.StopLoss
			out.ExitDate = slDate
			out.DaysToExit = slIdx + 1
		}
	default:
		now := p.Now
		if now.IsZero() {
			now = last.Date
		}
		held := int(dateOf(now).Sub(dateOf(p.EntryTime)).Hours() / 24)
		if p.MaxHoldingDays > 0 && held >= p.MaxHoldingDays {
			out.Status = domain.ExitStatusTimeStop
			out.ExitPrice = last.Close
			out.ExitDate = dateOf(last.Date)
			out.DaysToExit = len(sorted)
		} else {
			out.Status = domain.ExitStatusOpen
		}
	}

	return out, nil
}
