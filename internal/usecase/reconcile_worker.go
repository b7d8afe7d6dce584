package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arjunm/nse_option_engine/internal/domain"
	"github.com/arjunm/nse_option_engine/internal/metrics"
)

type WorkerConfig struct {
	Interval       time.Duration // tick interval inside trading hours
	IdleInterval   time.Duration // sleep outside trading hours
	RequestTimeout time.Duration // per-position data/broker budget
	MaxConcurrent  int
	RoundTripCost  float64 // buy + sell brokerage per position
	ATRPeriod      int
	MarketOpen     string // "09:15"
	MarketClose    string // "15:30"
	Location       *time.Location
}

func (c *WorkerConfig) withDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = 30 * time.Minute
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 20 * time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.ATRPeriod <= 0 {
		c.ATRPeriod = 14
	}
	if c.MarketOpen == "" {
		c.MarketOpen = "09:15"
	}
	if c.MarketClose == "" {
		c.MarketClose = "15:30"
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
}

// ReconcileWorker drives every open position through one evaluation per
// tick: resolve the contract, fetch bars since entry, classify, then either
// book the close or ratchet the trailing stop. Every transition is
// idempotent, so a crashed tick can simply be re-run.
type ReconcileWorker struct {
	store    domain.PositionStore
	history  domain.PriceHistoryProvider
	quotes   domain.QuoteProvider
	gateway  domain.OrderGateway
	resolver *ContractResolver
	exits    *ExitResolver
	trailing *TrailingStopController
	autoStop AutoStopPolicy
	cfg      WorkerConfig
	logger   *zap.Logger
}

func NewReconcileWorker(
	store domain.PositionStore,
	history domain.PriceHistoryProvider,
	quotes domain.QuoteProvider,
	gateway domain.OrderGateway,
	resolver *ContractResolver,
	autoStop AutoStopPolicy,
	cfg WorkerConfig,
	logger *zap.Logger,
) *ReconcileWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.withDefaults()
	return &ReconcileWorker{
		store:    store,
		history:  history,
		quotes:   quotes,
		gateway:  gateway,
		resolver: resolver,
		exits:    NewExitResolver(),
		trailing: NewTrailingStopController(gateway, logger),
		autoStop: autoStop,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start runs the tick loop until ctx is cancelled. In-flight evaluations
// finish before Start returns so no position is left half-written.
func (w *ReconcileWorker) Start(ctx context.Context) {
	w.logger.Info("Starting reconciliation worker",
		zap.Duration("interval", w.cfg.Interval),
		zap.String("market_open", w.cfg.MarketOpen),
		zap.String("market_close", w.cfg.MarketClose))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reconciliation worker stopped")
			return
		case <-timer.C:
		}

		now := time.Now().In(w.cfg.Location)
		if !w.withinTradingHours(now) {
			timer.Reset(w.cfg.IdleInterval)
			continue
		}

		w.RunOnce(ctx, now)
		timer.Reset(w.cfg.Interval)
	}
}

func (w *ReconcileWorker) withinTradingHours(now time.Time) bool {
	openMin, err1 := parseClock(w.cfg.MarketOpen)
	closeMin, err2 := parseClock(w.cfg.MarketClose)
	if err1 != nil || err2 != nil {
		return true
	}
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	return minute >= openMin && minute <= closeMin
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

// RunOnce evaluates the full open-position set against one snapshot of
// "now". Positions are independent, so they run under a bounded pool; a
// failure on one never aborts the others.
func (w *ReconcileWorker) RunOnce(ctx context.Context, now time.Time) {
	metrics.Ticks.Inc()

	positions, err := w.store.LoadOpenPositions(ctx)
	if err != nil {
		w.logger.Error("Failed to load open positions", zap.Error(err))
		metrics.PositionErrors.WithLabelValues("store").Inc()
		return
	}
	metrics.OpenPositions.Set(float64(len(positions)))
	if len(positions) == 0 {
		return
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.MaxConcurrent)
	for _, pos := range positions {
		pos := pos
		g.Go(func() error {
			evalCtx, cancel := context.WithTimeout(gctx, w.cfg.RequestTimeout)
			defer cancel()
			if err := w.Evaluate(evalCtx, pos, now); err != nil {
				w.logger.Error("Position evaluation failed",
					zap.String("position", pos.ID),
					zap.String("symbol", pos.Symbol),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	w.logger.Info("Reconciliation tick complete",
		zap.Int("positions", len(positions)),
		zap.Duration("duration", time.Since(start)))
}

// Evaluate runs one position through the full pipeline. Re-evaluating a
// CLOSED position is a no-op; a resolved expiry is cached on the position
// and never recomputed against a later "now".
func (w *ReconcileWorker) Evaluate(ctx context.Context, pos *domain.Position, now time.Time) error {
	if !pos.IsOpen() {
		return nil
	}

	identifier, err := w.resolveContract(ctx, pos, now)
	if err != nil {
		metrics.PositionErrors.WithLabelValues("resolve").Inc()
		return err
	}

	if pos.StopLoss <= 0 {
		w.assignAutoStop(ctx, pos, now)
	}

	bars, err := w.history.GetBars(ctx, identifier, dateOf(pos.EntryTime), now)
	if err != nil {
		metrics.PositionErrors.WithLabelValues("history").Inc()
		return fmt.Errorf("fetch bars for %s: %w", identifier, err)
	}

	outcome, err := w.exits.Resolve(ExitParams{
		EntryPrice:     pos.EntryPrice,
		EntryTime:      pos.EntryTime,
		StopLoss:       pos.StopLoss,
		Target:         pos.Target,
		MaxHoldingDays: pos.MaxHoldingDays,
		Now:            now,
	}, bars)
	if errors.Is(err, domain.ErrInsufficientData) {
		return w.handleNoData(ctx, pos, identifier, now)
	}
	if err != nil {
		return err
	}

	if outcome.Terminal() {
		return w.close(ctx, pos, outcome.ExitPrice, outcome.ExitDate, outcome.Reason(), now)
	}

	if outcome.RunningHigh > pos.HighestPrice {
		pos.HighestPrice = outcome.RunningHigh
	}
	if pos.Trailing != domain.TrailingDisabled && pos.Trailing != "" {
		atr := 0.0
		if pos.Trailing == domain.TrailingATR {
			atr = AverageTrueRange(bars, w.cfg.ATRPeriod)
		}
		if w.trailing.Observe(ctx, pos, outcome.RunningHigh, atr, now) {
			metrics.TrailingUpdates.Inc()
		}
	}

	if err := w.store.Save(ctx, pos); err != nil {
		metrics.PositionErrors.WithLabelValues("store").Inc()
		return fmt.Errorf("save position %s: %w", pos.ID, err)
	}
	w.audit(ctx, pos, outcome, now)
	return nil
}

// resolveContract yields the tradable identifier, filling in the resolved
// expiry and lot size on first contact with an option position.
func (w *ReconcileWorker) resolveContract(ctx context.Context, pos *domain.Position, now time.Time) (string, error) {
	if !pos.IsOption() {
		pos.Identifier = NormalizeSymbol(pos.Symbol)
		return pos.Identifier, nil
	}

	if pos.ResolvedExpiry.IsZero() {
		expiry, err := w.resolver.ResolveExpiry(pos.Symbol, pos.ExpiryHint, now, false)
		if err != nil {
			return "", fmt.Errorf("resolve expiry for %s: %w", pos.Symbol, err)
		}
		pos.ResolvedExpiry = expiry
		if pos.LotSize < 1 {
			pos.LotSize = w.resolver.LotSize(pos.Symbol)
		}
		// Persist immediately so later ticks reuse this exact date even if
		// the rest of this evaluation fails.
		if err := w.store.Save(ctx, pos); err != nil {
			return "", fmt.Errorf("save resolved expiry for %s: %w", pos.ID, err)
		}
		w.logger.Info("Resolved contract expiry",
			zap.String("position", pos.ID),
			zap.String("symbol", pos.Symbol),
			zap.String("expiry", expiry.Format(domain.ExpiryDateFormat)))
	}

	identifier, err := w.resolver.Construct(pos.Symbol, pos.Strike, pos.Right, pos.ResolvedExpiry)
	if err != nil {
		return "", err
	}
	pos.Identifier = identifier
	return identifier, nil
}

// assignAutoStop gives a stop-less position its deterministic default and
// best-effort places the protective order. A gateway failure leaves the
// stop in force locally; placement is retried by trailing amendments or by
// hand, never by loosening the risk model.
func (w *ReconcileWorker) assignAutoStop(ctx context.Context, pos *domain.Position, now time.Time) {
	days := w.resolver.DaysToExpiry(pos.ResolvedExpiry, now)
	stop := w.autoStop.StopFor(pos.EntryPrice, pos.IsOption(), days)
	if stop <= 0 {
		return
	}
	pos.StopLoss = stop
	w.logger.Info("Assigned automatic stop-loss",
		zap.String("position", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.Float64("stop", stop),
		zap.Int("days_to_expiry", days))

	orderID, err := w.gateway.PlaceProtectiveOrder(ctx, pos, stop)
	if err != nil {
		metrics.PositionErrors.WithLabelValues("gateway").Inc()
		w.logger.Warn("Failed to place protective order",
			zap.String("position", pos.ID), zap.Error(err))
		return
	}
	if orderID != "" {
		pos.SLOrderID = &orderID
	}
}

// handleNoData covers empty histories: same-day listings and feed gaps fall
// back to the last traded quote, and an already-expired contract with no
// bars left is closed at that quote rather than carried forever.
func (w *ReconcileWorker) handleNoData(ctx context.Context, pos *domain.Position, identifier string, now time.Time) error {
	last, err := w.quotes.GetLastPrice(ctx, identifier)
	if err != nil {
		metrics.PositionErrors.WithLabelValues("history").Inc()
		return fmt.Errorf("quote fallback for %s: %w", identifier, err)
	}
	metrics.QuoteFallbacks.Inc()

	if pos.IsOption() && !pos.ResolvedExpiry.IsZero() && dateOf(now).After(dateOf(pos.ResolvedExpiry)) {
		return w.close(ctx, pos, last, dateOf(pos.ResolvedExpiry), domain.ExitReasonNoDataFallback, now)
	}

	if last > pos.HighestPrice {
		pos.HighestPrice = last
	}
	if err := w.store.Save(ctx, pos); err != nil {
		metrics.PositionErrors.WithLabelValues("store").Inc()
		return fmt.Errorf("save position %s: %w", pos.ID, err)
	}
	w.audit(ctx, pos, domain.ExitOutcome{
		Status:       domain.ExitStatusOpen,
		CurrentPrice: last,
		RunningHigh:  pos.HighestPrice,
		RunningLow:   last,
	}, now)
	return nil
}

func (w *ReconcileWorker) close(ctx context.Context, pos *domain.Position, exitPrice float64, exitDate time.Time, reason domain.ExitReason, now time.Time) error {
	gross, net, pct := ComputePnL(pos, exitPrice, w.cfg.RoundTripCost)
	pos.Status = domain.StatusClosed
	pos.ExitPrice = exitPrice
	pos.ExitTime = exitDate
	pos.ExitReason = reason
	pos.GrossPnL = gross
	pos.Cost = w.cfg.RoundTripCost
	pos.NetPnL = net
	pos.PctReturn = pct

	if err := w.gateway.ClosePosition(ctx, pos, exitPrice, reason); err != nil {
		// Logged and carried on: the broker close is best-effort and the
		// local book stays authoritative.
		metrics.PositionErrors.WithLabelValues("gateway").Inc()
		w.logger.Warn("Broker close failed",
			zap.String("position", pos.ID),
			zap.String("symbol", pos.Symbol),
			zap.Error(&domain.GatewayError{Op: "ClosePosition", Err: err}))
	}

	if err := w.store.Save(ctx, pos); err != nil {
		metrics.PositionErrors.WithLabelValues("store").Inc()
		return fmt.Errorf("save closed position %s: %w", pos.ID, err)
	}
	metrics.Closes.WithLabelValues(string(reason)).Inc()

	w.logger.Info("Position closed",
		zap.String("position", pos.ID),
		zap.String("symbol", pos.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("net_pnl", net),
		zap.Float64("pct_return", pct))

	w.audit(ctx, pos, domain.ExitOutcome{CurrentPrice: exitPrice}, now)
	return nil
}

func (w *ReconcileWorker) audit(ctx context.Context, pos *domain.Position, outcome domain.ExitOutcome, now time.Time) {
	status := string(outcome.Status)
	if !pos.IsOpen() {
		status = string(pos.ExitReason)
	}
	rec := &domain.CheckRecord{
		Time:         now,
		PositionID:   pos.ID,
		Symbol:       pos.Symbol,
		Status:       status,
		EntryPrice:   pos.EntryPrice,
		CurrentPrice: outcome.CurrentPrice,
		High:         outcome.RunningHigh,
		Low:          outcome.RunningLow,
		StopLoss:     pos.StopLoss,
		Target:       pos.Target,
		DaysHeld:     pos.DaysHeld(now),
		PnLPct:       pctSinceEntry(pos, outcome.CurrentPrice),
	}
	if err := w.store.RecordCheck(ctx, rec); err != nil {
		w.logger.Warn("Failed to record check", zap.String("position", pos.ID), zap.Error(err))
	}
}

func pctSinceEntry(pos *domain.Position, current float64) float64 {
	if pos.EntryPrice <= 0 || current <= 0 {
		return 0
	}
	return (current - pos.EntryPrice) / pos.EntryPrice * 100
}
