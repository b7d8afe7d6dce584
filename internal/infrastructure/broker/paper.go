package broker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/arjunm/nse_option_engine/internal/domain"
)

// PaperGateway simulates broker fills in memory. Every call succeeds
// instantly at the requested price, which makes it the default for dry runs
// and for the worker tests.
type PaperGateway struct {
	logger *zap.Logger

	mu     sync.Mutex
	seq    int
	orders map[string]paperOrder
}

type paperOrder struct {
	symbol   string
	quantity int
	trigger  float64
}

func NewPaperGateway(logger *zap.Logger) *PaperGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperGateway{logger: logger, orders: make(map[string]paperOrder)}
}

func (g *PaperGateway) nextID() string {
	g.seq++
	return fmt.Sprintf("paper-%06d", g.seq)
}

func (g *PaperGateway) ClosePosition(ctx context.Context, p *domain.Position, exitPrice float64, reason domain.ExitReason) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Cancel the simulated stop order, if any.
	if p.SLOrderID != nil {
		delete(g.orders, *p.SLOrderID)
	}

	g.logger.Info("Paper fill: position closed",
		zap.String("symbol", p.Identifier),
		zap.Int("quantity", p.EffectiveQuantity()),
		zap.Float64("price", exitPrice),
		zap.String("reason", string(reason)))
	return nil
}

func (g *PaperGateway) PlaceProtectiveOrder(ctx context.Context, p *domain.Position, stopPrice float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextID()
	g.orders[id] = paperOrder{symbol: p.Identifier, quantity: p.EffectiveQuantity(), trigger: stopPrice}

	g.logger.Info("Paper fill: protective order placed",
		zap.String("symbol", p.Identifier),
		zap.String("order_id", id),
		zap.Float64("trigger", stopPrice))
	return id, nil
}

func (g *PaperGateway) AmendProtectiveOrder(ctx context.Context, p *domain.Position, newStopPrice float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p.SLOrderID == nil {
		return fmt.Errorf("no protective order on record for %s", p.Identifier)
	}
	order, ok := g.orders[*p.SLOrderID]
	if !ok {
		return fmt.Errorf("unknown order %s", *p.SLOrderID)
	}
	order.trigger = newStopPrice
	g.orders[*p.SLOrderID] = order

	g.logger.Info("Paper fill: protective order amended",
		zap.String("symbol", p.Identifier),
		zap.String("order_id", *p.SLOrderID),
		zap.Float64("trigger", newStopPrice))
	return nil
}

// OpenOrders reports the simulated resting orders, used in tests.
func (g *PaperGateway) OpenOrders() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}
