package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arjunm/nse_option_engine/internal/domain"
)

const KiteBaseURL = "https://api.kite.trade"

// KiteGateway places and amends orders through the Kite Connect REST API.
// Protective stop orders retry a few times before giving up; the caller
// treats a final failure as best-effort and keeps its local stop.
type KiteGateway struct {
	baseURL     string
	apiKey      string
	accessToken string
	client      *http.Client
	logger      *zap.Logger

	maxRetries int
	retryDelay time.Duration
}

func NewKiteGateway(baseURL, apiKey, accessToken string, logger *zap.Logger) *KiteGateway {
	if baseURL == "" {
		baseURL = KiteBaseURL
	}
	return &KiteGateway{
		baseURL:     baseURL,
		apiKey:      apiKey,
		accessToken: accessToken,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
		maxRetries:  3,
		retryDelay:  2 * time.Second,
	}
}

type kiteResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		OrderID string `json:"order_id"`
	} `json:"data"`
}

func (k *KiteGateway) sendRequest(ctx context.Context, method, path string, form url.Values) (*kiteResponse, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, k.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Kite-Version", "3")
	req.Header.Set("Authorization", "token "+k.apiKey+":"+k.accessToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result kiteResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("kite api decode (%d): %s", resp.StatusCode, string(respBody))
	}
	if result.Status != "success" {
		return nil, fmt.Errorf("kite api error: %s", result.Message)
	}
	return &result, nil
}

// exchangeFor maps an instrument to its order-routing exchange.
func exchangeFor(p *domain.Position) string {
	if p.IsOption() {
		return "NFO"
	}
	return "NSE"
}

func productFor(p *domain.Position) string {
	if p.IsOption() {
		return "NRML"
	}
	return "CNC"
}

func orderForm(p *domain.Position, transactionType, orderType string) url.Values {
	form := url.Values{}
	form.Set("tradingsymbol", p.Identifier)
	form.Set("exchange", exchangeFor(p))
	form.Set("transaction_type", transactionType)
	form.Set("order_type", orderType)
	form.Set("quantity", strconv.Itoa(p.EffectiveQuantity()))
	form.Set("product", productFor(p))
	form.Set("validity", "DAY")
	return form
}

// ClosePosition sells the full quantity at market.
func (k *KiteGateway) ClosePosition(ctx context.Context, p *domain.Position, exitPrice float64, reason domain.ExitReason) error {
	form := orderForm(p, "SELL", "MARKET")

	result, err := k.sendRequest(ctx, "POST", "/orders/regular", form)
	if err != nil {
		return fmt.Errorf("close %s: %w", p.Identifier, err)
	}

	k.logger.Info("Exit order placed",
		zap.String("symbol", p.Identifier),
		zap.String("order_id", result.Data.OrderID),
		zap.String("reason", string(reason)),
		zap.Float64("ref_price", exitPrice))
	return nil
}

// PlaceProtectiveOrder places a stop-loss sell. Transient API failures are
// retried with a fixed delay before the error is returned.
func (k *KiteGateway) PlaceProtectiveOrder(ctx context.Context, p *domain.Position, stopPrice float64) (string, error) {
	form := orderForm(p, "SELL", "SL")
	form.Set("price", formatPrice(stopPrice))
	form.Set("trigger_price", formatPrice(stopPrice))

	var lastErr error
	for attempt := 1; attempt <= k.maxRetries; attempt++ {
		result, err := k.sendRequest(ctx, "POST", "/orders/regular", form)
		if err == nil {
			k.logger.Info("Protective order placed",
				zap.String("symbol", p.Identifier),
				zap.String("order_id", result.Data.OrderID),
				zap.Float64("trigger", stopPrice),
				zap.Int("attempt", attempt))
			return result.Data.OrderID, nil
		}

		lastErr = err
		k.logger.Warn("Protective order attempt failed",
			zap.String("symbol", p.Identifier),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < k.maxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(k.retryDelay):
			}
		}
	}
	return "", fmt.Errorf("place protective order for %s: %w", p.Identifier, lastErr)
}

// AmendProtectiveOrder moves the trigger of the existing stop order.
func (k *KiteGateway) AmendProtectiveOrder(ctx context.Context, p *domain.Position, newStopPrice float64) error {
	if p.SLOrderID == nil || *p.SLOrderID == "" {
		return fmt.Errorf("no protective order on record for %s", p.Identifier)
	}

	form := url.Values{}
	form.Set("order_type", "SL")
	form.Set("price", formatPrice(newStopPrice))
	form.Set("trigger_price", formatPrice(newStopPrice))
	form.Set("quantity", strconv.Itoa(p.EffectiveQuantity()))
	form.Set("validity", "DAY")

	if _, err := k.sendRequest(ctx, "PUT", "/orders/regular/"+*p.SLOrderID, form); err != nil {
		return fmt.Errorf("amend order %s: %w", *p.SLOrderID, err)
	}
	return nil
}

// formatPrice rounds to the NSE tick of 0.05.
func formatPrice(price float64) string {
	ticks := int(price/0.05 + 0.5)
	return strconv.FormatFloat(float64(ticks)*0.05, 'f', 2, 64)
}
