package broker_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arjunm/nse_option_engine/internal/domain"
	"github.com/arjunm/nse_option_engine/internal/infrastructure/broker"
)

func optionPosition() *domain.Position {
	return &domain.Position{
		ID:         "p1",
		Symbol:     "NIFTY",
		Kind:       domain.InstrumentOption,
		Identifier: "NIFTY09DEC24500CE",
		Quantity:   2,
		LotSize:    75,
		EntryPrice: 100,
		Status:     domain.StatusOpen,
	}
}

func TestPlaceProtectiveOrder(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/orders/regular", r.URL.Path)
		assert.Equal(t, "3", r.Header.Get("X-Kite-Version"))
		assert.Equal(t, "token key:secret", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseForm())
		got = map[string]string{}
		for k := range r.PostForm {
			got[k] = r.PostForm.Get(k)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data":   map[string]string{"order_id": "251208000123"},
		})
	}))
	defer srv.Close()

	gw := broker.NewKiteGateway(srv.URL, "key", "secret", zap.NewNop())
	orderID, err := gw.PlaceProtectiveOrder(context.Background(), optionPosition(), 75.02)
	require.NoError(t, err)
	assert.Equal(t, "251208000123", orderID)

	assert.Equal(t, "NIFTY09DEC24500CE", got["tradingsymbol"])
	assert.Equal(t, "NFO", got["exchange"])
	assert.Equal(t, "SELL", got["transaction_type"])
	assert.Equal(t, "SL", got["order_type"])
	assert.Equal(t, "150", got["quantity"])
	assert.Equal(t, "NRML", got["product"])
	// 75.02 snaps to the 0.05 tick.
	assert.Equal(t, "75.00", got["trigger_price"])
}

func TestClosePositionEquityRouting(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"exchange":   r.PostForm.Get("exchange"),
			"product":    r.PostForm.Get("product"),
			"order_type": r.PostForm.Get("order_type"),
			"quantity":   r.PostForm.Get("quantity"),
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data":   map[string]string{"order_id": "251208000124"},
		})
	}))
	defer srv.Close()

	p := &domain.Position{
		ID: "p2", Symbol: "RELIANCE", Kind: domain.InstrumentEquity,
		Identifier: "RELIANCE", Quantity: 10, Status: domain.StatusOpen,
	}
	gw := broker.NewKiteGateway(srv.URL, "key", "secret", zap.NewNop())
	require.NoError(t, gw.ClosePosition(context.Background(), p, 1295.5, domain.ExitReasonTarget))

	assert.Equal(t, "NSE", form["exchange"])
	assert.Equal(t, "CNC", form["product"])
	assert.Equal(t, "MARKET", form["order_type"])
	assert.Equal(t, "10", form["quantity"])
}

func TestAmendProtectiveOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "PUT", r.Method)
		require.Equal(t, "/orders/regular/251208000123", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "82.50", r.PostForm.Get("trigger_price"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"data":   map[string]string{"order_id": "251208000123"},
		})
	}))
	defer srv.Close()

	p := optionPosition()
	orderID := "251208000123"
	p.SLOrderID = &orderID

	gw := broker.NewKiteGateway(srv.URL, "key", "secret", zap.NewNop())
	require.NoError(t, gw.AmendProtectiveOrder(context.Background(), p, 82.5))
}

func TestAmendWithoutOrderID(t *testing.T) {
	gw := broker.NewKiteGateway("http://127.0.0.1:1", "key", "secret", zap.NewNop())
	err := gw.AmendProtectiveOrder(context.Background(), optionPosition(), 82.5)
	assert.Error(t, err)
}

func TestPaperGatewayLifecycle(t *testing.T) {
	gw := broker.NewPaperGateway(zap.NewNop())
	p := optionPosition()

	orderID, err := gw.PlaceProtectiveOrder(context.Background(), p, 75)
	require.NoError(t, err)
	require.NotEmpty(t, orderID)
	p.SLOrderID = &orderID
	assert.Equal(t, 1, gw.OpenOrders())

	require.NoError(t, gw.AmendProtectiveOrder(context.Background(), p, 82))

	require.NoError(t, gw.ClosePosition(context.Background(), p, 120, domain.ExitReasonTarget))
	assert.Equal(t, 0, gw.OpenOrders())
}
