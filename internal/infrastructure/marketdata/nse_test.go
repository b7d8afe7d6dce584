package marketdata_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunm/nse_option_engine/internal/infrastructure/marketdata"
)

func chartServer(t *testing.T, data [][]float64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/Charts/GetEQMasters", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("2885|RELIANCE|Reliance Industries|EQ\n"))
	})
	mux.HandleFunc("/Charts/GetFOMasters", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("51234|NIFTY09DEC24500CE|NIFTY Option|OPTIDX\nmalformed line\n"))
	})
	mux.HandleFunc("/Charts/symbolhistoricaldata/", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{"s": "Ok", "data": data}
		if data == nil {
			resp["s"] = "no_data"
		}
		json.NewEncoder(w).Encode(resp)
	})
	return httptest.NewServer(mux)
}

func TestGetBars(t *testing.T) {
	ts := time.Date(2025, 12, 9, 0, 0, 0, 0, time.UTC)
	srv := chartServer(t, [][]float64{
		{float64(ts.UnixMilli()), 100, 105, 95, 102, 1200},
	})
	defer srv.Close()

	client := marketdata.NewNSEClient(srv.URL, srv.URL, testLogger())
	bars, err := client.GetBars(context.Background(), "NIFTY09DEC24500CE",
		ts.AddDate(0, 0, -1), ts.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, bars, 1)

	assert.Equal(t, 100.0, bars[0].Open)
	assert.Equal(t, 105.0, bars[0].High)
	assert.Equal(t, 95.0, bars[0].Low)
	assert.Equal(t, 102.0, bars[0].Close)
	assert.Equal(t, int64(1200), bars[0].Volume)
	assert.True(t, bars[0].Date.Equal(ts))
}

func TestGetBarsNoData(t *testing.T) {
	srv := chartServer(t, nil)
	defer srv.Close()

	client := marketdata.NewNSEClient(srv.URL, srv.URL, testLogger())
	bars, err := client.GetBars(context.Background(), "RELIANCE", time.Now().AddDate(0, 0, -5), time.Now())
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestGetBarsUnknownIdentifier(t *testing.T) {
	srv := chartServer(t, nil)
	defer srv.Close()

	client := marketdata.NewNSEClient(srv.URL, srv.URL, testLogger())
	_, err := client.GetBars(context.Background(), "NOSUCH", time.Now().AddDate(0, 0, -5), time.Now())
	assert.Error(t, err)
}

func TestGetLastPrice(t *testing.T) {
	now := time.Now()
	srv := chartServer(t, [][]float64{
		{float64(now.Add(-2 * time.Minute).UnixMilli()), 100, 101, 99, 100.5},
		{float64(now.Add(-1 * time.Minute).UnixMilli()), 100.5, 102, 100, 101.25},
	})
	defer srv.Close()

	client := marketdata.NewNSEClient(srv.URL, srv.URL, testLogger())
	price, err := client.GetLastPrice(context.Background(), "NIFTY09DEC24500CE")
	require.NoError(t, err)
	assert.Equal(t, 101.25, price)
}
