package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arjunm/nse_option_engine/internal/domain"
)

const (
	NSEBaseURL  = "https://www.nseindia.com"
	NSEChartURL = "https://charting.nseindia.com"

	browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// NSEClient fetches daily OHLC history and last prices from the NSE charting
// API. The API is cookie-gated: a plain request without a prior visit to the
// main site returns 401, so every call runs through warmup first.
//
// Contract identifiers are resolved to scrip codes via the EQ and FO master
// files, which are downloaded once and cached for the session.
type NSEClient struct {
	baseURL  string
	chartURL string
	client   *http.Client
	logger   *zap.Logger

	mu       sync.Mutex
	warmedAt time.Time
	eqCodes  map[string]int
	foCodes  map[string]int
}

func NewNSEClient(baseURL, chartURL string, logger *zap.Logger) *NSEClient {
	if baseURL == "" {
		baseURL = NSEBaseURL
	}
	if chartURL == "" {
		chartURL = NSEChartURL
	}
	jar, _ := cookiejar.New(nil)
	return &NSEClient{
		baseURL:  baseURL,
		chartURL: chartURL,
		client:   &http.Client{Timeout: 15 * time.Second, Jar: jar},
		logger:   logger,
	}
}

func (n *NSEClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", n.baseURL+"/option-chain")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("nse api error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// warmup refreshes the session cookies. NSE expires them after roughly an
// hour, so refresh every 30 minutes.
func (n *NSEClient) warmup(ctx context.Context) error {
	n.mu.Lock()
	fresh := time.Since(n.warmedAt) < 30*time.Minute
	n.mu.Unlock()
	if fresh {
		return nil
	}

	if _, err := n.get(ctx, n.baseURL); err != nil {
		return fmt.Errorf("session warmup: %w", err)
	}

	n.mu.Lock()
	n.warmedAt = time.Now()
	n.mu.Unlock()
	return nil
}

// loadMasters downloads the EQ and FO scrip masters. Lines are
// pipe-separated: scripCode|symbol|name|type.
func (n *NSEClient) loadMasters(ctx context.Context) error {
	n.mu.Lock()
	loaded := n.foCodes != nil
	n.mu.Unlock()
	if loaded {
		return nil
	}

	eq, err := n.fetchMaster(ctx, "/Charts/GetEQMasters")
	if err != nil {
		return err
	}
	fo, err := n.fetchMaster(ctx, "/Charts/GetFOMasters")
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.eqCodes = eq
	n.foCodes = fo
	n.mu.Unlock()
	n.logger.Info("Loaded NSE scrip masters",
		zap.Int("eq", len(eq)), zap.Int("fo", len(fo)))
	return nil
}

func (n *NSEClient) fetchMaster(ctx context.Context, path string) (map[string]int, error) {
	body, err := n.get(ctx, n.chartURL+path)
	if err != nil {
		return nil, fmt.Errorf("fetch master %s: %w", path, err)
	}

	codes := make(map[string]int)
	for _, line := range strings.Split(string(body), "\n") {
		fields := strings.Split(strings.TrimSpace(line), "|")
		if len(fields) < 2 {
			continue
		}
		code, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		codes[strings.ToUpper(fields[1])] = code
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("master %s: empty response", path)
	}
	return codes, nil
}

// scripCode resolves a contract identifier. Derivatives are looked up in the
// FO master first, then the EQ master for plain equity symbols.
func (n *NSEClient) scripCode(ctx context.Context, identifier string) (code int, derivative bool, err error) {
	if err := n.warmup(ctx); err != nil {
		return 0, false, err
	}
	if err := n.loadMasters(ctx); err != nil {
		return 0, false, err
	}

	key := strings.ToUpper(identifier)
	n.mu.Lock()
	defer n.mu.Unlock()
	if c, ok := n.foCodes[key]; ok {
		return c, true, nil
	}
	if c, ok := n.eqCodes[key]; ok {
		return c, false, nil
	}
	return 0, false, fmt.Errorf("identifier %s not found in scrip masters", identifier)
}

type chartRequest struct {
	Exch         string `json:"exch"`
	InstrType    string `json:"instrType"`
	ScripCode    int    `json:"scripCode"`
	ULToken      int    `json:"ulToken"`
	FromDate     int64  `json:"fromDate"`
	ToDate       int64  `json:"toDate"`
	TimeInterval string `json:"timeInterval"`
	ChartPeriod  string `json:"chartPeriod"`
	ChartStart   int    `json:"chartStart"`
}

type chartResponse struct {
	S    string      `json:"s"`
	Data [][]float64 `json:"data"`
}

func (n *NSEClient) fetchChart(ctx context.Context, req chartRequest) ([]domain.Bar, error) {
	payload, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		n.chartURL+"/Charts/symbolhistoricaldata/", bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", browserUA)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Referer", n.baseURL)

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("chart api error %d: %s", resp.StatusCode, string(body))
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("chart api decode: %w", err)
	}
	if result.S != "Ok" {
		// "no_data" is a normal answer for freshly listed contracts.
		return nil, nil
	}

	var bars []domain.Bar
	for _, row := range result.Data {
		// [timestampMs, open, high, low, close, volume]
		if len(row) < 5 {
			continue
		}
		bar := domain.Bar{
			Date:  time.UnixMilli(int64(row[0])),
			Open:  row[1],
			High:  row[2],
			Low:   row[3],
			Close: row[4],
		}
		if len(row) >= 6 {
			bar.Volume = int64(row[5])
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func (n *NSEClient) GetBars(ctx context.Context, identifier string, from, to time.Time) ([]domain.Bar, error) {
	code, derivative, err := n.scripCode(ctx, identifier)
	if err != nil {
		return nil, err
	}

	exch, instr := "N", "C"
	if derivative {
		exch, instr = "D", "D"
	}

	return n.fetchChart(ctx, chartRequest{
		Exch:         exch,
		InstrType:    instr,
		ScripCode:    code,
		ULToken:      code,
		FromDate:     from.Unix(),
		ToDate:       to.Unix(),
		TimeInterval: "1",
		ChartPeriod:  "D",
		ChartStart:   0,
	})
}

// GetLastPrice returns the most recent traded price, read off the intraday
// minute chart for today.
func (n *NSEClient) GetLastPrice(ctx context.Context, identifier string) (float64, error) {
	code, derivative, err := n.scripCode(ctx, identifier)
	if err != nil {
		return 0, err
	}

	exch, instr := "N", "C"
	if derivative {
		exch, instr = "D", "D"
	}

	now := time.Now()
	bars, err := n.fetchChart(ctx, chartRequest{
		Exch:         exch,
		InstrType:    instr,
		ScripCode:    code,
		ULToken:      code,
		FromDate:     now.Add(-48 * time.Hour).Unix(),
		ToDate:       now.Unix(),
		TimeInterval: "1",
		ChartPeriod:  "I",
		ChartStart:   0,
	})
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("no trades for %s", identifier)
	}
	return bars[len(bars)-1].Close, nil
}
