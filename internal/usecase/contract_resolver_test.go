package usecase_test

import (
	"errors"
	"testing"
	"time"

	"github.com/arjunm/nse_option_engine/internal/domain"
	"github.com/arjunm/nse_option_engine/internal/usecase"
)

var testRules = map[string]domain.ListingRule{
	"NIFTY":      {Weekday: time.Tuesday, Periodicity: domain.PeriodicityWeekly},
	"SENSEX":     {Weekday: time.Thursday, Periodicity: domain.PeriodicityWeekly},
	"BANKNIFTY":  {Weekday: time.Tuesday, Periodicity: domain.PeriodicityMonthly},
	"FINNIFTY":   {Weekday: time.Tuesday, Periodicity: domain.PeriodicityMonthly},
	"MIDCPNIFTY": {Weekday: time.Tuesday, Periodicity: domain.PeriodicityMonthly},
}

var testLots = map[string]int{"NIFTY": 75, "BANKNIFTY": 35}

func newResolver() *usecase.ContractResolver {
	cal := usecase.NewCalendar(testHolidays, nil)
	return usecase.NewContractResolver(cal, testRules, testLots)
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct{ in, want string }{
		{"reliance.NS", "RELIANCE"},
		{" nifty ", "NIFTY"},
		{"M&M", "M&M"},
	}
	for _, tt := range tests {
		if got := usecase.NormalizeSymbol(tt.in); got != tt.want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRuleForEquityDefault(t *testing.T) {
	r := newResolver()

	rule, isIndex, err := r.RuleFor("RELIANCE.NS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isIndex {
		t.Error("RELIANCE classified as index")
	}
	if rule.Weekday != time.Thursday || rule.Periodicity != domain.PeriodicityMonthly {
		t.Errorf("equity rule = %+v, want last-Thursday monthly", rule)
	}

	var notFound *domain.RuleNotFoundError
	if _, _, err := r.RuleFor("not a symbol!"); !errors.As(err, &notFound) {
		t.Errorf("garbage symbol: got %v, want RuleNotFoundError", err)
	}
}

func TestResolveExpiryWeekly(t *testing.T) {
	r := newResolver()
	ref := day(2025, 12, 8) // Monday

	// No hint: nearest Tuesday forward.
	got, err := r.ResolveExpiry("NIFTY", "", ref, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(day(2025, 12, 9)) {
		t.Errorf("got %s, want 2025-12-09", got.Format("2006-01-02"))
	}

	// An exact date hint is re-derived, not trusted: the stale 16th maps
	// back to the front contract on the 9th.
	got, err = r.ResolveExpiry("NIFTY", "16-Dec-2025", ref, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(day(2025, 12, 9)) {
		t.Errorf("untrusted exact hint: got %s, want 2025-12-09", got.Format("2006-01-02"))
	}

	// trustExact keeps the caller's date.
	got, err = r.ResolveExpiry("NIFTY", "16-Dec-2025", ref, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(day(2025, 12, 16)) {
		t.Errorf("trusted exact hint: got %s, want 2025-12-16", got.Format("2006-01-02"))
	}

	// trustExact still rejects a date already past.
	var past *domain.PastExpiryError
	if _, err := r.ResolveExpiry("NIFTY", "02-Dec-2025", ref, true); !errors.As(err, &past) {
		t.Errorf("past trusted date: got %v, want PastExpiryError", err)
	}
}

func TestResolveExpiryWeeklyMonthHintAmbiguous(t *testing.T) {
	r := newResolver()

	var ambiguous *domain.AmbiguousExpiryError
	_, err := r.ResolveExpiry("NIFTY", "December", day(2025, 12, 8), false)
	if !errors.As(err, &ambiguous) {
		t.Fatalf("got %v, want AmbiguousExpiryError", err)
	}
	if ambiguous.Symbol != "NIFTY" {
		t.Errorf("error symbol = %q", ambiguous.Symbol)
	}
}

func TestResolveExpiryWeeklyHolidayAdjust(t *testing.T) {
	r := newResolver()

	// From Friday 19 Dec the next SENSEX Thursday is Christmas, a holiday,
	// so the contract expires Wednesday the 24th.
	got, err := r.ResolveExpiry("SENSEX", "", day(2025, 12, 19), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(day(2025, 12, 24)) {
		t.Errorf("got %s, want 2025-12-24", got.Format("2006-01-02"))
	}
}

func TestResolveExpiryMonthly(t *testing.T) {
	r := newResolver()
	ref := day(2025, 12, 8)

	tests := []struct {
		name   string
		symbol string
		hint   string
		want   time.Time
	}{
		{"No hint uses current month", "BANKNIFTY", "", day(2025, 12, 30)},
		{"Month name", "BANKNIFTY", "December", day(2025, 12, 30)},
		{"Month name rolls into next year", "BANKNIFTY", "January", day(2026, 1, 27)},
		{"Short month name", "BANKNIFTY", "jan", day(2026, 1, 27)},
		{"Equity holiday adjust", "RELIANCE", "December", day(2025, 12, 24)},
		{"Exact date trusted", "BANKNIFTY", "30-Dec-2025", day(2025, 12, 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveExpiry(tt.symbol, tt.hint, ref, false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got.Format("2006-01-02"), tt.want.Format("2006-01-02"))
			}
		})
	}

	// Current month's expiry already passed: no hint rolls forward, an
	// explicit month name for it is an error.
	lateRef := day(2025, 12, 31)
	got, err := r.ResolveExpiry("BANKNIFTY", "", lateRef, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(day(2026, 1, 27)) {
		t.Errorf("rolled expiry = %s, want 2026-01-27", got.Format("2006-01-02"))
	}

	var past *domain.PastExpiryError
	if _, err := r.ResolveExpiry("BANKNIFTY", "December", lateRef, false); !errors.As(err, &past) {
		t.Errorf("passed month name: got %v, want PastExpiryError", err)
	}
}

func TestConstruct(t *testing.T) {
	r := newResolver()

	tests := []struct {
		name   string
		symbol string
		strike float64
		right  domain.OptionRight
		expiry time.Time
		want   string
	}{
		{"Weekly index", "NIFTY", 24500, domain.RightCall, day(2025, 12, 11), "NIFTY11DEC24500CE"},
		{"Monthly index", "BANKNIFTY", 52000, domain.RightPut, day(2025, 12, 30), "BANKNIFTY25DEC52000PE"},
		{"Equity", "RELIANCE.NS", 1300, domain.RightCall, day(2025, 12, 24), "RELIANCE25DEC1300CE"},
		{"Strike rounded", "NIFTY", 24500.4, domain.RightCall, day(2025, 12, 11), "NIFTY11DEC24500CE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Construct(tt.symbol, tt.strike, tt.right, tt.expiry)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Construct() = %q, want %q", got, tt.want)
			}
		})
	}
}

// Two weekly contracts a week apart must never share an identifier, and a
// weekly and monthly contract with the same strike must differ too.
func TestConstructNoCollision(t *testing.T) {
	r := newResolver()

	a, _ := r.Construct("NIFTY", 24500, domain.RightCall, day(2025, 12, 9))
	b, _ := r.Construct("NIFTY", 24500, domain.RightCall, day(2025, 12, 16))
	if a == b {
		t.Errorf("weekly identifiers collide: %q", a)
	}

	c, _ := r.Construct("BANKNIFTY", 24500, domain.RightCall, day(2025, 12, 30))
	if a == c || b == c {
		t.Errorf("weekly/monthly identifiers collide: %q %q %q", a, b, c)
	}
}

func TestValidateWeekly(t *testing.T) {
	r := newResolver()
	now := day(2025, 12, 8)

	tests := []struct {
		name      string
		symbol    string
		candidate time.Time
		wantOK    bool
	}{
		{"Nominal Tuesday", "NIFTY", day(2025, 12, 9), true},
		{"Thursday for SENSEX", "SENSEX", day(2025, 12, 11), true},
		{"Wrong weekday", "NIFTY", day(2025, 12, 10), false},
		{"Past date", "NIFTY", day(2025, 12, 2), false},
		{"Equities always pass", "RELIANCE", day(2025, 12, 10), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason, _ := r.Validate(tt.symbol, tt.candidate, now)
			if ok != tt.wantOK {
				t.Errorf("Validate(%s, %s) = %v (%s), want %v",
					tt.symbol, tt.candidate.Format("2006-01-02"), ok, reason, tt.wantOK)
			}
		})
	}
}

func TestValidateWeeklyHolidayCases(t *testing.T) {
	r := newResolver()
	now := day(2025, 10, 13)

	// Monday 20 Oct is one day before Diwali (Tuesday 21 Oct, a holiday):
	// a legal early expiry.
	if ok, reason, _ := r.Validate("NIFTY", day(2025, 10, 20), now); !ok {
		t.Errorf("holiday-advanced expiry rejected: %s", reason)
	}

	// Monday 29 Dec is one day before a normal trading Tuesday: not legal.
	if ok, _, _ := r.Validate("NIFTY", day(2025, 12, 29), day(2025, 12, 22)); ok {
		t.Error("Monday before a trading Tuesday accepted")
	}
}

func TestValidateWeeklyLookahead(t *testing.T) {
	r := newResolver()
	now := day(2025, 12, 8)

	// A Tuesday 50 days out cannot be the front weekly contract; the
	// suggestion is the nearest one.
	ok, _, suggestion := r.Validate("NIFTY", day(2026, 1, 27), now)
	if ok {
		t.Fatal("far-future weekly date accepted")
	}
	if suggestion == nil || !suggestion.Equal(day(2025, 12, 9)) {
		t.Errorf("suggestion = %v, want 2025-12-09", suggestion)
	}
}

func TestValidateMonthly(t *testing.T) {
	r := newResolver()
	now := day(2025, 12, 8)

	if ok, reason, _ := r.Validate("BANKNIFTY", day(2025, 12, 30), now); !ok {
		t.Errorf("last Tuesday rejected: %s", reason)
	}

	// A mid-month Tuesday is the right weekday but not the last one.
	ok, _, suggestion := r.Validate("BANKNIFTY", day(2025, 12, 9), now)
	if ok {
		t.Fatal("non-last Tuesday accepted")
	}
	if suggestion == nil || !suggestion.Equal(day(2025, 12, 30)) {
		t.Errorf("suggestion = %v, want 2025-12-30", suggestion)
	}
}

func TestLotSize(t *testing.T) {
	r := newResolver()

	if got := r.LotSize("NIFTY"); got != 75 {
		t.Errorf("LotSize(NIFTY) = %d, want 75", got)
	}
	if got := r.LotSize("RELIANCE"); got != 1 {
		t.Errorf("LotSize(RELIANCE) = %d, want 1", got)
	}
}

func TestDaysToExpiry(t *testing.T) {
	r := newResolver()

	if got := r.DaysToExpiry(day(2025, 12, 11), day(2025, 12, 8)); got != 3 {
		t.Errorf("got %d, want 3", got)
	}
	if got := r.DaysToExpiry(time.Time{}, day(2025, 12, 8)); got != 0 {
		t.Errorf("zero expiry: got %d, want 0", got)
	}
	if got := r.DaysToExpiry(day(2025, 12, 2), day(2025, 12, 8)); got != 0 {
		t.Errorf("past expiry: got %d, want 0", got)
	}
}
