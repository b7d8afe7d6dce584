package usecase

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/arjunm/nse_option_engine/internal/domain"
)

// equityRule is the fixed rule for anything not in the index table: monthly
// contracts expiring on the last Thursday of the calendar month.
var equityRule = domain.ListingRule{Weekday: time.Thursday, Periodicity: domain.PeriodicityMonthly}

// maxWeeklyLookaheadDays guards Validate against stored weekly dates that
// drifted far into the future; more than five weeks out cannot be the
// front contract.
const maxWeeklyLookaheadDays = 35

var monthsByName = map[string]time.Month{
	"JANUARY": time.January, "FEBRUARY": time.February, "MARCH": time.March,
	"APRIL": time.April, "MAY": time.May, "JUNE": time.June,
	"JULY": time.July, "AUGUST": time.August, "SEPTEMBER": time.September,
	"OCTOBER": time.October, "NOVEMBER": time.November, "DECEMBER": time.December,
}

// ContractResolver maps option descriptions to exact contracts. The listing
// rule table and lot sizes are configuration (config/listing_rules.yaml),
// injected at construction together with the trading calendar.
type ContractResolver struct {
	cal      *Calendar
	rules    map[string]domain.ListingRule
	lotSizes map[string]int
}

func NewContractResolver(cal *Calendar, rules map[string]domain.ListingRule, lotSizes map[string]int) *ContractResolver {
	normalized := make(map[string]domain.ListingRule, len(rules))
	for sym, r := range rules {
		normalized[NormalizeSymbol(sym)] = r
	}
	lots := make(map[string]int, len(lotSizes))
	for sym, n := range lotSizes {
		lots[NormalizeSymbol(sym)] = n
	}
	return &ContractResolver{cal: cal, rules: normalized, lotSizes: lots}
}

// NormalizeSymbol uppercases and strips the ".NS" suffix data feeds append.
func NormalizeSymbol(symbol string) string {
	return strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(symbol)), ".NS")
}

func validSymbol(symbol string) bool {
	if symbol == "" {
		return false
	}
	for _, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '&', r == '-':
		default:
			return false
		}
	}
	return true
}

// RuleFor returns the listing rule for an underlying and whether it is an
// index. Symbols that are neither listed indices nor plausible equity
// tickers get a RuleNotFoundError.
func (r *ContractResolver) RuleFor(symbol string) (domain.ListingRule, bool, error) {
	sym := NormalizeSymbol(symbol)
	if rule, ok := r.rules[sym]; ok {
		return rule, true, nil
	}
	if !validSymbol(sym) {
		return domain.ListingRule{}, false, &domain.RuleNotFoundError{Symbol: symbol}
	}
	return equityRule, false, nil
}

// LotSize returns the exchange lot size for an underlying, defaulting to 1.
func (r *ContractResolver) LotSize(symbol string) int {
	if n, ok := r.lotSizes[NormalizeSymbol(symbol)]; ok && n > 0 {
		return n
	}
	return 1
}

func parseHint(hint string) (exact time.Time, month time.Month, kind string) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return time.Time{}, 0, "none"
	}
	if d, err := time.Parse(domain.ExpiryDateFormat, hint); err == nil {
		return dateOf(d), 0, "date"
	}
	upper := strings.ToUpper(hint)
	if m, ok := monthsByName[upper]; ok {
		return time.Time{}, m, "month"
	}
	for name, m := range monthsByName {
		if len(upper) >= 3 && strings.HasPrefix(name, upper[:3]) && len(upper) <= len(name) {
			return time.Time{}, m, "month"
		}
	}
	return time.Time{}, 0, "unknown"
}

// ResolveExpiry turns a possibly-ambiguous expiry hint into an exact date.
//
// Weekly underlyings re-derive the nearest forward expiry even when the
// hint is an exact date, unless trustExact is set: stored literal dates
// from earlier resolutions are a known bad-data source, and on a weekly
// schedule a stale date silently selects the wrong week's contract.
// A bare month name can never select one of a month's 4-5 weekly expiries
// and is rejected with AmbiguousExpiryError.
func (r *ContractResolver) ResolveExpiry(symbol, hint string, referenceDate time.Time, trustExact bool) (time.Time, error) {
	rule, _, err := r.RuleFor(symbol)
	if err != nil {
		return time.Time{}, err
	}
	ref := dateOf(referenceDate)
	exact, month, kind := parseHint(hint)

	if rule.Periodicity == domain.PeriodicityWeekly {
		switch kind {
		case "date":
			if trustExact {
				if exact.Before(ref) {
					return time.Time{}, &domain.PastExpiryError{Symbol: symbol, Expiry: exact}
				}
				return exact, nil
			}
			// Self-healing: ignore the literal date and recompute.
			return r.cal.AdjustExpiryBack(r.cal.NextOccurrenceOfWeekday(ref, rule.Weekday)), nil
		case "month", "unknown":
			return time.Time{}, &domain.AmbiguousExpiryError{Symbol: symbol, Hint: hint}
		default:
			return r.cal.AdjustExpiryBack(r.cal.NextOccurrenceOfWeekday(ref, rule.Weekday)), nil
		}
	}

	// Monthly.
	switch kind {
	case "date":
		if exact.Before(ref) {
			return time.Time{}, &domain.PastExpiryError{Symbol: symbol, Expiry: exact}
		}
		return exact, nil
	case "month":
		year := ref.Year()
		if month < ref.Month() {
			year++
		}
		expiry := r.cal.AdjustExpiryBack(r.cal.LastWeekdayOfMonth(year, month, rule.Weekday))
		if expiry.Before(ref) {
			return time.Time{}, &domain.PastExpiryError{Symbol: symbol, Expiry: expiry}
		}
		return expiry, nil
	case "unknown":
		return time.Time{}, &domain.AmbiguousExpiryError{Symbol: symbol, Hint: hint}
	default:
		expiry := r.cal.AdjustExpiryBack(r.cal.LastWeekdayOfMonth(ref.Year(), ref.Month(), rule.Weekday))
		if expiry.Before(ref) {
			next := ref.AddDate(0, 1, 0)
			expiry = r.cal.AdjustExpiryBack(r.cal.LastWeekdayOfMonth(next.Year(), next.Month(), rule.Weekday))
		}
		return expiry, nil
	}
}

// Construct builds the exchange trading symbol. Weekly contracts carry a
// day-and-month token, monthly contracts a year-and-month token, so two
// distinct (strike, expiry) pairs can never share an identifier:
//
//	weekly:  NIFTY11DEC24500CE
//	monthly: RELIANCE25DEC1300PE
func (r *ContractResolver) Construct(symbol string, strike float64, right domain.OptionRight, expiry time.Time) (string, error) {
	rule, _, err := r.RuleFor(symbol)
	if err != nil {
		return "", err
	}
	sym := NormalizeSymbol(symbol)
	mon := strings.ToUpper(expiry.Format("Jan"))
	strikeInt := int(math.Round(strike))
	if rule.Periodicity == domain.PeriodicityWeekly {
		return fmt.Sprintf("%s%s%s%d%s", sym, expiry.Format("02"), mon, strikeInt, right), nil
	}
	return fmt.Sprintf("%s%s%s%d%s", sym, expiry.Format("06"), mon, strikeInt, right), nil
}

// Validate checks a caller-supplied expiry date against the listing rules
// before any order references it. On failure it returns a reason and, when
// one can be computed, the correct date to use instead.
func (r *ContractResolver) Validate(symbol string, candidate time.Time, now time.Time) (bool, string, *time.Time) {
	rule, isIndex, err := r.RuleFor(symbol)
	if err != nil {
		return false, err.Error(), nil
	}
	if !isIndex {
		// Equity expiries are computed, not user-supplied; trust them.
		return true, "", nil
	}

	cand := dateOf(candidate)
	today := dateOf(now)
	if cand.Before(today) {
		return false, fmt.Sprintf("expiry %s is in the past", cand.Format(domain.ExpiryDateFormat)), nil
	}

	if rule.Periodicity == domain.PeriodicityWeekly {
		switch {
		case cand.Weekday() == rule.Weekday:
			// Nominal weekday.
		case cand.Weekday() == (rule.Weekday+6)%7:
			// One day early is legal only when the nominal day is a holiday.
			nominal := cand.AddDate(0, 0, 1)
			if r.cal.IsTradingDay(nominal) {
				return false, fmt.Sprintf("%s is %s but %s weekly contracts expire on %s (which is not a holiday)",
					cand.Format(domain.ExpiryDateFormat), cand.Weekday(), NormalizeSymbol(symbol), rule.Weekday), nil
			}
		default:
			return false, fmt.Sprintf("%s is %s but %s weekly contracts expire on %s (or the previous trading day when %s is a holiday)",
				cand.Format(domain.ExpiryDateFormat), cand.Weekday(), NormalizeSymbol(symbol), rule.Weekday, rule.Weekday), nil
		}
		if int(cand.Sub(today).Hours()/24) > maxWeeklyLookaheadDays {
			suggestion := r.cal.AdjustExpiryBack(r.cal.NextOccurrenceOfWeekday(today, rule.Weekday))
			return false, fmt.Sprintf("%s is more than %d days out, not a front weekly contract",
				cand.Format(domain.ExpiryDateFormat), maxWeeklyLookaheadDays), &suggestion
		}
		return true, "", nil
	}

	if cand.Weekday() != rule.Weekday {
		last := r.cal.LastWeekdayOfMonth(cand.Year(), cand.Month(), rule.Weekday)
		return false, fmt.Sprintf("%s is %s but %s monthly contracts expire on %s",
			cand.Format(domain.ExpiryDateFormat), cand.Weekday(), NormalizeSymbol(symbol), rule.Weekday), &last
	}
	last := r.cal.LastWeekdayOfMonth(cand.Year(), cand.Month(), rule.Weekday)
	if !sameDay(cand, last) {
		return false, fmt.Sprintf("%s is not the last %s of %s",
			cand.Format(domain.ExpiryDateFormat), rule.Weekday, cand.Format("January 2006")), &last
	}
	return true, "", nil
}

// DaysToExpiry counts whole days from now to the resolved expiry. Returns 0
// for equities.
func (r *ContractResolver) DaysToExpiry(expiry, now time.Time) int {
	if expiry.IsZero() {
		return 0
	}
	d := int(dateOf(expiry).Sub(dateOf(now)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
