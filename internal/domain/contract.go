package domain

import "time"

// ExpiryDateFormat is the wire format for expiry dates throughout the
// engine: "30-Dec-2025". It matches what the exchange option chain and the
// stored expiry hints use.
const ExpiryDateFormat = "02-Jan-2006"

type Periodicity string

const (
	PeriodicityWeekly  Periodicity = "weekly"
	PeriodicityMonthly Periodicity = "monthly"
)

// ListingRule describes how an index underlying lists its option contracts.
// Underlyings absent from the rule table are ordinary equities and expire on
// the last Thursday of the calendar month.
type ListingRule struct {
	Weekday     time.Weekday
	Periodicity Periodicity
}
