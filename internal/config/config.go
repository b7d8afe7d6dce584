package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/arjunm/nse_option_engine/internal/domain"
)

type Config struct {
	Broker struct {
		Mode        string `yaml:"mode"` // "paper" or "live"
		BaseURL     string `yaml:"base_url"`
		APIKey      string `yaml:"api_key"`
		AccessToken string `yaml:"access_token"`
	} `yaml:"broker"`

	MarketData struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"market_data"`

	Worker struct {
		IntervalSec       int     `yaml:"interval_sec"`
		IdleIntervalSec   int     `yaml:"idle_interval_sec"`
		RequestTimeoutSec int     `yaml:"request_timeout_sec"`
		MaxConcurrent     int     `yaml:"max_concurrent"`
		RoundTripCost     float64 `yaml:"round_trip_cost"`
		ATRPeriod         int     `yaml:"atr_period"`
		MarketOpen        string  `yaml:"market_open"`
		MarketClose       string  `yaml:"market_close"`
		Timezone          string  `yaml:"timezone"`
	} `yaml:"worker"`

	AutoStop struct {
		WeeklyPct        float64 `yaml:"weekly_pct"`
		MonthlyPct       float64 `yaml:"monthly_pct"`
		FloorPct         float64 `yaml:"floor_pct"`
		EquityPct        float64 `yaml:"equity_pct"`
		WeeklyWindowDays int     `yaml:"weekly_window_days"`
	} `yaml:"auto_stop"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`

	Metrics struct {
		Port int `yaml:"port"`
	} `yaml:"metrics"`

	HolidaysFile     string `yaml:"holidays_file"`
	ListingRulesFile string `yaml:"listing_rules_file"`
}

// Load reads the yaml config and overlays broker credentials from the
// environment (a .env file is honored when present). Credentials never live
// in the yaml file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	_ = godotenv.Load()
	if v := os.Getenv("BROKER_API_KEY"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("BROKER_ACCESS_TOKEN"); v != "" {
		cfg.Broker.AccessToken = v
	}
	return &cfg, nil
}

type holidayFile struct {
	Holidays []string `yaml:"holidays"`
}

// LoadHolidays reads the exchange holiday table. The table is data, not
// logic: updating it for a new year is a config change, never a release.
func LoadHolidays(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var hf holidayFile
	if err := yaml.Unmarshal(raw, &hf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return hf.Holidays, nil
}

type listingRuleEntry struct {
	Weekday     string `yaml:"weekday"`
	Periodicity string `yaml:"periodicity"`
}

type listingRulesFile struct {
	Indices  map[string]listingRuleEntry `yaml:"indices"`
	LotSizes map[string]int              `yaml:"lot_sizes"`
}

var weekdays = map[string]time.Weekday{
	"SUNDAY": time.Sunday, "MONDAY": time.Monday, "TUESDAY": time.Tuesday,
	"WEDNESDAY": time.Wednesday, "THURSDAY": time.Thursday,
	"FRIDAY": time.Friday, "SATURDAY": time.Saturday,
}

// LoadListingRules reads the per-underlying expiry schedule and lot sizes.
func LoadListingRules(path string) (map[string]domain.ListingRule, map[string]int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var lf listingRulesFile
	if err := yaml.Unmarshal(raw, &lf); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	rules := make(map[string]domain.ListingRule, len(lf.Indices))
	for sym, entry := range lf.Indices {
		wd, ok := weekdays[strings.ToUpper(entry.Weekday)]
		if !ok {
			return nil, nil, fmt.Errorf("%s: unknown weekday %q for %s", path, entry.Weekday, sym)
		}
		var per domain.Periodicity
		switch strings.ToLower(entry.Periodicity) {
		case string(domain.PeriodicityWeekly):
			per = domain.PeriodicityWeekly
		case string(domain.PeriodicityMonthly):
			per = domain.PeriodicityMonthly
		default:
			return nil, nil, fmt.Errorf("%s: unknown periodicity %q for %s", path, entry.Periodicity, sym)
		}
		rules[sym] = domain.ListingRule{Weekday: wd, Periodicity: per}
	}
	return rules, lf.LotSizes, nil
}
