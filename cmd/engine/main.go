package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arjunm/nse_option_engine/internal/config"
	"github.com/arjunm/nse_option_engine/internal/domain"
	"github.com/arjunm/nse_option_engine/internal/infrastructure/broker"
	"github.com/arjunm/nse_option_engine/internal/infrastructure/logger"
	"github.com/arjunm/nse_option_engine/internal/infrastructure/marketdata"
	"github.com/arjunm/nse_option_engine/internal/infrastructure/storage"
	"github.com/arjunm/nse_option_engine/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "engine.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	holidays, err := config.LoadHolidays(cfg.HolidaysFile)
	if err != nil {
		log.Fatal("Failed to load holidays", zap.Error(err))
	}
	rules, lotSizes, err := config.LoadListingRules(cfg.ListingRulesFile)
	if err != nil {
		log.Fatal("Failed to load listing rules", zap.Error(err))
	}

	cal := usecase.NewCalendar(holidays, log)
	resolver := usecase.NewContractResolver(cal, rules, lotSizes)

	nse := marketdata.NewNSEClient(cfg.MarketData.RESTEndpoint, "", log)

	var stream *marketdata.TickerStream
	if cfg.MarketData.WSEndpoint != "" {
		stream = marketdata.NewTickerStream(cfg.MarketData.WSEndpoint, log)
		defer stream.Close()
	}
	quotes := marketdata.NewQuoteFeed(stream, nse)

	var gateway domain.OrderGateway
	switch cfg.Broker.Mode {
	case "live":
		gateway = broker.NewKiteGateway(cfg.Broker.BaseURL, cfg.Broker.APIKey, cfg.Broker.AccessToken, log)
		log.Info("Broker gateway: live")
	default:
		gateway = broker.NewPaperGateway(log)
		log.Info("Broker gateway: paper")
	}

	loc := time.UTC
	if cfg.Worker.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Worker.Timezone)
		if err != nil {
			log.Fatal("Invalid timezone", zap.String("tz", cfg.Worker.Timezone), zap.Error(err))
		}
	}

	autoStop := usecase.DefaultAutoStopPolicy()
	if cfg.AutoStop.WeeklyPct > 0 {
		autoStop.WeeklyPct = cfg.AutoStop.WeeklyPct
	}
	if cfg.AutoStop.MonthlyPct > 0 {
		autoStop.MonthlyPct = cfg.AutoStop.MonthlyPct
	}
	if cfg.AutoStop.FloorPct > 0 {
		autoStop.FloorPct = cfg.AutoStop.FloorPct
	}
	if cfg.AutoStop.EquityPct > 0 {
		autoStop.EquityPct = cfg.AutoStop.EquityPct
	}
	if cfg.AutoStop.WeeklyWindowDays > 0 {
		autoStop.WeeklyWindowDays = cfg.AutoStop.WeeklyWindowDays
	}

	worker := usecase.NewReconcileWorker(store, nse, quotes, gateway, resolver, autoStop, usecase.WorkerConfig{
		Interval:       time.Duration(cfg.Worker.IntervalSec) * time.Second,
		IdleInterval:   time.Duration(cfg.Worker.IdleIntervalSec) * time.Second,
		RequestTimeout: time.Duration(cfg.Worker.RequestTimeoutSec) * time.Second,
		MaxConcurrent:  cfg.Worker.MaxConcurrent,
		RoundTripCost:  cfg.Worker.RoundTripCost,
		ATRPeriod:      cfg.Worker.ATRPeriod,
		MarketOpen:     cfg.Worker.MarketOpen,
		MarketClose:    cfg.Worker.MarketClose,
		Location:       loc,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Keep the tick stream subscribed to whatever is currently open.
	if stream != nil {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()

			for {
				positions, err := store.LoadOpenPositions(ctx)
				if err != nil {
					log.Error("Failed to list open positions for subscription", zap.Error(err))
				} else {
					var identifiers []string
					for _, p := range positions {
						if p.Identifier != "" {
							identifiers = append(identifiers, p.Identifier)
						}
					}
					if len(identifiers) > 0 {
						if err := stream.Subscribe(identifiers); err != nil {
							log.Warn("Ticker subscribe failed", zap.Error(err))
						}
					}
				}

				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	if cfg.Metrics.Port > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			log.Info("Metrics server listening", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	go worker.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()
}
