package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/pmansara/opendrive/internal/broker"
	"github.com/pmansara/opendrive/internal/config"
	"github.com/pmansara/opendrive/internal/dashboard"
	"github.com/pmansara/opendrive/internal/executor"
	"github.com/pmansara/opendrive/internal/instruments"
	"github.com/pmansara/opendrive/internal/marketdata"
	"github.com/pmansara/opendrive/internal/mock"
	"github.com/pmansara/opendrive/internal/models"
	"github.com/pmansara/opendrive/internal/monitor"
	"github.com/pmansara/opendrive/internal/retry"
	"github.com/pmansara/opendrive/internal/scanner"
	"github.com/pmansara/opendrive/internal/storage"
	"github.com/pmansara/opendrive/internal/util"
)

// paperBalance is the starting cash for paper trading.
const paperBalance = 1_000_000

type Bot struct {
	config     *config.Config
	broker     broker.Broker
	resolver   *instruments.Resolver
	batcher    *marketdata.QuoteBatcher
	prevDay    *marketdata.PreviousDayResolver
	scorer     *scanner.Scorer
	planner    *executor.Planner
	supervisor *monitor.Supervisor
	storage    storage.Interface
	logger     *log.Logger
	stop       chan struct{}

	// Underlyings already bought this process; never re-entered.
	traded map[string]struct{}
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Optional .env for ${SMARTAPI_KEY} style expansion in the config file.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stdout, "[BOT] ", log.LstdFlags)

	logger.Printf("Starting open-drive scanner in %s mode", cfg.Environment.Mode)
	if cfg.IsPaperTrading() {
		logger.Println("PAPER TRADING MODE - no real money at risk")
	} else {
		logger.Println("LIVE TRADING MODE - real money at risk!")
		logger.Println("Waiting 10 seconds to confirm...")
		time.Sleep(10 * time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bot, err := newBot(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize bot: %v", err)
	}

	var dashSrv *dashboard.Server
	if cfg.Dashboard.Enabled {
		dashSrv = startDashboard(cfg, bot)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := dashSrv.Shutdown(shutdownCtx); err != nil {
				logger.Printf("Dashboard shutdown: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("Shutdown signal received, stopping bot...")
		close(bot.stop)
		bot.supervisor.Shutdown()
		cancel()
	}()

	if err := bot.Run(ctx); err != nil {
		logger.Fatalf("Bot error: %v", err)
	}

	logger.Println("Bot stopped successfully")
}

func newBot(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Bot, error) {
	var underlying broker.Broker
	if cfg.IsPaperTrading() {
		underlying = mock.NewBroker(cfg.Universe.Symbols, cfg.Execution.Expiry, paperBalance)
	} else {
		var opts []broker.Option
		if cfg.Broker.BaseURL != "" {
			opts = append(opts, broker.WithBaseURL(cfg.Broker.BaseURL))
		}
		if cfg.Broker.ScripMasterURL != "" {
			opts = append(opts, broker.WithScripMasterURL(cfg.Broker.ScripMasterURL))
		}
		opts = append(opts, broker.WithLogger(logger))
		underlying = broker.NewSmartAPIClient(cfg.Broker.APIKey, cfg.Broker.AccessToken, opts...)
	}
	b := broker.NewCircuitBreakerBroker(underlying)

	logger.Println("Loading scrip master...")
	resolver, err := instruments.NewResolver(ctx, b, logger)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	supervisor := monitor.NewSupervisor(b, cfg.Monitor.StopLossPct, cfg.Monitor.PollInterval.Std(),
		func(pos models.Position) {
			if err := store.RecordClose(pos); err != nil {
				logger.Printf("Recording closed position %s: %v", pos.ID, err)
			}
		}, logger)

	orders := retry.NewClient(b, logger)
	planner := executor.NewPlanner(resolver, b, orders, cfg.Execution.OrderPause.Std(),
		cfg.Execution.ProductType, cfg.Execution.Variety, util.RealSleeper{}, logger)

	return &Bot{
		config:     cfg,
		broker:     b,
		resolver:   resolver,
		batcher:    marketdata.NewQuoteBatcher(b, cfg.Scan.BatchSize, cfg.Scan.BatchPause.Std(), util.RealSleeper{}, logger),
		prevDay:    marketdata.NewPreviousDayResolver(b, util.RealClock{}, logger),
		scorer:     scanner.NewScorer(cfg.Scan.TopN, logger),
		planner:    planner,
		supervisor: supervisor,
		storage:    store,
		logger:     logger,
		stop:       make(chan struct{}),
		traded:     make(map[string]struct{}),
	}, nil
}

func startDashboard(cfg *config.Config, bot *Bot) *dashboard.Server {
	lr := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		lr.SetLevel(lvl)
	}

	srv := dashboard.NewServer(
		dashboard.Config{Port: cfg.Dashboard.Port, AuthToken: cfg.Dashboard.AuthToken},
		bot.storage, bot.broker, bot.supervisor, lr)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lr.WithError(err).Error("Dashboard server stopped")
		}
	}()
	return srv
}

// Run executes scan cycles until stopped, then waits for the trailing-stop
// monitors to drain.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Println("Verifying broker connection...")
	balance, err := b.broker.GetAvailableBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	b.logger.Printf("Connected to broker. Available balance: %.2f", balance)

	// Run immediately on start.
	b.runScanCycle(ctx)

	if b.config.Scan.Interval > 0 {
		ticker := time.NewTicker(b.config.Scan.Interval.Std())
		defer ticker.Stop()

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-b.stop:
				break loop
			case <-ticker.C:
				b.runScanCycle(ctx)
			}
		}
	}

	b.logger.Println("Waiting for position monitors to finish...")
	b.supervisor.Wait()

	if err := b.storage.Save(); err != nil {
		b.logger.Printf("Final storage save: %v", err)
	}
	return nil
}
