package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pkg/config"
	"github.com/wyfcoding/pkg/databases"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/messagequeue/kafka"
	"github.com/wyfcoding/pkg/metrics"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/marketsim/internal/simulation/application"
	"github.com/wyfcoding/marketsim/internal/simulation/domain"
	"github.com/wyfcoding/marketsim/internal/simulation/infrastructure/messaging"
	"github.com/wyfcoding/marketsim/internal/simulation/infrastructure/persistence/mysql"
	"github.com/wyfcoding/marketsim/internal/simulation/interfaces/consumer"
	httpserver "github.com/wyfcoding/marketsim/internal/simulation/interfaces/http"
)

var configPath = flag.String("config", "configs/simulation/config.toml", "config file path")

// Config extends the shared service config with the engine options of the
// default live session.
type Config struct {
	config.Config `mapstructure:",squash"`

	Simulation struct {
		Spread                  string `mapstructure:"spread"`
		InitialBalance          string `mapstructure:"initial_balance"`
		AllowSameBarExit        bool   `mapstructure:"allow_same_bar_exit"`
		AllowTakeProfitSlippage bool   `mapstructure:"allow_take_profit_slippage"`
		CloseAllPositionsAtEnd  bool   `mapstructure:"close_all_positions_at_end"`
	} `mapstructure:"simulation"`
}

func main() {
	flag.Parse()

	// 1. Config
	var cfg Config
	if err := config.Load(*configPath, &cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	logCfg := &logging.Config{
		Service:    cfg.Server.Name,
		Module:     "simulation",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
	logger := logging.NewFromConfig(*logCfg)
	slog.SetDefault(logger.Logger)

	// 3. Metrics
	metricsImpl := metrics.NewMetrics(cfg.Server.Name)
	if cfg.Metrics.Enabled {
		go metricsImpl.ExposeHttp(cfg.Metrics.Port)
	}

	// 4. Database
	db, err := databases.NewDB(cfg.Data.Database, cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	if cfg.Server.Environment == "dev" {
		if err := db.RawDB().AutoMigrate(
			&mysql.BarModel{}, &mysql.ExecutionModel{},
			&mysql.BacktestTaskModel{}, &mysql.BacktestReportModel{},
		); err != nil {
			slog.Error("failed to migrate database", "error", err)
		}
	}

	// 5. Repositories
	barRepo := mysql.NewBarRepository(db.RawDB())
	execRepo := mysql.NewExecutionRepository(db.RawDB())
	backtestRepo := mysql.NewBacktestRepository(db.RawDB())

	// 6. Kafka
	producer := kafka.NewProducer(cfg.MessageQueue.Kafka, logger, metricsImpl)

	// 7. Application
	simService := application.NewSimulationApplicationService(execRepo, logger.Logger,
		func(sessionID string, sink *domain.EventSink) {
			messaging.NewKafkaEventPublisher(sessionID, producer, logger.Logger).Attach(sink)
		})
	backtestService := application.NewBacktestApplicationService(barRepo, backtestRepo, logger.Logger)

	// Default session for bars arriving over Kafka.
	liveSession, err := simService.CreateSession(context.Background(), application.CreateSessionCommand{
		Spread:                  cfg.Simulation.Spread,
		InitialBalance:          cfg.Simulation.InitialBalance,
		AllowSameBarExit:        cfg.Simulation.AllowSameBarExit,
		AllowTakeProfitSlippage: cfg.Simulation.AllowTakeProfitSlippage,
		CloseAllPositionsAtEnd:  cfg.Simulation.CloseAllPositionsAtEnd,
	})
	if err != nil {
		slog.Error("failed to create live session", "error", err)
		os.Exit(1)
	}

	// 8. Kafka Consumer
	kafkaCfg := &cfg.MessageQueue.Kafka
	kafkaCfg.GroupID = "simulation-group"
	kafkaCfg.Topic = "market.candle"

	kafkaConsumer := kafka.NewConsumer(*kafkaCfg, logger, metricsImpl)
	barHandler := consumer.NewBarEventHandler(simService, barRepo, liveSession.SessionID, logger.Logger)
	barHandler.Subscribe(context.Background(), kafkaConsumer)

	// 9. HTTP
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	handler := httpserver.NewHandler(simService, backtestService)
	handler.RegisterRoutes(r.Group("/api"))

	// 10. Start
	g, ctx := errgroup.WithContext(context.Background())

	addr := fmt.Sprintf(":%d", cfg.Server.HTTP.Port)
	server := &http.Server{Addr: addr, Handler: r}

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down servers...")
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down...")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
	}
}
