// Package server initializes and runs the ledger node daemon.
// It opens the state store, runs migrations, starts the block producer,
// the gRPC ledger service and the Prometheus metrics endpoint, and handles
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/node"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/node/pgstate"
	"github.com/dmitrijs2005/bucketkeeper/internal/ledger/pallet"
	"github.com/dmitrijs2005/bucketkeeper/internal/logging"
	"github.com/dmitrijs2005/bucketkeeper/internal/server/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	store    node.Store
	closer   func() error
	registry *prometheus.Registry
	producer *node.Producer
	server   *node.Server
}

// openStore returns the configured state store. An empty DSN selects the
// in-memory store.
var openStore = func(ctx context.Context, c *config.Config, l logging.Logger) (node.Store, func() error, error) {
	if c.DatabaseDSN == "" {
		l.Warn(ctx, "database DSN is empty, ledger state is kept in memory")
		return node.NewMemStore(), func() error { return nil }, nil
	}

	s, err := pgstate.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}
	if err := s.RunMigrations(ctx); err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("db migrations error: %w", err)
	}
	return s, s.Close, nil
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if c.RootAccount == "" {
		logger.Warn(ctx, "root account is not set, governance calls will be rejected")
	}

	store, closer, err := openStore(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := node.NewMetrics(reg)

	producer := node.NewProducer(store, pallet.New(c.RootAccount), c.BlockInterval, metrics, logger)
	srv := node.NewServer(c.EndpointAddrGRPC, store, producer, metrics, logger)

	return &App{
		config:   c,
		logger:   logger,
		store:    store,
		closer:   closer,
		registry: reg,
		producer: producer,
		server:   srv,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))
	return mux
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.MetricsAddr,
		Handler:           app.metricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping metrics server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a termination signal arrives or a server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.producer.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	if app.config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startMetricsServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	if err := app.closer(); err != nil {
		app.logger.Error(ctx, "closing store", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
