// Package server initializes and runs the authentication service. It wires
// the config, database pool, credential store and HTTP endpoint together and
// handles graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/heimdallr/internal/logging"
	"github.com/dmitrijs2005/heimdallr/internal/secrets"
	"github.com/dmitrijs2005/heimdallr/internal/server/config"
	"github.com/dmitrijs2005/heimdallr/internal/server/credstore"
	"github.com/dmitrijs2005/heimdallr/internal/server/httpapi"
	"github.com/dmitrijs2005/heimdallr/internal/server/repositories/repomanager"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	repos  repomanager.RepositoryManager
	store  *credstore.Store
}

func NewApp(cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	sp := secrets.NewProvider(cfg.SecretEnvVar)
	// Fail at startup rather than on the first request.
	if _, err := sp.Resolve(); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	// One pinned connection per store worker plus one spare for migrations.
	db.SetMaxOpenConns(cfg.DatabasePoolSize + 1)

	rm := repomanager.NewPostgresRepositoryManager()

	store := credstore.NewStore(db, rm, sp, logger, cfg.DatabasePoolSize, cfg.TokenValidityDuration)

	return &App{config: cfg, logger: logger, db: db, repos: rm, store: store}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	h := httpapi.NewHandler(app.store, app.logger)
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, h.Routes(), app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.repos.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	if err := app.store.Start(ctx); err != nil {
		return fmt.Errorf("credential store error: %w", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	// Drain the worker pool before closing the pool connections.
	app.store.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}

	app.logger.Info(ctx, "App stopped")
	return nil
}
