// Package server initializes and runs the application server. It wires the
// database, migrations, the biometric pipeline, and the HTTP API, and
// handles graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dsantanna/biolock/internal/biometric"
	"github.com/dsantanna/biolock/internal/logging"
	"github.com/dsantanna/biolock/internal/server/auth"
	"github.com/dsantanna/biolock/internal/server/config"
	"github.com/dsantanna/biolock/internal/server/httpapi"
	"github.com/dsantanna/biolock/internal/server/imagestore"
	"github.com/dsantanna/biolock/internal/server/repositories/repomanager"
	"github.com/dsantanna/biolock/internal/server/services"
)

const (
	shutdownTimeout = 10 * time.Second

	// sessionSweepInterval paces the background purge of expired session
	// rows; the lazy purge on refresh only catches tokens presented again.
	sessionSweepInterval = time.Hour
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	authn   *services.AuthService
	handler http.Handler
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	extractor, err := newExtractor(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	codec, err := biometric.NewCodec([]byte(cfg.TemplateSecret), cfg.TemplateValidityDuration)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("codec init error: %w", err)
	}

	issuer := auth.NewIssuer([]byte(cfg.AccessTokenSecret), []byte(cfg.RefreshTokenSecret),
		cfg.AccessTokenValidityDuration, cfg.RefreshTokenValidityDuration)

	var archive imagestore.Archive
	if cfg.S3Bucket != "" {
		archive = imagestore.NewS3Archive(imagestore.S3Options{
			RootUser:     cfg.S3RootUser,
			RootPassword: cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
	}

	matcher := biometric.NewMatcher(cfg.RatioThreshold)

	enrollment := services.NewEnrollmentService(db, rm, extractor, codec, cfg, archive, logger)
	authn := services.NewAuthService(db, rm, extractor, matcher, codec, issuer, cfg, logger)
	users := services.NewUserService(db, rm, logger)

	handler := httpapi.NewHandler(enrollment, authn, users, issuer, logger).Routes()

	return &App{config: cfg, logger: logger, db: db, authn: authn, handler: handler}, nil
}

func newExtractor(cfg *config.Config) (biometric.Extractor, error) {
	switch cfg.Extractor {
	case "histogram":
		return biometric.NewHistogramExtractor(), nil
	case "sift":
		return biometric.NewSIFTExtractor(cfg.SIFTPython, cfg.SIFTScript), nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", cfg.Extractor)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startSessionSweeper(ctx context.Context) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.authn.PurgeExpiredSessions(ctx); err != nil {
				app.logger.Error(ctx, "session sweep failed", "error", err.Error())
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	go app.startSessionSweeper(ctx)

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.handler,
	}

	go func() {
		app.logger.Info(ctx, "starting http server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, "http server error", "error", err.Error())
			cancelFunc()
		}
	}()

	<-ctx.Done()

	app.logger.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "shutdown error", "error", err.Error())
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(shutdownCtx, "db close error", "error", err.Error())
	}
}
