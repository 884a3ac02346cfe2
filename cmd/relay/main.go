// Command relay runs the WhatsApp to Intercom relay: the Twilio and Intercom
// webhooks, the background relay dispatcher and the dashboard API.
//
// @title                       WhatsApp Intercom Relay API
// @version                     1.0
// @description                 Operator API of the WhatsApp to Intercom relay.
// @BasePath                    /api/v1
// @securityDefinitions.apikey  AdminToken
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/wa-intercom-relay/internal/app"
	"github.com/tbourn/wa-intercom-relay/internal/config"
	httpapi "github.com/tbourn/wa-intercom-relay/internal/http"
	"github.com/tbourn/wa-intercom-relay/internal/intercom"
	"github.com/tbourn/wa-intercom-relay/internal/observability"
	"github.com/tbourn/wa-intercom-relay/internal/repo"
	"github.com/tbourn/wa-intercom-relay/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	envDir   = flag.String("env", ".", "Directory holding .env and .env.local")
	migrate  = flag.Bool("migrate", true, "Run schema migrations on startup")
	showVers = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVers {
		_, _ = os.Stdout.WriteString(version + "\n")
		return
	}

	config.LoadEnvFiles(*envDir)
	cfg := config.MustLoad()

	sysutil.SetupLogger(sysutil.LoggerOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: cfg.OTEL.ServiceName,
		Env:     cfg.Env,
	})
	gin.SetMode(cfg.GinMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	info := observability.BuildInfo{
		Version: sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version),
		Env:     cfg.Env,
	}
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, info)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}

	dsn := cfg.Database.Path
	if cfg.Database.Driver == repo.DriverPostgres {
		dsn = cfg.Database.URL
	}
	db, err := repo.Open(cfg.Database.Driver, dsn)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("database open failed")
	}
	if *migrate {
		if err := repo.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("database migration failed")
		}
	}

	client := intercom.New(intercom.Options{
		BaseURL:    cfg.Intercom.BaseURL,
		Token:      cfg.Intercom.AccessToken,
		APIVersion: cfg.Intercom.APIVersion,
		Timeout:    cfg.Intercom.Timeout,
	})
	if !client.HasToken() {
		log.Warn().Msg("INTERCOM_ACCESS_TOKEN not set; relays will fail with auth_invalid")
	}
	if cfg.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN not set; dashboard API is unauthenticated")
	}

	relay := app.New(ctx, cfg, db, client)

	report, err := relay.Dispatcher.Recover(ctx)
	if err != nil {
		log.Error().Err(err).Msg("relay job recovery failed")
	} else {
		log.Info().
			Int("resubmitted", report.Resubmitted).
			Int("abandoned", report.Abandoned).
			Int("completed", report.Completed).
			Int("released", report.Released).
			Msg("relay jobs recovered")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, relay.HandlerDeps(), cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", info.Version).Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server failed")
	}

	// Drain on a deadline of its own; ctx stays live until the pool has stopped.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown incomplete")
	}
	// Webhooks are drained; queued relays finish before the pool stops.
	relay.Close()
	cancel()

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("relay stopped")
}
