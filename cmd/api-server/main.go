package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/api"
	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/config"
	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/db"
	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/glintt"
	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/recommend"
	redisclient "github.com/AlvaroVCastro/appointmentsv1-sub000/internal/redis"
	"github.com/AlvaroVCastro/appointmentsv1-sub000/internal/suggestion"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api-server").Logger()
	if cfg.Env == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("service", "api-server").Logger()
	}

	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("version", version).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	store := suggestion.NewPgRepository(pgPool)
	schemaCtx, cancelSchema := context.WithTimeout(rootCtx, 10*time.Second)
	err = store.EnsureSchema(schemaCtx)
	cancelSchema()
	if err != nil {
		logger.Fatal().Err(err).Msg("suggestion schema error")
	}

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Fatal().Err(err).Str("timezone", cfg.ClinicTimezone).Msg("invalid clinic timezone")
	}

	clinic := glintt.NewClient(glintt.Config{
		BaseURL:             cfg.ClinicBaseURL,
		ClientID:            cfg.ClinicClientID,
		ClientSecret:        cfg.ClinicClientSecret,
		TenantID:            cfg.ClinicTenantID,
		FacilityID:          cfg.ClinicFacilityID,
		Username:            cfg.ClinicUsername,
		FinancialEntityCode: cfg.ClinicFinancialEntity,
		ServiceCode:         cfg.ClinicServiceCode,
		MedicalActCode:      cfg.ClinicActCode,
		TokenTTL:            cfg.TokenTTL,
		Location:            loc,
	}, nil, redisclient.NewRedisTokenCache(rdb, "clinic:token"), logger)

	svc := recommend.NewService(recommend.Deps{
		Availability: clinic,
		Appointments: clinic,
		Patients:     clinic,
		Applier:      clinic,
		Store:        store,
		Rules:        cfg.Rules(),
		LookupWidth:  cfg.PatientLookupWidth,
		Logger:       logger,
	})

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutting down api-server")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
