/*
Ride dispatch service.

Multi-tenant ride-hailing backend: wave-based driver dispatch, fare pricing
with surge, city/geofence resolution, driver shift/runtime state, and the
trip lifecycle from request through OTP-gated pickup to completion.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ridehail/dispatch/internal/config"
	"github.com/ridehail/dispatch/internal/cityresolver"
	"github.com/ridehail/dispatch/internal/dispatch"
	"github.com/ridehail/dispatch/internal/driverstate"
	"github.com/ridehail/dispatch/internal/fare"
	"github.com/ridehail/dispatch/internal/geoindex"
	"github.com/ridehail/dispatch/internal/handler"
	"github.com/ridehail/dispatch/internal/locationingest"
	"github.com/ridehail/dispatch/internal/notify"
	"github.com/ridehail/dispatch/internal/storage"
	"github.com/ridehail/dispatch/internal/trip"
)

const (
	headerContentType   = "Content-Type"
	contentTypeJSON     = "application/json"
	headerAccept        = "Accept"
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"
	headerUserID        = "X-User-Id"
	headerTenantID      = "X-Tenant-Id"
	headerUserRole      = "X-User-Role"
)

// App holds every wired dependency, mirroring the teacher's single App
// struct shared across initializeApp/cleanup/health handlers.
type App struct {
	cfg         config.Config
	store       *storage.Store
	redisClient *goredis.Client
	geoIndex    *geoindex.Index
	bus         *notify.Bus
	rideHandler *handler.RideHandler
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg := config.Load()

	app, err := initializeApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application")
	}
	defer app.cleanup()

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Compress(5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{headerAccept, headerAuthorization, headerContentType, headerRequestID, headerUserID, headerTenantID, headerUserRole},
		ExposedHeaders:   []string{headerRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(httprate.LimitByIP(100, time.Minute))

	r.Get("/health/live", app.healthLive)
	r.Get("/health/ready", app.healthReady)
	r.Get("/health", app.healthDetailed)

	r.Group(func(r chi.Router) {
		r.Use(handler.IdentityMiddleware)
		app.rideHandler.Routes(r)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("environment", cfg.Env).Msg("ride service starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited properly")
}

func initializeApp(cfg config.Config) (*App, error) {
	app := &App{cfg: cfg}

	ctx := context.Background()

	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if _, err := store.Exec(ctx, storage.Schema); err != nil {
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	app.store = store
	log.Info().Msg("database connection established")

	redisOpts, err := goredis.ParseURL("redis://" + cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("redis: parse addr: %w", err)
	}
	redisClient := goredis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	app.redisClient = redisClient
	log.Info().Msg("redis connection established")

	app.geoIndex = geoindex.New(redisClient, cfg.LocationTTL)
	app.bus = notify.New(cfg.KafkaBrokers)

	locker := driverstate.NewRedisLocker(redisClient)
	driverEngine := driverstate.New(store, locker)

	cityResolver := cityresolver.New(store)
	fareEngine := fare.New(store, cityResolver)

	dispatchCfg := dispatch.Config{
		BatchSize: cfg.BatchSize, MaxWaves: cfg.MaxWaves,
		InitialRadiusKM: cfg.InitialRadiusKM, RadiusIncrementKM: cfg.RadiusIncrementKM,
		MaxRadiusKM: cfg.MaxRadiusKM, OfferTimeout: cfg.OfferTimeout,
	}
	dispatchEngine := dispatch.New(store, app.geoIndex, notify.DispatchNotifier{Bus: app.bus}, driverEngine, dispatchCfg)

	tripCfg := trip.Config{OTPLength: cfg.PickupOTPLength, OTPTTL: cfg.PickupOTPTTL, MaxOTPAttempts: cfg.MaxOTPAttempts}
	lifecycle := trip.New(store, cityResolver, fareEngine, dispatchEngine, driverEngine, notify.TripNotifier{Bus: app.bus}, tripCfg)

	ingest := locationingest.New(store, app.geoIndex, store)

	app.rideHandler = handler.NewRideHandler(
		lifecycle, store, dispatchEngine, store, cfg.OfferTimeout,
		fareEngine, cityResolver, driverEngine, ingest,
	)

	return app, nil
}

func (a *App) cleanup() {
	if a.store != nil {
		a.store.Close()
		log.Info().Msg("database connection closed")
	}
	if a.redisClient != nil {
		a.redisClient.Close()
		log.Info().Msg("redis connection closed")
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			log.Warn().Err(err).Msg("notification bus close failed")
		}
	}
}

func (a *App) healthLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}

func (a *App) healthReady(w http.ResponseWriter, r *http.Request) {
	if a.store != nil {
		if err := a.store.Ping(r.Context()); err != nil {
			w.Header().Set(headerContentType, contentTypeJSON)
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"not ready","error":"database unavailable"}`)
			return
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Ping(r.Context()).Err(); err != nil {
			w.Header().Set(headerContentType, contentTypeJSON)
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"not ready","error":"redis unavailable"}`)
			return
		}
	}
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ready","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}

func (a *App) healthDetailed(w http.ResponseWriter, r *http.Request) {
	dbStatus, redisStatus := "connected", "connected"
	if a.store != nil {
		if err := a.store.Ping(r.Context()); err != nil {
			dbStatus = "disconnected"
		}
	} else {
		dbStatus = "not configured"
	}
	if a.redisClient != nil {
		if err := a.redisClient.Ping(r.Context()).Err(); err != nil {
			redisStatus = "disconnected"
		}
	} else {
		redisStatus = "not configured"
	}
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"status": "healthy",
		"timestamp": "%s",
		"service": "ride-service",
		"environment": "%s",
		"dependencies": {
			"database": "%s",
			"redis": "%s"
		}
	}`, time.Now().UTC().Format(time.RFC3339), a.cfg.Env, dbStatus, redisStatus)
}
