package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yellyhaze23/prms-forecast/internal/adapters/legacy"
	"github.com/yellyhaze23/prms-forecast/internal/aggregate"
	"github.com/yellyhaze23/prms-forecast/internal/epi"
	"github.com/yellyhaze23/prms-forecast/internal/forecast"
	"github.com/yellyhaze23/prms-forecast/internal/shared/auth"
	"github.com/yellyhaze23/prms-forecast/internal/shared/config"
	"github.com/yellyhaze23/prms-forecast/internal/shared/database"
	"github.com/yellyhaze23/prms-forecast/internal/shared/events"
	"github.com/yellyhaze23/prms-forecast/internal/shared/metrics"
	secmiddleware "github.com/yellyhaze23/prms-forecast/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config   *config.Config
	DB       *database.DB
	Bus      *events.Bus
	Importer *legacy.Importer
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}

	// Initialize database (optional - skip if not available)
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Printf("Warning: Database not available: %v\n", err)
		fmt.Println("Running in limited mode without database...")
	} else {
		app.DB = db
		defer db.Close()

		// Run migrations
		if err := database.Migrate(ctx, db.Pool); err != nil {
			fmt.Printf("Warning: Migration failed: %v\n", err)
		}
	}

	// Initialize event bus with KurrentDB (optional - skip if not available)
	bus, err := events.NewBus(ctx, cfg.KurrentDB)
	if err != nil {
		fmt.Printf("Warning: KurrentDB not available: %v\n", err)
		fmt.Println("Running without event streaming...")
	} else {
		app.Bus = bus
		defer bus.Close()
		fmt.Println("KurrentDB Event Bus initialized")
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.InputSanitizer)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	// API info
	r.Get("/", infoHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
		}

		if app.DB != nil {
			// Aggregate module: diagnosis event hooks and case aggregates
			aggRepo := aggregate.NewRepository(app.DB.Pool)
			aggService := aggregate.NewService(aggRepo, app.Bus)
			aggHandler := aggregate.NewHandler(aggService, aggRepo)
			r.Mount("/", aggHandler.Routes())

			// Simulation module: SEIR projections seeded from live counts
			simulator := epi.NewSimulator(epi.DefaultRegistry(), aggRepo, cfg.Epi)
			simHandler := epi.NewHandler(simulator, cfg.Forecast.DefaultPopulation)
			r.Mount("/simulations", simHandler.Routes())

			// Forecast module: external ARIMA forecaster behind cache and ledger
			forecaster := forecast.NewProcessForecaster(cfg.Forecaster)
			ledger := forecast.NewRepository(app.DB.Pool)
			cache := forecast.NewPGCache(app.DB.Pool, cfg.Forecast.CacheTTL)
			forecastService := forecast.NewService(aggRepo, forecaster, ledger, cache, app.Bus, cfg.Forecast)
			forecastHandler := forecast.NewHandler(forecastService, ledger)

			// The forecast route can spawn subprocesses, so it is throttled
			r.Route("/forecasts", func(r chi.Router) {
				r.Use(secmiddleware.RateLimiter(cfg.Forecaster.RateLimitRPS, cfg.Forecaster.RateLimitBurst))
				r.Mount("/", forecastHandler.Routes())
			})

			// Legacy backfill importer (for facilities migrating off the old system)
			if cfg.Legacy.Enabled {
				importer := legacy.NewImporter(cfg.Legacy, app.DB.Pool, aggService)
				if err := importer.Start(ctx); err != nil {
					fmt.Printf("Warning: Legacy importer failed to start: %v\n", err)
				} else {
					app.Importer = importer
					fmt.Println("Legacy importer started")
				}
			}
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if app.Importer != nil {
			if err := app.Importer.Stop(ctx); err != nil {
				fmt.Printf("Legacy importer shutdown error: %v\n", err)
			}
		}

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("PRMS Epidemiological Forecasting Engine")
	fmt.Println("============================================")
	fmt.Printf("Environment:    %s\n", cfg.Server.Env)
	fmt.Printf("Server:         http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:            http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:         http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("Forecaster:     %s %s\n", cfg.Forecaster.Command, cfg.Forecaster.ScriptPath)
	fmt.Printf("KurrentDB:      %s:%d\n", cfg.KurrentDB.Host, cfg.KurrentDB.Port)
	fmt.Printf("Legacy import:  %v\n", cfg.Legacy.Enabled)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "PRMS Epidemiological Forecasting Engine",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		if app.Importer != nil {
			if err := app.Importer.Health(r.Context()); err != nil {
				checks["legacy_import"] = "not ready: " + err.Error()
			} else {
				checks["legacy_import"] = "ready"
			}
		} else {
			checks["legacy_import"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
