package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/khanmassab/flixers/internal/v1/api"
	"github.com/khanmassab/flixers/internal/v1/auth"
	"github.com/khanmassab/flixers/internal/v1/config"
	"github.com/khanmassab/flixers/internal/v1/health"
	"github.com/khanmassab/flixers/internal/v1/hub"
	"github.com/khanmassab/flixers/internal/v1/logging"
	"github.com/khanmassab/flixers/internal/v1/middleware"
	"github.com/khanmassab/flixers/internal/v1/mirror"
	"github.com/khanmassab/flixers/internal/v1/tracing"
)

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	}

	// --- Token Verifier ---
	// Empty audience or a missing secret in dev mode enables the permissive
	// verifier; production refuses to boot without a secret (config layer).
	var validator auth.TokenValidator
	if cfg.SessionSecret != "" && cfg.TokenAudience != "" {
		validator, err = auth.NewValidator(cfg.SessionSecret, cfg.TokenAudience)
		if err != nil {
			slog.Error("Failed to create token verifier", "error", err)
			os.Exit(1)
		}
		slog.Info("✅ Session token verifier initialized", "audience", cfg.TokenAudience)
	} else if cfg.SessionSecret != "" {
		validator, err = auth.NewValidator(cfg.SessionSecret, "")
		if err != nil {
			slog.Error("Failed to create token verifier", "error", err)
			os.Exit(1)
		}
		slog.Warn("⚠️ TOKEN_AUDIENCE not set - audience check disabled")
	} else {
		validator = auth.NewDevValidator()
	}

	// --- Metadata Mirror Initialization (Optional) ---
	var store *mirror.Store
	if cfg.RedisEnabled {
		store, err = mirror.NewStore(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Error("Failed to connect to Redis, running without metadata mirror", "error", err)
			store = nil // Fallback to in-memory only
		} else {
			slog.Info("✅ Redis metadata mirror initialized", "addr", cfg.RedisAddr)
		}
	} else {
		slog.Info("Running without metadata mirror (Redis disabled)")
	}

	// --- Tracing (Optional) ---
	if cfg.OTelCollectorAddr != "" {
		tp, err := tracing.InitTracer(context.Background(), "watchparty-hub", cfg.OTelCollectorAddr)
		if err != nil {
			slog.Error("Failed to initialize tracing, continuing without it", "error", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(ctx)
			}()
		}
	}

	allowedOrigins := auth.ParseAllowedOrigins(cfg.AllowedOrigins, cfg.DevelopmentMode)

	// --- Room Hub ---
	roomHub := hub.NewHub(validator, store, hub.Options{
		EmptyGrace:                cfg.RoomEmptyGrace,
		PingInterval:              cfg.PingInterval,
		ActivityTimeout:           cfg.ActivityTimeout,
		DefaultEncryptionRequired: cfg.DefaultEncryptionRequired,
		AllowedOrigins:            allowedOrigins,
		DevMode:                   cfg.DevelopmentMode,
	})

	// --- Set up Server ---
	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(otelgin.Middleware("watchparty-hub"))

	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else if cfg.DevelopmentMode {
		corsConfig.AllowAllOrigins = true
	} else {
		// Deny-all: no browser origin is accepted in production without
		// an explicit allow list.
		corsConfig.AllowOrigins = []string{"https://invalid.localhost"}
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", middleware.HeaderXCorrelationID)
	router.Use(cors.New(corsConfig))

	// Streaming endpoint
	router.GET("/ws", roomHub.ServeWs)

	// Control plane
	apiHandler := api.NewHandler(roomHub, store)
	rooms := router.Group("/rooms", middleware.RequireSession(validator))
	{
		rooms.POST("", apiHandler.CreateRoom)
		rooms.POST("/:roomId/join", apiHandler.JoinPreflight)
		rooms.GET("/:roomId/preview", apiHandler.Preview)
	}

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	healthHandler := health.NewHandler(store)
	router.GET("/health", healthHandler.Status)
	router.GET("/health/ready", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// --- Graceful Shutdown ---
	go func() {
		slog.Info("Watch-party hub starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run server", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close all active rooms and WebSocket connections gracefully
	if err := roomHub.Shutdown(ctx); err != nil {
		slog.Error("Error during hub shutdown:", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown:", "error", err)
	}

	if store != nil {
		if err := store.Close(); err != nil {
			slog.Error("Failed to close Redis connection:", "error", err)
		} else {
			slog.Info("Redis connection closed")
		}
	}

	slog.Info("Server exiting")
}
