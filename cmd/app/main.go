package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hivemind-works/pagepipe/internal/extract"
	"github.com/hivemind-works/pagepipe/internal/fetch"
	"github.com/hivemind-works/pagepipe/internal/notifications"
	"github.com/hivemind-works/pagepipe/internal/pipeline"
	"github.com/hivemind-works/pagepipe/internal/store"
	"github.com/hivemind-works/pagepipe/internal/validation"
)

// Config holds the service configuration loaded from the environment
type Config struct {
	Port            string // HTTP port to listen on
	Env             string // Environment (development/production)
	SentryDSN       string // Sentry DSN for error tracking
	LogLevel        string // Log level (debug, info, warn, error)
	DatabaseURL     string // Postgres connection string; empty runs in-memory
	RegularWorkers  int    // Size of the regular worker pool
	PriorityWorkers int    // Size of the priority worker pool
	SlackToken      string // Slack bot token for notifications
	SlackChannel    string // Slack channel for notifications
	SweepInterval   time.Duration
}

func main() {
	// Load .env files - .env.local takes priority for development
	godotenv.Load(".env.local", ".env")

	config := &Config{
		Port:            getEnvWithDefault("PORT", "8080"),
		Env:             getEnvWithDefault("APP_ENV", "development"),
		SentryDSN:       os.Getenv("SENTRY_DSN"),
		LogLevel:        getEnvWithDefault("LOG_LEVEL", "info"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RegularWorkers:  getEnvInt("REGULAR_WORKERS", 10),
		PriorityWorkers: getEnvInt("PRIORITY_WORKERS", 2),
		SlackToken:      os.Getenv("SLACK_BOT_TOKEN"),
		SlackChannel:    os.Getenv("SLACK_CHANNEL"),
		SweepInterval:   time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 30)) * time.Minute,
	}

	setupLogging(config)

	if config.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.SentryDSN,
			Environment: config.Env,
			TracesSampleRate: func() float64 {
				if config.Env == "production" {
					return 0.1 // 10% sampling in production
				}
				return 1.0
			}(),
			AttachStacktrace: true,
			Debug:            config.Env == "development",
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise Sentry")
		} else {
			log.Info().Str("environment", config.Env).Msg("Sentry initialised successfully")
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Warn().Msg("Sentry DSN not configured, error tracking disabled")
	}

	recordStore, cleanup := openStore(config)
	defer cleanup()

	notifier := notifications.NewService(config.SlackToken, config.SlackChannel)

	pipelineConfig := pipeline.DefaultConfig()
	pipelineConfig.RegularWorkers = config.RegularWorkers
	pipelineConfig.PriorityWorkers = config.PriorityWorkers

	p := pipeline.New(pipelineConfig, fetch.New(nil), extract.New(), recordStore, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	startSweeps(ctx, p, config.SweepInterval)

	server := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           newHandler(p),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		<-stop
		log.Info().Msg("Shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			sentry.CaptureException(err)
			log.Error().Err(err).Msg("Server forced to shutdown")
		}

		p.Stop()
		cancel()
		close(done)
	}()

	log.Info().
		Str("port", config.Port).
		Int("regular_workers", config.RegularWorkers).
		Int("priority_workers", config.PriorityWorkers).
		Msg("Starting server")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("Server error")
	}

	<-done
	log.Info().Msg("Server stopped")
}

// openStore connects to Postgres when DATABASE_URL is set, otherwise
// falls back to the in-memory store.
func openStore(config *Config) (store.Store, func()) {
	if config.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
		return store.NewMemoryStore(), func() {}
	}

	pg, err := store.InitFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	log.Info().Msg("Connected to database")
	return pg, func() {
		if err := pg.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}

// startSweeps runs periodic quality and deduplication housekeeping
func startSweeps(ctx context.Context, p *pipeline.Pipeline, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if result, err := p.RunQualitySweep(ctx, 500); err != nil {
					log.Error().Err(err).Msg("Quality sweep failed")
				} else {
					log.Info().Int("assessed", result.Assessed).Float64("average", result.AverageScore).Msg("Quality sweep finished")
				}
				if result, err := p.CleanupDuplicates(ctx, 100); err != nil {
					log.Error().Err(err).Msg("Deduplication sweep failed")
				} else if result.DuplicatesMarked > 0 {
					log.Info().Int("marked", result.DuplicatesMarked).Msg("Deduplication sweep finished")
				}
			}
		}
	}()
}

// newHandler builds the operational HTTP surface
func newHandler(p *pipeline.Pipeline) http.Handler {
	limiter := newRateLimiter()
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	mux.Handle("/metrics", p.MetricsHandler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"queues":  p.GetQueueStatus(),
			"metrics": p.GetMetrics(),
		})
	})

	mux.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !limiter.getLimiter(getClientIP(r)).Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		var req struct {
			URL             string            `json:"url"`
			JobID           string            `json:"job_id"`
			Priority        int               `json:"priority"`
			MaxRetries      int               `json:"max_retries"`
			TimeoutSeconds  int               `json:"timeout_seconds"`
			ValidationLevel string            `json:"validation_level"`
			Headers         map[string]string `json:"headers"`
			ExtractionRules map[string]string `json:"extraction_rules"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		id, err := p.Submit(&pipeline.ScrapingTask{
			TargetURL:       req.URL,
			JobID:           req.JobID,
			Priority:        req.Priority,
			MaxRetries:      req.MaxRetries,
			Timeout:         time.Duration(req.TimeoutSeconds) * time.Second,
			ValidationLevel: validation.ParseLevel(req.ValidationLevel),
			Headers:         req.Headers,
			ExtractionRules: req.ExtractionRules,
		})
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, pipeline.ErrQueueFull) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
	})

	mux.HandleFunc("/records/quality", func(w http.ResponseWriter, r *http.Request) {
		recordID := r.URL.Query().Get("id")
		if recordID == "" {
			http.Error(w, "id query parameter is required", http.StatusBadRequest)
			return
		}
		report, err := p.AssessQuality(r.Context(), recordID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// getEnvWithDefault retrieves an environment variable or returns a default value if not set
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns a default value if not set or invalid
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer in environment, using default")
		return defaultValue
	}
	return parsed
}

// setupLogging configures the logging system
func setupLogging(config *Config) {
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	// Use console writer in development
	if config.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Str("service", "pagepipe").
			Logger()
	}
}

// RateLimiter tracks a token bucket per client IP
type RateLimiter struct {
	limits   map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	capacity int
}

func newRateLimiter() *RateLimiter {
	return &RateLimiter{
		limits:   make(map[string]*rate.Limiter),
		rate:     rate.Limit(20),
		capacity: 10,
	}
}

// getLimiter returns the rate limiter for a specific IP address
func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limits[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.rate, rl.capacity)
		rl.limits[ip] = limiter
	}
	return limiter
}

// getClientIP extracts the client's IP address from a request
func getClientIP(r *http.Request) string {
	// X-Forwarded-For might contain multiple IPs, take the first one
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	return ip
}
