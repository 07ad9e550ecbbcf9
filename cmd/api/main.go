package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/VishwesGopal13/Automotive-Service/internal/ai"
	"github.com/VishwesGopal13/Automotive-Service/internal/analysis"
	"github.com/VishwesGopal13/Automotive-Service/internal/assignment"
	"github.com/VishwesGopal13/Automotive-Service/internal/config"
	"github.com/VishwesGopal13/Automotive-Service/internal/db"
	httpserver "github.com/VishwesGopal13/Automotive-Service/internal/http"
	"github.com/VishwesGopal13/Automotive-Service/internal/invoice"
	"github.com/VishwesGopal13/Automotive-Service/internal/logger"
	"github.com/VishwesGopal13/Automotive-Service/internal/metrics"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
	"github.com/VishwesGopal13/Automotive-Service/internal/mq"
	"github.com/VishwesGopal13/Automotive-Service/internal/repository"
	"github.com/VishwesGopal13/Automotive-Service/internal/service"
	"github.com/VishwesGopal13/Automotive-Service/internal/validation"
	"github.com/VishwesGopal13/Automotive-Service/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	defaults := models.RateCard{
		Currency:         cfg.Currency,
		HourlyRate:       cfg.LaborRate,
		DefaultPartPrice: cfg.DefaultPartPrice,
		TaxRate:          cfg.TaxRate,
	}
	seed, err := repository.LoadCatalogSeed(cfg.CatalogSeedFile, defaults)
	if err != nil {
		log.Fatal("load catalog", "path", cfg.CatalogSeedFile, "error", err)
	}
	store := openStore(ctx, cfg, seed, defaults, log)

	m := metrics.NewMetrics("autoservice", prometheus.DefaultRegisterer)
	limiter := rate.NewLimiter(rate.Limit(cfg.AIRatePerSec), cfg.AIRateBurst)
	caller := ai.NewCaller(ai.Policy{
		Timeout:     cfg.AICallTimeout,
		MaxAttempts: cfg.AIMaxAttempts,
		Backoff:     cfg.AIBackoff,
	}, limiter, m, log)
	classifier, assessor := aiProvider(ctx, cfg, log)

	engine := validation.NewEngine(validation.Options{Tolerance: cfg.TimeTolerance})
	publisher := eventPublisher(cfg, log)
	orch := service.NewOrchestrator(
		store,
		analysis.NewAnalyzer(classifier, caller, log),
		assignment.NewPlanner(),
		validation.NewWorkValidator(engine, assessor, caller, log),
		invoice.NewGenerator(invoiceNumbers(ctx, cfg, store, log), engine.Tolerance()),
		publisher,
		m,
		log,
	)
	apiServer := httpserver.NewServer(orch, prometheus.DefaultGatherer, cfg.CORSAllowedOrigins, log)

	if cfg.SweeperEnabled {
		sweeper := worker.NewAssignmentSweeper(orch, cfg.SweeperSchedule, cfg.SweeperConcurrency, log)
		go func() {
			if err := sweeper.Run(ctx); err != nil {
				log.Error("assignment sweeper stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPPort,
		Handler:           otelhttp.NewHandler(apiServer.Engine, "jobcard-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", "addr", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	if err := publisher.Close(); err != nil {
		log.Warn("close event publisher", "error", err)
	}
	log.Info("bye")
}

func openStore(ctx context.Context, cfg config.Config, seed repository.CatalogSeed, defaults models.RateCard, log logger.Logger) repository.Store {
	if cfg.DatabaseURL == "memory" {
		log.Info("using in-memory store")
		return repository.NewMemoryStore(seed)
	}
	database, err := db.New(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("connect database", "error", err)
	}
	if err := db.Migrate(database); err != nil {
		log.Fatal("auto migrate", "error", err)
	}
	store := repository.NewGormStore(database, defaults)
	if err := store.Seed(ctx, seed); err != nil {
		log.Fatal("seed catalog", "error", err)
	}
	return store
}

func aiProvider(ctx context.Context, cfg config.Config, log logger.Logger) (ai.Classifier, ai.WorkAssessor) {
	switch cfg.AIProvider {
	case "http":
		client := ai.NewModelServiceClient(cfg.AIBaseURL)
		log.Info("using model service", "url", cfg.AIBaseURL)
		return client, client
	case "gemini":
		client, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal("create gemini client", "error", err)
		}
		log.Info("using gemini", "model", cfg.GeminiModel)
		return client, client
	default:
		log.Info("using heuristic classifier")
		return ai.NewHeuristicClassifier(), nil
	}
}

func eventPublisher(cfg config.Config, log logger.Logger) mq.Publisher {
	switch cfg.EventsTransport {
	case "rabbitmq":
		p, err := mq.NewRabbitPublisher(cfg.MQURL, cfg.MQJobCardExchange, log)
		if err != nil {
			log.Warn("rabbitmq unavailable, continuing without events", "error", err)
			return mq.NopPublisher{}
		}
		return p
	case "nats":
		p, err := mq.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			log.Warn("nats unavailable, continuing without events", "error", err)
			return mq.NopPublisher{}
		}
		return p
	default:
		return mq.NopPublisher{}
	}
}

func invoiceNumbers(ctx context.Context, cfg config.Config, store repository.Store, log logger.Logger) invoice.NumberSource {
	if cfg.RedisURL == "" {
		if seq, ok := store.(invoice.Sequencer); ok {
			log.Info("invoice numbers from database sequence", "prefix", cfg.InvoicePrefix)
			return invoice.NewSequenceNumberSource(seq, cfg.InvoicePrefix)
		}
		log.Warn("REDIS_URL not set, invoice numbers are process local")
		return invoice.NewMemoryNumberSource(cfg.InvoicePrefix)
	}
	src, err := invoice.NewRedisNumberSource(cfg.RedisURL, cfg.InvoicePrefix)
	if err != nil {
		log.Fatal("redis invoice sequence", "error", err)
	}
	if err := src.Ping(ctx); err != nil {
		log.Fatal("redis ping", "error", err)
	}
	return src
}

func init() {
	if mode := os.Getenv("GIN_MODE"); mode == "" {
		gin.SetMode(gin.ReleaseMode)
	}
}
