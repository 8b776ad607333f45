package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vigil-sec/vigil/internal/agents"
	"github.com/vigil-sec/vigil/internal/api/middleware"
	"github.com/vigil-sec/vigil/internal/api/routes"
	"github.com/vigil-sec/vigil/internal/captcha"
	"github.com/vigil-sec/vigil/internal/config"
	"github.com/vigil-sec/vigil/internal/database"
	"github.com/vigil-sec/vigil/internal/history"
	"github.com/vigil-sec/vigil/internal/llm"
	"github.com/vigil-sec/vigil/internal/logger"
	"github.com/vigil-sec/vigil/internal/metrics"
	"github.com/vigil-sec/vigil/internal/notify"
	"github.com/vigil-sec/vigil/internal/server"
	"github.com/vigil-sec/vigil/internal/store"
	"github.com/vigil-sec/vigil/internal/telemetry"
	"github.com/vigil-sec/vigil/internal/version"
)

const outcomeSweepWindow = 2 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Logging with rotation, to stdout and file
	logDir := filepath.Join(filepath.Dir(cfg.DatabasePath), "logs")
	_ = os.MkdirAll(logDir, 0o755)
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "vigil.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	logger.Init(cfg.Environment != "production", io.MultiWriter(os.Stdout, rotator))

	logger.Log().Infof("starting %s %s", version.Name, version.Full())

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Log().Fatalf("open database: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Mitigation state store: Redis when reachable, in-process otherwise.
	var st store.Store
	redisStore := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisStore.Ping(ctx); err != nil {
		logger.Log().Warnf("redis unreachable at %s, using in-process store: %v", cfg.RedisAddr, err)
		st = store.NewLocalStore()
	} else {
		st = redisStore
	}

	var hist history.Store
	chroma := history.NewChromaStore(cfg.ChromaURL)
	if _, err := chroma.Stats(ctx); err != nil {
		logger.Log().Warnf("history sidecar unreachable at %s, using in-process store: %v", cfg.ChromaURL, err)
		hist = history.NewMemoryStore()
	} else {
		hist = chroma
	}

	notifier := notify.NewNotifier(cfg.AlertURLs)
	sink := telemetry.NewSink(db)
	tool := telemetry.NewQueryTool(sink)

	classifierClient := llm.NewOpenAIClient(llm.Config{BaseURL: cfg.LLMBaseURL, APIKey: cfg.LLMAPIKey, Model: cfg.ClassifierModel})
	specialistClient := llm.NewOpenAIClient(llm.Config{BaseURL: cfg.LLMBaseURL, APIKey: cfg.LLMAPIKey, Model: cfg.SpecialistModel})

	var policy agents.DecisionPolicy = agents.EffectivenessPolicy{}
	if cfg.CalibrationPolicy == "llm" {
		policy = agents.NewLLMPolicy(llm.NewOpenAIClient(llm.Config{
			BaseURL: cfg.LLMBaseURL, APIKey: cfg.LLMAPIKey, Model: cfg.CalibrationModel,
		}))
	}

	calibrator := agents.NewCalibrator(hist, st, db, notifier, policy, cfg.EnforcementTTL)
	orchestrator := agents.NewOrchestrator(classifierClient, calibrator,
		agents.NewAuthSpecialist(specialistClient, tool),
		agents.NewSearchSpecialist(specialistClient, tool),
		agents.NewGeneralSpecialist(specialistClient, tool),
	)

	batcher := telemetry.NewBatcher(cfg.QueueCapacity, cfg.BatchSize, cfg.BatchInterval, orchestrator.HandleBatch)
	batcher.SetPollInterval(cfg.PollInterval)
	go batcher.Run(ctx)

	// Outcome feedback loop
	sweeper := agents.NewSweeper(db, sink, hist, outcomeSweepWindow)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 15m", func() {
		if err := sweeper.Sweep(ctx); err != nil {
			logger.Log().Errorf("outcome sweep: %v", err)
		}
	}); err != nil {
		logger.Log().Fatalf("schedule outcome sweep: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	verifier := captcha.NewHTTPVerifier(cfg.CaptchaVerifyURL, cfg.CaptchaSecret)
	interceptor := middleware.NewInterceptor(&cfg, st, verifier, batcher, sink)

	srv, err := server.New(db, &cfg, routes.Deps{
		Store:       st,
		Interceptor: interceptor,
		Sink:        sink,
		Registry:    registry,
	})
	if err != nil {
		logger.Log().Fatalf("build server: %v", err)
	}

	logger.Log().Infof("listening on :%s", cfg.HTTPPort)
	if err := srv.Run(ctx); err != nil {
		logger.Log().Fatalf("server error: %v", err)
	}
	logger.Log().Info("shutdown complete")
}
