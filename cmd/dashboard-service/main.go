package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/riskboard/pkg/common/config"
	"github.com/synaptica-ai/riskboard/pkg/common/database"
	"github.com/synaptica-ai/riskboard/pkg/common/kafka"
	"github.com/synaptica-ai/riskboard/pkg/common/logger"
	"github.com/synaptica-ai/riskboard/pkg/gateway/middleware"
	"github.com/synaptica-ai/riskboard/pkg/gateway/routes"
	"github.com/synaptica-ai/riskboard/pkg/observability/metrics"
	"github.com/synaptica-ai/riskboard/pkg/patients"
	"github.com/synaptica-ai/riskboard/pkg/prediction"
	"github.com/synaptica-ai/riskboard/pkg/prediction/progress"
	"github.com/synaptica-ai/riskboard/pkg/prediction/session"
	"github.com/synaptica-ai/riskboard/pkg/storage"
)

func main() {
	logger.Init()
	cfg := config.Load()

	repo, err := patients.Load(cfg.PatientStorePath)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load patient store")
	}
	logger.Log.WithField("patients", len(repo.List())).Info("Patient store loaded")

	client := prediction.NewFromConfig(cfg)

	redisClient := database.GetRedis(cfg)
	defer database.CloseRedis()
	cache := storage.NewResultCache(redisClient, cfg.ResultCacheTTL)

	producer := kafka.NewProducer(cfg.KafkaOutcomeTopic)
	defer producer.Close()

	sessions := session.NewManager(session.Config{
		Patients:    repo,
		Client:      client,
		Progress:    progress.NewSimulator(cfg.ProgressTick),
		Recorders:   []session.OutcomeRecorder{cache, producer},
		IdleTimeout: cfg.SessionIdleTimeout,
		MaxSessions: cfg.MaxSessions,
	})
	defer sessions.CloseAll()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sessions.Run(sweepCtx, cfg.SessionSweepInterval)

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS)
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	routes.NewCohortHandler(repo).Register(apiRouter)
	routes.NewSessionHandler(sessions, cache).Register(apiRouter)
	routes.NewModelHandler(client).Register(apiRouter)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":       cfg.ServerHost,
			"port":       cfg.ServerPort,
			"prediction": cfg.PredictionBaseURL,
		}).Info("Dashboard Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Dashboard Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Dashboard Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
