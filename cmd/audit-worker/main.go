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
	"github.com/synaptica-ai/riskboard/pkg/common/models"
	"github.com/synaptica-ai/riskboard/pkg/gateway/middleware"
	"github.com/synaptica-ai/riskboard/pkg/gateway/routes"
	"github.com/synaptica-ai/riskboard/pkg/serving"
)

type AuditWorker struct {
	consumer *kafka.Consumer
	repo     *serving.Repository
}

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.ClosePostgres()

	worker := &AuditWorker{repo: serving.NewRepository(db)}
	if err := worker.repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate prediction logs")
	}

	worker.consumer = kafka.NewConsumer(cfg.KafkaOutcomeTopic, cfg.KafkaGroupID)
	defer worker.consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := worker.consumer.Consume(ctx, worker.processEvent); err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Fatal("Consumer error")
		}
	}()

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.HandleFunc("/health", healthCheck).Methods("GET")
	routes.NewAuditHandler(worker.repo).Register(router.PathPrefix("/api/v1").Subrouter())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.AuditPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":  cfg.ServerHost,
			"port":  cfg.AuditPort,
			"topic": cfg.KafkaOutcomeTopic,
		}).Info("Audit Worker started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Audit Worker...")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Audit Worker stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func (a *AuditWorker) processEvent(ctx context.Context, event models.Event) error {
	outcome, err := kafka.DecodeOutcome(event)
	if err != nil {
		// not ours; skip without blocking the partition
		logger.Log.WithError(err).WithField("event_id", event.ID).Warn("Skipping event")
		return nil
	}

	if err := a.repo.RecordOutcome(ctx, outcome); err != nil {
		return fmt.Errorf("failed to persist outcome: %w", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"patient_id": outcome.PatientID,
		"status":     outcome.Status,
	}).Info("Prediction outcome recorded")
	return nil
}
