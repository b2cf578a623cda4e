package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticket-service/config"
	"ticket-service/internal/api"
	"ticket-service/internal/broker"
	"ticket-service/internal/clock"
	"ticket-service/internal/redisclient"
	"ticket-service/internal/service"
	"ticket-service/internal/store"
	"ticket-service/internal/util"
	"ticket-service/internal/worker"
	"ticket-service/migrations"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting ticket service")

	tp, err := util.InitTracer("ticket-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	if err := migrations.Apply(context.Background(), db.GetDB()); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	log.Println("Migrations applied")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)
	clk := clock.NewSystem()

	ledger := service.NewLedger(db)
	eventService := service.NewEventService(db, ledger, redisClient, cfg.Business.DefaultCurrency)
	orderService := service.NewOrderService(db, ledger, redisClient, eventPublisher, clk)
	reservationService := service.NewReservationService(db, ledger, redisClient, clk,
		service.WithReservationTTL(time.Duration(cfg.Business.ReservationTTLMinutes)*time.Minute),
		service.WithMaxTicketsPerLine(cfg.Business.MaxTicketsPerLine),
		service.WithCurrency(cfg.Business.DefaultCurrency),
	)
	gateway := service.NewMockGateway(cfg.Business.PaymentSuccessRate)
	paymentService := service.NewPaymentService(db, orderService, gateway, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	paymentConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	paymentWorker := worker.NewPaymentWorker(paymentConsumer, paymentService)
	go func() {
		if err := paymentWorker.Start(workerCtx); err != nil {
			log.Printf("Payment worker error: %v", err)
		}
	}()

	sweepWorker := worker.NewSweepWorker(orderService, redisClient,
		time.Duration(cfg.Business.SweepIntervalSeconds)*time.Second)
	go func() {
		if err := sweepWorker.Start(workerCtx); err != nil {
			log.Printf("Sweep worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(eventService, reservationService, orderService, paymentService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	paymentWorker.Stop()

	log.Println("Server exited")
}
