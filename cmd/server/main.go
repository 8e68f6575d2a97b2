package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/finworks/refflow/internal/audit"
	"github.com/finworks/refflow/internal/config"
	"github.com/finworks/refflow/internal/db"
	"github.com/finworks/refflow/internal/export"
	"github.com/finworks/refflow/internal/httpapi"
	"github.com/finworks/refflow/internal/notify"
	"github.com/finworks/refflow/internal/policy"
	"github.com/finworks/refflow/internal/repository"
	"github.com/finworks/refflow/internal/workflow"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	demo := flag.Bool("demo", false, "run with in-memory storage, no database required")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var (
		store repository.EntityStore
		sink  repository.AuditSink
	)
	if *demo {
		log.Println("Running in demo mode with in-memory storage")
		store = repository.NewMemoryEntityStore()
		sink = repository.NewMemoryAuditSink()
	} else {
		if err := db.RunMigrations(cfg.Database, "./migrations"); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer conn.Close()
		store = repository.NewPostgresEntityStore(conn.Pool)
		sink = repository.NewPostgresAuditSink(conn.Pool)
	}

	relay, err := audit.NewRelay(sink, cfg.Audit.SpoolPath, audit.WithAlert(8, func(pending int, err error) {
		log.Printf("[ALERT] audit redelivery exhausted retry bound with %d entries pending: %v", pending, err)
	}))
	if err != nil {
		log.Fatalf("Failed to open audit spool: %v", err)
	}
	relay.Start(ctx)

	validator := policy.NewValidator(policy.Config{
		EnforceSoD:    cfg.Policy.EnforceSoD,
		AllowOverride: cfg.Policy.AllowOverride,
	})

	engineOpts := []workflow.Option{}
	if cfg.Kafka.Broker != "" {
		notifier := notify.NewKafkaNotifier(cfg.Kafka.Broker, cfg.Kafka.Topic)
		defer notifier.Close()
		engineOpts = append(engineOpts, workflow.WithNotifier(notifier))
	} else {
		engineOpts = append(engineOpts, workflow.WithNotifier(notify.LogNotifier{}))
	}

	engine := workflow.NewEngine(store, relay, validator, engineOpts...)
	queue := workflow.NewApprovalQueue(store)

	exportService := export.NewService(sink)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	mux := http.NewServeMux()
	mux.Handle("/audit/export", export.NewHTTPHandler(exportService))
	mux.Handle("/", httpapi.NewHandler(engine, queue, sink))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(httpapi.LoggingMiddleware(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting workflow server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	cancel()
	relay.Wait()
	log.Println("Server exited")
}
