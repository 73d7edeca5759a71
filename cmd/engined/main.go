package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	redisDriver "github.com/redis/go-redis/v9"

	"pronet-go/internal/auth"
	"pronet-go/internal/config"
	"pronet-go/internal/engine"
	"pronet-go/internal/handlers/apiserver"
	appKafka "pronet-go/internal/kafka"
	kafkaHandlers "pronet-go/internal/kafka/handlers"
	appRedis "pronet-go/internal/redis"
	"pronet-go/internal/remote"
	"pronet-go/internal/repository"
	"pronet-go/internal/storage"
	appWS "pronet-go/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	log.Printf("%s %s starting", cfg.AppName, cfg.AppVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Session the engine acts under
	session := auth.NewSession(cfg.Auth.SessionToken)
	if !session.Valid() {
		log.Printf("warning: no valid session token configured; global search will be suppressed")
	}

	// 3. Optional warm-start profile cache
	var cache storage.ProfileCacheRepository
	if cfg.Database.Enabled {
		db, err := storage.InitDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to initialize profile cache database: %v", err)
		}
		if err := storage.AutoMigrateTables(db); err != nil {
			log.Printf("warning: profile cache migration failed: %v", err)
		}
		cache = storage.NewGormProfileCacheRepository(db)
		log.Printf("profile cache database connected")
	}

	// 4. Redis for event delivery dedup
	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	var dedup appRedis.EventDedup
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		log.Printf("warning: redis unavailable, event dedup disabled: %v", err)
	} else {
		dedup = appRedis.NewRedisEventDedup(redisClient, cfg.Redis.DedupTTL)
		log.Printf("connected to redis")
	}

	// 5. Kafka producer for the action audit trail
	producer, err := appKafka.NewEventProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("failed to create kafka producer: %v", err)
	}
	defer producer.Close()
	auditor := appKafka.NewActionAuditor(producer, cfg.Kafka.ActionAuditTopic)

	// 6. WebSocket push hub
	hub := appWS.NewHub()
	go hub.Run()

	// 7. Engine
	client := remote.NewHTTPDirectoryClient(cfg.Remote, session)
	repo := repository.NewMemoryRelationshipRepository()
	eng := engine.New(cfg.Engine, repo, client, session, engine.Options{
		Cache:    cache,
		Auditor:  auditor,
		Notifier: hub,
	})

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()

	if err := eng.WarmStart(ctx); err != nil {
		log.Printf("warning: warm start failed: %v", err)
	}
	eng.RefreshAll()

	// 8. Event channel consumer
	consumer, err := appKafka.NewEventConsumer(cfg.Kafka)
	if err != nil {
		log.Fatalf("failed to create kafka consumer: %v", err)
	}
	defer consumer.Close()
	eventLogic := kafkaHandlers.NewConnectionEventLogic(eng, dedup)
	go func() {
		topics := []string{cfg.Kafka.ConnectionEventsTopic}
		if err := consumer.Consume(ctx, topics, eventLogic.HandleConnectionEvent); err != nil {
			log.Printf("kafka consumer stopped: %v", err)
		}
	}()

	// 9. HTTP routes
	engineHandler := apiserver.NewEngineHandler(eng)
	r := mux.NewRouter()
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/views/{kind}", engineHandler.GetViewHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/views/{kind}/refresh", engineHandler.RefreshViewHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/search", engineHandler.SetSearchQueryHandler).Methods(http.MethodPut)
	apiRouter.HandleFunc("/search/global", engineHandler.GlobalSearchHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/commands", engineHandler.DispatchCommandHandler).Methods(http.MethodPost)
	apiRouter.HandleFunc("/commands/{counterpartyID}/error", engineHandler.GetActionErrorHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		appWS.ServeWS(hub, w, req)
	})

	corsHandler := apiserver.NewCORSMiddleware(cfg.APIServer.CORS)

	addr := net.JoinHostPort(cfg.APIServer.Host, cfg.APIServer.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      corsHandler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("API server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	// 10. Graceful shutdown
	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("API server shutdown error: %v", err)
	}
	if err := <-engineDone; err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("engine exited with error: %v", err)
	}
	log.Printf("shutdown complete")
}
