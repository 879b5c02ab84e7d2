package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"chess-gateway/internal/auth"
	"chess-gateway/internal/bus"
	"chess-gateway/internal/config"
	"chess-gateway/internal/db"
	"chess-gateway/internal/handlers"
	"chess-gateway/internal/hub"
	"chess-gateway/internal/ipc"
	"chess-gateway/internal/logger"
	"chess-gateway/internal/middleware"
	"chess-gateway/internal/opening"
)

func main() {
	cfg, err := config.Parse(os.Args[0], os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	log, err := logger.New(cfg.Development)
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting gateway",
		zap.String("bind", cfg.Bind),
		zap.Int("max_connections", cfg.MaxConnections),
		zap.Int("opening_book", opening.Size()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Session store.
	mongodb, err := db.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatal("mongodb connect failed", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongodb.Close(ctx)
	}()

	// One broker connection per pub/sub direction.
	pubClient, err := bus.NewRedis(cfg.RedisURI)
	if err != nil {
		log.Fatal("redis connect failed", zap.Error(err))
	}
	subClient, err := bus.NewRedis(cfg.RedisURI)
	if err != nil {
		log.Fatal("redis connect failed", zap.Error(err))
	}

	queue := bus.NewQueue[string]()
	limiter := middleware.NewRateLimiter(cfg.RateLimiterCredits)
	defer limiter.Stop()

	h := hub.New(log, queue, registry)
	h.SetOnTick(limiter.Sweep)

	sessions := auth.NewWorker(log, mongodb.Sessions(), h.Authenticate)
	go sessions.Run()
	defer sessions.Stop()

	egress := bus.NewEgress(log, pubClient, queue, registry)
	go egress.Run()

	// Let the backend clear any state left by a previous process before
	// the first socket can connect.
	queue.Push(ipc.DisconnectAll{}.Encode())

	ingress := bus.NewIngress(log, subClient, h.Received, registry)
	go ingress.Run()

	socket := handlers.NewSocketHandler(log, h, limiter, sessions, cfg.MaxConnections)

	router := mux.NewRouter()
	router.Handle("/health", handlers.NewHealthHandler(h)).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
	router.PathPrefix("/").HandlerFunc(socket.ServeWS)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:    cfg.Bind,
		Handler: corsHandler.Handler(router),
		// No read or write timeouts: sockets are long-lived and have their
		// own idle policy.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("bind", cfg.Bind))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}
	queue.Close()

	log.Info("stopped")
}
