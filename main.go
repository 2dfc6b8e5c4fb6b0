package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chatrelay/internal/auth"
	"chatrelay/internal/config"
	"chatrelay/internal/db"
	"chatrelay/internal/handlers"
	"chatrelay/internal/middleware"
	"chatrelay/internal/models"
	"chatrelay/internal/observability"
	"chatrelay/internal/presence"
	"chatrelay/internal/rabbitmq"
	"chatrelay/internal/realtime"
	"chatrelay/internal/repositories"
	"chatrelay/internal/telemetry"
)

const serviceName = "chatrelay"

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing.OTLPEndpoint, serviceName, cfg.Server.Environment)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}

	database, err := db.Connect(cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))

	emitter := telemetry.NewAuditEmitter(publisher, "audit.chatrelay", serviceName, cfg.Server.Environment)

	tokens := auth.NewTokenService(cfg.Token.Secret, cfg.Token.TTL)

	userRepo := repositories.NewUserRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	broker := realtime.NewBroker(publisher)
	defer broker.Close()

	roster := presence.NewRoster(userRepo, broker, cfg.Roster.Debounce)
	roster.Start(ctx)
	defer roster.Stop()

	mirror := presence.NewMirror(userRepo, broker, roster)
	mirror.Start(ctx)
	defer mirror.Stop()

	tokenHandler := handlers.NewTokenHandler(tokens)
	userHandler := handlers.NewUserHandler(userRepo, broker, emitter)
	roomHandler := handlers.NewRoomHandler(models.DefaultRooms)
	messageHandler := handlers.NewMessageHandler(messageRepo, userRepo, broker, emitter)
	wsHandler := realtime.NewHandler(broker, tokens, cfg.Server.AllowedOrigin)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigin))
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	identity := middleware.Identity(tokens)

	router.GET("/api/ably/token", tokenHandler.Issue)
	router.POST("/api/users/register", identity, userHandler.Register)
	router.POST("/api/users/:userId/status", identity, userHandler.UpdateStatus)
	router.GET("/api/users/:userId/status", userHandler.GetStatus)
	router.GET("/api/chat-rooms", roomHandler.List)
	router.GET("/api/chat-rooms/:chatId/messages", messageHandler.List)
	router.POST("/api/chat-rooms/:chatId/messages", identity, messageHandler.Create)

	router.GET("/ws", wsHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, emitter, broker, cfg.Server.DebugRoutes)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Printf("listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}
