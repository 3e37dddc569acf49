package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"giberno-chat-service/internal/chat"
	"giberno-chat-service/internal/config"
	"giberno-chat-service/internal/db"
	"giberno-chat-service/internal/dispatch"
	"giberno-chat-service/internal/handlers"
	"giberno-chat-service/internal/intents"
	"giberno-chat-service/internal/middleware"
	"giberno-chat-service/internal/observability"
	"giberno-chat-service/internal/push"
	"giberno-chat-service/internal/rabbitmq"
	"giberno-chat-service/internal/reaper"
	"giberno-chat-service/internal/registry"
	"giberno-chat-service/internal/repositories"
	"giberno-chat-service/internal/telemetry"
	"giberno-chat-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.AppEnv == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	logger := log.With().Str("service", cfg.AppName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer := initTracer(ctx, cfg, logger)
	defer shutdownTracer()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	rdb, err := db.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, socket directory mirror disabled")
		rdb = nil
	}

	reg := registry.New(rdb, logger)
	if err := reg.Init(ctx); err != nil {
		logger.Warn().Err(err).Msg("socket directory purge failed")
	}

	pushPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.PushExchange)
	defer pushPublisher.Close()
	logger.Info().
		Str("mode", rabbitmq.PublisherMode(pushPublisher)).
		Str("noop_reason", rabbitmq.PublisherNoopReason(pushPublisher)).
		Msg("push publisher ready")

	if eventsPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsExchange); err != nil {
		logger.Warn().Err(err).Msg("events publisher disabled")
	} else {
		observability.SetPublisher(eventsPublisher)
		defer eventsPublisher.Close()
	}

	auditEmitter := telemetry.NewAuditEmitter(pushPublisher, cfg.AuditRoutingKey, cfg.AppName, cfg.AppEnv)

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	staffRepo := repositories.NewStaffRepo(database)
	tokenRepo := repositories.NewPushTokenRepo(database)

	var resolver intents.Resolver
	if cfg.IntentResolverURL != "" {
		resolver = intents.NewHTTPResolver(cfg.IntentResolverURL)
	} else {
		logger.Warn().Msg("intent resolver not configured, chatbot turns disabled")
	}

	sender := push.NewAMQPSender(pushPublisher, logger)
	dispatcher := dispatch.New(reg, chatRepo, messageRepo, tokenRepo, sender, cfg.PushBatchSize, logger)
	service := chat.NewService(chatRepo, messageRepo, staffRepo, resolver, dispatcher, logger)

	idleReaper := reaper.New(chatRepo, service, cfg.ReaperInterval, cfg.IdleThreshold, logger)
	go idleReaper.Run(ctx)

	validator := middleware.NewJWTValidator(cfg.JWTSecret)
	wsHandler := ws.NewHandler(reg, service, validator, logger)
	chatHandler := handlers.NewChatHandler(service, chatRepo)

	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.AppName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(validator)
	router.POST("/chats", authMiddleware, chatHandler.CreateChat)
	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.GetChatMessages)
	router.POST("/chats/:chat_id/block", authMiddleware, chatHandler.BlockChat)
	router.DELETE("/chats/:chat_id/block", authMiddleware, chatHandler.UnblockChat)
	router.GET("/counters", authMiddleware, chatHandler.Counters)

	router.GET("/ws", wsHandler.Handle)

	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	server := &http.Server{
		Addr:    cfg.HTTPAddress(),
		Handler: router,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg.Shutdown(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
}

// initTracer installs the OTLP trace provider when an endpoint is configured.
// Returns a shutdown func; a noop when tracing is disabled.
func initTracer(ctx context.Context, cfg config.Config, logger zerolog.Logger) func() {
	if cfg.OTLPEndpoint == "" {
		return func() {}
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("otlp exporter init failed, tracing disabled")
		return func() {}
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.AppName),
			semconv.DeploymentEnvironment(cfg.AppEnv),
		),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("otel resource init failed")
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}
}
