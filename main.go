package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"rtc-service/internal/auth"
	"rtc-service/internal/calls"
	"rtc-service/internal/db"
	"rtc-service/internal/delivery"
	"rtc-service/internal/handlers"
	"rtc-service/internal/middleware"
	"rtc-service/internal/observability"
	"rtc-service/internal/queue"
	"rtc-service/internal/rabbitmq"
	"rtc-service/internal/repositories"
	"rtc-service/internal/telemetry"
	"rtc-service/internal/ws"
)

const serviceName = "rtc-service"

func main() {
	ctx := context.Background()

	shutdownTracer := telemetry.InitTracer(ctx, serviceName, getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""))
	defer func() {
		if err := shutdownTracer(ctx); err != nil {
			log.Printf("tracer shutdown: %v", err)
		}
	}()

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	callRepo := repositories.NewCallRepo(database)

	verifier := auth.NewVerifier([]byte(getEnv("JWT_SECRET", "dev-secret")))

	amqpURL := getEnv("AMQP_URL", "")

	deliveryQueue := queue.NewDeliveryQueue(amqpURL, getEnv("DELIVERY_EXCHANGE", "rtc.delivery"))
	defer deliveryQueue.Close()

	auditPublisher := rabbitmq.NewPublisher(amqpURL, getEnv("AUDIT_EXCHANGE", "platform.audit"))
	defer auditPublisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(auditPublisher))
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, "audit."+serviceName, serviceName, getEnv("ENVIRONMENT", "dev"))

	if amqpURL != "" {
		wsEvents, err := observability.NewAMQPPublisher(amqpURL, getEnv("WS_EVENTS_EXCHANGE", "ws.events"))
		if err != nil {
			log.Printf("ws events publisher disabled: %v", err)
		} else {
			observability.SetPublisher(wsEvents)
			defer wsEvents.Close()
		}
	}

	hub := ws.NewHub()

	ringTimeout := calls.DefaultRingTimeout
	if raw := getEnv("RING_TIMEOUT", ""); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			log.Printf("invalid RING_TIMEOUT %q, using %s", raw, ringTimeout)
		} else {
			ringTimeout = parsed
		}
	}
	engine := calls.NewEngine(callRepo, userRepo, hub, ringTimeout)

	pipeline := delivery.NewPipeline(chatRepo, messageRepo, hub, deliveryQueue)

	chatHandler := handlers.NewChatHandler(chatRepo, messageRepo, pipeline, auditEmitter)
	callHandler := handlers.NewCallHandler(callRepo)
	wsHandler := ws.NewHandler(hub, verifier, userRepo, chatRepo, pipeline, engine)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.POST("/chats/start", authMiddleware, chatHandler.StartChat)
	router.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.GetChatMessages)
	router.POST("/chats/:chat_id/messages", authMiddleware, chatHandler.PostChatMessage)
	router.POST("/chats/:chat_id/read", authMiddleware, chatHandler.MarkChatRead)

	router.GET("/calls", authMiddleware, callHandler.ListCalls)
	router.GET("/calls/link/:token", authMiddleware, callHandler.ResolveCallLink)

	router.GET("/ws", wsHandler.Handle)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, auditEmitter, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "8086")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
