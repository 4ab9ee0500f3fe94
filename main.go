package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"circles-service/internal/config"
	"circles-service/internal/db"
	"circles-service/internal/handlers"
	"circles-service/internal/middleware"
	"circles-service/internal/observability"
	"circles-service/internal/rabbitmq"
	"circles-service/internal/repositories"
	"circles-service/internal/security"
	"circles-service/internal/storage"
	"circles-service/internal/telemetry"
	"circles-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), "circles-service", cfg.Environment, cfg.OTLPAddr)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	if mode, reason := rabbitmq.Describe(auditPublisher); mode == rabbitmq.ModeNoop {
		log.Printf("audit publisher mode=%s reason=%q", mode, reason)
	}

	if wsPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
		log.Printf("ws event publisher disabled: %v", err)
	} else {
		observability.SetPublisher(wsPublisher)
		defer wsPublisher.Close()
	}

	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.circles", "circles-service", cfg.Environment)

	store, err := storage.NewStore(cfg.StorageDir)
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}
	signer := storage.NewSigner(cfg.StorageSecret, cfg.PublicBaseURL)

	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	reactionRepo := repositories.NewReactionRepo(database)
	readRepo := repositories.NewReadRepo(database)
	profileRepo := repositories.NewProfileRepo(database)
	friendRepo := repositories.NewFriendRepo(database)
	ratingRepo := repositories.NewRatingRepo(database)

	verifier := security.NewTokenVerifier(cfg.JWTSecret)
	hub := ws.NewHub()

	groupHandler := handlers.NewGroupHandler(groupRepo, hub, audit)
	messageHandler := handlers.NewMessageHandler(groupRepo, messageRepo, reactionRepo, readRepo, hub, audit)
	profileHandler := handlers.NewProfileHandler(profileRepo, groupRepo, hub)
	socialHandler := handlers.NewSocialHandler(friendRepo, ratingRepo, audit)
	storageHandler := handlers.NewStorageHandler(store, signer)
	groupWS := ws.NewGroupWebSocketHandler(hub, groupRepo, verifier)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware("circles-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(verifier)
	writeLimit := middleware.RateLimitMiddleware(5, 10)

	router.GET("/groups", authMiddleware, groupHandler.ListGroups)
	router.GET("/groups/:group_id/members", authMiddleware, groupHandler.ListMembers)
	router.GET("/groups/:group_id/messages", authMiddleware, messageHandler.GetMessages)
	router.POST("/groups/:group_id/messages", authMiddleware, writeLimit, messageHandler.PostMessage)
	router.DELETE("/groups/:group_id/messages/:message_id", authMiddleware, messageHandler.DeleteMessage)
	router.GET("/groups/:group_id/reactions", authMiddleware, messageHandler.GetReactions)
	router.GET("/groups/:group_id/reads", authMiddleware, messageHandler.GetReads)

	router.GET("/profiles", authMiddleware, profileHandler.GetProfiles)
	router.PUT("/profiles/me", authMiddleware, profileHandler.UpdateMyProfile)

	router.POST("/rpc/join-group", authMiddleware, writeLimit, groupHandler.JoinGroup)
	router.POST("/rpc/toggle-reaction", authMiddleware, writeLimit, messageHandler.ToggleReaction)
	router.POST("/rpc/advance-read-cursor", authMiddleware, writeLimit, messageHandler.AdvanceReadCursor)
	router.POST("/rpc/send-friend-request", authMiddleware, writeLimit, socialHandler.SendFriendRequest)
	router.POST("/rpc/respond-friend-request", authMiddleware, writeLimit, socialHandler.RespondFriendRequest)
	router.GET("/friends/requests", authMiddleware, socialHandler.ListFriendRequests)
	router.POST("/rpc/submit-rating", authMiddleware, writeLimit, socialHandler.SubmitRating)

	router.POST("/storage/:bucket/upload", authMiddleware, writeLimit, storageHandler.Upload)
	router.POST("/storage/:bucket/sign", authMiddleware, storageHandler.Sign)
	router.GET("/storage/:bucket/*path", storageHandler.Download)

	router.GET("/ws/groups/:group_id", groupWS.Handle)

	handlers.RegisterDebugRoutes(router, audit, cfg.Debug)

	log.Printf("circles-service listening on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
