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

	"github.com/gin-gonic/gin"

	callsHandler "peerpractice-backend/internal/handler/http/calls"
	presenceHandler "peerpractice-backend/internal/handler/http/presence"
	pushHandler "peerpractice-backend/internal/handler/http/push"
	wsHandler "peerpractice-backend/internal/handler/ws"
	"peerpractice-backend/internal/middleware"
	"peerpractice-backend/internal/repository/cassandra"
	"peerpractice-backend/internal/repository/cockroach"
	redisRepo "peerpractice-backend/internal/repository/redis"
	"peerpractice-backend/internal/service/signaling"
	"peerpractice-backend/pkg/database"
	"peerpractice-backend/pkg/env"
	"peerpractice-backend/pkg/jwt"
	"peerpractice-backend/pkg/logger"
	"peerpractice-backend/pkg/metrics"
	"peerpractice-backend/pkg/push"
)

func main() {
	// 1. Initialize logger
	logger.InitDefault()
	defer logger.Sync()

	// 2. Setup JWT Manager (tokens are issued by the auth service; this
	// service only validates them)
	jwtSecret := env.GetStringFromFile("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		log.Fatal("JWT_SECRET must be at least 32 characters")
	}

	jwtManager := jwt.NewJWTManager(jwtSecret, 15*time.Minute)

	// 3. Connect to CockroachDB
	cockroachDB, err := database.NewCockroachDBFromEnv(context.Background())
	if err != nil {
		log.Fatalf("Failed to connect to CockroachDB: %v", err)
	}
	defer cockroachDB.Close()

	log.Println("✅ Connected to CockroachDB")

	// 4. Connect to Redis
	redisDB, err := database.NewRedisDBFromEnv()
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisDB.Close()

	log.Println("✅ Connected to Redis")

	// 5. Connect to Cassandra. The event log is auxiliary, so the
	// service comes up without it rather than refusing to start.
	var eventRepo signaling.EventStore
	cassandraDB, err := database.NewCassandraDBFromEnv()
	if err != nil {
		log.Printf("⚠️  Cassandra unavailable, event log disabled: %v", err)
	} else {
		defer cassandraDB.Close()
		eventRepo = cassandra.NewEventRepository(cassandraDB.Session)
		log.Println("✅ Connected to Cassandra")
	}

	// 6. Initialize Repositories
	presenceRepo := cockroach.NewPresenceRepository(cockroachDB.Pool)
	requestRepo := cockroach.NewCallRequestRepository(cockroachDB.Pool)
	sessionRepo := cockroach.NewCallSessionRepository(cockroachDB.Pool)
	userRepo := cockroach.NewUserRepository(cockroachDB.Pool)
	moduleRepo := cockroach.NewModuleRepository(cockroachDB.Pool)
	presenceCache := redisRepo.NewPresenceCache(redisDB.Client)
	pushTokenRepo := redisRepo.NewPushTokenRepository(redisDB.Client)

	// 7. Initialize push notifications
	pushProvider, err := push.NewProvider()
	if err != nil {
		log.Fatalf("Failed to initialize push provider: %v", err)
	}
	pushSvc := push.NewService(pushProvider, pushTokenRepo)

	// 8. Initialize Metrics
	appMetrics := metrics.NewMetrics("signaling-service")
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)

	// 9. Initialize the signaling service and connection hub
	signalingSvc := signaling.NewService(
		presenceRepo,
		presenceCache,
		requestRepo,
		sessionRepo,
		userRepo,
		moduleRepo,
		eventRepo,
		pushSvc,
		jwtManager,
		appMetrics,
	)

	hub := wsHandler.NewHub(signalingSvc, appMetrics)
	signalingSvc.SetPusher(hub)

	// 10. Start the call request sweeper
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go signaling.NewSweeper(signalingSvc).Run(sweepCtx)

	// 11. Initialize Handlers
	presenceHdlr := presenceHandler.NewHandler(signalingSvc)
	callsHdlr := callsHandler.NewHandler(signalingSvc)
	pushHdlr := pushHandler.NewHandler(pushSvc)

	// 12. Setup Gin Router
	router := gin.New() // Don't use Default() to have full control

	trustedProxies := []string{}
	if os.Getenv("ENV") == "production" {
		trustedProxies = []string{
			"https://api.peerpractice.app",
			"https://*.peerpractice.app",
		}
	} else {
		trustedProxies = []string{
			"http://localhost:3000",
			"http://localhost:8080",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:8080",
		}
	}
	router.SetTrustedProxies(trustedProxies)

	// Apply global middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(prometheusMiddleware.Handler())
	router.Use(middleware.Timeout(30 * time.Second))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "signaling-service",
			"time":    time.Now().UTC(),
		})
	})

	// Metrics endpoint (for Prometheus scraping)
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	revocationChecker := middleware.NewRedisRevocationChecker(redisDB.Client)
	rateLimiter := middleware.NewRateLimiter(redisDB.Client,
		env.GetInt("RATE_LIMIT_REQUESTS", 120), time.Minute)

	v1 := router.Group("/v1")
	v1.Use(rateLimiter.Middleware())
	{
		// WebSocket endpoint authenticates in-band via the first frame
		v1.GET("/ws/signaling", hub.ServeWS)

		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware(jwtManager, revocationChecker))
		{
			// Presence endpoints
			authed.GET("/presence/online", presenceHdlr.GetOnlineUsers)
			authed.GET("/presence/:user_id", presenceHdlr.GetStatus)

			// Call history endpoints
			authed.GET("/calls/requests", callsHdlr.ListRequests)
			authed.GET("/calls/sessions/active", callsHdlr.ListActiveSessions)
			authed.GET("/calls/events", callsHdlr.ListEvents)

			// Push token endpoints
			authed.POST("/push/tokens", pushHdlr.RegisterToken)
			authed.GET("/push/tokens", pushHdlr.GetTokens)
			authed.DELETE("/push/tokens", pushHdlr.UnregisterToken)
			authed.DELETE("/push/tokens/all", pushHdlr.UnregisterAllTokens)
		}
	}

	// 13. Start server
	port := env.GetString("PORT", "8084")
	addr := fmt.Sprintf(":%s", port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Printf("🚀 Signaling Service starting on port %s\n", port)
		log.Println("📡 WebSocket endpoint: /v1/ws/signaling")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 14. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
