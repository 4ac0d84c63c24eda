package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusride/internal/config"
	"campusride/internal/handlers/shared"
	"campusride/internal/middleware"
	"campusride/internal/repositories/mongodb"
	"campusride/internal/services"
	"campusride/internal/utils"
	"campusride/pkg/cache"
	"campusride/pkg/database"
	"campusride/pkg/logger"
	"campusride/pkg/maps"
	"campusride/pkg/push"
	"campusride/pkg/websocket"
	"campusride/routes"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(&logger.Config{
		Level:   logger.LogLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
		Output:  cfg.App.LogOutput,
		Caller:  cfg.App.Debug,
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoDB, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer mongoDB.Close()

	if cfg.App.RunMigrations {
		if err := database.NewMigrator(mongoDB.Database, appLogger).Up(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to run migrations")
		}
	}

	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisCache.Close()

	storeTimeout := cfg.Matching.StoreTimeout
	requestRepo := mongodb.NewRideRequestRepository(mongoDB.Database, storeTimeout)
	matchRepo := mongodb.NewMatchRepository(mongoDB.Database, storeTimeout)
	userRepo := mongodb.NewUserRepository(mongoDB.Database, redisCache, storeTimeout)
	chatRepo := mongodb.NewChatRepository(mongoDB.Database, storeTimeout)
	notificationRepo := mongodb.NewNotificationRepository(mongoDB.Database, storeTimeout)

	geocoder := newGeocoder(cfg.Maps, appLogger)
	fcm, apns := newPushProviders(ctx, cfg.Push, appLogger)

	hub := websocket.NewHub(appLogger.WithField("component", "websocket"))
	go hub.Run(ctx)

	deps := services.NotificationServiceDeps{
		Notifications: notificationRepo,
		Users:         userRepo,
		Realtime:      hub,
		Logger:        appLogger.WithField("component", "notifications"),
		Timeout:       cfg.Matching.NotifyTimeout,
	}
	if fcm != nil {
		deps.FCM = fcm
	}
	if apns != nil {
		deps.APNS = apns
	}
	notificationService := services.NewNotificationService(deps)

	matchDeps := services.MatchServiceDeps{
		Requests: requestRepo,
		Matches:  matchRepo,
		Users:    userRepo,
		Chat:     chatRepo,
		Notifier: notificationService,
		Locker:   redisCache,
		Logger:   appLogger.WithField("component", "matching"),
	}
	rideDeps := services.RideRequestServiceDeps{
		Requests:       requestRepo,
		Logger:         appLogger.WithField("component", "ride_requests"),
		GeocodeTimeout: cfg.Matching.GeocodeTimeout,
	}
	if geocoder != nil {
		matchDeps.Geocoder = geocoder
		rideDeps.Geocoder = geocoder
	}

	matchService := services.NewMatchService(matchDeps, services.MatchServiceConfig{
		Criteria: services.MatchCriteria{
			MaxOriginDistance:      cfg.Matching.MaxOriginDistance,
			MaxDestinationDistance: cfg.Matching.MaxDestinationDistance,
			MinMatchScore:          services.MinScore(cfg.Matching.MinMatchScore),
		},
		Pricing: services.Pricing{
			BaseFare:               cfg.Pricing.BaseFare,
			PerKmRate:              cfg.Pricing.PerKmRate,
			LargeVehicleMultiplier: cfg.Pricing.LargeVehicleMultiplier,
			LargeVehicleSeats:      cfg.Pricing.LargeVehicleSeats,
			Currency:               cfg.Pricing.Currency,
		},
		ConfirmationWindow: cfg.Matching.ConfirmationWindow,
		LockTTL:            cfg.Matching.LockTTL,
		GeocodeTimeout:     cfg.Matching.GeocodeTimeout,
	})
	rideRequestService := services.NewRideRequestService(rideDeps)

	go services.NewSweeper(matchService, cfg.Matching.SweepInterval, appLogger).Run(ctx)

	switch {
	case config.IsProduction():
		gin.SetMode(gin.ReleaseMode)
	case config.IsTest():
		gin.SetMode(gin.TestMode)
	}

	limiter := middleware.NewClientRateLimiter(cfg.Security.RateLimitPerMinute, cfg.Security.RateLimitBurst)
	go limiter.Cleanup(ctx, time.Minute)

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		appLogger.WithError(err).Warn("Invalid trusted proxies, trusting none")
		_ = router.SetTrustedProxies(nil)
	}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(appLogger.WithField("component", "http")))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins))

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimit(limiter))
	routes.SetupRideRoutes(v1, routes.Handlers{
		RideRequests:  shared.NewRideRequestHandler(rideRequestService, matchService),
		Matches:       shared.NewMatchHandler(matchService),
		Notifications: shared.NewNotificationHandler(notificationService),
	}, cfg.Security.JWTSecret)

	wsHandler := websocket.NewHandler(hub, websocket.HandlerOptions{
		ReadBufferSize:   cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:  cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		PongTimeout:      cfg.WebSocket.PongTimeout,
		AllowedOrigins:   cfg.WebSocket.AllowedOrigins,
	})
	router.GET(cfg.WebSocket.Path, middleware.AuthRequired(cfg.Security.JWTSecret), wsHandler.HandleWebSocket)

	router.NoRoute(func(c *gin.Context) {
		utils.NotFoundResponse(c, "Route")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		hctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status, code := "healthy", http.StatusOK
		checks := gin.H{"mongodb": "ok", "redis": "ok"}
		if err := mongoDB.Ping(hctx); err != nil {
			checks["mongodb"], status, code = err.Error(), "unhealthy", http.StatusServiceUnavailable
		}
		if err := redisCache.Ping(hctx); err != nil {
			checks["redis"], status, code = err.Error(), "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "version": cfg.App.Version, "checks": checks})
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Graceful shutdown failed")
	}
}

// newGeocoder picks the configured maps provider. Without credentials the
// engine runs without geocoding and falls back to coordinate strings.
func newGeocoder(cfg *config.MapsConfig, appLogger *logger.Logger) *services.MapsGeocoder {
	var provider maps.MapsProvider

	switch cfg.Provider {
	case "mapbox":
		if cfg.Mapbox.AccessToken == "" {
			appLogger.Warn("MAPBOX_ACCESS_TOKEN not set, geocoding disabled")
			return nil
		}
		provider = maps.NewMapboxProvider(cfg.Mapbox.AccessToken, cfg.Timeout)
	default:
		if cfg.GoogleMaps.APIKey == "" {
			appLogger.Warn("GOOGLE_MAPS_API_KEY not set, geocoding disabled")
			return nil
		}
		google, err := maps.NewGoogleMapsProvider(cfg.GoogleMaps.APIKey)
		if err != nil {
			appLogger.WithError(err).Warn("Failed to create Google Maps client, geocoding disabled")
			return nil
		}
		provider = google
	}

	return services.NewMapsGeocoder(provider)
}

func newPushProviders(ctx context.Context, cfg *config.PushConfig, appLogger *logger.Logger) (*push.FCMProvider, *push.APNSProvider) {
	if !cfg.Enabled {
		return nil, nil
	}

	var (
		fcm  *push.FCMProvider
		apns *push.APNSProvider
		err  error
	)
	if cfg.FCM.Credentials != "" {
		fcm, err = push.NewFCMProvider(ctx, cfg.FCM.Credentials)
		if err != nil {
			appLogger.WithError(err).Warn("Failed to initialise FCM, android and web push disabled")
			fcm = nil
		}
	}
	if cfg.APNS.KeyFile != "" {
		apns, err = push.NewAPNSProvider(cfg.APNS.KeyFile, cfg.APNS.KeyID, cfg.APNS.TeamID, cfg.APNS.BundleID, cfg.APNS.Production)
		if err != nil {
			appLogger.WithError(err).Warn("Failed to initialise APNs, ios push disabled")
			apns = nil
		}
	}
	return fcm, apns
}
