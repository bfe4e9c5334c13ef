package server

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/surveysystem/tax-api/internal/handlers"
	"github.com/surveysystem/tax-api/internal/logger"
	"github.com/surveysystem/tax-api/internal/metrics"
	"github.com/surveysystem/tax-api/internal/notify"
	"github.com/surveysystem/tax-api/internal/orders"
	"github.com/surveysystem/tax-api/internal/store"
	"github.com/surveysystem/tax-api/internal/tax"
)

// Handler Definitions
var (
	orderHandler *handlers.OrderHandler
	zoneHandler  *handlers.ZoneHandler

	zoneIndex  *tax.ZoneIndex
	orderStore orders.OrderStore
	pgStore    *store.PostgresStore
)

func InitializeHandlers() {
	ctx := context.Background()

	// Postgres when DATABASE_URL is set, in-memory otherwise.
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL != "" {
		var err error
		pgStore, err = store.Connect(ctx, dbURL)
		if err != nil {
			logger.Fatal("Unable to connect to database", zap.Error(err))
		}
		orderStore = pgStore
		logger.Info("Using Postgres order store")
	} else {
		orderStore = store.NewMemoryStore()
		logger.Info("DATABASE_URL not set, using in-memory order store")
	}

	zoneIndex = tax.NewZoneIndex()
	loadZones := zoneLoader()
	zones, err := loadZones(ctx)
	if err != nil {
		logger.Fatal("Unable to load tax zones", zap.Error(err))
	}
	if err := zoneIndex.Load(zones); err != nil {
		logger.Fatal("Tax zone set rejected", zap.Error(err))
	}

	resolver := tax.NewResolver(zoneIndex)
	calc := tax.NewCalculator()

	pipelineCfg := orders.PipelineConfig{}
	if v := os.Getenv("IMPORT_WORKERS"); v != "" {
		workers, err := strconv.Atoi(v)
		if err != nil || workers < 1 {
			logger.Fatal("IMPORT_WORKERS must be a positive integer", zap.String("value", v))
		}
		pipelineCfg.Workers = workers
	}
	pipeline := orders.NewPipeline(resolver, calc, orderStore, pipelineCfg)

	commonServices := handlers.NewCommonServices(orderStore, resolver, calc)

	// API Handler initialization
	orderHandler = handlers.NewOrderHandler(commonServices, pipeline, configureNotifiers()...)
	zoneHandler = handlers.NewZoneHandler(commonServices, zoneIndex, loadZones)
}

// zoneLoader picks the zone source: a GeoJSON feed file when
// ZONE_FEED_PATH is set, the database otherwise. The same loader backs
// the admin reload endpoint.
func zoneLoader() handlers.ZoneLoader {
	feedPath := os.Getenv("ZONE_FEED_PATH")
	if feedPath != "" {
		return func(ctx context.Context) ([]tax.Zone, error) {
			f, err := os.Open(feedPath)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			return tax.ParseFeed(f)
		}
	}
	if pgStore != nil {
		return pgStore.ListZones
	}
	logger.Fatal("Either ZONE_FEED_PATH or DATABASE_URL must be set to load tax zones")
	return nil
}

// configureNotifiers wires the optional import report channels from the
// environment. A missing variable just disables that channel.
func configureNotifiers() []handlers.Notifier {
	var notifiers []handlers.Notifier
	if apiKey := os.Getenv("RESEND_API_KEY"); apiKey != "" {
		from := os.Getenv("IMPORT_REPORT_FROM_EMAIL")
		to := os.Getenv("IMPORT_REPORT_TO_EMAIL")
		if from == "" || to == "" {
			logger.Fatal("RESEND_API_KEY is set but IMPORT_REPORT_FROM_EMAIL or IMPORT_REPORT_TO_EMAIL is missing")
		}
		notifiers = append(notifiers, notify.NewEmailNotifier(apiKey, from, to))
		logger.Info("Import report emails enabled", zap.String("to", to))
	}
	if queueURL := os.Getenv("IMPORT_REPORT_QUEUE_URL"); queueURL != "" {
		qn, err := notify.NewQueueNotifier(context.Background(), queueURL)
		if err != nil {
			logger.Fatal("Unable to create queue notifier", zap.Error(err))
		}
		notifiers = append(notifiers, qn)
		logger.Info("Import report queue enabled", zap.String("queue_url", queueURL))
	}
	return notifiers
}

func InitializeRoutes(router *gin.Engine) {
	// Initialize logger first
	logger.InitLogger()

	// Configure and apply CORS middleware
	router.Use(configureCORS())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		stats, loaded := zoneIndex.Stats()
		if !loaded {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := orderStore.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "store unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "zones": stats})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		ordersGroup := v1.Group("/orders")
		{
			ordersGroup.GET("", orderHandler.ListOrders)
			ordersGroup.POST("", orderHandler.CreateOrder)
			ordersGroup.POST("/import", orderHandler.ImportOrders)
			ordersGroup.GET("/:order_id", orderHandler.GetOrder)
			ordersGroup.POST("/:order_id/recalculate", orderHandler.RecalculateOrder)
		}

		zones := v1.Group("/zones")
		{
			zones.GET("", zoneHandler.ListZones)
			zones.POST("/reload", zoneHandler.ReloadZones)
		}
	}
}

// configureCORS returns a configured CORS middleware
func configureCORS() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()

	// Get allowed origins from environment variable
	originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	if originsEnv == "" {
		// Default to localhost if not set
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	} else {
		// Split and trim the origins
		origins := strings.Split(originsEnv, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		corsConfig.AllowOrigins = origins
	}

	// Get allowed methods from environment variable
	methodsEnv := os.Getenv("CORS_ALLOWED_METHODS")
	if methodsEnv == "" {
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	} else {
		methods := strings.Split(methodsEnv, ",")
		for i, method := range methods {
			methods[i] = strings.TrimSpace(method)
		}
		corsConfig.AllowMethods = methods
	}

	// Get allowed headers from environment variable
	headersEnv := os.Getenv("CORS_ALLOWED_HEADERS")
	if headersEnv == "" {
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	} else {
		headers := strings.Split(headersEnv, ",")
		for i, header := range headers {
			headers[i] = strings.TrimSpace(header)
		}
		corsConfig.AllowHeaders = headers
	}

	// Set credentials allowed
	corsConfig.AllowCredentials = os.Getenv("CORS_ALLOW_CREDENTIALS") == "true"

	return cors.New(corsConfig)
}
