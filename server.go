package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fieldops/workorder_backend/config"
	"github.com/fieldops/workorder_backend/middlewares"
	"github.com/fieldops/workorder_backend/models"
	"github.com/fieldops/workorder_backend/utils"
	"github.com/fieldops/workorder_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// newRouter builds the gin engine. Requests other than /healthz get 503 until api has an engine.
func newRouter(api *apiHandler, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if api.getEngine() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.HeaderActorId, middlewares.HeaderActorName)
	corsConfig.AddExposeHeaders("Content-Length", "x-correlation-id")
	if !corsConfig.AllowAllOrigins {
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	// Optional rate limiting.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(nil, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.ActorMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")

	templates := v1.Group("/templates")
	templates.POST("", api.createTemplate)
	templates.GET("", api.listTemplates)
	templates.GET("/:id", api.getTemplate)
	templates.PUT("/:id", api.updateTemplate)
	templates.DELETE("/:id", api.deleteTemplate)
	templates.POST("/:id/duplicate", api.duplicateTemplate)

	workOrders := v1.Group("/work-orders")
	workOrders.POST("", api.createWorkOrder)
	workOrders.GET("", api.listWorkOrders)
	workOrders.GET("/:id", api.getWorkOrder)
	workOrders.PUT("/:id", api.updateWorkOrder)
	workOrders.POST("/:id/status", api.transitionWorkOrder)
	workOrders.POST("/:id/comments", api.addComment)
	workOrders.GET("/:id/history", api.listHistory)
	workOrders.GET("/:id/costs", api.workOrderCosts)

	workOrders.GET("/:id/crew", api.listCrew)
	workOrders.POST("/:id/crew", api.addCrew)
	workOrders.DELETE("/:id/crew/:childId", api.removeCrew)
	workOrders.GET("/:id/vehicles", api.listVehicles)
	workOrders.POST("/:id/vehicles", api.addVehicle)
	workOrders.DELETE("/:id/vehicles/:childId", api.removeVehicle)
	workOrders.GET("/:id/service-lines", api.listServiceLines)
	workOrders.POST("/:id/service-lines", api.addServiceLine)
	workOrders.DELETE("/:id/service-lines/:childId", api.removeServiceLine)
	workOrders.GET("/:id/extra-costs", api.listExtraCosts)
	workOrders.POST("/:id/extra-costs", api.addExtraCost)
	workOrders.DELETE("/:id/extra-costs/:childId", api.removeExtraCost)
	workOrders.GET("/:id/photos", api.listPhotos)
	workOrders.POST("/:id/photos", api.addPhoto)
	workOrders.DELETE("/:id/photos/:childId", api.removePhoto)
	workOrders.GET("/:id/signatures", api.listSignatures)
	workOrders.POST("/:id/signatures", api.addSignature)

	workOrders.GET("/:id/checklists", api.listChecklists)
	workOrders.POST("/:id/checklists", api.createChecklist)

	checklists := v1.Group("/checklists")
	checklists.GET("/:id", api.getChecklist)
	checklists.DELETE("/:id", api.deleteChecklist)
	checklists.PUT("/:id/items/:itemId/answer", api.answerChecklistItem)

	v1.POST("/uploads", api.upload)
	v1.GET("/reports/costs.xlsx", api.costReport)

	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP; until DB/Redis are ready, app endpoints return 503.
	api := &apiHandler{}
	r := newRouter(api, logger)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	storage, err := utils.NewGCSStorage()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "storage"}).Fatal(err.Error())
	}
	sequencer := utils.NewRedisSequencer(config.GetRedisDB(), config.GetRedisLock(), models.WorkOrderSequenceSeed(db))
	api.setEngine(models.NewEngine(db, storage, sequencer))

	// Audit dispatcher publishes committed history rows.
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	var publisher *config.PubSubAuditPublisher
	if strings.TrimSpace(os.Getenv("PUBSUB_AUDIT_TOPIC")) != "" {
		publisher, err = config.NewPubSubAuditPublisher()
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "pubsub"}).Error("audit dispatcher disabled: " + err.Error())
		} else {
			dispatcher := workflow.NewAuditDispatcher(db, logger, publisher)
			dispatcher.Locker = config.GetRedisLock()
			go dispatcher.Run(dispatcherCtx)
		}
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on port ", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelDispatcher()
	if publisher != nil {
		publisher.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.WithFields(logrus.Fields{
				"path":   c.FullPath(),
				"status": c.Writer.Status(),
			}).Error(c.Errors.String())
		}
	}
}

// NewRateLimiter builds a fixed-window limiter. A nil client uses the shared redis connection.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) redisClient() *redis.Client {
	if rl.client != nil {
		return rl.client
	}
	return config.GetRedisDB()
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	client := rl.redisClient()
	if client == nil {
		c.Next()
		return
	}
	key := "ratelimit:" + c.ClientIP()

	count, err := client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count == 1 {
		if err := client.Expire(c.Request.Context(), key, rl.window).Err(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
