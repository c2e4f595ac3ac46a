package httpiface

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	chatapp "github.com/nomadictuba2005/claude-code-api/application/chat"
	domain "github.com/nomadictuba2005/claude-code-api/domain/chat"
	"github.com/nomadictuba2005/claude-code-api/domain/persistence"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	ServiceName = "claude-code-api"

	defaultRequestListLimit = 50
	maxRequestListLimit     = 500

	headerRequestID      = "X-Request-ID"
	headerUsageEstimated = "X-Usage-Estimated"
)

// ServiceVersion is reported by / and /health; set at build time with -ldflags
var ServiceVersion = "1.0.0"

type ChatService interface {
	Chat(ctx context.Context, req *domain.Request) (*domain.Response, error)
	Models() []domain.Model
}

// ExecutableProbe reports whether the external CLI can be run
type ExecutableProbe interface {
	Check(ctx context.Context) domain.ExecutableStatus
}

// CircuitReporter exposes per-model circuit breaker states
type CircuitReporter interface {
	GetCircuitStates() map[string]string
}

type Router struct {
	service     ChatService
	corsOrigins []string
	probe       ExecutableProbe
	circuits    CircuitReporter
	requestRepo persistence.RequestRepository
	metricsRepo persistence.MetricsRepository
	dbManager   persistence.DatabaseManager
	processor   persistence.EventProcessor
}

func NewRouter(service ChatService, corsOrigins []string, probe ExecutableProbe) *Router {
	return &Router{
		service:     service,
		corsOrigins: corsOrigins,
		probe:       probe,
	}
}

// NewRouterWithPersistence creates a router that also serves the request log
func NewRouterWithPersistence(
	service ChatService,
	corsOrigins []string,
	probe ExecutableProbe,
	requestRepo persistence.RequestRepository,
	metricsRepo persistence.MetricsRepository,
	dbManager persistence.DatabaseManager,
	processor persistence.EventProcessor,
) *Router {
	return &Router{
		service:     service,
		corsOrigins: corsOrigins,
		probe:       probe,
		requestRepo: requestRepo,
		metricsRepo: metricsRepo,
		dbManager:   dbManager,
		processor:   processor,
	}
}

// WithCircuitReporter adds circuit breaker states to /health
func (r *Router) WithCircuitReporter(reporter CircuitReporter) *Router {
	r.circuits = reporter
	return r
}

func (r *Router) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(r.corsMiddleware())

	router.GET("/", r.root)

	// Health endpoints
	router.GET("/live", r.liveness)
	router.GET("/ready", r.readiness)
	router.GET("/health", r.healthCheck)

	api := router.Group("/v1")
	api.Use(r.requestIDMiddleware())
	api.POST("/chat/completions", r.chatCompletions)
	api.GET("/models", r.listModels)

	// Request log endpoints (only available if repositories are configured)
	if r.metricsRepo != nil && r.requestRepo != nil {
		api.GET("/metrics", r.getAggregatedMetrics)
		api.GET("/requests", r.listRequests)
		api.GET("/requests/:request-id", r.getRequest)
	}

	return router
}

func (r *Router) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqOrigin := c.GetHeader("Origin")
		if reqOrigin == "" {
			c.Header("Access-Control-Allow-Origin", strings.Join(r.corsOrigins, ", "))
		} else {
			allowOrigin := ""
			if len(r.corsOrigins) == 1 && r.corsOrigins[0] == "*" {
				allowOrigin = "*"
			} else {
				for _, allowed := range r.corsOrigins {
					if allowed == reqOrigin {
						allowOrigin = reqOrigin
						break
					}
				}
			}
			if allowOrigin != "" {
				c.Header("Access-Control-Allow-Origin", allowOrigin)
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-Usage-Estimated")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestIDMiddleware assigns every API request a UUID. A client-supplied
// X-Request-ID is reused when it is a UUID and echoed separately otherwise.
func (r *Router) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientRequestID := c.GetHeader(headerRequestID)

		requestUUID, err := uuid.Parse(clientRequestID)
		if err != nil {
			requestUUID = uuid.New()
			if clientRequestID != "" {
				c.Header("X-Client-Request-ID", clientRequestID)
			}
		}

		c.Header(headerRequestID, requestUUID.String())
		c.Set("request_uuid", requestUUID.String())

		ctx := chatapp.WithRequestIDs(c.Request.Context(), chatapp.RequestIDs{
			ID:       requestUUID,
			ClientID: clientRequestID,
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func (r *Router) root(c *gin.Context) {
	endpoints := gin.H{
		"chat_completions": "/v1/chat/completions",
		"models":           "/v1/models",
		"health":           "/health",
	}
	if r.metricsRepo != nil && r.requestRepo != nil {
		endpoints["metrics"] = "/v1/metrics"
		endpoints["requests"] = "/v1/requests"
		endpoints["request"] = "/v1/requests/:request-id"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Claude Code API - OpenAI Compatible",
		"version":   ServiceVersion,
		"endpoints": endpoints,
	})
}

// dependencyChecks probes the CLI and, when configured, the request log
func (r *Router) dependencyChecks(ctx context.Context) (gin.H, bool) {
	checks := gin.H{}
	ok := true

	if r.probe != nil {
		status := r.probe.Check(ctx)
		checks["cli"] = status
		if !status.OK {
			ok = false
		}
	}

	if r.dbManager != nil {
		if err := r.dbManager.Health(ctx); err != nil {
			checks["db"] = gin.H{"ok": false, "error": err.Error()}
			ok = false
		} else {
			checks["db"] = gin.H{"ok": true}
		}
	}

	if r.processor != nil {
		ph := r.processor.Health()
		checks["processor"] = ph
		if !ph.IsRunning {
			ok = false
		}
	}

	return checks, ok
}

func (r *Router) healthCheck(c *gin.Context) {
	checks, overallOK := r.dependencyChecks(c.Request.Context())
	checks["api"] = "ok"

	if r.circuits != nil {
		checks["circuit_breakers"] = r.circuits.GetCircuitStates()
	}

	status := "healthy"
	code := http.StatusOK
	if !overallOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   ServiceName,
		"version":   ServiceVersion,
		"checks":    checks,
	})
}

// liveness probe: process is up and serving HTTP
func (r *Router) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// readiness probe: the CLI runs and the request log (if any) is reachable
func (r *Router) readiness(c *gin.Context) {
	checks, ready := r.dependencyChecks(c.Request.Context())

	status := "ready"
	code := http.StatusOK
	if !ready {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (r *Router) chatCompletions(c *gin.Context) {
	var req domain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Failed to bind request")
		writeError(c, fmt.Errorf("%w: Invalid request format: %v", domain.ErrMalformedRequest, err))
		return
	}

	requestID := c.GetString("request_uuid")
	resp, err := r.service.Chat(c.Request.Context(), &req)
	if err != nil {
		entry := logrus.WithError(err).WithFields(logrus.Fields{
			"request_id": requestID,
			"model":      req.Model,
			"error_kind": domain.KindOf(err),
		})
		if StatusFor(err) >= http.StatusInternalServerError {
			entry.Error("Failed to process chat completion")
		} else {
			entry.Warn("Rejected chat completion request")
		}
		writeError(c, err)
		return
	}

	c.Header(headerUsageEstimated, "true")
	c.JSON(http.StatusOK, resp)
}

func (r *Router) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, domain.ModelList{
		Object: domain.ObjectList,
		Data:   r.service.Models(),
	})
}

// getAggregatedMetrics summarizes the request log
func (r *Router) getAggregatedMetrics(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "1000")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid limit parameter", Type: string(domain.KindMalformedRequest)})
		return
	}

	metrics, err := r.metricsRepo.GetAggregatedMetrics(c.Request.Context(), limit)
	if err != nil {
		logrus.WithError(err).Error("Failed to get aggregated metrics")
		c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "Failed to retrieve aggregated metrics", Type: string(domain.KindInternal)})
		return
	}

	c.JSON(http.StatusOK, metrics)
}

// listRequests returns the most recent request log entries, newest first
func (r *Router) listRequests(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultRequestListLimit)))
	if err != nil || limit < 1 || limit > maxRequestListLimit {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{
			Error: fmt.Sprintf("limit must be between 1 and %d", maxRequestListLimit),
			Type:  string(domain.KindMalformedRequest),
		})
		return
	}

	records, err := r.requestRepo.FindRecent(c.Request.Context(), limit)
	if err != nil {
		logrus.WithError(err).Error("Failed to list requests")
		c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "Failed to retrieve requests", Type: string(domain.KindInternal)})
		return
	}
	if records == nil {
		records = []*persistence.RequestRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"object": domain.ObjectList,
		"data":   records,
	})
}

// getRequest returns one request log entry with its metrics
func (r *Router) getRequest(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("request-id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid request ID format", Type: string(domain.KindMalformedRequest)})
		return
	}

	record, err := r.requestRepo.FindByIDWithRelations(c.Request.Context(), requestID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			c.JSON(http.StatusNotFound, domain.ErrorResponse{Error: "Request not found", Type: "not_found"})
			return
		}
		logrus.WithError(err).Errorf("Failed to get request %s", requestID)
		c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "Failed to retrieve request", Type: string(domain.KindInternal)})
		return
	}

	c.JSON(http.StatusOK, record)
}
