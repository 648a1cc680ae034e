// Package handlers exposes the orchestrator over HTTP. All responses use
// the {success, data|error} envelope consumed by the gallery frontend.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"tokengallery/internal/domain"
	"tokengallery/internal/orchestrator"
	"tokengallery/internal/provider"
)

// Handler handles HTTP requests for the token gallery service
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	logger       *logrus.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(orch *orchestrator.Orchestrator, logger *logrus.Logger) *Handler {
	return &Handler{
		orchestrator: orch,
		logger:       logger,
	}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(h.requestID())

	router.GET("/collection", h.GetCollection)
	router.GET("/user", h.GetUser)
	router.GET("/curation", h.GetCuration)
	router.GET("/domains", h.GetDomains)
	router.POST("/cache/clear", h.ClearCache)

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// requestID tags every request with a uuid for log correlation.
func (h *Handler) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("requestID", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// GetCollection serves a contract-subject fetch.
func (h *Handler) GetCollection(c *gin.Context) {
	contractAddress := c.Query("contractAddress")
	opts := h.requestOptions(c)

	result, err := h.orchestrator.GetCollectionTokenCollection(c.Request.Context(), contractAddress, opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondResult(c, result)
}

// GetUser serves an address-subject fetch with chronological ordering.
func (h *Handler) GetUser(c *gin.Context) {
	address := c.Query("address")
	opts := h.requestOptions(c)
	opts.Chronological = c.DefaultQuery("sort", "chronological") == "chronological"

	result, err := h.orchestrator.GetTokenCollection(c.Request.Context(), address, opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondResult(c, result)
}

// GetCuration serves a curation-subject fetch through the bridge provider.
func (h *Handler) GetCuration(c *gin.Context) {
	curationID := c.Query("curationId")
	opts := h.requestOptions(c)

	result, err := h.orchestrator.GetCurationTokenCollection(c.Request.Context(), curationID, opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondResult(c, result)
}

// GetDomains passes a registry lookup through by address or by name.
func (h *Handler) GetDomains(c *gin.Context) {
	address := c.Query("address")
	name := c.Query("name")

	pg := domain.PaginationOptions{Limit: parseIntDefault(c.Query("pageSize"), 20)}

	var (
		domains []domain.UnifiedDomain
		err     error
	)
	switch {
	case address != "":
		domains, err = h.orchestrator.GetDomainsByAddress(c.Request.Context(), address, pg)
	case name != "":
		domains, err = h.orchestrator.GetDomainsByName(c.Request.Context(), name, pg)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Address parameter is required"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"domains": domains}})
}

type clearCacheRequest struct {
	Address  string               `json:"address"`
	ClearAll bool                 `json:"clearAll"`
	Filters  *domain.TokenFilters `json:"filters,omitempty"`
}

// ClearCache invalidates cache entries for one subject: the active filter
// configuration only, or every configuration with clearAll.
func (h *Handler) ClearCache(c *gin.Context) {
	var req clearCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Address parameter is required"})
		return
	}

	if err := h.orchestrator.InvalidateCache(c.Request.Context(), req.Address, req.ClearAll, req.Filters); err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"address":  req.Address,
		"clearAll": req.ClearAll,
	}).Info("Cache cleared")
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"cleared": true, "clearAll": req.ClearAll}})
}

// HealthCheck reports service liveness and per-provider health.
func (h *Handler) HealthCheck(c *gin.Context) {
	providerHealth := h.orchestrator.ProviderHealth(c.Request.Context())

	status := http.StatusOK
	healthy := true
	for _, ph := range providerHealth {
		if !ph.IsHealthy {
			healthy = false
		}
	}
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":    map[bool]string{true: "healthy", false: "degraded"}[healthy],
		"timestamp": time.Now().UTC(),
		"providers": providerHealth,
	})
}

func (h *Handler) requestOptions(c *gin.Context) orchestrator.RequestOptions {
	return orchestrator.RequestOptions{
		Page:         parseIntDefault(c.Query("page"), 1),
		PageSize:     parseIntDefault(c.Query("pageSize"), 20),
		ForceRefresh: c.Query("forceRefresh") == "true",
	}
}

func (h *Handler) respondResult(c *gin.Context, result *domain.CollectionResult) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"tokens":      result.Tokens,
			"pagination":  result.Pagination,
			"cacheInfo":   result.Cache,
			"performance": result.Performance,
		},
	})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var missing *orchestrator.MissingParameterError
	if errors.As(err, &missing) {
		c.JSON(http.StatusBadRequest, gin.H{"error": missing.Error()})
		return
	}

	entry := h.logger.WithError(err)
	if id, ok := c.Get("requestID"); ok {
		entry = entry.WithField("requestID", id)
	}

	if pe, ok := provider.AsError(err); ok {
		entry.WithFields(logrus.Fields{
			"provider":  pe.Provider,
			"operation": pe.Operation,
			"kind":      string(pe.Kind),
		}).Error("Upstream fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": pe.Error()})
		return
	}

	entry.Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
}

func parseIntDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
