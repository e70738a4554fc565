// Package api is the HTTP surface of the registry: a thin gin layer that
// translates requests into allocator calls and maps allocator errors to
// status codes. No allocation logic lives here.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-port-registry/internal/allocator"
	"github.com/sirosfoundation/go-port-registry/internal/domain"
)

// Handler handles HTTP requests for the port registry
type Handler struct {
	alloc         *allocator.Allocator
	bootstrapPort int
	logger        *zap.Logger
}

// NewHandler creates a new registry handler
func NewHandler(alloc *allocator.Allocator, bootstrapPort int, logger *zap.Logger) *Handler {
	return &Handler{
		alloc:         alloc,
		bootstrapPort: bootstrapPort,
		logger:        logger.Named("api"),
	}
}

// RegisterRoutes adds all registry routes to the router
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.Info)
	router.GET("/status", h.Status)
	router.GET("/health", h.Status)

	router.GET("/ports", h.ListPorts)
	router.POST("/ports/request", h.RequestPort)
	router.POST("/ports/release", h.ReleasePort)
	// the static "check" segment takes priority over :service in gin's
	// routing tree, so both can coexist under /ports
	router.GET("/ports/check/:port", h.CheckPort)
	router.GET("/ports/:service", h.GetServicePort)
}

// Info handles GET / with basic service information
func (h *Handler) Info(c *gin.Context) {
	snapshot, err := h.alloc.Snapshot(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to read registry state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to read registry state"})
		return
	}

	registered := 0
	for _, s := range snapshot {
		if s.IsActive() {
			registered++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"name":                "port-registry",
		"bootstrap_port":      h.bootstrapPort,
		"registered_services": registered,
		"ports":               fmt.Sprintf("http://localhost:%d/ports", h.bootstrapPort),
	})
}

// Status handles the /status and /health endpoints
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "port-registry",
	})
}

// ListPorts handles GET /ports.
// Returns every record, released ones included, with a live in_use probe.
func (h *Handler) ListPorts(c *gin.Context) {
	snapshot, err := h.alloc.Snapshot(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list ports", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to read registry state"})
		return
	}

	result := make(map[string]gin.H, len(snapshot))
	for _, s := range snapshot {
		result[s.Service] = serviceBody(s.Assignment, s.InUse)
	}
	c.JSON(http.StatusOK, result)
}

// GetServicePort handles GET /ports/:service
func (h *Handler) GetServicePort(c *gin.Context) {
	service := c.Param("service")

	rec, err := h.alloc.Lookup(c.Request.Context(), service)
	if err != nil {
		if errors.Is(err, allocator.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"detail": fmt.Sprintf("service %q not registered", service),
			})
			return
		}
		h.logger.Error("lookup failed", zap.String("service", service), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "lookup failed"})
		return
	}

	check, err := h.alloc.Check(c.Request.Context(), rec.Port)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, serviceBody(rec, check.InUse))
}

// RequestPort handles POST /ports/request
func (h *Handler) RequestPort(c *gin.Context) {
	var req domain.RequestPortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	rec, assignedNow, err := h.alloc.Request(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, allocator.ErrInvalidService), errors.Is(err, allocator.ErrInvalidPort):
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		case errors.Is(err, allocator.ErrExhausted):
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": err.Error()})
		default:
			h.logger.Error("request failed", zap.String("service", req.Service), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to assign port"})
		}
		return
	}

	message := fmt.Sprintf("existing assignment :%d", rec.Port)
	if assignedNow {
		message = fmt.Sprintf("new assignment :%d", rec.Port)
	}
	c.JSON(http.StatusOK, gin.H{
		"port":         rec.Port,
		"service":      rec.Service,
		"assigned_now": assignedNow,
		"message":      message,
	})
}

// ReleasePort handles POST /ports/release
func (h *Handler) ReleasePort(c *gin.Context) {
	var req domain.ReleasePortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	rec, released, err := h.alloc.Release(c.Request.Context(), req.Service)
	if err != nil {
		h.logger.Error("release failed", zap.String("service", req.Service), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to release port"})
		return
	}

	body := gin.H{"released": released, "service": req.Service}
	if released {
		body["port"] = rec.Port
	}
	c.JSON(http.StatusOK, body)
}

// CheckPort handles GET /ports/check/:port
func (h *Handler) CheckPort(c *gin.Context) {
	port, err := strconv.Atoi(c.Param("port"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "port must be an integer"})
		return
	}

	result, err := h.alloc.Check(c.Request.Context(), port)
	if err != nil {
		if errors.Is(err, allocator.ErrInvalidPort) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		h.logger.Error("check failed", zap.Int("port", port), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "check failed"})
		return
	}

	var registeredTo any
	if result.RegisteredTo != "" {
		registeredTo = result.RegisteredTo
	}
	c.JSON(http.StatusOK, gin.H{
		"port":          result.Port,
		"free":          result.Free,
		"in_use":        result.InUse,
		"registered_to": registeredTo,
	})
}

func serviceBody(a *domain.Assignment, inUse bool) gin.H {
	body := gin.H{
		"service":     a.Service,
		"port":        a.Port,
		"project":     a.Project,
		"description": a.Description,
		"status":      a.Status,
		"created_at":  a.CreatedAt,
		"last_seen":   a.LastSeen,
		"in_use":      inUse,
	}
	if !a.ReleasedAt.IsZero() {
		body["released_at"] = a.ReleasedAt
	}
	return body
}
