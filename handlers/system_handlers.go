package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ragdock/services"
	"gorm.io/gorm"
)

// health degrades after this many consecutive registry refresh failures
const degradedFailureThreshold = 3

// readiness probes get a short deadline so a wedged dependency cannot
// hang the endpoint
const readyProbeTimeout = 5 * time.Second

type SystemHandlers struct {
	registry services.RegistryService
	slots    services.ConcurrencyManager
	db       *gorm.DB
	embed    services.EmbeddingProvider
	chat     services.ChatProvider
	blob     services.BlobStore
}

func NewSystemHandlers(
	registry services.RegistryService,
	slots services.ConcurrencyManager,
	db *gorm.DB,
	embed services.EmbeddingProvider,
	chat services.ChatProvider,
	blob services.BlobStore,
) *SystemHandlers {
	return &SystemHandlers{
		registry: registry,
		slots:    slots,
		db:       db,
		embed:    embed,
		chat:     chat,
		blob:     blob,
	}
}

// Health handles GET /health
func (h *SystemHandlers) Health(c *gin.Context) {
	status := "ok"
	if h.registry.FailureCount() >= degradedFailureThreshold {
		status = "degraded"
	}

	registryAge := -1
	if t := h.registry.LastRefreshed(); !t.IsZero() {
		registryAge = int(time.Since(t).Seconds())
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":               status,
		"registry_age_seconds": registryAge,
		"registry_failures":    h.registry.FailureCount(),
		"active_jobs":          h.slots.Active(),
		"max_jobs":             h.slots.Max(),
	})
}

// Ready handles GET /ready — ready means the service can actually
// answer a query: database up, at least one document in the registry,
// and both providers reachable
func (h *SystemHandlers) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyProbeTimeout)
	defer cancel()

	checks := gin.H{}
	ready := true

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		ready = false
		checks["database"] = err.Error()
	} else {
		checks["database"] = "ok"
	}

	if n := h.registry.DocumentCount(); n == 0 {
		ready = false
		checks["registry"] = "no documents"
	} else {
		checks["registry"] = "ok"
		checks["document_count"] = n
	}

	if err := h.embed.Ping(ctx); err != nil {
		ready = false
		checks["embedding_provider"] = err.Error()
	} else {
		checks["embedding_provider"] = "ok"
	}

	if err := h.chat.Ping(ctx); err != nil {
		ready = false
		checks["chat_provider"] = err.Error()
	} else {
		checks["chat_provider"] = "ok"
	}

	if err := h.blob.Ping(ctx); err != nil {
		ready = false
		checks["blob_store"] = err.Error()
	} else {
		checks["blob_store"] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": checks})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}

// RefreshRegistry handles POST /refresh-registry — the webhook hit by
// the publishing side after catalog changes
func (h *SystemHandlers) RefreshRegistry(c *gin.Context) {
	if err := h.registry.Refresh(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"status":       "refreshed",
		"refreshed_at": h.registry.LastRefreshed(),
	})
}
