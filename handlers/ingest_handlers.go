package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ragdock/models"
	"github.com/ragdock/services"
	"gorm.io/gorm"
)

const downloadURLExpiry = 15 * time.Minute

type IngestHandlers struct {
	ingestion services.IngestionService
	recovery  services.RecoveryService
	blob      services.BlobStore
	db        *gorm.DB
}

func NewIngestHandlers(ingestion services.IngestionService, recovery services.RecoveryService, blob services.BlobStore, db *gorm.DB) *IngestHandlers {
	return &IngestHandlers{
		ingestion: ingestion,
		recovery:  recovery,
		blob:      blob,
		db:        db,
	}
}

// ProcessDocument handles POST /api/v1/process-document
func (h *IngestHandlers) ProcessDocument(c *gin.Context) {
	var req models.ProcessDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if err := h.ingestion.Process(c.Request.Context(), CurrentUser(c), req.UserDocumentID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":           "accepted",
		"user_document_id": req.UserDocumentID,
	})
}

// RetrainDocument handles POST /api/v1/retrain-document
func (h *IngestHandlers) RetrainDocument(c *gin.Context) {
	var req models.RetrainDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	if err := h.ingestion.Retrain(c.Request.Context(), CurrentUser(c), req.UserDocumentID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":           "accepted",
		"user_document_id": req.UserDocumentID,
	})
}

// ProcessingStatus handles GET /api/v1/processing-status/:id
func (h *IngestHandlers) ProcessingStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, fmt.Errorf("invalid document id: %w", err))
		return
	}

	status, err := h.ingestion.Status(c.Request.Context(), CurrentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// ListUserDocuments handles GET /api/v1/user-documents
func (h *IngestHandlers) ListUserDocuments(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error_kind": "Unauthorized", "message": "login required"})
		return
	}

	var docs []models.UserDocument
	err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"total":     len(docs),
	})
}

// DownloadURL handles GET /api/v1/user-documents/:id/download-url
func (h *IngestHandlers) DownloadURL(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error_kind": "Unauthorized", "message": "login required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, fmt.Errorf("invalid document id: %w", err))
		return
	}

	var doc models.UserDocument
	if err := h.db.WithContext(c.Request.Context()).First(&doc, "id = ? AND user_id = ?", id, user.ID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			respondError(c, fmt.Errorf("user document %s: %w", id, services.ErrNotFound))
			return
		}
		respondError(c, err)
		return
	}

	if doc.FilePath == "" {
		// Source blobs are purged after successful ingestion
		respondError(c, fmt.Errorf("source file purged after ingestion: %w", services.ErrGone))
		return
	}

	url, err := h.blob.PresignedURL(c.Request.Context(), doc.FilePath, downloadURLExpiry)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":        url,
		"expires_in": int(downloadURLExpiry.Seconds()),
	})
}

// ForceRetry handles POST /api/v1/user-documents/:id/force-retry,
// resetting a stuck or errored upload and re-admitting it into the
// pipeline. Returns 409 when the row is processing normally, 503 when
// no processing slot is free for the restart.
func (h *IngestHandlers) ForceRetry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, fmt.Errorf("invalid document id: %w", err))
		return
	}

	user := CurrentUser(c)
	if err := h.recovery.ForceRetry(c.Request.Context(), user, id); err != nil {
		respondError(c, err)
		return
	}

	if err := h.ingestion.Process(c.Request.Context(), user, id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":           "accepted",
		"user_document_id": id,
	})
}
