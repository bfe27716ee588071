package impl

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ragdock/models"
	"github.com/ragdock/services"
	"gorm.io/gorm"
)

const (
	sweepInterval  = time.Minute
	blobGCInterval = time.Hour
)

// recoveryServiceImpl sweeps processing rows abandoned by a crashed or
// wedged worker back to pending, and collects source blobs orphaned by
// failed ingestions. Rows held by a live in-process worker are never
// touched, however old their updated_at is.
type recoveryServiceImpl struct {
	db   *gorm.DB
	blob services.BlobStore
	plog services.ProcessingLogService

	stuckThreshold  time.Duration
	blobGracePeriod time.Duration

	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

func NewRecoveryService(db *gorm.DB, blob services.BlobStore, plog services.ProcessingLogService, stuckThreshold, blobGracePeriod time.Duration) services.RecoveryService {
	return &recoveryServiceImpl{
		db:              db,
		blob:            blob,
		plog:            plog,
		stuckThreshold:  stuckThreshold,
		blobGracePeriod: blobGracePeriod,
		held:            make(map[uuid.UUID]struct{}),
	}
}

func (s *recoveryServiceImpl) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(blobGCInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.collectOrphanBlobs(ctx)
			}
		}
	}()
}

func (s *recoveryServiceImpl) MarkHeld(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held[id] = struct{}{}
}

func (s *recoveryServiceImpl) ReleaseHeld(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, id)
}

func (s *recoveryServiceImpl) isHeld(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.held[id]
	return ok
}

// isStuck is the sweeping predicate: processing status, last touched
// longer ago than the threshold, and not owned by a live worker here.
func (s *recoveryServiceImpl) isStuck(doc *models.UserDocument, now time.Time) bool {
	if doc.Status != models.StatusProcessing {
		return false
	}
	if s.isHeld(doc.ID) {
		return false
	}
	return now.Sub(doc.UpdatedAt) >= s.stuckThreshold
}

func (s *recoveryServiceImpl) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.stuckThreshold)

	var candidates []models.UserDocument
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.StatusProcessing, cutoff).
		Find(&candidates).Error
	if err != nil {
		log.Printf("[RECOVERY] Sweep query failed: %v", err)
		return
	}

	now := time.Now()
	for i := range candidates {
		doc := &candidates[i]
		if !s.isStuck(doc, now) {
			continue
		}

		res := s.db.WithContext(ctx).Model(&models.UserDocument{}).
			Where("id = ? AND status = ?", doc.ID, models.StatusProcessing).
			Updates(map[string]interface{}{
				"status":     models.StatusPending,
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			log.Printf("[RECOVERY] Failed to reset stalled document %s: %v", doc.ID, res.Error)
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}

		log.Printf("[RECOVERY] Reset stalled document %s (idle %s)", doc.ID, now.Sub(doc.UpdatedAt).Round(time.Second))

		id := doc.ID
		s.plog.Log(ctx, models.ProcessingLogEntry{
			UserDocumentID: &id,
			Stage:          models.StageError,
			Status:         models.StageFailed,
			Message:        "stalled",
		})
	}
}

func (s *recoveryServiceImpl) ForceRetry(ctx context.Context, user *models.User, id uuid.UUID) error {
	var doc models.UserDocument
	if err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("user document %s: %w", id, services.ErrNotFound)
		}
		return fmt.Errorf("failed to load user document: %w", err)
	}

	if !canManageUpload(user, &doc) {
		return fmt.Errorf("user document %s: %w", id, services.ErrNotFound)
	}

	if doc.Status == models.StatusError {
		// Errored rows may always be retried
		return s.resetToPending(ctx, id)
	}

	if !s.isStuck(&doc, time.Now()) {
		return fmt.Errorf("document %s is %s and not stalled: %w", id, doc.Status, services.ErrConflict)
	}

	return s.resetToPending(ctx, id)
}

func (s *recoveryServiceImpl) resetToPending(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Model(&models.UserDocument{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.StatusPending,
			"error_message": "",
			"updated_at":    time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to reset document %s: %w", id, err)
	}
	return nil
}

// collectOrphanBlobs deletes source files left behind by failed
// ingestions once they age past the grace period. The row keeps its
// error state for audit; only file_path is cleared.
func (s *recoveryServiceImpl) collectOrphanBlobs(ctx context.Context) {
	cutoff := time.Now().Add(-s.blobGracePeriod)

	var orphans []models.UserDocument
	err := s.db.WithContext(ctx).
		Where("status = ? AND file_path <> '' AND updated_at < ?", models.StatusError, cutoff).
		Find(&orphans).Error
	if err != nil {
		log.Printf("[RECOVERY] Orphan blob query failed: %v", err)
		return
	}

	for i := range orphans {
		doc := &orphans[i]
		if err := s.blob.Delete(ctx, doc.FilePath); err != nil {
			log.Printf("[RECOVERY] Failed to delete orphan blob %s: %v", doc.FilePath, err)
			continue
		}
		if err := s.db.WithContext(ctx).Model(doc).Update("file_path", "").Error; err != nil {
			log.Printf("[RECOVERY] Failed to clear file_path for %s: %v", doc.ID, err)
			continue
		}
		log.Printf("[RECOVERY] Collected orphan blob for document %s", doc.ID)
	}
}
