package impl

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ragdock/models"
	"github.com/stretchr/testify/assert"
)

func newTestRecoveryService(threshold time.Duration) *recoveryServiceImpl {
	return &recoveryServiceImpl{
		stuckThreshold: threshold,
		held:           make(map[uuid.UUID]struct{}),
	}
}

func TestIsStuck(t *testing.T) {
	svc := newTestRecoveryService(300 * time.Second)
	now := time.Now()

	doc := func(status models.ProcessingStatus, idle time.Duration) *models.UserDocument {
		return &models.UserDocument{
			ID:        uuid.New(),
			Status:    status,
			UpdatedAt: now.Add(-idle),
		}
	}

	assert.True(t, svc.isStuck(doc(models.StatusProcessing, 301*time.Second), now))
	assert.True(t, svc.isStuck(doc(models.StatusProcessing, time.Hour), now))

	// Exactly at the threshold counts
	assert.True(t, svc.isStuck(doc(models.StatusProcessing, 300*time.Second), now))

	assert.False(t, svc.isStuck(doc(models.StatusProcessing, 299*time.Second), now))
	assert.False(t, svc.isStuck(doc(models.StatusProcessing, 0), now))

	// Only processing rows can stall
	assert.False(t, svc.isStuck(doc(models.StatusPending, time.Hour), now))
	assert.False(t, svc.isStuck(doc(models.StatusReady, time.Hour), now))
	assert.False(t, svc.isStuck(doc(models.StatusError, time.Hour), now))
}

func TestIsStuckHeldExemption(t *testing.T) {
	svc := newTestRecoveryService(300 * time.Second)
	now := time.Now()

	doc := &models.UserDocument{
		ID:        uuid.New(),
		Status:    models.StatusProcessing,
		UpdatedAt: now.Add(-time.Hour),
	}

	// A row owned by a live worker in this process is never stuck,
	// however stale its updated_at looks
	svc.MarkHeld(doc.ID)
	assert.False(t, svc.isStuck(doc, now))

	svc.ReleaseHeld(doc.ID)
	assert.True(t, svc.isStuck(doc, now))
}

func TestReleaseHeldUnknownIDIsNoop(t *testing.T) {
	svc := newTestRecoveryService(300 * time.Second)

	svc.ReleaseHeld(uuid.New())

	id := uuid.New()
	svc.MarkHeld(id)
	assert.True(t, svc.isHeld(id))
}
