package services

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/ragdock/models"
)

// RegistryService maintains an immutable in-memory view of the active
// document catalog. Lookups never block behind a refresh.
type RegistryService interface {
	// Document resolves a slug against the current snapshot.
	Document(slug string) (*models.Document, bool)
	// Owner resolves an owner slug against the current snapshot.
	Owner(slug string) (*models.Owner, bool)
	// OwnerByDomain resolves a custom domain to its owner.
	OwnerByDomain(domain string) (*models.Owner, bool)
	// DocumentsByOwner lists active documents for one owner.
	DocumentsByOwner(ownerSlug string) []*models.Document
	// DocumentCount reports how many documents the snapshot holds.
	DocumentCount() int

	// Refresh rebuilds the snapshot from the database. Concurrent calls
	// coalesce into one rebuild.
	Refresh(ctx context.Context) error
	// Subscribe registers a callback invoked after every successful refresh.
	Subscribe(fn func())

	Start(ctx context.Context)
	LastRefreshed() time.Time
	FailureCount() int
}

// AccessService decides whether a caller may read a document
type AccessService interface {
	CheckAccess(user *models.User, doc *models.Document, passcode string) error
}

// IngestionService runs the document processing pipeline
type IngestionService interface {
	// Process admits an upload into the pipeline, returning a BusyError
	// when all slots are taken. Uploads belonging to another user are
	// reported as ErrNotFound. On success the pipeline continues in the
	// background; progress lands in the processing log.
	Process(ctx context.Context, user *models.User, userDocumentID uuid.UUID) error
	// Retrain reprocesses an already-trained upload in place, keeping
	// the document slug and replacing its chunks. Background like
	// Process.
	Retrain(ctx context.Context, user *models.User, userDocumentID uuid.UUID) error
	// Status reports pipeline progress for one upload.
	Status(ctx context.Context, user *models.User, userDocumentID uuid.UUID) (*models.ProcessingStatusResponse, error)
}

// RetrievalService embeds a query and returns the most similar chunks
type RetrievalService interface {
	Retrieve(ctx context.Context, docs []*models.Document, query string) (*models.RetrievalResult, error)
	// InvalidateCache drops all cached retrieval results. Wired to
	// registry refresh.
	InvalidateCache(ctx context.Context)
}

// ChatService answers questions against one or more documents
type ChatService interface {
	// Chat runs the full pipeline and buffers the answer.
	Chat(ctx context.Context, user *models.User, req models.ChatRequest) (*models.ChatResponse, error)
	// ChatStream runs the same pipeline but delivers tokens as they
	// arrive. The channel is closed after a done or error event.
	ChatStream(ctx context.Context, user *models.User, req models.ChatRequest) (<-chan models.StreamEvent, error)
}

// EmbeddingProvider turns texts into vectors
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Ping checks that the provider endpoint is reachable.
	Ping(ctx context.Context) error
}

// ChatProvider is the LLM backend
type ChatProvider interface {
	// Complete runs a buffered completion, used for summarization.
	Complete(ctx context.Context, messages []ChatMessage, model string) (string, error)
	// Stream starts a streaming completion. Events arrive on the
	// returned channel; it is closed after done or error.
	Stream(ctx context.Context, messages []ChatMessage, model string) (<-chan models.StreamEvent, error)
	// Ping checks that the provider endpoint is reachable.
	Ping(ctx context.Context) error
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BlobStore is the S3-compatible object store holding uploaded files
type BlobStore interface {
	Download(ctx context.Context, path string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, path string) error
	PresignedURL(ctx context.Context, path string, expiry time.Duration) (string, error)
	// Ping checks that the bucket is reachable.
	Ping(ctx context.Context) error
}

// ProcessingLogService records pipeline audit entries to the database
// and the NDJSON file. Sink failures are reported to stderr, never to
// the caller.
type ProcessingLogService interface {
	Log(ctx context.Context, entry models.ProcessingLogEntry)
	Stages(ctx context.Context, userDocumentID uuid.UUID) ([]models.StageSummary, error)
	Close() error
}

// ConcurrencyManager bounds the number of simultaneous pipeline runs
type ConcurrencyManager interface {
	// TryAcquire takes a slot without blocking. When ok, release must
	// be called exactly once.
	TryAcquire() (release func(), active int, ok bool)
	Active() int
	Max() int
}

// RecoveryService sweeps stalled processing rows back to pending and
// collects orphaned source blobs
type RecoveryService interface {
	Start(ctx context.Context)
	// MarkHeld registers an upload as owned by a live in-process worker.
	MarkHeld(id uuid.UUID)
	// ReleaseHeld removes the registration.
	ReleaseHeld(id uuid.UUID)
	// ForceRetry flips a stuck processing or errored row back to
	// pending so it can be re-admitted, or returns ErrConflict when the
	// row is not actually stuck. Rows belonging to another user are
	// reported as ErrNotFound.
	ForceRetry(ctx context.Context, user *models.User, id uuid.UUID) error
}
