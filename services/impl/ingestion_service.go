package impl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/ragdock/config"
	"github.com/ragdock/models"
	"github.com/ragdock/services"
	"gorm.io/gorm"
)

const (
	defaultEmbedBatch = 50
	storeBatchSize    = 50

	paceBase    = 100 * time.Millisecond
	paceStep    = 50 * time.Millisecond
	paceCeiling = 300 * time.Millisecond
)

type ingestionServiceImpl struct {
	db          *gorm.DB
	blob        services.BlobStore
	chunker     *Chunker
	embedOpenAI services.EmbeddingProvider
	embedLocal  services.EmbeddingProvider
	chat        services.ChatProvider
	plog        services.ProcessingLogService
	slots       services.ConcurrencyManager
	recovery    services.RecoveryService
	registry    services.RegistryService

	summaryModel   string
	extractTimeout time.Duration
	hardTimeout    time.Duration
	retryAfter     int
	embedBatch     int
}

func NewIngestionService(
	db *gorm.DB,
	blob services.BlobStore,
	chunker *Chunker,
	embedOpenAI, embedLocal services.EmbeddingProvider,
	chat services.ChatProvider,
	plog services.ProcessingLogService,
	slots services.ConcurrencyManager,
	recovery services.RecoveryService,
	registry services.RegistryService,
	procCfg *config.ProcessingConfig,
	embCfg *config.EmbeddingConfig,
	chatCfg *config.ChatConfig,
) services.IngestionService {
	return &ingestionServiceImpl{
		db:             db,
		blob:           blob,
		chunker:        chunker,
		embedOpenAI:    embedOpenAI,
		embedLocal:     embedLocal,
		chat:           chat,
		plog:           plog,
		slots:          slots,
		recovery:       recovery,
		registry:       registry,
		summaryModel:   chatCfg.StandardModel,
		extractTimeout: time.Duration(procCfg.ExtractTimeout) * time.Second,
		hardTimeout:    time.Duration(embCfg.HardTimeout) * time.Second,
		retryAfter:     procCfg.RetryAfter,
		embedBatch:     embedBatchSize(embCfg.BatchSize),
	}
}

func embedBatchSize(configured int) int {
	if configured < 1 {
		return defaultEmbedBatch
	}
	return configured
}

// publication is the set of parameters under which an upload is
// published as a searchable document. They come from the UserDocument
// row (first run) or the existing Document row (retrain), never from
// the caller.
type publication struct {
	Slug          string
	Title         string
	OwnerSlug     string
	AccessLevel   models.AccessLevel
	EmbeddingType models.EmbeddingType
}

func publicationFrom(userDoc *models.UserDocument) (publication, error) {
	if strings.TrimSpace(userDoc.Slug) == "" {
		return publication{}, fmt.Errorf("upload %s has no publication slug: %w", userDoc.ID, services.ErrBadRequest)
	}
	pub := publication{
		Slug:          userDoc.Slug,
		Title:         userDoc.Title,
		AccessLevel:   userDoc.AccessLevel,
		EmbeddingType: userDoc.EmbeddingType,
	}
	if userDoc.OwnerSlug != nil {
		pub.OwnerSlug = *userDoc.OwnerSlug
	}
	if pub.AccessLevel == "" {
		pub.AccessLevel = models.AccessPublic
	}
	if pub.EmbeddingType == "" {
		pub.EmbeddingType = models.EmbeddingOpenAI
	}
	return pub, nil
}

// canManageUpload reports whether the caller may act on an upload.
// Super admins may act on any row; everyone else only on their own.
func canManageUpload(user *models.User, userDoc *models.UserDocument) bool {
	if user == nil || user.ID == "" {
		return false
	}
	if user.SuperAdmin {
		return true
	}
	return userDoc.UserID == user.ID
}

// loadOwnedUpload fetches an upload and enforces ownership. Rows owned
// by someone else come back as ErrNotFound so the endpoint does not
// leak which IDs exist.
func (s *ingestionServiceImpl) loadOwnedUpload(ctx context.Context, user *models.User, id uuid.UUID) (*models.UserDocument, error) {
	var userDoc models.UserDocument
	if err := s.db.WithContext(ctx).First(&userDoc, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user document %s: %w", id, services.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load user document: %w", err)
	}
	if !canManageUpload(user, &userDoc) {
		return nil, fmt.Errorf("user document %s: %w", id, services.ErrNotFound)
	}
	return &userDoc, nil
}

// Process admits an upload and runs the pipeline in the background.
// Admission failures (busy, unknown upload, already processing) return
// synchronously; everything after that is reported through the
// processing log and the upload's status row.
func (s *ingestionServiceImpl) Process(ctx context.Context, user *models.User, userDocumentID uuid.UUID) error {
	userDoc, err := s.loadOwnedUpload(ctx, user, userDocumentID)
	if err != nil {
		return err
	}

	if userDoc.Status == models.StatusProcessing {
		return fmt.Errorf("document %s is already processing: %w", userDoc.ID, services.ErrConflict)
	}

	pub, err := publicationFrom(userDoc)
	if err != nil {
		return err
	}

	release, active, ok := s.slots.TryAcquire()
	if !ok {
		return &services.BusyError{RetryAfter: s.retryAfter}
	}

	s.recovery.MarkHeld(userDoc.ID)

	if err := s.setStatus(ctx, userDoc, models.StatusProcessing, ""); err != nil {
		s.recovery.ReleaseHeld(userDoc.ID)
		release()
		return err
	}

	log.Printf("[INGEST] Started: user_document=%s slug=%s active=%d", userDoc.ID, pub.Slug, active)

	// Detach from the request context: the pipeline outlives the HTTP
	// request that started it
	bgCtx := context.WithoutCancel(ctx)
	go func() {
		defer release()
		defer s.recovery.ReleaseHeld(userDoc.ID)

		if err := s.runPipeline(bgCtx, userDoc, pub, false); err != nil {
			s.failDocument(bgCtx, userDoc, pub.Slug, err)
		}
	}()

	return nil
}

func (s *ingestionServiceImpl) Retrain(ctx context.Context, user *models.User, userDocumentID uuid.UUID) error {
	userDoc, err := s.loadOwnedUpload(ctx, user, userDocumentID)
	if err != nil {
		return err
	}

	if userDoc.DocumentSlug == nil {
		return fmt.Errorf("user document %s has never been trained: %w", userDocumentID, services.ErrConflict)
	}
	if userDoc.Status == models.StatusProcessing {
		return fmt.Errorf("document %s is already processing: %w", userDoc.ID, services.ErrConflict)
	}

	var doc models.Document
	if err := s.db.WithContext(ctx).First(&doc, "slug = ?", *userDoc.DocumentSlug).Error; err != nil {
		return fmt.Errorf("failed to load document %s: %w", *userDoc.DocumentSlug, err)
	}

	release, _, ok := s.slots.TryAcquire()
	if !ok {
		return &services.BusyError{RetryAfter: s.retryAfter}
	}

	s.recovery.MarkHeld(userDoc.ID)

	if err := s.setStatus(ctx, userDoc, models.StatusProcessing, ""); err != nil {
		s.recovery.ReleaseHeld(userDoc.ID)
		release()
		return err
	}

	pub := publication{
		Slug:          doc.Slug,
		Title:         doc.Title,
		AccessLevel:   doc.AccessLevel,
		EmbeddingType: doc.EmbeddingType,
	}
	if doc.OwnerSlug != nil {
		pub.OwnerSlug = *doc.OwnerSlug
	}

	bgCtx := context.WithoutCancel(ctx)
	go func() {
		defer release()
		defer s.recovery.ReleaseHeld(userDoc.ID)

		if err := s.runPipeline(bgCtx, userDoc, pub, true); err != nil {
			// A failed retrain keeps the existing document and chunks
			s.logStage(bgCtx, userDoc, pub.Slug, models.StageError, models.StageFailed, err.Error(), nil)
			if stErr := s.setStatus(bgCtx, userDoc, models.StatusError, err.Error()); stErr != nil {
				log.Printf("[INGEST] Failed to mark error status: %v", stErr)
			}
		}
	}()

	return nil
}

// runPipeline executes download → extract → summarize → chunk → embed →
// store → purge → finalize, logging each stage to both sinks.
func (s *ingestionServiceImpl) runPipeline(ctx context.Context, userDoc *models.UserDocument, pub publication, retrain bool) error {
	// Download
	s.logStage(ctx, userDoc, pub.Slug, models.StageDownload, models.StageStarted, "", nil)
	data, err := s.download(ctx, userDoc.FilePath)
	if err != nil {
		s.logStage(ctx, userDoc, pub.Slug, models.StageDownload, models.StageFailed, err.Error(), nil)
		return fmt.Errorf("download stage failed: %w", err)
	}
	s.logStage(ctx, userDoc, pub.Slug, models.StageDownload, models.StageCompleted, "", map[string]interface{}{"bytes": len(data)})

	// Extract
	s.logStage(ctx, userDoc, pub.Slug, models.StageExtract, models.StageStarted, "", nil)
	text, err := s.extract(ctx, data, userDoc.MimeType)
	if err != nil {
		s.logStage(ctx, userDoc, pub.Slug, models.StageExtract, models.StageFailed, err.Error(), nil)
		return fmt.Errorf("extract stage failed: %w", err)
	}
	s.logStage(ctx, userDoc, pub.Slug, models.StageExtract, models.StageCompleted, "", map[string]interface{}{"chars": len(text)})

	summary, chunks, vectors, err := s.buildChunks(ctx, userDoc, pub, text)
	if err != nil {
		return err
	}

	// Store — document row first, then chunk batches
	s.logStage(ctx, userDoc, pub.Slug, models.StageStore, models.StageStarted, "", nil)
	if err := s.store(ctx, userDoc, pub, summary, chunks, vectors, retrain); err != nil {
		s.logStage(ctx, userDoc, pub.Slug, models.StageStore, models.StageFailed, err.Error(), nil)
		return fmt.Errorf("store stage failed: %w", err)
	}
	s.logStage(ctx, userDoc, pub.Slug, models.StageStore, models.StageCompleted, "", nil)

	// Purge the source blob — warn-only, the document is already live
	if userDoc.FilePath != "" {
		if err := s.blob.Delete(ctx, userDoc.FilePath); err != nil {
			log.Printf("[INGEST] Failed to purge source blob %s: %v", userDoc.FilePath, err)
		} else {
			s.db.WithContext(ctx).Model(userDoc).Update("file_path", "")
			userDoc.FilePath = ""
		}
	}

	// Finalize
	slug := pub.Slug
	updates := map[string]interface{}{
		"status":        models.StatusReady,
		"error_message": "",
		"document_slug": slug,
		"updated_at":    time.Now(),
	}
	if err := s.db.WithContext(ctx).Model(userDoc).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to finalize user document: %w", err)
	}
	userDoc.Status = models.StatusReady
	userDoc.DocumentSlug = &slug

	s.logStage(ctx, userDoc, pub.Slug, models.StageComplete, models.StageCompleted, "", nil)
	log.Printf("[INGEST] Completed: user_document=%s slug=%s chunks=%d", userDoc.ID, pub.Slug, len(chunks))

	// Make the new document visible without waiting for the ticker
	if err := s.registry.Refresh(ctx); err != nil {
		log.Printf("[INGEST] Post-ingest registry refresh failed: %v", err)
	}

	return nil
}

// buildChunks runs the content stages: summarize, chunk, embed. A source
// with no extractable text is a legal document with zero chunks, not a
// failure; queries against it simply retrieve nothing.
func (s *ingestionServiceImpl) buildChunks(ctx context.Context, userDoc *models.UserDocument, pub publication, text string) (*documentSummary, []PositionedChunk, [][]float32, error) {
	if strings.TrimSpace(text) == "" {
		s.logStage(ctx, userDoc, pub.Slug, models.StageChunk, models.StageCompleted, "no text extracted", map[string]interface{}{"chunks": 0})
		return nil, nil, nil, nil
	}

	// Summarize — best effort; a failure never sinks the pipeline
	s.logStage(ctx, userDoc, pub.Slug, models.StageSummarize, models.StageStarted, "", nil)
	summary := s.summarize(ctx, text)
	if summary == nil {
		s.logStage(ctx, userDoc, pub.Slug, models.StageSummarize, models.StageFailed, "summary unavailable, continuing", nil)
	} else {
		s.logStage(ctx, userDoc, pub.Slug, models.StageSummarize, models.StageCompleted, "", nil)
	}

	// Chunk
	s.logStage(ctx, userDoc, pub.Slug, models.StageChunk, models.StageStarted, "", nil)
	chunks := s.chunker.Chunk(text)
	s.logStage(ctx, userDoc, pub.Slug, models.StageChunk, models.StageCompleted, "", map[string]interface{}{"chunks": len(chunks)})
	if len(chunks) == 0 {
		return summary, nil, nil, nil
	}

	// Embed
	s.logStage(ctx, userDoc, pub.Slug, models.StageEmbed, models.StageStarted, "", nil)
	vectors, err := s.embedChunks(ctx, userDoc, pub.Slug, chunks, pub.EmbeddingType)
	if err != nil {
		s.logStage(ctx, userDoc, pub.Slug, models.StageEmbed, models.StageFailed, err.Error(), nil)
		return nil, nil, nil, fmt.Errorf("embed stage failed: %w", err)
	}
	s.logStage(ctx, userDoc, pub.Slug, models.StageEmbed, models.StageCompleted, "", map[string]interface{}{"vectors": len(vectors)})

	return summary, chunks, vectors, nil
}

func (s *ingestionServiceImpl) download(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("user document has no source file")
	}

	reader, _, err := s.blob.Download(ctx, path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", path, err)
	}
	return data, nil
}

func (s *ingestionServiceImpl) extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	switch {
	case mimeType == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF")):
		extractCtx, cancel := context.WithTimeout(ctx, s.extractTimeout)
		defer cancel()
		return s.chunker.ExtractPDF(extractCtx, bytes.NewReader(data), int64(len(data)))
	case strings.HasPrefix(mimeType, "text/") || mimeType == "":
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported mime type %q", mimeType)
	}
}

// documentSummary is the LLM-derived metadata attached to the document
type documentSummary struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle"`
	Abstract string   `json:"abstract"`
	Keywords []string `json:"keywords"`
}

func (s *ingestionServiceImpl) summarize(ctx context.Context, text string) *documentSummary {
	sample := text
	if len(sample) > 8000 {
		sample = sample[:8000]
	}

	messages := []services.ChatMessage{
		{Role: "system", Content: "You extract document metadata. Respond with a JSON object containing: title, subtitle, abstract (2-3 sentences), keywords (up to 8 strings). Respond with JSON only."},
		{Role: "user", Content: sample},
	}

	content, err := s.chat.Complete(ctx, messages, s.summaryModel)
	if err != nil {
		log.Printf("[INGEST] Summarization failed: %v", err)
		return nil
	}

	// Models sometimes wrap JSON in code fences
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var summary documentSummary
	if err := json.Unmarshal([]byte(content), &summary); err != nil {
		log.Printf("[INGEST] Failed to parse summary: %v", err)
		return nil
	}
	return &summary
}

// embedChunks embeds in configured-size batches. Each batch gets a hard
// outer deadline on top of the provider's own client timeout, and
// batches are paced apart based on current pipeline load.
func (s *ingestionServiceImpl) embedChunks(ctx context.Context, userDoc *models.UserDocument, slug string, chunks []PositionedChunk, embeddingType models.EmbeddingType) ([][]float32, error) {
	provider := SelectEmbeddingProvider(embeddingType, s.embedOpenAI, s.embedLocal)

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += s.embedBatch {
		end := start + s.embedBatch
		if end > len(chunks) {
			end = len(chunks)
		}

		if start > 0 {
			time.Sleep(s.paceDelay())
		}

		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Content)
		}

		batchCtx, cancel := context.WithTimeout(ctx, s.hardTimeout)
		batch, err := provider.Embed(batchCtx, texts)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}

		vectors = append(vectors, batch...)

		s.logStage(ctx, userDoc, slug, models.StageEmbed, models.StageProgress, "",
			map[string]interface{}{"embedded": len(vectors), "total": len(chunks)})
	}

	return vectors, nil
}

// paceDelay spreads provider traffic when several pipelines run at
// once: 100ms plus 50ms per extra active job, clamped to [100ms, 300ms].
func (s *ingestionServiceImpl) paceDelay() time.Duration {
	active := s.slots.Active()
	if active < 1 {
		active = 1
	}
	delay := paceBase + paceStep*time.Duration(active-1)
	if delay < paceBase {
		delay = paceBase
	}
	if delay > paceCeiling {
		delay = paceCeiling
	}
	return delay
}

func (s *ingestionServiceImpl) store(ctx context.Context, userDoc *models.UserDocument, pub publication, summary *documentSummary, chunks []PositionedChunk, vectors [][]float32, retrain bool) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("vector count %d does not match chunk count %d", len(vectors), len(chunks))
	}
	embeddingType := pub.EmbeddingType

	doc := models.Document{
		Slug:          pub.Slug,
		Title:         pub.Title,
		AccessLevel:   pub.AccessLevel,
		EmbeddingType: embeddingType,
		Active:        true,
	}
	if doc.Title == "" {
		doc.Title = userDoc.Title
	}
	if pub.OwnerSlug != "" {
		ownerSlug := pub.OwnerSlug
		doc.OwnerSlug = &ownerSlug
	}
	if summary != nil {
		if doc.Title == "" {
			doc.Title = summary.Title
		}
		doc.Subtitle = summary.Subtitle
		if meta, err := models.ConvertToJSON(map[string]interface{}{
			"abstract": summary.Abstract,
			"keywords": summary.Keywords,
		}); err == nil {
			doc.Metadata = meta
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if retrain {
			// Replace in place: metadata updates plus a full chunk swap,
			// atomically so readers never see a half-trained document
			updates := map[string]interface{}{
				"title":          doc.Title,
				"embedding_type": embeddingType,
				"updated_at":     time.Now(),
			}
			if doc.Subtitle != "" {
				updates["subtitle"] = doc.Subtitle
			}
			if doc.Metadata != nil {
				updates["metadata"] = doc.Metadata
			}
			if err := tx.Model(&models.Document{}).Where("slug = ?", pub.Slug).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update document row: %w", err)
			}
			if err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE document_slug = ?", models.ChunkTableName(embeddingType)), pub.Slug).Error; err != nil {
				return fmt.Errorf("failed to delete old chunks: %w", err)
			}
			// A retrain may also switch embedding type; clear the other table
			other := models.EmbeddingOpenAI
			if embeddingType == models.EmbeddingOpenAI {
				other = models.EmbeddingLocal
			}
			if err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE document_slug = ?", models.ChunkTableName(other)), pub.Slug).Error; err != nil {
				return fmt.Errorf("failed to clear alternate chunk table: %w", err)
			}
		} else {
			// Document row must exist before any chunk insert
			if err := tx.Create(&doc).Error; err != nil {
				return fmt.Errorf("failed to create document row: %w", err)
			}
		}

		for start := 0; start < len(chunks); start += storeBatchSize {
			end := start + storeBatchSize
			if end > len(chunks) {
				end = len(chunks)
			}
			if err := insertChunkBatch(tx, pub.Slug, chunks[start:end], vectors[start:end], embeddingType); err != nil {
				return err
			}
		}

		return nil
	})
}

func insertChunkBatch(tx *gorm.DB, slug string, chunks []PositionedChunk, vectors [][]float32, embeddingType models.EmbeddingType) error {
	if embeddingType == models.EmbeddingLocal {
		rows := make([]models.DocumentChunkLocal, len(chunks))
		for i, ch := range chunks {
			rows[i] = models.DocumentChunkLocal{
				DocumentSlug: slug,
				ChunkIndex:   ch.Index,
				Content:      ch.Content,
				Embedding:    pgvector.NewVector(vectors[i]),
				Metadata:     ChunkMetadataFor(ch),
			}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert chunk batch: %w", err)
		}
		return nil
	}

	rows := make([]models.DocumentChunkOpenAI, len(chunks))
	for i, ch := range chunks {
		rows[i] = models.DocumentChunkOpenAI{
			DocumentSlug: slug,
			ChunkIndex:   ch.Index,
			Content:      ch.Content,
			Embedding:    pgvector.NewVector(vectors[i]),
			Metadata:     ChunkMetadataFor(ch),
		}
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to insert chunk batch: %w", err)
	}
	return nil
}

// failDocument marks the upload errored and rolls back any partially
// created document so no orphaned chunks remain searchable.
func (s *ingestionServiceImpl) failDocument(ctx context.Context, userDoc *models.UserDocument, slug string, cause error) {
	log.Printf("[INGEST] Failed: user_document=%s slug=%s: %v", userDoc.ID, slug, cause)

	s.logStage(ctx, userDoc, slug, models.StageError, models.StageFailed, cause.Error(), nil)

	if err := s.setStatus(ctx, userDoc, models.StatusError, cause.Error()); err != nil {
		log.Printf("[INGEST] Failed to mark error status: %v", err)
	}

	// Cascade removes any chunks that made it in
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).Delete(&models.Document{}).Error; err != nil {
		log.Printf("[INGEST] Rollback of document %s failed: %v", slug, err)
	}
}

func (s *ingestionServiceImpl) setStatus(ctx context.Context, userDoc *models.UserDocument, status models.ProcessingStatus, errMsg string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errMsg,
		"updated_at":    time.Now(),
	}
	if err := s.db.WithContext(ctx).Model(userDoc).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to set status %s: %w", status, err)
	}
	userDoc.Status = status
	userDoc.ErrorMessage = errMsg
	return nil
}

func (s *ingestionServiceImpl) logStage(ctx context.Context, userDoc *models.UserDocument, slug string, stage models.ProcessingStage, status models.StageStatus, message string, meta map[string]interface{}) {
	entry := models.ProcessingLogEntry{
		UserDocumentID: &userDoc.ID,
		Stage:          stage,
		Status:         status,
		Message:        message,
	}
	if slug != "" {
		entry.DocumentSlug = &slug
	}
	if meta != nil {
		if j, err := models.ConvertToJSON(meta); err == nil {
			entry.Metadata = j
		}
	}
	s.plog.Log(ctx, entry)
}

func (s *ingestionServiceImpl) Status(ctx context.Context, user *models.User, userDocumentID uuid.UUID) (*models.ProcessingStatusResponse, error) {
	userDoc, err := s.loadOwnedUpload(ctx, user, userDocumentID)
	if err != nil {
		return nil, err
	}

	stages, err := s.plog.Stages(ctx, userDocumentID)
	if err != nil {
		log.Printf("[INGEST] Failed to load stage summaries for %s: %v", userDocumentID, err)
		stages = nil
	}

	return &models.ProcessingStatusResponse{
		ID:           userDoc.ID,
		Status:       userDoc.Status,
		ErrorMessage: userDoc.ErrorMessage,
		DocumentSlug: userDoc.DocumentSlug,
		Stages:       stages,
	}, nil
}
