package models

import "github.com/google/uuid"

// ProcessDocumentRequest starts ingestion of an uploaded file. The
// publication parameters (slug, access level, embedding type) live on
// the UserDocument row, not on the request.
type ProcessDocumentRequest struct {
	UserDocumentID uuid.UUID `json:"user_document_id" binding:"required"`
}

// RetrainDocumentRequest reprocesses an already-ingested document,
// keeping its slug and replacing its chunks
type RetrainDocumentRequest struct {
	UserDocumentID uuid.UUID `json:"user_document_id" binding:"required"`
}

// HistoryMessage is one prior turn supplied by the client
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is shared by the buffered and streaming chat endpoints.
// Doc is the raw document reference ("slug" or "slug1+slug2"); handlers
// parse it into DocumentSlugs before the orchestrator sees the request.
type ChatRequest struct {
	Message        string           `json:"message" binding:"required"`
	History        []HistoryMessage `json:"history,omitempty"`
	Model          string           `json:"model,omitempty"`
	Doc            string           `json:"doc" binding:"required"`
	Embedding      string           `json:"embedding,omitempty"`
	Passcode       string           `json:"passcode,omitempty"`
	SessionID      string           `json:"sessionId,omitempty"`
	ConversationID string           `json:"conversationId,omitempty"`

	// Parsed from Doc at the HTTP boundary
	DocumentSlugs []string `json:"-"`
}

// ChatResponse is the buffered (non-streaming) answer
type ChatResponse struct {
	Response       string                 `json:"response"`
	Model          string                 `json:"model"`
	ActualModel    string                 `json:"actualModel"`
	ConversationID string                 `json:"conversationId"`
	SessionID      string                 `json:"sessionId"`
	Citations      []Citation             `json:"citations,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Citation maps a footnote number in the answer to its source chunk
type Citation struct {
	Index        int     `json:"index"`
	DocumentSlug string  `json:"document_slug"`
	Title        string  `json:"title,omitempty"`
	PageNumber   int     `json:"page_number"`
	Similarity   float64 `json:"similarity"`
}

// ChunkSource reports provenance for one retrieved chunk in response
// metadata
type ChunkSource struct {
	Slug       string  `json:"slug"`
	ChunkIndex int     `json:"chunkIndex"`
	Similarity float64 `json:"similarity"`
	Page       int     `json:"page"`
}

// CheckAccessRequest probes whether the caller may read a document
type CheckAccessRequest struct {
	DocumentSlug string `json:"document_slug" binding:"required"`
	Passcode     string `json:"passcode,omitempty"`
}

// StreamEventType enumerates SSE event names on /chat/stream
type StreamEventType string

const (
	StreamEventContent StreamEventType = "content"
	StreamEventDone    StreamEventType = "done"
	StreamEventError   StreamEventType = "error"
)

// StreamEvent is one token, the terminal payload, or an error on the
// chat stream
type StreamEvent struct {
	Type     StreamEventType        `json:"type"`
	Content  string                 `json:"content,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Err      error                  `json:"-"`
}

// RankedChunk is one retrieval hit, ordered by similarity
type RankedChunk struct {
	DocumentSlug string  `json:"document_slug"`
	ChunkIndex   int     `json:"chunk_index"`
	Content      string  `json:"content"`
	Similarity   float64 `json:"similarity"`
	PageNumber   int     `json:"page_number"`
	CharStart    int     `json:"char_start"`
	CharEnd      int     `json:"char_end"`
}

// RetrievalResult is the full output of a retrieval pass, including
// the coercion bookkeeping for mixed-embedding multi-document queries
type RetrievalResult struct {
	Chunks            []RankedChunk `json:"chunks"`
	EmbeddingType     EmbeddingType `json:"embedding_type"`
	IncludedDocuments []string      `json:"included_documents"`
	ExcludedDocuments []string      `json:"excluded_documents,omitempty"`
	ChunkLimit        int           `json:"chunk_limit"`
	FromCache         bool          `json:"-"`
	EmbedMs           int           `json:"-"`
	SearchMs          int           `json:"-"`
}

// ProcessingStatusResponse reports pipeline progress for one upload
type ProcessingStatusResponse struct {
	ID           uuid.UUID        `json:"id"`
	Status       ProcessingStatus `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
	DocumentSlug *string          `json:"document_slug,omitempty"`
	Stages       []StageSummary   `json:"stages,omitempty"`
}

// StageSummary is the latest log status per pipeline stage
type StageSummary struct {
	Stage   ProcessingStage `json:"stage"`
	Status  StageStatus     `json:"status"`
	Message string          `json:"message,omitempty"`
}
