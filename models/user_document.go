package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusReady      ProcessingStatus = "ready"
	StatusError      ProcessingStatus = "error"
)

// UserDocument tracks one uploaded file through the ingestion pipeline.
// Status machine: pending → processing → ready | error. An error row may
// be retried back to pending; a stalled processing row is swept back to
// pending by the recovery service.
type UserDocument struct {
	ID           uuid.UUID        `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID       string           `json:"user_id" gorm:"type:varchar(255);not null;index"`
	Title        string           `json:"title" gorm:"not null"`
	Status       ProcessingStatus `json:"status" gorm:"type:varchar(50);not null;default:'pending';index"`
	ErrorMessage string           `json:"error_message,omitempty"`
	FilePath     string           `json:"file_path,omitempty" gorm:"type:varchar(1024)"`
	MimeType     string           `json:"mime_type,omitempty" gorm:"type:varchar(255)"`

	// Publication parameters captured at upload time. The pipeline reads
	// them on admission and again when a retry restarts the run, so a
	// caller can never override them through the processing endpoints.
	Slug          string        `json:"slug,omitempty" gorm:"type:varchar(255)"`
	OwnerSlug     *string       `json:"owner_slug,omitempty" gorm:"type:varchar(255)"`
	AccessLevel   AccessLevel   `json:"access_level,omitempty" gorm:"type:varchar(50)"`
	EmbeddingType EmbeddingType `json:"embedding_type,omitempty" gorm:"type:varchar(50)"`

	// Set once the pipeline finishes and the document becomes searchable
	DocumentSlug *string `json:"document_slug,omitempty" gorm:"type:varchar(255)"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:now()"`
}

func (UserDocument) TableName() string {
	return "user_documents"
}

type ProcessingStage string
type StageStatus string

const (
	StageDownload ProcessingStage = "download"
	StageExtract  ProcessingStage = "extract"
	StageSummarize ProcessingStage = "summarize"
	StageChunk    ProcessingStage = "chunk"
	StageEmbed    ProcessingStage = "embed"
	StageStore    ProcessingStage = "store"
	StageComplete ProcessingStage = "complete"
	StageError    ProcessingStage = "error"

	StageStarted   StageStatus = "started"
	StageProgress  StageStatus = "progress"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// ProcessingLogEntry is one audit record from the ingestion pipeline,
// persisted to both the database and the NDJSON log file
type ProcessingLogEntry struct {
	ID             int64           `json:"id" gorm:"primary_key;autoIncrement"`
	UserDocumentID *uuid.UUID      `json:"user_document_id,omitempty" gorm:"type:uuid;index"`
	DocumentSlug   *string         `json:"document_slug,omitempty" gorm:"type:varchar(255)"`
	Stage          ProcessingStage `json:"stage" gorm:"type:varchar(50);not null"`
	Status         StageStatus     `json:"status" gorm:"type:varchar(50);not null"`
	Message        string          `json:"message"`
	Metadata       datatypes.JSON  `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null;default:now()"`
}

func (ProcessingLogEntry) TableName() string {
	return "processing_log"
}
