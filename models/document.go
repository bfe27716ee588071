package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type AccessLevel string
type EmbeddingType string
type ModelTier string

const (
	AccessPublic          AccessLevel = "public"
	AccessPasscode        AccessLevel = "passcode"
	AccessRegistered      AccessLevel = "registered"
	AccessOwnerRestricted AccessLevel = "owner_restricted"
	AccessOwnerAdminOnly  AccessLevel = "owner_admin_only"

	EmbeddingOpenAI EmbeddingType = "openai" // 1536 dimensions
	EmbeddingLocal  EmbeddingType = "local"  // 384 dimensions

	ModelStandard  ModelTier = "standard"
	ModelReasoning ModelTier = "reasoning"
)

// Dimensions returns the vector width for an embedding type.
func (t EmbeddingType) Dimensions() int {
	if t == EmbeddingLocal {
		return 384
	}
	return 1536
}

// DownloadLink is one entry in a document's downloads list
type DownloadLink struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type DownloadLinks []DownloadLink

func (d DownloadLinks) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *DownloadLinks) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), d)
	}

	return json.Unmarshal(bytes, d)
}

// Owner is a tenant: a publisher whose documents share branding,
// defaults, and admin membership
type Owner struct {
	Slug              string     `json:"slug" gorm:"type:varchar(255);primary_key"`
	Name              string     `json:"name" gorm:"not null"`
	CustomDomain      *string    `json:"custom_domain,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	DefaultChunkLimit *int       `json:"default_chunk_limit,omitempty"`
	ForcedModel       *ModelTier `json:"forced_model,omitempty" gorm:"type:varchar(50)"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:now()"`
}

func (Owner) TableName() string {
	return "owners"
}

type Document struct {
	Slug     string  `json:"slug" gorm:"type:varchar(255);primary_key"`
	Title    string  `json:"title" gorm:"not null"`
	Subtitle string  `json:"subtitle"`
	OwnerSlug *string `json:"owner_slug,omitempty" gorm:"type:varchar(255);index"`
	Owner    *Owner  `json:"owner,omitempty" gorm:"foreignKey:OwnerSlug;references:Slug"`

	AccessLevel AccessLevel `json:"access_level" gorm:"type:varchar(50);not null;default:'public'"`
	Passcode    *string     `json:"-" gorm:"type:varchar(255)"`

	EmbeddingType      EmbeddingType `json:"embedding_type" gorm:"type:varchar(50);not null;default:'openai'"`
	ChunkLimitOverride *int          `json:"chunk_limit_override,omitempty"`
	ForcedModel        *ModelTier    `json:"forced_model,omitempty" gorm:"type:varchar(50)"`

	Active    bool           `json:"active" gorm:"not null;default:true"`
	Downloads DownloadLinks  `json:"downloads,omitempty" gorm:"type:jsonb;default:'[]'"`
	Metadata  datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb;default:'{}'"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:now()"`
}

func (Document) TableName() string {
	return "documents"
}

// ChunkMetadata records where a chunk came from in the source document
type ChunkMetadata struct {
	PageNumber int `json:"page_number"`
	CharStart  int `json:"char_start"`
	CharEnd    int `json:"char_end"`
}

func (m ChunkMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *ChunkMetadata) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), m)
	}

	return json.Unmarshal(bytes, m)
}

// DocumentChunkOpenAI holds 1536-dim embeddings. The two chunk tables are
// split by embedding type because pgvector columns have a fixed width.
type DocumentChunkOpenAI struct {
	ID           int64           `json:"id" gorm:"primary_key;autoIncrement"`
	DocumentSlug string          `json:"document_slug" gorm:"type:varchar(255);not null;index"`
	Document     *Document       `json:"-" gorm:"foreignKey:DocumentSlug;references:Slug;constraint:OnDelete:CASCADE"`
	ChunkIndex   int             `json:"chunk_index" gorm:"not null"`
	Content      string          `json:"content" gorm:"type:text;not null"`
	Embedding    pgvector.Vector `json:"-" gorm:"type:vector(1536)"`
	Metadata     ChunkMetadata   `json:"metadata" gorm:"type:jsonb"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null;default:now()"`
}

func (DocumentChunkOpenAI) TableName() string {
	return "document_chunks_openai"
}

// DocumentChunkLocal holds 384-dim embeddings from the local model
type DocumentChunkLocal struct {
	ID           int64           `json:"id" gorm:"primary_key;autoIncrement"`
	DocumentSlug string          `json:"document_slug" gorm:"type:varchar(255);not null;index"`
	Document     *Document       `json:"-" gorm:"foreignKey:DocumentSlug;references:Slug;constraint:OnDelete:CASCADE"`
	ChunkIndex   int             `json:"chunk_index" gorm:"not null"`
	Content      string          `json:"content" gorm:"type:text;not null"`
	Embedding    pgvector.Vector `json:"-" gorm:"type:vector(384)"`
	Metadata     ChunkMetadata   `json:"metadata" gorm:"type:jsonb"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null;default:now()"`
}

func (DocumentChunkLocal) TableName() string {
	return "document_chunks_local"
}

// ChunkTableName maps an embedding type to its chunk table.
func ChunkTableName(t EmbeddingType) string {
	if t == EmbeddingLocal {
		return DocumentChunkLocal{}.TableName()
	}
	return DocumentChunkOpenAI{}.TableName()
}

// EffectiveChunkLimit resolves the retrieval chunk limit for a document:
// document override wins over the owner default, which wins over the
// system default. The result is clamped to [1, 200].
func (d *Document) EffectiveChunkLimit(owner *Owner, systemDefault int) int {
	limit := systemDefault
	if owner != nil && owner.DefaultChunkLimit != nil {
		limit = *owner.DefaultChunkLimit
	}
	if d.ChunkLimitOverride != nil {
		limit = *d.ChunkLimitOverride
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}
	return limit
}
