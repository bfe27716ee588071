package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Conversation is the audit record written after every answered chat
// turn. It is write-only from the service's perspective: nothing reads
// it back into prompts.
type Conversation struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SessionID      string         `json:"session_id" gorm:"type:varchar(255);not null;index"`
	ConversationID string         `json:"conversation_id" gorm:"type:varchar(255);index"`
	UserID         *string        `json:"user_id,omitempty" gorm:"type:varchar(255);index"`
	DocumentSlugs  datatypes.JSON `json:"document_slugs" gorm:"type:jsonb;default:'[]'"`

	Question string `json:"question" gorm:"type:text;not null"`
	Answer   string `json:"answer" gorm:"type:text"`

	ModelRequested string `json:"model_requested" gorm:"type:varchar(255)"`
	ModelActual    string `json:"model_actual" gorm:"type:varchar(255)"`

	RetrievalMetadata datatypes.JSON `json:"retrieval_metadata,omitempty" gorm:"type:jsonb"`

	EmbedMs      int  `json:"embed_ms"`
	RetrieveMs   int  `json:"retrieve_ms"`
	FirstTokenMs int  `json:"first_token_ms"`
	TotalMs      int  `json:"total_ms"`
	Errored      bool `json:"errored" gorm:"default:false"`

	Rating *int `json:"rating,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`
}

func (Conversation) TableName() string {
	return "conversations"
}
