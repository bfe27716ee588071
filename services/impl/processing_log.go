package impl

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/ragdock/models"
	"github.com/ragdock/services"
	"gorm.io/gorm"
)

// processingLogImpl writes every pipeline audit entry to two sinks:
// an append-only NDJSON file and the processing_log table. A sink
// failure is logged to stderr and never surfaces to the pipeline.
type processingLogImpl struct {
	db   *gorm.DB
	file *os.File
	mu   sync.Mutex
}

func NewProcessingLog(db *gorm.DB, path string) (services.ProcessingLogService, error) {
	var file *os.File
	if path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open processing log file: %w", err)
		}
		file = f
	}

	return &processingLogImpl{db: db, file: file}, nil
}

func (s *processingLogImpl) Log(ctx context.Context, entry models.ProcessingLogEntry) {
	if s.file != nil {
		line, err := json.Marshal(entry)
		if err == nil {
			s.mu.Lock()
			_, err = s.file.Write(append(line, '\n'))
			s.mu.Unlock()
		}
		if err != nil {
			log.Printf("[PROCESSING-LOG] file sink failed: %v", err)
		}
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		log.Printf("[PROCESSING-LOG] db sink failed: %v", err)
	}
}

func (s *processingLogImpl) Stages(ctx context.Context, userDocumentID uuid.UUID) ([]models.StageSummary, error) {
	var entries []models.ProcessingLogEntry
	err := s.db.WithContext(ctx).
		Where("user_document_id = ?", userDocumentID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load processing log: %w", err)
	}

	// Latest status per stage, in first-seen stage order
	order := make([]models.ProcessingStage, 0, len(entries))
	latest := make(map[models.ProcessingStage]models.StageSummary)
	for _, e := range entries {
		if _, seen := latest[e.Stage]; !seen {
			order = append(order, e.Stage)
		}
		latest[e.Stage] = models.StageSummary{
			Stage:   e.Stage,
			Status:  e.Status,
			Message: e.Message,
		}
	}

	summaries := make([]models.StageSummary, 0, len(order))
	for _, stage := range order {
		summaries = append(summaries, latest[stage])
	}
	return summaries, nil
}

func (s *processingLogImpl) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
