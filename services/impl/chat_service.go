package impl

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ragdock/config"
	"github.com/ragdock/models"
	"github.com/ragdock/services"
	"gorm.io/gorm"
)

type chatServiceImpl struct {
	db        *gorm.DB
	registry  services.RegistryService
	access    services.AccessService
	retrieval services.RetrievalService
	provider  services.ChatProvider

	standardModel  string
	reasoningModel string
}

func NewChatService(
	db *gorm.DB,
	registry services.RegistryService,
	access services.AccessService,
	retrieval services.RetrievalService,
	provider services.ChatProvider,
	chatCfg *config.ChatConfig,
) services.ChatService {
	return &chatServiceImpl{
		db:             db,
		registry:       registry,
		access:         access,
		retrieval:      retrieval,
		provider:       provider,
		standardModel:  chatCfg.StandardModel,
		reasoningModel: chatCfg.ReasoningModel,
	}
}

// chatPlan is everything resolved before the LLM call
type chatPlan struct {
	docs           []*models.Document
	model          string
	sessionID      string
	conversationID string
	retrieval      *models.RetrievalResult
	citations      []models.Citation
	messages       []services.ChatMessage
	metadata       map[string]interface{}
}

func (s *chatServiceImpl) prepare(ctx context.Context, user *models.User, req models.ChatRequest) (*chatPlan, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("message is required: %w", services.ErrBadRequest)
	}
	if len(req.DocumentSlugs) == 0 {
		return nil, fmt.Errorf("no document specified: %w", services.ErrBadRequest)
	}

	docs := make([]*models.Document, 0, len(req.DocumentSlugs))
	for _, slug := range req.DocumentSlugs {
		doc, ok := s.registry.Document(slug)
		if !ok {
			return nil, fmt.Errorf("document %s: %w", slug, services.ErrNotFound)
		}
		if err := s.access.CheckAccess(user, doc, req.Passcode); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	model := s.resolveModel(req.Model, docs)

	retrievalStart := time.Now()
	result, err := s.retrieval.Retrieve(ctx, docs, req.Message)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	retrieveMs := int(time.Since(retrievalStart).Milliseconds())

	plan := &chatPlan{
		docs:           docs,
		model:          model,
		sessionID:      req.SessionID,
		conversationID: req.ConversationID,
		retrieval:      result,
	}
	if plan.sessionID == "" {
		plan.sessionID = uuid.NewString()
	}
	if plan.conversationID == "" {
		plan.conversationID = uuid.NewString()
	}

	plan.metadata = map[string]interface{}{
		"model":                model,
		"modelRequested":       req.Model,
		"modelOverrideApplied": s.overrideApplied(req.Model, model),
		"embeddingType":        result.EmbeddingType,
		"chunksUsed":           len(result.Chunks),
		"chunkSources":         chunkSourcesOf(result.Chunks),
		"chunkLimit":           result.ChunkLimit,
		"includedDocuments":    result.IncludedDocuments,
		"retrieveMs":           retrieveMs,
		"embedMs":              result.EmbedMs,
		"fromCache":            result.FromCache,
		"sessionId":            plan.sessionID,
		"conversationId":       plan.conversationID,
	}
	if len(result.ExcludedDocuments) > 0 {
		plan.metadata["excludedDocuments"] = result.ExcludedDocuments
		plan.metadata["warning"] = "documents with mixed embedding types; local-embedding documents were excluded from search"
	}

	plan.messages, plan.citations = s.buildPrompt(req.Message, req.History, docs, result.Chunks)
	if len(plan.citations) > 0 {
		plan.metadata["citations"] = plan.citations
	}

	return plan, nil
}

// overrideApplied reports whether a document or owner force changed the
// model the caller asked for
func (s *chatServiceImpl) overrideApplied(requested, actual string) bool {
	if requested == "" {
		return false
	}
	direct := requested
	if tier, ok := s.tierOf(requested); ok {
		direct = s.modelForTier(tier)
	}
	return direct != actual
}

func chunkSourcesOf(chunks []models.RankedChunk) []models.ChunkSource {
	sources := make([]models.ChunkSource, len(chunks))
	for i, ch := range chunks {
		sources[i] = models.ChunkSource{
			Slug:       ch.DocumentSlug,
			ChunkIndex: ch.ChunkIndex,
			Similarity: ch.Similarity,
			Page:       ch.PageNumber,
		}
	}
	return sources
}

// resolveModel applies the override ladder. Requests naming a model
// outside the service's own family (for example a Gemini model) pass
// through untouched regardless of document or owner forces.
func (s *chatServiceImpl) resolveModel(requested string, docs []*models.Document) string {
	if requested != "" && !s.isManagedModel(requested) {
		return requested
	}

	// Per-document forces: one shared value wins, a conflict escalates
	// to the reasoning tier
	var forced []models.ModelTier
	for _, d := range docs {
		if d.ForcedModel != nil {
			forced = append(forced, *d.ForcedModel)
		}
	}
	if len(forced) > 0 {
		tier := forced[0]
		for _, f := range forced[1:] {
			if f != tier {
				return s.reasoningModel
			}
		}
		return s.modelForTier(tier)
	}

	// Owner force
	for _, d := range docs {
		if d.Owner != nil && d.Owner.ForcedModel != nil {
			return s.modelForTier(*d.Owner.ForcedModel)
		}
		if d.OwnerSlug != nil {
			if owner, ok := s.registry.Owner(*d.OwnerSlug); ok && owner.ForcedModel != nil {
				return s.modelForTier(*owner.ForcedModel)
			}
		}
	}

	if requested != "" {
		if tier, ok := s.tierOf(requested); ok {
			return s.modelForTier(tier)
		}
		return requested
	}
	return s.standardModel
}

func (s *chatServiceImpl) modelForTier(tier models.ModelTier) string {
	if tier == models.ModelReasoning {
		return s.reasoningModel
	}
	return s.standardModel
}

// tierOf maps a requested model string to a tier, accepting either the
// tier names or the concrete model names
func (s *chatServiceImpl) tierOf(model string) (models.ModelTier, bool) {
	switch model {
	case string(models.ModelStandard), s.standardModel:
		return models.ModelStandard, true
	case string(models.ModelReasoning), s.reasoningModel:
		return models.ModelReasoning, true
	}
	return "", false
}

func (s *chatServiceImpl) isManagedModel(model string) bool {
	if _, ok := s.tierOf(model); ok {
		return true
	}
	return strings.HasPrefix(strings.ToLower(model), "grok")
}

// buildPrompt assembles the system prompt with numbered context
// passages and footnote-citation instructions, threading prior turns
// between the system prompt and the new question. With no retrieved
// context the model is instructed to decline.
func (s *chatServiceImpl) buildPrompt(question string, history []models.HistoryMessage, docs []*models.Document, chunks []models.RankedChunk) ([]services.ChatMessage, []models.Citation) {
	titles := make(map[string]string, len(docs))
	for _, d := range docs {
		titles[d.Slug] = d.Title
	}
	multiDoc := len(docs) > 1

	if len(chunks) == 0 {
		system := "You are a document assistant. No relevant passages were found for the user's question. " +
			"Politely explain that the document does not appear to cover this topic and suggest rephrasing. Do not invent an answer."
		return appendHistory([]services.ChatMessage{{Role: "system", Content: system}}, history, question), nil
	}

	var sb strings.Builder
	sb.WriteString("You are a document assistant. Answer the question using only the numbered passages below.\n")
	sb.WriteString("Cite every claim with footnote markers like [1] or [2] matching the passage numbers.\n")
	sb.WriteString("If the passages do not contain the answer, say so instead of guessing.\n\nPassages:\n")

	citations := make([]models.Citation, 0, len(chunks))
	for i, ch := range chunks {
		n := i + 1
		label := fmt.Sprintf("[%d] (Page %d)", n, ch.PageNumber)
		if multiDoc {
			label = fmt.Sprintf("[%d] (%s, Page %d)", n, titles[ch.DocumentSlug], ch.PageNumber)
		}
		sb.WriteString(fmt.Sprintf("%s %s\n\n", label, ch.Content))

		citations = append(citations, models.Citation{
			Index:        n,
			DocumentSlug: ch.DocumentSlug,
			Title:        titles[ch.DocumentSlug],
			PageNumber:   ch.PageNumber,
			Similarity:   ch.Similarity,
		})
	}

	return appendHistory([]services.ChatMessage{{Role: "system", Content: sb.String()}}, history, question), citations
}

// appendHistory adds prior turns and the new question. Only user and
// assistant roles pass through; anything else in client-supplied
// history is dropped so it cannot smuggle in system instructions.
func appendHistory(messages []services.ChatMessage, history []models.HistoryMessage, question string) []services.ChatMessage {
	for _, h := range history {
		if h.Role != "user" && h.Role != "assistant" {
			continue
		}
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		messages = append(messages, services.ChatMessage{Role: h.Role, Content: h.Content})
	}
	return append(messages, services.ChatMessage{Role: "user", Content: question})
}

// referencesSection renders the footnote legend appended after the
// model's answer
func referencesSection(citations []models.Citation, multiDoc bool) string {
	if len(citations) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\nReferences\n")
	for _, c := range citations {
		if multiDoc {
			sb.WriteString(fmt.Sprintf("[%d] %s, Page %d\n", c.Index, c.Title, c.PageNumber))
		} else {
			sb.WriteString(fmt.Sprintf("[%d] Page %d\n", c.Index, c.PageNumber))
		}
	}
	return sb.String()
}

func (s *chatServiceImpl) Chat(ctx context.Context, user *models.User, req models.ChatRequest) (*models.ChatResponse, error) {
	start := time.Now()

	plan, err := s.prepare(ctx, user, req)
	if err != nil {
		return nil, err
	}

	events, err := s.provider.Stream(ctx, plan.messages, plan.model)
	if err != nil {
		s.logConversation(ctx, user, req, plan, "", start, time.Time{}, true)
		return nil, err
	}

	var answer strings.Builder
	var firstToken time.Time
	for ev := range events {
		switch ev.Type {
		case models.StreamEventContent:
			if firstToken.IsZero() {
				firstToken = time.Now()
			}
			answer.WriteString(ev.Content)
		case models.StreamEventError:
			s.logConversation(ctx, user, req, plan, answer.String(), start, firstToken, true)
			return nil, fmt.Errorf("chat stream failed: %w", ev.Err)
		}
	}

	full := answer.String() + referencesSection(plan.citations, len(plan.docs) > 1)

	s.logConversation(ctx, user, req, plan, full, start, firstToken, false)

	requested := req.Model
	if requested == "" {
		requested = plan.model
	}
	return &models.ChatResponse{
		Response:       full,
		Model:          requested,
		ActualModel:    plan.model,
		ConversationID: plan.conversationID,
		SessionID:      plan.sessionID,
		Citations:      plan.citations,
		Metadata:       plan.metadata,
	}, nil
}

func (s *chatServiceImpl) ChatStream(ctx context.Context, user *models.User, req models.ChatRequest) (<-chan models.StreamEvent, error) {
	start := time.Now()

	plan, err := s.prepare(ctx, user, req)
	if err != nil {
		return nil, err
	}

	upstream, err := s.provider.Stream(ctx, plan.messages, plan.model)
	if err != nil {
		s.logConversation(ctx, user, req, plan, "", start, time.Time{}, true)
		return nil, err
	}

	out := make(chan models.StreamEvent, 16)
	go func() {
		defer close(out)

		var answer strings.Builder
		var firstToken time.Time

		for ev := range upstream {
			switch ev.Type {
			case models.StreamEventContent:
				if firstToken.IsZero() {
					firstToken = time.Now()
				}
				answer.WriteString(ev.Content)
				out <- ev

			case models.StreamEventError:
				// Flush what we have, then the terminal error
				s.logConversation(ctx, user, req, plan, answer.String(), start, firstToken, true)
				out <- ev
				return

			case models.StreamEventDone:
				refs := referencesSection(plan.citations, len(plan.docs) > 1)
				if refs != "" {
					answer.WriteString(refs)
					out <- models.StreamEvent{Type: models.StreamEventContent, Content: refs}
				}
				s.logConversation(ctx, user, req, plan, answer.String(), start, firstToken, false)
				out <- models.StreamEvent{Type: models.StreamEventDone, Metadata: plan.metadata}
				return
			}
		}

		// Upstream closed without a terminal event
		s.logConversation(ctx, user, req, plan, answer.String(), start, firstToken, true)
		out <- models.StreamEvent{Type: models.StreamEventError, Err: fmt.Errorf("stream ended unexpectedly")}
	}()

	return out, nil
}

func (s *chatServiceImpl) logConversation(ctx context.Context, user *models.User, req models.ChatRequest, plan *chatPlan, answer string, start, firstToken time.Time, errored bool) {
	conv := models.Conversation{
		SessionID:      plan.sessionID,
		ConversationID: plan.conversationID,
		Question:       req.Message,
		Answer:         answer,
		ModelRequested: req.Model,
		ModelActual:    plan.model,
		TotalMs:        int(time.Since(start).Milliseconds()),
		Errored:        errored,
	}
	if user != nil && user.ID != "" {
		conv.UserID = &user.ID
	}
	if !firstToken.IsZero() {
		conv.FirstTokenMs = int(firstToken.Sub(start).Milliseconds())
	}
	if plan.retrieval != nil {
		conv.EmbedMs = plan.retrieval.EmbedMs
		conv.RetrieveMs = plan.retrieval.SearchMs
	}
	if slugs, err := models.ConvertToJSON(req.DocumentSlugs); err == nil {
		conv.DocumentSlugs = slugs
	}
	if meta, err := models.ConvertToJSON(plan.metadata); err == nil {
		conv.RetrievalMetadata = meta
	}

	// Audit logging must never fail the request, and must survive the
	// client disconnecting mid-stream
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(&conv).Error; err != nil {
		log.Printf("[CHAT] Failed to log conversation: %v", err)
	}
}
