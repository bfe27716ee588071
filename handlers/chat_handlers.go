package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ragdock/models"
	"github.com/ragdock/services"
)

type ChatHandlers struct {
	chat     services.ChatService
	registry services.RegistryService
	access   services.AccessService
}

func NewChatHandlers(chat services.ChatService, registry services.RegistryService, access services.AccessService) *ChatHandlers {
	return &ChatHandlers{
		chat:     chat,
		registry: registry,
		access:   access,
	}
}

// maxDocRefs bounds how many documents one query may reference
const maxDocRefs = 5

// parseDocRefs splits a document reference ("slug" or "slug1+slug2")
// into slugs. Validation happens here, at the boundary, so the
// orchestrator only ever sees a well-formed set.
func parseDocRefs(doc string) ([]string, error) {
	parts := strings.Split(doc, "+")
	slugs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("empty document slug in %q: %w", doc, services.ErrBadRequest)
		}
		slugs = append(slugs, p)
	}
	if len(slugs) > maxDocRefs {
		return nil, fmt.Errorf("at most %d documents per query, got %d: %w", maxDocRefs, len(slugs), services.ErrBadRequest)
	}
	return slugs, nil
}

// Chat handles POST /api/v1/chat — buffered answer
func (h *ChatHandlers) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	slugs, err := parseDocRefs(req.Doc)
	if err != nil {
		respondError(c, err)
		return
	}
	req.DocumentSlugs = slugs

	resp, err := h.chat.Chat(c.Request.Context(), CurrentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	// Answers embed access-controlled content; keep them out of shared caches
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}

// ChatStream handles POST /api/v1/chat/stream — SSE token stream with
// content, done, and error events
func (h *ChatHandlers) ChatStream(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	slugs, err := parseDocRefs(req.Doc)
	if err != nil {
		respondError(c, err)
		return
	}
	req.DocumentSlugs = slugs

	events, err := h.chat.ChatStream(c.Request.Context(), CurrentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondError(c, fmt.Errorf("streaming unsupported by connection"))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-store")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		switch ev.Type {
		case models.StreamEventContent:
			sendEvent(c, flusher, "content", gin.H{"content": ev.Content})
		case models.StreamEventDone:
			sendEvent(c, flusher, "done", gin.H{"metadata": ev.Metadata})
			return
		case models.StreamEventError:
			sendEvent(c, flusher, "error", gin.H{"message": ev.Err.Error()})
			return
		}
	}
}

// sendEvent writes one SSE event and flushes it to the client
func sendEvent(c *gin.Context, flusher http.Flusher, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("[SSE] Failed to marshal %s event: %v", event, err)
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

// CheckAccess handles POST /api/v1/check-access — probes readability
// of a document for the current caller without running a query
func (h *ChatHandlers) CheckAccess(c *gin.Context) {
	var req models.CheckAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	doc, ok := h.registry.Document(req.DocumentSlug)
	if !ok {
		respondError(c, fmt.Errorf("document %s: %w", req.DocumentSlug, services.ErrNotFound))
		return
	}

	if err := h.access.CheckAccess(CurrentUser(c), doc, req.Passcode); err != nil {
		respondError(c, err)
		return
	}

	// Access decisions are per-caller; never cache them
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"allowed":       true,
		"document_slug": doc.Slug,
		"title":         doc.Title,
		"access_level":  doc.AccessLevel,
	})
}
