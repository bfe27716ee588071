package impl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ragdock/config"
	"github.com/ragdock/models"
	"github.com/ragdock/services"
)

type chatProviderImpl struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	streamClient *http.Client // No total timeout, for SSE streaming
	idleTimeout  time.Duration
}

func NewChatProvider(cfg *config.ChatConfig) services.ChatProvider {
	return &chatProviderImpl{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.SummaryTimeout) * time.Second,
		},
		streamClient: &http.Client{
			// No Timeout — streaming responses flow incrementally, so a total
			// timeout would kill long generations. Idle gaps between tokens
			// are bounded separately.
		},
		idleTimeout: time.Duration(cfg.StreamIdleTimeout) * time.Second,
	}
}

type chatCompletionRequest struct {
	Model    string                 `json:"model"`
	Messages []services.ChatMessage `json:"messages"`
	Stream   bool                   `json:"stream,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *chatProviderImpl) Complete(ctx context.Context, messages []services.ChatMessage, model string) (string, error) {
	jsonData, err := json.Marshal(chatCompletionRequest{Model: model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	var content string
	err = retryWithBackoff(ctx, func() error {
		url := fmt.Sprintf("%s/v1/chat/completions", p.baseURL)
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create HTTP request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return normalizeProviderError(err, nil, nil)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return normalizeProviderError(nil, resp, body)
		}

		var compResp chatCompletionResponse
		if err := json.NewDecoder(resp.Body).Decode(&compResp); err != nil {
			return fmt.Errorf("failed to decode completion response: %w", err)
		}

		if len(compResp.Choices) == 0 {
			return fmt.Errorf("no choices in completion response")
		}

		content = compResp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}

	return content, nil
}

// Ping checks reachability with a single GET to the models listing.
// Any HTTP response below 500 counts as reachable.
func (p *chatProviderImpl) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1/models", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return normalizeProviderError(err, nil, nil)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return &services.ProviderError{Status: resp.StatusCode, Message: "provider unhealthy"}
	}
	return nil
}

func (p *chatProviderImpl) Stream(ctx context.Context, messages []services.ChatMessage, model string) (<-chan models.StreamEvent, error) {
	jsonData, err := json.Marshal(chatCompletionRequest{Model: model, Messages: messages, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	}

	resp, err := p.streamClient.Do(req)
	if err != nil {
		return nil, normalizeProviderError(err, nil, nil)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, normalizeProviderError(nil, resp, body)
	}

	events := make(chan models.StreamEvent, 16)
	go p.readStream(ctx, resp.Body, events)

	return events, nil
}

// readStream pumps SSE chunks into the event channel. A watchdog resets
// on every token; if the provider goes silent longer than idleTimeout
// the stream is treated as dead.
func (p *chatProviderImpl) readStream(ctx context.Context, body io.ReadCloser, events chan<- models.StreamEvent) {
	defer close(events)
	defer body.Close()

	lines := make(chan string, 16)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
	}()

	idle := time.NewTimer(p.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			events <- models.StreamEvent{Type: models.StreamEventError, Err: ctx.Err()}
			return

		case <-idle.C:
			events <- models.StreamEvent{
				Type: models.StreamEventError,
				Err:  fmt.Errorf("stream idle for %s: %w", p.idleTimeout, services.ErrTimeout),
			}
			return

		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					events <- models.StreamEvent{Type: models.StreamEventError, Err: fmt.Errorf("error reading SSE stream: %w", err)}
					return
				}
				// Stream ended without [DONE]; treat as complete
				events <- models.StreamEvent{Type: models.StreamEventDone}
				return
			}

			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(p.idleTimeout)

			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}

			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				events <- models.StreamEvent{Type: models.StreamEventDone}
				return
			}

			var chunk chatStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				log.Printf("[STREAM] Failed to parse SSE chunk: %v (data: %.100s)", err, data)
				continue
			}

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					events <- models.StreamEvent{Type: models.StreamEventContent, Content: choice.Delta.Content}
				}
			}
		}
	}
}
