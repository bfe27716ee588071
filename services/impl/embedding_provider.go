package impl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ragdock/config"
	"github.com/ragdock/models"
	"github.com/ragdock/services"
)

// openAIEmbeddingProvider talks to an OpenAI-compatible /v1/embeddings
// endpoint and returns 1536-dim vectors
type openAIEmbeddingProvider struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
}

// localEmbeddingProvider talks to a self-hosted embedding server with
// the same wire shape and returns 384-dim vectors
type localEmbeddingProvider struct {
	openAIEmbeddingProvider
}

func NewOpenAIEmbeddingProvider(cfg *config.EmbeddingConfig) services.EmbeddingProvider {
	return &openAIEmbeddingProvider{
		baseURL:    cfg.OpenAIBaseURL,
		apiKey:     cfg.OpenAIAPIKey,
		model:      cfg.OpenAIModel,
		dimensions: models.EmbeddingOpenAI.Dimensions(),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

func NewLocalEmbeddingProvider(cfg *config.EmbeddingConfig) services.EmbeddingProvider {
	return &localEmbeddingProvider{
		openAIEmbeddingProvider: openAIEmbeddingProvider{
			baseURL:    cfg.LocalBaseURL,
			model:      cfg.LocalModel,
			dimensions: models.EmbeddingLocal.Dimensions(),
			httpClient: &http.Client{
				Timeout: time.Duration(cfg.Timeout) * time.Second,
			},
		},
	}
}

// SelectEmbeddingProvider maps an embedding type to its adapter.
func SelectEmbeddingProvider(t models.EmbeddingType, openai, local services.EmbeddingProvider) services.EmbeddingProvider {
	if t == models.EmbeddingLocal {
		return local
	}
	return openai
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *openAIEmbeddingProvider) Dimensions() int {
	return p.dimensions
}

// Ping checks reachability with a single GET to the models listing.
// Any HTTP response below 500 counts as reachable; auth problems are
// surfaced by real calls, not the readiness probe.
func (p *openAIEmbeddingProvider) Ping(ctx context.Context) error {
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

func (p *openAIEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	jsonData, err := json.Marshal(embeddingRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	var vectors [][]float32
	err = retryWithBackoff(ctx, func() error {
		url := fmt.Sprintf("%s/v1/embeddings", p.baseURL)
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

		var embResp embeddingResponse
		if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
			return fmt.Errorf("failed to decode embedding response: %w", err)
		}

		if len(embResp.Data) != len(texts) {
			return fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(embResp.Data))
		}

		// Providers may reorder; restore input order by index
		vectors = make([][]float32, len(texts))
		for _, d := range embResp.Data {
			if d.Index < 0 || d.Index >= len(texts) {
				return fmt.Errorf("embedding index %d out of range", d.Index)
			}
			vectors[d.Index] = d.Embedding
		}

		for i, v := range vectors {
			if len(v) != p.dimensions {
				return fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(v), p.dimensions)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return vectors, nil
}
