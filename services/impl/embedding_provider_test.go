package impl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ragdock/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbeddingProvider(url string, dims int) *openAIEmbeddingProvider {
	return &openAIEmbeddingProvider{
		baseURL:    url,
		apiKey:     "test-key",
		model:      "test-embed",
		dimensions: dims,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func makeVector(dims int, fill float32) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestEmbedRestoresProviderOrder(t *testing.T) {
	const dims = 4

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-embed", req.Model)
		assert.Len(t, req.Input, 2)

		// Respond out of order; the client must restore input order
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 1, "embedding": makeVector(dims, 2.0)},
				{"index": 0, "embedding": makeVector(dims, 1.0)},
			},
		})
	}))
	defer server.Close()

	p := newTestEmbeddingProvider(server.URL, dims)
	vectors, err := p.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, float32(1.0), vectors[0][0])
	assert.Equal(t, float32(2.0), vectors[1][0])
}

func TestEmbedEmptyInput(t *testing.T) {
	p := newTestEmbeddingProvider("http://unused", 4)

	vectors, err := p.Embed(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbedAuthFailureDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid api key"}`))
	}))
	defer server.Close()

	p := newTestEmbeddingProvider(server.URL, 4)

	start := time.Now()
	_, err := p.Embed(context.Background(), []string{"text"})

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Less(t, time.Since(start), time.Second)

	var provErr *services.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, http.StatusUnauthorized, provErr.Status)
}

func TestEmbedDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 0, "embedding": makeVector(3, 1.0)},
			},
		})
	}))
	defer server.Close()

	p := newTestEmbeddingProvider(server.URL, 1536)

	_, err := p.Embed(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestEmbedCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 0, "embedding": makeVector(4, 1.0)},
			},
		})
	}))
	defer server.Close()

	p := newTestEmbeddingProvider(server.URL, 4)

	_, err := p.Embed(context.Background(), []string{"one", "two"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestPingReachability(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Write([]byte(`{"data":[]}`))
	}))
	defer healthy.Close()

	assert.NoError(t, newTestEmbeddingProvider(healthy.URL, 4).Ping(context.Background()))

	// Auth failures still mean the provider is up
	unauthorized := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer unauthorized.Close()

	assert.NoError(t, newTestEmbeddingProvider(unauthorized.URL, 4).Ping(context.Background()))

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	err := newTestEmbeddingProvider(broken.URL, 4).Ping(context.Background())
	var provErr *services.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, http.StatusInternalServerError, provErr.Status)

	down := httptest.NewServer(nil)
	down.Close()
	assert.Error(t, newTestEmbeddingProvider(down.URL, 4).Ping(context.Background()))
}

func TestSelectEmbeddingProvider(t *testing.T) {
	openai := newTestEmbeddingProvider("http://a", 1536)
	local := newTestEmbeddingProvider("http://b", 384)

	assert.Same(t, services.EmbeddingProvider(openai), SelectEmbeddingProvider("openai", openai, local))
	assert.Same(t, services.EmbeddingProvider(local), SelectEmbeddingProvider("local", openai, local))
	// Unknown types fall back to the wider vectors
	assert.Same(t, services.EmbeddingProvider(openai), SelectEmbeddingProvider("", openai, local))
}
