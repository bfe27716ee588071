package impl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/ragdock/config"
	"github.com/ragdock/models"
	"github.com/ragdock/services"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	maxMultiDocs    = 5
	perDocCap       = 5
	totalChunkCap   = 25
)

type retrievalServiceImpl struct {
	db          *gorm.DB
	embedOpenAI services.EmbeddingProvider
	embedLocal  services.EmbeddingProvider
	cache       *retrievalCache

	systemChunkLimit int
	similarityFloor  float64
}

func NewRetrievalService(
	db *gorm.DB,
	embedOpenAI, embedLocal services.EmbeddingProvider,
	redisClient *redis.Client,
	cfg *config.RetrievalConfig,
	cacheTTL time.Duration,
) services.RetrievalService {
	return &retrievalServiceImpl{
		db:               db,
		embedOpenAI:      embedOpenAI,
		embedLocal:       embedLocal,
		cache:            newRetrievalCache(redisClient, cacheTTL),
		systemChunkLimit: cfg.SystemChunkLimit,
		similarityFloor:  cfg.SimilarityFloor,
	}
}

func (s *retrievalServiceImpl) Retrieve(ctx context.Context, docs []*models.Document, query string) (*models.RetrievalResult, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents to search: %w", services.ErrBadRequest)
	}
	if len(docs) > maxMultiDocs {
		return nil, fmt.Errorf("at most %d documents per query, got %d: %w", maxMultiDocs, len(docs), services.ErrBadRequest)
	}

	if len(docs) > 1 {
		owner := ownerSlugOf(docs[0])
		for _, d := range docs[1:] {
			if ownerSlugOf(d) != owner {
				return nil, fmt.Errorf("multi-document queries must stay within one owner: %w", services.ErrBadRequest)
			}
		}
	}

	embeddingType, included, excluded := resolveEmbeddingType(docs)
	if len(included) == 0 {
		return nil, fmt.Errorf("no documents left after embedding type resolution")
	}

	limit := s.resolveChunkLimit(included)

	result := &models.RetrievalResult{
		EmbeddingType:     embeddingType,
		IncludedDocuments: slugsOf(included),
		ExcludedDocuments: slugsOf(excluded),
		ChunkLimit:        limit,
	}

	cacheKey := s.cache.key(result.IncludedDocuments, query, limit, embeddingType)

	// Check the cache and embed the query in parallel; on a hit the
	// embedding is abandoned via context cancellation
	var cached []models.RankedChunk
	var queryVec []float32

	g, gctx := errgroup.WithContext(ctx)
	cacheCtx, cancelEmbed := context.WithCancel(gctx)

	g.Go(func() error {
		if hit, ok := s.cache.get(gctx, cacheKey); ok {
			cached = hit
			cancelEmbed()
		}
		return nil
	})
	g.Go(func() error {
		embedStart := time.Now()
		provider := SelectEmbeddingProvider(embeddingType, s.embedOpenAI, s.embedLocal)
		vec, err := provider.Embed(cacheCtx, []string{query})
		result.EmbedMs = int(time.Since(embedStart).Milliseconds())
		if err != nil {
			if cacheCtx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to embed query: %w", err)
		}
		if len(vec) != 1 {
			return fmt.Errorf("expected 1 query vector, got %d", len(vec))
		}
		queryVec = vec[0]
		return nil
	})
	if err := g.Wait(); err != nil {
		cancelEmbed()
		return nil, err
	}
	cancelEmbed()

	if cached != nil {
		result.Chunks = cached
		result.FromCache = true
		return result, nil
	}
	if queryVec == nil {
		return nil, fmt.Errorf("query embedding unavailable")
	}

	searchStart := time.Now()
	var chunks []models.RankedChunk
	var err error
	if len(included) == 1 {
		chunks, err = s.searchSingle(ctx, included[0].Slug, queryVec, embeddingType, limit)
	} else {
		chunks, err = s.searchMulti(ctx, result.IncludedDocuments, queryVec, embeddingType, limit)
	}
	if err != nil {
		return nil, err
	}
	result.SearchMs = int(time.Since(searchStart).Milliseconds())

	// Drop weak matches
	filtered := chunks[:0]
	for _, ch := range chunks {
		if ch.Similarity >= s.similarityFloor {
			filtered = append(filtered, ch)
		}
	}
	result.Chunks = filtered

	s.cache.set(ctx, cacheKey, result.Chunks)
	return result, nil
}

type chunkRow struct {
	DocumentSlug string
	ChunkIndex   int
	Content      string
	Similarity   float64
	Metadata     models.ChunkMetadata
}

func (s *retrievalServiceImpl) searchSingle(ctx context.Context, slug string, queryVec []float32, embeddingType models.EmbeddingType, limit int) ([]models.RankedChunk, error) {
	table := models.ChunkTableName(embeddingType)
	sql := fmt.Sprintf(`
		SELECT document_slug, chunk_index, content, metadata,
		       1 - (embedding <=> ?) AS similarity
		FROM %s
		WHERE document_slug = ?
		ORDER BY embedding <=> ?
		LIMIT ?`, table)

	vec := pgvector.NewVector(queryVec)
	var rows []chunkRow
	if err := s.db.WithContext(ctx).Raw(sql, vec, slug, vec, limit).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	return toRankedChunks(rows), nil
}

// searchMulti balances results across documents: each document may
// contribute at most min(ceil(limit/N), 5) chunks, ranked per document
// by similarity, then globally re-ranked. Total output is capped at 25.
func (s *retrievalServiceImpl) searchMulti(ctx context.Context, slugs []string, queryVec []float32, embeddingType models.EmbeddingType, limit int) ([]models.RankedChunk, error) {
	n := len(slugs)
	perDoc := int(math.Ceil(float64(limit) / float64(n)))
	if perDoc > perDocCap {
		perDoc = perDocCap
	}

	total := limit
	if total > totalChunkCap {
		total = totalChunkCap
	}

	table := models.ChunkTableName(embeddingType)
	sql := fmt.Sprintf(`
		SELECT document_slug, chunk_index, content, metadata, similarity FROM (
			SELECT document_slug, chunk_index, content, metadata,
			       1 - (embedding <=> ?) AS similarity,
			       ROW_NUMBER() OVER (PARTITION BY document_slug ORDER BY embedding <=> ?) AS doc_rank
			FROM %s
			WHERE document_slug = ANY(?)
		) ranked
		WHERE doc_rank <= ?
		ORDER BY similarity DESC
		LIMIT ?`, table)

	vec := pgvector.NewVector(queryVec)
	var rows []chunkRow
	if err := s.db.WithContext(ctx).Raw(sql, vec, vec, pq.Array(slugs), perDoc, total).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("multi-document vector search failed: %w", err)
	}

	return toRankedChunks(rows), nil
}

func toRankedChunks(rows []chunkRow) []models.RankedChunk {
	chunks := make([]models.RankedChunk, len(rows))
	for i, r := range rows {
		chunks[i] = models.RankedChunk{
			DocumentSlug: r.DocumentSlug,
			ChunkIndex:   r.ChunkIndex,
			Content:      r.Content,
			Similarity:   r.Similarity,
			PageNumber:   r.Metadata.PageNumber,
			CharStart:    r.Metadata.CharStart,
			CharEnd:      r.Metadata.CharEnd,
		}
	}
	return chunks
}

// resolveEmbeddingType picks the search space. A uniform document set
// keeps its type; a mixed set is coerced to openai, excluding the
// local-only documents so the caller can surface them.
func resolveEmbeddingType(docs []*models.Document) (models.EmbeddingType, []*models.Document, []*models.Document) {
	uniform := true
	for _, d := range docs[1:] {
		if d.EmbeddingType != docs[0].EmbeddingType {
			uniform = false
			break
		}
	}
	if uniform {
		return docs[0].EmbeddingType, docs, nil
	}

	var included, excluded []*models.Document
	for _, d := range docs {
		if d.EmbeddingType == models.EmbeddingOpenAI {
			included = append(included, d)
		} else {
			excluded = append(excluded, d)
		}
	}
	return models.EmbeddingOpenAI, included, excluded
}

// resolveChunkLimit applies document override > owner default > system
// default; with several documents the largest effective limit wins
func (s *retrievalServiceImpl) resolveChunkLimit(docs []*models.Document) int {
	limit := 0
	for _, d := range docs {
		eff := d.EffectiveChunkLimit(d.Owner, s.systemChunkLimit)
		if eff > limit {
			limit = eff
		}
	}
	return limit
}

func (s *retrievalServiceImpl) InvalidateCache(ctx context.Context) {
	s.cache.invalidate(ctx)
}

func ownerSlugOf(d *models.Document) string {
	if d.OwnerSlug == nil {
		return ""
	}
	return *d.OwnerSlug
}

func slugsOf(docs []*models.Document) []string {
	if len(docs) == 0 {
		return nil
	}
	slugs := make([]string, len(docs))
	for i, d := range docs {
		slugs[i] = d.Slug
	}
	return slugs
}

// retrievalCache stores ranked chunk lists in redis, with a local map
// fallback when redis is unavailable. Invalidation bumps a namespace
// version instead of scanning keys.
type retrievalCache struct {
	client  *redis.Client
	ttl     time.Duration
	version atomic.Int64

	mu       sync.RWMutex
	fallback map[string]fallbackEntry
}

type fallbackEntry struct {
	chunks  []models.RankedChunk
	expires time.Time
}

func newRetrievalCache(client *redis.Client, ttl time.Duration) *retrievalCache {
	return &retrievalCache{
		client:   client,
		ttl:      ttl,
		fallback: make(map[string]fallbackEntry),
	}
}

func (c *retrievalCache) key(slugs []string, query string, limit int, embeddingType models.EmbeddingType) string {
	sorted := make([]string, len(slugs))
	copy(sorted, slugs)
	sort.Strings(sorted)

	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s", strings.Join(sorted, ","), query, limit, embeddingType)))
	return fmt.Sprintf("retrieval:v%d:%s", c.version.Load(), hex.EncodeToString(h[:16]))
}

func (c *retrievalCache) get(ctx context.Context, key string) ([]models.RankedChunk, bool) {
	if c.client != nil {
		data, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			var chunks []models.RankedChunk
			if err := json.Unmarshal(data, &chunks); err == nil {
				return chunks, true
			}
		} else if err != redis.Nil {
			log.Printf("[RETRIEVAL-CACHE] redis get failed, using memory fallback: %v", err)
		} else {
			return nil, false
		}
	}

	c.mu.RLock()
	entry, ok := c.fallback[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.chunks, true
}

func (c *retrievalCache) set(ctx context.Context, key string, chunks []models.RankedChunk) {
	data, err := json.Marshal(chunks)
	if err != nil {
		return
	}

	if c.client != nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err == nil {
			return
		} else {
			log.Printf("[RETRIEVAL-CACHE] redis set failed, using memory fallback: %v", err)
		}
	}

	c.mu.Lock()
	c.fallback[key] = fallbackEntry{chunks: chunks, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *retrievalCache) invalidate(ctx context.Context) {
	c.version.Add(1)
	c.mu.Lock()
	c.fallback = make(map[string]fallbackEntry)
	c.mu.Unlock()
	log.Printf("[RETRIEVAL-CACHE] Invalidated (version %d)", c.version.Load())
}
