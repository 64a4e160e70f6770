package concepts

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/queryhawk-inc/queryhawk-engine/pkg/llm"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/models"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/vector"
)

// embeddingCacheSize bounds the query embedding cache. Repeated questions
// skip the embeddings provider entirely.
const embeddingCacheSize = 512

// Matcher ranks catalog concepts against a query by embedding similarity.
type Matcher struct {
	catalog       *Catalog
	embedder      llm.Client
	model         string
	store         vector.Store
	minSimilarity float64
	timeout       time.Duration
	cache         *lru.Cache[string, []float32]
	logger        *zap.Logger
}

// NewMatcher creates a matcher. minSimilarity entries below the threshold
// are dropped from every match. timeout bounds each embeddings provider
// call; zero means no per-call deadline.
func NewMatcher(catalog *Catalog, embedder llm.Client, embeddingModel string, store vector.Store, minSimilarity float64, timeout time.Duration, logger *zap.Logger) (*Matcher, error) {
	cache, err := lru.New[string, []float32](embeddingCacheSize)
	if err != nil {
		return nil, err
	}

	return &Matcher{
		catalog:       catalog,
		embedder:      embedder,
		model:         embeddingModel,
		store:         store,
		minSimilarity: minSimilarity,
		timeout:       timeout,
		cache:         cache,
		logger:        logger.Named("concepts.matcher"),
	}, nil
}

// Match embeds the query, ranks every indexed concept against it, drops
// entries below the similarity threshold, and truncates to maxConcepts.
// Business instructions of retained concepts are surfaced verbatim.
//
// If the embeddings provider is unavailable the result is flagged
// degraded with an empty concept list rather than failing: the pipeline
// can still generate SQL without concept guidance.
func (m *Matcher) Match(ctx context.Context, queryText string, maxConcepts int) *models.ConceptMatch {
	if m.catalog.Len() == 0 {
		return &models.ConceptMatch{Concepts: []models.MatchedConcept{}}
	}

	queryVec, err := m.embedQuery(ctx, queryText)
	if err != nil {
		m.logger.Warn("embedding provider unavailable, degrading concept match", zap.Error(err))
		return &models.ConceptMatch{Concepts: []models.MatchedConcept{}, Degraded: true}
	}

	entries, err := m.store.SimilaritySearch(ctx, queryVec, maxConcepts)
	if err != nil {
		m.logger.Warn("similarity search failed, degrading concept match", zap.Error(err))
		return &models.ConceptMatch{Concepts: []models.MatchedConcept{}, Degraded: true}
	}

	match := &models.ConceptMatch{Concepts: []models.MatchedConcept{}}
	for _, entry := range entries {
		if entry.Score < m.minSimilarity {
			continue
		}
		def, err := m.catalog.Get(entry.ID)
		if err != nil {
			// Store and catalog disagree; skip rather than invent a concept.
			m.logger.Warn("indexed concept missing from catalog", zap.String("concept", entry.ID))
			continue
		}

		match.Concepts = append(match.Concepts, models.MatchedConcept{
			Name:       def.Name,
			Similarity: entry.Score,
		})
		match.Instructions = append(match.Instructions, models.BusinessInstruction{
			Concept:       def.Name,
			Instructions:  def.Instructions,
			RequiredJoins: def.RequiredJoins,
			TargetTables:  def.TargetTables,
		})
	}

	return match
}

func (m *Matcher) embedQuery(ctx context.Context, queryText string) ([]float32, error) {
	if cached, ok := m.cache.Get(queryText); ok {
		return cached, nil
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	vec, err := m.embedder.CreateEmbedding(ctx, queryText, m.model)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, llm.NewError(llm.ErrorTypeEnvelope, "empty embedding", false, nil)
	}

	m.cache.Add(queryText, vec)

	return vec, nil
}
