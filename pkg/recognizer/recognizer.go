// Package recognizer maps natural language queries to schema tables with
// confidence scores.
package recognizer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/queryhawk-inc/queryhawk-engine/pkg/models"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/schema"
)

// Confidence levels assigned per match kind. Neighbor tables take a
// fixed discount relative to the direct mention that reached them.
const (
	confidenceDirect  = 0.9
	confidencePartial = 0.6
	neighborDiscount  = 0.5
	confidenceIntent  = 0.05 // bonus when the intent hint also names the table
	confidenceCeiling = 1.0
)

var tokenPattern = regexp.MustCompile(`[a-z0-9_]+`)

// Recognizer scores schema tables against query text.
type Recognizer struct {
	cache  *schema.Cache
	logger *zap.Logger
}

// New creates a recognizer over the schema cache.
func New(cache *schema.Cache, logger *zap.Logger) *Recognizer {
	return &Recognizer{cache: cache, logger: logger.Named("recognizer")}
}

// Recognize scores every cached table against the query text and optional
// intent hint. Tables one relationship hop from a directly mentioned
// table are included at a discounted confidence. Results are confidence
// descending, ties broken by table name ascending, truncated to
// maxEntities. An empty result is valid: nothing applicable was found.
func (r *Recognizer) Recognize(ctx context.Context, queryText, intentHint string, maxEntities int) (*models.RecognitionResult, error) {
	snap, err := r.cache.Load(ctx, false)
	if err != nil {
		return nil, err
	}

	queryTokens := tokenSet(queryText)
	hintTokens := tokenSet(intentHint)

	scored := make(map[string]models.RecognizedEntity)

	// First pass: direct and partial lexical matches.
	for _, name := range snap.TableOrder {
		confidence, reason := scoreName(name, queryTokens)
		if confidence == 0 {
			continue
		}
		if c, _ := scoreName(name, hintTokens); c > 0 {
			confidence += confidenceIntent
			if confidence > confidenceCeiling {
				confidence = confidenceCeiling
			}
		}
		scored[name] = models.RecognizedEntity{
			Name:       name,
			Confidence: confidence,
			Reason:     reason,
		}
	}

	// Second pass: tables one hop from a direct mention, discounted.
	for _, name := range snap.TableOrder {
		entity, ok := scored[name]
		if !ok || entity.Confidence < confidenceDirect {
			continue
		}
		for _, neighbor := range snap.Neighbors(name) {
			discounted := entity.Confidence * neighborDiscount
			if existing, ok := scored[neighbor]; ok && existing.Confidence >= discounted {
				continue
			}
			scored[neighbor] = models.RecognizedEntity{
				Name:       neighbor,
				Confidence: discounted,
				Reason:     fmt.Sprintf("related via relationship to %s", name),
			}
		}
	}

	entities := make([]models.RecognizedEntity, 0, len(scored))
	for _, e := range scored {
		entities = append(entities, e)
	}

	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Confidence != entities[j].Confidence {
			return entities[i].Confidence > entities[j].Confidence
		}
		return entities[i].Name < entities[j].Name
	})

	if maxEntities > 0 && len(entities) > maxEntities {
		entities = entities[:maxEntities]
	}

	r.logger.Debug("entities recognized",
		zap.Int("candidates", len(scored)),
		zap.Int("returned", len(entities)))

	return &models.RecognitionResult{Entities: entities}, nil
}

// scoreName scores one table name against a token set. A full-name match
// (plural-insensitive) is a direct mention; a match on one of the name's
// underscore-separated parts is partial.
func scoreName(tableName string, tokens map[string]bool) (float64, string) {
	if len(tokens) == 0 {
		return 0, ""
	}

	name := strings.ToLower(tableName)
	if tokens[name] || tokens[inflection.Singular(name)] || tokens[inflection.Plural(name)] {
		return confidenceDirect, "directly mentioned"
	}

	parts := strings.Split(name, "_")
	if len(parts) > 1 {
		for _, part := range parts {
			if tokens[part] || tokens[inflection.Singular(part)] || tokens[inflection.Plural(part)] {
				return confidencePartial, fmt.Sprintf("query mentions %q", part)
			}
		}
	}

	return 0, ""
}

// tokenSet lowercases the text and returns its word tokens, each also
// indexed under its singular form so "customers" matches "customer".
func tokenSet(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		tokens[tok] = true
		tokens[inflection.Singular(tok)] = true
	}
	return tokens
}
