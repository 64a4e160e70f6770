// Package concepts loads the business concept catalog and matches
// concepts against natural language queries by embedding similarity.
package concepts

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/queryhawk-inc/queryhawk-engine/pkg/apperrors"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/llm"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/models"
	"github.com/queryhawk-inc/queryhawk-engine/pkg/vector"
)

// catalogFile is the YAML shape of the concept catalog.
type catalogFile struct {
	Concepts []models.ConceptDefinition `yaml:"concepts"`
}

// Catalog holds the loaded concept definitions, immutable after Load.
// Definitions keep file order; the matcher relies on that order for
// stable tie-breaking.
type Catalog struct {
	concepts []models.ConceptDefinition
	byName   map[string]*models.ConceptDefinition
	logger   *zap.Logger
}

// LoadCatalog reads and validates a concept catalog file.
func LoadCatalog(path string, logger *zap.Logger) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	catalog := &Catalog{
		concepts: file.Concepts,
		byName:   make(map[string]*models.ConceptDefinition, len(file.Concepts)),
		logger:   logger.Named("concepts"),
	}

	for i := range catalog.concepts {
		c := &catalog.concepts[i]
		if c.Name == "" {
			return nil, fmt.Errorf("catalog %s: concept %d has no name", path, i)
		}
		if c.Description == "" {
			return nil, fmt.Errorf("catalog %s: concept %q has no description", path, c.Name)
		}
		if _, dup := catalog.byName[c.Name]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate concept %q", path, c.Name)
		}
		catalog.byName[c.Name] = c
	}

	catalog.logger.Info("concept catalog loaded",
		zap.String("path", path),
		zap.Int("concepts", len(catalog.concepts)))

	return catalog, nil
}

// NewCatalog builds a catalog from in-memory definitions. Used by tests
// and by callers that source concepts elsewhere.
func NewCatalog(defs []models.ConceptDefinition, logger *zap.Logger) (*Catalog, error) {
	catalog := &Catalog{
		concepts: defs,
		byName:   make(map[string]*models.ConceptDefinition, len(defs)),
		logger:   logger.Named("concepts"),
	}
	for i := range catalog.concepts {
		c := &catalog.concepts[i]
		if c.Name == "" {
			return nil, fmt.Errorf("concept %d has no name", i)
		}
		if _, dup := catalog.byName[c.Name]; dup {
			return nil, fmt.Errorf("duplicate concept %q", c.Name)
		}
		catalog.byName[c.Name] = c
	}
	return catalog, nil
}

// Get returns the named concept definition.
func (c *Catalog) Get(name string) (*models.ConceptDefinition, error) {
	def, ok := c.byName[name]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return def, nil
}

// All returns the definitions in catalog order.
func (c *Catalog) All() []models.ConceptDefinition {
	return c.concepts
}

// Len returns the number of loaded concepts.
func (c *Catalog) Len() int {
	return len(c.concepts)
}

// Index embeds every concept and upserts it into the vector store. The
// store is cleared first: embeddings derived from a previous catalog
// generation are invalid once the catalog changes.
func (c *Catalog) Index(ctx context.Context, embedder llm.Client, model string, store vector.Store) error {
	if len(c.concepts) == 0 {
		return nil
	}

	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("clear stale embeddings: %w", err)
	}

	inputs := make([]string, len(c.concepts))
	for i := range c.concepts {
		inputs[i] = c.concepts[i].EmbeddingText()
	}

	vectors, err := embedder.CreateEmbeddings(ctx, inputs, model)
	if err != nil {
		return fmt.Errorf("embed catalog: %w", err)
	}
	if len(vectors) != len(c.concepts) {
		return fmt.Errorf("embed catalog: expected %d vectors, got %d", len(c.concepts), len(vectors))
	}

	for i := range c.concepts {
		def := &c.concepts[i]
		meta := map[string]string{"description": def.Description}
		if err := store.Upsert(ctx, def.Name, vectors[i], meta); err != nil {
			return fmt.Errorf("index concept %q: %w", def.Name, err)
		}
	}

	c.logger.Info("concept embeddings indexed", zap.Int("concepts", len(c.concepts)))

	return nil
}
