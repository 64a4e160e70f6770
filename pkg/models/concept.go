package models

// WorkedExample pairs a natural language question with the business logic
// and tables a correct answer is expected to use.
type WorkedExample struct {
	Query          string   `json:"query" yaml:"query"`
	BusinessLogic  string   `json:"business_logic" yaml:"business_logic"`
	ExpectedTables []string `json:"expected_tables" yaml:"expected_tables"`
}

// ConceptDefinition is a curated mapping from a business intent to the
// tables, joins, and generation instructions that express it in SQL.
// Definitions are loaded once from the catalog file and immutable at runtime.
type ConceptDefinition struct {
	Name          string          `json:"name" yaml:"name"`
	Description   string          `json:"description" yaml:"description"`
	TargetTables  []string        `json:"target_tables" yaml:"target_tables"`
	RequiredJoins []string        `json:"required_joins" yaml:"required_joins"`
	Instructions  string          `json:"instructions" yaml:"instructions"`
	Examples      []WorkedExample `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// EmbeddingText returns the text the concept is indexed under.
// Description and instructions carry the semantic content; names alone
// are too short to embed well.
func (c *ConceptDefinition) EmbeddingText() string {
	if c.Instructions == "" {
		return c.Description
	}
	return c.Description + "\n" + c.Instructions
}

// MatchedConcept is one catalog entry ranked against a query.
type MatchedConcept struct {
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

// ConceptMatch is the ordered outcome of concept matching: entries above
// the similarity threshold, similarity descending, plus the business
// instructions surfaced verbatim from the retained concepts.
type ConceptMatch struct {
	Concepts     []MatchedConcept      `json:"concepts"`
	Instructions []BusinessInstruction `json:"instructions,omitempty"`
	Degraded     bool                  `json:"degraded,omitempty"`
}

// BusinessInstruction carries a retained concept's generation guidance
// downstream without rewriting it.
type BusinessInstruction struct {
	Concept       string   `json:"concept"`
	Instructions  string   `json:"instructions"`
	RequiredJoins []string `json:"required_joins,omitempty"`
	TargetTables  []string `json:"target_tables,omitempty"`
}
