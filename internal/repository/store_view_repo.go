package repository

import (
	"context"
)

// DefinitionSummary is one distinct definition visible in the unified view.
type DefinitionSummary struct {
	Source string `db:"definition_source"`
	ID     string `db:"definition_id"`
	Name   string `db:"definition_name"`
}

// DefinitionCode is one distinct code of a definition as read back from the
// unified view.
type DefinitionCode struct {
	Code            string `db:"code"`
	CodeDescription string `db:"code_description"`
	Vocabulary      string `db:"vocabulary"`
	DefinitionID    string `db:"definition_id"`
	CodelistVersion string `db:"codelist_version"`
}

// ConceptResolution is the canonical-concept lookup result for one code.
// Resolved is false when neither the direct mapping nor the one-hop legacy
// mapping produced a core concept id.
type ConceptResolution struct {
	Code          string
	Vocabulary    string
	CoreConceptID int64
	Resolved      bool
}

// StoreViewRepository maintains and reads the unified definition store: a
// read-only view unioning every target table, tagged with provenance and
// joined to the canonical concept-identifier space.
type StoreViewRepository interface {
	// CreateView (re)creates the view over the given target tables. Tables
	// that have not been loaded yet must be excluded by the caller.
	CreateView(ctx context.Context, sourceTables []string) error

	// ListDefinitions returns the distinct definitions across all sources.
	ListDefinitions(ctx context.Context) ([]DefinitionSummary, error)

	// CodesForDefinition returns the distinct codes of one definition.
	CodesForDefinition(ctx context.Context, definitionID string) ([]DefinitionCode, error)

	// ResolveConcept reports the core concept id for a (code, vocabulary)
	// pair via the two-step fallback: direct canonical mapping, one hop
	// through the legacy map, otherwise unresolved.
	ResolveConcept(ctx context.Context, code, vocabulary string) (ConceptResolution, error)
}
