// +build integration

package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/londonaicentre/PhenoLab-sub001/internal/warehouse"
)

const viewTestSchema = "phenolab_view_test"

func TestPostgresStoreViewRepository_ConceptMappingFallback(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()
	createTestSchema(t, db, viewTestSchema)

	conceptTable := viewTestSchema + ".concept"
	conceptMapTable := viewTestSchema + ".concept_map"
	if _, err := db.Exec(fmt.Sprintf(`
		CREATE TABLE %s (
			dbid bigint,
			code text,
			scheme_name text,
			mapping_type text
		)`, conceptTable)); err != nil {
		t.Fatalf("Failed to create concept table: %v", err)
	}
	if _, err := db.Exec(fmt.Sprintf(`
		CREATE TABLE %s (
			legacy bigint,
			core bigint
		)`, conceptMapTable)); err != nil {
		t.Fatalf("Failed to create concept map table: %v", err)
	}

	// core concept, legacy concept with a one-hop mapping, and one code with
	// no concept row at all
	if _, err := db.Exec(fmt.Sprintf(`
		INSERT INTO %s (dbid, code, scheme_name, mapping_type) VALUES
		(100, '73211009', 'SNOMED', 'Core SNOMED'),
		(55, 'G20..00', 'READ 2', 'Non Core Mapped to SNOMED')`, conceptTable)); err != nil {
		t.Fatalf("Failed to seed concepts: %v", err)
	}
	if _, err := db.Exec(fmt.Sprintf(
		"INSERT INTO %s (legacy, core) VALUES (55, 100)", conceptMapTable)); err != nil {
		t.Fatalf("Failed to seed concept map: %v", err)
	}

	wh := warehouse.NewPostgresClient(db)
	loader := NewPostgresDefinitionsRepository(wh, viewTestSchema, getTestLogger())
	ctx := context.Background()

	rows := loaderTestRows()
	rows[0].Code, rows[0].Vocabulary = "73211009", "SNOMED"
	rows[1].Code, rows[1].Vocabulary = "G20..00", "READ 2"
	rows[2].Code, rows[2].Vocabulary = "E11", "ICD10"
	if err := loader.Load(ctx, rows, "hdruk_definitions"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	repo := NewPostgresStoreViewRepository(wh, viewTestSchema, "definitionstore",
		conceptTable, conceptMapTable, getTestLogger())
	if err := repo.CreateView(ctx, []string{"hdruk_definitions"}); err != nil {
		t.Fatalf("CreateView failed: %v", err)
	}

	// core concept resolves to its own dbid
	res, err := repo.ResolveConcept(ctx, "73211009", "SNOMED")
	if err != nil {
		t.Fatalf("ResolveConcept(core) failed: %v", err)
	}
	if !res.Resolved || res.CoreConceptID != 100 {
		t.Fatalf("Expected core concept 100, got %+v", res)
	}

	// legacy concept resolves through exactly one hop
	res, err = repo.ResolveConcept(ctx, "G20..00", "READ 2")
	if err != nil {
		t.Fatalf("ResolveConcept(legacy) failed: %v", err)
	}
	if !res.Resolved || res.CoreConceptID != 100 {
		t.Fatalf("Expected legacy concept to map to 100, got %+v", res)
	}

	// unmatched code stays unresolved, not an error
	res, err = repo.ResolveConcept(ctx, "E11", "ICD10")
	if err != nil {
		t.Fatalf("ResolveConcept(unmatched) failed: %v", err)
	}
	if res.Resolved {
		t.Fatalf("Expected unmatched code to stay unresolved, got %+v", res)
	}
}

func TestPostgresStoreViewRepository_ViewUnionsAndReads(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()
	createTestSchema(t, db, viewTestSchema)

	conceptTable := viewTestSchema + ".concept"
	conceptMapTable := viewTestSchema + ".concept_map"
	for _, ddl := range []string{
		fmt.Sprintf("CREATE TABLE %s (dbid bigint, code text, scheme_name text, mapping_type text)", conceptTable),
		fmt.Sprintf("CREATE TABLE %s (legacy bigint, core bigint)", conceptMapTable),
	} {
		if _, err := db.Exec(ddl); err != nil {
			t.Fatalf("Failed to create concept space: %v", err)
		}
	}

	wh := warehouse.NewPostgresClient(db)
	loader := NewPostgresDefinitionsRepository(wh, viewTestSchema, getTestLogger())
	ctx := context.Background()

	// two source tables, two definitions
	if err := loader.Load(ctx, loaderTestRows(), "hdruk_definitions"); err != nil {
		t.Fatalf("Load hdruk failed: %v", err)
	}
	other := loaderTestRows()[:1]
	other[0].DefinitionID = "def02"
	other[0].DefinitionName = "diabetes_oc"
	other[0].DefinitionSource = "OPEN_CODELISTS"
	if err := loader.Load(ctx, other, "open_codelists"); err != nil {
		t.Fatalf("Load open_codelists failed: %v", err)
	}

	repo := NewPostgresStoreViewRepository(wh, viewTestSchema, "definitionstore",
		conceptTable, conceptMapTable, getTestLogger())
	if err := repo.CreateView(ctx, []string{"hdruk_definitions", "open_codelists"}); err != nil {
		t.Fatalf("CreateView failed: %v", err)
	}

	defs, err := repo.ListDefinitions(ctx)
	if err != nil {
		t.Fatalf("ListDefinitions failed: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("Expected 2 definitions in the view, got %d", len(defs))
	}

	codes, err := repo.CodesForDefinition(ctx, "def01")
	if err != nil {
		t.Fatalf("CodesForDefinition failed: %v", err)
	}
	if len(codes) != 3 {
		t.Fatalf("Expected 3 codes for def01, got %d", len(codes))
	}

	// CreateView is repeatable: adding a table later just replaces the view
	if err := repo.CreateView(ctx, []string{"hdruk_definitions"}); err != nil {
		t.Fatalf("Recreating the view failed: %v", err)
	}
	defs, err = repo.ListDefinitions(ctx)
	if err != nil {
		t.Fatalf("ListDefinitions after recreate failed: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("Expected 1 definition after narrowing the view, got %d", len(defs))
	}
}
