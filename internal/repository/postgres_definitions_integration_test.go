// +build integration

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/londonaicentre/PhenoLab-sub001/internal/domain"
	"github.com/londonaicentre/PhenoLab-sub001/internal/warehouse"
)

const loaderTestSchema = "phenolab_loader_test"

func loaderTestRows() []domain.Row {
	uploaded := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	base := domain.Row{
		Vocabulary:        "SNOMED",
		CodelistID:        "cl1",
		CodelistName:      "diabetes_sct",
		CodelistVersion:   "cl1_v1",
		DefinitionID:      "def01",
		DefinitionName:    "diabetes",
		DefinitionVersion: "diabetes_v1",
		DefinitionSource:  "HDRUK",
		UploadedDatetime:  uploaded,
	}
	r1, r2, r3 := base, base, base
	r1.Code, r1.CodeDescription = "73211009", "Diabetes mellitus"
	r2.Code, r2.CodeDescription = "44054006", "Type 2 diabetes mellitus"
	r3.Code, r3.CodeDescription = "46635009", "Type 1 diabetes mellitus"
	return []domain.Row{r1, r2, r3}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", loaderTestSchema, table)).Scan(&n); err != nil {
		t.Fatalf("Failed to count rows in %s: %v", table, err)
	}
	return n
}

func TestPostgresDefinitionsRepository_LoadIsIdempotent(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()
	createTestSchema(t, db, loaderTestSchema)

	repo := NewPostgresDefinitionsRepository(warehouse.NewPostgresClient(db), loaderTestSchema, getTestLogger())
	ctx := context.Background()
	rows := loaderTestRows()

	if err := repo.Load(ctx, rows, "hdruk_definitions"); err != nil {
		t.Fatalf("First load failed: %v", err)
	}
	if got := countRows(t, db, "hdruk_definitions"); got != 3 {
		t.Fatalf("Expected 3 rows after first load, got %d", got)
	}

	// same batch again: nothing new
	if err := repo.Load(ctx, rows, "hdruk_definitions"); err != nil {
		t.Fatalf("Repeat load failed: %v", err)
	}
	if got := countRows(t, db, "hdruk_definitions"); got != 3 {
		t.Fatalf("Expected 3 rows after repeat load, got %d", got)
	}
}

func TestPostgresDefinitionsRepository_LoadPartialOverlap(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()
	createTestSchema(t, db, loaderTestSchema)

	repo := NewPostgresDefinitionsRepository(warehouse.NewPostgresClient(db), loaderTestSchema, getTestLogger())
	ctx := context.Background()
	rows := loaderTestRows()

	if err := repo.Load(ctx, rows[:2], "hdruk_definitions"); err != nil {
		t.Fatalf("First load failed: %v", err)
	}
	// second batch shares one natural key with the first
	if err := repo.Load(ctx, rows[1:], "hdruk_definitions"); err != nil {
		t.Fatalf("Overlapping load failed: %v", err)
	}
	if got := countRows(t, db, "hdruk_definitions"); got != 3 {
		t.Fatalf("Expected 3 distinct rows after overlapping loads, got %d", got)
	}
}

func TestPostgresDefinitionsRepository_LoadDeduplicatesWithinBatch(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()
	createTestSchema(t, db, loaderTestSchema)

	repo := NewPostgresDefinitionsRepository(warehouse.NewPostgresClient(db), loaderTestSchema, getTestLogger())
	rows := loaderTestRows()
	rows = append(rows, rows[0]) // in-batch duplicate

	if err := repo.Load(context.Background(), rows, "hdruk_definitions"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := countRows(t, db, "hdruk_definitions"); got != 3 {
		t.Fatalf("Expected in-batch duplicate to collapse, got %d rows", got)
	}
}

func TestPostgresDefinitionsRepository_LoadRejectsInvalidBatch(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()
	createTestSchema(t, db, loaderTestSchema)

	repo := NewPostgresDefinitionsRepository(warehouse.NewPostgresClient(db), loaderTestSchema, getTestLogger())
	rows := loaderTestRows()
	rows[1].Vocabulary = "LOINC"

	err := repo.Load(context.Background(), rows, "hdruk_definitions")
	if err == nil {
		t.Fatal("Expected validation failure")
	}

	// whole batch rejected before any mutation: no target table was created
	var exists bool
	if err := db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = 'hdruk_definitions'
		)`, loaderTestSchema).Scan(&exists); err != nil {
		t.Fatalf("Existence check failed: %v", err)
	}
	if exists {
		t.Fatal("Target table should not exist after a rejected batch")
	}
}

func TestPostgresDefinitionsRepository_CleanupAfterMergeFailure(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()
	createTestSchema(t, db, loaderTestSchema)

	// pre-create the target with an incompatible column type to force the
	// merge itself (not staging) to fail
	_, err := db.Exec(fmt.Sprintf(`
		CREATE TABLE %s.hdruk_definitions (
			code bigint,
			code_description text,
			vocabulary text,
			codelist_id text,
			codelist_name text,
			codelist_version text,
			definition_id text,
			definition_name text,
			definition_version text,
			definition_source text,
			version_datetime timestamptz,
			uploaded_datetime timestamptz
		)`, loaderTestSchema))
	if err != nil {
		t.Fatalf("Failed to pre-create incompatible target: %v", err)
	}

	repo := NewPostgresDefinitionsRepository(warehouse.NewPostgresClient(db), loaderTestSchema, getTestLogger())
	rows := loaderTestRows()
	rows[0].Code = "not-a-number"

	loadErr := repo.Load(context.Background(), rows, "hdruk_definitions")
	if loadErr == nil {
		t.Fatal("Expected merge failure")
	}
	if !errors.Is(loadErr, ErrMergeFailure) {
		t.Fatalf("Expected ErrMergeFailure, got %v", loadErr)
	}

	// no staging table leaks: staging is session-temporary and dropped on the
	// error path, so nothing stg_-prefixed remains visible anywhere
	var leaked int
	if err := db.QueryRow(`
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_name LIKE 'stg\_hdruk\_definitions\_%'`).Scan(&leaked); err != nil {
		t.Fatalf("Leak check failed: %v", err)
	}
	if leaked != 0 {
		t.Fatalf("Expected no leaked staging tables, found %d", leaked)
	}

	if got := countRows(t, db, "hdruk_definitions"); got != 0 {
		t.Fatalf("Target must stay untouched after merge failure, got %d rows", got)
	}
}
