// +build integration

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/londonaicentre/PhenoLab-sub001/internal/domain"
	"github.com/londonaicentre/PhenoLab-sub001/internal/warehouse"
)

const featureTestSchema = "phenolab_feature_test"

func newFeatureTestRepo(t *testing.T, db *sql.DB) *PostgresFeatureStoreRepository {
	t.Helper()
	createTestSchema(t, db, featureTestSchema)
	repo := NewPostgresFeatureStoreRepository(warehouse.NewPostgresClient(db), featureTestSchema, getTestLogger())
	if err := repo.CreateRegistry(context.Background()); err != nil {
		t.Fatalf("CreateRegistry failed: %v", err)
	}
	return repo
}

func featureTableValue(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var v int
	if err := db.QueryRow(fmt.Sprintf("SELECT v FROM %s.%s LIMIT 1", featureTestSchema, table)).Scan(&v); err != nil {
		t.Fatalf("Failed to read feature table %s: %v", table, err)
	}
	return v
}

func TestPostgresFeatureStoreRepository_CreateRegistryTwice(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	repo := newFeatureTestRepo(t, db)
	err := repo.CreateRegistry(context.Background())
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("Expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestPostgresFeatureStoreRepository_AddFeature(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	repo := newFeatureTestRepo(t, db)
	ctx := context.Background()

	id, version, err := repo.AddFeature(ctx, "diabetes flag", "binary diabetes indicator",
		domain.FormatBinary, "SELECT 1 AS v", false)
	if err != nil {
		t.Fatalf("AddFeature failed: %v", err)
	}
	if version != 1 {
		t.Fatalf("Expected version 1, got %d", version)
	}

	feature, err := repo.GetFeature(ctx, id)
	if err != nil {
		t.Fatalf("GetFeature failed: %v", err)
	}
	if feature == nil {
		t.Fatal("Feature not found after registration")
	}
	if feature.TableName != "DIABETES_FLAG" {
		t.Fatalf("Expected upper/underscore table name, got %s", feature.TableName)
	}
	if got := featureTableValue(t, db, feature.TableName); got != 1 {
		t.Fatalf("Expected materialized value 1, got %d", got)
	}

	// duplicate registration
	if _, _, err := repo.AddFeature(ctx, "diabetes flag", "", domain.FormatBinary, "SELECT 2 AS v", false); !errors.Is(err, ErrDuplicateFeature) {
		t.Fatalf("Expected ErrDuplicateFeature, got %v", err)
	}

	// existenceOK adopts the existing registration without re-materializing
	id2, version2, err := repo.AddFeature(ctx, "diabetes flag", "", domain.FormatBinary, "SELECT 2 AS v", true)
	if err != nil {
		t.Fatalf("AddFeature with existenceOK failed: %v", err)
	}
	if id2 != id || version2 != 1 {
		t.Fatalf("Expected adoption of feature %d v1, got %d v%d", id, id2, version2)
	}
	if got := featureTableValue(t, db, feature.TableName); got != 1 {
		t.Fatalf("Adoption must not re-run the query, table now holds %d", got)
	}
}

func TestPostgresFeatureStoreRepository_AddFeature_RollsBackOnBadQuery(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	repo := newFeatureTestRepo(t, db)
	ctx := context.Background()

	if _, _, err := repo.AddFeature(ctx, "broken feature", "",
		domain.FormatBinary, "SELECT * FROM table_that_does_not_exist", false); err == nil {
		t.Fatal("Expected materialization failure")
	}

	// the registry row was rolled back, so re-adding with a good query works
	// and the feature starts at version 1
	_, version, err := repo.AddFeature(ctx, "broken feature", "",
		domain.FormatBinary, "SELECT 1 AS v", false)
	if err != nil {
		t.Fatalf("Re-add after failed materialization failed: %v", err)
	}
	if version != 1 {
		t.Fatalf("Expected a clean version 1, got %d", version)
	}
}

func TestPostgresFeatureStoreRepository_VersionLifecycle(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	repo := newFeatureTestRepo(t, db)
	ctx := context.Background()

	id, _, err := repo.AddFeature(ctx, "htn count", "", domain.FormatCount, "SELECT 1 AS v", false)
	if err != nil {
		t.Fatalf("AddFeature failed: %v", err)
	}

	// v2, v3 by update
	if v, err := repo.UpdateFeature(ctx, id, "SELECT 2 AS v", "second cut"); err != nil || v != 2 {
		t.Fatalf("Expected update to v2, got v%d err %v", v, err)
	}
	if v, err := repo.UpdateFeature(ctx, id, "SELECT 3 AS v", "third cut"); err != nil || v != 3 {
		t.Fatalf("Expected update to v3, got v%d err %v", v, err)
	}
	if got := featureTableValue(t, db, "HTN_COUNT"); got != 3 {
		t.Fatalf("Expected table to hold v3 content, got %d", got)
	}

	// refresh re-runs v3 without versioning
	if err := repo.RefreshFeature(ctx, id); err != nil {
		t.Fatalf("RefreshFeature failed: %v", err)
	}
	if v, err := repo.GetLatestFeatureVersion(ctx, id); err != nil || v != 3 {
		t.Fatalf("Refresh must not record a version, latest is v%d err %v", v, err)
	}

	// rollback to v1 content is recorded as v4
	v, err := repo.RollbackFeature(ctx, id, 1)
	if err != nil {
		t.Fatalf("RollbackFeature failed: %v", err)
	}
	if v != 4 {
		t.Fatalf("Expected rollback to record v4, got v%d", v)
	}
	if got := featureTableValue(t, db, "HTN_COUNT"); got != 1 {
		t.Fatalf("Expected table to hold v1 content after rollback, got %d", got)
	}

	versions, err := repo.ListFeatureVersions(ctx, id)
	if err != nil {
		t.Fatalf("ListFeatureVersions failed: %v", err)
	}
	if len(versions) != 4 {
		t.Fatalf("Expected 4 version rows, got %d", len(versions))
	}
	if versions[3].ChangeDescription != "Rollback to version 1" {
		t.Fatalf("Unexpected rollback description: %q", versions[3].ChangeDescription)
	}
}

func TestPostgresFeatureStoreRepository_DeleteAndReAdd(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	repo := newFeatureTestRepo(t, db)
	ctx := context.Background()

	id, _, err := repo.AddFeature(ctx, "ckd flag", "", domain.FormatBinary, "SELECT 1 AS v", false)
	if err != nil {
		t.Fatalf("AddFeature failed: %v", err)
	}
	if _, err := repo.UpdateFeature(ctx, id, "SELECT 2 AS v", "second"); err != nil {
		t.Fatalf("UpdateFeature failed: %v", err)
	}

	if err := repo.DeleteFeature(ctx, id); err != nil {
		t.Fatalf("DeleteFeature failed: %v", err)
	}
	if f, err := repo.GetFeature(ctx, id); err != nil || f != nil {
		t.Fatalf("Expected feature gone, got %+v err %v", f, err)
	}

	// history survives deletion
	versions, err := repo.ListFeatureVersions(ctx, id)
	if err != nil {
		t.Fatalf("ListFeatureVersions failed: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("Version history must survive deletion, got %d rows", len(versions))
	}

	// re-adding the same name is a NEW feature starting at version 1
	id2, version, err := repo.AddFeature(ctx, "ckd flag", "", domain.FormatBinary, "SELECT 3 AS v", false)
	if err != nil {
		t.Fatalf("Re-add failed: %v", err)
	}
	if id2 == id {
		t.Fatal("Re-added feature must get a new id")
	}
	if version != 1 {
		t.Fatalf("Re-added feature must start at v1, got v%d", version)
	}
}

func TestPostgresFeatureStoreRepository_Lookups(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	repo := newFeatureTestRepo(t, db)
	ctx := context.Background()

	id, _, err := repo.AddFeature(ctx, "copd flag", "", domain.FormatBinary, "SELECT 1 AS v", false)
	if err != nil {
		t.Fatalf("AddFeature failed: %v", err)
	}

	// sentinel misses, not errors
	if v, err := repo.GetLatestFeatureVersion(ctx, 99999); err != nil || v != 0 {
		t.Fatalf("Expected 0 sentinel for unknown feature, got v%d err %v", v, err)
	}
	if got, err := repo.FeatureIDForTable(ctx, "no_such_table"); err != nil || got != 0 {
		t.Fatalf("Expected 0 sentinel for unknown table, got %d err %v", got, err)
	}

	// table lookup is case-insensitive on input
	if got, err := repo.FeatureIDForTable(ctx, "copd_flag"); err != nil || got != id {
		t.Fatalf("Expected feature %d for copd_flag, got %d err %v", id, got, err)
	}

	features, err := repo.ListFeatures(ctx)
	if err != nil {
		t.Fatalf("ListFeatures failed: %v", err)
	}
	if len(features) != 1 || features[0].Name != "copd flag" {
		t.Fatalf("Unexpected feature list: %+v", features)
	}
}
