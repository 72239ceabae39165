package repository

import (
	"context"
	"time"

	"github.com/londonaicentre/PhenoLab-sub001/internal/domain"
)

// Feature is one registered, query-defined derived table.
type Feature struct {
	FeatureID    int64                `db:"feature_id"`
	Name         string               `db:"feature_name"`
	Description  string               `db:"feature_desc"`
	Format       domain.FeatureFormat `db:"feature_format"`
	TableName    string               `db:"table_name"`
	RegisteredAt time.Time            `db:"date_feature_registered"`
}

// FeatureVersion is one append-only entry in a feature's version history.
type FeatureVersion struct {
	FeatureID         int64     `db:"feature_id"`
	Version           int       `db:"feature_version"`
	Query             string    `db:"sql_query"`
	ChangeDescription string    `db:"change_description"`
	RegisteredAt      time.Time `db:"date_version_registered"`
}

// FeatureStoreRepository tracks named, query-defined derived tables across
// versions. Version numbers per feature start at 1, increment by exactly 1
// and are never reused, even after rollback or deletion of earlier versions.
type FeatureStoreRepository interface {
	// CreateRegistry creates the two control tables. One-time bootstrap:
	// fails with ErrAlreadyInitialized when either table already exists.
	CreateRegistry(ctx context.Context) error

	// AddFeature registers a feature, materializes its table from query and
	// records version 1. When a table of the derived name already exists it
	// fails with ErrDuplicateFeature unless existenceOK is set, in which
	// case the existing table is adopted without re-running the query.
	AddFeature(ctx context.Context, name, description string, format domain.FeatureFormat, query string, existenceOK bool) (featureID int64, version int, err error)

	// UpdateFeature records a new version (max+1) and re-materializes the
	// feature's table from newQuery (full replace, not merge).
	UpdateFeature(ctx context.Context, featureID int64, newQuery, changeDescription string) (int, error)

	// GetLatestFeatureVersion returns max(version) for the feature, or 0
	// when the feature has no versions: an expected miss, not an error.
	GetLatestFeatureVersion(ctx context.Context, featureID int64) (int, error)

	// RefreshFeature re-runs the current version's query and replaces the
	// table contents. Data currency only; no new version is recorded.
	RefreshFeature(ctx context.Context, featureID int64) error

	// RollbackFeature re-materializes from the query of an earlier version
	// and records it as a NEW version so numbering stays monotonic.
	RollbackFeature(ctx context.Context, featureID int64, toVersion int) (int, error)

	// DeleteFeature drops the materialized table and removes the registry
	// record. The version history is retained as an audit trail.
	DeleteFeature(ctx context.Context, featureID int64) error

	// GetFeature returns the registry record, or nil on miss.
	GetFeature(ctx context.Context, featureID int64) (*Feature, error)

	// ListFeatures returns all registered features.
	ListFeatures(ctx context.Context) ([]Feature, error)

	// ListFeatureVersions returns the full history for a feature, oldest
	// first.
	ListFeatureVersions(ctx context.Context, featureID int64) ([]FeatureVersion, error)

	// FeatureIDForTable resolves a materialized table name back to its
	// feature id, or 0 on miss.
	FeatureIDForTable(ctx context.Context, tableName string) (int64, error)
}
