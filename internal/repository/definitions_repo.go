package repository

import (
	"context"

	"github.com/londonaicentre/PhenoLab-sub001/internal/domain"
)

// DefinitionsRepository persists flattened definition rows into named target
// tables. Load is idempotent and append-only: rows whose natural key is
// already present are skipped, existing rows are never updated or deleted.
type DefinitionsRepository interface {
	// EnsureTable creates the target table when absent; no-op otherwise.
	EnsureTable(ctx context.Context, targetTable string) error

	// Load stages rows into a per-invocation temporary table, merges them
	// into the target by natural key and drops the staging table on all exit
	// paths. The whole batch is rejected before any mutation when a row
	// fails schema validation.
	Load(ctx context.Context, rows []domain.Row, targetTable string) error
}
