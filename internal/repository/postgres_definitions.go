package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/londonaicentre/PhenoLab-sub001/internal/domain"
	"github.com/londonaicentre/PhenoLab-sub001/internal/warehouse"
)

// PostgresDefinitionsRepository implements the staging-merge loader.
type PostgresDefinitionsRepository struct {
	wh     warehouse.Client
	schema string
	logger *zap.Logger
}

// NewPostgresDefinitionsRepository creates the loader. schema may be empty
// to target the connection's default search path.
func NewPostgresDefinitionsRepository(wh warehouse.Client, schema string, logger *zap.Logger) *PostgresDefinitionsRepository {
	return &PostgresDefinitionsRepository{wh: wh, schema: schema, logger: logger}
}

var _ DefinitionsRepository = (*PostgresDefinitionsRepository)(nil)

func (r *PostgresDefinitionsRepository) qualify(table string) (string, error) {
	if err := warehouse.ValidIdentifier(table); err != nil {
		return "", err
	}
	if r.schema == "" {
		return table, nil
	}
	if err := warehouse.ValidIdentifier(r.schema); err != nil {
		return "", err
	}
	return r.schema + "." + table, nil
}

// EnsureTable creates the fixed-schema target table if it does not exist.
func (r *PostgresDefinitionsRepository) EnsureTable(ctx context.Context, targetTable string) error {
	target, err := r.qualify(targetTable)
	if err != nil {
		return err
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			code text,
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
		)`, target)
	if err := r.wh.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure target table %s: %w", target, err)
	}
	return nil
}

// Load implements the four-step staging-merge contract: ensure target, stage
// to a fresh session-scoped temporary table, merge by natural key as one
// set-based insert, drop the staging table unconditionally.
func (r *PostgresDefinitionsRepository) Load(ctx context.Context, rows []domain.Row, targetTable string) (err error) {
	if err := domain.ValidateRows(rows); err != nil {
		return fmt.Errorf("rejecting batch for %s: %w", targetTable, err)
	}
	target, err := r.qualify(targetTable)
	if err != nil {
		return err
	}
	if err := r.EnsureTable(ctx, targetTable); err != nil {
		return err
	}

	session, err := r.wh.Session(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	// Unique per invocation so concurrent loads against the same target
	// cannot collide on the staging name. Session scope means the table
	// disappears with the connection even if the drop below is skipped.
	staging := fmt.Sprintf("stg_%s_%s", targetTable, uuid.NewString()[:8])

	defer func() {
		dropErr := session.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", staging))
		if dropErr == nil {
			return
		}
		if err != nil {
			// Never mask the primary failure; the orphan drop is only logged.
			r.logger.Error("failed to drop staging table after load error",
				zap.String("staging_table", staging), zap.Error(dropErr))
			return
		}
		err = fmt.Errorf("%w: drop %s: %w", ErrCleanupFailure, staging, dropErr)
	}()

	if err := session.WriteRows(ctx, staging, domain.RowColumns, rowValues(rows),
		warehouse.ModeOverwrite, warehouse.KindTemporary); err != nil {
		return fmt.Errorf("failed to stage %d rows for %s: %w", len(rows), target, err)
	}

	if mergeErr := session.Exec(ctx, mergeStatement(target, staging)); mergeErr != nil {
		return fmt.Errorf("%w: insert into %s: %w", ErrMergeFailure, target, mergeErr)
	}

	r.logger.Info("merged definition rows into target table",
		zap.String("target_table", target),
		zap.Int("staged_rows", len(rows)))
	return nil
}

// mergeStatement builds the pure-insert anti-join: stage rows deduplicated
// by natural key within the batch, then inserted only where the key is
// absent from the target. One statement, atomic over the target table.
func mergeStatement(target, staging string) string {
	cols := strings.Join(domain.RowColumns, ", ")
	keys := strings.Join(domain.NaturalKeyColumns, ", ")

	var match []string
	for _, k := range domain.NaturalKeyColumns {
		match = append(match, fmt.Sprintf("t.%s = s.%s", k, k))
	}

	return fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT %s FROM (
			SELECT DISTINCT ON (%s) * FROM %s ORDER BY %s
		) s
		WHERE NOT EXISTS (
			SELECT 1 FROM %s t WHERE %s
		)`,
		target, cols,
		cols,
		keys, staging, keys,
		target, strings.Join(match, " AND "))
}

func rowValues(rows []domain.Row) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		var versionDT, uploadedDT any
		if !r.VersionDatetime.IsZero() {
			versionDT = r.VersionDatetime
		}
		if !r.UploadedDatetime.IsZero() {
			uploadedDT = r.UploadedDatetime
		}
		out[i] = []any{
			r.Code, r.CodeDescription, r.Vocabulary,
			r.CodelistID, r.CodelistName, r.CodelistVersion,
			r.DefinitionID, r.DefinitionName, r.DefinitionVersion,
			r.DefinitionSource, versionDT, uploadedDT,
		}
	}
	return out
}
