package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/londonaicentre/PhenoLab-sub001/internal/warehouse"
)

// Mapping types used by the canonical concept table. A concept is either
// itself canonical or carries a one-hop mapping into the canonical space.
const (
	mappingTypeCore   = "Core SNOMED"
	mappingTypeLegacy = "Non Core Mapped to SNOMED"
)

// PostgresStoreViewRepository maintains the unified definition store view.
type PostgresStoreViewRepository struct {
	wh              warehouse.Client
	schema          string
	viewName        string
	conceptTable    string
	conceptMapTable string
	logger          *zap.Logger
}

// NewPostgresStoreViewRepository creates the view maintainer. conceptTable
// and conceptMapTable may be schema-qualified since the canonical concept
// space usually lives outside the definition library schema.
func NewPostgresStoreViewRepository(wh warehouse.Client, schema, viewName, conceptTable, conceptMapTable string, logger *zap.Logger) *PostgresStoreViewRepository {
	return &PostgresStoreViewRepository{
		wh:              wh,
		schema:          schema,
		viewName:        viewName,
		conceptTable:    conceptTable,
		conceptMapTable: conceptMapTable,
		logger:          logger,
	}
}

var _ StoreViewRepository = (*PostgresStoreViewRepository)(nil)

func (r *PostgresStoreViewRepository) qualify(name string) (string, error) {
	if err := warehouse.ValidIdentifier(name); err != nil {
		return "", err
	}
	if r.schema == "" {
		return name, nil
	}
	if err := warehouse.ValidIdentifier(r.schema); err != nil {
		return "", err
	}
	return r.schema + "." + name, nil
}

func validQualified(name string) error {
	for _, part := range strings.Split(name, ".") {
		if err := warehouse.ValidIdentifier(part); err != nil {
			return err
		}
	}
	return nil
}

// CreateView unions every target table (tagged with its table name) and
// left-joins the canonical concept space: a core concept uses its own dbid,
// a legacy concept resolves through exactly one hop in the concept map, and
// anything else gets a NULL core_concept_id.
func (r *PostgresStoreViewRepository) CreateView(ctx context.Context, sourceTables []string) error {
	if len(sourceTables) == 0 {
		return fmt.Errorf("no source tables to union")
	}
	view, err := r.qualify(r.viewName)
	if err != nil {
		return err
	}
	if err := validQualified(r.conceptTable); err != nil {
		return err
	}
	if err := validQualified(r.conceptMapTable); err != nil {
		return err
	}

	selects := make([]string, 0, len(sourceTables))
	for _, table := range sourceTables {
		qualified, err := r.qualify(table)
		if err != nil {
			return err
		}
		selects = append(selects, fmt.Sprintf(
			"SELECT *, '%s' AS source_table FROM %s WHERE code IS NOT NULL", table, qualified))
	}

	viewSQL := fmt.Sprintf(`
		CREATE OR REPLACE VIEW %s AS
		WITH definition_union AS (
			%s
		)
		SELECT
			p.*,
			c.dbid,
			CASE c.mapping_type
				WHEN '%s' THEN c.dbid
				WHEN '%s' THEN cm.core
				ELSE NULL
			END AS core_concept_id
		FROM definition_union p
		LEFT JOIN %s c
			ON p.code = c.code
			AND p.vocabulary = c.scheme_name
		LEFT JOIN %s cm
			ON c.dbid = cm.legacy
			AND c.mapping_type = '%s'`,
		view,
		strings.Join(selects, "\n\t\t\tUNION ALL "),
		mappingTypeCore,
		mappingTypeLegacy,
		r.conceptTable,
		r.conceptMapTable,
		mappingTypeLegacy)

	if err := r.wh.Exec(ctx, viewSQL); err != nil {
		return fmt.Errorf("failed to create store view %s: %w", view, err)
	}
	r.logger.Info("created unified definition store view",
		zap.String("view", view),
		zap.Strings("source_tables", sourceTables))
	return nil
}

func (r *PostgresStoreViewRepository) ListDefinitions(ctx context.Context) ([]DefinitionSummary, error) {
	view, err := r.qualify(r.viewName)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT definition_source, definition_id, definition_name
		FROM %s
		ORDER BY definition_name`, view)

	rows, err := r.wh.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var out []DefinitionSummary
	for rows.Next() {
		var s DefinitionSummary
		if err := rows.Scan(&s.Source, &s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("failed to scan definition summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate definition summaries: %w", err)
	}
	return out, nil
}

func (r *PostgresStoreViewRepository) CodesForDefinition(ctx context.Context, definitionID string) ([]DefinitionCode, error) {
	view, err := r.qualify(r.viewName)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT code, code_description, vocabulary, definition_id, codelist_version
		FROM %s
		WHERE definition_id = $1
		ORDER BY vocabulary, code`, view)

	rows, err := r.wh.Query(ctx, query, definitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read codes for definition %s: %w", definitionID, err)
	}
	defer rows.Close()

	var out []DefinitionCode
	for rows.Next() {
		var c DefinitionCode
		if err := rows.Scan(&c.Code, &c.CodeDescription, &c.Vocabulary, &c.DefinitionID, &c.CodelistVersion); err != nil {
			return nil, fmt.Errorf("failed to scan definition code: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate definition codes: %w", err)
	}
	return out, nil
}

func (r *PostgresStoreViewRepository) ResolveConcept(ctx context.Context, code, vocabulary string) (ConceptResolution, error) {
	view, err := r.qualify(r.viewName)
	if err != nil {
		return ConceptResolution{}, err
	}
	query := fmt.Sprintf(`
		SELECT core_concept_id
		FROM %s
		WHERE code = $1 AND vocabulary = $2
		LIMIT 1`, view)

	res := ConceptResolution{Code: code, Vocabulary: vocabulary}
	var coreID sql.NullInt64
	if err := r.wh.QueryRow(ctx, query, code, vocabulary).Scan(&coreID); err != nil {
		if err == sql.ErrNoRows {
			return res, nil
		}
		return res, fmt.Errorf("failed to resolve concept for %s/%s: %w", code, vocabulary, err)
	}
	if coreID.Valid {
		res.CoreConceptID = coreID.Int64
		res.Resolved = true
	}
	return res, nil
}
