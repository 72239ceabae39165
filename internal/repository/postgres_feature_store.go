package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/londonaicentre/PhenoLab-sub001/internal/domain"
	"github.com/londonaicentre/PhenoLab-sub001/internal/warehouse"
)

const (
	featureRegistryTable        = "feature_registry"
	featureVersionRegistryTable = "feature_version_registry"
)

// PostgresFeatureStoreRepository implements the feature registry and version
// manager on the warehouse client.
type PostgresFeatureStoreRepository struct {
	wh     warehouse.Client
	schema string
	logger *zap.Logger
}

// NewPostgresFeatureStoreRepository creates the registry. schema may be
// empty to target the connection's default search path.
func NewPostgresFeatureStoreRepository(wh warehouse.Client, schema string, logger *zap.Logger) *PostgresFeatureStoreRepository {
	return &PostgresFeatureStoreRepository{wh: wh, schema: schema, logger: logger}
}

var _ FeatureStoreRepository = (*PostgresFeatureStoreRepository)(nil)

func (r *PostgresFeatureStoreRepository) qualify(table string) (string, error) {
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

func (r *PostgresFeatureStoreRepository) tableExists(ctx context.Context, table string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema())
			AND table_name = lower($2)
		)`
	var exists bool
	if err := r.wh.QueryRow(ctx, query, r.schema, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table existence for %s: %w", table, err)
	}
	return exists, nil
}

// CreateRegistry bootstraps the two control tables. The uniqueness
// constraint on (feature_id, feature_version) is what makes the
// read-max-then-insert version increment safe against concurrent writers.
func (r *PostgresFeatureStoreRepository) CreateRegistry(ctx context.Context) error {
	for _, table := range []string{featureRegistryTable, featureVersionRegistryTable} {
		exists, err := r.tableExists(ctx, table)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrAlreadyInitialized, table)
		}
	}

	registry, err := r.qualify(featureRegistryTable)
	if err != nil {
		return err
	}
	versions, err := r.qualify(featureVersionRegistryTable)
	if err != nil {
		return err
	}

	if err := r.wh.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			feature_id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			feature_name text NOT NULL UNIQUE,
			feature_desc text,
			feature_format text,
			table_name text NOT NULL,
			date_feature_registered timestamptz NOT NULL DEFAULT now()
		)`, registry)); err != nil {
		return fmt.Errorf("failed to create %s: %w", registry, err)
	}

	if err := r.wh.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			feature_id bigint NOT NULL,
			feature_version integer NOT NULL,
			sql_query text NOT NULL,
			change_description text,
			date_version_registered timestamptz NOT NULL DEFAULT now(),
			UNIQUE (feature_id, feature_version)
		)`, versions)); err != nil {
		return fmt.Errorf("failed to create %s: %w", versions, err)
	}

	r.logger.Info("feature store registry created",
		zap.String("registry", registry),
		zap.String("version_registry", versions))
	return nil
}

// featureTableName derives the materialized table name from the feature
// name: upper-cased, trimmed, spaces collapsed to underscores.
func featureTableName(featureName string) (string, error) {
	name := strings.ToUpper(strings.TrimSpace(featureName))
	name = strings.ReplaceAll(name, " ", "_")
	if err := warehouse.ValidIdentifier(name); err != nil {
		return "", fmt.Errorf("feature name %q does not derive a usable table name: %w", featureName, err)
	}
	switch strings.ToLower(name) {
	case featureRegistryTable, featureVersionRegistryTable:
		return "", fmt.Errorf("%s is a reserved name", name)
	}
	return name, nil
}

// materialize replaces the feature table's contents from a defining query.
// DDL is transactional in Postgres, so the drop and the rebuild are atomic
// with respect to readers.
func (r *PostgresFeatureStoreRepository) materialize(ctx context.Context, table, query string) error {
	qualified, err := r.qualify(table)
	if err != nil {
		return err
	}
	session, err := r.wh.Session(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Exec(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("failed to begin materialization of %s: %w", qualified, err)
	}
	if err := session.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", qualified)); err != nil {
		_ = session.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("failed to drop %s for rematerialization: %w", qualified, err)
	}
	if err := session.Exec(ctx, fmt.Sprintf("CREATE TABLE %s AS %s", qualified, query)); err != nil {
		_ = session.Exec(ctx, "ROLLBACK")
		return fmt.Errorf("failed to materialize %s: %w", qualified, err)
	}
	if err := session.Exec(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit materialization of %s: %w", qualified, err)
	}
	return nil
}

func (r *PostgresFeatureStoreRepository) AddFeature(ctx context.Context, name, description string, format domain.FeatureFormat, query string, existenceOK bool) (int64, int, error) {
	tableName, err := featureTableName(name)
	if err != nil {
		return 0, 0, err
	}
	registry, err := r.qualify(featureRegistryTable)
	if err != nil {
		return 0, 0, err
	}

	// Existing registration wins over everything else: re-adding a known
	// feature is either an error or, with existenceOK, a no-op lookup.
	var existingID int64
	err = r.wh.QueryRow(ctx, fmt.Sprintf(
		"SELECT feature_id FROM %s WHERE feature_name = $1", registry), name).Scan(&existingID)
	switch {
	case err == nil:
		if !existenceOK {
			return 0, 0, fmt.Errorf("%w: feature %q is already registered", ErrDuplicateFeature, name)
		}
		version, err := r.GetLatestFeatureVersion(ctx, existingID)
		if err != nil {
			return 0, 0, err
		}
		return existingID, version, nil
	case err != sql.ErrNoRows:
		return 0, 0, fmt.Errorf("failed to check feature registration: %w", err)
	}

	tableExists, err := r.tableExists(ctx, tableName)
	if err != nil {
		return 0, 0, err
	}
	if tableExists && !existenceOK {
		return 0, 0, fmt.Errorf("%w: table %s already exists", ErrDuplicateFeature, tableName)
	}

	var featureID int64
	if err := r.wh.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (feature_name, feature_desc, feature_format, table_name)
		VALUES ($1, $2, $3, $4)
		RETURNING feature_id`, registry),
		name, description, string(format), tableName).Scan(&featureID); err != nil {
		return 0, 0, fmt.Errorf("failed to register feature %q: %w", name, err)
	}

	if !tableExists {
		if err := r.materialize(ctx, tableName, query); err != nil {
			// Roll the registry entry back so a failed materialization does
			// not leave a phantom feature behind.
			if _, delErr := r.deleteRegistryRow(ctx, featureID); delErr != nil {
				r.logger.Error("failed to remove registry entry after materialization failure",
					zap.Int64("feature_id", featureID), zap.Error(delErr))
			}
			return 0, 0, err
		}
	}

	if err := r.insertVersion(ctx, featureID, 1, query, "Initial version"); err != nil {
		return 0, 0, err
	}

	r.logger.Info("feature registered",
		zap.Int64("feature_id", featureID),
		zap.String("feature_name", name),
		zap.String("table_name", tableName),
		zap.Bool("adopted_existing_table", tableExists))
	return featureID, 1, nil
}

func (r *PostgresFeatureStoreRepository) insertVersion(ctx context.Context, featureID int64, version int, query, changeDescription string) error {
	versions, err := r.qualify(featureVersionRegistryTable)
	if err != nil {
		return err
	}
	if err := r.wh.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (feature_id, feature_version, sql_query, change_description)
		VALUES ($1, $2, $3, $4)`, versions),
		featureID, version, query, changeDescription); err != nil {
		return fmt.Errorf("failed to record version %d for feature %d: %w", version, featureID, err)
	}
	return nil
}

func (r *PostgresFeatureStoreRepository) UpdateFeature(ctx context.Context, featureID int64, newQuery, changeDescription string) (int, error) {
	feature, err := r.GetFeature(ctx, featureID)
	if err != nil {
		return 0, err
	}
	if feature == nil {
		return 0, fmt.Errorf("%w: id %d", ErrFeatureNotFound, featureID)
	}

	current, err := r.GetLatestFeatureVersion(ctx, featureID)
	if err != nil {
		return 0, err
	}
	next := current + 1

	if err := r.materialize(ctx, feature.TableName, newQuery); err != nil {
		return 0, err
	}
	// The UNIQUE (feature_id, feature_version) constraint turns a concurrent
	// same-version insert into a hard failure instead of silent duplication.
	if err := r.insertVersion(ctx, featureID, next, newQuery, changeDescription); err != nil {
		return 0, err
	}

	r.logger.Info("feature updated",
		zap.Int64("feature_id", featureID),
		zap.Int("feature_version", next))
	return next, nil
}

func (r *PostgresFeatureStoreRepository) GetLatestFeatureVersion(ctx context.Context, featureID int64) (int, error) {
	versions, err := r.qualify(featureVersionRegistryTable)
	if err != nil {
		return 0, err
	}
	var version int
	if err := r.wh.QueryRow(ctx, fmt.Sprintf(`
		SELECT COALESCE(MAX(feature_version), 0)
		FROM %s
		WHERE feature_id = $1`, versions), featureID).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read latest version for feature %d: %w", featureID, err)
	}
	return version, nil
}

func (r *PostgresFeatureStoreRepository) versionQuery(ctx context.Context, featureID int64, version int) (string, error) {
	versions, err := r.qualify(featureVersionRegistryTable)
	if err != nil {
		return "", err
	}
	var query string
	err = r.wh.QueryRow(ctx, fmt.Sprintf(`
		SELECT sql_query
		FROM %s
		WHERE feature_id = $1 AND feature_version = $2`, versions),
		featureID, version).Scan(&query)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: feature %d has no version %d", ErrFeatureNotFound, featureID, version)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read query for feature %d version %d: %w", featureID, version, err)
	}
	return query, nil
}

func (r *PostgresFeatureStoreRepository) RefreshFeature(ctx context.Context, featureID int64) error {
	feature, err := r.GetFeature(ctx, featureID)
	if err != nil {
		return err
	}
	if feature == nil {
		return fmt.Errorf("%w: id %d", ErrFeatureNotFound, featureID)
	}
	current, err := r.GetLatestFeatureVersion(ctx, featureID)
	if err != nil {
		return err
	}
	if current == 0 {
		return fmt.Errorf("%w: feature %d has no versions to refresh", ErrFeatureNotFound, featureID)
	}
	query, err := r.versionQuery(ctx, featureID, current)
	if err != nil {
		return err
	}
	if err := r.materialize(ctx, feature.TableName, query); err != nil {
		return err
	}
	r.logger.Info("feature refreshed",
		zap.Int64("feature_id", featureID),
		zap.Int("feature_version", current))
	return nil
}

func (r *PostgresFeatureStoreRepository) RollbackFeature(ctx context.Context, featureID int64, toVersion int) (int, error) {
	feature, err := r.GetFeature(ctx, featureID)
	if err != nil {
		return 0, err
	}
	if feature == nil {
		return 0, fmt.Errorf("%w: id %d", ErrFeatureNotFound, featureID)
	}
	query, err := r.versionQuery(ctx, featureID, toVersion)
	if err != nil {
		return 0, err
	}
	current, err := r.GetLatestFeatureVersion(ctx, featureID)
	if err != nil {
		return 0, err
	}
	next := current + 1

	if err := r.materialize(ctx, feature.TableName, query); err != nil {
		return 0, err
	}
	if err := r.insertVersion(ctx, featureID, next, query,
		fmt.Sprintf("Rollback to version %d", toVersion)); err != nil {
		return 0, err
	}

	r.logger.Info("feature rolled back",
		zap.Int64("feature_id", featureID),
		zap.Int("restored_version", toVersion),
		zap.Int("feature_version", next))
	return next, nil
}

func (r *PostgresFeatureStoreRepository) deleteRegistryRow(ctx context.Context, featureID int64) (string, error) {
	registry, err := r.qualify(featureRegistryTable)
	if err != nil {
		return "", err
	}
	var tableName string
	err = r.wh.QueryRow(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE feature_id = $1 RETURNING table_name", registry), featureID).Scan(&tableName)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: id %d", ErrFeatureNotFound, featureID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to delete registry entry for feature %d: %w", featureID, err)
	}
	return tableName, nil
}

// DeleteFeature removes the registry record and drops the materialized
// table. Version history stays: the audit trail is permanent.
func (r *PostgresFeatureStoreRepository) DeleteFeature(ctx context.Context, featureID int64) error {
	tableName, err := r.deleteRegistryRow(ctx, featureID)
	if err != nil {
		return err
	}
	qualified, err := r.qualify(tableName)
	if err != nil {
		return err
	}
	if err := r.wh.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", qualified)); err != nil {
		return fmt.Errorf("failed to drop feature table %s: %w", qualified, err)
	}
	r.logger.Info("feature deleted",
		zap.Int64("feature_id", featureID),
		zap.String("table_name", tableName))
	return nil
}

func (r *PostgresFeatureStoreRepository) GetFeature(ctx context.Context, featureID int64) (*Feature, error) {
	registry, err := r.qualify(featureRegistryTable)
	if err != nil {
		return nil, err
	}
	var f Feature
	var format string
	err = r.wh.QueryRow(ctx, fmt.Sprintf(`
		SELECT feature_id, feature_name, COALESCE(feature_desc, ''), COALESCE(feature_format, ''),
			table_name, date_feature_registered
		FROM %s
		WHERE feature_id = $1`, registry), featureID).Scan(
		&f.FeatureID, &f.Name, &f.Description, &format, &f.TableName, &f.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feature %d: %w", featureID, err)
	}
	f.Format = domain.FeatureFormat(format)
	return &f, nil
}

func (r *PostgresFeatureStoreRepository) ListFeatures(ctx context.Context) ([]Feature, error) {
	registry, err := r.qualify(featureRegistryTable)
	if err != nil {
		return nil, err
	}
	rows, err := r.wh.Query(ctx, fmt.Sprintf(`
		SELECT feature_id, feature_name, COALESCE(feature_desc, ''), COALESCE(feature_format, ''),
			table_name, date_feature_registered
		FROM %s
		ORDER BY feature_id`, registry))
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	defer rows.Close()

	var out []Feature
	for rows.Next() {
		var f Feature
		var format string
		if err := rows.Scan(&f.FeatureID, &f.Name, &f.Description, &format, &f.TableName, &f.RegisteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		f.Format = domain.FeatureFormat(format)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate features: %w", err)
	}
	return out, nil
}

func (r *PostgresFeatureStoreRepository) ListFeatureVersions(ctx context.Context, featureID int64) ([]FeatureVersion, error) {
	versions, err := r.qualify(featureVersionRegistryTable)
	if err != nil {
		return nil, err
	}
	rows, err := r.wh.Query(ctx, fmt.Sprintf(`
		SELECT feature_id, feature_version, sql_query, COALESCE(change_description, ''), date_version_registered
		FROM %s
		WHERE feature_id = $1
		ORDER BY feature_version`, versions), featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions for feature %d: %w", featureID, err)
	}
	defer rows.Close()

	var out []FeatureVersion
	for rows.Next() {
		var v FeatureVersion
		if err := rows.Scan(&v.FeatureID, &v.Version, &v.Query, &v.ChangeDescription, &v.RegisteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan feature version: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feature versions: %w", err)
	}
	return out, nil
}

func (r *PostgresFeatureStoreRepository) FeatureIDForTable(ctx context.Context, tableName string) (int64, error) {
	registry, err := r.qualify(featureRegistryTable)
	if err != nil {
		return 0, err
	}
	var featureID int64
	err = r.wh.QueryRow(ctx, fmt.Sprintf(
		"SELECT feature_id FROM %s WHERE table_name = upper($1)", registry), tableName).Scan(&featureID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve feature for table %s: %w", tableName, err)
	}
	return featureID, nil
}
