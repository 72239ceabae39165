package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig holds the warehouse connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN renders the lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Config is the full pipeline configuration, caller-managed and passed into
// every component constructor. There is no ambient session state.
type Config struct {
	Database DatabaseConfig
	Redis    struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
		TTL      time.Duration
	}
	Log struct {
		Level  string
		Format string
	}
	Library struct {
		// Schema holding the definition target tables and the unified view.
		// Empty means the connection's default search path.
		Schema string
		// ViewName is the unified store view.
		ViewName string
		// SourceTables are the loader target tables unioned into the view.
		SourceTables []string
		// ConceptTable / ConceptMapTable locate the canonical concept space,
		// possibly in another schema.
		ConceptTable    string
		ConceptMapTable string
		// DefinitionsDir is where locally authored definition JSON files live.
		DefinitionsDir string
	}
	FeatureStore struct {
		// Schema holding the two control tables and the feature tables.
		Schema string
	}
}

// Default loader target tables, one per external definition source.
var defaultSourceTables = []string{
	"aic_definitions",
	"bsa_bnf_snomed_mappings",
	"hdruk_definitions",
	"nel_segment_definitions",
	"nhs_gp_snomed_refsets",
	"open_codelists",
}

func Load() *Config {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "intelligence_dev")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)
	cfg.Redis.TTL = time.Duration(parseInt(getEnv("CACHE_TTL_SECONDS", "1800"), 1800)) * time.Second

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Library.Schema = getEnv("LIBRARY_SCHEMA", "definition_library")
	cfg.Library.ViewName = getEnv("STORE_VIEW_NAME", "definitionstore")
	cfg.Library.SourceTables = parseList(getEnv("SOURCE_TABLES", ""), defaultSourceTables)
	cfg.Library.ConceptTable = getEnv("CONCEPT_TABLE", "analyst_primary_care.concept")
	cfg.Library.ConceptMapTable = getEnv("CONCEPT_MAP_TABLE", "analyst_primary_care.concept_map")
	cfg.Library.DefinitionsDir = getEnv("DEFINITIONS_DIR", "data/definitions")

	cfg.FeatureStore.Schema = getEnv("FEATURE_STORE_SCHEMA", "feature_store")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseList(s string, def []string) []string {
	if s == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
