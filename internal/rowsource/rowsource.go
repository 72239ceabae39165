// Package rowsource holds the row-producer contract: any source adapter
// that can emit flat definition rows for the loader. The network clients
// that fetch from terminology servers and phenotype libraries live outside
// this repository and implement the same interface; the adapters here read
// files that such collaborators (or analysts) drop on disk.
package rowsource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/londonaicentre/PhenoLab-sub001/internal/domain"
)

// Producer emits rows in the ingested-row schema.
type Producer interface {
	// Name identifies the source in batch reports and logs.
	Name() string
	// Rows produces the flat rows for one load.
	Rows(ctx context.Context) ([]domain.Row, error)
}

// Column headers accepted from tabular sources, matched case-insensitively.
const (
	colCode              = "code"
	colCodeDescription   = "code_description"
	colVocabulary        = "vocabulary"
	colCodelistID        = "codelist_id"
	colCodelistName      = "codelist_name"
	colCodelistVersion   = "codelist_version"
	colDefinitionID      = "definition_id"
	colDefinitionName    = "definition_name"
	colDefinitionVersion = "definition_version"
	colDefinitionSource  = "definition_source"
	colVersionDatetime   = "version_datetime"
)

var requiredColumns = []string{
	colCode, colCodeDescription, colVocabulary,
	colCodelistID, colCodelistName, colCodelistVersion,
	colDefinitionID, colDefinitionName, colDefinitionVersion,
	colDefinitionSource,
}

// headerIndex maps lower-cased header names to their column positions and
// verifies every required column is present.
func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %v", domain.ErrSchema, missing)
	}
	return index, nil
}

// rowFromRecord builds one Row from a tabular record, normalizing the
// vocabulary to its canonical spelling and stamping the upload time.
func rowFromRecord(record []string, index map[string]int, uploadedAt time.Time) (domain.Row, error) {
	field := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	vocabulary, err := domain.NormalizeVocabulary(field(colVocabulary))
	if err != nil {
		return domain.Row{}, err
	}

	row := domain.Row{
		Code:              field(colCode),
		CodeDescription:   field(colCodeDescription),
		Vocabulary:        string(vocabulary),
		CodelistID:        field(colCodelistID),
		CodelistName:      field(colCodelistName),
		CodelistVersion:   field(colCodelistVersion),
		DefinitionID:      field(colDefinitionID),
		DefinitionName:    field(colDefinitionName),
		DefinitionVersion: field(colDefinitionVersion),
		DefinitionSource:  field(colDefinitionSource),
		UploadedDatetime:  uploadedAt,
	}

	if raw := field(colVersionDatetime); raw != "" {
		t, err := parseDatetime(raw)
		if err != nil {
			return domain.Row{}, fmt.Errorf("%w: bad version_datetime %q", domain.ErrSchema, raw)
		}
		row.VersionDatetime = t
	}
	return row, nil
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDatetime(s string) (time.Time, error) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable datetime %q", s)
}
