package domain

import (
	"fmt"
	"time"
)

// Row is the flat ingested-row schema: one row per code, with codelist- and
// definition-level fields denormalized onto it. This is the wire format
// shared with every row producer and with the warehouse target tables.
type Row struct {
	Code              string    `db:"code"`
	CodeDescription   string    `db:"code_description"`
	Vocabulary        string    `db:"vocabulary"`
	CodelistID        string    `db:"codelist_id"`
	CodelistName      string    `db:"codelist_name"`
	CodelistVersion   string    `db:"codelist_version"`
	DefinitionID      string    `db:"definition_id"`
	DefinitionName    string    `db:"definition_name"`
	DefinitionVersion string    `db:"definition_version"`
	DefinitionSource  string    `db:"definition_source"`
	VersionDatetime   time.Time `db:"version_datetime"`
	UploadedDatetime  time.Time `db:"uploaded_datetime"`
}

// RowColumns is the column order used for staging and merging. Kept in one
// place so the loader DDL, the write path and the merge statement cannot
// drift apart.
var RowColumns = []string{
	"code", "code_description", "vocabulary",
	"codelist_id", "codelist_name", "codelist_version",
	"definition_id", "definition_name", "definition_version",
	"definition_source", "version_datetime", "uploaded_datetime",
}

// NaturalKeyColumns is the field tuple that identifies one fact: rows
// matching on all six are the same fact and must never be duplicated.
var NaturalKeyColumns = []string{
	"code", "code_description", "vocabulary",
	"codelist_version", "definition_name", "definition_version",
}

// NaturalKey is the comparable form of NaturalKeyColumns.
type NaturalKey struct {
	Code              string
	CodeDescription   string
	Vocabulary        string
	CodelistVersion   string
	DefinitionName    string
	DefinitionVersion string
}

// NaturalKey returns the deduplication key for the row.
func (r Row) NaturalKey() NaturalKey {
	return NaturalKey{
		Code:              r.Code,
		CodeDescription:   r.CodeDescription,
		Vocabulary:        r.Vocabulary,
		CodelistVersion:   r.CodelistVersion,
		DefinitionName:    r.DefinitionName,
		DefinitionVersion: r.DefinitionVersion,
	}
}

// Validate checks a single row against the ingested-row schema: required
// identity fields present and the vocabulary recognized.
func (r Row) Validate() error {
	switch {
	case r.Code == "":
		return fmt.Errorf("%w: empty code", ErrSchema)
	case r.CodelistID == "":
		return fmt.Errorf("%w: empty codelist_id (code %s)", ErrSchema, r.Code)
	case r.DefinitionID == "":
		return fmt.Errorf("%w: empty definition_id (code %s)", ErrSchema, r.Code)
	case r.DefinitionName == "":
		return fmt.Errorf("%w: empty definition_name (code %s)", ErrSchema, r.Code)
	}
	if _, err := NormalizeVocabulary(r.Vocabulary); err != nil {
		return fmt.Errorf("%w: code %s: %v", ErrSchema, r.Code, err)
	}
	if _, err := ParseSource(r.DefinitionSource); err != nil {
		return fmt.Errorf("%w: code %s: %v", ErrSchema, r.Code, err)
	}
	return nil
}

// ValidateRows rejects a whole batch on the first offending row, before any
// mutation happens downstream.
func ValidateRows(rows []Row) error {
	for i, r := range rows {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// Flatten produces one row per code across all codelists, denormalizing
// definition- and codelist-level fields onto each row. Deterministic given
// deterministic codelist and code ordering.
func Flatten(d *Definition) []Row {
	var rows []Row
	for _, cl := range d.Codelists {
		for _, c := range cl.Codes {
			rows = append(rows, Row{
				Code:              c.Code,
				CodeDescription:   c.Description,
				Vocabulary:        string(cl.Vocabulary),
				CodelistID:        cl.ID,
				CodelistName:      cl.Name,
				CodelistVersion:   cl.Version,
				DefinitionID:      d.ID,
				DefinitionName:    d.Name,
				DefinitionVersion: d.Version,
				DefinitionSource:  string(d.Source),
				VersionDatetime:   d.VersionDatetime,
				UploadedDatetime:  d.UploadedDatetime,
			})
		}
	}
	return rows
}

// Reconstruct rebuilds a definition from flat rows: codes are grouped by
// codelist_id (first-seen order), and every definition-level field must be
// uniform across all rows. More than one distinct value for any of them
// means the rows mix definitions (or the grouping key is wrong upstream) and
// reconstruction fails with ErrMalformedInput rather than silently picking
// one and corrupting provenance.
func Reconstruct(rows []Row) (*Definition, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrMalformedInput)
	}

	first := rows[0]
	for _, r := range rows[1:] {
		if r.DefinitionID != first.DefinitionID {
			return nil, uniformityError("definition_id", first.DefinitionID, r.DefinitionID)
		}
		if r.DefinitionName != first.DefinitionName {
			return nil, uniformityError("definition_name", first.DefinitionName, r.DefinitionName)
		}
		if r.DefinitionVersion != first.DefinitionVersion {
			return nil, uniformityError("definition_version", first.DefinitionVersion, r.DefinitionVersion)
		}
		if r.DefinitionSource != first.DefinitionSource {
			return nil, uniformityError("definition_source", first.DefinitionSource, r.DefinitionSource)
		}
	}

	source, err := ParseSource(first.DefinitionSource)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	var order []string
	groups := make(map[string][]Row)
	for _, r := range rows {
		if _, seen := groups[r.CodelistID]; !seen {
			order = append(order, r.CodelistID)
		}
		groups[r.CodelistID] = append(groups[r.CodelistID], r)
	}

	var codelists []Codelist
	for _, id := range order {
		group := groups[id]
		head := group[0]
		vocabulary, err := NormalizeVocabulary(head.Vocabulary)
		if err != nil {
			return nil, fmt.Errorf("%w: codelist %s: %v", ErrMalformedInput, id, err)
		}
		codes := make([]Code, 0, len(group))
		for _, r := range group {
			if r.CodelistName != head.CodelistName {
				return nil, uniformityError("codelist_name", head.CodelistName, r.CodelistName)
			}
			if r.CodelistVersion != head.CodelistVersion {
				return nil, uniformityError("codelist_version", head.CodelistVersion, r.CodelistVersion)
			}
			v, err := NormalizeVocabulary(r.Vocabulary)
			if err != nil {
				return nil, fmt.Errorf("%w: codelist %s: %v", ErrMalformedInput, id, err)
			}
			if v != vocabulary {
				return nil, uniformityError("vocabulary", string(vocabulary), string(v))
			}
			codes = append(codes, Code{Code: r.Code, Description: r.CodeDescription, Vocabulary: v})
		}
		cl, err := NewCodelist(id, head.CodelistName, vocabulary, head.CodelistVersion, codes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		codelists = append(codelists, *cl)
	}

	return &Definition{
		ID:               first.DefinitionID,
		Name:             first.DefinitionName,
		Version:          first.DefinitionVersion,
		Source:           source,
		Codelists:        codelists,
		VersionDatetime:  first.VersionDatetime,
		UploadedDatetime: first.UploadedDatetime,
	}, nil
}

func uniformityError(field, a, b string) error {
	return fmt.Errorf("%w: %s is not uniform across rows (%q vs %q)", ErrMalformedInput, field, a, b)
}
