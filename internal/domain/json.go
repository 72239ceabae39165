package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// JSON document layout for definitions saved to disk. Field names match the
// PhenoLab definition files so existing libraries remain loadable.
type definitionDoc struct {
	DefinitionID      string        `json:"definition_id"`
	DefinitionName    string        `json:"definition_name"`
	DefinitionVersion string        `json:"definition_version"`
	DefinitionSource  string        `json:"definition_source"`
	VersionDatetime   string        `json:"version_datetime"`
	UploadedDatetime  string        `json:"uploaded_datetime"`
	Codelists         []codelistDoc `json:"codelists"`
}

type codelistDoc struct {
	CodelistID         string    `json:"codelist_id"`
	CodelistName       string    `json:"codelist_name"`
	CodelistVocabulary string    `json:"codelist_vocabulary"`
	CodelistVersion    string    `json:"codelist_version"`
	Codes              []codeDoc `json:"codes"`
}

type codeDoc struct {
	Code            string `json:"code"`
	CodeDescription string `json:"code_description"`
	CodeVocabulary  string `json:"code_vocabulary"`
}

func (d *Definition) toDoc() definitionDoc {
	doc := definitionDoc{
		DefinitionID:      d.ID,
		DefinitionName:    d.Name,
		DefinitionVersion: d.Version,
		DefinitionSource:  string(d.Source),
		VersionDatetime:   d.VersionDatetime.Format(time.RFC3339),
		UploadedDatetime:  d.UploadedDatetime.Format(time.RFC3339),
		Codelists:         []codelistDoc{},
	}
	for _, cl := range d.Codelists {
		cld := codelistDoc{
			CodelistID:         cl.ID,
			CodelistName:       cl.Name,
			CodelistVocabulary: string(cl.Vocabulary),
			CodelistVersion:    cl.Version,
			Codes:              []codeDoc{},
		}
		for _, c := range cl.Codes {
			cld.Codes = append(cld.Codes, codeDoc{
				Code:            c.Code,
				CodeDescription: c.Description,
				CodeVocabulary:  string(c.Vocabulary),
			})
		}
		doc.Codelists = append(doc.Codelists, cld)
	}
	return doc
}

func definitionFromDoc(doc definitionDoc) (*Definition, error) {
	source, err := ParseSource(doc.DefinitionSource)
	if err != nil {
		return nil, err
	}
	d := &Definition{
		ID:      doc.DefinitionID,
		Name:    doc.DefinitionName,
		Version: doc.DefinitionVersion,
		Source:  source,
	}
	if doc.VersionDatetime != "" {
		t, err := time.Parse(time.RFC3339, doc.VersionDatetime)
		if err != nil {
			return nil, fmt.Errorf("parse version_datetime: %w", err)
		}
		d.VersionDatetime = t
	}
	if doc.UploadedDatetime != "" {
		t, err := time.Parse(time.RFC3339, doc.UploadedDatetime)
		if err != nil {
			return nil, fmt.Errorf("parse uploaded_datetime: %w", err)
		}
		d.UploadedDatetime = t
	}
	for _, cld := range doc.Codelists {
		vocabulary, err := NormalizeVocabulary(cld.CodelistVocabulary)
		if err != nil {
			return nil, err
		}
		codes := make([]Code, 0, len(cld.Codes))
		for _, cd := range cld.Codes {
			v, err := NormalizeVocabulary(cd.CodeVocabulary)
			if err != nil {
				return nil, err
			}
			codes = append(codes, Code{Code: cd.Code, Description: cd.CodeDescription, Vocabulary: v})
		}
		cl, err := NewCodelist(cld.CodelistID, cld.CodelistName, vocabulary, cld.CodelistVersion, codes)
		if err != nil {
			return nil, err
		}
		d.Codelists = append(d.Codelists, *cl)
	}
	return d, nil
}

// MarshalJSON renders the definition in the PhenoLab file layout.
func (d *Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.toDoc())
}

// UnmarshalJSON parses the PhenoLab file layout, normalizing vocabularies
// and validating the source.
func (d *Definition) UnmarshalJSON(data []byte) error {
	var doc definitionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	parsed, err := definitionFromDoc(doc)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

// DefinitionFromJSONFile loads a definition from a JSON file on disk.
func DefinitionFromJSONFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition file: %w", err)
	}
	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse definition file %s: %w", path, err)
	}
	return &d, nil
}

// contentEqual compares everything except the timestamps, which change on
// every save.
func contentEqual(a, b *Definition) bool {
	da, db := a.toDoc(), b.toDoc()
	da.VersionDatetime, db.VersionDatetime = "", ""
	da.UploadedDatetime, db.UploadedDatetime = "", ""
	ja, _ := json.Marshal(da)
	jb, _ := json.Marshal(db)
	return string(ja) == string(jb)
}

// SaveJSON writes the definition to <dir>/<definition_version>.json and
// returns the path. When a file for this version already exists with the
// same content, nothing is written; otherwise the version datetime is
// stamped before writing.
func (d *Definition) SaveJSON(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create definitions dir: %w", err)
	}
	path := filepath.Join(dir, d.Version+".json")

	if existing, err := DefinitionFromJSONFile(path); err == nil && contentEqual(d, existing) {
		return path, nil
	}

	d.VersionDatetime = time.Now()
	data, err := json.MarshalIndent(d.toDoc(), "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write definition file: %w", err)
	}
	return path, nil
}
