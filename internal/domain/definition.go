package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Code is an atomic clinical code. Immutable value object.
type Code struct {
	Code        string
	Description string
	Vocabulary  Vocabulary
}

// Codelist is a named, versioned group of codes sharing one vocabulary.
type Codelist struct {
	ID         string
	Name       string
	Vocabulary Vocabulary
	Version    string
	Codes      []Code
}

// NewCodelist builds a codelist and enforces the single-vocabulary
// invariant: every code must carry the codelist's vocabulary. Violation is a
// construction-time error and no partial value is returned.
func NewCodelist(id, name string, vocabulary Vocabulary, version string, codes []Code) (*Codelist, error) {
	for _, c := range codes {
		if c.Vocabulary != vocabulary {
			return nil, fmt.Errorf("%w: codelist %s is %s, code %s is %s",
				ErrVocabularyMismatch, name, vocabulary, c.Code, c.Vocabulary)
		}
	}
	return &Codelist{ID: id, Name: name, Vocabulary: vocabulary, Version: version, Codes: codes}, nil
}

// NewCodelistFromScratch creates an empty codelist with a generated id and
// version, for codelists built interactively rather than loaded from a
// source.
func NewCodelistFromScratch(name string, vocabulary Vocabulary) *Codelist {
	id := fmt.Sprintf("%s_%s", name, uuid.NewString()[:8])
	version := fmt.Sprintf("%s_%s", id, time.Now().Format("20060102_150405"))
	return &Codelist{ID: id, Name: name, Vocabulary: vocabulary, Version: version}
}

// AddCode appends a code to the codelist. Returns false without modifying
// the list when the code is already present; returns an error when the
// code's vocabulary differs from the codelist's.
func (cl *Codelist) AddCode(c Code) (bool, error) {
	if c.Vocabulary != cl.Vocabulary {
		return false, fmt.Errorf("%w: codelist %s is %s, code %s is %s",
			ErrVocabularyMismatch, cl.Name, cl.Vocabulary, c.Code, c.Vocabulary)
	}
	for _, existing := range cl.Codes {
		if existing.Code == c.Code {
			return false, nil
		}
	}
	cl.Codes = append(cl.Codes, c)
	return true, nil
}

// Definition is a named, versioned group of codelists representing one
// clinical concept. Codelist vocabularies may differ across codelists.
type Definition struct {
	ID        string
	Name      string
	Version   string
	Source    Source
	Codelists []Codelist

	// VersionDatetime is when the source considers this version
	// authoritative; UploadedDatetime is when it was ingested locally.
	VersionDatetime  time.Time
	UploadedDatetime time.Time
}

// NewDefinitionFromScratch creates a locally authored definition with a
// generated id and an initial version stamp. Source is always AICENTRE for
// de-novo definitions.
func NewDefinitionFromScratch(name string, codelists []Codelist) *Definition {
	d := &Definition{
		ID:        uuid.NewString()[:8],
		Name:      name,
		Source:    SourceAICentre,
		Codelists: codelists,
	}
	d.UpdateVersion()
	return d
}

// Codes returns every code across all codelists, in codelist order.
func (d *Definition) Codes() []Code {
	var out []Code
	for _, cl := range d.Codelists {
		out = append(out, cl.Codes...)
	}
	return out
}

// AddCode routes a code to the codelist matching its vocabulary, creating
// one when no codelist of that vocabulary exists yet. Returns false when the
// code is already present.
func (d *Definition) AddCode(c Code) bool {
	for i := range d.Codelists {
		if d.Codelists[i].Vocabulary == c.Vocabulary {
			added, _ := d.Codelists[i].AddCode(c)
			return added
		}
	}
	cl := NewCodelistFromScratch(fmt.Sprintf("%s_%s", d.Name, c.Vocabulary), c.Vocabulary)
	cl.Codes = append(cl.Codes, c)
	d.Codelists = append(d.Codelists, *cl)
	return true
}

// RemoveCode removes a code from whichever codelist holds it. Returns false
// when the code is not present.
func (d *Definition) RemoveCode(c Code) bool {
	for i := range d.Codelists {
		cl := &d.Codelists[i]
		for j, existing := range cl.Codes {
			if existing.Code == c.Code && existing.Vocabulary == c.Vocabulary {
				cl.Codes = append(cl.Codes[:j], cl.Codes[j+1:]...)
				return true
			}
		}
	}
	return false
}

// UpdateVersion stamps a new version string and version datetime. A version
// only becomes authoritative when the definition is persisted.
func (d *Definition) UpdateVersion() {
	now := time.Now()
	d.Version = fmt.Sprintf("%s_%s", d.Name, now.Format("20060102_150405"))
	d.VersionDatetime = now
}
