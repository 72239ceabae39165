package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodelist_RejectsMixedVocabularies(t *testing.T) {
	codes := []Code{
		{Code: "73211009", Description: "Diabetes mellitus", Vocabulary: VocabularySNOMED},
		{Code: "E11", Description: "Type 2 diabetes mellitus", Vocabulary: VocabularyICD10},
	}

	cl, err := NewCodelist("cl1", "diabetes", VocabularySNOMED, "v1", codes)
	require.ErrorIs(t, err, ErrVocabularyMismatch)
	assert.Nil(t, cl, "no partial codelist on invariant violation")
}

func TestCodelist_AddCode(t *testing.T) {
	cl, err := NewCodelist("cl1", "diabetes", VocabularySNOMED, "v1", nil)
	require.NoError(t, err)

	added, err := cl.AddCode(Code{Code: "73211009", Description: "Diabetes mellitus", Vocabulary: VocabularySNOMED})
	require.NoError(t, err)
	assert.True(t, added)

	// duplicate code is ignored, not an error
	added, err = cl.AddCode(Code{Code: "73211009", Description: "Diabetes mellitus", Vocabulary: VocabularySNOMED})
	require.NoError(t, err)
	assert.False(t, added)
	assert.Len(t, cl.Codes, 1)

	// wrong vocabulary is rejected and leaves the list untouched
	_, err = cl.AddCode(Code{Code: "E11", Vocabulary: VocabularyICD10})
	require.ErrorIs(t, err, ErrVocabularyMismatch)
	assert.Len(t, cl.Codes, 1)
}

func TestNewCodelistFromScratch(t *testing.T) {
	cl := NewCodelistFromScratch("hypertension", VocabularySNOMED)

	assert.True(t, strings.HasPrefix(cl.ID, "hypertension_"))
	assert.Len(t, cl.ID, len("hypertension_")+8)
	assert.True(t, strings.HasPrefix(cl.Version, cl.ID+"_"))
	assert.Empty(t, cl.Codes)
}

func TestNewDefinitionFromScratch(t *testing.T) {
	d := NewDefinitionFromScratch("hypertension", nil)

	assert.Len(t, d.ID, 8)
	assert.Equal(t, SourceAICentre, d.Source)
	assert.True(t, strings.HasPrefix(d.Version, "hypertension_"))
	assert.False(t, d.VersionDatetime.IsZero())
}

func TestDefinition_AddCode_RoutesByVocabulary(t *testing.T) {
	d := NewDefinitionFromScratch("diabetes", nil)

	require.True(t, d.AddCode(Code{Code: "73211009", Vocabulary: VocabularySNOMED}))
	require.True(t, d.AddCode(Code{Code: "E11", Vocabulary: VocabularyICD10}))
	require.True(t, d.AddCode(Code{Code: "44054006", Vocabulary: VocabularySNOMED}))

	require.Len(t, d.Codelists, 2, "one codelist per vocabulary")
	assert.Equal(t, VocabularySNOMED, d.Codelists[0].Vocabulary)
	assert.Len(t, d.Codelists[0].Codes, 2)
	assert.Equal(t, VocabularyICD10, d.Codelists[1].Vocabulary)

	// duplicate lands in the existing codelist and is a no-op
	assert.False(t, d.AddCode(Code{Code: "E11", Vocabulary: VocabularyICD10}))
	assert.Len(t, d.Codes(), 3)
}

func TestDefinition_RemoveCode(t *testing.T) {
	d := NewDefinitionFromScratch("diabetes", nil)
	d.AddCode(Code{Code: "73211009", Vocabulary: VocabularySNOMED})
	d.AddCode(Code{Code: "E11", Vocabulary: VocabularyICD10})

	assert.True(t, d.RemoveCode(Code{Code: "E11", Vocabulary: VocabularyICD10}))
	assert.False(t, d.RemoveCode(Code{Code: "E11", Vocabulary: VocabularyICD10}))
	assert.Len(t, d.Codes(), 1)
}

func TestDefinition_UpdateVersion(t *testing.T) {
	d := NewDefinitionFromScratch("asthma", nil)
	before := d.Version

	d.Name = "asthma_revised"
	d.UpdateVersion()

	assert.NotEqual(t, before, d.Version)
	assert.True(t, strings.HasPrefix(d.Version, "asthma_revised_"))
}
