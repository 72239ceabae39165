package domain

import "fmt"

// Vocabulary is a supported coding system. Values match scheme naming in the
// NEL ICB Compass warehouse.
type Vocabulary string

const (
	VocabularySNOMED  Vocabulary = "SNOMED" // SNOMED-CT
	VocabularyICD10   Vocabulary = "ICD10"
	VocabularyBNF     Vocabulary = "BNF"
	VocabularyReadV2  Vocabulary = "READ 2"
	VocabularyReadV3  Vocabulary = "READ 3"
	VocabularyDMD     Vocabulary = "DM+D code scheme"
	VocabularyMedcode Vocabulary = "MEDCODE" // HDRUK CPRD med codes, do not appear in the London vocabulary
	VocabularyOPCS4   Vocabulary = "OPCS4"
)

// vocabularyAliases maps the vocabulary spellings returned by the different
// source APIs onto canonical Vocabulary values. Every string accepted into a
// Code goes through this table; anything else is rejected.
var vocabularyAliases = map[string]Vocabulary{
	// HDRUK
	"SNOMED CT codes": VocabularySNOMED,
	"ICD10 codes":     VocabularyICD10,
	"Read codes v2":   VocabularyReadV2,
	"Med codes":       VocabularyMedcode,
	"BNF codes":       VocabularyBNF,
	// Open Codelists
	"SNOMED CT":                           VocabularySNOMED,
	"SNOMED CT (UK Clinical Edition)":     VocabularySNOMED,
	"Read V2":                             VocabularyReadV2,
	"CTV3 (Read V3)":                      VocabularyReadV3,
	"ICD-10":                              VocabularyICD10,
	"Dictionary of Medicines and Devices": VocabularyDMD,
	// internal / canonical spellings
	"SNOMED":           VocabularySNOMED,
	"OPCS4":            VocabularyOPCS4,
	"ICD10":            VocabularyICD10,
	"BNF":              VocabularyBNF,
	"READ 2":           VocabularyReadV2,
	"READ 3":           VocabularyReadV3,
	"DM+D code scheme": VocabularyDMD,
	"MEDCODE":          VocabularyMedcode,
}

// NormalizeVocabulary maps an externally sourced vocabulary string to its
// canonical Vocabulary. Unmapped strings fail with ErrUnknownVocabulary.
func NormalizeVocabulary(s string) (Vocabulary, error) {
	if v, ok := vocabularyAliases[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVocabulary, s)
}

// Source identifies where a definition came from.
type Source string

const (
	SourceHDRUK         Source = "HDRUK"          // HDR UK phenotype library
	SourceLondon        Source = "LONDON"         // OneLondon terminology server
	SourceICBNEL        Source = "ICB_NEL"        // North East London ICB local definition
	SourceNHSBSA        Source = "NHSBSA"         // NHS Business Services Authority
	SourceOpenCodelists Source = "OPEN_CODELISTS" // OpenCodelists.org
	SourceAICentre      Source = "AICENTRE"       // created locally in PhenoLab
)

// ParseSource validates a provenance string against the closed Source set.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceHDRUK, SourceLondon, SourceICBNEL, SourceNHSBSA, SourceOpenCodelists, SourceAICentre:
		return Source(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// FeatureFormat classifies the shape of a registered feature.
type FeatureFormat string

const (
	FormatBinary      FeatureFormat = "binary"
	FormatCategorical FeatureFormat = "categorical"
	FormatContinuous  FeatureFormat = "continuous"
	FormatOneHot      FeatureFormat = "one_hot"
	FormatCount       FeatureFormat = "count"
)

// ParseFormat validates a feature format string against the closed set.
func ParseFormat(s string) (FeatureFormat, error) {
	switch FeatureFormat(s) {
	case FormatBinary, FormatCategorical, FormatContinuous, FormatOneHot, FormatCount:
		return FeatureFormat(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}
