package domain

import "errors"

// Error taxonomy for the content model. Repositories wrap these with
// fmt.Errorf("...: %w", err) so callers can classify with errors.Is.
var (
	// ErrUnknownVocabulary means a vocabulary string from an external source
	// has no entry in the normalization table. The batch carrying it must be
	// rejected, never silently admitted.
	ErrUnknownVocabulary = errors.New("unknown vocabulary")

	// ErrVocabularyMismatch means a code's vocabulary differs from its
	// codelist's vocabulary. Raised at construction time.
	ErrVocabularyMismatch = errors.New("code vocabulary does not match codelist vocabulary")

	// ErrMalformedInput means a flat row set cannot be reconstructed into a
	// definition without ambiguity (e.g. two distinct definition_name values
	// in one group).
	ErrMalformedInput = errors.New("malformed definition rows")

	// ErrSchema means a row batch does not conform to the ingested-row
	// schema (missing required fields or unrecognized vocabulary).
	ErrSchema = errors.New("row schema violation")

	// ErrUnknownSource means a definition_source string is not one of the
	// supported provenance identifiers.
	ErrUnknownSource = errors.New("unknown definition source")

	// ErrUnknownFormat means a feature format string is not one of the
	// supported classifications.
	ErrUnknownFormat = errors.New("unknown feature format")
)
