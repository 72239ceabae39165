package repository

import "errors"

var (
	// ErrMergeFailure tags a warehouse-side failure during the single
	// set-based merge statement. The merge is all-or-nothing, so the target
	// table is assumed unchanged.
	ErrMergeFailure = errors.New("merge failed")

	// ErrCleanupFailure tags a failed staging-table drop. It never replaces
	// a primary error from the same load; when the load itself succeeded it
	// is surfaced so an operator can remove the orphan.
	ErrCleanupFailure = errors.New("staging cleanup failed")

	// ErrAlreadyInitialized means the feature store control tables already
	// exist. Bootstrap is intentionally not idempotent so an existing
	// registry's schema is never silently clobbered.
	ErrAlreadyInitialized = errors.New("feature store already initialized")

	// ErrDuplicateFeature means a feature table of the derived name already
	// exists and existence_ok was not set.
	ErrDuplicateFeature = errors.New("feature already exists")

	// ErrFeatureNotFound means a mutation referenced an unknown feature_id.
	// Plain lookups report misses with a zero sentinel instead.
	ErrFeatureNotFound = errors.New("feature not found")
)
