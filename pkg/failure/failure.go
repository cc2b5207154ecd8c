// Package failure defines the error kinds surfaced by churnctl commands.
package failure

import "errors"

var (
	// ErrDataUnavailable means the raw input is missing, unreadable, or not parseable.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrSchemaMismatch means an expected column is absent or mistyped.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrTraining means the label distribution is degenerate or a candidate failed to fit.
	ErrTraining = errors.New("training error")
	// ErrArtifactMissing means a persisted pipeline, metrics record, or report does not exist yet.
	ErrArtifactMissing = errors.New("artifact missing")
	// ErrScoring means the input features are incompatible with the fitted pipeline.
	ErrScoring = errors.New("scoring error")
	// ErrInvalidInput means a manually entered record failed validation.
	ErrInvalidInput = errors.New("invalid input")
)

type kind struct {
	err  error
	name string
	code int
}

// stage kinds come first so a schema problem met while scoring reports as
// a scoring error
var kinds = []kind{
	{ErrScoring, "ScoringError", 7},
	{ErrTraining, "TrainingError", 5},
	{ErrArtifactMissing, "ArtifactMissing", 6},
	{ErrInvalidInput, "InvalidInput", 8},
	{ErrDataUnavailable, "DataUnavailable", 3},
	{ErrSchemaMismatch, "SchemaMismatch", 4},
}

// Kind returns the name of the error kind in err's chain, "Unknown" for
// errors outside the taxonomy and an empty string for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Unknown"
}

// ExitCode maps err to a process exit code: 0 for nil, a kind-specific code
// for known kinds, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return 1
}
