package registry

// ErrorCategory classifies manifest load failures so telemetry and operator
// responses can distinguish them. Every failure path maps to exactly one
// category.
type ErrorCategory string

const (
	// ErrManifestMissing means the manifest file does not exist.
	ErrManifestMissing ErrorCategory = "manifest_missing"

	// ErrManifestRead means the file exists but could not be read.
	ErrManifestRead ErrorCategory = "manifest_read_error"

	// ErrManifestParse means the YAML is syntactically invalid.
	ErrManifestParse ErrorCategory = "manifest_parse_error"

	// ErrManifestValidation means the YAML parsed but violates the schema.
	ErrManifestValidation ErrorCategory = "manifest_validation_error"

	// ErrRegistryLoad covers any other load failure.
	ErrRegistryLoad ErrorCategory = "registry_load_failed"
)

// userMessages maps each category to a fixed operator-facing explanation.
var userMessages = map[ErrorCategory]string{
	ErrManifestMissing:    "Tool manifest not found; using the built-in fallback registry. Run setup or set ACFS_MANIFEST_PATH.",
	ErrManifestRead:       "Tool manifest could not be read; using the built-in fallback registry. Check file permissions.",
	ErrManifestParse:      "Tool manifest is not valid YAML; using the built-in fallback registry. Fix the manifest syntax.",
	ErrManifestValidation: "Tool manifest failed schema validation; using the built-in fallback registry. See metadata issues for details.",
	ErrRegistryLoad:       "Tool registry failed to load; using the built-in fallback registry.",
}

// UserMessage returns the fixed human-readable string for a category, or ""
// for an empty category (clean load).
func UserMessage(cat ErrorCategory) string {
	return userMessages[cat]
}

// LoadError is the typed error returned when ThrowOnError is set.
type LoadError struct {
	Category ErrorCategory
	Path     string
	Err      error
	Issues   []ValidationIssue
}

func (e *LoadError) Error() string {
	msg := string(e.Category) + ": " + e.Path
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }
