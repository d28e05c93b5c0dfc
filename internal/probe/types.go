// Package probe detects installed CLIs, parses their versions, checks
// authentication, and classifies the reasons tools are unavailable. Results
// are cached for a TTL and feed the diagnostics, planner, and snapshot
// components.
package probe

import "time"

// UnavailabilityReason enumerates why a CLI could not be used. Labels and
// HTTP statuses are wire-stable; the REST layer maps them directly into
// error responses.
type UnavailabilityReason string

const (
	ReasonNotInstalled       UnavailabilityReason = "not_installed"
	ReasonNotInPath          UnavailabilityReason = "not_in_path"
	ReasonPermissionDenied   UnavailabilityReason = "permission_denied"
	ReasonVersionUnsupported UnavailabilityReason = "version_unsupported"
	ReasonAuthRequired       UnavailabilityReason = "auth_required"
	ReasonAuthExpired        UnavailabilityReason = "auth_expired"
	ReasonConfigMissing      UnavailabilityReason = "config_missing"
	ReasonConfigInvalid      UnavailabilityReason = "config_invalid"
	ReasonDependencyMissing  UnavailabilityReason = "dependency_missing"
	ReasonMCPUnreachable     UnavailabilityReason = "mcp_unreachable"
	ReasonSpawnFailed        UnavailabilityReason = "spawn_failed"
	ReasonTimeout            UnavailabilityReason = "timeout"
	ReasonCrash              UnavailabilityReason = "crash"
	ReasonUnknown            UnavailabilityReason = "unknown"
)

// ReasonInfo carries the wire-stable metadata for a reason.
type ReasonInfo struct {
	HTTPStatus int    `json:"httpStatus"`
	Label      string `json:"label"`
	Retryable  bool   `json:"retryable"`
}

// reasonTable is the authoritative reason metadata. Statuses sit in the
// 400–503 range per the wire contract.
var reasonTable = map[UnavailabilityReason]ReasonInfo{
	ReasonNotInstalled:       {HTTPStatus: 424, Label: "Tool is not installed", Retryable: false},
	ReasonNotInPath:          {HTTPStatus: 424, Label: "Tool is installed but not in PATH", Retryable: false},
	ReasonPermissionDenied:   {HTTPStatus: 403, Label: "Permission denied executing tool", Retryable: false},
	ReasonVersionUnsupported: {HTTPStatus: 409, Label: "Installed version is unsupported", Retryable: false},
	ReasonAuthRequired:       {HTTPStatus: 401, Label: "Tool requires authentication", Retryable: false},
	ReasonAuthExpired:        {HTTPStatus: 401, Label: "Tool authentication has expired", Retryable: true},
	ReasonConfigMissing:      {HTTPStatus: 412, Label: "Tool configuration is missing", Retryable: false},
	ReasonConfigInvalid:      {HTTPStatus: 422, Label: "Tool configuration is invalid", Retryable: false},
	ReasonDependencyMissing:  {HTTPStatus: 424, Label: "A required dependency is missing", Retryable: false},
	ReasonMCPUnreachable:     {HTTPStatus: 502, Label: "MCP endpoint is unreachable", Retryable: true},
	ReasonSpawnFailed:        {HTTPStatus: 500, Label: "Tool process could not be spawned", Retryable: true},
	ReasonTimeout:            {HTTPStatus: 503, Label: "Tool probe timed out", Retryable: true},
	ReasonCrash:              {HTTPStatus: 500, Label: "Tool crashed during probe", Retryable: true},
	ReasonUnknown:            {HTTPStatus: 500, Label: "Tool is unavailable for an unknown reason", Retryable: false},
}

// Info returns the wire metadata for a reason, defaulting to unknown.
func (r UnavailabilityReason) Info() ReasonInfo {
	if info, ok := reasonTable[r]; ok {
		return info
	}
	return reasonTable[ReasonUnknown]
}

// Label returns the stable human-readable label for a reason.
func (r UnavailabilityReason) Label() string {
	return r.Info().Label
}

// Capabilities describes what a detected agent CLI can do.
type Capabilities struct {
	Streaming     bool `json:"streaming"`
	ToolUse       bool `json:"toolUse"`
	Vision        bool `json:"vision"`
	CodeExecution bool `json:"codeExecution"`
	FileAccess    bool `json:"fileAccess"`
}

// CLIDefinition describes how to probe one CLI.
type CLIDefinition struct {
	// Name is the executable basename looked up on PATH.
	Name string

	// Commands are arguments always passed before the version flag
	// (for subcommand-style CLIs, e.g. ["bin", "tool"]).
	Commands []string

	// VersionFlag is appended to Commands for the version probe.
	VersionFlag string

	// AuthCheckCmd, when set, verifies authentication. Its first element is
	// remapped to the resolved executable path before running.
	AuthCheckCmd []string

	// MinVersion, when set, marks older detections version_unsupported.
	MinVersion string

	// Capabilities advertises what the CLI supports when available.
	Capabilities Capabilities
}

// DetectedCLI is the result of probing one CLI.
type DetectedCLI struct {
	Name                 string               `json:"name"`
	Available            bool                 `json:"available"`
	Path                 string               `json:"path,omitempty"`
	Version              string               `json:"version,omitempty"`
	Authenticated        *bool                `json:"authenticated,omitempty"`
	AuthError            string               `json:"authError,omitempty"`
	UnavailabilityReason UnavailabilityReason `json:"unavailabilityReason,omitempty"`
	Capabilities         Capabilities         `json:"capabilities"`
	DetectedAt           time.Time            `json:"detectedAt"`
	DurationMs           int64                `json:"durationMs"`
}

// Snapshot is the aggregate detection result across all configured CLIs.
type Snapshot struct {
	Agents  []DetectedCLI   `json:"agents"`
	Tools   []DetectedCLI   `json:"tools"`
	Summary SnapshotSummary `json:"summary"`
}

// SnapshotSummary counts detection outcomes.
type SnapshotSummary struct {
	Total       int       `json:"total"`
	Available   int       `json:"available"`
	Unavailable int       `json:"unavailable"`
	CapturedAt  time.Time `json:"capturedAt"`
}
