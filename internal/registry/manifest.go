// Package registry loads and caches the ACFS tool manifest: the YAML catalog
// of agent and setup CLIs the gateway coordinates. When the manifest cannot
// be loaded a compiled-in fallback registry of critical tools substitutes, so
// readiness queries degrade instead of failing.
package registry

import (
	"fmt"
	"strings"
	"time"
)

// ToolCategory separates agent CLIs from setup/infra tools.
type ToolCategory string

const (
	CategoryAgent ToolCategory = "agent"
	CategoryTool  ToolCategory = "tool"
)

// InstallSpec describes one way to install a tool.
type InstallSpec struct {
	Command      string   `yaml:"command" json:"command"`
	Args         []string `yaml:"args,omitempty" json:"args,omitempty"`
	URL          string   `yaml:"url,omitempty" json:"url,omitempty"`
	RequiresSudo bool     `yaml:"requiresSudo,omitempty" json:"requiresSudo,omitempty"`
	Mode         string   `yaml:"mode,omitempty" json:"mode,omitempty"`
}

// VerifiedInstaller is the preferred, checksummed installer invocation.
type VerifiedInstaller struct {
	Runner      string   `yaml:"runner" json:"runner"`
	Args        []string `yaml:"args,omitempty" json:"args,omitempty"`
	FallbackURL string   `yaml:"fallback_url,omitempty" json:"fallback_url,omitempty"`
}

// VerifySpec describes how to confirm a tool works after install.
type VerifySpec struct {
	Command           []string `yaml:"command" json:"command"`
	ExpectedExitCodes []int    `yaml:"expectedExitCodes,omitempty" json:"expectedExitCodes,omitempty"`
	MinVersion        string   `yaml:"minVersion,omitempty" json:"minVersion,omitempty"`
	VersionRegex      string   `yaml:"versionRegex,omitempty" json:"versionRegex,omitempty"`
	TimeoutMs         int      `yaml:"timeoutMs,omitempty" json:"timeoutMs,omitempty"`
}

// InstalledCheck describes a cheap presence probe.
type InstalledCheck struct {
	Command   []string `yaml:"command" json:"command"`
	TimeoutMs int      `yaml:"timeoutMs,omitempty" json:"timeoutMs,omitempty"`
}

// ToolDefinition is one entry of the manifest catalog. Identity is ID
// (globally unique); Name is the executable basename, unique per category.
// Definitions are immutable after load.
type ToolDefinition struct {
	ID               string             `yaml:"id" json:"id"`
	Name             string             `yaml:"name" json:"name"`
	Category         ToolCategory       `yaml:"category" json:"category"`
	DisplayName      string             `yaml:"displayName,omitempty" json:"displayName,omitempty"`
	Description      string             `yaml:"description,omitempty" json:"description,omitempty"`
	Tags             []string           `yaml:"tags,omitempty" json:"tags,omitempty"`
	Optional         *bool              `yaml:"optional,omitempty" json:"optional,omitempty"`
	EnabledByDefault bool               `yaml:"enabledByDefault,omitempty" json:"enabledByDefault,omitempty"`
	Phase            *int               `yaml:"phase,omitempty" json:"phase,omitempty"`
	Depends          []string           `yaml:"depends,omitempty" json:"depends,omitempty"`
	DocsURL          string             `yaml:"docsUrl,omitempty" json:"docsUrl,omitempty"`
	Install          []InstallSpec      `yaml:"install,omitempty" json:"install,omitempty"`
	VerifiedInstall  *VerifiedInstaller `yaml:"verifiedInstaller,omitempty" json:"verifiedInstaller,omitempty"`
	Verify           *VerifySpec        `yaml:"verify,omitempty" json:"verify,omitempty"`
	InstalledCheck   *InstalledCheck    `yaml:"installedCheck,omitempty" json:"installedCheck,omitempty"`
	Checksums        map[string]string  `yaml:"checksums,omitempty" json:"checksums,omitempty"`
	RobotMode        bool               `yaml:"robotMode,omitempty" json:"robotMode,omitempty"`
	MCP              bool               `yaml:"mcp,omitempty" json:"mcp,omitempty"`
}

// DefaultPhase is the bucket for tools with no explicit phase.
const DefaultPhase = 999

// EffectivePhase returns the tool's phase, or DefaultPhase when unset.
func (t *ToolDefinition) EffectivePhase() int {
	if t.Phase == nil {
		return DefaultPhase
	}
	return *t.Phase
}

// EffectiveDisplayName returns DisplayName, falling back to Name.
func (t *ToolDefinition) EffectiveDisplayName() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.Name
}

// HasTag reports whether the tool carries the given tag (case-insensitive).
func (t *ToolDefinition) HasTag(tag string) bool {
	for _, have := range t.Tags {
		if strings.EqualFold(have, tag) {
			return true
		}
	}
	return false
}

// Manifest is the root of the ACFS manifest document.
type Manifest struct {
	SchemaVersion string           `yaml:"schemaVersion" json:"schemaVersion"`
	Source        string           `yaml:"source,omitempty" json:"source,omitempty"`
	GeneratedAt   string           `yaml:"generatedAt,omitempty" json:"generatedAt,omitempty"`
	Tools         []ToolDefinition `yaml:"tools" json:"tools"`
}

// DefaultSchemaVersion is assumed when the manifest omits schemaVersion.
const DefaultSchemaVersion = "1.0.0"

// ValidationIssue describes one schema problem found during validation.
type ValidationIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v ValidationIssue) String() string {
	return v.Path + ": " + v.Message
}

// Validate checks required fields and identity uniqueness. Unknown YAML
// fields are permitted by construction (yaml.v3 ignores them); this only
// enforces what the schema requires.
func (m *Manifest) Validate() []ValidationIssue {
	var issues []ValidationIssue

	if m.SchemaVersion == "" {
		m.SchemaVersion = DefaultSchemaVersion
	}
	if len(m.Tools) == 0 {
		issues = append(issues, ValidationIssue{Path: "tools", Message: "at least one tool is required"})
	}

	seenIDs := make(map[string]bool, len(m.Tools))
	seenNames := make(map[string]bool, len(m.Tools))
	for i, tool := range m.Tools {
		path := fmt.Sprintf("tools[%d]", i)
		if tool.ID == "" {
			issues = append(issues, ValidationIssue{Path: path + ".id", Message: "id is required"})
			continue
		}
		if seenIDs[tool.ID] {
			issues = append(issues, ValidationIssue{Path: path + ".id", Message: "duplicate id " + tool.ID})
		}
		seenIDs[tool.ID] = true

		if tool.Name == "" {
			issues = append(issues, ValidationIssue{Path: path + ".name", Message: "name is required"})
		} else {
			nameKey := string(tool.Category) + "/" + tool.Name
			if seenNames[nameKey] {
				issues = append(issues, ValidationIssue{Path: path + ".name", Message: "duplicate name " + tool.Name + " in category " + string(tool.Category)})
			}
			seenNames[nameKey] = true
		}

		switch tool.Category {
		case CategoryAgent, CategoryTool:
		default:
			issues = append(issues, ValidationIssue{Path: path + ".category", Message: fmt.Sprintf("category must be %q or %q", CategoryAgent, CategoryTool)})
		}

		for j, spec := range tool.Install {
			if spec.Command == "" {
				issues = append(issues, ValidationIssue{Path: fmt.Sprintf("%s.install[%d].command", path, j), Message: "command is required"})
			}
		}
		if tool.Verify != nil && len(tool.Verify.Command) == 0 {
			issues = append(issues, ValidationIssue{Path: path + ".verify.command", Message: "command is required"})
		}
	}

	return issues
}

// RegistrySource reports where the active registry came from.
type RegistrySource string

const (
	SourceManifest RegistrySource = "manifest"
	SourceFallback RegistrySource = "fallback"
)

// Metadata describes the provenance of the active registry.
type Metadata struct {
	ManifestPath   string         `json:"manifestPath"`
	ManifestHash   string         `json:"manifestHash,omitempty"`
	SchemaVersion  string         `json:"schemaVersion"`
	Source         string         `json:"source,omitempty"`
	GeneratedAt    string         `json:"generatedAt,omitempty"`
	LoadedAt       time.Time      `json:"loadedAt"`
	RegistrySource RegistrySource `json:"registrySource"`
	ErrorCategory  ErrorCategory  `json:"errorCategory,omitempty"`
	UserMessage    string         `json:"userMessage,omitempty"`
	Issues         []string       `json:"issues,omitempty"`
}
