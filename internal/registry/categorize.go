package registry

// Requirement classifies how strongly a tool is needed. Exactly one of the
// three levels applies to any definition.
type Requirement string

const (
	RequirementRequired    Requirement = "required"
	RequirementRecommended Requirement = "recommended"
	RequirementOptional    Requirement = "optional"
)

// IsRequired reports whether the tool must be present for readiness.
// A tool is required when tagged critical/required, when it is non-optional
// and enabled by default, or when the optional flag is absent entirely.
func IsRequired(t *ToolDefinition) bool {
	if t.HasTag("critical") || t.HasTag("required") {
		return true
	}
	if t.Optional != nil && !*t.Optional && t.EnabledByDefault {
		return true
	}
	return t.Optional == nil
}

// IsRecommended reports whether the tool is recommended but not required.
func IsRecommended(t *ToolDefinition) bool {
	if IsRequired(t) {
		return false
	}
	if t.HasTag("recommended") {
		return true
	}
	return t.Optional != nil && *t.Optional && t.EnabledByDefault
}

// IsOptional reports whether the tool is neither required nor recommended.
func IsOptional(t *ToolDefinition) bool {
	return !IsRequired(t) && !IsRecommended(t)
}

// Categorize returns the single requirement level for a tool.
func Categorize(t *ToolDefinition) Requirement {
	switch {
	case IsRequired(t):
		return RequirementRequired
	case IsRecommended(t):
		return RequirementRecommended
	default:
		return RequirementOptional
	}
}

// Categorized groups tool definitions by requirement level.
type Categorized struct {
	Required    []ToolDefinition `json:"required"`
	Recommended []ToolDefinition `json:"recommended"`
	Optional    []ToolDefinition `json:"optional"`
}

// CategorizeAll splits the given tools into requirement buckets, preserving
// registry order within each bucket.
func CategorizeAll(tools []ToolDefinition) Categorized {
	var out Categorized
	for _, t := range tools {
		switch Categorize(&t) {
		case RequirementRequired:
			out.Required = append(out.Required, t)
		case RequirementRecommended:
			out.Recommended = append(out.Recommended, t)
		default:
			out.Optional = append(out.Optional, t)
		}
	}
	return out
}
