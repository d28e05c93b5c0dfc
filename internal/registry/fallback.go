package registry

// FallbackRegistry returns the compiled-in minimal tool catalog used when
// the manifest cannot be loaded. It covers the critical workflow tools plus
// the agents and helpers the fleet expects, so readiness checks keep
// producing actionable output while the manifest is broken or absent.
func FallbackRegistry() *Manifest {
	intp := func(v int) *int { return &v }
	boolp := func(v bool) *bool { return &v }

	return &Manifest{
		SchemaVersion: DefaultSchemaVersion,
		Source:        "builtin-fallback",
		Tools: []ToolDefinition{
			{
				ID:               "agents.claude",
				Name:             "claude",
				Category:         CategoryAgent,
				DisplayName:      "Claude Code",
				Description:      "Agent CLI for AI-assisted development",
				Tags:             []string{"recommended"},
				Optional:         boolp(true),
				EnabledByDefault: true,
				Phase:            intp(2),
				DocsURL:          "https://docs.anthropic.com/claude-code",
				Verify:           &VerifySpec{Command: []string{"claude", "--version"}},
			},
			{
				ID:          "tools.dcg",
				Name:        "dcg",
				Category:    CategoryTool,
				DisplayName: "DCG",
				Description: "Destructive command guard",
				Tags:        []string{"critical"},
				Phase:       intp(1),
				Install:     []InstallSpec{{Command: "cargo", Args: []string{"install", "dcg"}}},
				Verify:      &VerifySpec{Command: []string{"dcg", "--version"}},
			},
			{
				ID:               "tools.slb",
				Name:             "slb",
				Category:         CategoryTool,
				DisplayName:      "SLB",
				Description:      "Simultaneous launch button for risky commands",
				Tags:             []string{"recommended"},
				Optional:         boolp(true),
				EnabledByDefault: true,
				Phase:            intp(1),
				Install:          []InstallSpec{{Command: "cargo", Args: []string{"install", "slb"}}},
				Verify:           &VerifySpec{Command: []string{"slb", "--version"}},
			},
			{
				ID:               "tools.ubs",
				Name:             "ubs",
				Category:         CategoryTool,
				DisplayName:      "UBS",
				Description:      "Unified bug scanner",
				Tags:             []string{"recommended"},
				Optional:         boolp(true),
				EnabledByDefault: true,
				Phase:            intp(1),
				Install:          []InstallSpec{{Command: "cargo", Args: []string{"install", "ubs"}}},
				Verify:           &VerifySpec{Command: []string{"ubs", "--version"}},
			},
			{
				ID:          "tools.br",
				Name:        "br",
				Category:    CategoryTool,
				DisplayName: "Beads",
				Description: "Issue tracker CLI (sync side)",
				Tags:        []string{"critical"},
				Phase:       intp(1),
				Install:     []InstallSpec{{Command: "cargo", Args: []string{"install", "beads"}}},
				Verify:      &VerifySpec{Command: []string{"br", "--version"}},
			},
			{
				ID:               "tools.bv",
				Name:             "bv",
				Category:         CategoryTool,
				DisplayName:      "Beads Viewer",
				Description:      "Issue tracker CLI (triage side)",
				Optional:         boolp(true),
				EnabledByDefault: false,
				Phase:            intp(1),
				Install:          []InstallSpec{{Command: "cargo", Args: []string{"install", "beads-viewer"}}},
				Verify:           &VerifySpec{Command: []string{"bv", "--version"}},
			},
		},
	}
}
