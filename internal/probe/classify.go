package probe

import (
	"regexp"
	"strings"
)

// stderrPattern maps an output signature to a reason. The table is ordered:
// the first match wins, and any stderr match dominates the exit code.
type stderrPattern struct {
	re     *regexp.Regexp
	reason UnavailabilityReason
}

// Patterns are compiled once; classification runs on every probe result.
var stderrPatterns = []stderrPattern{
	{regexp.MustCompile(`(?i)command not found|not recognized`), ReasonNotInstalled},
	{regexp.MustCompile(`(?i)permission denied|EACCES`), ReasonPermissionDenied},
	{regexp.MustCompile(`(?i)not logged in|unauthorized|authentication required|no api key`), ReasonAuthRequired},
	{regexp.MustCompile(`(?i)token expired|session expired`), ReasonAuthExpired},
	{regexp.MustCompile(`(?i)config (file )?not found|missing config`), ReasonConfigMissing},
	{regexp.MustCompile(`(?i)ECONNREFUSED|ENOTFOUND|unreachable`), ReasonMCPUnreachable},
	{regexp.MustCompile(`(?i)segmentation fault|core dumped|out of memory|fatal error`), ReasonCrash},
}

// authErrorPatterns detect authentication failures in combined CLI output.
// The matched phrase is surfaced as the auth error.
var authErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`not logged in`),
	regexp.MustCompile(`not authenticated`),
	regexp.MustCompile(`no api key`),
	regexp.MustCompile(`unauthorized`),
	regexp.MustCompile(`authentication required`),
	regexp.MustCompile(`token expired`),
	regexp.MustCompile(`invalid.*token`),
	regexp.MustCompile(`credentials.*not found`),
}

// versionPattern extracts the first semver-looking token from CLI output.
var versionPattern = regexp.MustCompile(`v?\d+\.\d+(\.\d+)?(-[\w.]+)?`)

// Classify derives an unavailability reason from a failed invocation.
// Stderr signal dominates the exit code; the exit code is consulted only
// when no pattern matches.
func Classify(stderr string, exitCode *int) UnavailabilityReason {
	if stderr != "" {
		for _, p := range stderrPatterns {
			if p.re.MatchString(stderr) {
				return p.reason
			}
		}
	}

	if exitCode != nil {
		switch *exitCode {
		case 126:
			return ReasonPermissionDenied
		case 127:
			return ReasonNotInstalled
		case 139:
			return ReasonCrash
		}
	}

	return ReasonUnknown
}

// DetectAuthError scans combined stdout/stderr for authentication failure
// phrases. Returns the matched phrase and true when one is found.
func DetectAuthError(output string) (string, bool) {
	lowered := strings.ToLower(output)
	for _, re := range authErrorPatterns {
		if match := re.FindString(lowered); match != "" {
			return match, true
		}
	}
	return "", false
}

// ParseVersion extracts a version token from CLI output. Falls back to the
// first 50 characters of trimmed output when no token matches.
func ParseVersion(output string) string {
	if match := versionPattern.FindString(output); match != "" {
		return match
	}
	trimmed := strings.TrimSpace(output)
	if len(trimmed) > 50 {
		trimmed = trimmed[:50]
	}
	return trimmed
}
