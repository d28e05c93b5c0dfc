package contexthealth

import (
	"regexp"
	"strings"
)

// keyLinePattern selects lines worth carrying into a summary: list items
// and lines flagged with decision keywords.
var keyLinePattern = regexp.MustCompile(`^\s*([-*]|\d+\.)\s+`)

var keywordPattern = regexp.MustCompile(`TODO:|IMPORTANT:|Decision:|Conclusion:`)

const (
	minKeyLineLen = 10
	maxKeyLineLen = 200
	maxKeyPoints  = 10
)

// ExtractKeyPoints pulls the salient lines out of a block of conversation
// text: bullet or numbered list items and keyword-flagged lines between 10
// and 200 characters, de-duplicated and capped at 10.
func ExtractKeyPoints(text string) []string {
	var points []string
	seen := map[string]bool{}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < minKeyLineLen || len(trimmed) > maxKeyLineLen {
			continue
		}
		if !keyLinePattern.MatchString(line) && !keywordPattern.MatchString(trimmed) {
			continue
		}

		normalized := strings.TrimSpace(keyLinePattern.ReplaceAllString(trimmed, ""))
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		points = append(points, normalized)
		if len(points) >= maxKeyPoints {
			break
		}
	}
	return points
}

// Summarize produces the extractive summary of a group of messages.
// Returns "" when nothing salient is found.
func Summarize(messages []Message) string {
	var combined strings.Builder
	for _, m := range messages {
		combined.WriteString(m.Content)
		combined.WriteString("\n")
	}

	points := ExtractKeyPoints(combined.String())
	if len(points) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Key points from previous conversation:")
	for _, p := range points {
		b.WriteString("\n- ")
		b.WriteString(p)
	}
	return b.String()
}
