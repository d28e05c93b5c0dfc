package contexthealth

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractKeyPointsSelectsSalientLines(t *testing.T) {
	text := strings.Join([]string{
		"Some framing chatter before the list.",
		"- first actionable point from the list",
		"* second actionable point in star form",
		"3. third point in numbered form",
		"TODO: wire the retry budget into the collector",
		"Decision: keep the fallback registry compiled in",
		"short",
		strings.Repeat("x", 250),
	}, "\n")

	points := ExtractKeyPoints(text)
	assert.Equal(t, []string{
		"first actionable point from the list",
		"second actionable point in star form",
		"third point in numbered form",
		"TODO: wire the retry budget into the collector",
		"Decision: keep the fallback registry compiled in",
	}, points)
}

func TestExtractKeyPointsDeduplicates(t *testing.T) {
	text := "- repeated point worth keeping\n- repeated point worth keeping\n* repeated point worth keeping"
	points := ExtractKeyPoints(text)
	assert.Equal(t, []string{"repeated point worth keeping"}, points)
}

func TestExtractKeyPointsCap(t *testing.T) {
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, fmt.Sprintf("- distinct point number %d for capping", i))
	}
	points := ExtractKeyPoints(strings.Join(lines, "\n"))
	assert.Len(t, points, 10)
}

func TestExtractKeyPointsLengthBounds(t *testing.T) {
	text := "- tiny\n- " + strings.Repeat("y", 250) + "\n- exactly long enough entry"
	points := ExtractKeyPoints(text)
	assert.Equal(t, []string{"exactly long enough entry"}, points)
}

func TestSummarizeFormat(t *testing.T) {
	messages := []Message{
		{Role: "user", Content: "- Decision: adopt the ring buffer for backlogs"},
		{Role: "assistant", Content: "IMPORTANT: keep drop stats wire-stable"},
	}

	summary := Summarize(messages)
	require.NotEmpty(t, summary)
	assert.True(t, strings.HasPrefix(summary, "Key points from previous conversation:\n- "))
	assert.Contains(t, summary, "Decision: adopt the ring buffer for backlogs")
	assert.Contains(t, summary, "IMPORTANT: keep drop stats wire-stable")
}

func TestSummarizeEmptyWhenNothingSalient(t *testing.T) {
	messages := []Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there, how can I help"},
	}
	assert.Equal(t, "", Summarize(messages))
}
