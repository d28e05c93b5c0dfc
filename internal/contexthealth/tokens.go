package contexthealth

import (
	"math"
	"regexp"
	"strings"
)

// codeSignals are the shapes that mark content as source code. Three or
// more matching signals switch the estimate to the denser code rate.
var codeSignals = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*import\b`),
	regexp.MustCompile(`(?m)^\s*export\b`),
	regexp.MustCompile(`(?m)^\s*function\b`),
	regexp.MustCompile(`(?m)^\s*class\b`),
	regexp.MustCompile(`(?m)^\s*(const|let|var)\b`),
	regexp.MustCompile(`(?m)//`),
	regexp.MustCompile(`/\*`),
	regexp.MustCompile(`[{}\[\];]`),
	regexp.MustCompile(`=>`),
}

var (
	jsonShape = regexp.MustCompile(`(?s)^\s*[{\[].*[}\]]\s*$`)
	xmlShape  = regexp.MustCompile(`(?s)^\s*<.*>\s*$`)
)

func looksLikeCode(content string) bool {
	matches := 0
	for _, re := range codeSignals {
		if re.MatchString(content) {
			matches++
			if matches >= 3 {
				return true
			}
		}
	}
	return false
}

func looksStructured(content string) bool {
	return jsonShape.MatchString(content) || xmlShape.MatchString(content)
}

func whitespaceRatio(content string) float64 {
	if len(content) == 0 {
		return 0
	}
	ws := 0
	for _, r := range content {
		switch r {
		case ' ', '\t', '\n', '\r':
			ws++
		}
	}
	return float64(ws) / float64(len(content))
}

// CountTokens estimates the token cost of content. The base rate is four
// characters per token; code and structured data tokenize denser, and
// heavy whitespace adds overhead. The estimate is always rounded up.
func CountTokens(content string) int {
	if content == "" {
		return 0
	}

	estimate := float64(len(content)) / 4

	if looksLikeCode(content) {
		estimate /= 0.85
	}
	if looksStructured(content) {
		estimate /= 0.75
	}
	if ratio := whitespaceRatio(content); ratio > 0.2 {
		estimate *= 1 + 0.5*(ratio-0.2)
	}

	return int(math.Ceil(estimate))
}

// TruncateToTokens trims text so its estimated token count stays at or
// under max, cutting at a word boundary when one is near and appending
// ellipsis. Text already under budget is returned unchanged.
func TruncateToTokens(text string, max int, ellipsis string) string {
	if max <= 0 {
		return ""
	}
	if CountTokens(text) <= max {
		return text
	}

	// Four chars per token as the budget, reserving room for the ellipsis.
	budget := max*4 - len(ellipsis)
	if budget <= 0 {
		return ellipsis
	}
	if budget > len(text) {
		budget = len(text)
	}
	cut := text[:budget]

	if idx := strings.LastIndexAny(cut, " \t\n"); idx > budget/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " \t\n") + ellipsis
}

// SplitIntoChunks splits text into pieces of at most maxTokens each,
// preferring paragraph breaks, then sentence breaks, then a hard cut.
func SplitIntoChunks(text string, maxTokens int) []string {
	if text == "" {
		return nil
	}
	if CountTokens(text) <= maxTokens {
		return []string{text}
	}

	var chunks []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if CountTokens(para) <= maxTokens {
			chunks = append(chunks, para)
			continue
		}
		chunks = append(chunks, splitSentences(para, maxTokens)...)
	}
	return chunks
}

var sentenceBoundary = regexp.MustCompile(`(?s)(.*?[.!?])(\s+|$)`)

func splitSentences(text string, maxTokens int) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	sentences := sentenceBoundary.FindAllStringSubmatch(text, -1)
	consumed := 0
	for _, m := range sentences {
		consumed += len(m[0])
		appendPiece(&current, m[1], maxTokens, flush, &chunks)
	}
	if rest := strings.TrimSpace(text[consumed:]); rest != "" {
		appendPiece(&current, rest, maxTokens, flush, &chunks)
	}
	flush()
	return chunks
}

func appendPiece(current *strings.Builder, piece string, maxTokens int, flush func(), chunks *[]string) {
	if CountTokens(piece) > maxTokens {
		flush()
		*chunks = append(*chunks, hardSplit(piece, maxTokens)...)
		return
	}
	if current.Len() > 0 && CountTokens(current.String()+" "+piece) > maxTokens {
		flush()
	}
	if current.Len() > 0 {
		current.WriteString(" ")
	}
	current.WriteString(piece)
}

func hardSplit(text string, maxTokens int) []string {
	budget := maxTokens * 4
	if budget < 1 {
		budget = 1
	}
	var chunks []string
	for len(text) > budget {
		chunks = append(chunks, text[:budget])
		text = text[budget:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
