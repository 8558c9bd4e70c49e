// Package reply turns raw engine output into a line that is safe to speak:
// it strips leaked reasoning and tool narration and guards against loops and
// repeated greetings.
package reply

import (
	"regexp"
	"strings"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
)

var (
	reasoningBlocks = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<think>.*?</think>`),
		regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
		regexp.MustCompile(`(?is)<reasoning>.*?</reasoning>`),
		regexp.MustCompile(`(?is)<internal>.*?</internal>`),
	}
	openReasoning  = regexp.MustCompile(`(?is)<(?:think|thinking|reasoning|internal)>.*$`)
	strayTags      = regexp.MustCompile(`(?i)</?(?:think|thinking|reasoning|internal)>`)
	bracketed      = regexp.MustCompile(`\[[^\[\]]*\]`)
	doubleParens   = regexp.MustCompile(`(?s)\(\(.*?\)\)`)
	whitespace     = regexp.MustCompile(`\s+`)
	sentenceEnd    = regexp.MustCompile(`[.!?]+(?:\s+|$)`)
	narrationStart = regexp.MustCompile(`(?i)^\s*(?:i'll|i will|i am going to|i'm going to|let me)\b`)
)

// StripReasoning removes think/reasoning blocks, an unterminated trailing
// block, and bracketed asides such as [searching] or ((checking)).
func StripReasoning(text string) string {
	for _, re := range reasoningBlocks {
		text = re.ReplaceAllString(text, " ")
	}
	text = openReasoning.ReplaceAllString(text, " ")
	text = strayTags.ReplaceAllString(text, " ")
	text = doubleParens.ReplaceAllString(text, " ")
	text = bracketed.ReplaceAllString(text, " ")
	return text
}

// IsNarration reports whether a sentence describes the agent's own actions
// rather than speaking to the caller
func IsNarration(s string, verbs, markers []string) bool {
	lower := strings.ToLower(s)
	for _, kind := range domain.AllToolKinds {
		name := string(kind)
		if strings.Contains(lower, name) || strings.Contains(lower, strings.ReplaceAll(name, "_", "")) {
			return true
		}
	}
	for _, marker := range markers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	if !narrationStart.MatchString(s) {
		return false
	}
	for _, verb := range verbs {
		if containsWord(lower, strings.ToLower(verb)) {
			return true
		}
	}
	return false
}

// DropNarration removes narration sentences, line by line
func DropNarration(text string, verbs, markers []string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		var parts []string
		for _, s := range splitSentences(line) {
			if strings.TrimSpace(s) == "" || IsNarration(s, verbs, markers) {
				continue
			}
			parts = append(parts, strings.TrimSpace(s))
		}
		if len(parts) > 0 {
			kept = append(kept, strings.Join(parts, " "))
		}
	}
	return strings.Join(kept, "\n")
}

// splitSentences cuts a line after terminal punctuation that is followed by
// whitespace or the end of the line, so "$12.50" and "john.doe@acme.com"
// stay whole
func splitSentences(line string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(line, -1) {
		out = append(out, line[start:loc[1]])
		start = loc[1]
	}
	if start < len(line) {
		out = append(out, line[start:])
	}
	return out
}

// CollapseWhitespace joins runs of whitespace into single spaces
func CollapseWhitespace(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// Sanitize applies every cleaning step. It returns "" when fewer than
// minLength non-space characters survive.
func Sanitize(text string, verbs, markers []string, minLength int) string {
	text = StripReasoning(text)
	text = DropNarration(text, verbs, markers)
	text = CollapseWhitespace(text)
	if len([]rune(strings.ReplaceAll(text, " ", ""))) < minLength {
		return ""
	}
	return text
}

func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	for idx := 0; ; {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		if (start == 0 || !isLetter(text[start-1])) && (end == len(text) || !isLetter(text[end])) {
			return true
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
