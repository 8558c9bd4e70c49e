// Package normalizer pulls the caller's name and reason for calling out of
// free-form speech. Extraction is best-effort: a miss yields empty fields.
package normalizer

import (
	"regexp"
	"strings"

	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Signals are the facts found in one utterance
type Signals struct {
	Name    string
	Purpose string
}

// Patch converts the signals into a Context patch that sets only what was found
func (s Signals) Patch() domain.Context {
	return domain.Context{CallerName: s.Name, Purpose: s.Purpose}
}

// Empty reports whether nothing was extracted
func (s Signals) Empty() bool {
	return s.Name == "" && s.Purpose == ""
}

const namePart = `([A-Za-z]+(?:\s+[A-Za-z]+)?)`

var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:hi|hello|hey),?\s*(?:this is|it's|i'm|my name is)\s+` + namePart),
		regexp.MustCompile(`(?i)(?:this is|it's|i'm)\s+` + namePart + `\s+(?:calling|here|from)`),
		regexp.MustCompile(`(?i)` + namePart + `\s+(?:here|calling|speaking)\b`),
	}

	purposePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:calling|call)\s+(?:about|regarding|for)\s+(.+?)(?:\.|$)`),
		regexp.MustCompile(`(?i)(?:wanted to|want to|need to)\s+(?:talk|speak|discuss|ask)\s+(?:about|regarding)?\s*(.+?)(?:\.|$)`),
		regexp.MustCompile(`(?i)(?:following up|checking)\s+(?:on|about)\s+(.+?)(?:\.|$)`),
		regexp.MustCompile(`(?i)(?:question|inquiry)\s+(?:about|regarding)\s+(.+?)(?:\.|$)`),
	}

	// words that the name patterns may swallow but are never part of a name
	nameFiller = map[string]bool{
		"calling": true, "about": true, "here": true, "from": true, "speaking": true,
	}

	// words that can precede "here"/"calling" without being a name
	nonNames = map[string]bool{
		"i": true, "i'm": true, "im": true, "is": true, "it": true, "it's": true, "this": true,
		"just": true, "am": true, "was": true, "the": true, "a": true, "an": true, "and": true,
		"been": true, "be": true, "me": true, "you": true, "we": true, "they": true, "he": true,
		"she": true, "who": true, "why": true, "because": true, "back": true, "again": true,
		"hi": true, "hello": true, "hey": true, "yes": true, "no": true, "not": true, "also": true,
		"over": true, "out": true, "up": true, "get": true, "got": true, "m": true, "s": true,
		"my": true, "your": true, "our": true, "their": true, "so": true, "now": true, "still": true,
	}

	titleCaser = cases.Title(language.English)
)

// Extract returns the caller name and purpose found in utterance
func Extract(utterance string) Signals {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return Signals{}
	}
	return Signals{
		Name:    extractName(text),
		Purpose: extractPurpose(text),
	}
}

func extractName(text string) string {
	for _, re := range namePatterns {
		match := re.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		if name := cleanName(match[1]); name != "" {
			return name
		}
	}
	return ""
}

func cleanName(raw string) string {
	words := strings.Fields(raw)
	for len(words) > 0 && nameFiller[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	if len(words) == 0 {
		return ""
	}
	for _, w := range words {
		if nonNames[strings.ToLower(w)] {
			return ""
		}
	}
	return titleCaser.String(strings.ToLower(strings.Join(words, " ")))
}

func extractPurpose(text string) string {
	for _, re := range purposePatterns {
		match := re.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		purpose := strings.TrimSpace(strings.TrimRight(match[1], "?!,; "))
		if purpose != "" {
			return purpose
		}
	}
	return ""
}
