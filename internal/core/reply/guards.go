package reply

import "strings"

// IsFarewell reports whether a short utterance is the caller saying goodbye.
// Longer utterances that merely contain a farewell phrase go through the
// normal turn.
func IsFarewell(utterance string, phrases []string, maxLength int) bool {
	if len(utterance) >= maxLength {
		return false
	}
	lower := strings.ToLower(utterance)
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// IsRepeat reports whether reply matches any of the recent replies, ignoring
// case and surrounding whitespace
func IsRepeat(reply string, recent []string) bool {
	normalized := strings.TrimSpace(reply)
	if normalized == "" {
		return false
	}
	for _, prev := range recent {
		if strings.EqualFold(normalized, strings.TrimSpace(prev)) {
			return true
		}
	}
	return false
}

// ContainsGreeting reports whether reply opens the conversation again
func ContainsGreeting(reply string, phrases []string) bool {
	lower := strings.ToLower(reply)
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
