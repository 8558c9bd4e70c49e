package schedule

import (
	"regexp"
	"strings"
)

var (
	intentKeywords = regexp.MustCompile(`(?i)\b(schedule|book|set up|setup|arrange|reserve|meeting|appointment|meet)\b`)

	topicPattern = regexp.MustCompile(`(?i)\b(?:meeting|appointment|call|chat)\s+(?:about|regarding|for|to discuss|on)\s+(.+?)(?:\s+(?:with|on|at|for|tomorrow|today|tonight|next|this)\b|[.,!?]|$)`)
	whoPattern   = regexp.MustCompile(`\bwith\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)

	notWho = map[string]bool{
		"You": true, "Me": true, "Him": true, "Her": true, "Them": true, "Us": true,
		"The": true, "A": true, "An": true, "My": true, "Your": true,
	}
)

// MeetingRequest is a scheduling request pulled out of raw speech
type MeetingRequest struct {
	What string
	Who  string
	When string
}

// Args returns the request as schedule_meeting arguments, omitting empty fields
func (r MeetingRequest) Args() map[string]any {
	args := map[string]any{}
	if r.What != "" {
		args["what"] = r.What
	}
	if r.Who != "" {
		args["who"] = r.Who
	}
	if r.When != "" {
		args["when"] = r.When
	}
	return args
}

// DetectIntent reports whether utterance asks for a meeting at a specific
// time: it needs both a scheduling word and a date or time.
func DetectIntent(utterance string) bool {
	return intentKeywords.MatchString(utterance) && HasTimeExpression(utterance)
}

// ExtractMeeting pulls what, who and when out of a scheduling request.
// Fields that are not found are left empty.
func ExtractMeeting(utterance string) (MeetingRequest, bool) {
	if !DetectIntent(utterance) {
		return MeetingRequest{}, false
	}

	req := MeetingRequest{When: FindWhen(utterance)}
	if m := topicPattern.FindStringSubmatch(utterance); m != nil {
		req.What = strings.TrimSpace(m[1])
	}
	if m := whoPattern.FindStringSubmatch(utterance); m != nil {
		words := strings.Fields(m[1])
		if len(words) == 2 && isDayWord(words[1]) {
			words = words[:1]
		}
		if !notWho[words[0]] && !isDayWord(words[0]) {
			req.Who = strings.Join(words, " ")
		}
	}
	return req, true
}

func isDayWord(w string) bool {
	_, ok := weekdays[strings.ToLower(w)]
	return ok
}
