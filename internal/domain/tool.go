package domain

// ToolKind names an action the reasoning engine may request.
type ToolKind string

const (
	ToolSearchContacts  ToolKind = "search_contacts"
	ToolSearchEmails    ToolKind = "search_emails"
	ToolCheckCalendar   ToolKind = "check_calendar"
	ToolScheduleMeeting ToolKind = "schedule_meeting"
	ToolEndCall         ToolKind = "end_call"
)

// AllToolKinds is the fixed allow-list of action kinds, in dispatch order.
var AllToolKinds = []ToolKind{
	ToolSearchContacts,
	ToolSearchEmails,
	ToolCheckCalendar,
	ToolScheduleMeeting,
	ToolEndCall,
}

// ToolRequest is a single action requested for the current turn.
type ToolRequest struct {
	Kind ToolKind
	Args map[string]any
}

// StringArg returns the named argument if it is a string.
func (r ToolRequest) StringArg(name string) string {
	if r.Args == nil {
		return ""
	}
	if v, ok := r.Args[name].(string); ok {
		return v
	}
	return ""
}
