package domain

import "sort"

// Contact is a known person returned by contact lookup.
type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
}

// EmailMatch is an email returned by semantic search. Content is truncated.
type EmailMatch struct {
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Content string `json:"content,omitempty"`
}

// MeetingDetails describes a meeting booked during the call.
type MeetingDetails struct {
	What string `json:"what"`
	Who  string `json:"who"`
	When string `json:"when"`
	Link string `json:"link,omitempty"`
}

// Context is the accumulated fact set of a single call.
//
// A zero field means "unknown". Slices distinguish nil (unknown) from empty
// (looked up, nothing found); pointer fields distinguish unset from false.
// Context values are only ever combined through Merge.
type Context struct {
	CallerName string `json:"caller_name,omitempty"`
	Purpose    string `json:"purpose,omitempty"`

	Contacts      []Contact `json:"contacts,omitempty"`
	ContactsError string    `json:"contacts_error,omitempty"`

	Emails      []EmailMatch `json:"emails,omitempty"`
	EmailsError string       `json:"emails_error,omitempty"`

	CalendarDate      string   `json:"calendar_date,omitempty"`
	CalendarBusy      []string `json:"calendar_busy,omitempty"`
	CalendarAvailable *bool    `json:"calendar_available,omitempty"`
	CalendarError     string   `json:"calendar_error,omitempty"`

	MeetingScheduled *bool           `json:"meeting_scheduled,omitempty"`
	MeetingDetails   *MeetingDetails `json:"meeting_details,omitempty"`
	MeetingError     string          `json:"meeting_error,omitempty"`

	EndCallMessage string `json:"end_call_message,omitempty"`
	Greeted        *bool  `json:"greeted,omitempty"`
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// Merge returns c with every field set in patch overwriting the same field.
// Fields unset in patch keep their current value, so a known fact is never
// dropped unless it is explicitly replaced.
func (c Context) Merge(patch Context) Context {
	out := c.Clone()

	if patch.CallerName != "" {
		out.CallerName = patch.CallerName
	}
	if patch.Purpose != "" {
		out.Purpose = patch.Purpose
	}
	if patch.Contacts != nil {
		out.Contacts = append([]Contact{}, patch.Contacts...)
	}
	if patch.ContactsError != "" {
		out.ContactsError = patch.ContactsError
	}
	if patch.Emails != nil {
		out.Emails = append([]EmailMatch{}, patch.Emails...)
	}
	if patch.EmailsError != "" {
		out.EmailsError = patch.EmailsError
	}
	if patch.CalendarDate != "" {
		out.CalendarDate = patch.CalendarDate
	}
	if patch.CalendarBusy != nil {
		out.CalendarBusy = append([]string{}, patch.CalendarBusy...)
	}
	if patch.CalendarAvailable != nil {
		out.CalendarAvailable = Bool(*patch.CalendarAvailable)
	}
	if patch.CalendarError != "" {
		out.CalendarError = patch.CalendarError
	}
	if patch.MeetingScheduled != nil {
		out.MeetingScheduled = Bool(*patch.MeetingScheduled)
	}
	if patch.MeetingDetails != nil {
		details := *patch.MeetingDetails
		out.MeetingDetails = &details
	}
	if patch.MeetingError != "" {
		out.MeetingError = patch.MeetingError
	}
	if patch.EndCallMessage != "" {
		out.EndCallMessage = patch.EndCallMessage
	}
	if patch.Greeted != nil {
		out.Greeted = Bool(*patch.Greeted)
	}
	return out
}

// Clone returns a copy of c that shares no slices or pointers with it.
func (c Context) Clone() Context {
	out := c
	if c.Contacts != nil {
		out.Contacts = append([]Contact{}, c.Contacts...)
	}
	if c.Emails != nil {
		out.Emails = append([]EmailMatch{}, c.Emails...)
	}
	if c.CalendarBusy != nil {
		out.CalendarBusy = append([]string{}, c.CalendarBusy...)
	}
	if c.CalendarAvailable != nil {
		out.CalendarAvailable = Bool(*c.CalendarAvailable)
	}
	if c.MeetingScheduled != nil {
		out.MeetingScheduled = Bool(*c.MeetingScheduled)
	}
	if c.MeetingDetails != nil {
		details := *c.MeetingDetails
		out.MeetingDetails = &details
	}
	if c.Greeted != nil {
		out.Greeted = Bool(*c.Greeted)
	}
	return out
}

// IsGreeted reports whether the greeting has already been spoken.
func (c Context) IsGreeted() bool {
	return c.Greeted != nil && *c.Greeted
}

// HasScheduledMeeting reports whether a meeting was booked during the call.
func (c Context) HasScheduledMeeting() bool {
	return c.MeetingScheduled != nil && *c.MeetingScheduled && c.MeetingDetails != nil
}

// FirstCompany returns the company of the first contact that has one.
func (c Context) FirstCompany() string {
	for _, contact := range c.Contacts {
		if contact.Company != "" {
			return contact.Company
		}
	}
	return ""
}

// Keys lists the names of the fields that are set, sorted.
func (c Context) Keys() []string {
	keys := make([]string, 0, 16)
	add := func(set bool, name string) {
		if set {
			keys = append(keys, name)
		}
	}
	add(c.CallerName != "", "callerName")
	add(c.Purpose != "", "purpose")
	add(c.Contacts != nil, "contacts")
	add(c.ContactsError != "", "contactsError")
	add(c.Emails != nil, "emails")
	add(c.EmailsError != "", "emailsError")
	add(c.CalendarDate != "", "calendarDate")
	add(c.CalendarBusy != nil, "calendarBusy")
	add(c.CalendarAvailable != nil, "calendarAvailable")
	add(c.CalendarError != "", "calendarError")
	add(c.MeetingScheduled != nil, "meetingScheduled")
	add(c.MeetingDetails != nil, "meetingDetails")
	add(c.MeetingError != "", "meetingError")
	add(c.EndCallMessage != "", "endCallMessage")
	add(c.Greeted != nil, "greeted")
	sort.Strings(keys)
	return keys
}
