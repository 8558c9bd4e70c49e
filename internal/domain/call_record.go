package domain

import (
	"time"
)

// CallRecord is the durable history entry written once a call ends
type CallRecord struct {
	ID              string       `json:"id" gorm:"column:id;primaryKey"`
	CallSID         string       `json:"call_sid" gorm:"column:call_sid;uniqueIndex"`
	CallerNumber    string       `json:"caller_number" gorm:"column:caller_number;index"`
	IdentifiedName  string       `json:"identified_name" gorm:"column:identified_name"`
	CallPurpose     string       `json:"call_purpose" gorm:"column:call_purpose"`
	Status          string       `json:"status" gorm:"column:status"`
	StartedAt       time.Time    `json:"started_at" gorm:"column:started_at;index"`
	EndedAt         time.Time    `json:"ended_at" gorm:"column:ended_at"`
	DurationSeconds int          `json:"duration_seconds" gorm:"column:duration_seconds"`
	Transcript      StringList   `json:"transcript" gorm:"column:transcript;type:jsonb"`
	Conversation    ExchangeList `json:"conversation" gorm:"column:conversation;type:jsonb"`
	Summary         string       `json:"summary" gorm:"column:summary"`
	Decision        Decision     `json:"decision" gorm:"column:decision;index"`
	DecisionLabel   string       `json:"decision_label" gorm:"column:decision_label"`
	Reasoning       string       `json:"reasoning" gorm:"column:reasoning"`
	ActionTaken     string       `json:"action_taken" gorm:"column:action_taken"`
	Company         string       `json:"company,omitempty" gorm:"column:company"`
	ArchiveURL      string       `json:"archive_url,omitempty" gorm:"column:archive_url"`
	CreatedAt       time.Time    `json:"created_at" gorm:"column:created_at"`
}

func (CallRecord) TableName() string {
	return "call_records"
}

// NewCallRecord builds the history entry for a finished session.
func NewCallRecord(session *CallSession, outcome CallOutcome, status string, durationSeconds int, endedAt time.Time) *CallRecord {
	if durationSeconds <= 0 {
		durationSeconds = int(endedAt.Sub(session.StartedAt).Seconds())
	}
	return &CallRecord{
		CallSID:         session.CallID,
		CallerNumber:    session.CallerAddress,
		IdentifiedName:  session.Context.CallerName,
		CallPurpose:     session.Context.Purpose,
		Status:          status,
		StartedAt:       session.StartedAt,
		EndedAt:         endedAt,
		DurationSeconds: durationSeconds,
		Transcript:      StringList(append([]string{}, session.TranscriptHistory...)),
		Conversation:    ExchangeList(append([]Exchange{}, session.ConversationHistory...)),
		Summary:         outcome.Summary,
		Decision:        outcome.Decision,
		DecisionLabel:   outcome.DecisionLabel,
		Reasoning:       outcome.Reasoning,
		ActionTaken:     outcome.ActionTaken,
		Company:         session.Context.FirstCompany(),
	}
}

// ContactRecord is a stored contact used for caller lookup
type ContactRecord struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	Name      string    `json:"name" gorm:"column:name;index"`
	Email     string    `json:"email" gorm:"column:email"`
	Phone     string    `json:"phone" gorm:"column:phone;index"`
	Company   string    `json:"company" gorm:"column:company"`
	Notes     string    `json:"notes" gorm:"column:notes"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (ContactRecord) TableName() string {
	return "contacts"
}

// ToContact converts the record into the shape stored in call context
func (c *ContactRecord) ToContact() Contact {
	return Contact{Name: c.Name, Email: c.Email, Company: c.Company}
}

// BusinessConfig describes who the receptionist works for
type BusinessConfig struct {
	ID                 string    `json:"id" gorm:"column:id;primaryKey"`
	CEOName            string    `json:"ceo_name" gorm:"column:ceo_name"`
	CompanyName        string    `json:"company_name" gorm:"column:company_name"`
	CompanyDescription string    `json:"company_description" gorm:"column:company_description"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (BusinessConfig) TableName() string {
	return "business_configs"
}

// CalendarToken holds the OAuth token of the connected calendar
type CalendarToken struct {
	UserID       string    `json:"user_id" gorm:"column:user_id;primaryKey"`
	AccessToken  string    `json:"-" gorm:"column:access_token"`
	RefreshToken string    `json:"-" gorm:"column:refresh_token"`
	TokenType    string    `json:"token_type" gorm:"column:token_type"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"column:expires_at"`
	CalendarID   string    `json:"calendar_id" gorm:"column:calendar_id"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (CalendarToken) TableName() string {
	return "calendar_tokens"
}
