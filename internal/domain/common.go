package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB represents a PostgreSQL JSONB object
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, j)
}

// StringList is a []string stored as a JSONB array
type StringList []string

// Value implements the driver.Valuer interface for StringList
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal([]string(l))
}

// Scan implements the sql.Scanner interface for StringList
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, l)
}

// ExchangeList is a conversation stored as a JSONB array
type ExchangeList []Exchange

// Value implements the driver.Valuer interface for ExchangeList
func (l ExchangeList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]Exchange{})
	}
	return json.Marshal([]Exchange(l))
}

// Scan implements the sql.Scanner interface for ExchangeList
func (l *ExchangeList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, l)
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("cannot scan %T into json column", value)
	}
}

// Telephony terminal statuses reported by the call-status webhook
const (
	TelephonyStatusCompleted = "completed"
	TelephonyStatusFailed    = "failed"
	TelephonyStatusBusy      = "busy"
	TelephonyStatusNoAnswer  = "no-answer"
	TelephonyStatusCanceled  = "canceled"
)

// IsTerminalTelephonyStatus reports whether a call-status value ends the call.
func IsTerminalTelephonyStatus(status string) bool {
	switch status {
	case TelephonyStatusCompleted, TelephonyStatusFailed, TelephonyStatusBusy,
		TelephonyStatusNoAnswer, TelephonyStatusCanceled:
		return true
	}
	return false
}
