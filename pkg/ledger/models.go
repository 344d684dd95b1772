package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Outcome values of a ledger event.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// JSONStringSlice is a custom GORM type for []string stored as JSON.
type JSONStringSlice []string

// Scan implements the sql.Scanner interface for JSONStringSlice.
func (s *JSONStringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONStringSlice: %T", value)
	}
	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface for JSONStringSlice.
func (s JSONStringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// PolicyRecord is the current state of one provisioned policy.
type PolicyRecord struct {
	Name          string          `gorm:"primaryKey;column:name;type:varchar(255)" json:"name"`
	Category      string          `gorm:"column:category;index:idx_policy_owner,priority:1;not null" json:"category"`
	Feed          string          `gorm:"column:feed;index:idx_policy_owner,priority:2;not null" json:"feed"`
	Kind          string          `gorm:"column:kind" json:"kind,omitempty"`
	Groups        JSONStringSlice `gorm:"column:group_names;type:text" json:"groups"`
	Objects       JSONStringSlice `gorm:"column:object_names;type:text" json:"objects"`
	LastOutcome   string          `gorm:"column:last_outcome" json:"lastOutcome,omitempty"`
	LastErrorKind string          `gorm:"column:last_error_kind" json:"lastErrorKind,omitempty"`
	LastError     string          `gorm:"column:last_error;type:text" json:"lastError,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt     time.Time       `gorm:"column:updated_at" json:"updatedAt"`
}

func (PolicyRecord) TableName() string { return "authz_policies" }

// EventRecord is one reconcile attempt. Events are never updated.
type EventRecord struct {
	ID         string          `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	PolicyName string          `gorm:"column:policy_name;index;not null" json:"policyName"`
	Category   string          `gorm:"column:category;not null" json:"category"`
	Feed       string          `gorm:"column:feed;not null" json:"feed"`
	Kind       string          `gorm:"column:kind;not null" json:"kind"`
	Action     string          `gorm:"column:action;not null" json:"action"`
	Outcome    string          `gorm:"column:outcome;index;not null" json:"outcome"`
	ErrorKind  string          `gorm:"column:error_kind" json:"errorKind,omitempty"`
	Reason     string          `gorm:"column:reason;type:text" json:"reason,omitempty"`
	Actor      string          `gorm:"column:actor" json:"actor"`
	Groups     JSONStringSlice `gorm:"column:group_names;type:text" json:"groups"`
	Objects    JSONStringSlice `gorm:"column:object_names;type:text" json:"objects"`
	CreatedAt  time.Time       `gorm:"column:created_at;index" json:"createdAt"`
}

func (EventRecord) TableName() string { return "authz_events" }
