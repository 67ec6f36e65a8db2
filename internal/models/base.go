package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BaseModel contains common fields for all models
type BaseModel struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewID generates a new UUID
func NewID() uuid.UUID {
	return uuid.New()
}

// ValidateID checks if an ID is valid
func ValidateID(id string) (uuid.UUID, error) {
	return uuid.Parse(id)
}

// ErrorResponse represents a general error response
type ErrorResponse struct {
	Error            string            `json:"error"`
	Details          string            `json:"details,omitempty"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
}

// ValidationError represents a field validation error
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// JSONB represents a JSON object field (a task's kwargs) that can be
// scanned from the database and marshaled to JSON.
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface for database scanning
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return fmt.Errorf("cannot unmarshal JSON into JSONB: %w", err)
	}

	*j = JSONB(result)
	return nil
}

// Value implements the driver.Valuer interface for database storage
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return json.Marshal(map[string]interface{}{})
	}
	return json.Marshal(map[string]interface{}(j))
}

// MarshalJSON implements the json.Marshaler interface
func (j JSONB) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(j))
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (j *JSONB) UnmarshalJSON(data []byte) error {
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return err
	}
	*j = JSONB(result)
	return nil
}

// JSONArray represents an ordered JSON array field (a task's positional args).
type JSONArray []interface{}

// Scan implements the sql.Scanner interface for database scanning
func (j *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*j = make([]interface{}, 0)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONArray", value)
	}

	var result []interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return fmt.Errorf("cannot unmarshal JSON into JSONArray: %w", err)
	}

	*j = JSONArray(result)
	return nil
}

// Value implements the driver.Valuer interface for database storage
func (j JSONArray) Value() (driver.Value, error) {
	if j == nil {
		return json.Marshal([]interface{}{})
	}
	return json.Marshal([]interface{}(j))
}

// MarshalJSON implements the json.Marshaler interface
func (j JSONArray) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]interface{}(j))
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (j *JSONArray) UnmarshalJSON(data []byte) error {
	var result []interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return err
	}
	*j = JSONArray(result)
	return nil
}

// RawJSON carries an arbitrary JSON value (a task's result) through the
// database and the wire without assuming it is an object or an array.
type RawJSON struct {
	Valid bool
	Raw   json.RawMessage
}

// Scan implements the sql.Scanner interface for database scanning
func (r *RawJSON) Scan(value interface{}) error {
	if value == nil {
		r.Valid = false
		r.Raw = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into RawJSON", value)
	}

	r.Raw = append(json.RawMessage(nil), bytes...)
	r.Valid = true
	return nil
}

// Value implements the driver.Valuer interface for database storage
func (r RawJSON) Value() (driver.Value, error) {
	if !r.Valid || r.Raw == nil {
		return nil, nil
	}
	return []byte(r.Raw), nil
}

// MarshalJSON implements the json.Marshaler interface
func (r RawJSON) MarshalJSON() ([]byte, error) {
	if !r.Valid || r.Raw == nil {
		return []byte("null"), nil
	}
	return r.Raw, nil
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (r *RawJSON) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		r.Valid = false
		r.Raw = nil
		return nil
	}
	r.Raw = append(json.RawMessage(nil), data...)
	r.Valid = true
	return nil
}

// NewRawJSON wraps a Go value as a RawJSON task result.
func NewRawJSON(v interface{}) (RawJSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return RawJSON{}, err
	}
	return RawJSON{Valid: true, Raw: data}, nil
}
