package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON is a string-keyed document stored as a text column
type JSON map[string]interface{}

// Value implements driver.Valuer. A nil map is stored as an empty object.
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (j *JSON) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*j = make(JSON)
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSON", value)
	}

	if len(raw) == 0 {
		*j = make(JSON)
		return nil
	}

	decoded := make(JSON)
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*j = decoded
	return nil
}

// Clone returns a shallow copy that is never nil
func (j JSON) Clone() JSON {
	out := make(JSON, len(j))
	for k, v := range j {
		out[k] = v
	}
	return out
}
