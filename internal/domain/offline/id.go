package offline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TempIDPrefix marks identifiers generated on the client while awaiting server assignment
const TempIDPrefix = "temp_"

// ID identifies a record within an entity. Server identifiers are usually numeric
// but UUID strings are accepted too. Temporary identifiers have the form temp_<unix-ms>.
type ID string

// NewTempID creates a temporary identifier from the given time
func NewTempID(t time.Time) ID {
	return ID(TempIDPrefix + strconv.FormatInt(t.UnixMilli(), 10))
}

// IntID creates an identifier from a numeric server id
func IntID(n int64) ID {
	return ID(strconv.FormatInt(n, 10))
}

// IsTemp reports whether the identifier was generated locally
func (id ID) IsTemp() bool {
	return strings.HasPrefix(string(id), TempIDPrefix)
}

// IsZero reports whether the identifier is empty
func (id ID) IsZero() bool {
	return id == ""
}

// String implements fmt.Stringer
func (id ID) String() string {
	return string(id)
}

// numeric returns the integer value when the identifier is a canonical integer
func (id ID) numeric() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil || strconv.FormatInt(n, 10) != string(id) {
		return 0, false
	}
	return n, true
}

// MarshalJSON writes numeric ids as JSON numbers so the server sees its own id format
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	if n, ok := id.numeric(); ok {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts numbers, strings and null
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Record is implemented by every cached entity type.
// WithRecordID returns a copy of the record carrying the given identifier.
type Record[T any] interface {
	RecordID() ID
	WithRecordID(id ID) T
}
