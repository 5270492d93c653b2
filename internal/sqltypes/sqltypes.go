package sqltypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// TimeScanner reads a timestamp column into Value as UTC. go-sqlite3 only
// converts text to time.Time for columns declared as a date type, which
// doesn't include expressions or views, so the text forms are parsed here
// with the same layouts the driver uses.
type TimeScanner struct {
	Value *time.Time
}

func (t *TimeScanner) Scan(src interface{}) error {
	switch src := src.(type) {
	case nil:
		*t.Value = time.Time{}
	case time.Time:
		*t.Value = src.UTC()
	case int64:
		*t.Value = time.Unix(src, 0).UTC()
	case []byte:
		return t.Scan(string(src))
	case string:
		s := strings.TrimSuffix(src, "Z")
		for _, layout := range sqlite3.SQLiteTimestampFormats {
			if v, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				*t.Value = v.UTC()
				return nil
			}
		}

		return fmt.Errorf("sqltypes.TimeScanner: unrecognised timestamp %q", src)
	default:
		return fmt.Errorf("sqltypes.TimeScanner: can't scan %T", src)
	}

	return nil
}

// JSONStringSlice is stored as a JSON array in a text column so that
// sqlite's json functions can see into it.
type JSONStringSlice []string

func (s JSONStringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}

	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, fmt.Errorf("sqltypes.JSONStringSlice.Value: %w", err)
	}

	return string(b), nil
}

func (s *JSONStringSlice) Scan(src interface{}) error {
	var b []byte

	switch src := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		b = src
	case string:
		b = []byte(src)
	default:
		return fmt.Errorf("sqltypes.JSONStringSlice.Scan: can't scan %T", src)
	}

	if err := json.Unmarshal(b, s); err != nil {
		return fmt.Errorf("sqltypes.JSONStringSlice.Scan: %w", err)
	}

	return nil
}
