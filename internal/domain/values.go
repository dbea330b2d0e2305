package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Flag is a boolean that also accepts the 0/1 integers the backend stores.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", "false", "0", `""`, `"0"`, `"false"`:
		*f = false
		return nil
	case "true", "1", `"1"`, `"true"`:
		*f = true
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid flag %s", data)
	}
	*f = n != 0
	return nil
}

// True reports whether the flag is set; a nil flag is false.
func (f *Flag) True() bool {
	return f != nil && bool(*f)
}

// FlagPtr returns a pointer to a set flag, or nil when v is false.
func FlagPtr(v bool) *Flag {
	if !v {
		return nil
	}
	f := Flag(true)
	return &f
}

// Measure is a free-form reading such as a pressure. The backend may echo
// it as a JSON number; the literal text is kept.
type Measure string

func (m *Measure) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*m = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = Measure(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("invalid measure %s", data)
	}
	*m = Measure(data)
	return nil
}

// Set reports whether the backend sent a non-empty value, zero included.
func (m *Measure) Set() bool {
	return m != nil && *m != ""
}

// Present reports whether a meaningful value was recorded. A zero reading
// counts as empty.
func (m *Measure) Present() bool {
	if !m.Set() {
		return false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(string(*m)), 64)
	return err != nil || f != 0
}

func (m *Measure) String() string {
	if m == nil {
		return ""
	}
	return string(*m)
}

// MeasurePtr returns nil for an empty reading.
func MeasurePtr(v string) *Measure {
	if v == "" {
		return nil
	}
	m := Measure(v)
	return &m
}

// StringPtr returns nil for an empty string.
func StringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Deref returns the pointed string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
