package stage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is how change dates are stored in custom fields.
const DateLayout = "2006-01-02 15:04:05"

var dateLayouts = []string{DateLayout, time.RFC3339, "2006-01-02"}

// FormatDate renders t at day granularity in the stored layout.
func FormatDate(t time.Time) string {
	return Today(t).Format(DateLayout)
}

// ParseDate reads a stored change date and returns midnight of its calendar
// day in loc. A value carrying its own offset keeps the day it names.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// DecodeInt reads an integer custom field value stored as a JSON number or a
// numeric string. Whole floats such as 2.0 are accepted; values outside the
// int range are not.
func DecodeInt(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(strings.TrimSpace(s))
	}

	if n, err := strconv.Atoi(string(raw)); err == nil {
		return n, nil
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || f != math.Trunc(f) || f < minIntFloat || f >= maxIntFloat {
		return 0, fmt.Errorf("not an integer: %s", raw)
	}
	return int(f), nil
}

// Bounds of int as float64; maxIntFloat itself is one past math.MaxInt.
const (
	minIntFloat = float64(math.MinInt)
	maxIntFloat = -float64(math.MinInt)
)

// DecodeDate reads a change date stored as a JSON string.
func DecodeDate(raw json.RawMessage, loc *time.Location) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("not a date string: %s", raw)
	}
	return ParseDate(s, loc)
}

// EncodeInt renders an integer custom field value.
func EncodeInt(v int) json.RawMessage {
	return json.RawMessage(strconv.Itoa(v))
}

// EncodeDate renders a change date custom field value.
func EncodeDate(t time.Time) json.RawMessage {
	return json.RawMessage(strconv.Quote(FormatDate(t)))
}
