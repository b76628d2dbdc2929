// Package timex provides time helpers shared by config and services.
package timex

import (
	"encoding/json"
	"errors"
	"math"
	"time"
)

// Duration wraps time.Duration so it can be read from JSON either as a
// string ("5s", "1m30s") or as integer nanoseconds.
type Duration struct {
	time.Duration
}

// MarshalJSON writes the duration in its string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "5s" style strings and plain numbers.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return errors.New("invalid duration")
	}
}

// Timestamp converts t to Weave server time: seconds rounded to two decimals.
func Timestamp(t time.Time) float64 {
	return math.Round(float64(t.UnixNano())/1e7) / 100
}
