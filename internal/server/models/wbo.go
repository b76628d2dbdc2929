package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/weavesync/internal/common"
)

// WBO is a Weave Basic Object. Optional fields are nil when unset; in a
// write they mean "leave the stored value alone".
type WBO struct {
	ID            string  `json:"id"`
	Modified      float64 `json:"modified"`
	SortIndex     *int64  `json:"sortindex,omitempty"`
	Payload       *string `json:"payload,omitempty"`
	PayloadSize   int64   `json:"-"`
	ParentID      *string `json:"parentid,omitempty"`
	PredecessorID *string `json:"predecessorid,omitempty"`
	TTL           *int64  `json:"ttl,omitempty"`
}

// ErrMissingID is returned by ParseWBO for objects without an id.
var ErrMissingID = fmt.Errorf("%w: missing id", common.ErrInvalidRecord)

// ParseWBO validates one client-supplied object. Server-owned fields
// (modified, payload_size) and unknown keys are ignored. Numeric fields
// accept JSON numbers and numeric strings; sortindex and ttl are floored.
func ParseWBO(raw json.RawMessage) (*WBO, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: not an object", common.ErrInvalidRecord)
	}

	w := &WBO{}

	id, err := optString(obj, "id")
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, ErrMissingID
	}
	w.ID = *id

	if w.Payload, err = optString(obj, "payload"); err != nil {
		return nil, err
	}
	if w.ParentID, err = optString(obj, "parentid"); err != nil {
		return nil, err
	}
	if w.PredecessorID, err = optString(obj, "predecessorid"); err != nil {
		return nil, err
	}
	if w.SortIndex, err = optInt(obj, "sortindex"); err != nil {
		return nil, err
	}
	if w.TTL, err = optInt(obj, "ttl"); err != nil {
		return nil, err
	}
	if w.TTL != nil && *w.TTL < 0 {
		return nil, fmt.Errorf("%w: negative ttl", common.ErrInvalidRecord)
	}

	if w.Payload != nil {
		w.PayloadSize = int64(len(*w.Payload))
	}

	return w, nil
}

// ParseID reads the id of an object if it has a usable one, for reporting
// which record of a batch failed.
func ParseID(raw json.RawMessage) (string, bool) {
	var obj struct {
		ID *string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.ID == nil {
		return "", false
	}
	return *obj.ID, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func optString(obj map[string]json.RawMessage, name string) (*string, error) {
	raw, ok := obj[name]
	if !ok || isNull(raw) {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %s must be a string", common.ErrInvalidRecord, name)
	}

	f, _ := Fields.Lookup(name)
	if name == "id" && s == "" {
		return nil, fmt.Errorf("%w: empty id", common.ErrInvalidRecord)
	}
	if f.MaxLen > 0 && len(s) > f.MaxLen {
		return nil, fmt.Errorf("%w: %s longer than %d bytes", common.ErrInvalidRecord, name, f.MaxLen)
	}
	return &s, nil
}

func optInt(obj map[string]json.RawMessage, name string) (*int64, error) {
	raw, ok := obj[name]
	if !ok || isNull(raw) {
		return nil, nil
	}

	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %s", common.ErrInvalidRecord, name)
		}
		text = strings.TrimSpace(s)
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %s must be numeric", common.ErrInvalidRecord, name)
	}

	f = math.Floor(f)
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("%w: %s out of range", common.ErrInvalidRecord, name)
	}
	v := int64(f)
	return &v, nil
}
