// Package query turns the filter, sort and paging parameters of a
// collection request into a validated Spec, and a Spec into parameterized
// SQL against the wbo table.
package query

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/weavesync/internal/common"
)

// Sort is the requested result order.
type Sort int

const (
	// SortNone leaves the order to the database.
	SortNone Sort = iota
	// SortIndex orders by sortindex, highest first.
	SortIndex
	// SortOldest orders by modified, oldest first.
	SortOldest
	// SortNewest orders by modified, newest first.
	SortNewest
)

// Spec is a validated collection query. Nil fields do not filter.
type Spec struct {
	// IDs restricts results to these ids; a non-nil empty slice matches nothing.
	IDs           []string
	Older         *float64
	Newer         *float64
	IndexAbove    *int64
	IndexBelow    *int64
	ParentID      *string
	PredecessorID *string
	Sort          Sort
	Limit         *int64
	Offset        *int64
	Full          bool
}

// Parse validates the recognized request parameters. Unrecognized
// parameters are ignored. Any malformed number fails the whole request with
// common.ErrMalformedInput.
func Parse(values url.Values) (*Spec, error) {
	s := &Spec{}
	var err error

	if values.Has("ids") {
		s.IDs = splitIDs(values.Get("ids"))
	}
	if s.Older, err = parseFloat(values, "older"); err != nil {
		return nil, err
	}
	if s.Newer, err = parseFloat(values, "newer"); err != nil {
		return nil, err
	}
	if s.IndexAbove, err = parseInt(values, "index_above", false); err != nil {
		return nil, err
	}
	if s.IndexBelow, err = parseInt(values, "index_below", false); err != nil {
		return nil, err
	}
	if s.Limit, err = parseInt(values, "limit", true); err != nil {
		return nil, err
	}
	// limit=0 means no limit.
	if s.Limit != nil && *s.Limit == 0 {
		s.Limit = nil
	}
	if s.Offset, err = parseInt(values, "offset", true); err != nil {
		return nil, err
	}
	if values.Has("parentid") {
		v := values.Get("parentid")
		s.ParentID = &v
	}
	if values.Has("predecessorid") {
		v := values.Get("predecessorid")
		s.PredecessorID = &v
	}

	switch values.Get("sort") {
	case "index":
		s.Sort = SortIndex
	case "oldest":
		s.Sort = SortOldest
	case "newest":
		s.Sort = SortNewest
	}

	s.Full = parseFull(values.Get("full"))

	return s, nil
}

// HasFilter reports whether the query narrows the collection at all.
// Deleting with a spec that has no filter drops the whole collection.
func (s *Spec) HasFilter() bool {
	return s.IDs != nil ||
		s.Older != nil || s.Newer != nil ||
		s.IndexAbove != nil || s.IndexBelow != nil ||
		s.ParentID != nil || s.PredecessorID != nil ||
		s.Limit != nil || s.Offset != nil
}

func splitIDs(v string) []string {
	ids := []string{}
	for _, id := range strings.Split(v, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func parseFloat(values url.Values, name string) (*float64, error) {
	if !values.Has(name) {
		return nil, nil
	}
	raw := values.Get(name)
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %s=%q", common.ErrMalformedInput, name, raw)
	}
	return &v, nil
}

func parseInt(values url.Values, name string, nonNegative bool) (*int64, error) {
	if !values.Has(name) {
		return nil, nil
	}
	raw := values.Get(name)
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || nonNegative && v < 0 {
		return nil, fmt.Errorf("%w: %s=%q", common.ErrMalformedInput, name, raw)
	}
	return &v, nil
}

// parseFull treats any non-empty value except a false literal as true.
func parseFull(v string) bool {
	if v == "" {
		return false
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return true
}
