// Package codec renders record lists in the output formats a client can
// ask for through Accept: a JSON array, newline-separated JSON, or
// length-prefixed JSON frames.
package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/munnerz/goautoneg"
)

// Format is an output encoding.
type Format int

const (
	JSON Format = iota
	Newlines
	Whoisi
)

const ContentTypeJSON = "application/json"

// Encoding is the result of negotiation: the format and the Content-Type to
// answer with.
type Encoding struct {
	Format      Format
	ContentType string
}

// Negotiate picks the encoding from an Accept header. Only the most
// preferred media type counts: a "/newlines" or "/whoisi" subtype selects
// that format and is echoed as the content type; anything else is JSON.
func Negotiate(accept string) Encoding {
	prefs := goautoneg.ParseAccept(accept)
	if len(prefs) == 0 {
		return Encoding{Format: JSON, ContentType: ContentTypeJSON}
	}

	best := prefs[0]
	ct := best.Type + "/" + best.SubType
	switch best.SubType {
	case "newlines":
		return Encoding{Format: Newlines, ContentType: ct}
	case "whoisi":
		return Encoding{Format: Whoisi, ContentType: ct}
	default:
		return Encoding{Format: JSON, ContentType: ContentTypeJSON}
	}
}

// Encode renders values in format f.
func Encode[T any](f Format, values []T) ([]byte, error) {
	switch f {
	case Newlines:
		return encodeNewlines(values)
	case Whoisi:
		return encodeWhoisi(values)
	default:
		if values == nil {
			values = []T{}
		}
		return json.Marshal(values)
	}
}

// encodeNewlines writes one JSON value per line. json.Marshal escapes
// newlines inside strings, so a value never spans lines.
func encodeNewlines[T any](values []T) ([]byte, error) {
	var buf bytes.Buffer
	for i, v := range values {
		js, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(js)
	}
	return buf.Bytes(), nil
}

// encodeWhoisi writes each value as a 4-byte big-endian length followed by
// that many bytes of JSON.
func encodeWhoisi[T any](values []T) ([]byte, error) {
	var buf bytes.Buffer
	for i, v := range values {
		js, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
		if uint64(len(js)) > math.MaxUint32 {
			return nil, fmt.Errorf("encode record %d: frame too large", i)
		}
		var size [4]byte
		binary.BigEndian.PutUint32(size[:], uint32(len(js)))
		buf.Write(size[:])
		buf.Write(js)
	}
	return buf.Bytes(), nil
}
