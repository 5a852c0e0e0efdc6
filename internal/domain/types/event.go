package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// Kind numbers used on the wire.
const (
	KindSeal            = 13
	KindGiftWrap        = 1059
	KindRelayList       = 10002
	KindPrivateRelays   = 10050
	KindClientAuth      = 22242
	KindRemoteSigning   = 24133
	KindDateEvent       = 31922
	KindTimeEvent       = 31923
	KindCalendar        = 31924
	KindCalendarRSVP    = 31925
	replaceableKindLow  = 10000
	replaceableKindHigh = 20000
)

// Tag is a single event tag, e.g. ["p", "<hex pubkey>"].
type Tag []string

// Key returns the tag name or "" for an empty tag.
func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the first tag value or "".
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Tags is an ordered tag list.
type Tags []Tag

// Values returns every first value of tags named key, in order.
func (ts Tags) Values(key string) []string {
	var out []string
	for _, t := range ts {
		if t.Key() == key && len(t) > 1 {
			out = append(out, t[1])
		}
	}
	return out
}

// First returns the first tag named key.
func (ts Tags) First(key string) (Tag, bool) {
	for _, t := range ts {
		if t.Key() == key {
			return t, true
		}
	}
	return nil, false
}

// Clone deep-copies the tag list so callers can mutate it freely.
func (ts Tags) Clone() Tags {
	out := make(Tags, len(ts))
	for i, t := range ts {
		out[i] = append(Tag(nil), t...)
	}
	return out
}

// Event is a signed NIP-01 transport event.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// IsReplaceable reports whether relays keep only the newest event per (pubkey, kind).
func (e Event) IsReplaceable() bool {
	return e.Kind >= replaceableKindLow && e.Kind < replaceableKindHigh
}

// ComputeID returns the hex sha256 of the canonical serialization.
func (e Event) ComputeID() string {
	return canonicalID(e.PubKey, e.CreatedAt, e.Kind, e.Tags, e.Content)
}

// canonicalID hashes [0,pubkey,created_at,kind,tags,content] in the NIP-01
// serialization: no whitespace, and only the seven escapes NIP-01 names.
func canonicalID(pubkey string, createdAt int64, kind int, tags Tags, content string) string {
	buf := make([]byte, 0, 128+len(content))
	buf = append(buf, "[0,"...)
	buf = appendString(buf, pubkey)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, createdAt, 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, int64(kind), 10)
	buf = append(buf, ",["...)
	for i, t := range tags {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '[')
		for j, v := range t {
			if j > 0 {
				buf = append(buf, ',')
			}
			buf = appendString(buf, v)
		}
		buf = append(buf, ']')
	}
	buf = append(buf, "],"...)
	buf = appendString(buf, content)
	buf = append(buf, ']')
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// appendString quotes s the NIP-01 way. Every other byte, including other
// control characters and U+2028/U+2029, is written verbatim.
func appendString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			buf = append(buf, '\\', '"')
		case '\\':
			buf = append(buf, '\\', '\\')
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\t':
			buf = append(buf, '\\', 't')
		case '\b':
			buf = append(buf, '\\', 'b')
		case '\f':
			buf = append(buf, '\\', 'f')
		default:
			buf = append(buf, c)
		}
	}
	return append(buf, '"')
}

// MarshalJSON encodes nil tags as [] since relays reject "tags": null.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	a := alias(e)
	if a.Tags == nil {
		a.Tags = Tags{}
	}
	return json.Marshal(a)
}
