package types

import (
	"encoding/json"
	"fmt"
)

// Envelope is one of Rumor, Seal or GiftWrap. The set is closed; callers
// switch on the concrete type after Classify.
type Envelope interface {
	envelope()
	EnvelopeID() string
}

// Rumor is an unsigned event. Its ID is the canonical hash of the other
// fields and never changes once computed.
type Rumor struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
}

func (Rumor) envelope() {}

// EnvelopeID returns the rumor id.
func (r Rumor) EnvelopeID() string { return r.ID }

// ComputeID derives the canonical id from the rumor's fields.
func (r Rumor) ComputeID() string {
	return canonicalID(r.PubKey, r.CreatedAt, r.Kind, r.Tags, r.Content)
}

// VerifyID reports whether ID matches the canonical hash.
func (r Rumor) VerifyID() bool { return r.ID != "" && r.ID == r.ComputeID() }

// Event converts the rumor to an (unsigned) transport event.
func (r Rumor) Event() Event {
	return Event{
		ID:        r.ID,
		PubKey:    r.PubKey,
		CreatedAt: r.CreatedAt,
		Kind:      r.Kind,
		Tags:      r.Tags,
		Content:   r.Content,
	}
}

// MarshalJSON encodes nil tags as [].
func (r Rumor) MarshalJSON() ([]byte, error) {
	type alias Rumor
	a := alias(r)
	if a.Tags == nil {
		a.Tags = Tags{}
	}
	return json.Marshal(a)
}

// RumorFromEvent drops the signature of ev.
func RumorFromEvent(ev Event) Rumor {
	return Rumor{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		CreatedAt: ev.CreatedAt,
		Kind:      ev.Kind,
		Tags:      ev.Tags,
		Content:   ev.Content,
	}
}

// Seal is the sender-signed kind 13 wrapper around one encrypted Rumor.
type Seal struct {
	Event
}

func (Seal) envelope() {}

// EnvelopeID returns the seal event id.
func (s Seal) EnvelopeID() string { return s.ID }

// SealFromEvent checks the seal shape: kind 13 and no tags.
func SealFromEvent(ev Event) (Seal, error) {
	if ev.Kind != KindSeal {
		return Seal{}, fmt.Errorf("%w: seal kind %d", ErrEnvelopeMalformed, ev.Kind)
	}
	if len(ev.Tags) != 0 {
		return Seal{}, fmt.Errorf("%w: seal carries %d tags", ErrEnvelopeMalformed, len(ev.Tags))
	}
	if ev.Content == "" {
		return Seal{}, fmt.Errorf("%w: seal has no content", ErrEnvelopeMalformed)
	}
	return Seal{Event: ev}, nil
}

// GiftWrap is the ephemeral-key-signed kind 1059 wrapper around one Seal.
type GiftWrap struct {
	Event
}

func (GiftWrap) envelope() {}

// EnvelopeID returns the gift wrap event id.
func (g GiftWrap) EnvelopeID() string { return g.ID }

// Recipient returns the single p-tagged pubkey.
func (g GiftWrap) Recipient() string {
	if t, ok := g.Tags.First("p"); ok {
		return t.Value()
	}
	return ""
}

// GiftWrapFromEvent checks the outer shape: kind 1059 and a recipient tag.
func GiftWrapFromEvent(ev Event) (GiftWrap, error) {
	if ev.Kind != KindGiftWrap {
		return GiftWrap{}, fmt.Errorf("%w: gift wrap kind %d", ErrEnvelopeMalformed, ev.Kind)
	}
	gw := GiftWrap{Event: ev}
	if gw.Recipient() == "" {
		return GiftWrap{}, fmt.Errorf("%w: gift wrap missing recipient tag", ErrEnvelopeMalformed)
	}
	if ev.Content == "" {
		return GiftWrap{}, fmt.Errorf("%w: gift wrap has no content", ErrEnvelopeMalformed)
	}
	return gw, nil
}

// Classify discriminates a transport event into its envelope variant.
// Anything that is neither a seal nor a gift wrap is treated as a Rumor.
func Classify(ev Event) (Envelope, error) {
	switch ev.Kind {
	case KindSeal:
		return SealFromEvent(ev)
	case KindGiftWrap:
		return GiftWrapFromEvent(ev)
	default:
		return RumorFromEvent(ev), nil
	}
}
