package types

import "fmt"

// Purpose selects which relay preference list applies.
type Purpose string

const (
	// PurposeGeneral is the NIP-65 list used for ordinary routing.
	PurposeGeneral Purpose = "general"
	// PurposePrivate is the list used to deliver private envelopes.
	PurposePrivate Purpose = "private"
)

// String returns the string form of the purpose.
func (p Purpose) String() string { return string(p) }

// Kind returns the list event kind for the purpose.
func (p Purpose) Kind() int {
	if p == PurposePrivate {
		return KindPrivateRelays
	}
	return KindRelayList
}

// ParsePurpose accepts "general" or "private".
func ParsePurpose(s string) (Purpose, error) {
	switch Purpose(s) {
	case PurposeGeneral, PurposePrivate:
		return Purpose(s), nil
	}
	return "", fmt.Errorf("unknown relay purpose %q", s)
}

// RelayPreference is one entry of a pubkey's relay list.
type RelayPreference struct {
	URL   string `json:"url"`
	Read  bool   `json:"read"`
	Write bool   `json:"write"`
}

// MessageType is the label of a relay-to-client message surfaced by a
// subscription.
type MessageType string

const (
	MessageEvent  MessageType = "EVENT"
	MessageEOSE   MessageType = "EOSE"
	MessageClosed MessageType = "CLOSED"
)

// RelayMessage is one item of a subscription stream.
type RelayMessage struct {
	Relay  string
	Type   MessageType
	Event  Event
	Reason string
}

// PublishResult records the outcome of sending one event to a set of relays.
type PublishResult struct {
	EventID  string
	Accepted []string
	Failed   map[string]error
}

// OK reports whether at least one relay accepted the event.
func (r PublishResult) OK() bool { return len(r.Accepted) > 0 }
