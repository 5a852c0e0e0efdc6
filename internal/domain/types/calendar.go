package types

// SourcePrivate marks events that arrived inside a gift wrap.
const SourcePrivate = "private"

// CalendarKinds is the set of rumor kinds the ingest pipeline accepts.
var CalendarKinds = map[int]bool{
	KindDateEvent:    true,
	KindTimeEvent:    true,
	KindCalendar:     true,
	KindCalendarRSVP: true,
}

// IsCalendarKind reports whether kind is a recognised calendar kind.
func IsCalendarKind(kind int) bool { return CalendarKinds[kind] }

// CalendarEvent is a validated, decrypted calendar rumor handed to
// downstream consumers. Emission order is not meaningful; sort by CreatedAt.
type CalendarEvent struct {
	ID        string `json:"id"`
	Kind      int    `json:"kind"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Source    string `json:"source"`
}

// NewCalendarEvent converts a private rumor.
func NewCalendarEvent(r Rumor) CalendarEvent {
	return CalendarEvent{
		ID:        r.ID,
		Kind:      r.Kind,
		PubKey:    r.PubKey,
		CreatedAt: r.CreatedAt,
		Tags:      r.Tags.Clone(),
		Content:   r.Content,
		Source:    SourcePrivate,
	}
}
