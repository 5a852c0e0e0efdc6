package envelope

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"privcal/internal/crypto"
	"privcal/internal/domain"
)

// RSVP statuses accepted by NewRSVP.
const (
	StatusAccepted  = "accepted"
	StatusDeclined  = "declined"
	StatusTentative = "tentative"
)

// ErrInvalidRSVP is returned for a bad coordinate or status.
var ErrInvalidRSVP = errors.New("invalid rsvp")

var now = time.Now

// CreateRumor completes partial into a Rumor authored by signer. CreatedAt
// defaults to now and nil tags become an empty list. Any ID or PubKey on
// partial is replaced.
func CreateRumor(ctx context.Context, partial domain.Rumor, signer domain.Signer) (domain.Rumor, error) {
	pub, err := signer.PublicKey(ctx)
	if err != nil {
		return domain.Rumor{}, fmt.Errorf("rumor author: %w", err)
	}
	r := partial
	r.PubKey = pub
	if r.CreatedAt == 0 {
		r.CreatedAt = now().Unix()
	}
	if r.Tags == nil {
		r.Tags = domain.Tags{}
	} else {
		r.Tags = r.Tags.Clone()
	}
	r.ID = r.ComputeID()
	return r, nil
}

// NewRSVP returns a partial kind 31925 rumor answering the calendar event
// at coordinate ("<kind>:<pubkey>:<d>"). The event author is p-tagged so
// the reply is delivered to them.
func NewRSVP(coordinate, status string) (domain.Rumor, error) {
	if !slices.Contains([]string{StatusAccepted, StatusDeclined, StatusTentative}, status) {
		return domain.Rumor{}, fmt.Errorf("%w: status %q", ErrInvalidRSVP, status)
	}
	parts := strings.SplitN(coordinate, ":", 3)
	if len(parts) != 3 || parts[2] == "" {
		return domain.Rumor{}, fmt.Errorf("%w: coordinate %q", ErrInvalidRSVP, coordinate)
	}
	var kind int
	if _, err := fmt.Sscanf(parts[0], "%d", &kind); err != nil ||
		(kind != domain.KindDateEvent && kind != domain.KindTimeEvent) {
		return domain.Rumor{}, fmt.Errorf("%w: coordinate kind %q", ErrInvalidRSVP, parts[0])
	}
	if !crypto.ValidPublicKey(parts[1]) {
		return domain.Rumor{}, fmt.Errorf("%w: coordinate pubkey", ErrInvalidRSVP)
	}
	return domain.Rumor{
		Kind: domain.KindCalendarRSVP,
		Tags: domain.Tags{
			{"d", uuid.NewString()},
			{"a", coordinate},
			{"status", status},
			{"p", parts[1]},
		},
	}, nil
}
