package relay

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxSignedChallenges bounds the per-relay memory of answered challenges.
const maxSignedChallenges = 64

// AuthState is the NIP-42 state of one relay.
type AuthState int

const (
	// AuthUnauthenticated means no challenge has been seen on the connection.
	AuthUnauthenticated AuthState = iota
	// AuthChallengeReceived means a challenge is waiting to be signed.
	AuthChallengeReceived
	// AuthAuthenticating means an AUTH event is being signed or awaits its OK.
	AuthAuthenticating
	// AuthAuthenticated means the relay accepted our AUTH and it has not lapsed.
	AuthAuthenticated
	// AuthInvalidated means authentication failed, lapsed or was dropped.
	AuthInvalidated
)

func (s AuthState) String() string {
	switch s {
	case AuthUnauthenticated:
		return "unauthenticated"
	case AuthChallengeReceived:
		return "challenge_received"
	case AuthAuthenticating:
		return "authenticating"
	case AuthAuthenticated:
		return "authenticated"
	case AuthInvalidated:
		return "invalidated"
	}
	return "unknown"
}

// AuthSession tracks authentication with one relay across reconnects.
// Every transition bumps a generation; an exchange that finishes after a
// newer challenge or an invalidation is ignored.
type AuthSession struct {
	relayURL string
	now      func() time.Time

	// inflight admits one signing exchange at a time.
	inflight chan struct{}

	mu         sync.Mutex
	state      AuthState
	challenge  string
	signed     *lru.Cache[string, struct{}]
	gen        uint64
	validUntil time.Time
	lastErr    *AuthError
	changed    chan struct{}
}

// mustSignedSet returns the bounded record of signed challenges. The oldest
// are forgotten first; relays issue a fresh challenge per connection.
func mustSignedSet() *lru.Cache[string, struct{}] {
	c, err := lru.New[string, struct{}](maxSignedChallenges)
	if err != nil {
		panic(err)
	}
	return c
}

func newAuthSession(relayURL string) *AuthSession {
	return &AuthSession{
		relayURL: relayURL,
		now:      time.Now,
		inflight: make(chan struct{}, 1),
		signed:   mustSignedSet(),
		changed:  make(chan struct{}),
	}
}

// RelayURL returns the relay this session belongs to.
func (a *AuthSession) RelayURL() string { return a.relayURL }

// State returns the current state. An authenticated session past its
// validity reports invalidated.
func (a *AuthSession) State() AuthState {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expireLocked()
	return a.state
}

// ValidUntil returns when the current authentication lapses, or the zero
// time when not authenticated.
func (a *AuthSession) ValidUntil() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.validUntil
}

// challengeReceived records a new challenge. It reports false when the
// challenge was already signed or is the one being signed now.
func (a *AuthSession) challengeReceived(challenge string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if challenge == "" || a.signed.Contains(challenge) {
		return false
	}
	if a.challenge == challenge && a.state == AuthChallengeReceived {
		return false
	}
	a.challenge = challenge
	a.lastErr = nil
	a.transitionLocked(AuthChallengeReceived)
	return true
}

// begin moves challengeReceived -> authenticating for challenge, marking it
// signed. It returns the generation the outcome must match.
func (a *AuthSession) begin(challenge string) (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != AuthChallengeReceived || a.challenge != challenge || a.signed.Contains(challenge) {
		return 0, false
	}
	a.signed.Add(challenge, struct{}{})
	a.transitionLocked(AuthAuthenticating)
	return a.gen, true
}

// succeed records an accepted AUTH for generation gen.
func (a *AuthSession) succeed(gen uint64, validity time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen || a.state != AuthAuthenticating {
		return false
	}
	a.validUntil = a.now().Add(validity)
	a.transitionLocked(AuthAuthenticated)
	return true
}

// fail records a rejected or failed AUTH for generation gen.
func (a *AuthSession) fail(gen uint64, err *AuthError) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return false
	}
	a.lastErr = err
	a.validUntil = time.Time{}
	a.transitionLocked(AuthInvalidated)
	return true
}

// invalidate drops any established or pending authentication.
func (a *AuthSession) invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validUntil = time.Time{}
	a.lastErr = nil
	a.transitionLocked(AuthInvalidated)
}

// reset returns to unauthenticated after a clean close of our own. An
// invalidated session stays invalidated.
func (a *AuthSession) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == AuthInvalidated {
		return
	}
	a.validUntil = time.Time{}
	a.lastErr = nil
	a.transitionLocked(AuthUnauthenticated)
}

// wait blocks until the session is authenticated, the last exchange failed,
// or ctx ends.
func (a *AuthSession) wait(ctx context.Context) error {
	for {
		a.mu.Lock()
		a.expireLocked()
		if a.state == AuthAuthenticated {
			a.mu.Unlock()
			return nil
		}
		if a.state == AuthInvalidated && a.lastErr != nil {
			err := a.lastErr
			a.mu.Unlock()
			return err
		}
		ch := a.changed
		a.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return &AuthError{Relay: a.relayURL, Err: ctx.Err()}
		}
	}
}

func (a *AuthSession) expireLocked() {
	if a.state == AuthAuthenticated && !a.validUntil.IsZero() && a.now().After(a.validUntil) {
		a.validUntil = time.Time{}
		a.transitionLocked(AuthInvalidated)
	}
}

func (a *AuthSession) transitionLocked(s AuthState) {
	a.state = s
	a.gen++
	close(a.changed)
	a.changed = make(chan struct{})
}
