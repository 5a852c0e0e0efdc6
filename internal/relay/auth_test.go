package relay

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuthSession_HappyPath(t *testing.T) {
	a := newAuthSession("wss://relay.example")
	require.Equal(t, AuthUnauthenticated, a.State())

	require.True(t, a.challengeReceived("c1"))
	require.Equal(t, AuthChallengeReceived, a.State())

	gen, ok := a.begin("c1")
	require.True(t, ok)
	require.Equal(t, AuthAuthenticating, a.State())

	require.True(t, a.succeed(gen, time.Minute))
	require.Equal(t, AuthAuthenticated, a.State())
	require.False(t, a.ValidUntil().IsZero())
	require.NoError(t, a.wait(context.Background()))
}

func TestAuthSession_NeverSignsTwice(t *testing.T) {
	a := newAuthSession("wss://relay.example")
	require.True(t, a.challengeReceived("c1"))
	require.False(t, a.challengeReceived("c1"), "pending challenge repeated")

	gen, ok := a.begin("c1")
	require.True(t, ok)
	_, ok = a.begin("c1")
	require.False(t, ok)
	require.True(t, a.succeed(gen, time.Minute))

	require.False(t, a.challengeReceived("c1"))
	a.invalidate()
	require.False(t, a.challengeReceived("c1"), "signed challenge after invalidation")
	require.True(t, a.challengeReceived("c2"))
}

func TestAuthSession_SupersededOutcomeIgnored(t *testing.T) {
	a := newAuthSession("wss://relay.example")
	require.True(t, a.challengeReceived("c1"))
	gen1, ok := a.begin("c1")
	require.True(t, ok)

	require.True(t, a.challengeReceived("c2"))
	require.False(t, a.succeed(gen1, time.Minute))
	require.Equal(t, AuthChallengeReceived, a.State())

	gen2, ok := a.begin("c2")
	require.True(t, ok)
	a.invalidate()
	require.False(t, a.succeed(gen2, time.Minute))
	require.Equal(t, AuthInvalidated, a.State())
}

func TestAuthSession_FailureWakesWaiters(t *testing.T) {
	a := newAuthSession("wss://relay.example")
	require.True(t, a.challengeReceived("c1"))
	gen, _ := a.begin("c1")

	done := make(chan error, 1)
	go func() { done <- a.wait(context.Background()) }()

	a.fail(gen, &AuthError{Relay: "wss://relay.example", Reason: "invalid: nope"})
	select {
	case err := <-done:
		ae, ok := AsAuthError(err)
		require.True(t, ok)
		require.Equal(t, "invalid: nope", ae.Reason)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken")
	}
	require.Equal(t, AuthInvalidated, a.State())
}

func TestAuthSession_Expires(t *testing.T) {
	a := newAuthSession("wss://relay.example")
	clock := time.Unix(1700000000, 0)
	a.now = func() time.Time { return clock }

	require.True(t, a.challengeReceived("c1"))
	gen, _ := a.begin("c1")
	require.True(t, a.succeed(gen, time.Minute))
	require.Equal(t, AuthAuthenticated, a.State())

	clock = clock.Add(2 * time.Minute)
	require.Equal(t, AuthInvalidated, a.State())
}

func TestAuthSession_WaitHonoursContext(t *testing.T) {
	a := newAuthSession("wss://relay.example")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := a.wait(ctx)
	ae, ok := AsAuthError(err)
	require.True(t, ok)
	require.ErrorIs(t, ae, context.DeadlineExceeded)
}

func TestAuthSession_SignedChallengesAreBounded(t *testing.T) {
	a := newAuthSession("wss://relay.example")
	for i := range maxSignedChallenges * 3 {
		c := fmt.Sprintf("c%d", i)
		require.True(t, a.challengeReceived(c))
		gen, ok := a.begin(c)
		require.True(t, ok)
		a.fail(gen, &AuthError{Relay: "wss://relay.example", Reason: "invalid: nope"})
		a.invalidate()
	}
	require.Equal(t, maxSignedChallenges, a.signed.Len())

	last := fmt.Sprintf("c%d", maxSignedChallenges*3-1)
	require.False(t, a.challengeReceived(last), "recent challenge signed twice")
}
