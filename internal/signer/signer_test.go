package signer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"privcal/internal/crypto"
	"privcal/internal/domain"
	"privcal/internal/protocol/nip44"
	"privcal/internal/signer"
)

func TestLocal_SignAndVerify(t *testing.T) {
	ctx := context.Background()
	s, err := signer.Generate()
	require.NoError(t, err)

	pub, err := s.PublicKey(ctx)
	require.NoError(t, err)
	require.True(t, crypto.ValidPublicKey(pub))

	ev := domain.Event{Kind: 1, CreatedAt: 1700000000, Content: "hi"}
	require.NoError(t, s.SignEvent(ctx, &ev))
	require.Equal(t, pub, ev.PubKey)
	require.True(t, crypto.VerifyEvent(ev))
}

func TestLocal_EncryptDecryptBetweenPeers(t *testing.T) {
	ctx := context.Background()
	alice, err := signer.Generate()
	require.NoError(t, err)
	bob, err := signer.Generate()
	require.NoError(t, err)
	alicePub, _ := alice.PublicKey(ctx)
	bobPub, _ := bob.PublicKey(ctx)

	ct, err := alice.Encrypt(ctx, bobPub, "dinner at 8")
	require.NoError(t, err)
	pt, err := bob.Decrypt(ctx, alicePub, ct)
	require.NoError(t, err)
	require.Equal(t, "dinner at 8", pt)

	eve, err := signer.Generate()
	require.NoError(t, err)
	_, err = eve.Decrypt(ctx, alicePub, ct)
	require.ErrorIs(t, err, nip44.ErrInvalidMAC)
}

func TestLocal_CloseWipesKey(t *testing.T) {
	ctx := context.Background()
	s, err := signer.Generate()
	require.NoError(t, err)
	s.Close()

	_, err = s.PublicKey(ctx)
	require.ErrorIs(t, err, signer.ErrClosed)
	ev := domain.Event{Kind: 1}
	require.ErrorIs(t, s.SignEvent(ctx, &ev), signer.ErrClosed)
}

func TestWithoutCipher_HidesCapability(t *testing.T) {
	s, err := signer.Generate()
	require.NoError(t, err)

	var wrapped domain.Signer = signer.WithoutCipher(s)
	_, ok := wrapped.(domain.Cipher)
	require.False(t, ok)

	pub, err := wrapped.PublicKey(context.Background())
	require.NoError(t, err)
	want, _ := s.PublicKey(context.Background())
	require.Equal(t, want, pub)
}

func TestNewThrottled_PreservesCapability(t *testing.T) {
	s, err := signer.Generate()
	require.NoError(t, err)

	_, ok := signer.NewThrottled(s, 100, 1).(domain.Cipher)
	require.True(t, ok)
	_, ok = signer.NewThrottled(signer.WithoutCipher(s), 100, 1).(domain.Cipher)
	require.False(t, ok)
}

func TestThrottled_HonoursContext(t *testing.T) {
	s, err := signer.Generate()
	require.NoError(t, err)
	th := signer.NewThrottled(s, 0.001, 1)

	ev := domain.Event{Kind: 1}
	require.NoError(t, th.SignEvent(context.Background(), &ev))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ev2 := domain.Event{Kind: 1}
	require.Error(t, th.SignEvent(ctx, &ev2))
}
