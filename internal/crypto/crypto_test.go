package crypto_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"privcal/internal/crypto"
	"privcal/internal/domain"
)

func TestSignAndVerifyEvent(t *testing.T) {
	sk, pub, err := crypto.GenerateSecretKey()
	require.NoError(t, err)
	require.Equal(t, pub, crypto.PublicKeyHex(sk))

	ev := domain.Event{
		CreatedAt: 1700000000,
		Kind:      1,
		Content:   "<hello & goodbye>",
	}
	require.NoError(t, crypto.SignEvent(sk, &ev))
	require.Equal(t, pub, ev.PubKey)
	require.Len(t, ev.ID, 64)
	require.Len(t, ev.Sig, 128)
	require.True(t, crypto.VerifyEvent(ev))

	tampered := ev
	tampered.Content = "changed"
	require.False(t, crypto.VerifyEvent(tampered), "content change must break the id")

	tampered = ev
	tampered.ID = tampered.ComputeID()
	tampered.Tags = domain.Tags{{"p", pub}}
	require.False(t, crypto.VerifyEvent(tampered))
}

func TestVerifyEvent_WrongKey(t *testing.T) {
	sk, _, err := crypto.GenerateSecretKey()
	require.NoError(t, err)
	_, otherPub, err := crypto.GenerateSecretKey()
	require.NoError(t, err)

	ev := domain.Event{CreatedAt: 1, Kind: 1, Content: "x"}
	require.NoError(t, crypto.SignEvent(sk, &ev))
	ev.PubKey = otherPub
	ev.ID = ev.ComputeID()
	require.False(t, crypto.VerifyEvent(ev))
}

func TestParseKeys(t *testing.T) {
	sk, pub, err := crypto.GenerateSecretKey()
	require.NoError(t, err)

	_, err = crypto.ParsePublicKey(pub)
	require.NoError(t, err)
	require.True(t, crypto.ValidPublicKey(pub))
	require.False(t, crypto.ValidPublicKey("abc"))

	_, err = crypto.ParseSecretKey("zz")
	require.ErrorIs(t, err, crypto.ErrInvalidKey)

	var hexKey []byte
	for _, b := range sk {
		hexKey = append(hexKey, "0123456789abcdef"[b>>4], "0123456789abcdef"[b&0x0f])
	}
	parsed, err := crypto.ParseSecretKey(string(hexKey))
	require.NoError(t, err)
	require.Equal(t, sk, parsed)
}

func TestRandomPastTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	seen := map[int64]bool{}
	for i := 0; i < 64; i++ {
		ts, err := crypto.RandomPastTimestamp(now)
		require.NoError(t, err)
		require.LessOrEqual(t, ts, now.Unix())
		require.Greater(t, ts, now.Add(-crypto.MaxTimestampSkew).Unix())
		seen[ts] = true
	}
	require.Greater(t, len(seen), 1, "timestamps should not repeat")
}

func TestFingerprint(t *testing.T) {
	_, pub, err := crypto.GenerateSecretKey()
	require.NoError(t, err)
	fp := crypto.Fingerprint(pub)
	require.Len(t, fp.String(), 20)
	require.Equal(t, fp, crypto.Fingerprint(pub))
}
