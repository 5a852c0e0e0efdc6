package signer

import (
	"context"

	"golang.org/x/time/rate"

	"privcal/internal/domain"
)

// PublicOnly exposes only the signing half of a signer.
type PublicOnly struct {
	domain.Signer
}

// WithoutCipher hides the cipher capability of s.
func WithoutCipher(s domain.Signer) PublicOnly { return PublicOnly{Signer: s} }

// Throttled waits on a token bucket before every signing or cipher call to
// the inner signer.
type Throttled struct {
	inner   domain.Signer
	limiter *rate.Limiter
}

// ThrottledCipher is a Throttled signer whose inner signer can encrypt.
type ThrottledCipher struct {
	*Throttled
	cipher domain.Cipher
}

// NewThrottled limits s to perSecond calls with the given burst. The result
// implements domain.Cipher only if s does.
func NewThrottled(s domain.Signer, perSecond float64, burst int) domain.Signer {
	t := &Throttled{inner: s, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
	if c, ok := s.(domain.Cipher); ok {
		return &ThrottledCipher{Throttled: t, cipher: c}
	}
	return t
}

// PublicKey is not throttled; implementations cache it.
func (t *Throttled) PublicKey(ctx context.Context) (string, error) {
	return t.inner.PublicKey(ctx)
}

// SignEvent waits for a token and signs.
func (t *Throttled) SignEvent(ctx context.Context, ev *domain.Event) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.inner.SignEvent(ctx, ev)
}

// Encrypt waits for a token and encrypts.
func (t *ThrottledCipher) Encrypt(ctx context.Context, peer, plaintext string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.cipher.Encrypt(ctx, peer, plaintext)
}

// Decrypt waits for a token and decrypts.
func (t *ThrottledCipher) Decrypt(ctx context.Context, peer, ciphertext string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.cipher.Decrypt(ctx, peer, ciphertext)
}

var (
	_ domain.Signer       = PublicOnly{}
	_ domain.Signer       = (*Throttled)(nil)
	_ domain.SignerCipher = (*ThrottledCipher)(nil)
)
