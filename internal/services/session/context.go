package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"privcal/internal/domain"
	"privcal/internal/relay"
)

var (
	// ErrNoIdentity is returned when no identity is active.
	ErrNoIdentity = errors.New("session: no active identity")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: closed")
)

// Context is the identity context of a client. It is safe for concurrent use.
type Context struct {
	parent context.Context

	mu     sync.RWMutex
	signer domain.Signer
	pubkey string
	ctx    context.Context
	cancel context.CancelFunc
	hooks  []func(pubkey string)
	closed bool
}

// NewContext returns a Context with no identity. Identity contexts derive
// from parent.
func NewContext(parent context.Context) *Context {
	ctx, cancel := context.WithCancel(parent)
	cancel()
	return &Context{parent: parent, ctx: ctx, cancel: cancel}
}

// SetIdentity makes s the active identity. The context returned by the
// previous Current call is cancelled and OnChange hooks run with the new
// public key before SetIdentity returns.
func (c *Context) SetIdentity(ctx context.Context, s domain.Signer) error {
	if s == nil {
		return fmt.Errorf("%w: nil signer", ErrNoIdentity)
	}
	pub, err := s.PublicKey(ctx)
	if err != nil {
		return fmt.Errorf("session: resolve public key: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.cancel()
	c.ctx, c.cancel = context.WithCancel(c.parent)
	c.signer = s
	c.pubkey = pub
	hooks := append([]func(string){}, c.hooks...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(pub)
	}
	return nil
}

// Clear drops the active identity and cancels its context.
func (c *Context) Clear() {
	c.mu.Lock()
	had := c.signer != nil
	c.cancel()
	c.signer = nil
	c.pubkey = ""
	hooks := append([]func(string){}, c.hooks...)
	c.mu.Unlock()

	if had {
		for _, fn := range hooks {
			fn("")
		}
	}
}

// Close clears the identity and rejects further SetIdentity calls.
func (c *Context) Close() {
	c.Clear()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// OnChange registers fn to run after every identity change. fn receives
// the new public key, or "" when the identity is cleared.
func (c *Context) OnChange(fn func(pubkey string)) {
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// Signer returns the active signer or nil.
func (c *Context) Signer() domain.Signer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.signer
}

// PublicKey returns the active public key or "".
func (c *Context) PublicKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pubkey
}

// Current returns the active signer together with a context that is
// cancelled when the identity changes.
func (c *Context) Current() (domain.Signer, context.Context, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.signer == nil {
		return nil, nil, ErrNoIdentity
	}
	return c.signer, c.ctx, nil
}

// Compile-time assertion that Context can answer relay AUTH challenges.
var _ relay.SignerSource = (*Context)(nil)
