package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"privcal/internal/domain"
	"privcal/internal/metrics"
	"privcal/internal/relay"
	"privcal/internal/services/identity"
	messagesvc "privcal/internal/services/message"
	"privcal/internal/services/relaylist"
	"privcal/internal/services/session"
	"privcal/internal/signer"
	"privcal/internal/store"
)

// ErrPassphraseRequired is returned by Unlock without a passphrase.
var ErrPassphraseRequired = errors.New("passphrase required (-p)")

// Session bundles all stores, services and the relay pool for one process.
type Session struct {
	Config     Config
	Identities *identity.Service
	Store      *store.IdentityFileStore
	RelayLists *store.RelayListFileStore
	Identity   *session.Context
	Pool       *relay.Pool
	Resolver   *relaylist.Resolver
	Messages   *messagesvc.Service
	Metrics    *metrics.Metrics
	// Registry is nil when the caller supplied a Registerer that is not a
	// *prometheus.Registry.
	Registry *prometheus.Registry

	log *slog.Logger

	mu        sync.Mutex
	closers   []func()
	activePub string
	closed    bool
}

// Unlock decrypts the stored identity and makes it the active signer,
// or connects the configured bunker when one is set.
func (s *Session) Unlock(ctx context.Context, passphrase string) (domain.Signer, error) {
	if s.Config.Bunker != "" {
		return s.UseBunker(ctx, s.Config.Bunker)
	}
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	local, err := s.Identities.LoadSigner(passphrase)
	if err != nil {
		return nil, err
	}
	return s.UseSigner(ctx, local, local.Close)
}

// UseBunker connects a NIP-46 remote signer and makes it the active signer.
// The signer gets a pool of its own: identity changes reset the session
// pool's connections, and replies on the ephemeral signing kind are not
// stored for a resubscription to find.
func (s *Session) UseBunker(ctx context.Context, bunkerURL string) (domain.Signer, error) {
	bcfg, err := signer.ParseBunkerURL(bunkerURL)
	if err != nil {
		return nil, err
	}
	bcfg.Timeout = s.Config.Timeouts.Signer
	bcfg.Logger = s.log
	pool := relay.NewPool(relay.Options{
		PublishTimeout:   s.Config.Timeouts.Publish,
		SubscribeTimeout: s.Config.Timeouts.Subscribe,
		Logger:           s.log.With("pool", "bunker"),
		Metrics:          s.Metrics,
	})
	b, err := signer.ConnectBunker(ctx, pool, bcfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect bunker: %w", err)
	}
	return s.UseSigner(ctx, b, func() {
		b.Close()
		pool.Close()
	})
}

// UseSigner activates sg, applying the configured rate limit. release runs
// on Close.
func (s *Session) UseSigner(ctx context.Context, sg domain.Signer, release func()) (domain.Signer, error) {
	if s.Config.SignerRate > 0 {
		sg = signer.NewThrottled(sg, s.Config.SignerRate, s.Config.SignerBurst)
	}
	if err := s.Identity.SetIdentity(ctx, sg); err != nil {
		if release != nil {
			release()
		}
		return nil, err
	}
	if release != nil {
		s.mu.Lock()
		s.closers = append(s.closers, release)
		s.mu.Unlock()
	}
	return sg, nil
}

// Current returns the active signer and a context that ends when the
// identity changes or the session closes.
func (s *Session) Current() (domain.Signer, context.Context, error) {
	return s.Identity.Current()
}

// identityChanged drops every authentication made for the previous
// identity and points the resolver's local fallback at the new one.
// Re-activating the same key keeps the pool's connections.
func (s *Session) identityChanged(pubkey string) {
	s.mu.Lock()
	changed := pubkey != s.activePub
	s.activePub = pubkey
	s.mu.Unlock()
	if changed {
		s.Pool.InvalidateAll()
	}
	s.Resolver.SetSelf(pubkey)
	if pubkey != "" {
		s.log.Info("identity active", "pubkey", pubkey[:min(12, len(pubkey))])
	}
}

// Close cancels the identity context, closes the pool and releases signers.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	s.Identity.Close()
	s.Pool.Close()
	for _, c := range closers {
		c()
	}
}
