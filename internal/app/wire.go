package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"privcal/internal/ingest"
	"privcal/internal/metrics"
	"privcal/internal/relay"
	"privcal/internal/services/identity"
	messagesvc "privcal/internal/services/message"
	"privcal/internal/services/relaylist"
	"privcal/internal/services/session"
	"privcal/internal/store"
)

// Options carry process-level collaborators into NewSession.
type Options struct {
	Logger *slog.Logger
	// Registerer receives the metrics; nil creates a private registry.
	Registerer prometheus.Registerer
}

// NewSession constructs the dependency graph from cfg. No identity is
// active until Unlock or UseSigner.
func NewSession(ctx context.Context, cfg Config, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, fmt.Errorf("create home: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := opts.Registerer
	registry, _ := reg.(*prometheus.Registry)
	if reg == nil {
		registry = prometheus.NewRegistry()
		reg = registry
	}
	m := metrics.New(reg)

	// File-based stores
	identityStore := store.NewIdentityFileStore(cfg.Home)
	relayListStore := store.NewRelayListFileStore(cfg.Home)

	ident := session.NewContext(ctx)

	pool := relay.NewPool(relay.Options{
		Signer:           ident,
		AuthValidity:     cfg.AuthValidity,
		PublishTimeout:   cfg.Timeouts.Publish,
		SubscribeTimeout: cfg.Timeouts.Subscribe,
		SignerTimeout:    cfg.Timeouts.Signer,
		LastSeen:         cfg.Cache,
		Logger:           logger,
		Metrics:          m,
	})

	resolver, err := relaylist.New(pool, relaylist.Config{
		DefaultRelays: cfg.DefaultRelays,
		LookupRelays:  cfg.LookupRelays,
		TTL:           cfg.RelayListTTL,
		Timeout:       cfg.Timeouts.Lookup,
		MaxEntries:    cfg.Cache.MaxEntries,
		Local:         relayListStore,
		Logger:        logger,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	// High-level services
	messages := messagesvc.New(pool, resolver, messagesvc.Config{
		MaxPublicRelays:    cfg.MaxPublishRelays,
		DecryptConcurrency: cfg.DecryptConcurrency,
		DecryptTimeout:     cfg.Timeouts.Signer,
		Cache:              ingest.NewDecryptionCache(cfg.Cache),
		Logger:             logger,
		Metrics:            m,
	})

	s := &Session{
		Config:     cfg,
		Identities: identity.New(identityStore),
		Store:      identityStore,
		RelayLists: relayListStore,
		Identity:   ident,
		Pool:       pool,
		Resolver:   resolver,
		Messages:   messages,
		Metrics:    m,
		Registry:   registry,
		log:        logger.With("component", "app"),
	}
	ident.OnChange(s.identityChanged)
	return s, nil
}
