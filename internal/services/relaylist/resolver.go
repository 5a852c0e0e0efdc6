package relaylist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"privcal/internal/cache"
	"privcal/internal/crypto"
	"privcal/internal/domain"
	"privcal/internal/relay"
)

// Defaults applied by New.
const (
	DefaultTTL        = 5 * time.Minute
	DefaultTimeout    = 5 * time.Second
	DefaultMaxEntries = 1024
)

var (
	// ErrNoDefaults is returned by New when no usable default relay is configured.
	ErrNoDefaults = errors.New("relaylist: no default relays")
	// ErrEmptyList is returned by Publish for a list without usable entries.
	ErrEmptyList = errors.New("relaylist: empty relay list")
)

// Transport is what the resolver needs from the relay pool.
type Transport interface {
	domain.RelayQuerier
	domain.RelayPublisher
}

// Config tunes a Resolver. Zero values take defaults.
type Config struct {
	// DefaultRelays answer for pubkeys without a usable list. Required.
	DefaultRelays []string
	// LookupRelays are queried for lists; empty means DefaultRelays.
	LookupRelays []string
	TTL          time.Duration
	Timeout      time.Duration
	MaxEntries   int
	// Local keeps the lists we publish ourselves. Optional.
	Local  domain.RelayListStore
	Logger *slog.Logger
}

type cacheKey struct {
	pubkey  string
	purpose domain.Purpose
}

// Resolver implements domain.RelayResolver over a relay pool.
type Resolver struct {
	transport Transport
	defaults  []domain.RelayPreference
	lookup    []string
	timeout   time.Duration
	local     domain.RelayListStore
	log       *slog.Logger

	cache *expirable.LRU[cacheKey, []domain.RelayPreference]
	group singleflight.Group

	mu   sync.RWMutex
	self string
}

// New returns a Resolver querying through t.
func New(t Transport, cfg Config) (*Resolver, error) {
	defaults := Defaults(cfg.DefaultRelays)
	if len(defaults) == 0 {
		return nil, ErrNoDefaults
	}
	lookup := relay.NormalizeURLs(cfg.LookupRelays)
	if len(lookup) == 0 {
		lookup = relay.NormalizeURLs(cfg.DefaultRelays)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		transport: t,
		defaults:  defaults,
		lookup:    lookup,
		timeout:   cfg.Timeout,
		local:     cfg.Local,
		log:       cfg.Logger.With("component", "relaylist"),
		cache: cache.New[cacheKey, []domain.RelayPreference](cache.Policy{
			MaxEntries: cfg.MaxEntries,
			TTL:        cfg.TTL,
		}),
	}, nil
}

// SetSelf names the local pubkey. Lookups for it fall back to the locally
// stored list before the defaults.
func (r *Resolver) SetSelf(pubkey string) {
	r.mu.Lock()
	r.self = pubkey
	r.mu.Unlock()
}

// Resolve returns the preferences of pubkey for purpose. The result is
// never empty.
func (r *Resolver) Resolve(ctx context.Context, pubkey string, purpose domain.Purpose) []domain.RelayPreference {
	key := cacheKey{pubkey: pubkey, purpose: purpose}
	if prefs, ok := r.cache.Get(key); ok {
		return slices.Clone(prefs)
	}
	if !crypto.ValidPublicKey(pubkey) {
		return slices.Clone(r.defaults)
	}

	ch := r.group.DoChan(string(purpose)+":"+pubkey, func() (any, error) {
		// Shared by every waiter, so it outlives any single caller.
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.fetch(qctx, key)
	})
	select {
	case <-ctx.Done():
		return slices.Clone(r.defaults)
	case res := <-ch:
		prefs := res.Val.([]domain.RelayPreference)
		return slices.Clone(prefs)
	}
}

// fetch queries the lookup relays. Lists that were found, or confirmed
// absent, are cached. Query errors are not.
func (r *Resolver) fetch(ctx context.Context, key cacheKey) ([]domain.RelayPreference, error) {
	filter := domain.Filter{
		Authors: []string{key.pubkey},
		Kinds:   []int{key.purpose.Kind()},
		Limit:   1,
	}
	ev, found, err := r.transport.FetchLatest(ctx, filter, r.lookup)
	if err != nil {
		r.log.Debug("relay list lookup failed",
			"pubkey", short(key.pubkey), "purpose", key.purpose, "err", err)
		return r.fallback(key), nil
	}

	var prefs []domain.RelayPreference
	if found {
		prefs = Parse(ev, key.purpose)
	}
	if len(prefs) == 0 {
		prefs = r.fallback(key)
	}
	r.cache.Add(key, prefs)
	r.log.Debug("relay list resolved",
		"pubkey", short(key.pubkey), "purpose", key.purpose, "found", found, "relays", len(prefs))
	return prefs, nil
}

func (r *Resolver) fallback(key cacheKey) []domain.RelayPreference {
	r.mu.RLock()
	self := r.self
	r.mu.RUnlock()
	if r.local != nil && self != "" && key.pubkey == self {
		prefs, ok, err := r.local.LoadRelayList(key.purpose)
		if err == nil && ok && len(prefs) > 0 {
			return prefs
		}
	}
	return r.defaults
}

// ReadRelays returns the URLs pubkey reads from. Never empty.
func (r *Resolver) ReadRelays(ctx context.Context, pubkey string, purpose domain.Purpose) []string {
	if urls := readURLs(r.Resolve(ctx, pubkey, purpose)); len(urls) > 0 {
		return urls
	}
	return readURLs(r.defaults)
}

// WriteRelays returns the URLs pubkey writes to. Never empty.
func (r *Resolver) WriteRelays(ctx context.Context, pubkey string, purpose domain.Purpose) []string {
	if urls := writeURLs(r.Resolve(ctx, pubkey, purpose)); len(urls) > 0 {
		return urls
	}
	return writeURLs(r.defaults)
}

// Invalidate drops the cached list of pubkey for purpose.
func (r *Resolver) Invalidate(pubkey string, purpose domain.Purpose) {
	r.cache.Remove(cacheKey{pubkey: pubkey, purpose: purpose})
}

// Publish signs and publishes prefs as the signer's list for purpose. The
// event goes to the listed relays and the lookup relays. On acceptance by
// at least one relay the cache is primed and the list is stored locally.
func (r *Resolver) Publish(
	ctx context.Context,
	signer domain.Signer,
	purpose domain.Purpose,
	prefs []domain.RelayPreference,
) (domain.PublishResult, error) {
	parsed := Parse(domain.Event{Tags: Tags(prefs, purpose)}, purpose)
	if len(parsed) == 0 {
		return domain.PublishResult{}, ErrEmptyList
	}
	ev := domain.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      purpose.Kind(),
		Tags:      Tags(parsed, purpose),
	}
	if err := signer.SignEvent(ctx, &ev); err != nil {
		return domain.PublishResult{}, fmt.Errorf("sign relay list: %w", err)
	}

	targets := make([]string, 0, len(parsed)+len(r.lookup))
	for _, p := range parsed {
		targets = append(targets, p.URL)
	}
	targets = relay.NormalizeURLs(append(targets, r.lookup...))

	res := r.transport.Publish(ctx, ev, targets)
	if !res.OK() {
		return res, fmt.Errorf("publish relay list: %w", firstError(res))
	}
	key := cacheKey{pubkey: ev.PubKey, purpose: purpose}
	r.group.Forget(string(purpose) + ":" + ev.PubKey)
	r.cache.Add(key, parsed)
	if r.local != nil {
		if err := r.local.SaveRelayList(purpose, parsed); err != nil {
			return res, fmt.Errorf("store relay list: %w", err)
		}
	}
	r.log.Info("relay list published",
		"purpose", purpose, "relays", len(parsed), "accepted", len(res.Accepted), "failed", len(res.Failed))
	return res, nil
}

func firstError(res domain.PublishResult) error {
	for _, err := range res.Failed {
		return err
	}
	return relay.ErrNoRelays
}

func short(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// Compile-time assertion that Resolver implements domain.RelayResolver.
var _ domain.RelayResolver = (*Resolver)(nil)
