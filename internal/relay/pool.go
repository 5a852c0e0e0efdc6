package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"privcal/internal/cache"
	"privcal/internal/crypto"
	"privcal/internal/domain"
	"privcal/internal/metrics"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultPublishTimeout   = 10 * time.Second
	DefaultSubscribeTimeout = 10 * time.Second
	DefaultSignerTimeout    = 10 * time.Second
	DefaultDialTimeout      = 10 * time.Second
	DefaultAuthValidity     = 10 * time.Minute
	DefaultMinBackoff       = 500 * time.Millisecond
	DefaultMaxBackoff       = 30 * time.Second
	maxAuthRetries          = 3
)

// SignerSource supplies the identity used to answer AUTH challenges. It is
// consulted for every challenge, so a changed identity is picked up without
// rebuilding the pool. A nil Signer leaves challenges unanswered.
type SignerSource interface {
	Signer() domain.Signer
}

// SignerFunc adapts a function to SignerSource.
type SignerFunc func() domain.Signer

// Signer calls f.
func (f SignerFunc) Signer() domain.Signer { return f() }

// StaticSigner always answers with s.
func StaticSigner(s domain.Signer) SignerSource {
	return SignerFunc(func() domain.Signer { return s })
}

// Options configure a Pool. Zero values take the package defaults.
type Options struct {
	Signer           SignerSource
	AuthValidity     time.Duration
	PublishTimeout   time.Duration
	SubscribeTimeout time.Duration
	SignerTimeout    time.Duration
	DialTimeout      time.Duration
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
	// ResumeWindow is subtracted from the newest created_at seen on a leg
	// when it resubscribes. Gift wraps are backdated by up to two days.
	ResumeWindow time.Duration
	// LastSeen bounds the per-leg newest created_at bookkeeping.
	LastSeen cache.Policy
	Dialer   *websocket.Dialer
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.AuthValidity <= 0 {
		o.AuthValidity = DefaultAuthValidity
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = DefaultPublishTimeout
	}
	if o.SubscribeTimeout <= 0 {
		o.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if o.SignerTimeout <= 0 {
		o.SignerTimeout = DefaultSignerTimeout
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = DefaultMinBackoff
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = max(DefaultMaxBackoff, o.MinBackoff)
	}
	if o.ResumeWindow <= 0 {
		o.ResumeWindow = crypto.MaxTimestampSkew
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// RelayHealth is a snapshot of one relay.
type RelayHealth struct {
	Connected  bool
	Auth       AuthState
	ValidUntil time.Time
	LastError  string
}

// Pool multiplexes publishes and subscriptions over one connection per
// relay. It is safe for concurrent use and must be closed.
type Pool struct {
	opts Options
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	legs   sync.WaitGroup
	dials  singleflight.Group

	lastSeen *expirable.LRU[string, int64]

	mu       sync.Mutex
	conns    map[string]*conn
	sessions map[string]*AuthSession
	errs     map[string]string
	closed   bool
}

// NewPool returns an empty pool. Connections are opened on first use.
func NewPool(opts Options) *Pool {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		opts:     opts,
		log:      opts.Logger.With("component", "relay-pool"),
		ctx:      ctx,
		cancel:   cancel,
		lastSeen: cache.New[string, int64](opts.LastSeen),
		conns:    make(map[string]*conn),
		sessions: make(map[string]*AuthSession),
		errs:     make(map[string]string),
	}
}

// Publish sends ev to every relay in urls concurrently and reports which
// accepted it. A relay that answers auth-required is retried once after
// authentication completes.
func (p *Pool) Publish(ctx context.Context, ev domain.Event, urls []string) domain.PublishResult {
	res := domain.PublishResult{EventID: ev.ID, Failed: make(map[string]error)}
	targets := NormalizeURLs(urls)
	if len(targets) == 0 {
		return res
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, u := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.publishOne(ctx, u, ev)
			p.opts.Metrics.Published(err == nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed[u] = err
				return
			}
			res.Accepted = append(res.Accepted, u)
		}()
	}
	wg.Wait()
	p.log.Debug("published", "event", short(ev.ID), "kind", ev.Kind,
		"accepted", len(res.Accepted), "failed", len(res.Failed))
	return res
}

func (p *Pool) publishOne(ctx context.Context, u string, ev domain.Event) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.PublishTimeout)
	defer cancel()

	fail := func(reason string, err error) error {
		return &PublishError{Relay: u, EventID: ev.ID, Reason: reason, Err: err}
	}
	for attempt := 0; ; attempt++ {
		c, err := p.connect(ctx, u)
		if err != nil {
			return fail("", err)
		}
		ok, err := c.request(ctx, Frame{Label: LabelEvent, Event: ev}, ev.ID)
		if err != nil {
			return fail("", err)
		}
		if ok.Accepted || strings.HasPrefix(ok.Message, PrefixDuplicate) {
			return nil
		}
		if attempt == 0 && strings.HasPrefix(ok.Message, PrefixAuthRequired) {
			if err := c.auth.wait(ctx); err != nil {
				return fail(ok.Message, err)
			}
			continue
		}
		return fail(ok.Message, nil)
	}
}

// Subscribe opens a stream over urls. Unusable URLs are skipped; if none
// remain ErrNoRelays is returned. The stream ends when ctx ends, when
// Close is called or when the pool closes.
func (p *Pool) Subscribe(ctx context.Context, filters []domain.Filter, urls []string) (domain.Subscription, error) {
	s, err := p.stream(ctx, filters, urls, false)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FetchLatest queries urls once and returns the newest event matching
// filter. found is false when the relays that answered had none. If no
// relay reached end of stored events before the subscribe timeout the
// error wraps ErrNoAnswer.
func (p *Pool) FetchLatest(ctx context.Context, filter domain.Filter, urls []string) (domain.Event, bool, error) {
	qctx, cancel := context.WithTimeout(ctx, p.opts.SubscribeTimeout)
	defer cancel()

	sub, err := p.stream(qctx, []domain.Filter{filter}, urls, true)
	if err != nil {
		return domain.Event{}, false, err
	}
	defer sub.Close()

	var (
		best     domain.Event
		found    bool
		answered bool
	)
	for msg := range sub.Messages() {
		switch msg.Type {
		case domain.MessageEOSE:
			answered = true
		case domain.MessageEvent:
			answered = true
			if !filter.Matches(msg.Event) {
				continue
			}
			if !found || newer(msg.Event, best) {
				best, found = msg.Event, true
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return domain.Event{}, false, err
	}
	if !answered {
		return domain.Event{}, false, fmt.Errorf("fetch from %d relays: %w", len(urls), ErrNoAnswer)
	}
	return best, found, nil
}

// newer orders replaceable events: later created_at wins, ties go to the
// lower id.
func newer(a, b domain.Event) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID < b.ID
}

// Health returns a snapshot of every relay the pool has touched.
func (p *Pool) Health() map[string]RelayHealth {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]RelayHealth, len(p.sessions))
	for u, s := range p.sessions {
		c := p.conns[u]
		out[u] = RelayHealth{
			Connected:  c != nil && c.alive(),
			Auth:       s.State(),
			ValidUntil: s.ValidUntil(),
			LastError:  p.errs[u],
		}
	}
	return out
}

// InvalidateAuth drops relayURL's established authentication. If the relay
// considered us authenticated the connection is reset so it issues a fresh
// challenge; an exchange already under way is left alone.
func (p *Pool) InvalidateAuth(relayURL string) {
	u, err := NormalizeURL(relayURL)
	if err != nil {
		return
	}
	p.mu.Lock()
	s := p.sessions[u]
	c := p.conns[u]
	p.mu.Unlock()
	if s == nil {
		return
	}
	switch s.State() {
	case AuthAuthenticated, AuthInvalidated:
		s.invalidate()
		if c != nil && c.alive() {
			c.close()
		}
		p.log.Info("auth invalidated", "relay", u)
	}
}

// InvalidateAll drops every session and connection. Relays bind
// authentication to a connection, so a new identity needs new connections.
func (p *Pool) InvalidateAll() {
	p.mu.Lock()
	conns := make([]*conn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	sessions := make([]*AuthSession, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	for _, s := range sessions {
		s.invalidate()
	}
}

// Close ends every stream and connection. Publishes in flight fail.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	conns := make([]*conn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	p.cancel()
	for _, c := range conns {
		c.close()
	}
	p.legs.Wait()
}

func (p *Pool) session(u string) *AuthSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[u]
	if !ok {
		s = newAuthSession(u)
		p.sessions[u] = s
	}
	return s
}

// connect returns the live connection to u, dialing at most once at a time.
func (p *Pool) connect(ctx context.Context, u string) (*conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if c, ok := p.conns[u]; ok && c.alive() {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	ch := p.dials.DoChan(u, func() (any, error) {
		return p.dial(u)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*conn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) dial(u string) (*conn, error) {
	p.mu.Lock()
	if c, ok := p.conns[u]; ok && c.alive() {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(p.ctx, p.opts.DialTimeout)
	defer cancel()
	ws, _, err := p.opts.Dialer.DialContext(ctx, u, nil)
	if err != nil {
		p.recordError(u, err)
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}

	c := newConn(u, ws, p.session(u), p.log.With("relay", u), p.handleChallenge)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.close()
		return nil, ErrPoolClosed
	}
	p.conns[u] = c
	delete(p.errs, u)
	p.mu.Unlock()
	p.log.Debug("connected", "relay", u)
	return c, nil
}

func (p *Pool) recordError(u string, err error) {
	p.mu.Lock()
	p.errs[u] = err.Error()
	p.mu.Unlock()
}

func (p *Pool) handleChallenge(c *conn, challenge string) {
	if !c.auth.challengeReceived(challenge) {
		return
	}
	go p.authenticate(c, challenge)
}

// authenticate answers one challenge. Exchanges for the same relay run one
// at a time; a challenge superseded while waiting is dropped.
func (p *Pool) authenticate(c *conn, challenge string) {
	a := c.auth
	select {
	case a.inflight <- struct{}{}:
	case <-c.done:
		return
	}
	defer func() { <-a.inflight }()

	gen, ok := a.begin(challenge)
	if !ok {
		return
	}

	var signer domain.Signer
	if p.opts.Signer != nil {
		signer = p.opts.Signer.Signer()
	}
	if signer == nil {
		a.fail(gen, &AuthError{Relay: c.url, Err: ErrNoSigner})
		p.opts.Metrics.Auth("no_signer")
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.opts.SignerTimeout+p.opts.PublishTimeout)
	defer cancel()
	err := p.exchange(ctx, c, signer, challenge)
	if err != nil {
		ae, ok := AsAuthError(err)
		if !ok {
			ae = &AuthError{Relay: c.url, Err: err}
		}
		if a.fail(gen, ae) {
			p.recordError(c.url, ae)
		}
		p.opts.Metrics.Auth("failure")
		p.log.Warn("auth failed", "relay", c.url, "err", ae)
		return
	}
	if a.succeed(gen, p.opts.AuthValidity) {
		p.opts.Metrics.Auth("success")
		p.log.Debug("authenticated", "relay", c.url)
	}
}

func (p *Pool) exchange(ctx context.Context, c *conn, signer domain.Signer, challenge string) error {
	ev := domain.Event{
		Kind:      domain.KindClientAuth,
		CreatedAt: time.Now().Unix(),
		Tags:      domain.Tags{{"relay", c.url}, {"challenge", challenge}},
	}
	sctx, cancel := context.WithTimeout(ctx, p.opts.SignerTimeout)
	err := signer.SignEvent(sctx, &ev)
	cancel()
	if err != nil {
		return &AuthError{Relay: c.url, Err: fmt.Errorf("sign auth event: %w", err)}
	}
	ok, err := c.request(ctx, Frame{Label: LabelAuth, Event: ev}, ev.ID)
	if err != nil {
		return &AuthError{Relay: c.url, Err: err}
	}
	if !ok.Accepted {
		return &AuthError{Relay: c.url, Reason: ok.Message}
	}
	return nil
}
