package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"privcal/internal/cache"
	"privcal/internal/domain"
	"privcal/internal/metrics"
	"privcal/internal/relay"
)

// Transport is what the pipeline needs from the relay pool.
type Transport interface {
	domain.RelaySubscriber
	domain.AuthInvalidator
}

// DefaultMaxPending bounds envelopes queued behind busy decryptor slots.
const DefaultMaxPending = 256

// Config tunes a Pipeline. Zero values take defaults.
type Config struct {
	Concurrency int
	ItemTimeout time.Duration
	// MaxPending is the queue length at which the pipeline stops reading
	// from the subscription until a slot frees.
	MaxPending int
	// Cache is shared across pipelines; nil creates a private one.
	Cache   *DecryptionCache
	Unwrap  Unwrapper
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Pipeline opens gift wraps addressed to one recipient.
type Pipeline struct {
	transport Transport
	recipient domain.Signer
	decryptor  *BatchDecryptor
	cache      *DecryptionCache
	maxPending int
	log        *slog.Logger
	metrics   *metrics.Metrics
}

// New returns a pipeline reading through t as recipient.
func New(t Transport, recipient domain.Signer, cfg Config) *Pipeline {
	if cfg.Cache == nil {
		cfg.Cache = NewDecryptionCache(cache.DefaultPolicy())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	return &Pipeline{
		transport:  t,
		recipient:  recipient,
		decryptor:  NewBatchDecryptor(cfg.Concurrency, cfg.ItemTimeout, cfg.Unwrap),
		cache:      cfg.Cache,
		maxPending: cfg.MaxPending,
		log:        cfg.Logger.With("component", "ingest"),
		metrics:    cfg.Metrics,
	}
}

// Run subscribes to gift wraps p-tagged for the recipient on relays and
// emits each new calendar rumor once. Gift wraps p-tagged for anyone else are
// dropped even if a relay ignores the filter. The channel closes when ctx ends or
// the subscription ends and in-flight envelopes are done. Results that
// complete after ctx ends are dropped.
func (p *Pipeline) Run(ctx context.Context, relays []string, since *int64) (<-chan domain.CalendarEvent, error) {
	pub, err := p.recipient.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingest recipient: %w", err)
	}
	sub, err := p.transport.Subscribe(ctx, []domain.Filter{{
		Kinds: []int{domain.KindGiftWrap},
		Tags:  map[string][]string{"p": {pub}},
		Since: since,
	}}, relays)
	if err != nil {
		return nil, fmt.Errorf("ingest subscribe: %w", err)
	}

	out := make(chan domain.CalendarEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		p.loop(ctx, pub, sub, out)
	}()
	return out, nil
}

type runState struct {
	pub      string
	seen     map[string]bool
	emitted  map[string]bool
	inflight int
	pending  []domain.GiftWrap
	results  chan Result
}

func (p *Pipeline) loop(ctx context.Context, pub string, sub domain.Subscription, out chan<- domain.CalendarEvent) {
	st := &runState{
		pub:     pub,
		seen:    make(map[string]bool),
		emitted: make(map[string]bool),
		results: make(chan Result, p.decryptor.Limit()),
	}
	msgs := sub.Messages()
	for msgs != nil || st.inflight > 0 || len(st.pending) > 0 {
		in := msgs
		if len(st.pending) >= p.maxPending {
			in = nil
		}
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				msgs = nil
				continue
			}
			if !p.handleMessage(ctx, st, m, out) {
				return
			}
		case r := <-st.results:
			st.inflight--
			if !p.handleResult(ctx, st, r, out) {
				return
			}
			p.startPending(ctx, st)
		}
	}
}

// startPending hands queued envelopes to free decryptor slots. With nothing
// of its own in flight it waits for a slot, since no result would wake it.
func (p *Pipeline) startPending(ctx context.Context, st *runState) {
	for len(st.pending) > 0 {
		started := p.decryptor.TryStart(ctx, st.pending[0], p.recipient, st.results)
		if !started && st.inflight == 0 {
			started = p.decryptor.Start(ctx, st.pending[0], p.recipient, st.results)
		}
		if !started {
			return
		}
		st.pending[0] = domain.GiftWrap{}
		st.pending = st.pending[1:]
		st.inflight++
	}
}

func (p *Pipeline) handleMessage(ctx context.Context, st *runState, m domain.RelayMessage, out chan<- domain.CalendarEvent) bool {
	switch m.Type {
	case domain.MessageClosed:
		if strings.HasPrefix(m.Reason, relay.PrefixAuthRequired) {
			p.log.Info("relay requires auth", "relay", m.Relay)
			p.transport.InvalidateAuth(m.Relay)
		} else {
			p.log.Debug("subscription closed", "relay", m.Relay, "reason", m.Reason)
		}
		return true
	case domain.MessageEOSE:
		p.log.Debug("caught up", "relay", m.Relay)
		return true
	}

	p.metrics.EnvelopeReceived()
	gw, err := domain.GiftWrapFromEvent(m.Event)
	if err != nil {
		p.metrics.DecryptFailed("malformed")
		p.log.Debug("dropping envelope", "relay", m.Relay, "err", err)
		return true
	}
	if gw.Recipient() != st.pub {
		p.metrics.DecryptFailed("misaddressed")
		p.log.Debug("dropping envelope for another recipient", "relay", m.Relay, "id", short(gw.ID))
		return true
	}
	if st.seen[gw.ID] {
		p.metrics.Duplicate()
		return true
	}
	st.seen[gw.ID] = true

	if rumor, ok := p.cache.Get(st.pub, gw.ID); ok {
		p.metrics.CacheHit()
		return p.emit(ctx, st, rumor, out)
	}

	st.pending = append(st.pending, gw)
	p.startPending(ctx, st)
	return true
}

func (p *Pipeline) handleResult(ctx context.Context, st *runState, r Result, out chan<- domain.CalendarEvent) bool {
	if r.Err != nil {
		reason := failureReason(r.Err)
		p.metrics.DecryptFailed(reason)
		p.log.Debug("envelope not opened", "id", short(r.GiftWrap.ID), "reason", reason, "err", r.Err)
		return true
	}
	if !domain.IsCalendarKind(r.Rumor.Kind) {
		p.metrics.KindDiscarded()
		p.log.Debug("discarding non-calendar rumor", "id", short(r.Rumor.ID), "kind", r.Rumor.Kind)
		return true
	}
	p.cache.Put(st.pub, r.GiftWrap.ID, r.Rumor)
	return p.emit(ctx, st, r.Rumor, out)
}

func (p *Pipeline) emit(ctx context.Context, st *runState, rumor domain.Rumor, out chan<- domain.CalendarEvent) bool {
	if !domain.IsCalendarKind(rumor.Kind) || st.emitted[rumor.ID] {
		return true
	}
	st.emitted[rumor.ID] = true
	select {
	case out <- domain.NewCalendarEvent(rumor):
		p.metrics.Emitted()
		return true
	case <-ctx.Done():
		return false
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrSignatureInvalid):
		return "signature"
	case errors.Is(err, domain.ErrCapabilityUnavailable):
		return "capability"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrEnvelopeMalformed):
		return "malformed"
	}
	return "other"
}

func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
