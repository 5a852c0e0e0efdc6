package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"privcal/internal/cache"
	"privcal/internal/domain"
	"privcal/internal/ingest"
	"privcal/internal/metrics"
	"privcal/internal/protocol/envelope"
)

// Defaults applied by New.
const (
	DefaultMaxPublicRelays  = 5
	DefaultFanout           = 8
	DefaultRecipientTimeout = 30 * time.Second
)

var (
	// ErrNoRecipientDelivered is returned when a private publish reached no
	// recipient at all. The FanoutReport is still returned.
	ErrNoRecipientDelivered = errors.New("message: no recipient delivered")
	// ErrNotDelivered is returned when no relay accepted a public event.
	ErrNotDelivered = errors.New("message: no relay accepted the event")
)

// Delivery is the outcome for one recipient of a private publish.
type Delivery struct {
	Recipient  string
	GiftWrapID string
	Relays     []string
	Accepted   []string
	Err        error
}

// FanoutReport summarizes a private publish.
type FanoutReport struct {
	RumorID    string
	Successful int
	Failed     int
	Deliveries []Delivery
}

// Config tunes a Service. Zero values take defaults.
type Config struct {
	MaxPublicRelays  int
	Fanout           int
	RecipientTimeout time.Duration

	// Ingest settings used by Listen. Cache is shared across Listen calls.
	DecryptConcurrency int
	DecryptTimeout     time.Duration
	Cache              *ingest.DecryptionCache

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Service routes calendar events over the relay pool.
type Service struct {
	transport domain.Transport
	resolver  domain.RelayResolver
	cfg       Config
	log       *slog.Logger
}

// New returns a Service publishing through t and routing with resolver.
func New(t domain.Transport, resolver domain.RelayResolver, cfg Config) *Service {
	if cfg.MaxPublicRelays <= 0 {
		cfg.MaxPublicRelays = DefaultMaxPublicRelays
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = DefaultFanout
	}
	if cfg.RecipientTimeout <= 0 {
		cfg.RecipientTimeout = DefaultRecipientTimeout
	}
	if cfg.Cache == nil {
		cfg.Cache = ingest.NewDecryptionCache(cache.DefaultPolicy())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		transport: t,
		resolver:  resolver,
		cfg:       cfg,
		log:       cfg.Logger.With("component", "message"),
	}
}

// SendPrivate completes partial into a rumor authored by sender and
// delivers one gift wrap to each participant's private write relays.
//
// A sender without payload encryption fails with ErrCapabilityUnavailable
// before anything is sent. Otherwise the report always carries per-recipient
// outcomes, and ErrNoRecipientDelivered is returned when none succeeded.
func (s *Service) SendPrivate(
	ctx context.Context,
	sender domain.Signer,
	partial domain.Rumor,
) (FanoutReport, error) {
	if _, ok := sender.(domain.Cipher); !ok {
		return FanoutReport{}, fmt.Errorf("%w: sender cannot encrypt", domain.ErrCapabilityUnavailable)
	}
	rumor, err := envelope.CreateRumor(ctx, partial, sender)
	if err != nil {
		return FanoutReport{}, err
	}
	recipients := envelope.ExtractParticipants(rumor)

	report := FanoutReport{RumorID: rumor.ID, Deliveries: make([]Delivery, len(recipients))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Fanout)
	for i, recipient := range recipients {
		g.Go(func() error {
			d := s.deliver(gctx, rumor, sender, recipient)
			report.Deliveries[i] = d
			if errors.Is(d.Err, domain.ErrCapabilityUnavailable) {
				return d.Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	for _, d := range report.Deliveries {
		if d.Err == nil {
			report.Successful++
		} else {
			report.Failed++
		}
	}
	s.log.Info("private event published",
		"rumor", short(rumor.ID), "kind", rumor.Kind,
		"successful", report.Successful, "failed", report.Failed)
	if report.Successful == 0 {
		return report, ErrNoRecipientDelivered
	}
	return report, nil
}

func (s *Service) deliver(ctx context.Context, rumor domain.Rumor, sender domain.Signer, recipient string) Delivery {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RecipientTimeout)
	defer cancel()

	d := Delivery{Recipient: recipient}
	seal, err := envelope.Seal(ctx, rumor, sender, recipient)
	if err != nil {
		d.Err = err
		return d
	}
	gw, err := envelope.GiftWrap(seal, recipient)
	if err != nil {
		d.Err = err
		return d
	}
	d.GiftWrapID = gw.ID
	d.Relays = s.resolver.WriteRelays(ctx, recipient, domain.PurposePrivate)

	res := s.transport.Publish(ctx, gw.Event, d.Relays)
	d.Accepted = res.Accepted
	if !res.OK() {
		d.Err = joinFailures(res)
		s.log.Warn("gift wrap not delivered",
			"recipient", short(recipient), "relays", len(d.Relays), "err", d.Err)
	}
	return d
}

// PublishPublic signs ev with signer and sends it to the author's write
// relays plus the read relays of every p-tagged participant.
func (s *Service) PublishPublic(
	ctx context.Context,
	signer domain.Signer,
	ev domain.Event,
) (domain.PublishResult, error) {
	if ev.CreatedAt == 0 {
		ev.CreatedAt = time.Now().Unix()
	}
	ev.Tags = ev.Tags.Clone()
	if err := signer.SignEvent(ctx, &ev); err != nil {
		return domain.PublishResult{}, fmt.Errorf("sign event: %w", err)
	}
	participants := envelope.ExtractParticipants(domain.RumorFromEvent(ev))
	urls := PublicRelays(ctx, s.resolver, ev.PubKey, participants, s.cfg.MaxPublicRelays)

	res := s.transport.Publish(ctx, ev, urls)
	if !res.OK() {
		return res, fmt.Errorf("%w: %w", ErrNotDelivered, joinFailures(res))
	}
	s.log.Info("public event published",
		"event", short(ev.ID), "kind", ev.Kind, "accepted", len(res.Accepted), "failed", len(res.Failed))
	return res, nil
}

// Listen streams private calendar events addressed to recipient from its
// inbox relays until ctx ends.
func (s *Service) Listen(
	ctx context.Context,
	recipient domain.Signer,
	since *int64,
) (<-chan domain.CalendarEvent, error) {
	pub, err := recipient.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	relays := InboxRelays(ctx, s.resolver, pub)
	s.log.Info("listening", "pubkey", short(pub), "relays", len(relays))

	p := ingest.New(s.transport, recipient, ingest.Config{
		Concurrency: s.cfg.DecryptConcurrency,
		ItemTimeout: s.cfg.DecryptTimeout,
		Cache:       s.cfg.Cache,
		Logger:      s.cfg.Logger,
		Metrics:     s.cfg.Metrics,
	})
	return p.Run(ctx, relays, since)
}

func joinFailures(res domain.PublishResult) error {
	if len(res.Failed) == 0 {
		return ErrNotDelivered
	}
	errs := make([]error, 0, len(res.Failed))
	for _, err := range res.Failed {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func short(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
