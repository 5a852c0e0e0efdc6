package relay

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"privcal/internal/crypto"
	"privcal/internal/domain"
)

// Stream merges one subscription across relays.
type Stream struct {
	out    chan domain.RelayMessage
	cancel context.CancelFunc
	legs   sync.WaitGroup
	once   sync.Once
}

// Messages yields EVENT, EOSE and CLOSED messages from every relay. The
// channel closes after Close or once every leg has ended.
func (s *Stream) Messages() <-chan domain.RelayMessage { return s.out }

// Close cancels every leg and waits for them to exit.
func (s *Stream) Close() {
	s.once.Do(func() {
		s.cancel()
		s.legs.Wait()
	})
}

func (s *Stream) emit(ctx context.Context, m domain.RelayMessage) bool {
	select {
	case s.out <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pool) stream(ctx context.Context, filters []domain.Filter, urls []string, oneShot bool) (*Stream, error) {
	targets := NormalizeURLs(urls)
	if len(targets) == 0 {
		return nil, ErrNoRelays
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.legs.Add(len(targets))
	p.mu.Unlock()

	sctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.ctx, cancel)
	s := &Stream{out: make(chan domain.RelayMessage, 64), cancel: cancel}
	s.legs.Add(len(targets))
	for _, u := range targets {
		go func() {
			defer p.legs.Done()
			defer s.legs.Done()
			p.runLeg(sctx, s, u, filters, oneShot)
		}()
	}
	go func() {
		s.legs.Wait()
		stop()
		cancel()
		close(s.out)
	}()
	return s, nil
}

// runLeg keeps one relay's share of a stream alive until ctx ends, the
// relay refuses the subscription or, for one-shot queries, EOSE arrives.
// Lost connections and failed authentication are retried with backoff.
func (p *Pool) runLeg(ctx context.Context, s *Stream, u string, filters []domain.Filter, oneShot bool) {
	key := u + " " + filtersKey(filters)
	backoff := p.opts.MinBackoff
	for {
		c, err := p.connect(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.emit(ctx, domain.RelayMessage{Relay: u, Type: domain.MessageClosed, Reason: "error: " + err.Error()})
			if oneShot {
				return
			}
		} else {
			reconnect, progressed := p.runLegOn(ctx, s, c, key, filters, oneShot)
			if !reconnect {
				return
			}
			if progressed {
				backoff = p.opts.MinBackoff
			}
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = min(backoff*2, p.opts.MaxBackoff)
	}
}

// runLegOn serves the leg on one connection. It reports whether the leg
// should reconnect and whether any event arrived.
func (p *Pool) runLegOn(
	ctx context.Context,
	s *Stream,
	c *conn,
	key string,
	filters []domain.Filter,
	oneShot bool,
) (reconnect, progressed bool) {
	subID := uuid.NewString()
	frames := make(chan Frame, 64)
	c.subscribe(subID, sink{frames: frames, done: ctx.Done()})
	defer c.unsubscribe(subID)

	req := Frame{Label: LabelReq, SubID: subID, Filters: filters}
	if !oneShot {
		req.Filters = p.resumeFilters(key, filters)
	}
	if err := c.send(req); err != nil {
		s.emit(ctx, domain.RelayMessage{Relay: c.url, Type: domain.MessageClosed, Reason: "error: " + err.Error()})
		return !oneShot, false
	}

	authRetries := 0
	for {
		select {
		case <-ctx.Done():
			return false, progressed
		case <-c.done:
			reason := "error: connection lost"
			if err := c.lastError(); err != nil {
				reason += ": " + err.Error()
			}
			s.emit(ctx, domain.RelayMessage{Relay: c.url, Type: domain.MessageClosed, Reason: reason})
			return !oneShot, progressed
		case f := <-frames:
			switch f.Label {
			case LabelEvent:
				if !crypto.VerifyEvent(f.Event) {
					p.opts.Metrics.InvalidEvent()
					continue
				}
				progressed = true
				p.touch(key, f.Event.CreatedAt)
				if !s.emit(ctx, domain.RelayMessage{Relay: c.url, Type: domain.MessageEvent, Event: f.Event}) {
					return false, progressed
				}
			case LabelEOSE:
				if !s.emit(ctx, domain.RelayMessage{Relay: c.url, Type: domain.MessageEOSE}) || oneShot {
					return false, progressed
				}
			case LabelClosed:
				if !s.emit(ctx, domain.RelayMessage{Relay: c.url, Type: domain.MessageClosed, Reason: f.Message}) {
					return false, progressed
				}
				if !strings.HasPrefix(f.Message, PrefixAuthRequired) {
					return false, progressed
				}
				if authRetries >= maxAuthRetries {
					p.log.Debug("auth retries exhausted, reconnecting", "relay", c.url)
					c.close()
					return !oneShot, progressed
				}
				authRetries++
				if err := p.awaitAuth(ctx, c); err != nil {
					// A challenge is signed at most once, so the next attempt
					// needs a fresh connection and a fresh challenge.
					p.log.Debug("auth failed, reconnecting", "relay", c.url, "err", err)
					c.close()
					return !oneShot, progressed
				}
				c.subscribe(subID, sink{frames: frames, done: ctx.Done()})
				if err := c.send(req); err != nil {
					return !oneShot, progressed
				}
			}
		}
	}
}

// awaitAuth waits for c's session to authenticate, giving up when the
// exchange fails, the connection drops or the subscribe timeout passes.
func (p *Pool) awaitAuth(ctx context.Context, c *conn) error {
	wctx, cancel := context.WithTimeout(ctx, p.opts.SubscribeTimeout)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-wctx.Done():
		}
	}()
	return c.auth.wait(wctx)
}

// resumeFilters moves since forward to the newest event already seen on
// this leg, minus the resume window.
func (p *Pool) resumeFilters(key string, filters []domain.Filter) []domain.Filter {
	last, ok := p.lastSeen.Get(key)
	if !ok {
		return filters
	}
	since := last - int64(p.opts.ResumeWindow/time.Second)
	out := make([]domain.Filter, len(filters))
	for i, f := range filters {
		if f.Since == nil || *f.Since < since {
			f.Since = &since
		}
		out[i] = f
	}
	return out
}

func (p *Pool) touch(key string, createdAt int64) {
	if last, ok := p.lastSeen.Peek(key); ok && last >= createdAt {
		return
	}
	p.lastSeen.Add(key, createdAt)
}

func filtersKey(filters []domain.Filter) string {
	b, err := json.Marshal(filters)
	if err != nil {
		return ""
	}
	return string(b)
}

var _ domain.Subscription = (*Stream)(nil)

var _ domain.Transport = (*Pool)(nil)
