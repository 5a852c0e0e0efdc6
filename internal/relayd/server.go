package relayd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"privcal/internal/crypto"
	"privcal/internal/domain"
	"privcal/internal/relay"
)

const (
	ephemeralKindLow  = 20000
	ephemeralKindHigh = 30000
	authMaxAge        = 10 * time.Minute
	writeWait         = 10 * time.Second
)

// Options configure a Server.
type Options struct {
	// URL is the relay's public URL. When set, AUTH events must name it.
	URL                 string
	ProtectGiftWraps    bool
	RequireAuthForWrite bool
	Logger              *slog.Logger
}

// Server is an http.Handler speaking NIP-01 and NIP-42 over websockets.
type Server struct {
	opts     Options
	store    *Store
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New returns a server with an empty store.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		opts:  opts,
		store: NewStore(),
		log:   log.With("component", "relayd"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Store exposes the event store.
func (s *Server) Store() *Store { return s.store }

// Publish stores and broadcasts ev as if a client had sent it.
func (s *Server) Publish(ev domain.Event) bool {
	ok, _ := s.accept(ev)
	return ok
}

// DropConnections closes every client connection without a close frame,
// as a crashed relay would.
func (s *Server) DropConnections() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		_ = c.ws.Close()
	}
}

// ServeHTTP upgrades the request and serves the connection until it ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := &client{
		srv:       s,
		ws:        ws,
		subs:      make(map[string][]domain.Filter),
		challenge: uuid.NewString(),
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	c.send(relay.Frame{Label: relay.LabelAuth, Message: c.challenge})
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		f, err := relay.ParseFrame(data)
		if err != nil {
			c.send(relay.Frame{Label: relay.LabelNotice, Message: "error: " + err.Error()})
			continue
		}
		c.handle(f)
	}
}

// accept stores ev and fans it out to live subscriptions.
func (s *Server) accept(ev domain.Event) (bool, string) {
	if ev.Kind < ephemeralKindLow || ev.Kind >= ephemeralKindHigh {
		if ok, reason := s.store.Save(ev); !ok {
			return false, reason
		}
	}
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.deliver(ev)
	}
	return true, ""
}

type client struct {
	srv *Server
	ws  *websocket.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	subs      map[string][]domain.Filter
	challenge string
	authed    string
}

func (c *client) send(f relay.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *client) authedPubKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authed
}

func (c *client) handle(f relay.Frame) {
	switch f.Label {
	case relay.LabelEvent:
		c.handleEvent(f.Event)
	case relay.LabelReq:
		c.handleReq(f.SubID, f.Filters)
	case relay.LabelClose:
		c.mu.Lock()
		delete(c.subs, f.SubID)
		c.mu.Unlock()
	case relay.LabelAuth:
		c.handleAuth(f.Event)
	default:
		c.send(relay.Frame{Label: relay.LabelNotice, Message: "error: unsupported " + f.Label})
	}
}

func (c *client) handleEvent(ev domain.Event) {
	ok := func(accepted bool, msg string) {
		c.send(relay.Frame{Label: relay.LabelOK, EventID: ev.ID, Accepted: accepted, Message: msg})
	}
	if !crypto.VerifyEvent(ev) {
		ok(false, relay.PrefixInvalid+" bad id or signature")
		return
	}
	if c.srv.opts.RequireAuthForWrite && c.authedPubKey() == "" {
		ok(false, relay.PrefixAuthRequired+" publishing requires authentication")
		c.rechallenge()
		return
	}
	if ev.Kind == domain.KindClientAuth {
		ok(false, relay.PrefixInvalid+" auth events go in AUTH messages")
		return
	}
	accepted, reason := c.srv.accept(ev)
	ok(accepted, reason)
}

func (c *client) handleReq(subID string, filters []domain.Filter) {
	if subID == "" || len(filters) == 0 {
		c.send(relay.Frame{Label: relay.LabelClosed, SubID: subID, Message: relay.PrefixInvalid + " empty subscription"})
		return
	}
	if c.srv.opts.ProtectGiftWraps && c.authedPubKey() == "" && mayMatchGiftWraps(filters) {
		c.send(relay.Frame{
			Label:   relay.LabelClosed,
			SubID:   subID,
			Message: relay.PrefixAuthRequired + " gift wraps are only served to their recipient",
		})
		c.rechallenge()
		return
	}
	c.mu.Lock()
	c.subs[subID] = filters
	c.mu.Unlock()

	for _, ev := range c.srv.store.Query(filters) {
		if c.mayRead(ev) {
			c.send(relay.Frame{Label: relay.LabelEvent, SubID: subID, Event: ev})
		}
	}
	c.send(relay.Frame{Label: relay.LabelEOSE, SubID: subID})
}

func (c *client) handleAuth(ev domain.Event) {
	reject := func(msg string) {
		c.send(relay.Frame{Label: relay.LabelOK, EventID: ev.ID, Accepted: false, Message: relay.PrefixInvalid + " " + msg})
	}
	if ev.Kind != domain.KindClientAuth {
		reject("wrong kind")
		return
	}
	if !crypto.VerifyEvent(ev) {
		reject("bad signature")
		return
	}
	if age := time.Since(time.Unix(ev.CreatedAt, 0)); age > authMaxAge || age < -authMaxAge {
		reject("stale auth event")
		return
	}
	c.mu.Lock()
	challenge := c.challenge
	c.mu.Unlock()
	if got, _ := ev.Tags.First("challenge"); got.Value() != challenge {
		reject("challenge mismatch")
		return
	}
	if want := c.srv.opts.URL; want != "" {
		got, _ := ev.Tags.First("relay")
		norm, err := relay.NormalizeURL(got.Value())
		if err != nil || norm != want {
			reject(fmt.Sprintf("relay tag %q", got.Value()))
			return
		}
	}
	c.mu.Lock()
	c.authed = ev.PubKey
	c.mu.Unlock()
	c.send(relay.Frame{Label: relay.LabelOK, EventID: ev.ID, Accepted: true})
	c.srv.log.Debug("client authenticated", "pubkey", ev.PubKey[:12])
}

// rechallenge repeats the current challenge. Clients ignore challenges they
// are already answering.
func (c *client) rechallenge() {
	c.mu.Lock()
	challenge := c.challenge
	c.mu.Unlock()
	c.send(relay.Frame{Label: relay.LabelAuth, Message: challenge})
}

// deliver sends ev on every subscription it matches.
func (c *client) deliver(ev domain.Event) {
	if !c.mayRead(ev) {
		return
	}
	c.mu.Lock()
	var ids []string
	for id, filters := range c.subs {
		if slices.ContainsFunc(filters, func(f domain.Filter) bool { return f.Matches(ev) }) {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()
	for _, id := range ids {
		c.send(relay.Frame{Label: relay.LabelEvent, SubID: id, Event: ev})
	}
}

func (c *client) mayRead(ev domain.Event) bool {
	if !c.srv.opts.ProtectGiftWraps || ev.Kind != domain.KindGiftWrap {
		return true
	}
	authed := c.authedPubKey()
	return authed != "" && slices.Contains(ev.Tags.Values("p"), authed)
}

func mayMatchGiftWraps(filters []domain.Filter) bool {
	for _, f := range filters {
		if len(f.Kinds) == 0 || slices.Contains(f.Kinds, domain.KindGiftWrap) {
			return true
		}
	}
	return false
}
