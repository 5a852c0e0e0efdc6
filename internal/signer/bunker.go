package signer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"privcal/internal/crypto"
	"privcal/internal/domain"
)

// DefaultBunkerTimeout bounds each remote call when BunkerConfig.Timeout is zero.
const DefaultBunkerTimeout = 10 * time.Second

// BunkerTransport is the part of the relay pool a Bunker uses.
type BunkerTransport interface {
	domain.RelayPublisher
	domain.RelaySubscriber
}

// BunkerConfig addresses a NIP-46 remote signer.
type BunkerConfig struct {
	RemotePubKey string
	Relays       []string
	Secret       string
	Timeout      time.Duration
	Logger       *slog.Logger
}

// ParseBunkerURL reads "bunker://<remote-pubkey>?relay=<url>&secret=<s>".
func ParseBunkerURL(raw string) (BunkerConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return BunkerConfig{}, fmt.Errorf("bunker url: %w", err)
	}
	if u.Scheme != "bunker" {
		return BunkerConfig{}, fmt.Errorf("bunker url: scheme %q", u.Scheme)
	}
	if !crypto.ValidPublicKey(u.Host) {
		return BunkerConfig{}, fmt.Errorf("bunker url: %w", crypto.ErrInvalidKey)
	}
	q := u.Query()
	cfg := BunkerConfig{RemotePubKey: u.Host, Relays: q["relay"], Secret: q.Get("secret")}
	if len(cfg.Relays) == 0 {
		return BunkerConfig{}, errors.New("bunker url: no relay")
	}
	return cfg, nil
}

type bunkerRequest struct {
	ID     string   `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type bunkerResponse struct {
	ID     string `json:"id"`
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Bunker forwards every capability call to a remote signer. Requests and
// responses are kind 24133 events encrypted between a throwaway client key
// and the remote signer key.
type Bunker struct {
	transport BunkerTransport
	cfg       BunkerConfig
	client    *Local
	clientPub string
	sub       domain.Subscription
	log       *slog.Logger

	mu      sync.Mutex
	pending map[string]chan bunkerResponse
	userPub string
	closed  bool
}

// ConnectBunker opens the response subscription, sends connect and caches
// the user public key.
func ConnectBunker(ctx context.Context, t BunkerTransport, cfg BunkerConfig) (*Bunker, error) {
	if !crypto.ValidPublicKey(cfg.RemotePubKey) {
		return nil, fmt.Errorf("bunker remote: %w", crypto.ErrInvalidKey)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBunkerTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	client, err := Generate()
	if err != nil {
		return nil, err
	}
	clientPub, _ := client.PublicKey(ctx)

	since := time.Now().Add(-time.Minute).Unix()
	sub, err := t.Subscribe(ctx, []domain.Filter{{
		Kinds:   []int{domain.KindRemoteSigning},
		Authors: []string{cfg.RemotePubKey},
		Tags:    map[string][]string{"p": {clientPub}},
		Since:   &since,
	}}, cfg.Relays)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("bunker subscribe: %w", err)
	}

	b := &Bunker{
		transport: t,
		cfg:       cfg,
		client:    client,
		clientPub: clientPub,
		sub:       sub,
		log:       log.With("component", "bunker", "remote", cfg.RemotePubKey[:12]),
		pending:   make(map[string]chan bunkerResponse),
	}
	go b.readLoop()

	if _, err := b.call(ctx, "connect", cfg.RemotePubKey, cfg.Secret); err != nil {
		b.Close()
		return nil, err
	}
	pub, err := b.call(ctx, "get_public_key")
	if err != nil {
		b.Close()
		return nil, err
	}
	if !crypto.ValidPublicKey(pub) {
		b.Close()
		return nil, fmt.Errorf("bunker user key: %w", crypto.ErrInvalidKey)
	}
	b.mu.Lock()
	b.userPub = pub
	b.mu.Unlock()
	return b, nil
}

// PublicKey returns the user key announced by the remote signer.
func (b *Bunker) PublicKey(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", ErrClosed
	}
	return b.userPub, nil
}

// SignEvent asks the remote signer to sign ev and checks the result.
func (b *Bunker) SignEvent(ctx context.Context, ev *domain.Event) error {
	pub, err := b.PublicKey(ctx)
	if err != nil {
		return err
	}
	tmpl := *ev
	tmpl.PubKey = pub
	tmpl.ID, tmpl.Sig = "", ""
	raw, err := json.Marshal(tmpl)
	if err != nil {
		return err
	}
	result, err := b.call(ctx, "sign_event", string(raw))
	if err != nil {
		return err
	}
	var signed domain.Event
	if err := json.Unmarshal([]byte(result), &signed); err != nil {
		return fmt.Errorf("%w: sign_event result: %v", ErrRemote, err)
	}
	if signed.PubKey != pub || !crypto.VerifyEvent(signed) {
		return ErrUnexpectedSignature
	}
	*ev = signed
	return nil
}

// Encrypt asks the remote signer for a NIP-44 payload.
func (b *Bunker) Encrypt(ctx context.Context, peerPubKey, plaintext string) (string, error) {
	return b.call(ctx, "nip44_encrypt", peerPubKey, plaintext)
}

// Decrypt asks the remote signer to open a NIP-44 payload.
func (b *Bunker) Decrypt(ctx context.Context, peerPubKey, ciphertext string) (string, error) {
	return b.call(ctx, "nip44_decrypt", peerPubKey, ciphertext)
}

// Close stops the response subscription and fails outstanding calls.
func (b *Bunker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
	b.mu.Unlock()
	b.sub.Close()
	b.client.Close()
}

func (b *Bunker) call(ctx context.Context, method string, params ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	req := bunkerRequest{ID: uuid.NewString(), Method: method, Params: params}
	if req.Params == nil {
		req.Params = []string{}
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	content, err := b.client.Encrypt(ctx, b.cfg.RemotePubKey, string(raw))
	if err != nil {
		return "", err
	}
	ev := domain.Event{
		Kind:      domain.KindRemoteSigning,
		CreatedAt: time.Now().Unix(),
		Tags:      domain.Tags{{"p", b.cfg.RemotePubKey}},
		Content:   content,
	}
	if err := b.client.SignEvent(ctx, &ev); err != nil {
		return "", err
	}

	ch := make(chan bunkerResponse, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", ErrClosed
	}
	b.pending[req.ID] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
	}()

	if res := b.transport.Publish(ctx, ev, b.cfg.Relays); !res.OK() {
		return "", fmt.Errorf("bunker %s: no relay accepted the request", method)
	}
	b.log.Debug("bunker request sent", "method", method, "id", req.ID)

	select {
	case resp, ok := <-ch:
		if !ok {
			return "", ErrClosed
		}
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s: %s", ErrRemote, method, resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return "", fmt.Errorf("bunker %s: %w", method, ctx.Err())
	}
}

func (b *Bunker) readLoop() {
	for msg := range b.sub.Messages() {
		if msg.Type != domain.MessageEvent {
			continue
		}
		ev := msg.Event
		if ev.Kind != domain.KindRemoteSigning || ev.PubKey != b.cfg.RemotePubKey || !crypto.VerifyEvent(ev) {
			continue
		}
		plain, err := b.client.Decrypt(context.Background(), ev.PubKey, ev.Content)
		if err != nil {
			b.log.Debug("bunker response undecryptable", "relay", msg.Relay, "err", err)
			continue
		}
		var resp bunkerResponse
		if err := json.Unmarshal([]byte(plain), &resp); err != nil {
			continue
		}
		b.mu.Lock()
		if ch, ok := b.pending[resp.ID]; ok {
			select {
			case ch <- resp:
			default:
			}
		}
		b.mu.Unlock()
	}
}

var _ domain.SignerCipher = (*Bunker)(nil)
