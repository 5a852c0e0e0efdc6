package signer_test

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"privcal/internal/crypto"
	"privcal/internal/domain"
	"privcal/internal/protocol/envelope"
	"privcal/internal/signer"
)

// memTransport delivers published events to matching in-process subscriptions.
type memTransport struct {
	mu   sync.Mutex
	subs []*memSub
}

type memSub struct {
	t       *memTransport
	filters []domain.Filter
	ch      chan domain.RelayMessage
	once    sync.Once
}

func (m *memTransport) Publish(_ context.Context, ev domain.Event, urls []string) domain.PublishResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		for _, f := range s.filters {
			if f.Matches(ev) {
				s.ch <- domain.RelayMessage{Relay: urls[0], Type: domain.MessageEvent, Event: ev}
				break
			}
		}
	}
	return domain.PublishResult{EventID: ev.ID, Accepted: urls}
}

func (m *memTransport) Subscribe(_ context.Context, filters []domain.Filter, _ []string) (domain.Subscription, error) {
	s := &memSub{t: m, filters: filters, ch: make(chan domain.RelayMessage, 64)}
	m.mu.Lock()
	m.subs = append(m.subs, s)
	m.mu.Unlock()
	return s, nil
}

func (s *memSub) Messages() <-chan domain.RelayMessage { return s.ch }

func (s *memSub) Close() {
	s.once.Do(func() {
		s.t.mu.Lock()
		s.t.subs = slices.DeleteFunc(s.t.subs, func(o *memSub) bool { return o == s })
		s.t.mu.Unlock()
		close(s.ch)
	})
}

// runRemoteSigner answers NIP-46 requests addressed to remote with user's key.
func runRemoteSigner(t *testing.T, tr *memTransport, remote, user *signer.Local, secret string) {
	t.Helper()
	ctx := context.Background()
	remotePub, _ := remote.PublicKey(ctx)
	sub, err := tr.Subscribe(ctx, []domain.Filter{{
		Kinds: []int{domain.KindRemoteSigning},
		Tags:  map[string][]string{"p": {remotePub}},
	}}, nil)
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	go func() {
		for msg := range sub.Messages() {
			req := msg.Event
			plain, err := remote.Decrypt(ctx, req.PubKey, req.Content)
			if err != nil {
				continue
			}
			var call struct {
				ID     string   `json:"id"`
				Method string   `json:"method"`
				Params []string `json:"params"`
			}
			if json.Unmarshal([]byte(plain), &call) != nil {
				continue
			}
			resp := map[string]string{"id": call.ID}
			switch call.Method {
			case "connect":
				if len(call.Params) < 2 || call.Params[1] != secret {
					resp["error"] = "bad secret"
				} else {
					resp["result"] = "ack"
				}
			case "get_public_key":
				resp["result"], _ = user.PublicKey(ctx)
			case "sign_event":
				var ev domain.Event
				_ = json.Unmarshal([]byte(call.Params[0]), &ev)
				if err := user.SignEvent(ctx, &ev); err != nil {
					resp["error"] = err.Error()
					break
				}
				raw, _ := json.Marshal(ev)
				resp["result"] = string(raw)
			case "nip44_encrypt":
				resp["result"], err = user.Encrypt(ctx, call.Params[0], call.Params[1])
			case "nip44_decrypt":
				resp["result"], err = user.Decrypt(ctx, call.Params[0], call.Params[1])
			default:
				resp["error"] = "unsupported"
			}
			if err != nil {
				resp["error"] = err.Error()
			}
			raw, _ := json.Marshal(resp)
			content, _ := remote.Encrypt(ctx, req.PubKey, string(raw))
			out := domain.Event{
				Kind:      domain.KindRemoteSigning,
				CreatedAt: time.Now().Unix(),
				Tags:      domain.Tags{{"p", req.PubKey}},
				Content:   content,
			}
			_ = remote.SignEvent(ctx, &out)
			go tr.Publish(ctx, out, []string{"mem://relay"})
		}
	}()
}

func newBunkerFixture(t *testing.T, secret string) (*memTransport, *signer.Local, string) {
	t.Helper()
	tr := &memTransport{}
	remote, err := signer.Generate()
	require.NoError(t, err)
	user, err := signer.Generate()
	require.NoError(t, err)
	runRemoteSigner(t, tr, remote, user, secret)
	remotePub, _ := remote.PublicKey(context.Background())
	return tr, user, remotePub
}

func TestParseBunkerURL(t *testing.T) {
	_, pub, err := crypto.GenerateSecretKey()
	require.NoError(t, err)

	cfg, err := signer.ParseBunkerURL("bunker://" + pub + "?relay=wss://a.example&relay=wss://b.example&secret=s3")
	require.NoError(t, err)
	require.Equal(t, pub, cfg.RemotePubKey)
	require.Equal(t, []string{"wss://a.example", "wss://b.example"}, cfg.Relays)
	require.Equal(t, "s3", cfg.Secret)

	_, err = signer.ParseBunkerURL("bunker://" + pub)
	require.Error(t, err)
	_, err = signer.ParseBunkerURL("nostrconnect://" + pub + "?relay=wss://a.example")
	require.Error(t, err)
	_, err = signer.ParseBunkerURL("bunker://abc?relay=wss://a.example")
	require.ErrorIs(t, err, crypto.ErrInvalidKey)
}

func TestBunker_ProxiesCapabilities(t *testing.T) {
	ctx := context.Background()
	tr, user, remotePub := newBunkerFixture(t, "s3cret")

	b, err := signer.ConnectBunker(ctx, tr, signer.BunkerConfig{
		RemotePubKey: remotePub,
		Relays:       []string{"mem://relay"},
		Secret:       "s3cret",
		Timeout:      2 * time.Second,
	})
	require.NoError(t, err)
	defer b.Close()

	userPub, _ := user.PublicKey(ctx)
	got, err := b.PublicKey(ctx)
	require.NoError(t, err)
	require.Equal(t, userPub, got)

	ev := domain.Event{Kind: 1, CreatedAt: 1700000000, Content: "remote"}
	require.NoError(t, b.SignEvent(ctx, &ev))
	require.Equal(t, userPub, ev.PubKey)
	require.True(t, crypto.VerifyEvent(ev))

	peer, err := signer.Generate()
	require.NoError(t, err)
	peerPub, _ := peer.PublicKey(ctx)
	ct, err := b.Encrypt(ctx, peerPub, "hello")
	require.NoError(t, err)
	pt, err := peer.Decrypt(ctx, userPub, ct)
	require.NoError(t, err)
	require.Equal(t, "hello", pt)
}

func TestBunker_SealsThroughEnvelopeCodec(t *testing.T) {
	ctx := context.Background()
	tr, _, remotePub := newBunkerFixture(t, "")

	b, err := signer.ConnectBunker(ctx, tr, signer.BunkerConfig{
		RemotePubKey: remotePub,
		Relays:       []string{"mem://relay"},
		Timeout:      2 * time.Second,
	})
	require.NoError(t, err)
	defer b.Close()

	recipient, err := signer.Generate()
	require.NoError(t, err)
	recipientPub, _ := recipient.PublicKey(ctx)

	rumor, err := envelope.CreateRumor(ctx, domain.Rumor{Kind: domain.KindTimeEvent, Content: "standup"}, b)
	require.NoError(t, err)
	wraps, err := envelope.WrapFor(ctx, rumor, b, []string{recipientPub})
	require.NoError(t, err)
	require.Len(t, wraps, 1)

	opened, err := envelope.UnwrapFull(ctx, wraps[0], recipient)
	require.NoError(t, err)
	require.Equal(t, rumor.ID, opened.ID)
}

func TestBunker_RemoteErrorAndTimeout(t *testing.T) {
	ctx := context.Background()
	tr, _, remotePub := newBunkerFixture(t, "right")

	_, err := signer.ConnectBunker(ctx, tr, signer.BunkerConfig{
		RemotePubKey: remotePub,
		Relays:       []string{"mem://relay"},
		Secret:       "wrong",
		Timeout:      2 * time.Second,
	})
	require.ErrorIs(t, err, signer.ErrRemote)

	_, silent, err := crypto.GenerateSecretKey()
	require.NoError(t, err)
	_, err = signer.ConnectBunker(ctx, tr, signer.BunkerConfig{
		RemotePubKey: silent,
		Relays:       []string{"mem://relay"},
		Timeout:      100 * time.Millisecond,
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
