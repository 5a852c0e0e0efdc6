package app_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privcal/internal/app"
	"privcal/internal/domain"
	"privcal/internal/relay"
	"privcal/internal/relayd"
	"privcal/internal/signer"
)

const passphrase = "Correct-Horse-9"

func startRelay(t *testing.T) string {
	t.Helper()
	ts := httptest.NewUnstartedServer(nil)
	url := "ws://" + ts.Listener.Addr().String()
	ts.Config.Handler = relayd.New(relayd.Options{URL: url, ProtectGiftWraps: true})
	ts.Start()
	t.Cleanup(ts.Close)
	return url
}

func newSession(t *testing.T, relayURL string) *app.Session {
	t.Helper()
	cfg := app.DefaultConfig(t.TempDir())
	cfg.DefaultRelays = []string{relayURL}
	cfg.Timeouts.Lookup = time.Second
	cfg.Timeouts.Subscribe = 2 * time.Second
	s, err := app.NewSession(context.Background(), cfg, app.Options{})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNewSession_InvalidConfig(t *testing.T) {
	_, err := app.NewSession(context.Background(), app.Config{}, app.Options{})
	require.ErrorIs(t, err, app.ErrInvalidConfig)
}

func TestSession_UnlockRequiresIdentity(t *testing.T) {
	s := newSession(t, "ws://127.0.0.1:1")
	_, err := s.Unlock(context.Background(), "")
	require.ErrorIs(t, err, app.ErrPassphraseRequired)
	_, err = s.Unlock(context.Background(), passphrase)
	require.Error(t, err)
	_, _, err = s.Current()
	require.Error(t, err)
}

func TestSession_EndToEnd(t *testing.T) {
	ctx := context.Background()
	url := startRelay(t)

	alice := newSession(t, url)
	id, _, err := alice.Identities.GenerateIdentity(passphrase)
	require.NoError(t, err)
	sg, err := alice.Unlock(ctx, passphrase)
	require.NoError(t, err)

	_, err = alice.Resolver.Publish(ctx, sg, domain.PurposePrivate,
		[]domain.RelayPreference{{URL: url, Read: true, Write: true}})
	require.NoError(t, err)

	// Bob resolves Alice's private list from the relay and delivers to it.
	bob := newSession(t, url)
	bobSigner, err := signer.Generate()
	require.NoError(t, err)
	_, err = bob.UseSigner(ctx, bobSigner, bobSigner.Close)
	require.NoError(t, err)
	assert.Equal(t, []string{url}, bob.Resolver.WriteRelays(ctx, id.PublicKey, domain.PurposePrivate))

	report, err := bob.Messages.SendPrivate(ctx, bobSigner, domain.Rumor{
		Kind:    domain.KindDateEvent,
		Tags:    domain.Tags{{"d", "offsite"}, {"start", "2026-11-02"}, {"p", id.PublicKey}},
		Content: "team offsite",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Successful)

	_, sessionCtx, err := alice.Current()
	require.NoError(t, err)
	events, err := alice.Messages.Listen(sessionCtx, sg, nil)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, report.RumorID, ev.ID)
		assert.Equal(t, "team offsite", ev.Content)
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}

	require.Eventually(t, func() bool {
		return alice.Pool.Health()[url].Auth == relay.AuthAuthenticated
	}, 2*time.Second, 10*time.Millisecond)

	// Switching identity ends the listener and drops the relay's auth.
	other, err := signer.Generate()
	require.NoError(t, err)
	_, err = alice.UseSigner(ctx, other, other.Close)
	require.NoError(t, err)
	assert.ErrorIs(t, sessionCtx.Err(), context.Canceled)
	for range events {
	}
	assert.NotEqual(t, relay.AuthAuthenticated, alice.Pool.Health()[url].Auth)
}

// serveRemoteSigner answers NIP-46 requests for remote over relayURL, signing
// with user. It returns once its subscription is live.
func serveRemoteSigner(t *testing.T, relayURL string, remote, user *signer.Local) {
	t.Helper()
	ctx := context.Background()
	remotePub, _ := remote.PublicKey(ctx)
	pool := relay.NewPool(relay.Options{})
	t.Cleanup(pool.Close)

	sub, err := pool.Subscribe(ctx, []domain.Filter{{
		Kinds: []int{domain.KindRemoteSigning},
		Tags:  map[string][]string{"p": {remotePub}},
	}}, []string{relayURL})
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	for m := range sub.Messages() {
		if m.Type == domain.MessageEOSE {
			break
		}
	}

	go func() {
		for m := range sub.Messages() {
			if m.Type != domain.MessageEvent {
				continue
			}
			req := m.Event
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
				resp["result"] = "ack"
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
			default:
				resp["error"] = "unsupported"
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
			pool.Publish(ctx, out, []string{relayURL})
		}
	}()
}

func TestSession_UseBunkerSignsRightAway(t *testing.T) {
	ctx := context.Background()
	relayURL := startRelay(t)
	remote, err := signer.Generate()
	require.NoError(t, err)
	user, err := signer.Generate()
	require.NoError(t, err)
	remotePub, _ := remote.PublicKey(ctx)
	userPub, _ := user.PublicKey(ctx)
	serveRemoteSigner(t, relayURL, remote, user)

	s := newSession(t, relayURL)
	s.Config.Timeouts.Signer = 2 * time.Second
	sg, err := s.UseBunker(ctx, "bunker://"+remotePub+"?relay="+url.QueryEscape(relayURL))
	require.NoError(t, err)
	got, err := sg.PublicKey(ctx)
	require.NoError(t, err)
	require.Equal(t, userPub, got)

	// The first call after activation must not be lost to the identity
	// change resetting connections.
	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ev := domain.Event{Kind: 1, CreatedAt: time.Now().Unix(), Content: "via bunker"}
	require.NoError(t, sg.SignEvent(sctx, &ev))
	require.Equal(t, userPub, ev.PubKey)

	active, _, err := s.Current()
	require.NoError(t, err)
	require.Same(t, sg, active)
}

func TestSession_ReactivatingSameKeyKeepsConnections(t *testing.T) {
	ctx := context.Background()
	relayURL := startRelay(t)
	s := newSession(t, relayURL)
	key, err := signer.Generate()
	require.NoError(t, err)
	_, err = s.UseSigner(ctx, key, nil)
	require.NoError(t, err)

	ev := domain.Event{Kind: 1, CreatedAt: time.Now().Unix(), Content: "hello"}
	require.NoError(t, key.SignEvent(ctx, &ev))
	require.True(t, s.Pool.Publish(ctx, ev, []string{relayURL}).OK())
	require.True(t, s.Pool.Health()[relayURL].Connected)

	_, err = s.UseSigner(ctx, key, nil)
	require.NoError(t, err)
	require.Never(t, func() bool {
		return !s.Pool.Health()[relayURL].Connected
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestSession_MetricsRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := app.DefaultConfig(t.TempDir())
	s, err := app.NewSession(context.Background(), cfg, app.Options{Registerer: reg})
	require.NoError(t, err)
	defer s.Close()
	assert.Same(t, reg, s.Registry)
	require.NotNil(t, s.Metrics)
}
