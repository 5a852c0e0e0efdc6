package relay_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"privcal/internal/domain"
	"privcal/internal/relay"
)

func TestParseFrame_RelayMessages(t *testing.T) {
	cases := map[string]relay.Frame{
		`["EOSE","s1"]`:                      {Label: relay.LabelEOSE, SubID: "s1"},
		`["CLOSED","s1","auth-required: hi"]`: {Label: relay.LabelClosed, SubID: "s1", Message: "auth-required: hi"},
		`["OK","abc",false,"invalid: x"]`:    {Label: relay.LabelOK, EventID: "abc", Message: "invalid: x"},
		`["OK","abc",true]`:                  {Label: relay.LabelOK, EventID: "abc", Accepted: true},
		`["NOTICE","slow down"]`:             {Label: relay.LabelNotice, Message: "slow down"},
		`["AUTH","challenge-1"]`:             {Label: relay.LabelAuth, Message: "challenge-1"},
	}
	for in, want := range cases {
		got, err := relay.ParseFrame([]byte(in))
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestFrame_EventAndReqRoundTrip(t *testing.T) {
	since := int64(1700000000)
	ev := domain.Event{ID: "id1", PubKey: "pk", CreatedAt: 1, Kind: 1059, Tags: domain.Tags{{"p", "x"}}, Content: "c", Sig: "s"}

	for _, f := range []relay.Frame{
		{Label: relay.LabelEvent, Event: ev},
		{Label: relay.LabelEvent, SubID: "s1", Event: ev},
		{Label: relay.LabelAuth, Event: ev},
		{Label: relay.LabelReq, SubID: "s2", Filters: []domain.Filter{
			{Kinds: []int{1059}, Tags: map[string][]string{"p": {"x"}}, Since: &since},
			{Authors: []string{"pk"}, Limit: 1},
		}},
		{Label: relay.LabelClose, SubID: "s2"},
	} {
		data, err := json.Marshal(f)
		require.NoError(t, err)
		got, err := relay.ParseFrame(data)
		require.NoError(t, err)
		require.Equal(t, f, got)
	}
}

func TestParseFrame_Rejects(t *testing.T) {
	for _, in := range []string{`{}`, `["EOSE"]`, `["WHAT","x"]`, `["OK","id"]`, `["EVENT","s",{"kind":"x"}]`} {
		_, err := relay.ParseFrame([]byte(in))
		require.ErrorIs(t, err, relay.ErrBadFrame, in)
	}
}

func TestNormalizeURL(t *testing.T) {
	got, err := relay.NormalizeURL(" WSS://Relay.Example.COM/ ")
	require.NoError(t, err)
	require.Equal(t, "wss://relay.example.com", got)

	for _, bad := range []string{"https://relay.example.com", "relay.example.com", "wss://", "ws://user@host"} {
		_, err := relay.NormalizeURL(bad)
		require.ErrorIs(t, err, relay.ErrInvalidURL, bad)
	}

	require.Equal(t,
		[]string{"wss://a.example", "ws://b.example/path"},
		relay.NormalizeURLs([]string{"wss://a.example/", "bogus", "ws://b.example/path", "WSS://A.example"}),
	)
}
