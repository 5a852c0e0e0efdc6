package types_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privcal/internal/domain/types"
)

func TestFilter_JSON(t *testing.T) {
	since := int64(100)
	f := types.Filter{
		Kinds: []int{types.KindGiftWrap},
		Tags:  map[string][]string{"p": {"abc"}},
		Since: &since,
		Limit: 10,
	}
	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kinds":[1059],"#p":["abc"],"since":100,"limit":10}`, string(b))

	var back types.Filter
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, f, back)

	b, err = json.Marshal(types.Filter{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(b))
}

func TestFilter_Matches(t *testing.T) {
	ev := types.Event{
		ID: "id1", PubKey: "alice", CreatedAt: 500, Kind: types.KindGiftWrap,
		Tags: types.Tags{{"p", "bob"}, {"p", "carol"}},
	}
	lo, hi := int64(400), int64(600)
	tooLate := int64(501)

	assert.True(t, types.Filter{}.Matches(ev))
	assert.True(t, types.Filter{IDs: []string{"id1"}, Authors: []string{"alice"}}.Matches(ev))
	assert.True(t, types.Filter{Tags: map[string][]string{"p": {"x", "carol"}}}.Matches(ev))
	assert.True(t, types.Filter{Since: &lo, Until: &hi, Limit: 1}.Matches(ev))

	assert.False(t, types.Filter{Kinds: []int{types.KindSeal}}.Matches(ev))
	assert.False(t, types.Filter{Authors: []string{"bob"}}.Matches(ev))
	assert.False(t, types.Filter{Tags: map[string][]string{"p": {"dave"}}}.Matches(ev))
	assert.False(t, types.Filter{Tags: map[string][]string{"e": {"bob"}}}.Matches(ev))
	assert.False(t, types.Filter{Since: &tooLate}.Matches(ev))
}

func TestEvent_CanonicalID(t *testing.T) {
	ev := types.Event{
		PubKey:    "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",
		CreatedAt: 1700000000,
		Kind:      1,
		Content:   "<b>&</b>",
	}
	id := ev.ComputeID()
	assert.Len(t, id, 64)

	// nil and empty tags serialize identically.
	ev.Tags = types.Tags{}
	assert.Equal(t, id, ev.ComputeID())

	r := types.RumorFromEvent(ev)
	r.ID = r.ComputeID()
	assert.True(t, r.VerifyID())
	r.Content += "!"
	assert.False(t, r.VerifyID())

	b, err := json.Marshal(types.Event{})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"tags":[]`)
}

func TestEvent_CanonicalIDUsesNIP01Escaping(t *testing.T) {
	const pub = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	ev := types.Event{
		PubKey:    pub,
		CreatedAt: 1700000000,
		Kind:      1,
		Tags:      types.Tags{{"t", "tab\there"}, {"e"}},
		Content:   "a\u2028b\u2029c\x01d\"e\\f\ng\rh\bi\fj<&>",
	}
	serialized := "[0,\"" + pub + "\",1700000000,1,[[\"t\",\"tab\\there\"],[\"e\"]]," +
		"\"a\u2028b\u2029c\x01d\\\"e\\\\f\\ng\\rh\\bi\\fj<&>\"]"
	sum := sha256.Sum256([]byte(serialized))
	assert.Equal(t, hex.EncodeToString(sum[:]), ev.ComputeID())
}

func TestClassify(t *testing.T) {
	seal := types.Event{Kind: types.KindSeal, Content: "x"}
	env, err := types.Classify(seal)
	require.NoError(t, err)
	assert.IsType(t, types.Seal{}, env)

	gw := types.Event{Kind: types.KindGiftWrap, Content: "x", Tags: types.Tags{{"p", "bob"}}}
	env, err = types.Classify(gw)
	require.NoError(t, err)
	require.IsType(t, types.GiftWrap{}, env)
	assert.Equal(t, "bob", env.(types.GiftWrap).Recipient())

	env, err = types.Classify(types.Event{Kind: types.KindTimeEvent, ID: "r"})
	require.NoError(t, err)
	assert.Equal(t, "r", env.EnvelopeID())
	assert.IsType(t, types.Rumor{}, env)

	_, err = types.Classify(types.Event{Kind: types.KindSeal, Content: "x", Tags: types.Tags{{"p", "bob"}}})
	require.ErrorIs(t, err, types.ErrEnvelopeMalformed)
	_, err = types.Classify(types.Event{Kind: types.KindGiftWrap, Content: "x"})
	require.ErrorIs(t, err, types.ErrEnvelopeMalformed)
}

func TestPurpose(t *testing.T) {
	p, err := types.ParsePurpose("private")
	require.NoError(t, err)
	assert.Equal(t, types.KindPrivateRelays, p.Kind())
	assert.Equal(t, types.KindRelayList, types.PurposeGeneral.Kind())
	_, err = types.ParsePurpose("other")
	require.Error(t, err)
}

func TestCalendarEventFromRumor(t *testing.T) {
	r := types.Rumor{ID: "i", Kind: types.KindCalendarRSVP, PubKey: "a", Tags: types.Tags{{"a", "x"}}}
	ev := types.NewCalendarEvent(r)
	assert.Equal(t, types.SourcePrivate, ev.Source)
	ev.Tags[0][1] = "changed"
	assert.Equal(t, "x", r.Tags[0][1])
	assert.True(t, types.IsCalendarKind(types.KindDateEvent))
	assert.False(t, types.IsCalendarKind(types.KindSeal))
}
