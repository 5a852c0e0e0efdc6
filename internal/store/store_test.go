package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"privcal/internal/crypto"
	"privcal/internal/domain"
	"privcal/internal/store"
)

func newIdentity(t *testing.T) domain.Identity {
	t.Helper()
	sk, pub, err := crypto.GenerateSecretKey()
	require.NoError(t, err)
	return domain.Identity{SecretKey: sk, PublicKey: pub}
}

func TestIdentity_SaveLoad_OK(t *testing.T) {
	home := t.TempDir()
	var ids domain.IdentityStore = store.NewIdentityFileStore(home)

	id := newIdentity(t)
	require.NoError(t, ids.SaveIdentity("pass", id))

	got, err := ids.LoadIdentity("pass")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	info, err := os.Stat(filepath.Join(home, "identity.json.enc"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestIdentity_FileDoesNotContainSecret(t *testing.T) {
	home := t.TempDir()
	ids := store.NewIdentityFileStore(home)
	id := newIdentity(t)
	require.NoError(t, ids.SaveIdentity("pass", id))

	b, err := os.ReadFile(filepath.Join(home, "identity.json.enc"))
	require.NoError(t, err)
	assert.NotContains(t, string(b), id.PublicKey)
}

func TestIdentity_WrongPassphrase_Fails(t *testing.T) {
	ids := store.NewIdentityFileStore(t.TempDir())
	require.NoError(t, ids.SaveIdentity("correct", newIdentity(t)))

	_, err := ids.LoadIdentity("wrong")
	require.ErrorIs(t, err, store.ErrWrongPassphrase)
}

func TestIdentity_Missing(t *testing.T) {
	ids := store.NewIdentityFileStore(t.TempDir())
	assert.False(t, ids.Exists())
	_, err := ids.LoadIdentity("pass")
	require.ErrorIs(t, err, store.ErrNoIdentity)
}

func TestIdentity_CreatesHome(t *testing.T) {
	home := filepath.Join(t.TempDir(), "nested", "home")
	ids := store.NewIdentityFileStore(home)
	require.NoError(t, ids.SaveIdentity("pass", newIdentity(t)))
	assert.True(t, ids.Exists())
}

func TestRelayList_SaveLoad(t *testing.T) {
	home := t.TempDir()
	var rs domain.RelayListStore = store.NewRelayListFileStore(home)

	_, ok, err := rs.LoadRelayList(domain.PurposeGeneral)
	require.NoError(t, err)
	assert.False(t, ok)

	general := []domain.RelayPreference{
		{URL: "wss://a.example", Read: true, Write: true},
		{URL: "wss://b.example", Read: true},
	}
	private := []domain.RelayPreference{{URL: "wss://inbox.example", Read: true, Write: true}}
	require.NoError(t, rs.SaveRelayList(domain.PurposeGeneral, general))
	require.NoError(t, rs.SaveRelayList(domain.PurposePrivate, private))

	got, ok, err := rs.LoadRelayList(domain.PurposeGeneral)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, general, got)

	got, ok, err = rs.LoadRelayList(domain.PurposePrivate)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, private, got)

	require.NoError(t, rs.SaveRelayList(domain.PurposeGeneral, private))
	got, _, err = rs.LoadRelayList(domain.PurposeGeneral)
	require.NoError(t, err)
	assert.Equal(t, private, got)
}
