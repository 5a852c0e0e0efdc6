package interfaces

import domaintypes "privcal/internal/domain/types"

// IdentityStore persists your long-term secret key.
type IdentityStore interface {
	SaveIdentity(passphrase string, id domaintypes.Identity) error
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
}

// RelayListStore keeps the last relay lists you published.
type RelayListStore interface {
	SaveRelayList(purpose domaintypes.Purpose, prefs []domaintypes.RelayPreference) error
	LoadRelayList(purpose domaintypes.Purpose) ([]domaintypes.RelayPreference, bool, error)
}
