package crypto

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"privcal/internal/domain"
)

// SignEvent sets PubKey, ID and Sig on ev using sk.
func SignEvent(sk domain.SecretKey, ev *domain.Event) error {
	priv, pub := btcec.PrivKeyFromBytes(sk[:])
	defer priv.Zero()

	ev.PubKey = hex.EncodeToString(schnorr.SerializePubKey(pub))
	if ev.Tags == nil {
		ev.Tags = domain.Tags{}
	}
	ev.ID = ev.ComputeID()
	id, err := hex.DecodeString(ev.ID)
	if err != nil {
		return err
	}
	sig, err := schnorr.Sign(priv, id)
	if err != nil {
		return fmt.Errorf("schnorr sign: %w", err)
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// VerifyEvent checks that ev's id matches its content and that Sig is a
// valid signature by PubKey over that id.
func VerifyEvent(ev domain.Event) bool {
	if ev.ID != ev.ComputeID() {
		return false
	}
	idBytes, err := hex.DecodeString(ev.ID)
	if err != nil {
		return false
	}
	sigBytes, err := hex.DecodeString(ev.Sig)
	if err != nil || len(sigBytes) != schnorr.SignatureSize {
		return false
	}
	pub, err := ParsePublicKey(ev.PubKey)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	return sig.Verify(idBytes, pub)
}
