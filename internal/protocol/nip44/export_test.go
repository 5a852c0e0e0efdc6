package nip44

var CalcPaddedLen = calcPaddedLen

// EncryptWithNonce exposes deterministic encryption to tests.
func EncryptWithNonce(plaintext string, key ConversationKey, nonce [32]byte) (string, error) {
	return encrypt(plaintext, key, nonce)
}
