package nip44

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"

	"privcal/internal/crypto"
	"privcal/internal/domain"
	"privcal/internal/util/memzero"
)

const (
	// Version is the payload version byte.
	Version = 0x02

	MinPlaintextSize = 1
	MaxPlaintextSize = 65535

	nonceSize      = 32
	macSize        = 32
	messageKeySize = chacha20.KeySize + chacha20.NonceSize + 32

	minPayloadSize = 132
	maxPayloadSize = 87472
	minDecodedSize = 99
	maxDecodedSize = 65603
)

var salt = []byte("nip44-v2")

var (
	ErrInvalidMAC         = errors.New("nip44: invalid mac")
	ErrUnsupportedVersion = errors.New("nip44: unsupported version")
	ErrInvalidPayload     = errors.New("nip44: invalid payload")
	ErrInvalidPlaintext   = errors.New("nip44: invalid plaintext length")
)

// ConversationKey is the symmetric key shared by a pair of public keys.
type ConversationKey [32]byte

// NewConversationKey derives the key shared by sk and peerPubKey. The
// result is symmetric: swapping the roles yields the same key.
func NewConversationKey(sk domain.SecretKey, peerPubKey string) (ConversationKey, error) {
	var key ConversationKey
	pub, err := crypto.ParsePublicKey(peerPubKey)
	if err != nil {
		return key, err
	}
	priv, _ := btcec.PrivKeyFromBytes(sk[:])
	defer priv.Zero()

	shared := btcec.GenerateSharedSecret(priv, pub)
	defer memzero.Zero(shared)

	prk := hkdf.Extract(sha256.New, shared, salt)
	copy(key[:], prk)
	memzero.Zero(prk)
	return key, nil
}

// Encrypt seals plaintext under key with a fresh random nonce.
func Encrypt(plaintext string, key ConversationKey) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	return encrypt(plaintext, key, nonce)
}

func encrypt(plaintext string, key ConversationKey, nonce [nonceSize]byte) (string, error) {
	chachaKey, chachaNonce, hmacKey, err := messageKeys(key, nonce[:])
	if err != nil {
		return "", err
	}
	defer memzero.Zero(chachaKey)
	defer memzero.Zero(hmacKey)

	padded, err := pad(plaintext)
	if err != nil {
		return "", err
	}
	cipher, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", err
	}
	ciphertext := make([]byte, len(padded))
	cipher.XORKeyStream(ciphertext, padded)
	memzero.Zero(padded)

	out := make([]byte, 0, 1+nonceSize+len(ciphertext)+macSize)
	out = append(out, Version)
	out = append(out, nonce[:]...)
	out = append(out, ciphertext...)
	out = append(out, authenticate(hmacKey, nonce[:], ciphertext)...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a payload produced by Encrypt under the same key.
func Decrypt(payload string, key ConversationKey) (string, error) {
	if payload == "" || payload[0] == '#' {
		return "", ErrUnsupportedVersion
	}
	if len(payload) < minPayloadSize || len(payload) > maxPayloadSize {
		return "", fmt.Errorf("%w: payload size %d", ErrInvalidPayload, len(payload))
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(data) < minDecodedSize || len(data) > maxDecodedSize {
		return "", fmt.Errorf("%w: decoded size %d", ErrInvalidPayload, len(data))
	}
	if data[0] != Version {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0])
	}
	nonce := data[1 : 1+nonceSize]
	ciphertext := data[1+nonceSize : len(data)-macSize]
	mac := data[len(data)-macSize:]

	chachaKey, chachaNonce, hmacKey, err := messageKeys(key, nonce)
	if err != nil {
		return "", err
	}
	defer memzero.Zero(chachaKey)
	defer memzero.Zero(hmacKey)

	if !hmac.Equal(mac, authenticate(hmacKey, nonce, ciphertext)) {
		return "", ErrInvalidMAC
	}
	cipher, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", err
	}
	padded := make([]byte, len(ciphertext))
	cipher.XORKeyStream(padded, ciphertext)
	return unpad(padded)
}

func messageKeys(key ConversationKey, nonce []byte) (chachaKey, chachaNonce, hmacKey []byte, err error) {
	if len(nonce) != nonceSize {
		return nil, nil, nil, fmt.Errorf("%w: nonce size %d", ErrInvalidPayload, len(nonce))
	}
	keys := make([]byte, messageKeySize)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, key[:], nonce), keys); err != nil {
		return nil, nil, nil, err
	}
	chachaKey = keys[:chacha20.KeySize]
	chachaNonce = keys[chacha20.KeySize : chacha20.KeySize+chacha20.NonceSize]
	hmacKey = keys[chacha20.KeySize+chacha20.NonceSize:]
	return chachaKey, chachaNonce, hmacKey, nil
}

func authenticate(hmacKey, nonce, ciphertext []byte) []byte {
	h := hmac.New(sha256.New, hmacKey)
	h.Write(nonce)
	h.Write(ciphertext)
	return h.Sum(nil)
}

// calcPaddedLen rounds n up to 32 bytes, then to 1/8 of the next power of
// two once messages exceed 256 bytes.
func calcPaddedLen(n int) int {
	if n <= 32 {
		return 32
	}
	nextPower := 1 << bits.Len(uint(n-1))
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * ((n-1)/chunk + 1)
}

func pad(plaintext string) ([]byte, error) {
	n := len(plaintext)
	if n < MinPlaintextSize || n > MaxPlaintextSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPlaintext, n)
	}
	out := make([]byte, 2+calcPaddedLen(n))
	binary.BigEndian.PutUint16(out, uint16(n))
	copy(out[2:], plaintext)
	return out, nil
}

func unpad(padded []byte) (string, error) {
	if len(padded) < 2 {
		return "", ErrInvalidPayload
	}
	n := int(binary.BigEndian.Uint16(padded))
	if n < MinPlaintextSize || len(padded) != 2+calcPaddedLen(n) {
		return "", fmt.Errorf("%w: bad padding", ErrInvalidPayload)
	}
	return string(padded[2 : 2+n]), nil
}
