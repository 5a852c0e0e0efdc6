// Package nip44 implements version 2 of the NIP-44 payload encryption used
// by seals and gift wraps.
//
// # Overview
//
// Two parties derive the same conversation key from secp256k1 ECDH:
//
//	shared = x(ECDH(sk_a, pk_b))
//	conversation_key = HKDF-Extract(salt="nip44-v2", ikm=shared)
//
// Each payload draws a random 32-byte nonce and expands per-message keys:
//
//	chacha_key || chacha_nonce || hmac_key = HKDF-Expand(conversation_key, nonce, 76)
//
// The plaintext is prefixed with its big-endian u16 length and zero-padded
// to a bucketed size so ciphertext length leaks little. The result is
//
//	base64(0x02 || nonce || ChaCha20(padded) || HMAC-SHA256(hmac_key, nonce || ciphertext))
//
// # Errors
//
// ErrInvalidMAC is what a reader sees when the payload was encrypted for a
// different key pair. Other errors report malformed payloads.
package nip44
