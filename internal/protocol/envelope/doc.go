// Package envelope builds and opens the double envelope used for private
// calendar delivery.
//
// # Layers
//
//	Rumor     unsigned event, id = sha256 of its canonical form
//	Seal      kind 13, no tags, signed by the author, content = Enc(author, recipient, rumor)
//	GiftWrap  kind 1059, one p tag, signed by a single-use key, content = Enc(ephemeral, recipient, seal)
//
// Seal and gift wrap timestamps are independently moved into the past by up
// to two days, so relays learn neither the author of a gift wrap nor when the
// rumor was written.
//
// # Errors
//
// Opening an envelope that was not addressed to the caller fails with
// domain.ErrEnvelopeMalformed. Readers treat that as ordinary traffic, not
// as a fault. domain.ErrCapabilityUnavailable means the signer cannot
// encrypt or decrypt at all.
package envelope
