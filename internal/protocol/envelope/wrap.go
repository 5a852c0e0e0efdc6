package envelope

import (
	"context"
	"encoding/json"
	"fmt"

	"privcal/internal/crypto"
	"privcal/internal/domain"
	"privcal/internal/protocol/nip44"
	"privcal/internal/util/memzero"
)

// GiftWrap encrypts seal for recipient under a fresh single-use key and
// signs the wrapper with it. The key is wiped before returning.
func GiftWrap(seal domain.Seal, recipient string) (domain.GiftWrap, error) {
	if _, err := domain.SealFromEvent(seal.Event); err != nil {
		return domain.GiftWrap{}, err
	}
	ephemeral, _, err := crypto.GenerateSecretKey()
	if err != nil {
		return domain.GiftWrap{}, err
	}
	defer memzero.Zero(ephemeral[:])

	key, err := nip44.NewConversationKey(ephemeral, recipient)
	if err != nil {
		return domain.GiftWrap{}, fmt.Errorf("gift wrap recipient: %w", err)
	}
	defer memzero.Zero(key[:])

	plain, err := json.Marshal(seal.Event)
	if err != nil {
		return domain.GiftWrap{}, err
	}
	content, err := nip44.Encrypt(string(plain), key)
	if err != nil {
		return domain.GiftWrap{}, fmt.Errorf("encrypt seal: %w", err)
	}
	createdAt, err := crypto.RandomPastTimestamp(now())
	if err != nil {
		return domain.GiftWrap{}, err
	}
	ev := domain.Event{
		Kind:      domain.KindGiftWrap,
		CreatedAt: createdAt,
		Tags:      domain.Tags{{"p", recipient}},
		Content:   content,
	}
	if err := crypto.SignEvent(ephemeral, &ev); err != nil {
		return domain.GiftWrap{}, err
	}
	return domain.GiftWrap{Event: ev}, nil
}

// Unwrap decrypts gw as recipient and returns the seal inside.
func Unwrap(ctx context.Context, gw domain.GiftWrap, recipient domain.Signer) (domain.Seal, error) {
	cipher, err := cipherOf(recipient)
	if err != nil {
		return domain.Seal{}, err
	}
	if _, err := domain.GiftWrapFromEvent(gw.Event); err != nil {
		return domain.Seal{}, err
	}
	if !crypto.VerifyEvent(gw.Event) {
		return domain.Seal{}, fmt.Errorf("%w: gift wrap %s", domain.ErrSignatureInvalid, shortID(gw.ID))
	}
	plain, err := cipher.Decrypt(ctx, gw.PubKey, gw.Content)
	if err != nil {
		return domain.Seal{}, decryptError("gift wrap", err)
	}
	var ev domain.Event
	if err := json.Unmarshal([]byte(plain), &ev); err != nil {
		return domain.Seal{}, fmt.Errorf("%w: seal json: %v", domain.ErrEnvelopeMalformed, err)
	}
	return domain.SealFromEvent(ev)
}

// UnwrapFull opens both layers of gw.
func UnwrapFull(ctx context.Context, gw domain.GiftWrap, recipient domain.Signer) (domain.Rumor, error) {
	seal, err := Unwrap(ctx, gw, recipient)
	if err != nil {
		return domain.Rumor{}, err
	}
	return Unseal(ctx, seal, recipient)
}

// WrapFor seals and wraps rumor once per recipient, in order. A failure for
// any recipient aborts the whole call.
func WrapFor(
	ctx context.Context,
	rumor domain.Rumor,
	sender domain.Signer,
	recipients []string,
) ([]domain.GiftWrap, error) {
	out := make([]domain.GiftWrap, 0, len(recipients))
	for _, pk := range recipients {
		seal, err := Seal(ctx, rumor, sender, pk)
		if err != nil {
			return nil, err
		}
		gw, err := GiftWrap(seal, pk)
		if err != nil {
			return nil, err
		}
		out = append(out, gw)
	}
	return out, nil
}
