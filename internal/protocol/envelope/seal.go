package envelope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"privcal/internal/crypto"
	"privcal/internal/domain"
)

// Seal encrypts rumor for recipient and signs the result as sender. The
// rumor must be authored by sender.
func Seal(ctx context.Context, rumor domain.Rumor, sender domain.Signer, recipient string) (domain.Seal, error) {
	cipher, err := cipherOf(sender)
	if err != nil {
		return domain.Seal{}, err
	}
	if !crypto.ValidPublicKey(recipient) {
		return domain.Seal{}, fmt.Errorf("seal recipient: %w", crypto.ErrInvalidKey)
	}
	author, err := sender.PublicKey(ctx)
	if err != nil {
		return domain.Seal{}, fmt.Errorf("seal author: %w", err)
	}
	if rumor.PubKey != author {
		return domain.Seal{}, fmt.Errorf("%w: rumor author is not the sealer", domain.ErrEnvelopeMalformed)
	}
	if rumor.ID == "" {
		rumor.ID = rumor.ComputeID()
	} else if !rumor.VerifyID() {
		return domain.Seal{}, fmt.Errorf("%w: rumor id mismatch", domain.ErrEnvelopeMalformed)
	}

	plain, err := json.Marshal(rumor)
	if err != nil {
		return domain.Seal{}, err
	}
	content, err := cipher.Encrypt(ctx, recipient, string(plain))
	if err != nil {
		return domain.Seal{}, fmt.Errorf("encrypt rumor: %w", err)
	}
	createdAt, err := crypto.RandomPastTimestamp(now())
	if err != nil {
		return domain.Seal{}, err
	}
	ev := domain.Event{
		Kind:      domain.KindSeal,
		CreatedAt: createdAt,
		Tags:      domain.Tags{},
		Content:   content,
	}
	if err := sender.SignEvent(ctx, &ev); err != nil {
		return domain.Seal{}, fmt.Errorf("sign seal: %w", err)
	}
	return domain.Seal{Event: ev}, nil
}

// Unseal verifies seal, decrypts it as recipient and returns the rumor
// inside. The rumor must be authored by the seal signer and its id must
// re-derive.
func Unseal(ctx context.Context, seal domain.Seal, recipient domain.Signer) (domain.Rumor, error) {
	cipher, err := cipherOf(recipient)
	if err != nil {
		return domain.Rumor{}, err
	}
	if _, err := domain.SealFromEvent(seal.Event); err != nil {
		return domain.Rumor{}, err
	}
	if !crypto.VerifyEvent(seal.Event) {
		return domain.Rumor{}, fmt.Errorf("%w: seal %s", domain.ErrSignatureInvalid, shortID(seal.ID))
	}
	plain, err := cipher.Decrypt(ctx, seal.PubKey, seal.Content)
	if err != nil {
		return domain.Rumor{}, decryptError("seal", err)
	}
	var rumor domain.Rumor
	if err := json.Unmarshal([]byte(plain), &rumor); err != nil {
		return domain.Rumor{}, fmt.Errorf("%w: rumor json: %v", domain.ErrEnvelopeMalformed, err)
	}
	if rumor.PubKey != seal.PubKey {
		return domain.Rumor{}, fmt.Errorf("%w: rumor author differs from seal signer", domain.ErrEnvelopeMalformed)
	}
	if !rumor.VerifyID() {
		return domain.Rumor{}, fmt.Errorf("%w: rumor id mismatch", domain.ErrEnvelopeMalformed)
	}
	if rumor.Tags == nil {
		rumor.Tags = domain.Tags{}
	}
	return rumor, nil
}

func cipherOf(s domain.Signer) (domain.Cipher, error) {
	c, ok := s.(domain.Cipher)
	if !ok {
		return nil, domain.ErrCapabilityUnavailable
	}
	return c, nil
}

// decryptError keeps capability and cancellation errors visible and folds
// everything else into ErrEnvelopeMalformed.
func decryptError(layer string, err error) error {
	switch {
	case errors.Is(err, domain.ErrCapabilityUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: decrypt %s: %w", domain.ErrEnvelopeMalformed, layer, err)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
