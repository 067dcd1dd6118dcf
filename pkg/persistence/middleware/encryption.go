package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// EncryptionConfig holds the AES-256 keys of the store.
type EncryptionConfig struct {
	// ActiveKey seals every session written from now on.
	ActiveKey []byte
	// FallbackKeys open sessions sealed before a key rotation. They are never used to seal.
	FallbackKeys [][]byte
}

// envelopeKey is the parameter holding the ciphertext of an encrypted session.
const envelopeKey = "__encrypted__"

var (
	// ErrInvalidKey is returned for keys that are not 32 bytes long.
	ErrInvalidKey = errors.New("encryption key must be 32 bytes (AES-256)")
	// ErrNotEncrypted is returned when a stored session carries no envelope.
	ErrNotEncrypted = errors.New("session is not encrypted")
	// ErrUndecryptable is returned when no configured key opens the envelope.
	ErrUndecryptable = errors.New("no configured key decrypts the session")
)

// keyring is the active AEAD first, then the fallbacks in rotation order.
type keyring []cipher.AEAD

type encryptionMiddleware struct {
	next ports.StateStore
	keys keyring
}

// NewEncryptionMiddleware seals whole sessions with AES-256-GCM. The wrapped store only
// sees an envelope: session id, liveness and timing stay readable, everything else
// (flow, page, parameters, return stack) travels in the ciphertext. The session id is
// bound as additional data, so an envelope copied to another id does not open.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	keys := make(keyring, 0, 1+len(config.FallbackKeys))
	for i, raw := range append([][]byte{config.ActiveKey}, config.FallbackKeys...) {
		aead, err := newAEAD(raw)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			return nil, fmt.Errorf("fallback key #%d: %w", i-1, err)
		}
		keys = append(keys, aead)
	}
	return func(next ports.StateStore) ports.StateStore {
		return &encryptionMiddleware{next: next, keys: keys}
	}, nil
}

// ParseKey decodes a base64 (standard or URL alphabet) AES-256 key.
func ParseKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if key, err = base64.URLEncoding.DecodeString(encoded); err != nil {
			return nil, fmt.Errorf("key is not base64: %w", err)
		}
	}
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	return key, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// seal returns nonce||ciphertext under the active key.
func (k keyring) seal(plain, sessionID []byte) ([]byte, error) {
	active := k[0]
	nonce := make([]byte, active.NonceSize(), active.NonceSize()+len(plain)+active.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return active.Seal(nonce, nonce, plain, sessionID), nil
}

func (k keyring) open(sealed, sessionID []byte) ([]byte, error) {
	for _, aead := range k {
		n := aead.NonceSize()
		if len(sealed) < n {
			continue
		}
		if plain, err := aead.Open(nil, sealed[:n], sealed[n:], sessionID); err == nil {
			return plain, nil
		}
	}
	return nil, ErrUndecryptable
}

func (m *encryptionMiddleware) Save(ctx context.Context, sessionID string, state *domain.State) error {
	plain, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	sealed, err := m.keys.seal(plain, []byte(sessionID))
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}
	return m.next.Save(ctx, sessionID, &domain.State{
		SessionID: state.SessionID,
		Closed:    state.Closed,
		TurnCount: state.TurnCount,
		UpdatedAt: state.UpdatedAt,
		Parameters: map[string]any{
			envelopeKey: base64.StdEncoding.EncodeToString(sealed),
		},
	})
}

func (m *encryptionMiddleware) Load(ctx context.Context, sessionID string) (*domain.State, error) {
	envelope, err := m.next.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	encoded, ok := envelope.Parameters[envelopeKey].(string)
	if !ok {
		return nil, fmt.Errorf("%s: %w", sessionID, ErrNotEncrypted)
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode envelope of %s: %w", sessionID, err)
	}
	plain, err := m.keys.open(sealed, []byte(sessionID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sessionID, err)
	}
	var state domain.State
	if err := json.Unmarshal(plain, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted state: %w", err)
	}
	return &state, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
