package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"testing"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func encrypted(t *testing.T, next ports.StateStore, config middleware.EncryptionConfig) ports.StateStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(config)
	if err != nil {
		t.Fatalf("NewEncryptionMiddleware failed: %v", err)
	}
	return mw(next)
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlyingStore := newBackingStore()
	secureStore := encrypted(t, underlyingStore, middleware.EncryptionConfig{ActiveKey: generateKey(t)})

	ctx := context.Background()
	sessionID := "test-session"
	originalState := domain.NewState(sessionID, "order", "payment")
	originalState.Parameters["card"] = "4111-1111"
	originalState.TurnCount = 3

	if err := secureStore.Save(ctx, sessionID, originalState); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// The underlying store only sees the envelope.
	storedState, err := underlyingStore.Load(ctx, sessionID)
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if val, ok := storedState.Parameters["card"]; ok {
		t.Fatalf("Expected card to be hidden, found: %v", val)
	}
	if storedState.Page != "" || storedState.Flow != "" {
		t.Errorf("Expected flow and page to be hidden, got %q/%q", storedState.Flow, storedState.Page)
	}
	if storedState.TurnCount != 3 {
		t.Errorf("Expected turn count to stay visible, got %d", storedState.TurnCount)
	}

	loadedState, err := secureStore.Load(ctx, sessionID)
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if loadedState.Parameters["card"] != "4111-1111" || loadedState.Page != "payment" {
		t.Errorf("Unexpected decrypted state: %+v", loadedState)
	}
}

func TestEncryptionMiddleware_StoreContract(t *testing.T) {
	ports.RunStateStoreContract(t, encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlyingStore := newBackingStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	secureStoreOld := encrypted(t, underlyingStore, middleware.EncryptionConfig{ActiveKey: oldKey})

	ctx := context.Background()
	sessionID := "rotation-session"
	originalState := domain.NewState(sessionID, "main", domain.PageStart)
	originalState.Parameters["data"] = "encrypted-with-old-key"

	if err := secureStoreOld.Save(ctx, sessionID, originalState); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	secureStoreNew := encrypted(t, underlyingStore, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})

	loadedState, err := secureStoreNew.Load(ctx, sessionID)
	if err != nil {
		t.Fatalf("Load with rotated key failed: %v", err)
	}
	if loadedState.Parameters["data"] != "encrypted-with-old-key" {
		t.Errorf("Decryption with fallback key failed")
	}

	loadedState.Parameters["data"] = "encrypted-with-new-key"
	if err := secureStoreNew.Save(ctx, sessionID, loadedState); err != nil {
		t.Fatalf("Save with new key failed: %v", err)
	}

	if _, err := secureStoreOld.Load(ctx, sessionID); !errors.Is(err, middleware.ErrUndecryptable) {
		t.Errorf("Expected ErrUndecryptable with the old key only, got %v", err)
	}
}

func TestEncryptionMiddleware_BindsSessionID(t *testing.T) {
	underlyingStore := newBackingStore()
	secureStore := encrypted(t, underlyingStore, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	state := domain.NewState("alice", "main", domain.PageStart)
	state.Parameters["pin"] = "1234"
	if err := secureStore.Save(ctx, "alice", state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Copy alice's envelope under another id.
	envelope, err := underlyingStore.Load(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if err := underlyingStore.Save(ctx, "mallory", envelope); err != nil {
		t.Fatal(err)
	}
	if _, err := secureStore.Load(ctx, "mallory"); !errors.Is(err, middleware.ErrUndecryptable) {
		t.Errorf("Expected a copied envelope to stay sealed, got %v", err)
	}
}

func TestEncryptionMiddleware_RejectsPlainState(t *testing.T) {
	underlyingStore := newBackingStore()
	_ = underlyingStore.Save(context.Background(), "plain", domain.NewState("plain", "main", domain.PageStart))

	secureStore := encrypted(t, underlyingStore, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	if _, err := secureStore.Load(context.Background(), "plain"); !errors.Is(err, middleware.ErrNotEncrypted) {
		t.Errorf("Expected ErrNotEncrypted, got %v", err)
	}
	if _, err := secureStore.Load(context.Background(), "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	if _, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")}); !errors.Is(err, middleware.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("old")},
	})
	if !errors.Is(err, middleware.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey for fallback key, got %v", err)
	}
}

func TestParseKey(t *testing.T) {
	key := generateKey(t)
	for _, enc := range []string{base64.StdEncoding.EncodeToString(key), base64.URLEncoding.EncodeToString(key)} {
		got, err := middleware.ParseKey(enc)
		if err != nil {
			t.Fatalf("ParseKey(%q) failed: %v", enc, err)
		}
		if string(got) != string(key) {
			t.Error("ParseKey returned a different key")
		}
	}
	if _, err := middleware.ParseKey(base64.StdEncoding.EncodeToString([]byte("short"))); !errors.Is(err, middleware.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
	if _, err := middleware.ParseKey("%%%"); err == nil {
		t.Error("Expected error for non-base64 key")
	}
}
