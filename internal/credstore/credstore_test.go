package credstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/shelfscan/internal/crypto"
	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/kvstore"
)

func setupTestStore(t *testing.T) (*Store, *kvstore.Memory) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	kv := kvstore.NewMemory()
	store, err := New(context.Background(), kv, Config{EncryptionKey: key})
	require.NoError(t, err)
	return store, kv
}

type failingKV struct {
	err error
}

func (f *failingKV) Get(context.Context, string) (string, bool, error) { return "", false, f.err }
func (f *failingKV) Set(context.Context, string, string) error          { return f.err }
func (f *failingKV) Remove(context.Context, string) error               { return f.err }

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("fails with invalid encryption key", func(t *testing.T) {
		_, err := New(ctx, kvstore.NewMemory(), Config{EncryptionKey: "invalid-key"})
		assert.Error(t, err)
	})

	t.Run("generates key file if missing", func(t *testing.T) {
		t.Setenv(EnvEncryptionKey, "")
		keyPath := filepath.Join(t.TempDir(), "nested", "new-key")

		store, err := New(ctx, kvstore.NewMemory(), Config{KeyFilePath: keyPath})
		require.NoError(t, err)
		assert.NotNil(t, store)

		info, err := os.Stat(keyPath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("reuses an existing key file", func(t *testing.T) {
		t.Setenv(EnvEncryptionKey, "")
		keyPath := filepath.Join(t.TempDir(), "key")
		kv := kvstore.NewMemory()

		first, err := New(ctx, kv, Config{KeyFilePath: keyPath})
		require.NoError(t, err)
		require.NoError(t, first.Save(ctx, entities.Session{Token: "tok-123456789"}))

		second, err := New(ctx, kv, Config{KeyFilePath: keyPath})
		require.NoError(t, err)
		session, ok := second.Load(ctx)
		require.True(t, ok)
		assert.Equal(t, "tok-123456789", session.Token)
	})

	t.Run("uses key from environment", func(t *testing.T) {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		t.Setenv(EnvEncryptionKey, key)
		kv := kvstore.NewMemory()

		store, err := New(ctx, kv, Config{})
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, entities.Session{Token: "env-token"}))

		explicit, err := New(ctx, kv, Config{EncryptionKey: key})
		require.NoError(t, err)
		session, ok := explicit.Load(ctx)
		require.True(t, ok)
		assert.Equal(t, "env-token", session.Token)
	})

	t.Run("passphrase salt is persisted and reused", func(t *testing.T) {
		t.Setenv(EnvEncryptionKey, "")
		kv := kvstore.NewMemory()

		first, err := New(ctx, kv, Config{Passphrase: "correct horse"})
		require.NoError(t, err)
		require.NoError(t, first.Save(ctx, entities.Session{Token: "pass-token"}))

		salt, ok, err := kv.Get(ctx, saltKey)
		require.NoError(t, err)
		require.True(t, ok)
		assert.NotEmpty(t, salt)

		second, err := New(ctx, kv, Config{Passphrase: "correct horse"})
		require.NoError(t, err)
		session, ok := second.Load(ctx)
		require.True(t, ok)
		assert.Equal(t, "pass-token", session.Token)

		wrong, err := New(ctx, kv, Config{Passphrase: "wrong"})
		require.NoError(t, err)
		_, ok = wrong.Load(ctx)
		assert.False(t, ok)
	})
}

func TestSaveLoadClear(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store loads nothing", func(t *testing.T) {
		store, _ := setupTestStore(t)
		_, ok := store.Load(ctx)
		assert.False(t, ok)
		assert.False(t, store.Has(ctx))
	})

	t.Run("save then load returns the session", func(t *testing.T) {
		store, _ := setupTestStore(t)
		expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		saved := entities.Session{
			Token:     "abc-token-value",
			UserID:    "u-1",
			Email:     "reader@example.com",
			Name:      "Reader",
			ExpiresAt: &expiry,
		}
		require.NoError(t, store.Save(ctx, saved))

		loaded, ok := store.Load(ctx)
		require.True(t, ok)
		assert.Equal(t, saved.Token, loaded.Token)
		assert.Equal(t, saved.Email, loaded.Email)
		require.NotNil(t, loaded.ExpiresAt)
		assert.True(t, expiry.Equal(*loaded.ExpiresAt))
		assert.True(t, store.Has(ctx))
	})

	t.Run("stored value is encrypted", func(t *testing.T) {
		store, kv := setupTestStore(t)
		require.NoError(t, store.Save(ctx, entities.Session{Token: "plain-secret-token"}))

		raw, ok, err := kv.Get(ctx, entities.KVKeySession)
		require.NoError(t, err)
		require.True(t, ok)
		assert.NotContains(t, raw, "plain-secret-token")
	})

	t.Run("second save replaces the first", func(t *testing.T) {
		store, _ := setupTestStore(t)
		require.NoError(t, store.Save(ctx, entities.Session{Token: "first"}))
		require.NoError(t, store.Save(ctx, entities.Session{Token: "second"}))

		loaded, ok := store.Load(ctx)
		require.True(t, ok)
		assert.Equal(t, "second", loaded.Token)
	})

	t.Run("clear removes the session and is idempotent", func(t *testing.T) {
		store, kv := setupTestStore(t)
		require.NoError(t, store.Save(ctx, entities.Session{Token: "t"}))
		require.NoError(t, store.Clear(ctx))
		require.NoError(t, store.Clear(ctx))

		assert.False(t, store.Has(ctx))
		_, ok, err := kv.Get(ctx, entities.KVKeySession)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("fresh store reads the durable copy", func(t *testing.T) {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		kv := kvstore.NewMemory()

		writer, err := New(ctx, kv, Config{EncryptionKey: key})
		require.NoError(t, err)
		require.NoError(t, writer.Save(ctx, entities.Session{Token: "persisted"}))

		reader, err := New(ctx, kv, Config{EncryptionKey: key})
		require.NoError(t, err)
		loaded, ok := reader.Load(ctx)
		require.True(t, ok)
		assert.Equal(t, "persisted", loaded.Token)
	})

	t.Run("corrupted record reads as absent", func(t *testing.T) {
		store, kv := setupTestStore(t)
		require.NoError(t, kv.Set(ctx, entities.KVKeySession, "not-a-sealed-value"))

		_, ok := store.Load(ctx)
		assert.False(t, ok)
	})

	t.Run("storage failures surface on write and read as absent", func(t *testing.T) {
		enc, err := crypto.NewEncryptor(make([]byte, crypto.KeySize))
		require.NoError(t, err)
		store := NewWithEncryptor(&failingKV{err: errors.New("disk full")}, enc)

		assert.Error(t, store.Save(ctx, entities.Session{Token: "t"}))
		assert.Error(t, store.Clear(ctx))
		_, ok := store.Load(ctx)
		assert.False(t, ok)
	})
}

func TestClearIfToken(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestStore(t)
	require.NoError(t, store.Save(ctx, entities.Session{Token: "fresh"}))

	cleared, err := store.ClearIfToken(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, cleared)
	assert.True(t, store.Has(ctx))

	cleared, err = store.ClearIfToken(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.False(t, store.Has(ctx))
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestStore(t)

	tokens := map[string]bool{"": true}
	for _, tok := range []string{"alpha", "beta", "gamma", "delta"} {
		tokens[tok] = true
	}

	var wg sync.WaitGroup
	for _, tok := range []string{"alpha", "beta", "gamma", "delta"} {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = store.Save(ctx, entities.Session{Token: tok, Email: tok + "@example.com"})
			}
		}(tok)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				session, ok := store.Load(ctx)
				if !ok {
					continue
				}
				// Token and email always come from the same write.
				assert.True(t, tokens[session.Token])
				assert.Equal(t, session.Token+"@example.com", session.Email)
			}
		}()
	}
	wg.Wait()
}

func TestInspectToken(t *testing.T) {
	t.Run("reads subject and expiry", func(t *testing.T) {
		exp := time.Now().Add(time.Hour).Truncate(time.Second)
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "user-42",
			"exp": exp.Unix(),
		}).SignedString([]byte("server-secret"))
		require.NoError(t, err)

		claims, err := InspectToken(signed)
		require.NoError(t, err)
		assert.Equal(t, "user-42", claims.Subject)
		require.NotNil(t, claims.ExpiresAt)
		assert.True(t, exp.Equal(*claims.ExpiresAt))

		annotated := Annotate(entities.Session{Token: signed})
		assert.Equal(t, "user-42", annotated.UserID)
		assert.NotNil(t, annotated.ExpiresAt)
	})

	t.Run("opaque token is left alone", func(t *testing.T) {
		_, err := InspectToken("opaque-token")
		assert.Error(t, err)

		session := entities.Session{Token: "opaque-token", UserID: "kept"}
		assert.Equal(t, session, Annotate(session))
	})
}

func TestKeyFilePath(t *testing.T) {
	assert.Equal(t, "/custom/path", KeyFilePath("/custom/path"))
	assert.Contains(t, KeyFilePath(""), DefaultKeyFileName)
}
