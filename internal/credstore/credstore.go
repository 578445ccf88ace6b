// Package credstore holds the current backend session, encrypted at rest in
// the durable key/value store and mirrored in memory for lock-free reads.
package credstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/mrlokans/shelfscan/internal/crypto"
	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/kvstore"
)

const (
	// EnvEncryptionKey is the environment variable for the encryption key
	EnvEncryptionKey = "CREDENTIAL_KEY"

	// DefaultKeyFileName is the default name for the key file
	DefaultKeyFileName = ".shelfscan-credential-key"

	saltKey = "credential_salt"
)

// Config controls how the encryption key is resolved.
type Config struct {
	// EncryptionKey is a base64-encoded 32-byte key. Highest priority.
	EncryptionKey string

	// Passphrase derives the key with Argon2id; the salt lives in the KV store.
	Passphrase string

	// KeyFilePath holds a generated key when nothing else is configured.
	// Defaults to ~/.shelfscan-credential-key
	KeyFilePath string
}

// Store is the Credential Store. All methods are safe for concurrent use.
// Readers never observe a partially written session: the durable copy is one
// sealed record replaced as a whole, and the in-memory copy is swapped
// atomically.
type Store struct {
	kv     kvstore.Store
	enc    *crypto.Encryptor
	logger *slog.Logger

	// writeMu orders durable writes with the in-memory swap.
	writeMu sync.Mutex
	current atomic.Pointer[entities.Session]
	loaded  atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store on top of kv, resolving the encryption key from cfg.
func New(ctx context.Context, kv kvstore.Store, cfg Config, opts ...Option) (*Store, error) {
	s := &Store{kv: kv, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	enc, err := s.resolveEncryptor(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve encryption key: %w", err)
	}
	s.enc = enc

	return s, nil
}

// NewWithEncryptor creates a Store with an already-built Encryptor.
func NewWithEncryptor(kv kvstore.Store, enc *crypto.Encryptor, opts ...Option) *Store {
	s := &Store{kv: kv, enc: enc, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) resolveEncryptor(ctx context.Context, cfg Config) (*crypto.Encryptor, error) {
	// Priority 1: explicitly provided key
	if cfg.EncryptionKey != "" {
		return crypto.NewEncryptorFromBase64(cfg.EncryptionKey)
	}

	// Priority 2: environment variable
	if envKey := os.Getenv(EnvEncryptionKey); envKey != "" {
		return crypto.NewEncryptorFromBase64(envKey)
	}

	// Priority 3: passphrase
	if cfg.Passphrase != "" {
		salt, err := s.loadOrCreateSalt(ctx)
		if err != nil {
			return nil, err
		}
		return crypto.NewEncryptorFromPassphrase(cfg.Passphrase, salt)
	}

	// Priority 4: key file
	keyFilePath := KeyFilePath(cfg.KeyFilePath)
	if data, err := os.ReadFile(keyFilePath); err == nil {
		return crypto.NewEncryptorFromBase64(string(data))
	}

	newKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(keyFilePath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(keyFilePath, []byte(newKey), 0o600); err != nil {
		return nil, fmt.Errorf("failed to save encryption key to %s: %w", keyFilePath, err)
	}
	s.logger.Info("generated new credential encryption key", "path", keyFilePath)

	return crypto.NewEncryptorFromBase64(newKey)
}

func (s *Store) loadOrCreateSalt(ctx context.Context) ([]byte, error) {
	encoded, ok, err := s.kv.Get(ctx, saltKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}
	if ok {
		salt, err := base64.StdEncoding.DecodeString(encoded)
		if err == nil && len(salt) >= crypto.SaltSize {
			return salt, nil
		}
		s.logger.Warn("stored credential salt is unreadable, generating a new one")
	}

	salt, err := crypto.RandomBytes(crypto.SaltSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := s.kv.Set(ctx, saltKey, base64.StdEncoding.EncodeToString(salt)); err != nil {
		return nil, fmt.Errorf("failed to save salt: %w", err)
	}
	return salt, nil
}

// Save replaces the stored session.
func (s *Store) Save(ctx context.Context, session entities.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	sealed, err := s.enc.Seal(payload, entities.KVKeySession)
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.kv.Set(ctx, entities.KVKeySession, sealed); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	stored := session
	s.current.Store(&stored)
	s.loaded.Store(true)

	s.logger.Debug("session saved", "session", session)
	return nil
}

// Load returns the current session. ok is false when none is stored; storage
// or decryption problems are logged and reported as absence.
func (s *Store) Load(ctx context.Context) (entities.Session, bool) {
	if s.loaded.Load() {
		return s.snapshot()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// A writer may have populated the cache while we waited.
	if s.loaded.Load() {
		return s.snapshot()
	}

	session, ok := s.readDurable(ctx)
	if ok {
		s.current.Store(&session)
	} else {
		s.current.Store(nil)
	}
	s.loaded.Store(true)
	return session, ok
}

func (s *Store) snapshot() (entities.Session, bool) {
	p := s.current.Load()
	if p == nil {
		return entities.Session{}, false
	}
	return *p, true
}

func (s *Store) readDurable(ctx context.Context) (entities.Session, bool) {
	sealed, ok, err := s.kv.Get(ctx, entities.KVKeySession)
	if err != nil {
		s.logger.Error("failed to read stored session", "error", err)
		return entities.Session{}, false
	}
	if !ok || sealed == "" {
		return entities.Session{}, false
	}

	payload, err := s.enc.Open(sealed, entities.KVKeySession)
	if err != nil {
		s.logger.Warn("stored session cannot be decrypted, ignoring it", "error", err)
		return entities.Session{}, false
	}

	var session entities.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		s.logger.Warn("stored session is malformed, ignoring it", "error", err)
		return entities.Session{}, false
	}
	if !session.Valid() {
		return entities.Session{}, false
	}
	return session, true
}

// Has reports whether a session is stored.
func (s *Store) Has(ctx context.Context) bool {
	_, ok := s.Load(ctx)
	return ok
}

// Clear removes the stored session. Clearing an empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.kv.Remove(ctx, entities.KVKeySession); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.current.Store(nil)
	s.loaded.Store(true)
	return nil
}

// ClearIfToken clears the session only while it still carries token, so a
// stale rejection cannot wipe a credential that was already refreshed.
// Reports whether anything was cleared.
func (s *Store) ClearIfToken(ctx context.Context, token string) (bool, error) {
	current, ok := s.Load(ctx)
	if !ok || current.Token != token {
		return false, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if p := s.current.Load(); p == nil || p.Token != token {
		return false, nil
	}
	if err := s.kv.Remove(ctx, entities.KVKeySession); err != nil {
		return false, fmt.Errorf("failed to clear session: %w", err)
	}
	s.current.Store(nil)
	return true, nil
}

// KeyFilePath returns the key file location, defaulting to the home directory.
func KeyFilePath(customPath string) string {
	if customPath != "" {
		return customPath
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultKeyFileName
	}
	return filepath.Join(homeDir, DefaultKeyFileName)
}
