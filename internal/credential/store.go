package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// StorageKey holds the current multi-credential record.
	StorageKey = "api_keys_v2"
	// LegacyStorageKey holds a single bare secret written by older releases.
	LegacyStorageKey = "api_key"
)

// Store loads and saves the full credential list through a Backend.
type Store struct {
	backend Backend

	Now func() time.Time
}

// NewStore returns a store persisting through backend.
func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		Now:     time.Now,
	}
}

// Load returns the persisted credentials, or an empty list when nothing is stored.
// A legacy single-key record is migrated into the current format and removed.
// A corrupt record loads as empty.
func (s *Store) Load(ctx context.Context) ([]Credential, error) {
	data, err := s.backend.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	if data == nil {
		return s.migrateLegacy(ctx)
	}

	var stored []Credential
	if err := json.Unmarshal(data, &stored); err != nil {
		log.Warn().Err(err).Msg("Stored credentials are unreadable, starting with an empty set")
		return []Credential{}, nil
	}

	creds := make([]Credential, 0, len(stored))
	seen := make(map[string]bool, len(stored))
	for _, c := range stored {
		c.Secret = strings.TrimSpace(c.Secret)
		if c.Secret == "" || seen[c.Secret] {
			continue
		}
		seen[c.Secret] = true
		creds = append(creds, normalize(c))
	}

	log.Debug().Int("count", len(creds)).Msg("Loaded credentials")
	return creds, nil
}

func (s *Store) migrateLegacy(ctx context.Context) ([]Credential, error) {
	legacy, err := s.backend.Get(ctx, LegacyStorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy credential: %w", err)
	}

	secret := strings.TrimSpace(string(legacy))
	if secret == "" {
		if legacy != nil {
			_ = s.backend.Delete(ctx, LegacyStorageKey)
		}
		return []Credential{}, nil
	}

	creds := []Credential{{
		Secret:  secret,
		Status:  StatusActive,
		AddedAt: s.Now(),
	}}

	if err := s.Save(ctx, creds); err != nil {
		return nil, fmt.Errorf("failed to migrate legacy credential: %w", err)
	}
	if err := s.backend.Delete(ctx, LegacyStorageKey); err != nil {
		return nil, fmt.Errorf("failed to remove legacy credential: %w", err)
	}

	log.Info().Str("key", Mask(secret)).Msg("Migrated legacy API key into the credential pool")
	return creds, nil
}

// Save replaces the persisted content with creds.
func (s *Store) Save(ctx context.Context, creds []Credential) error {
	if creds == nil {
		creds = []Credential{}
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	if err := s.backend.Put(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}
