package credential

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(backend Backend) *Store {
	s := NewStore(backend)
	s.Now = func() time.Time { return testNow }
	return s
}

func TestStore_LoadEmpty(t *testing.T) {
	s := newTestStore(NewMemoryBackend())

	creds, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, creds)
	assert.Empty(t, creds)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(NewMemoryBackend())

	in := []Credential{
		{Secret: "key-one", Status: StatusActive, UsageCount: 3, AddedAt: testNow},
		{Secret: "key-two", Status: StatusQuotaExceeded, ErrorMessage: "429 Quota exceeded", UsageCount: 7, AddedAt: testNow.Add(time.Minute)},
	}
	require.NoError(t, s.Save(ctx, in))

	out, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)

	for i := range in {
		assert.Equal(t, in[i].Secret, out[i].Secret)
		assert.Equal(t, in[i].Status, out[i].Status)
		assert.Equal(t, in[i].ErrorMessage, out[i].ErrorMessage)
		assert.Equal(t, in[i].UsageCount, out[i].UsageCount)
		assert.True(t, in[i].AddedAt.Equal(out[i].AddedAt))
	}
}

func TestStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(NewMemoryBackend())

	require.NoError(t, s.Save(ctx, []Credential{{Secret: "a", Status: StatusActive}, {Secret: "b", Status: StatusActive}}))
	require.NoError(t, s.Save(ctx, []Credential{{Secret: "c", Status: StatusActive}}))

	out, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].Secret)
}

func TestStore_LegacyMigration(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Put(ctx, LegacyStorageKey, []byte("  legacy-secret \n")))

	s := newTestStore(backend)
	creds, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 1)

	assert.Equal(t, "legacy-secret", creds[0].Secret)
	assert.Equal(t, StatusActive, creds[0].Status)
	assert.Equal(t, 0, creds[0].UsageCount)
	assert.Empty(t, creds[0].ErrorMessage)

	legacy, err := backend.Get(ctx, LegacyStorageKey)
	require.NoError(t, err)
	assert.Nil(t, legacy, "legacy record should be removed")

	current, err := backend.Get(ctx, StorageKey)
	require.NoError(t, err)
	assert.NotNil(t, current)

	// A second load reads the migrated record and does not duplicate it.
	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 1)
}

func TestStore_LegacyIgnoredWhenCurrentExists(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	s := newTestStore(backend)

	require.NoError(t, s.Save(ctx, []Credential{{Secret: "current", Status: StatusActive}}))
	require.NoError(t, backend.Put(ctx, LegacyStorageKey, []byte("legacy")))

	creds, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "current", creds[0].Secret)
}

func TestStore_CorruptRecordLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Put(ctx, StorageKey, []byte("{not json")))

	creds, err := newTestStore(backend).Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestStore_NormalizesRecords(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	raw := `[
		{"key":"a","status":"active","errorMessage":"stale"},
		{"key":"b","status":"error"},
		{"key":"c","status":"mystery","usageCount":-2},
		{"key":"a","status":"active"},
		{"key":"  ","status":"active"}
	]`
	require.NoError(t, backend.Put(ctx, StorageKey, []byte(raw)))

	creds, err := newTestStore(backend).Load(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 3)

	assert.Empty(t, creds[0].ErrorMessage)
	assert.Equal(t, StatusError, creds[1].Status)
	assert.NotEmpty(t, creds[1].ErrorMessage)
	assert.Equal(t, StatusActive, creds[2].Status)
	assert.Equal(t, 0, creds[2].UsageCount)
}

func TestBoltBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "keyvox.db")

	b := NewBoltBackend(path)
	require.NoError(t, b.Open())

	pool, err := OpenPool(ctx, newTestStore(b))
	require.NoError(t, err)
	_, err = pool.Add(ctx, "ABC123")
	require.NoError(t, err)
	_, err = pool.MarkUsed(ctx, "ABC123")
	require.NoError(t, err)
	require.NoError(t, b.Close())

	reopened := NewBoltBackend(path)
	require.NoError(t, reopened.Open())
	defer func() { _ = reopened.Close() }()

	creds, err := newTestStore(reopened).Load(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "ABC123", creds[0].Secret)
	assert.Equal(t, StatusActive, creds[0].Status)
	assert.Equal(t, 1, creds[0].UsageCount)
}

func TestBoltBackend_GetMissing(t *testing.T) {
	b := NewBoltBackend(filepath.Join(t.TempDir(), "keyvox.db"))
	require.NoError(t, b.Open())
	defer func() { _ = b.Close() }()

	v, err := b.Get(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, v)
}
