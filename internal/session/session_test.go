package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStorage is a map-backed Storage with injectable failures
type fakeStorage struct {
	values  map[string]string
	getErr  error
	setErr  error
	setHits int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{values: make(map[string]string)}
}

func (f *fakeStorage) Get(key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeStorage) Set(key, value string) error {
	f.setHits++
	if f.setErr != nil {
		return f.setErr
	}
	f.values[key] = value
	return nil
}

func (f *fakeStorage) Remove(key string) error {
	delete(f.values, key)
	return nil
}

func TestNewID(t *testing.T) {
	now := time.Unix(1700000000, 123)

	id := NewID(now)

	assert.True(t, strings.HasPrefix(id, "session_1700000000000000123_"))
	assert.True(t, Valid(id))
	assert.NotEqual(t, id, NewID(now))
}

func TestNewID_SuffixIsFullUUID(t *testing.T) {
	id := NewID(time.Unix(1700000000, 0))

	suffix := id[strings.LastIndex(id, "_")+1:]
	assert.Len(t, suffix, 32)
	assert.Regexp(t, `^[0-9a-f]{32}$`, suffix)
}

func TestValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"session_1_abcdefghi", true},
		{"session_1_0f8e2c9d4b7a41e3a6c5d2b1e0f9a8c7", true},
		{"session_1_abc", false},
		{"session_1_abcdefghij", false},
		{"session_1_0f8e2c9d4b7a41e3a6c5d2b1e0f9a8c", false},
		{"session_1_ABCDEFGHI", false},
		{"session_1_abc;efghi", false},
		{"session__abcdefghi", false},
		{"session_x1_abcdefghi", false},
		{"cart_1_abcdefghi", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.id))
		})
	}
}

func TestIdentity_CreatesAndPersists(t *testing.T) {
	storage := newFakeStorage()
	identity := NewIdentity(storage)

	id := identity.GetOrCreateSessionID()

	require.NotEmpty(t, id)
	assert.Equal(t, id, storage.values[StorageKey])
	assert.Equal(t, id, identity.GetOrCreateSessionID())
	assert.Equal(t, 1, storage.setHits)
}

func TestIdentity_ReusesStoredID(t *testing.T) {
	storage := newFakeStorage()
	storage.values[StorageKey] = "session_42_abcdefghi"

	id := NewIdentity(storage).GetOrCreateSessionID()

	assert.Equal(t, "session_42_abcdefghi", id)
	assert.Zero(t, storage.setHits)
}

func TestIdentity_StorageUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		storage Storage
	}{
		{"read fails", &fakeStorage{values: map[string]string{}, getErr: ErrUnavailable}},
		{"write fails", &fakeStorage{values: map[string]string{}, setErr: errors.New("quota exceeded")}},
		{"no storage", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := NewIdentity(tt.storage)

			first := identity.GetOrCreateSessionID()
			second := identity.GetOrCreateSessionID()

			assert.True(t, Valid(first))
			assert.Equal(t, first, second, "fallback id is stable for the identity's lifetime")
		})
	}
}

func TestIdentity_Reset(t *testing.T) {
	storage := newFakeStorage()
	identity := NewIdentity(storage)
	first := identity.GetOrCreateSessionID()

	require.NoError(t, identity.Reset())
	second := identity.GetOrCreateSessionID()

	assert.NotEqual(t, first, second)
}
