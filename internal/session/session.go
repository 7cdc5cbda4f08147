package session

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StorageKey is where the session id is persisted
const StorageKey = "session_id"

const (
	idPrefix     = "session_"
	suffixLength = 32
	// ids issued before the suffix carried a full uuid
	legacySuffixLength = 9
)

// ErrUnavailable is returned by storage that cannot be used at all
// (private browsing, storage disabled, backend down).
var ErrUnavailable = errors.New("local storage unavailable")

// Storage is durable key/value storage local to one client
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// Identity hands out the stable session id of one client
type Identity struct {
	storage Storage
	now     func() time.Time

	mu       sync.Mutex
	fallback string
}

func NewIdentity(storage Storage) *Identity {
	return &Identity{storage: storage, now: time.Now}
}

// NewID builds a fresh session id: session_<unix nanos>_<random uuid hex>
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%s%d_%s", idPrefix, now.UnixNano(), suffix)
}

// Valid reports whether id has the shape NewID produces
func Valid(id string) bool {
	rest, ok := strings.CutPrefix(id, idPrefix)
	if !ok {
		return false
	}
	nanos, suffix, ok := strings.Cut(rest, "_")
	if !ok || nanos == "" {
		return false
	}
	if len(suffix) != suffixLength && len(suffix) != legacySuffixLength {
		return false
	}
	for _, r := range nanos {
		if r < '0' || r > '9' {
			return false
		}
	}
	for _, r := range suffix {
		if (r < '0' || r > '9') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// GetOrCreateSessionID returns the persisted id, creating and persisting one
// on first use. When storage is unusable the id lives in memory for the
// lifetime of the Identity. It never returns "".
func (i *Identity) GetOrCreateSessionID() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.storage != nil {
		id, ok, err := i.storage.Get(StorageKey)
		if err == nil && ok && id != "" {
			return id
		}
		if err != nil {
			log.Printf("[Session] Storage read failed, using in-memory id: %v", err)
			return i.memoryID()
		}

		id = NewID(i.now())
		if err := i.storage.Set(StorageKey, id); err != nil {
			log.Printf("[Session] Storage write failed, using in-memory id: %v", err)
			if i.fallback == "" {
				i.fallback = id
			}
			return i.fallback
		}
		return id
	}
	return i.memoryID()
}

func (i *Identity) memoryID() string {
	if i.fallback == "" {
		i.fallback = NewID(i.now())
	}
	return i.fallback
}

// Reset forgets the persisted id so the next call starts a new session
func (i *Identity) Reset() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.fallback = ""
	if i.storage == nil {
		return nil
	}
	if err := i.storage.Remove(StorageKey); err != nil && !errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	return nil
}
