package localstore

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/example/poster-shop/internal/session"
)

// CookieStorage persists values as cookies on one request/response pair.
// Values set during the request are visible to later Gets on the same
// storage.
type CookieStorage struct {
	r      *http.Request
	w      http.ResponseWriter
	maxAge time.Duration
	secure bool

	mu      sync.Mutex
	pending map[string]*string
}

var _ session.Storage = (*CookieStorage)(nil)

func NewCookieStorage(w http.ResponseWriter, r *http.Request, maxAge time.Duration, secure bool) *CookieStorage {
	return &CookieStorage{
		r:       r,
		w:       w,
		maxAge:  maxAge,
		secure:  secure,
		pending: make(map[string]*string),
	}
}

func (c *CookieStorage) Get(key string) (string, bool, error) {
	c.mu.Lock()
	if v, ok := c.pending[key]; ok {
		c.mu.Unlock()
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	}
	c.mu.Unlock()

	if c.r == nil {
		return "", false, session.ErrUnavailable
	}
	cookie, err := c.r.Cookie(key)
	if errors.Is(err, http.ErrNoCookie) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return cookie.Value, true, nil
}

func (c *CookieStorage) Set(key, value string) error {
	if c.w == nil {
		return session.ErrUnavailable
	}
	http.SetCookie(c.w, &http.Cookie{
		Name:     key,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	c.mu.Lock()
	c.pending[key] = &value
	c.mu.Unlock()
	return nil
}

func (c *CookieStorage) Remove(key string) error {
	if c.w == nil {
		return session.ErrUnavailable
	}
	http.SetCookie(c.w, &http.Cookie{
		Name:     key,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
	})
	c.mu.Lock()
	c.pending[key] = nil
	c.mu.Unlock()
	return nil
}
