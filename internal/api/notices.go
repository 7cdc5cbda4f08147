package api

import (
	"sync"

	"github.com/example/poster-shop/internal/cartstate"
)

const noticeBuffer = 16

// NoticeHub fans reconciler notices out to the websocket connections of
// the session they belong to. Every notice also reaches next.
type NoticeHub struct {
	next cartstate.Notifier

	mu        sync.Mutex
	listeners map[string]map[chan cartstate.Notice]struct{}
}

func NewNoticeHub(next cartstate.Notifier) *NoticeHub {
	if next == nil {
		next = cartstate.LogNotifier{}
	}
	return &NoticeHub{
		next:      next,
		listeners: make(map[string]map[chan cartstate.Notice]struct{}),
	}
}

// Notify never blocks; a listener that falls behind misses notices
func (h *NoticeHub) Notify(n cartstate.Notice) {
	h.next.Notify(n)

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.listeners[n.SessionID] {
		select {
		case ch <- n:
		default:
		}
	}
}

// Listen registers a listener for one session
func (h *NoticeHub) Listen(sessionID string) (<-chan cartstate.Notice, func()) {
	ch := make(chan cartstate.Notice, noticeBuffer)

	h.mu.Lock()
	if h.listeners[sessionID] == nil {
		h.listeners[sessionID] = make(map[chan cartstate.Notice]struct{})
	}
	h.listeners[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners[sessionID], ch)
			if len(h.listeners[sessionID]) == 0 {
				delete(h.listeners, sessionID)
			}
			h.mu.Unlock()
		})
	}
}
