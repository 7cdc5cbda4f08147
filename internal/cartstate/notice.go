package cartstate

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// ErrRemoteWriteFailed marks a cart change that was applied locally but did
// not reach the store. The local state is kept.
var ErrRemoteWriteFailed = errors.New("remote cart write failed")

// SyncError wraps the store error of a failed remote cart write
type SyncError struct {
	Op        string
	ProductID string
	Err       error
}

func (e *SyncError) Error() string {
	if e.ProductID != "" {
		return fmt.Sprintf("%v: %s %s: %v", ErrRemoteWriteFailed, e.Op, e.ProductID, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrRemoteWriteFailed, e.Op, e.Err)
}

func (e *SyncError) Unwrap() []error {
	return []error{ErrRemoteWriteFailed, e.Err}
}

type NoticeKind string

const (
	NoticeAdded          NoticeKind = "added"
	NoticeUpdated        NoticeKind = "updated"
	NoticeRemoved        NoticeKind = "removed"
	NoticeCleared        NoticeKind = "cleared"
	NoticeOutOfStock     NoticeKind = "out_of_stock"
	NoticeNotEnoughStock NoticeKind = "not_enough_stock"
	NoticeSyncPending    NoticeKind = "sync_pending"
)

// Notice is a user-visible message about a cart operation
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	SessionID string     `json:"sessionId"`
	ProductID string     `json:"productId,omitempty"`
	Message   string     `json:"message"`
	Err       error      `json:"-"`
}

type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(n Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to the standard logger
type LogNotifier struct{}

func (LogNotifier) Notify(n Notice) {
	if n.Err != nil {
		log.Printf("[Cart] %s (%s): %s: %v", n.SessionID, n.Kind, n.Message, n.Err)
		return
	}
	log.Printf("[Cart] %s (%s): %s", n.SessionID, n.Kind, n.Message)
}

// SyncFailurePolicy decides what happens after consecutive remote write
// failures. The optimistic local state is never rolled back by the
// reconciler itself.
type SyncFailurePolicy interface {
	OnSyncFailure(ctx context.Context, r *Reconciler, consecutive int)
}

// KeepLocal leaves the optimistic state alone until the next remote snapshot
type KeepLocal struct{}

func (KeepLocal) OnSyncFailure(ctx context.Context, r *Reconciler, consecutive int) {}

type refetchPolicy struct {
	after int
}

// RefetchAfter re-reads the remote cart once n writes in a row have failed,
// replacing the local state with the authoritative one.
func RefetchAfter(n int) SyncFailurePolicy {
	if n <= 0 {
		return KeepLocal{}
	}
	return refetchPolicy{after: n}
}

func (p refetchPolicy) OnSyncFailure(ctx context.Context, r *Reconciler, consecutive int) {
	if consecutive < p.after {
		return
	}
	if err := r.Refresh(ctx); err != nil {
		log.Printf("[Cart] Refetch of %s after %d failures failed: %v", r.SessionID(), consecutive, err)
	}
}
