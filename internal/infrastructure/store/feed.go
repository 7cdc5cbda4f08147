package store

import (
	"sync"
)

// Feed fans document snapshots out to in-process subscribers. Publish never
// blocks; each subscriber receives its snapshots in publish order on its own
// goroutine.
type Feed struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]*subscriber
}

type subscriber struct {
	fn     SnapshotFunc
	mu     sync.Mutex
	queue  []Document
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[string]map[int]*subscriber)}
}

func feedKey(collection, id string) string {
	return collection + "/" + id
}

// Subscribe registers fn for changes of one document. initial is delivered
// first (nil when the document does not exist yet). The returned function
// stops delivery; snapshots still queued are dropped.
func (f *Feed) Subscribe(collection, id string, initial Document, fn SnapshotFunc) func() {
	s := &subscriber{
		fn:    fn,
		queue: []Document{initial},
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	s.wake <- struct{}{}
	key := feedKey(collection, id)

	f.mu.Lock()
	f.nextID++
	subID := f.nextID
	if f.subs[key] == nil {
		f.subs[key] = make(map[int]*subscriber)
	}
	f.subs[key][subID] = s
	f.mu.Unlock()

	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs[key], subID)
			if len(f.subs[key]) == 0 {
				delete(f.subs, key)
			}
			f.mu.Unlock()
			s.close()
		})
	}
}

// Publish queues doc (nil for a deletion) for every subscriber of the document.
func (f *Feed) Publish(collection, id string, doc Document) {
	f.mu.Lock()
	targets := make([]*subscriber, 0, len(f.subs[feedKey(collection, id)]))
	for _, s := range f.subs[feedKey(collection, id)] {
		targets = append(targets, s)
	}
	f.mu.Unlock()

	for _, s := range targets {
		var snapshot Document
		if doc != nil {
			snapshot, _ = Clone(doc)
		}
		s.enqueue(snapshot)
	}
}

func (s *subscriber) enqueue(doc Document) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, doc)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.queue = nil
		close(s.done)
	}
	s.mu.Unlock()
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if s.closed || len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			doc := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			s.fn(doc)
		}
	}
}
