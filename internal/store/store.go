package store

import (
	"sync"

	"github.com/adsign/notify/internal/model"
)

// Collection is the loaded state of one recipient kind: the items of the most
// recently fetched page plus any realtime arrivals prepended since, the
// server's page accounting, and per-kind loading/error flags.
//
// UnreadCount reflects only loaded items, never a server-side lifetime total.
// Realtime prepends and local read-flips adjust it incrementally without a
// refetch, so the badge can drift from server truth for pages never loaded.
type Collection struct {
	Items       []model.Notification
	Meta        model.PageMeta
	UnreadCount int
	Loading     bool
	Err         string
}

// Store is the single writer of notification state. All mutations go through
// its methods; readers get snapshot copies and can never reach the internal
// slices. Mutations never fail.
type Store struct {
	mu     sync.RWMutex
	byKind map[model.Kind]*Collection
	subs   []chan struct{}
}

func New() *Store {
	return &Store{
		byKind: map[model.Kind]*Collection{
			model.KindUser: {},
			model.KindRole: {},
		},
	}
}

// Subscribe returns a channel that receives a signal after every mutation.
// The send is non-blocking; a slow reader misses signals, not state, since it
// re-reads snapshots anyway.
func (s *Store) Subscribe() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{}, 1)
	s.subs = append(s.subs, ch)
	return ch
}

// ReplacePage wholesale-replaces one kind's items and page metadata with a
// fetched page, recomputing the unread count from the new items. Clears the
// kind's error flag.
func (s *Store) ReplacePage(kind model.Kind, items []model.Notification, meta model.PageMeta) {
	s.mu.Lock()
	col := s.byKind[kind]
	col.Items = make([]model.Notification, len(items))
	copy(col.Items, items)
	col.Meta = meta
	col.UnreadCount = countUnread(col.Items)
	col.Err = ""
	s.mu.Unlock()
	s.notify()
}

// PrependRealtime inserts a realtime arrival at the head of its kind's items.
// Page metadata is left untouched: a realtime item is additive, not part of
// any fetched page's accounting.
func (s *Store) PrependRealtime(kind model.Kind, n model.Notification) {
	s.mu.Lock()
	col := s.byKind[kind]
	col.Items = append([]model.Notification{n}, col.Items...)
	if !n.IsRead {
		col.UnreadCount++
	}
	s.mu.Unlock()
	s.notify()
}

// FlipRead marks the notification with the given id read, wherever it is
// currently loaded. A no-op when the id is not loaded, or already read; the
// unread count never goes below zero.
func (s *Store) FlipRead(notificationID string) {
	s.mu.Lock()
	for _, col := range s.byKind {
		for i := range col.Items {
			if col.Items[i].ID != notificationID {
				continue
			}
			if !col.Items[i].IsRead {
				col.Items[i].IsRead = true
				if col.UnreadCount > 0 {
					col.UnreadCount--
				}
			}
			s.mu.Unlock()
			s.notify()
			return
		}
	}
	s.mu.Unlock()
}

// SetLoading flips one kind's loading flag.
func (s *Store) SetLoading(kind model.Kind, loading bool) {
	s.mu.Lock()
	s.byKind[kind].Loading = loading
	s.mu.Unlock()
	s.notify()
}

// SetError records a fetch failure's display message for one kind. Items and
// unread count are left unchanged.
func (s *Store) SetError(kind model.Kind, msg string) {
	s.mu.Lock()
	s.byKind[kind].Err = msg
	s.mu.Unlock()
	s.notify()
}

// Collection returns a deep copy of one kind's state.
func (s *Store) Collection(kind model.Kind) Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col := s.byKind[kind]
	out := *col
	out.Items = make([]model.Notification, len(col.Items))
	copy(out.Items, col.Items)
	return out
}

// UnreadCount returns one kind's unread count, or the sum over both kinds
// when called with an empty kind.
func (s *Store) UnreadCount(kind model.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if kind == "" {
		return s.byKind[model.KindUser].UnreadCount + s.byKind[model.KindRole].UnreadCount
	}
	return s.byKind[kind].UnreadCount
}

func (s *Store) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func countUnread(items []model.Notification) int {
	n := 0
	for i := range items {
		if !items[i].IsRead {
			n++
		}
	}
	return n
}
