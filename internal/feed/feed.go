// Package feed projects the two stored notification collections into the
// unified, chronologically sorted view used by display surfaces. Everything
// here is a pure function of its inputs; nothing mutates store state.
package feed

import (
	"sort"
	"strings"

	"github.com/adsign/notify/internal/model"
	"github.com/adsign/notify/internal/store"
)

// Mode selects the pagination strategy. Server-side pagination trusts each
// collection's own page metadata; client-side pagination re-slices the merged
// sequence locally. Client-side is only correct over fully loaded data, so
// turning a filter on must go through a full fetch first.
type Mode int

const (
	ServerPaged Mode = iota
	ClientPaged
)

// Filter narrows the merged sequence. Zero value matches everything.
type Filter struct {
	// Query is a case-insensitive substring match on the message and the
	// target label.
	Query string
	// Read, when set, keeps only items with that read state.
	Read *bool
}

// Active reports whether the filter narrows anything, i.e. whether the
// presenter has to switch to client-side pagination.
func (f Filter) Active() bool {
	return f.Query != "" || f.Read != nil
}

func (f Filter) matches(n model.Notification) bool {
	if f.Read != nil && n.IsRead != *f.Read {
		return false
	}
	if f.Query == "" {
		return true
	}
	q := strings.ToLower(f.Query)
	if strings.Contains(strings.ToLower(n.Message), q) {
		return true
	}
	return n.Target != nil && strings.Contains(strings.ToLower(n.Target.Label), q)
}

// Merge concatenates both collections and sorts descending by creation time.
// The sort is stable: on equal timestamps user items keep their position
// ahead of role items, and each collection's internal order is preserved.
// Neither input is modified.
func Merge(user, role store.Collection) []model.Notification {
	merged := make([]model.Notification, 0, len(user.Items)+len(role.Items))
	merged = append(merged, user.Items...)
	merged = append(merged, role.Items...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged
}

// Apply keeps the items matching the filter, preserving order.
func Apply(items []model.Notification, f Filter) []model.Notification {
	if !f.Active() {
		out := make([]model.Notification, len(items))
		copy(out, items)
		return out
	}
	out := make([]model.Notification, 0, len(items))
	for _, n := range items {
		if f.matches(n) {
			out = append(out, n)
		}
	}
	return out
}

// Paginate slices one client-side page out of the sequence. Pages are
// 1-based; out-of-range pages yield an empty slice.
func Paginate(items []model.Notification, page, pageSize int) []model.Notification {
	if page < 1 || pageSize < 1 {
		return nil
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	out := make([]model.Notification, end-start)
	copy(out, items[start:end])
	return out
}

// Partition splits the sequence into unread and read views, preserving order.
func Partition(items []model.Notification) (unread, read []model.Notification) {
	for _, n := range items {
		if n.IsRead {
			read = append(read, n)
		} else {
			unread = append(unread, n)
		}
	}
	return unread, read
}
