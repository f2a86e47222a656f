// Package feed wires the REST client and the store together behind the
// operations display surfaces actually perform: load a page, mark one read,
// switch filtering on and off.
package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/adsign/notify/internal/client"
	feedview "github.com/adsign/notify/internal/feed"
	"github.com/adsign/notify/internal/model"
	"github.com/adsign/notify/internal/store"
	apperrors "github.com/adsign/notify/pkg/errors"
	"github.com/adsign/notify/pkg/logger"
)

// fullFetchSize is the page size used when a filter turns on and both
// collections must be fully loaded for client-side pagination.
const fullFetchSize = 500

type Service struct {
	client *client.Client
	store  *store.Store
	log    *logger.Logger

	mu     sync.Mutex
	filter feedview.Filter
	mode   feedview.Mode
}

func NewService(c *client.Client, s *store.Store, log *logger.Logger) *Service {
	return &Service{
		client: c,
		store:  s,
		log:    log.WithComponent("feed"),
		mode:   feedview.ServerPaged,
	}
}

// LoadPage fetches one page for the kind and replaces that collection. On
// failure only the kind's error flag changes; items and unread count stay as
// they were. A response arriving after ctx is done is discarded rather than
// applied, so a late fetch can never resurrect state for a view that is gone.
func (s *Service) LoadPage(ctx context.Context, kind model.Kind, opts client.FetchOptions) error {
	s.store.SetLoading(kind, true)
	defer s.store.SetLoading(kind, false)

	page, err := s.client.FetchPage(ctx, kind, opts)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			s.store.SetError(kind, appErr.Message)
		} else {
			s.store.SetError(kind, err.Error())
		}
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.store.ReplacePage(kind, page.Items, page.Meta)
	return nil
}

// MarkRead marks the notification read on the server and flips the local flag
// only after the server confirms. A failed mark leaves the UI truthful.
func (s *Service) MarkRead(ctx context.Context, notificationID string) error {
	result, err := s.client.MarkRead(ctx, notificationID)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.store.FlipRead(result.NotificationID)
	return nil
}

// SendToUser relays an administrative send; validation happens in the client.
func (s *Service) SendToUser(ctx context.Context, userID, text string) error {
	return s.client.SendToUser(ctx, userID, text)
}

// SendToRole relays an administrative role broadcast.
func (s *Service) SendToRole(ctx context.Context, role, text string) error {
	return s.client.SendToRole(ctx, role, text)
}

// LoadAll fully loads both collections, unpaged. Filters only operate
// correctly over data that is already loaded, so this runs whenever a filter
// switches on. Both kinds are attempted even if the first fails.
func (s *Service) LoadAll(ctx context.Context) error {
	var firstErr error
	for _, kind := range []model.Kind{model.KindUser, model.KindRole} {
		err := s.LoadPage(ctx, kind, client.FetchOptions{Page: 1, Size: fullFetchSize})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetFilter switches the presenter between its two pagination strategies.
// Turning a filter on triggers a full fetch of both collections and flips to
// client-side pagination; clearing it returns to trusting server page
// metadata.
func (s *Service) SetFilter(ctx context.Context, f feedview.Filter) error {
	s.mu.Lock()
	s.filter = f
	wasServerPaged := s.mode == feedview.ServerPaged
	if f.Active() {
		s.mode = feedview.ClientPaged
	} else {
		s.mode = feedview.ServerPaged
	}
	s.mu.Unlock()

	if f.Active() && wasServerPaged {
		return s.LoadAll(ctx)
	}
	return nil
}

// Mode reports the current pagination strategy.
func (s *Service) Mode() feedview.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// View projects the merged feed for display. In server-paged mode the merged
// sequence is returned whole, each collection already being one server page;
// in client-paged mode the active filter and the requested page slice apply.
func (s *Service) View(page, pageSize int) []model.Notification {
	s.mu.Lock()
	filter := s.filter
	mode := s.mode
	s.mu.Unlock()

	merged := feedview.Merge(
		s.store.Collection(model.KindUser),
		s.store.Collection(model.KindRole),
	)
	if mode == feedview.ServerPaged {
		return merged
	}
	return feedview.Paginate(feedview.Apply(merged, filter), page, pageSize)
}

// Partition exposes the unread/read tab views over the merged feed.
func (s *Service) Partition() (unread, read []model.Notification) {
	merged := feedview.Merge(
		s.store.Collection(model.KindUser),
		s.store.Collection(model.KindRole),
	)
	return feedview.Partition(merged)
}

// UnreadCount returns the badge count over both loaded collections.
func (s *Service) UnreadCount() int {
	return s.store.UnreadCount("")
}
