package client

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/adsign/notify/internal/model"
	"github.com/adsign/notify/internal/token"
	apperrors "github.com/adsign/notify/pkg/errors"
	"github.com/adsign/notify/pkg/metrics"
)

const (
	usersPath    = "/api/notifications/users"
	rolesPath    = "/api/notifications/roles"
	markReadPath = "/api/notifications/mark-read/{notificationId}"
)

// FetchOptions narrows a paginated fetch. A nil IsRead leaves filtering to
// the server default.
type FetchOptions struct {
	Page   int
	Size   int
	IsRead *bool
}

// Client is the notification REST client. Every expected failure comes back
// as a *apperrors.AppError; no method retries on its own.
type Client struct {
	http    *resty.Client
	tokens  token.Source
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Client)

// WithMetrics wires request outcome counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func New(baseURL string, timeout time.Duration, tokens token.Source, opts ...Option) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)

	c := &Client{
		http:   httpClient,
		tokens: tokens,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.http.Close()
}

// credential returns the stored token, failing before any round trip when it
// is absent or already expired.
func (c *Client) credential() (string, error) {
	tok := c.tokens.Token()
	if tok == "" {
		return "", apperrors.AuthRequired()
	}
	if token.Expired(tok, c.now()) {
		return "", apperrors.SessionExpired()
	}
	return tok, nil
}

// FetchPage requests one page of notifications for the given kind.
func (c *Client) FetchPage(ctx context.Context, kind model.Kind, opts FetchOptions) (*model.Page, error) {
	op := "fetch_" + string(kind)

	tok, err := c.credential()
	if err != nil {
		c.count(op, "auth_required")
		return nil, err
	}

	path := usersPath
	if kind == model.KindRole {
		path = rolesPath
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetQueryParam("page", strconv.Itoa(opts.Page)).
		SetQueryParam("size", strconv.Itoa(opts.Size))
	if opts.IsRead != nil {
		req.SetQueryParam("isRead", strconv.FormatBool(*opts.IsRead))
	}

	var env model.ListResponse
	var errEnv model.ActionResponse
	resp, err := req.SetResult(&env).SetError(&errEnv).Get(path)
	if err != nil {
		c.count(op, "network_error")
		return nil, apperrors.Network(err)
	}
	if !resp.IsSuccess() {
		c.count(op, strconv.Itoa(resp.StatusCode()))
		return nil, apperrors.FromStatus(resp.StatusCode(), errEnv.Message)
	}
	if !env.Success {
		c.count(op, "rejected")
		return nil, apperrors.ServerRejected(env.Message)
	}

	items := make([]model.Notification, len(env.Result))
	copy(items, env.Result)
	for i := range items {
		items[i].Kind = kind
	}

	c.count(op, "ok")
	return &model.Page{
		Items: items,
		Meta: model.PageMeta{
			CurrentPage:   env.CurrentPage,
			TotalPages:    env.TotalPages,
			PageSize:      env.PageSize,
			TotalElements: env.TotalElements,
		},
	}, nil
}

// MarkRead marks one notification read on the server. Idempotent: marking an
// already-read notification succeeds.
func (c *Client) MarkRead(ctx context.Context, notificationID string) (*model.MarkReadResult, error) {
	const op = "mark_read"

	if strings.TrimSpace(notificationID) == "" {
		return nil, apperrors.Invalid("notification id is required")
	}
	tok, err := c.credential()
	if err != nil {
		c.count(op, "auth_required")
		return nil, err
	}

	var env model.ActionResponse
	var errEnv model.ActionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetPathParam("notificationId", notificationID).
		SetResult(&env).
		SetError(&errEnv).
		Post(markReadPath)
	if err != nil {
		c.count(op, "network_error")
		return nil, apperrors.Network(err)
	}
	if !resp.IsSuccess() {
		c.count(op, strconv.Itoa(resp.StatusCode()))
		return nil, apperrors.FromStatus(resp.StatusCode(), errEnv.Message)
	}
	if !env.Success {
		c.count(op, "rejected")
		return nil, apperrors.ServerRejected(env.Message)
	}

	result := model.MarkReadResult{NotificationID: notificationID, ReadAt: env.Timestamp}
	if len(env.Result) > 0 {
		// Prefer the server's own confirmation payload when present.
		_ = json.Unmarshal(env.Result, &result)
	}

	c.count(op, "ok")
	return &result, nil
}

// SendToUser sends an administrative notification to one user.
func (c *Client) SendToUser(ctx context.Context, userID, text string) error {
	return c.send(ctx, "send_user", usersPath+"/"+userID, userID, text)
}

// SendToRole broadcasts an administrative notification to a role group.
func (c *Client) SendToRole(ctx context.Context, role, text string) error {
	return c.send(ctx, "send_role", rolesPath+"/"+role, role, text)
}

func (c *Client) send(ctx context.Context, op, path, recipient, text string) error {
	if strings.TrimSpace(recipient) == "" {
		return apperrors.Invalid("recipient is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return apperrors.Invalid("message text is required")
	}
	tok, err := c.credential()
	if err != nil {
		c.count(op, "auth_required")
		return err
	}

	var env model.ActionResponse
	var errEnv model.ActionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetHeader("Content-Type", "text/plain").
		SetBody(text).
		SetResult(&env).
		SetError(&errEnv).
		Post(path)
	if err != nil {
		c.count(op, "network_error")
		return apperrors.Network(err)
	}
	if !resp.IsSuccess() {
		c.count(op, strconv.Itoa(resp.StatusCode()))
		return apperrors.FromStatus(resp.StatusCode(), errEnv.Message)
	}
	if !env.Success {
		c.count(op, "rejected")
		return apperrors.ServerRejected(env.Message)
	}

	c.count(op, "ok")
	return nil
}

func (c *Client) count(op, status string) {
	if c.metrics != nil {
		c.metrics.RequestsTotal.WithLabelValues(op, status).Inc()
	}
}
