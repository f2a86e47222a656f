package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adsign/notify/internal/model"
	"github.com/adsign/notify/pkg/metrics"
)

// DefaultTTL is the fixed visibility window of a toast.
const DefaultTTL = 5 * time.Second

// Toast is a transient display record derived from a notification at push
// time. It lives only in the orchestrator's queue and is never persisted.
type Toast struct {
	ID        string
	Title     string
	Message   string
	OrderID   string
	CreatedAt time.Time

	// gen guards the scheduled eviction: a stale timer whose toast was
	// already dismissed must not remove a later toast.
	gen uint64
}

// Toaster owns the queue of just-arrived notification toasts. Each toast
// self-removes after the TTL unless dismissed earlier. Removing a toast never
// touches notification state elsewhere.
type Toaster struct {
	mu      sync.Mutex
	ttl     time.Duration
	queue   []Toast
	nextGen uint64
	timers  map[string]*time.Timer
	onEvict func(Toast)
	metrics *metrics.Metrics
}

type Option func(*Toaster)

// WithTTL overrides the visibility window.
func WithTTL(ttl time.Duration) Option {
	return func(t *Toaster) {
		t.ttl = ttl
	}
}

// WithMetrics wires the active-toast gauge.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Toaster) {
		t.metrics = m
	}
}

// WithEvictHook registers a callback invoked after a toast leaves the queue,
// whether by TTL or dismissal. Used by render layers to repaint.
func WithEvictHook(fn func(Toast)) Option {
	return func(t *Toaster) {
		t.onEvict = fn
	}
}

func New(opts ...Option) *Toaster {
	t := &Toaster{
		ttl:    DefaultTTL,
		timers: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Push derives a toast from the notification, appends it to the queue, and
// schedules its removal after the TTL.
func (t *Toaster) Push(n model.Notification) Toast {
	t.mu.Lock()

	t.nextGen++
	toast := Toast{
		ID:        uuid.NewString(),
		Title:     titleFor(n.Kind),
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
		gen:       t.nextGen,
	}
	if n.Target != nil {
		toast.OrderID = n.Target.OrderID
	}
	t.queue = append(t.queue, toast)
	t.setGauge()

	id, gen := toast.ID, toast.gen
	t.timers[id] = time.AfterFunc(t.ttl, func() {
		t.remove(id, gen)
	})
	t.mu.Unlock()
	return toast
}

// Dismiss removes a toast immediately and cancels its pending eviction.
func (t *Toaster) Dismiss(id string) {
	t.remove(id, 0)
}

// Active returns the visible toasts in arrival order.
func (t *Toaster) Active() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Toast, len(t.queue))
	copy(out, t.queue)
	return out
}

// Close cancels every pending eviction timer.
func (t *Toaster) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	t.queue = nil
	t.setGauge()
}

// remove drops the toast with the given id. A non-zero gen restricts removal
// to the exact toast instance the timer was armed for.
func (t *Toaster) remove(id string, gen uint64) {
	t.mu.Lock()
	var evicted *Toast
	for i := range t.queue {
		if t.queue[i].ID != id {
			continue
		}
		if gen != 0 && t.queue[i].gen != gen {
			break
		}
		ev := t.queue[i]
		evicted = &ev
		t.queue = append(t.queue[:i], t.queue[i+1:]...)
		if timer, ok := t.timers[id]; ok {
			timer.Stop()
			delete(t.timers, id)
		}
		break
	}
	t.setGauge()
	hook := t.onEvict
	t.mu.Unlock()

	if evicted != nil && hook != nil {
		hook(*evicted)
	}
}

func (t *Toaster) setGauge() {
	if t.metrics != nil {
		t.metrics.ToastsActive.Set(float64(len(t.queue)))
	}
}

func titleFor(kind model.Kind) string {
	if kind == model.KindRole {
		return "Team notification"
	}
	return "New notification"
}
