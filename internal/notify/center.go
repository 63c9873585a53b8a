// Package notify keeps the short-lived messages shown to a visitor after
// cart, wishlist, checkout and auth actions.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the severity of a notification
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// DefaultDuration is used when a notification does not set its own
const DefaultDuration = 5 * time.Second

// Action targets understood by the storefront UI
const (
	ActionOpenCart = "open-cart"
)

// Action is an optional button attached to a notification
type Action struct {
	Label  string `json:"label"`
	Target string `json:"target"`
}

// Notification is a single user-facing message
type Notification struct {
	ID        string        `json:"id"`
	Type      Kind          `json:"type"`
	Message   string        `json:"message"`
	Duration  time.Duration `json:"-"`
	Action    *Action       `json:"action,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
}

// WithDuration sets how long the notification stays visible. A negative
// duration keeps it until removed.
func (n Notification) WithDuration(d time.Duration) Notification {
	n.Duration = d
	return n
}

// WithAction attaches an action button
func (n Notification) WithAction(label, target string) Notification {
	n.Action = &Action{Label: label, Target: target}
	return n
}

func Success(msg string) Notification { return Notification{Type: KindSuccess, Message: msg} }
func Error(msg string) Notification   { return Notification{Type: KindError, Message: msg} }
func Warning(msg string) Notification { return Notification{Type: KindWarning, Message: msg} }
func Info(msg string) Notification    { return Notification{Type: KindInfo, Message: msg} }

// Notifier receives notifications from the stores
type Notifier interface {
	Notify(n Notification) string
}

// Discard drops every notification
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Notification) string { return "" }

// Center holds the active notifications of one visitor and expires them
type Center struct {
	mu              sync.Mutex
	items           []Notification
	timers          map[string]*time.Timer
	subs            map[int]chan Notification
	nextSub         int
	defaultDuration time.Duration
	now             func() time.Time
}

// NewCenter creates a notification center. defaultDuration <= 0 uses DefaultDuration.
func NewCenter(defaultDuration time.Duration) *Center {
	if defaultDuration <= 0 {
		defaultDuration = DefaultDuration
	}
	return &Center{
		timers:          make(map[string]*time.Timer),
		subs:            make(map[int]chan Notification),
		defaultDuration: defaultDuration,
		now:             time.Now,
	}
}

// Notify stores n, schedules its removal and fans it out to subscribers.
// It returns the generated id.
func (c *Center) Notify(n Notification) string {
	n.ID = "notification_" + uuid.NewString()
	n.CreatedAt = c.now()

	duration := n.Duration
	if duration == 0 {
		duration = c.defaultDuration
	}
	if duration > 0 {
		expires := n.CreatedAt.Add(duration)
		n.ExpiresAt = &expires
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = append(c.items, n)
	if duration > 0 {
		id := n.ID
		c.timers[id] = time.AfterFunc(duration, func() { c.Remove(id) })
	}

	for _, ch := range c.subs {
		select {
		case ch <- n:
		default:
		}
	}

	return n.ID
}

// Remove deletes a notification; unknown ids are ignored
func (c *Center) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// ClearAll removes every notification
func (c *Center) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.items = nil
}

// List returns the active notifications, oldest first
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Notification, len(c.items))
	copy(out, c.items)
	return out
}

// Subscribe streams new notifications until cancel is called. Notifications
// are dropped for a subscriber that falls behind by more than buffer.
func (c *Center) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Notification, buffer)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Close stops all timers and subscriptions
func (c *Center) Close() {
	c.ClearAll()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}
