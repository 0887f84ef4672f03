// Package notify announces wishlist and practitioner lifecycle events.
//
// Delivery (mail, chat) lives outside this service; the log notifier records
// every event so an external relay can pick it up.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/oss-wishlist/wishlist/internal/logging"
)

// Event names a lifecycle change.
type Event string

const (
	WishlistCreated      Event = "wishlist.created"
	WishlistUpdated      Event = "wishlist.updated"
	WishlistClosed       Event = "wishlist.closed"
	WishlistApproved     Event = "wishlist.approved"
	PractitionerCreated  Event = "practitioner.created"
	PractitionerApproved Event = "practitioner.approved"
)

// Notification describes one event.
type Notification struct {
	Event  Event
	Actor  string
	Number int    // wishlist number, zero for practitioner events
	ID     string // record id
	Title  string
	URL    string
	Email  string // contact address of the affected maintainer or practitioner
}

// Notifier receives lifecycle events. Failures never undo the change that
// triggered them.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Log writes notifications to a zap logger.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a notifier that logs at Info.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logging.OrNop(logger).Named("notify")}
}

func (l *Log) Notify(_ context.Context, n Notification) error {
	l.logger.Info(string(n.Event),
		zap.String("actor", n.Actor),
		zap.Int("number", n.Number),
		zap.String("id", n.ID),
		zap.String("title", n.Title),
		zap.String("url", n.URL),
		zap.Bool("has_contact", n.Email != ""),
	)
	return nil
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of the recorded notifications.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

// Events returns the recorded event names in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.sent))
	for i, n := range r.sent {
		out[i] = n.Event
	}
	return out
}

// Multi fans a notification out to several notifiers and returns the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var first error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
