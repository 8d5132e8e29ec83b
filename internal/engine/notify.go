package engine

import (
	"log/slog"
	"sync"

	"github.com/roach88/tally/internal/model"
)

// NotificationKind names what happened to the history.
type NotificationKind string

const (
	NotifyCommitted NotificationKind = "committed"
	NotifyRestored  NotificationKind = "restored"
	NotifyCleared   NotificationKind = "cleared"
)

// Notification is delivered to subscribers after history changes.
// Commit and Changes are empty for NotifyCleared.
type Notification struct {
	Kind    NotificationKind
	Commit  model.Commit
	Changes []model.Change
}

type notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Notification
	log  *slog.Logger
}

func newNotifier(log *slog.Logger) *notifier {
	return &notifier{
		subs: make(map[int]chan Notification),
		log:  log,
	}
}

// Subscribe registers for history notifications.
//
// The returned channel has the given buffer size (minimum 1). Sends never
// block the tracker: when a subscriber's buffer is full the notification is
// dropped for that subscriber and logged. The cancel function unregisters
// and closes the channel; it is safe to call more than once.
func (t *Tracker) Subscribe(buffer int) (<-chan Notification, func()) {
	return t.notify.subscribe(buffer)
}

func (n *notifier) subscribe(buffer int) (<-chan Notification, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Notification, buffer)

	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// publish delivers a notification to every subscriber without blocking.
func (n *notifier) publish(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for id, ch := range n.subs {
		select {
		case ch <- note:
		default:
			n.log.Warn("history notification dropped", "subscriber", id, "kind", note.Kind, "hash", note.Commit.Hash)
		}
	}
}
