package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"limbo/internal/domain"
)

// subscription is one registered handler. Unordered subscriptions get a
// goroutine per event; ordered ones own a mailbox drained by a single worker.
type subscription struct {
	id      uint64
	handler domain.EventHandler
	chatID  string // "" = every chat
	box     *mailbox
}

func (s *subscription) matches(ev domain.Event) bool {
	return s.chatID == "" || s.chatID == ev.ChatID
}

type delivery struct {
	ctx context.Context
	ev  domain.Event
}

// mailbox is an unbounded FIFO so that Publish never blocks on a slow handler.
type mailbox struct {
	mu      sync.Mutex
	pending []delivery
	stopped bool
	wake    chan struct{}
	stop    chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1), stop: make(chan struct{})}
}

func (m *mailbox) push(d delivery) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.pending = append(m.pending, d)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) take() []delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending
	m.pending = nil
	return out
}

func (m *mailbox) close() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()
	close(m.stop)
}

// Bus is an in-process, goroutine-safe event bus.
type Bus struct {
	mu      sync.RWMutex
	typed   map[domain.EventType][]*subscription
	allSubs []*subscription
	nextID  atomic.Uint64
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  bool // guarded by mu
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		typed:  make(map[domain.EventType][]*subscription),
		logger: logger,
	}
}

// Publish fans out an event to matching typed subscribers and all-event subscribers.
// Unordered handlers run in their own goroutine; ordered handlers receive
// events in publish order. Panicking handlers are recovered.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	var ordered, unordered []*subscription
	for _, subs := range [][]*subscription{b.typed[event.Type], b.allSubs} {
		for _, sub := range subs {
			switch {
			case !sub.matches(event):
			case sub.box != nil:
				ordered = append(ordered, sub)
			default:
				unordered = append(unordered, sub)
			}
		}
	}
	// Add under the lock so Close cannot start waiting in between.
	b.wg.Add(len(unordered))
	b.mu.RUnlock()

	for _, sub := range ordered {
		sub.box.push(delivery{ctx: ctx, ev: event})
	}
	for _, sub := range unordered {
		go func() {
			defer b.wg.Done()
			b.invoke(ctx, event, sub)
		}()
	}
}

func (b *Bus) invoke(ctx context.Context, event domain.Event, sub *subscription) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(event.Type),
				"chat_id", event.ChatID,
				"panic", r,
			)
		}
	}()
	sub.handler(ctx, event)
}

func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case <-sub.box.wake:
			for _, d := range sub.box.take() {
				b.invoke(d.ctx, d.ev, sub)
			}
		case <-sub.box.stop:
			for _, d := range sub.box.take() {
				b.invoke(d.ctx, d.ev, sub)
			}
			return
		}
	}
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(&subscription{handler: handler}, eventType)
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(&subscription{handler: handler}, "")
}

// SubscribeChat registers an ordered handler for every event of one chat.
// The frontend uses it to stream a generation: text deltas and tool call
// updates arrive in the order the orchestrator published them.
func (b *Bus) SubscribeChat(chatID string, handler domain.EventHandler) func() {
	return b.add(&subscription{handler: handler, chatID: chatID, box: newMailbox()}, "")
}

// SubscribeOrdered registers an ordered handler for one event type, or for
// every event when eventType is empty.
func (b *Bus) SubscribeOrdered(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(&subscription{handler: handler, box: newMailbox()}, eventType)
}

func (b *Bus) add(sub *subscription, eventType domain.EventType) func() {
	sub.id = b.nextID.Add(1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	if sub.box != nil {
		b.wg.Add(1)
		go b.run(sub)
	}
	if eventType == "" {
		b.allSubs = append(b.allSubs, sub)
	} else {
		b.typed[eventType] = append(b.typed[eventType], sub)
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if eventType == "" {
				b.allSubs = remove(b.allSubs, sub.id)
			} else {
				b.typed[eventType] = remove(b.typed[eventType], sub.id)
			}
			b.mu.Unlock()
			if sub.box != nil {
				sub.box.close()
			}
		})
	}
}

func remove(subs []*subscription, id uint64) []*subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Close prevents new publishes and waits for all in-flight handlers to finish,
// including events already queued for ordered handlers.
// Close is idempotent and safe to call multiple times. Subscribing after Close
// is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var boxes []*mailbox
	for _, subs := range b.typed {
		for _, s := range subs {
			if s.box != nil {
				boxes = append(boxes, s.box)
			}
		}
	}
	for _, s := range b.allSubs {
		if s.box != nil {
			boxes = append(boxes, s.box)
		}
	}
	b.mu.Unlock()

	for _, m := range boxes {
		m.close()
	}
	b.wg.Wait()
}
