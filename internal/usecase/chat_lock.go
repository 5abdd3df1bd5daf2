package usecase

import (
	"context"
	"fmt"
	"sync"
)

// chatLocks serializes the generations of one chat so each sees the history
// the previous one persisted. Generations of different chats don't contend.
type chatLocks struct {
	mu    sync.Mutex
	locks map[string]*chatLock
}

type chatLock struct {
	sem  chan struct{}
	refs int // holders plus waiters
}

func newChatLocks() *chatLocks {
	return &chatLocks{locks: make(map[string]*chatLock)}
}

// lock blocks until chatID is free or ctx is done. The returned unlock is
// idempotent.
func (l *chatLocks) lock(ctx context.Context, chatID string) (func(), error) {
	l.mu.Lock()
	cl, ok := l.locks[chatID]
	if !ok {
		cl = &chatLock{sem: make(chan struct{}, 1)}
		l.locks[chatID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	select {
	case cl.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-cl.sem
				l.release(chatID, cl)
			})
		}, nil
	case <-ctx.Done():
		l.release(chatID, cl)
		return nil, fmt.Errorf("wait for chat %s: %w", chatID, ctx.Err())
	}
}

func (l *chatLocks) release(chatID string, cl *chatLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cl.refs--
	if cl.refs == 0 {
		delete(l.locks, chatID)
	}
}

// active returns the number of chats with a holder or a waiter.
func (l *chatLocks) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
