package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestChatLocksSerializeOneChat(t *testing.T) {
	l := newChatLocks()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.lock(context.Background(), "c1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	if got := maxInside.Load(); got != 1 {
		t.Errorf("max concurrent holders = %d, want 1", got)
	}
	if got := l.active(); got != 0 {
		t.Errorf("active = %d after all unlocked, want 0", got)
	}
}

func TestChatLocksIndependentChats(t *testing.T) {
	l := newChatLocks()
	unlockA, err := l.lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.lock(ctx, "b")
	if err != nil {
		t.Fatalf("lock b while a is held: %v", err)
	}
	unlockB()

	if got := l.active(); got != 1 {
		t.Errorf("active = %d, want 1", got)
	}
}

func TestChatLocksCancelWhileWaiting(t *testing.T) {
	l := newChatLocks()
	unlock, err := l.lock(context.Background(), "c1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.lock(ctx, "c1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}

	unlock()
	unlock() // idempotent
	if got := l.active(); got != 0 {
		t.Errorf("active = %d, want 0", got)
	}

	again, err := l.lock(context.Background(), "c1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}
