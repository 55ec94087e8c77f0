package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	var inside int32
	var overlap int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("mlk-001")
			if atomic.AddInt32(&inside, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), overlap)
	assert.Equal(t, 0, k.size())
}

func TestKeyedMutexDifferentKeysDoNotBlock(t *testing.T) {
	k := NewKeyedMutex()
	unlockA := k.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestNilLockerReleaseIsNoop(t *testing.T) {
	var l *Locker
	assert.NoError(t, l.Release(context.Background(), "k", "t"))
	_, _, err := l.TryLock(context.Background(), "k", time.Second)
	assert.Error(t, err)
}

func TestLockItemWithoutRedisUsesKeyedMutex(t *testing.T) {
	k := NewKeyedMutex()
	unlock, err := LockItem(context.Background(), k, nil, nil, "mlk-001")
	assert.NoError(t, err)
	assert.Equal(t, 1, k.size())

	unlock()
	assert.Equal(t, 0, k.size())
	assert.Equal(t, "perishables:lock:item:mlk-001", ItemKey("mlk-001"))
}
