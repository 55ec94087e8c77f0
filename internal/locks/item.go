package locks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	ItemLockTTL  = 10 * time.Second
	ItemLockWait = 5 * time.Second
)

func ItemKey(itemID string) string {
	return "perishables:lock:item:" + itemID
}

// LockItem guards every write to an item's price. The in-process lock is
// always taken; the redis lock only when locker is non-nil.
func LockItem(ctx context.Context, mutex *KeyedMutex, locker *Locker, log *zap.Logger, itemID string) (func(), error) {
	unlock := mutex.Lock(itemID)
	if locker == nil {
		return unlock, nil
	}

	key := ItemKey(itemID)
	token, err := locker.Acquire(ctx, key, ItemLockTTL, ItemLockWait)
	if err != nil {
		unlock()
		return nil, err
	}
	return func() {
		if err := locker.Release(context.WithoutCancel(ctx), key, token); err != nil && log != nil {
			log.Warn("release item lock failed", zap.String("item_id", itemID), zap.Error(err))
		}
		unlock()
	}, nil
}
