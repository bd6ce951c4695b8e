package models

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/stridemfg/mfgtrack_backend/config"
	"gorm.io/gorm"
)

// withCardLock runs fn in a transaction while holding the per-card lock
// across the commit. The lock must outlive the commit: a writer released
// before its insert commits would let the next lock holder read a snapshot
// that misses the row and, for document creation, insert a duplicate.
//
// With Redis configured it uses redislock; otherwise it falls back to a
// MySQL advisory lock. GET_LOCK is connection-scoped, so the fallback pins
// one connection, takes the lock, commits the transaction on that same
// connection and only then releases.
func withCardLock(ctx context.Context, cardId int, fn func(tx *gorm.DB) error) error {
	lockName := fmt.Sprintf("tracking:card:%d", cardId)
	db := config.GetDB().WithContext(ctx)

	if locker := config.GetRedisLock(); locker != nil && !config.ForceDatabaseLock() {
		lock, err := locker.Obtain(config.GetRedisContext(), lockName, 30*time.Second, &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50),
		})
		if err != nil {
			return fmt.Errorf("could not acquire tracking lock for card_id=%d: %w", cardId, err)
		}
		defer func() { _ = lock.Release(config.GetRedisContext()) }()
		return db.Transaction(fn)
	}

	return db.Connection(func(conn *gorm.DB) error {
		var ok int
		if err := conn.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
			return err
		}
		if ok != 1 {
			return fmt.Errorf("could not acquire tracking lock for card_id=%d", cardId)
		}
		defer func() {
			var released int
			_ = conn.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&released).Error
		}()
		return conn.Transaction(fn)
	})
}
