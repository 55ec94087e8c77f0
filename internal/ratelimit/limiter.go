package ratelimit

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/perishables/internal/config"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const storePrefix = "perishables:ratelimit"

var (
	ErrRateLimited  = errors.New("rate_limited")
	ErrLimiterStore = errors.New("rate_limit_store_error")
)

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

// Limiter caps requests per key with a fixed window rate such as "120-M".
type Limiter struct {
	log      *zap.Logger
	instance *limiter.Limiter
}

func New(p Params) (*Limiter, error) {
	log := p.Log.Named("ratelimit")
	var (
		store limiter.Store
		err   error
	)
	if p.Redis != nil {
		store, err = sredis.NewStoreWithOptions(p.Redis, limiter.StoreOptions{Prefix: storePrefix})
		if err != nil {
			return nil, err
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: storePrefix})
	}
	return NewWithStore(log, store, p.Cfg.RateLimit)
}

func NewWithStore(log *zap.Logger, store limiter.Store, formatted string) (*Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("rate limit %q: %w", formatted, err)
	}
	log.Info("rate limit configured", zap.Int64("limit", rate.Limit), zap.Duration("period", rate.Period))
	return &Limiter{log: log, instance: limiter.New(store, rate)}, nil
}

// Middleware limits by keyFn, falling back to the client IP when it yields "".
// Rejections are recorded as gin errors for the error handling middleware.
func (l *Limiter) Middleware(keyFn func(c *gin.Context) string) gin.HandlerFunc {
	return mgin.NewMiddleware(l.instance,
		mgin.WithKeyGetter(func(c *gin.Context) string {
			if keyFn != nil {
				if key := keyFn(c); key != "" {
					return key
				}
			}
			return c.ClientIP()
		}),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			_ = c.Error(ErrRateLimited)
			c.Abort()
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			l.log.Warn("rate limit store failed", zap.Error(err))
			_ = c.Error(fmt.Errorf("%w: %v", ErrLimiterStore, err))
			c.Abort()
		}),
	)
}
