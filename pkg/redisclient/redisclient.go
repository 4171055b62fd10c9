package redisclient

import (
  "context"
  "errors"
  "fmt"
  "sort"
  "sync/atomic"
  "time"

  "github.com/alim08/fin_quotes/pkg/logger"
  "github.com/alim08/fin_quotes/pkg/metrics"
  "github.com/cenkalti/backoff/v4"
  "github.com/go-redis/redis/v8"
  "go.uber.org/zap"
)

var (
  ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
  ErrNotFound           = errors.New("key not found")
)

const (
  stateClosed int32 = iota
  stateOpen
  stateHalfOpen
)

const (
  failureThreshold = 5
  breakerCooldown  = 30 * time.Second
  attemptTimeout   = 5 * time.Second
  maxRetries       = 3
)

type Client struct {
  rdb *redis.Client
  // Circuit breaker state
  failureCount int64
  lastFailure  int64
  state        int32
}

// New constructs a Client from a redis:// URL
func New(redisURL string) (*Client, error) {
  opt, err := redis.ParseURL(redisURL)
  if err != nil {
    return nil, fmt.Errorf("invalid redis url: %w", err)
  }
  opt.PoolSize = 4
  opt.MinIdleConns = 1
  opt.MaxRetries = 0 // retries go through backoff
  opt.DialTimeout = 5 * time.Second
  opt.ReadTimeout = 10 * time.Second
  opt.WriteTimeout = 10 * time.Second
  return Wrap(redis.NewClient(opt)), nil
}

// Wrap adopts an existing go-redis client.
func Wrap(rdb *redis.Client) *Client {
  return &Client{rdb: rdb}
}

// withMetrics wraps operations with metrics collection
func (c *Client) withMetrics(operation string, fn func() error) error {
  start := time.Now()
  err := fn()

  metrics.RedisOperationDuration.WithLabelValues(operation, metrics.Status(err)).Observe(time.Since(start).Seconds())
  if err != nil && !errors.Is(err, ErrNotFound) {
    metrics.RedisErrors.WithLabelValues(operation).Inc()
  }
  return err
}

// allow reports whether a call may go through. An open breaker lets one
// probe through once the cooldown has passed.
func (c *Client) allow() bool {
  if atomic.LoadInt32(&c.state) != stateOpen {
    return true
  }
  last := time.Unix(atomic.LoadInt64(&c.lastFailure), 0)
  if time.Since(last) < breakerCooldown {
    return false
  }
  return atomic.CompareAndSwapInt32(&c.state, stateOpen, stateHalfOpen)
}

// checkCircuitBreaker checks if circuit breaker should be opened/closed
func (c *Client) checkCircuitBreaker(err error) {
  if err != nil && err != redis.Nil {
    n := atomic.AddInt64(&c.failureCount, 1)
    atomic.StoreInt64(&c.lastFailure, time.Now().Unix())

    if n >= failureThreshold || atomic.LoadInt32(&c.state) == stateHalfOpen {
      if atomic.SwapInt32(&c.state, stateOpen) != stateOpen {
        logger.Log.Warn("circuit breaker opened", zap.Int64("failures", n))
      }
    }
    return
  }
  atomic.StoreInt64(&c.failureCount, 0)
  atomic.StoreInt32(&c.state, stateClosed)
}

// retry runs op with exponential backoff. redis.Nil is final.
func (c *Client) retry(ctx context.Context, op func(context.Context) error) error {
  if !c.allow() {
    return ErrCircuitBreakerOpen
  }
  attempt := func() error {
    actx, cancel := context.WithTimeout(ctx, attemptTimeout)
    defer cancel()
    err := op(actx)
    c.checkCircuitBreaker(err)
    if err == redis.Nil {
      return backoff.Permanent(ErrNotFound)
    }
    return err
  }
  b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
  return backoff.Retry(attempt, b)
}

// Set stores value under key. A zero ttl keeps it forever.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
  return c.withMetrics("set", func() error {
    return c.retry(ctx, func(ctx context.Context) error {
      return c.rdb.Set(ctx, key, value, ttl).Err()
    })
  })
}

// Get returns the value of key, or ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
  var out []byte
  err := c.withMetrics("get", func() error {
    return c.retry(ctx, func(ctx context.Context) error {
      b, err := c.rdb.Get(ctx, key).Bytes()
      out = b
      return err
    })
  })
  return out, err
}

// SAdd adds members to the set at key
func (c *Client) SAdd(ctx context.Context, key string, members ...string) error {
  args := make([]interface{}, len(members))
  for i, m := range members {
    args[i] = m
  }
  return c.withMetrics("sadd", func() error {
    return c.retry(ctx, func(ctx context.Context) error {
      return c.rdb.SAdd(ctx, key, args...).Err()
    })
  })
}

// SMembers returns the members of the set at key, sorted
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
  var out []string
  err := c.withMetrics("smembers", func() error {
    return c.retry(ctx, func(ctx context.Context) error {
      m, err := c.rdb.SMembers(ctx, key).Result()
      out = m
      return err
    })
  })
  sort.Strings(out)
  return out, err
}

// Ping checks the server answers
func (c *Client) Ping(ctx context.Context) error {
  return c.withMetrics("ping", func() error {
    return c.rdb.Ping(ctx).Err()
  })
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
  return c.rdb.Close()
}
