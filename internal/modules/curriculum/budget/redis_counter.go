package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/curriculum-engine/internal/platform/logger"
)

const redisCounterTTL = 7 * 24 * time.Hour

// KEYS[1] spent total, KEYS[2] latch flag. ARGV: amount, cap, ttl seconds.
var reserveScript = goredis.NewScript(`
local current = redis.call('GET', KEYS[1]) or '0'
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {0, current}
end
local spent = tonumber(current)
local amount = tonumber(ARGV[1])
local cap = tonumber(ARGV[2])
if cap > 0 and spent + amount > cap then
  redis.call('SET', KEYS[2], '1', 'EX', ARGV[3])
  return {0, current}
end
local after = redis.call('INCRBYFLOAT', KEYS[1], ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[3])
return {1, after}
`)

// redisCounter shares one spend total between runners working on the same run id.
type redisCounter struct {
	log      *logger.Logger
	rdb      *goredis.Client
	spentKey string
	latchKey string
}

func NewRedisCounter(log *logger.Logger, rdb *goredis.Client, runID string) (Counter, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis counter: client required")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("redis counter: run id required")
	}
	base := "curriculum:budget:" + runID
	return &redisCounter{
		log:      log.With("service", "RedisBudgetCounter"),
		rdb:      rdb,
		spentKey: base + ":spent",
		latchKey: base + ":exhausted",
	}, nil
}

func (c *redisCounter) Reserve(ctx context.Context, amount, limit float64) (bool, float64, error) {
	ttl := int64(redisCounterTTL / time.Second)
	res, err := reserveScript.Run(ctx, c.rdb, []string{c.spentKey, c.latchKey}, amount, limit, ttl).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("budget reserve script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("budget reserve script: unexpected reply %v", res)
	}
	ok, _ := res[0].(int64)
	spent, err := parseRedisFloat(res[1])
	if err != nil {
		return false, 0, err
	}
	if ok != 1 {
		c.log.Warn("Shared budget refused reservation", "amount", amount, "cap", limit, "spent", spent)
	}
	return ok == 1, spent, nil
}

func (c *redisCounter) Adjust(ctx context.Context, delta float64) (float64, error) {
	if delta == 0 {
		return c.Spent(ctx)
	}
	return c.rdb.IncrByFloat(ctx, c.spentKey, delta).Result()
}

func (c *redisCounter) Spent(ctx context.Context) (float64, error) {
	v, err := c.rdb.Get(ctx, c.spentKey).Float64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return v, err
}

func parseRedisFloat(v any) (float64, error) {
	switch t := v.(type) {
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("budget reserve script: bad total %q: %w", t, err)
		}
		return f, nil
	case int64:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("budget reserve script: bad total %T", v)
	}
}
