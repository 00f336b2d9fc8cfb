// README: Redis cache of the order status view (order_status:{id}, short TTL).
package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"foodline/internal/types"
)

const (
	keyOrderStatus = "order_status:%s"
	ttlStatusCache = 5 * time.Minute
)

// setIfNewer keeps the cached view with the highest statusVersion.
var setIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
	local ok, view = pcall(cjson.decode, cur)
	if ok and type(view) == 'table' and tonumber(view['statusVersion']) and tonumber(view['statusVersion']) > tonumber(ARGV[2]) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

type RedisStatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStatusCache(rdb *redis.Client) *RedisStatusCache {
	return &RedisStatusCache{rdb: rdb, ttl: ttlStatusCache}
}

func (c *RedisStatusCache) Get(ctx context.Context, id types.ID) (*StatusView, error) {
	raw, err := c.rdb.Get(ctx, fmt.Sprintf(keyOrderStatus, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v StatusView
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode cached status: %w", err)
	}
	return &v, nil
}

func (c *RedisStatusCache) Set(ctx context.Context, v StatusView) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(keyOrderStatus, v.OrderID)
	return setIfNewer.Run(ctx, c.rdb, []string{key}, raw, v.StatusVersion, c.ttl.Milliseconds()).Err()
}
