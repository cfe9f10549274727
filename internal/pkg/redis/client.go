// internal/pkg/redis/client.go
package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 客户端，统一连接与超时配置
type Client struct {
	rdb *redis.Client
}

// NewClient 创建并校验一个 Redis 连接
func NewClient(addr string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", addr)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient 暴露底层客户端，供需要 pipeline 等高级能力的调用方使用
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
