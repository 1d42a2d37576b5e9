// Package cluster carries voice state between cooperating server nodes.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotReceiver = errors.New("node is not a mute receiver")
	ErrNotSender   = errors.New("node is not a mute sender")
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings; addr may list several nodes.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (redis.UniversalClient, error) {
	addrs := strings.FieldsFunc(cfg.Addr, func(r rune) bool { return r == ',' || r == ';' })
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Topology is the deployment capability flag.
type Topology struct {
	Forwarding bool
}

func (t Topology) IsForwarding() bool { return t.Forwarding }
