package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/veranemoloko/impex-tasks/internal/domain"
)

const commandField = "command"

// RedisDispatcher appends commands to a Redis stream read by worker consumer groups.
type RedisDispatcher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisDispatcher connects to Redis and checks the connection.
func NewRedisDispatcher(addr, password string, db int, stream string, maxLen int64) (*RedisDispatcher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cannot connect to Redis at %s: %w", addr, err)
	}

	return NewRedisDispatcherWithClient(rdb, stream, maxLen), nil
}

func NewRedisDispatcherWithClient(client *redis.Client, stream string, maxLen int64) *RedisDispatcher {
	return &RedisDispatcher{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Dispatch serializes cmd and adds it to the stream.
func (d *RedisDispatcher) Dispatch(ctx context.Context, cmd domain.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]interface{}{
			commandField: data,
		},
	}
	if d.maxLen > 0 {
		args.MaxLen = d.maxLen
		args.Approx = true
	}

	id, err := d.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", d.stream, err)
	}

	slog.Debug("command dispatched", "stream", d.stream, "entry_id", id, "command", cmd.Name)
	return nil
}

// Receive reads up to ten commands for the consumer group and acknowledges them.
// It returns an empty slice when nothing arrived within block. A non-positive block polls once.
func (d *RedisDispatcher) Receive(ctx context.Context, group, consumer string, block time.Duration) ([]domain.Command, error) {
	if block <= 0 {
		block = -1
	}

	err := d.client.XGroupCreateMkStream(ctx, d.stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create group %s: %w", group, err)
	}

	res, err := d.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{d.stream, ">"},
		Count:    10,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup %s: %w", d.stream, err)
	}

	var cmds []domain.Command
	for _, stream := range res {
		for _, msg := range stream.Messages {
			if cmd, ok := decodeCommand(msg); ok {
				cmds = append(cmds, cmd)
			} else {
				slog.Warn("dropping malformed stream entry", "stream", d.stream, "entry_id", msg.ID)
			}
			if err := d.client.XAck(ctx, d.stream, group, msg.ID).Err(); err != nil {
				return cmds, fmt.Errorf("xack %s: %w", msg.ID, err)
			}
		}
	}
	return cmds, nil
}

func (d *RedisDispatcher) Close() error {
	return d.client.Close()
}

func decodeCommand(msg redis.XMessage) (domain.Command, bool) {
	var cmd domain.Command
	raw, ok := msg.Values[commandField].(string)
	if !ok {
		return cmd, false
	}
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		return cmd, false
	}
	return cmd, true
}
