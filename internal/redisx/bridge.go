// Package redisx relays hub frames between server instances over Redis
// pub/sub.
package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham07069/chatgod/internal/logging"
	"github.com/shubham07069/chatgod/internal/ws"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

func Open(ctx context.Context, opts Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// Bridge implements ws.Bridge on a single pub/sub channel.
type Bridge struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

var _ ws.Bridge = (*Bridge)(nil)

func NewBridge(rdb *redis.Client, channel string, logger *zap.Logger) *Bridge {
	return &Bridge{rdb: rdb, channel: channel, logger: logging.OrNop(logger)}
}

func (b *Bridge) Publish(ctx context.Context, frame ws.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, data).Err()
}

// Run subscribes to the channel and hands every frame to deliver until ctx
// is done.
func (b *Bridge) Run(ctx context.Context, deliver func(ws.Frame)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Info("Subscribed to fan-out channel", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var frame ws.Frame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				b.logger.Warn("Dropping malformed fan-out frame", zap.Error(err))
				continue
			}
			deliver(frame)
		}
	}
}
