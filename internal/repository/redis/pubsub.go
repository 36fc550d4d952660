package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirinyoku/tix-nights/internal/repository"
)

type NightsPubSub struct {
	rdb     *redis.Client
	channel string
}

var _ repository.Notifier = (*NightsPubSub)(nil)

func NewNightsPubSub(rdb *redis.Client) *NightsPubSub {
	return &NightsPubSub{
		rdb:     rdb,
		channel: ChannelNightsChanged(),
	}
}

type nightChangedMsg struct {
	Type     string `json:"type"`
	NightKey string `json:"night_key"`
	TsUnix   int64  `json:"ts_unix"`
}

func (p *NightsPubSub) PublishNightChanged(ctx context.Context, nightKey string) error {
	b, _ := json.Marshal(nightChangedMsg{
		Type:     "night_changed",
		NightKey: nightKey,
		TsUnix:   time.Now().Unix(),
	})

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe calls handler for every change notification until ctx is done.
func (p *NightsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, nightKey string)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	// wait for the subscription to be confirmed so no publish is missed
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg nightChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil && msg.NightKey != "" {
				handler(ctx, msg.NightKey)
			}
		}
	}
}
