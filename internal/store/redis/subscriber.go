package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

type getClient interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

// LastBlock returns the newest announced block of symbol; ok is false when
// none was announced.
func LastBlock(ctx context.Context, client getClient, symbol string) (BlockEvent, bool, error) {
	payload, err := client.Get(ctx, LastBlockKey(symbol)).Result()
	if errors.Is(err, goredis.Nil) {
		return BlockEvent{}, false, nil
	}
	if err != nil {
		return BlockEvent{}, false, fmt.Errorf("get %s: %w", LastBlockKey(symbol), err)
	}
	ev, err := DecodeBlockEvent(payload)
	if err != nil {
		return BlockEvent{}, false, err
	}
	return ev, true, nil
}

// Subscribe streams block events of symbols until ctx is done. Malformed
// payloads are logged and skipped. The channel is closed on return.
func Subscribe(ctx context.Context, client *goredis.Client, symbols []string, log zerolog.Logger) (<-chan BlockEvent, error) {
	channels := make([]string, len(symbols))
	for i, s := range symbols {
		channels[i] = BlockChannel(s)
	}
	sub := client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}

	out := make(chan BlockEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := DecodeBlockEvent(msg.Payload)
				if err != nil {
					log.Warn().Err(err).Str("channel", msg.Channel).Msg("skipping block event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
