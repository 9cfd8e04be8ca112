// Package redis holds the optional Redis side of ingestion: a per-symbol
// writer lease so only one daemon writes a symbol, and block events that
// tell chart servers a new block landed in the store.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("connected to redis")
	return client, nil
}

// BlockChannel is the pub/sub channel announcing blocks of symbol.
func BlockChannel(symbol string) string { return "blocks:" + symbol }

// LastBlockKey holds the most recent block event of symbol.
func LastBlockKey(symbol string) string { return "blocks:last:" + symbol }

// LockKey is the writer lease key of symbol.
func LockKey(symbol string) string { return "lock:writer:" + symbol }
