package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// BlockEvent announces a persisted block.
type BlockEvent struct {
	Symbol     string `json:"symbol"`
	BlockStart int64  `json:"block_start"`
	LastTS     int64  `json:"last_ts"` // open time of the block's final candle
}

// DecodeBlockEvent parses a published payload.
func DecodeBlockEvent(payload string) (BlockEvent, error) {
	var ev BlockEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return BlockEvent{}, fmt.Errorf("decode block event: %w", err)
	}
	if ev.Symbol == "" {
		return BlockEvent{}, errors.New("decode block event: missing symbol")
	}
	return ev, nil
}

type publishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
}

// Publisher sends block events through a circuit breaker. While the
// breaker is open the newest event per symbol is held back and sent after
// the next successful publish; older held events for a symbol are
// superseded, since only the newest last pointer matters to readers.
type Publisher struct {
	client  publishClient
	breaker *Breaker
	log     zerolog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]BlockEvent

	// Callbacks (optional)
	OnHold func()          // an event was held back
	OnSent func(count int) // held events flushed
}

// NewPublisher creates a publisher.
func NewPublisher(client publishClient, breaker *Breaker, log zerolog.Logger) *Publisher {
	return &Publisher{
		client:  client,
		breaker: breaker,
		log:     log.With().Str("component", "redis-publisher").Logger(),
		timeout: 2 * time.Second,
		pending: make(map[string]BlockEvent),
	}
}

// Publish sends ev. A rejected or failed send holds the event back and
// returns the error.
func (p *Publisher) Publish(ctx context.Context, ev BlockEvent) error {
	if err := p.send(ctx, ev); err != nil {
		p.hold(ev)
		return err
	}
	p.flush(ctx, ev.Symbol)
	return nil
}

// OnBlock adapts Publish to the sync engine's block hook. Failures are
// logged; they never reach ingestion.
func (p *Publisher) OnBlock(symbol string, blockStart, lastTS int64) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	ev := BlockEvent{Symbol: symbol, BlockStart: blockStart, LastTS: lastTS}
	if err := p.Publish(ctx, ev); err != nil {
		p.log.Warn().Err(err).Str("symbol", symbol).Int64("block_start", blockStart).Msg("block event held back")
	}
}

// Pending returns the number of held events.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Publisher) send(ctx context.Context, ev BlockEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.breaker.Execute(func() error {
		if err := p.client.Set(ctx, LastBlockKey(ev.Symbol), payload, 0).Err(); err != nil {
			return fmt.Errorf("set %s: %w", LastBlockKey(ev.Symbol), err)
		}
		if err := p.client.Publish(ctx, BlockChannel(ev.Symbol), payload).Err(); err != nil {
			return fmt.Errorf("publish %s: %w", BlockChannel(ev.Symbol), err)
		}
		return nil
	})
}

func (p *Publisher) hold(ev BlockEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.pending[ev.Symbol]; ok && cur.LastTS >= ev.LastTS {
		return
	}
	p.pending[ev.Symbol] = ev
	if p.OnHold != nil {
		p.OnHold()
	}
}

// flush sends held events; sent is the symbol just published, whose held
// event (if older) is obsolete.
func (p *Publisher) flush(ctx context.Context, sent string) {
	p.mu.Lock()
	delete(p.pending, sent)
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	held := p.pending
	p.pending = make(map[string]BlockEvent)
	p.mu.Unlock()

	flushed := 0
	for _, ev := range held {
		if err := p.send(ctx, ev); err != nil {
			p.hold(ev)
			continue
		}
		flushed++
	}
	if flushed > 0 {
		p.log.Info().Int("count", flushed).Msg("flushed held block events")
		if p.OnSent != nil {
			p.OnSent(flushed)
		}
	}
}
