package display

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisQueueSize bounds the updates waiting for the Redis writer.
const RedisQueueSize = 64

// RedisSink mirrors display slots into a Redis hash and publishes every
// update on a channel, so a proctor dashboard can follow a live attempt.
// Writes happen on a background goroutine; Publish never waits for Redis.
//
//   - hash  examrun:display:<sessionID>   slot -> text
//   - chan  examrun:display:<sessionID>:events
type RedisSink struct {
	client    *redis.Client
	sessionID string
	ttl       time.Duration
	timeout   time.Duration
	log       zerolog.Logger

	mu      sync.Mutex
	closed  bool
	queue   chan Update
	drained chan struct{}
	dropped atomic.Int64
}

// DialRedis parses url, connects and pings the server.
func DialRedis(ctx context.Context, url string, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().Str("addr", opt.Addr).Int("db", opt.DB).Msg("redis connected")
	return rdb, nil
}

// NewRedisSink creates a sink for one session and starts its writer. A zero
// ttl keeps keys forever. Call Flush or Close to stop the writer.
func NewRedisSink(client *redis.Client, sessionID string, ttl time.Duration, log zerolog.Logger) *RedisSink {
	s := &RedisSink{
		client:    client,
		sessionID: sessionID,
		ttl:       ttl,
		timeout:   500 * time.Millisecond,
		log:       log.With().Str("component", "redis_sink").Logger(),
		queue:     make(chan Update, RedisQueueSize),
		drained:   make(chan struct{}),
	}
	go s.run()
	return s
}

// HashKey is the Redis hash holding the latest text of each slot.
func (s *RedisSink) HashKey() string {
	return "examrun:display:" + s.sessionID
}

// Channel is the pub/sub channel receiving every update.
func (s *RedisSink) Channel() string {
	return s.HashKey() + ":events"
}

type redisEvent struct {
	Slot   string `json:"slot"`
	Text   string `json:"text"`
	Danger bool   `json:"danger"`
}

// Publish queues u for the writer. Updates are dropped while the queue is
// full and ignored after Flush.
func (s *RedisSink) Publish(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- u:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.log.Warn().Int64("dropped", n).Msg("redis writer behind, dropping display updates")
		}
	}
}

// Dropped returns how many updates were discarded because the queue was full.
func (s *RedisSink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *RedisSink) run() {
	defer close(s.drained)
	for u := range s.queue {
		s.write(u)
	}
}

func (s *RedisSink) write(u Update) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	payload, err := json.Marshal(redisEvent{Slot: u.Slot, Text: u.Text, Danger: u.Danger})
	if err != nil {
		s.log.Error().Err(err).Msg("marshal display event")
		return
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.HashKey(), u.Slot, u.Text)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.HashKey(), s.ttl)
	}
	pipe.Publish(ctx, s.Channel(), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		// Best effort.
		s.log.Warn().Err(err).Str("slot", u.Slot).Msg("publish display update")
	}
}

// Flush stops accepting updates and waits until the queued ones are written
// or ctx ends.
func (s *RedisSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes the queue and removes the session's hash.
func (s *RedisSink) Close(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}
	return s.client.Del(ctx, s.HashKey()).Err()
}
