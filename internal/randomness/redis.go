package randomness

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/logger"

	redis "github.com/redis/go-redis/v9"
)

const DefaultStream = "cardgame:randomness:requests"

// RedisOracle publishes requests to a Redis stream read by oracle workers.
type RedisOracle struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

func NewRedisOracle(rdb *redis.Client, stream string) *RedisOracle {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisOracle{rdb: rdb, stream: stream, maxLen: 100000}
}

func (o *RedisOracle) Submit(ctx context.Context, req *domain.RandomnessRequest) error {
	if o.rdb == nil {
		return errors.New("redis oracle: no client")
	}
	return o.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: o.stream,
		MaxLen: o.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"nonce":      req.Nonce,
			"session_id": req.SessionID,
			"alpha":      hex.EncodeToString(req.Alpha()),
			"expires_at": strconv.FormatInt(req.ExpiresAt.Unix(), 10),
		},
	}).Err()
}

// StreamRequest is a request read back from the stream.
type StreamRequest struct {
	ID        string
	Nonce     string
	SessionID string
	ExpiresAt time.Time
}

func (r StreamRequest) Request() *domain.RandomnessRequest {
	return &domain.RandomnessRequest{
		Nonce:     r.Nonce,
		SessionID: r.SessionID,
		Status:    domain.RequestPending,
		ExpiresAt: r.ExpiresAt,
	}
}

// StreamConsumer tails the request stream. It is the oracle side of RedisOracle.
type StreamConsumer struct {
	rdb    *redis.Client
	stream string
	block  time.Duration
	lastID string
}

func NewStreamConsumer(rdb *redis.Client, stream, fromID string) *StreamConsumer {
	if stream == "" {
		stream = DefaultStream
	}
	if fromID == "" {
		fromID = "$"
	}
	return &StreamConsumer{rdb: rdb, stream: stream, block: 5 * time.Second, lastID: fromID}
}

// Run calls handle for each request until ctx ends. Handler errors are logged
// and the entry is skipped.
func (c *StreamConsumer) Run(ctx context.Context, handle func(context.Context, StreamRequest) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		res, err := c.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{c.stream, c.lastID},
			Count:   16,
			Block:   c.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("xread %s: %w", c.stream, err)
		}
		for _, s := range res {
			for _, msg := range s.Messages {
				c.lastID = msg.ID
				req, err := parseStreamMessage(msg)
				if err != nil {
					logger.Warn("skipping malformed randomness request", "id", msg.ID, "error", err)
					continue
				}
				if err := handle(ctx, req); err != nil {
					logger.Warn("randomness request not served", "nonce", req.Nonce, "error", err)
				}
			}
		}
	}
}

func parseStreamMessage(msg redis.XMessage) (StreamRequest, error) {
	nonce, _ := msg.Values["nonce"].(string)
	sessionID, _ := msg.Values["session_id"].(string)
	if nonce == "" || sessionID == "" {
		return StreamRequest{}, errors.New("missing nonce or session_id")
	}
	req := StreamRequest{ID: msg.ID, Nonce: nonce, SessionID: sessionID}
	if v, ok := msg.Values["expires_at"].(string); ok {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.ExpiresAt = time.Unix(sec, 0)
		}
	}
	return req, nil
}
