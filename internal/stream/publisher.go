package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wingleeio/chat-zeron/internal/event"
)

// retention is how long a finished stream stays replayable.
const retention = 24 * time.Hour

// appendScript appends one frame unless the stream is already terminal.
// Returning 0 signals a rejected append. The status flip to streaming and
// the publish happen in the same script so readers never observe a frame
// on a pending stream.
var appendScript = redis.NewScript(`
local status = redis.call('GET', KEYS[1])
if status == 'done' or status == 'error' or status == 'timeout' then
  return 0
end
local idx = redis.call('RPUSH', KEYS[2], ARGV[1]) - 1
redis.call('SET', KEYS[1], 'streaming')
redis.call('SET', KEYS[3], ARGV[2])
redis.call('PUBLISH', KEYS[4], cjson.encode({i = idx, f = ARGV[1]}))
return 1
`)

// finishScript transitions to a terminal status exactly once.
var finishScript = redis.NewScript(`
local status = redis.call('GET', KEYS[1])
if status == 'done' or status == 'error' or status == 'timeout' then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('PUBLISH', KEYS[2], cjson.encode({s = ARGV[1]}))
return 1
`)

// notice is the pub/sub payload: either a frame at index i or a status
// transition.
type notice struct {
	Index  *int64 `json:"i,omitempty"`
	Frame  string `json:"f,omitempty"`
	Status string `json:"s,omitempty"`
}

// Publisher is the Redis-backed durable stream implementation.
// Single writer per stream; any number of concurrent readers.
type Publisher struct {
	rdb        *redis.Client
	staleAfter time.Duration
	logger     *slog.Logger
}

// NewPublisher creates a Publisher. staleAfter controls when an abandoned
// non-terminal stream reports timeout; zero disables the stale check.
func NewPublisher(rdb *redis.Client, staleAfter time.Duration, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{rdb: rdb, staleAfter: staleAfter, logger: logger}
}

// Ping verifies Redis connectivity (readiness probe).
func (p *Publisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

func statusKey(id string) string  { return "zeron:stream:" + id + ":status" }
func framesKey(id string) string  { return "zeron:stream:" + id + ":frames" }
func updatedKey(id string) string { return "zeron:stream:" + id + ":updated" }
func channel(id string) string    { return "zeron:stream:" + id }

// Create registers a stream id with status pending.
// Creating an existing stream is a no-op (ids are never reused, so a
// second create can only be a retry of the first).
func (p *Publisher) Create(ctx context.Context, id string) error {
	pipe := p.rdb.TxPipeline()
	pipe.SetNX(ctx, statusKey(id), string(StatusPending), retention)
	pipe.Set(ctx, updatedKey(id), strconv.FormatInt(time.Now().Unix(), 10), retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("creating stream %s: %w", id, err)
	}
	return nil
}

// Append publishes one frame. Appends against a terminal stream return
// ErrFinished and leave published content untouched.
func (p *Publisher) Append(ctx context.Context, id string, frame event.Frame) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	keys := []string{statusKey(id), framesKey(id), updatedKey(id), channel(id)}
	ok, err := appendScript.Run(ctx, p.rdb, keys, frame.Encode(), now).Int()
	if err != nil {
		return fmt.Errorf("appending to stream %s: %w", id, err)
	}
	if ok == 0 {
		return ErrFinished
	}
	return nil
}

// Finish transitions the stream to a terminal status. Finishing an
// already-terminal stream returns ErrFinished; the first terminal status
// wins.
func (p *Publisher) Finish(ctx context.Context, id string, status Status) error {
	if !status.Terminal() {
		return fmt.Errorf("finish with non-terminal status %q", status)
	}
	keys := []string{statusKey(id), channel(id)}
	ok, err := finishScript.Run(ctx, p.rdb, keys, string(status)).Int()
	if err != nil {
		return fmt.Errorf("finishing stream %s: %w", id, err)
	}
	if ok == 0 {
		return ErrFinished
	}
	return nil
}

// Status reports the stream's current status. A non-terminal stream idle
// past staleAfter is lazily finished as timeout on first observation.
func (p *Publisher) Status(ctx context.Context, id string) (Status, error) {
	raw, err := p.rdb.Get(ctx, statusKey(id)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading stream %s status: %w", id, err)
	}
	st := Status(raw)
	if st.Terminal() || p.staleAfter <= 0 {
		return st, nil
	}

	updated, err := p.rdb.Get(ctx, updatedKey(id)).Int64()
	if err != nil && err != redis.Nil {
		return "", fmt.Errorf("reading stream %s activity: %w", id, err)
	}
	if updated > 0 && time.Since(time.Unix(updated, 0)) > p.staleAfter {
		if err := p.Finish(ctx, id, StatusTimeout); err != nil && err != ErrFinished {
			return "", err
		}
		p.logger.Warn("stream timed out", "stream", id)
		return StatusTimeout, nil
	}
	return st, nil
}

// Follow replays all published frames and then follows live output.
// The returned channel closes when the stream reaches a terminal status or
// ctx is canceled. Reading never mutates the stream.
func (p *Publisher) Follow(ctx context.Context, id string) (<-chan event.Frame, error) {
	st, err := p.Status(ctx, id)
	if err != nil {
		return nil, err
	}

	// Subscribe before replaying so no frame falls between LRANGE and the
	// first pub/sub delivery; duplicates are filtered by index.
	var sub *redis.PubSub
	if !st.Terminal() {
		sub = p.rdb.Subscribe(ctx, channel(id))
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			return nil, fmt.Errorf("subscribing to stream %s: %w", id, err)
		}
	}

	lines, err := p.rdb.LRange(ctx, framesKey(id), 0, -1).Result()
	if err != nil {
		if sub != nil {
			_ = sub.Close()
		}
		return nil, fmt.Errorf("replaying stream %s: %w", id, err)
	}

	out := make(chan event.Frame)
	go func() {
		defer close(out)
		if sub != nil {
			defer func() { _ = sub.Close() }()
		}

		next := int64(0)
		for _, line := range lines {
			f, err := event.ParseFrame(line)
			if err != nil {
				p.logger.Warn("skipping malformed frame", "stream", id, "error", err)
				next++
				continue
			}
			select {
			case out <- f:
				next++
			case <-ctx.Done():
				return
			}
		}
		if sub == nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var n notice
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					continue
				}
				if n.Status != "" {
					return
				}
				if n.Index == nil || *n.Index < next {
					continue
				}
				f, err := event.ParseFrame(n.Frame)
				if err != nil {
					p.logger.Warn("skipping malformed frame", "stream", id, "error", err)
					next = *n.Index + 1
					continue
				}
				select {
				case out <- f:
					next = *n.Index + 1
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
