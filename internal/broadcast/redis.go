package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/example/lynk/internal/ws"
)

const (
	defaultChannel   = "lynk:rooms"
	defaultDedupeTTL = 2 * time.Minute
	maxBackoffDelay  = 30 * time.Second
)

type relayMessage struct {
	Room       string          `json:"room"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	Origin     string          `json:"origin"`
	EventID    string          `json:"event_id"`
	EnqueuedAt int64           `json:"enqueued_at"`
}

// RedisRelay mirrors room broadcasts across server instances over Redis
// Pub/Sub so presence events and message fan-out stay correct when the
// process-local registry is not the only one. Each instance skips its own
// publications and dedupes replays.
type RedisRelay struct {
	client *redis.Client
	rooms  *ws.Rooms
	logger zerolog.Logger

	channel   string
	origin    string
	dedupeTTL time.Duration

	seenMu sync.Mutex
	seen   map[string]time.Time

	latency *prometheus.HistogramVec
}

// NewRedisRelay constructs a relay backed by Redis Pub/Sub.
func NewRedisRelay(client *redis.Client, rooms *ws.Rooms, logger zerolog.Logger) *RedisRelay {
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relay",
		Name:      "publish_to_deliver_seconds",
		Help:      "Observed latency between publish and delivery to local websocket clients.",
		Buckets:   prometheus.LinearBuckets(0.005, 0.005, 12),
	}, []string{"event"})

	if err := prometheus.Register(histogram); err != nil {
		if regErr, ok := err.(prometheus.AlreadyRegisteredError); ok {
			histogram = regErr.ExistingCollector.(*prometheus.HistogramVec)
		}
	}

	return &RedisRelay{
		client:    client,
		rooms:     rooms,
		logger:    logger,
		channel:   defaultChannel,
		origin:    uuid.NewString(),
		dedupeTTL: defaultDedupeTTL,
		seen:      make(map[string]time.Time),
		latency:   histogram,
	}
}

// Publish implements ws.Relay. Failures are logged, not propagated: local
// delivery already happened and must not be rolled back because a peer
// mirror was missed.
func (r *RedisRelay) Publish(ctx context.Context, room, event string, payload json.RawMessage) {
	msg := relayMessage{
		Room:       room,
		Event:      event,
		Payload:    payload,
		Origin:     r.origin,
		EventID:    uuid.NewString(),
		EnqueuedAt: time.Now().UTC().UnixNano(),
	}
	encoded, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error().Err(err).Str("event", event).Msg("encode relay payload failed")
		return
	}
	if err := r.client.Publish(ctx, r.channel, encoded).Err(); err != nil {
		r.logger.Warn().Err(err).Str("event", event).Msg("relay publish failed")
	}
}

// Start begins consuming peer publications and dispatching them to local room
// members. Reconnects with exponential backoff on subscription failure.
func (r *RedisRelay) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *RedisRelay) run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := r.client.Subscribe(ctx, r.channel)
		if err := r.consume(ctx, pubsub); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn().Err(err).Dur("backoff", backoff).Msg("relay subscription interrupted; retrying")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff = min(backoff*2, maxBackoffDelay)
		}
	}
}

func (r *RedisRelay) consume(ctx context.Context, pubsub *redis.PubSub) error {
	defer pubsub.Close()

	ch := pubsub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("pubsub channel closed")
			}
			if err := r.process(msg.Payload); err != nil {
				r.logger.Warn().Err(err).Msg("failed to process relayed event")
			}
		}
	}
}

func (r *RedisRelay) process(raw string) error {
	var msg relayMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return fmt.Errorf("decode relay payload: %w", err)
	}
	if msg.Room == "" || msg.Event == "" || msg.EventID == "" {
		return errors.New("incomplete relay payload")
	}
	if msg.Origin == r.origin {
		// Local members already received this on the direct path.
		return nil
	}
	if r.isDuplicate(msg.EventID) {
		return nil
	}

	if msg.EnqueuedAt > 0 {
		latency := float64(time.Since(time.Unix(0, msg.EnqueuedAt))) / float64(time.Second)
		r.latency.WithLabelValues(msg.Event).Observe(latency)
	}

	r.rooms.DeliverLocal(msg.Room, msg.Event, msg.Payload)
	return nil
}

func (r *RedisRelay) isDuplicate(eventID string) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()

	if ts, ok := r.seen[eventID]; ok && time.Since(ts) < r.dedupeTTL {
		return true
	}

	r.seen[eventID] = time.Now()
	cutoff := time.Now().Add(-r.dedupeTTL)
	for k, ts := range r.seen {
		if ts.Before(cutoff) {
			delete(r.seen, k)
		}
	}
	return false
}
