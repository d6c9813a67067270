package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/songzhibin97/jadwal-engine/events"
	"github.com/songzhibin97/jadwal-engine/types"
)

// Outbox accepts notification intents once a transition has committed.
type Outbox interface {
	Enqueue(ctx context.Context, reqs []types.NotificationRequest) error
}

// HandlerFunc consumes one drained request.
type HandlerFunc func(ctx context.Context, req types.NotificationRequest) error

// Drainer is an outbox that is emptied by polling.
type Drainer interface {
	Drain(ctx context.Context, handle HandlerFunc) (int, error)
}

// BusOutbox hands requests to a Dispatcher through the event bus, so delivery
// happens off the caller's goroutine in enqueue order.
type BusOutbox struct {
	bus *events.EventBus
}

// NewBusOutbox subscribes dispatcher to bus and returns the outbox feeding it.
func NewBusOutbox(bus *events.EventBus, dispatcher *Dispatcher) *BusOutbox {
	bus.SubscribeFunc(events.TypeNotificationRequested, func(ctx context.Context, event events.Event) error {
		req, ok := event.Data["request"].(types.NotificationRequest)
		if !ok {
			return fmt.Errorf("event carries no notification request")
		}
		// Dispatch already logged the failure.
		_ = dispatcher.Dispatch(ctx, req)
		return nil
	})
	return &BusOutbox{bus: bus}
}

// Enqueue implements Outbox.
func (o *BusOutbox) Enqueue(ctx context.Context, reqs []types.NotificationRequest) error {
	for _, req := range reqs {
		err := o.bus.PublishWait(ctx, events.Event{
			Type: events.TypeNotificationRequested,
			Data: map[string]interface{}{"request": req},
		})
		if err != nil {
			return fmt.Errorf("failed to enqueue notification %s: %w", req.ID, err)
		}
	}
	return nil
}

// MemoryOutbox keeps requests in memory until drained.
type MemoryOutbox struct {
	mu    sync.Mutex
	queue []types.NotificationRequest
}

// NewMemoryOutbox creates an empty MemoryOutbox.
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{}
}

// Enqueue implements Outbox.
func (o *MemoryOutbox) Enqueue(ctx context.Context, reqs []types.NotificationRequest) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, reqs...)
	return nil
}

// Pending returns a copy of the queued requests.
func (o *MemoryOutbox) Pending() []types.NotificationRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]types.NotificationRequest, len(o.queue))
	copy(out, o.queue)
	return out
}

// Drain implements Drainer. Handler errors do not requeue the request.
func (o *MemoryOutbox) Drain(ctx context.Context, handle HandlerFunc) (int, error) {
	o.mu.Lock()
	batch := o.queue
	o.queue = nil
	o.mu.Unlock()

	for _, req := range batch {
		_ = handle(ctx, req)
	}
	return len(batch), nil
}

const defaultRedisOutboxKey = "jadwal:notifications:queue"

// RedisOutbox is a Redis list of JSON encoded requests.
type RedisOutbox struct {
	client *redis.Client
	key    string
	logger logrus.FieldLogger
}

// NewRedisOutbox creates a RedisOutbox on key, or the default key when empty.
func NewRedisOutbox(client *redis.Client, key string, logger logrus.FieldLogger) *RedisOutbox {
	if key == "" {
		key = defaultRedisOutboxKey
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisOutbox{client: client, key: key, logger: logger}
}

// Enqueue implements Outbox.
func (o *RedisOutbox) Enqueue(ctx context.Context, reqs []types.NotificationRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(reqs))
	for _, req := range reqs {
		b, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to marshal notification %s: %w", req.ID, err)
		}
		values = append(values, b)
	}
	if err := o.client.RPush(ctx, o.key, values...).Err(); err != nil {
		return fmt.Errorf("failed to push notifications to %s: %w", o.key, err)
	}
	return nil
}

// Len reports the queue length.
func (o *RedisOutbox) Len(ctx context.Context) (int64, error) {
	return o.client.LLen(ctx, o.key).Result()
}

// Drain pops requests until the list is empty. Undecodable entries are logged
// and dropped; handler errors do not requeue the request.
func (o *RedisOutbox) Drain(ctx context.Context, handle HandlerFunc) (int, error) {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		default:
		}

		data, err := o.client.LPop(ctx, o.key).Bytes()
		if errors.Is(err, redis.Nil) {
			return n, nil
		} else if err != nil {
			return n, fmt.Errorf("failed to pop from %s: %w", o.key, err)
		}

		var req types.NotificationRequest
		if err := json.Unmarshal(data, &req); err != nil {
			o.logger.WithError(err).Warn("dropping undecodable notification")
			continue
		}
		n++
		_ = handle(ctx, req)
	}
}
