package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/redis/go-redis/v9"

	"thermavip/vip"
	"thermavip/vip/device"
)

var ErrNoChannel = errors.New("redis source has no channel")

// RedisSource is a Sequential driver subscribed to a redis pub/sub channel.
// Opened for writing, it publishes the applied samples on the channel.
type RedisSource struct {
	options *redis.Options
	channel string

	mu     sync.Mutex
	client *redis.Client
	lastSample
}

func NewRedisSource(options *redis.Options, channel string) *RedisSource {
	return &RedisSource{options: options, channel: channel}
}

// ParseRedisURL splits "redis://host:port/db?channel=name" into client
// options and channel.
func ParseRedisURL(path string) (*redis.Options, string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return nil, "", fmt.Errorf("invalid redis url: %w", err)
	}
	q := u.Query()
	channel := q.Get("channel")
	if channel == "" {
		return nil, "", fmt.Errorf("%w: %s", ErrNoChannel, path)
	}
	q.Del("channel")
	u.RawQuery = q.Encode()
	options, err := redis.ParseURL(u.String())
	if err != nil {
		return nil, "", err
	}
	return options, channel, nil
}

func (r *RedisSource) ClassName() string { return "Redis" }

func (r *RedisSource) Channel() string { return r.channel }

func (r *RedisSource) Type() device.Type { return device.Sequential }

func (r *RedisSource) SupportedModes() device.OpenMode { return device.ReadWrite }

func (r *RedisSource) Open(mode device.OpenMode) error {
	if r.channel == "" {
		return ErrNoChannel
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		r.client = redis.NewClient(r.options)
	}
	return nil
}

func (r *RedisSource) Close() error {
	r.mu.Lock()
	client := r.client
	r.client = nil
	r.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

func (r *RedisSource) currentClient() (*redis.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil, device.ErrNotOpen
	}
	return r.client, nil
}

func (r *RedisSource) ReadData(t int64) (vip.Sample, error) {
	return r.read(t), nil
}

// Stream subscribes to the channel and pushes every decoded message. The
// source is connected once the subscription is confirmed.
func (r *RedisSource) Stream(ctx context.Context, sink device.Sink) error {
	client, err := r.currentClient()
	if err != nil {
		return err
	}
	pubsub := client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}
	sink.Connected()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			s, err := DecodeSample([]byte(msg.Payload))
			if err != nil {
				slog.Warn("Dropping invalid redis message", "channel", msg.Channel, "err", err)
				continue
			}
			r.store(s)
			sink.Push(s)
		}
	}
}

// Apply publishes s on the channel.
func (r *RedisSource) Apply(s vip.Sample) error {
	client, err := r.currentClient()
	if err != nil {
		return err
	}
	data, err := EncodeSample(s)
	if err != nil {
		return err
	}
	if err := client.Publish(context.Background(), r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}
