//go:build !rp2040

package export

import (
	"context"
	"sync/atomic"
	"time"

	"pdstation-go/bus"
	"pdstation-go/x/strx"

	"github.com/redis/go-redis/v9"
)

// store is the slice of Redis the sink needs.
type store interface {
	Ping(ctx context.Context) error
	Write(ctx context.Context, key string, fields map[string]any, record []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan string, func())
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // "pdstation"
}

// Redis mirrors telemetry into hashes, publishes each wire record on the
// hash's channel, and forwards overrides received on <prefix>:vin.
type Redis struct {
	conn   *bus.Connection
	st     store
	prefix string

	written atomic.Uint32
	failed  atomic.Uint32
}

// NewRedis returns a sink backed by a go-redis client. It does not connect.
func NewRedis(conn *bus.Connection, cfg RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newRedis(conn, &redisStore{client: client}, cfg.Prefix)
}

func newRedis(conn *bus.Connection, st store, prefix string) *Redis {
	return &Redis{conn: conn, st: st, prefix: strx.Coalesce(prefix, "pdstation")}
}

// Close releases the client.
func (r *Redis) Close() error {
	if c, ok := r.st.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func (r *Redis) Written() uint32 { return r.written.Load() }
func (r *Redis) Failed() uint32  { return r.failed.Load() }

// Key returns the hash key of a record.
func (r *Redis) Key(rec Record) string {
	if rec.Kind == KindCharge {
		return r.prefix + ":charge:" + itoa(int(rec.Index))
	}
	return r.prefix + ":protector"
}

// Run waits for Redis, then forwards until ctx ends.
func (r *Redis) Run(ctx context.Context) {
	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		err := r.st.Ping(ctx)
		if err == nil {
			break
		}
		delay := backoff()
		println("[export] redis unavailable:", err.Error(), "retry in", delay.String())
		if !sleep(ctx, delay) {
			return
		}
	}
	println("[export] redis connected")

	telSub := r.conn.Subscribe(topicTelemetry)
	defer r.conn.Unsubscribe(telSub)
	vin, closeVin := r.st.Subscribe(ctx, r.prefix+":vin")
	defer closeVin()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-telSub.Channel():
			if !ok {
				return
			}
			rec, ok := Encode(m)
			if !ok {
				continue
			}
			if err := r.st.Write(ctx, r.Key(rec), rec.Fields, rec.Payload); err != nil {
				r.failed.Add(1)
				println("[export] redis write", r.Key(rec)+":", err.Error())
				continue
			}
			r.written.Add(1)
		case s, ok := <-vin:
			if !ok {
				vin = nil
				continue
			}
			r.conn.Publish(r.conn.NewMessage(topicVin, vinPayload(s), false))
		}
	}
}

// vinPayload turns a one-character Redis message into the one-byte code:
// an ASCII digit is read as its value, anything else as the raw byte.
// Longer messages are passed on as names.
func vinPayload(s string) any {
	if len(s) != 1 {
		return s
	}
	if '0' <= s[0] && s[0] <= '9' {
		return []byte{s[0] - '0'}
	}
	return []byte{s[0]}
}

// redisStore implements store over go-redis.
type redisStore struct {
	client *redis.Client
}

func (s *redisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *redisStore) Write(ctx context.Context, key string, fields map[string]any, record []byte) error {
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Publish(ctx, key, record)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) Subscribe(ctx context.Context, channel string) (<-chan string, func()) {
	pubsub := s.client.Subscribe(ctx, channel)
	out := make(chan string, 4)
	go func() {
		defer close(out)
		for m := range pubsub.Channel() {
			select {
			case out <- m.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() { _ = pubsub.Close() }
}

func (s *redisStore) Close() error { return s.client.Close() }
