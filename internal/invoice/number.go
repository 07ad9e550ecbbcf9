package invoice

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// NumberSource hands out unique, monotonically increasing invoice numbers.
type NumberSource interface {
	Next(ctx context.Context) (string, error)
}

func format(prefix string, n int64) string {
	return fmt.Sprintf("%s-%06d", prefix, n)
}

// MemoryNumberSource is a process-local counter. It restarts at 1 and is only safe with a
// store that does not outlive the process.
type MemoryNumberSource struct {
	prefix string
	seq    atomic.Int64
}

// NewMemoryNumberSource starts numbering at 1.
func NewMemoryNumberSource(prefix string) *MemoryNumberSource {
	return &MemoryNumberSource{prefix: prefix}
}

// Next returns the next number.
func (s *MemoryNumberSource) Next(context.Context) (string, error) {
	return format(s.prefix, s.seq.Add(1)), nil
}

// Sequencer is a durable counter, such as the database store.
type Sequencer interface {
	NextInvoiceSequence(ctx context.Context, prefix string) (int64, error)
}

// SequenceNumberSource draws numbers from a Sequencer so they survive restarts.
type SequenceNumberSource struct {
	seq    Sequencer
	prefix string
}

// NewSequenceNumberSource returns a source backed by seq.
func NewSequenceNumberSource(seq Sequencer, prefix string) *SequenceNumberSource {
	return &SequenceNumberSource{seq: seq, prefix: prefix}
}

// Next returns the next number.
func (s *SequenceNumberSource) Next(ctx context.Context) (string, error) {
	n, err := s.seq.NextInvoiceSequence(ctx, s.prefix)
	if err != nil {
		return "", err
	}
	return format(s.prefix, n), nil
}

// RedisNumberSource shares the sequence between replicas through INCR on a single key.
type RedisNumberSource struct {
	client redis.UniversalClient
	key    string
	prefix string
}

// NewRedisNumberSource parses url (redis://...) and returns a source keyed by prefix.
func NewRedisNumberSource(url, prefix string) (*RedisNumberSource, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return NewRedisNumberSourceWithClient(redis.NewClient(opt), prefix), nil
}

// NewRedisNumberSourceWithClient wraps an existing client.
func NewRedisNumberSourceWithClient(client redis.UniversalClient, prefix string) *RedisNumberSource {
	return &RedisNumberSource{client: client, key: "invoice:seq:" + prefix, prefix: prefix}
}

// Ping checks connectivity.
func (s *RedisNumberSource) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Next increments the shared counter.
func (s *RedisNumberSource) Next(ctx context.Context) (string, error) {
	n, err := s.client.Incr(ctx, s.key).Result()
	if err != nil {
		return "", errors.Wrap(err, "incr invoice sequence")
	}
	return format(s.prefix, n), nil
}

// Close releases the client.
func (s *RedisNumberSource) Close() error {
	return s.client.Close()
}
