package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"switchyard/internal/component"
	"switchyard/internal/constants"
	"switchyard/internal/logger"
	"switchyard/pkg/circuitbreaker"
	"switchyard/pkg/metrics"
)

// Entry is the mirrored form of one registration.
type Entry struct {
	Kind         component.Kind `json:"kind"`
	ID           string         `json:"id"`
	Node         string         `json:"node"`
	RegisteredAt time.Time      `json:"registered_at"`
}

type mirrorOp struct {
	entry  Entry
	delete bool
}

// RedisMirror writes directory changes to Redis from a background worker.
// Updates are dropped when the queue is full; write failures are logged only.
type RedisMirror struct {
	client    *redis.Client
	cb        *circuitbreaker.Wrapper
	logger    logger.Logger
	prefix    string
	node      string
	queue     chan mirrorOp
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	opTimeout time.Duration
}

type RedisMirrorConfig struct {
	KeyPrefix string
	Node      string
	QueueSize int
}

func NewRedisMirror(client *redis.Client, cb *circuitbreaker.Wrapper, cfg RedisMirrorConfig, log logger.Logger) *RedisMirror {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = constants.DefaultDirectoryKeyPrefix
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = constants.DefaultMirrorQueueSize
	}
	return &RedisMirror{
		client:    client,
		cb:        cb,
		logger:    log.With("component", "directory-mirror"),
		prefix:    strings.TrimSuffix(cfg.KeyPrefix, ":"),
		node:      cfg.Node,
		queue:     make(chan mirrorOp, cfg.QueueSize),
		done:      make(chan struct{}),
		opTimeout: 2 * time.Second,
	}
}

func (m *RedisMirror) Start() {
	m.wg.Add(1)
	go m.run()
}

// Close stops accepting updates, flushes what is queued and waits for the worker.
func (m *RedisMirror) Close() {
	m.stopOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}

func (m *RedisMirror) Registered(kind component.Kind, id string) {
	m.enqueue(mirrorOp{entry: Entry{Kind: kind, ID: id, Node: m.node, RegisteredAt: time.Now().UTC()}})
}

func (m *RedisMirror) Deregistered(kind component.Kind, id string) {
	m.enqueue(mirrorOp{entry: Entry{Kind: kind, ID: id}, delete: true})
}

func (m *RedisMirror) enqueue(op mirrorOp) {
	select {
	case <-m.done:
		return
	default:
	}
	select {
	case m.queue <- op:
	default:
		metrics.DirectoryMirrorDroppedTotal.Inc()
		m.logger.Warnw("mirror queue full, dropping update", "kind", op.entry.Kind, "id", op.entry.ID, "delete", op.delete)
	}
}

func (m *RedisMirror) run() {
	defer m.wg.Done()
	for {
		select {
		case op := <-m.queue:
			m.apply(op)
		case <-m.done:
			for {
				select {
				case op := <-m.queue:
					m.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (m *RedisMirror) apply(op mirrorOp) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()

	key := m.key(op.entry.Kind, op.entry.ID)
	_, err := circuitbreaker.Do(ctx, m.cb, func() (bool, error) {
		if op.delete {
			return true, m.client.Del(ctx, key).Err()
		}
		payload, err := json.Marshal(op.entry)
		if err != nil {
			return false, err
		}
		return true, m.client.Set(ctx, key, payload, 0).Err()
	})
	if err != nil {
		m.logger.Warnw("mirror write failed", "key", key, "delete", op.delete, "error", err)
	}
}

// Entries lists mirrored registrations of one kind, across all nodes sharing the prefix.
func (m *RedisMirror) Entries(ctx context.Context, kind component.Kind) ([]Entry, error) {
	return circuitbreaker.Do(ctx, m.cb, func() ([]Entry, error) {
		var keys []string
		iter := m.client.Scan(ctx, 0, m.key(kind, "*"), 0).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("redis scan failed: %w", err)
		}
		if len(keys) == 0 {
			return nil, nil
		}

		values, err := m.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis mget failed: %w", err)
		}

		entries := make([]Entry, 0, len(values))
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			var e Entry
			if err := json.Unmarshal([]byte(s), &e); err != nil {
				m.logger.Warnw("skipping malformed mirror entry", "key", keys[i], "error", err)
				continue
			}
			entries = append(entries, e)
		}
		return entries, nil
	})
}

func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *RedisMirror) key(kind component.Kind, id string) string {
	return fmt.Sprintf("%s:%s:%s", m.prefix, kind, id)
}
