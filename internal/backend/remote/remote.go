// Package remote implements the signed-in backend on Redis. Every entity is a
// hash of JSON-encoded fields listed in a per-collection set; writes publish
// on a per-collection channel and subscribers re-read the full snapshot.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/linkpocket/internal/backend"
	"github.com/MrSnakeDoc/linkpocket/internal/logger"
	"github.com/MrSnakeDoc/linkpocket/internal/model"
)

// Backend is the remote persistence variant for one user.
type Backend struct {
	client *redis.Client
	ns     namespace
	log    logger.Logger
}

// New returns the backend of user uid. The client is shared and not owned.
func New(client *redis.Client, prefix, uid string, log logger.Logger) *Backend {
	return &Backend{
		client: client,
		ns:     newNamespace(prefix, uid),
		log:    log.Named("remote"),
	}
}

func (b *Backend) Name() string { return "remote" }

// Write creates or patches one entity in a single transaction and publishes
// the change.
func (b *Backend) Write(ctx context.Context, c backend.Collection, key string, patch backend.Patch) (string, error) {
	if !c.Valid() {
		return "", fmt.Errorf("%w: %s", backend.ErrUnknownCollection, c)
	}
	if key == "" {
		key = model.NewKey()
	}

	set, del, err := splitPatch(patch)
	if err != nil {
		return "", fmt.Errorf("write %s/%s: %w", c, key, err)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		entity := b.ns.EntityKey(c, key)
		if len(set) > 0 {
			pipe.HSet(ctx, entity, set)
			pipe.SAdd(ctx, b.ns.IndexKey(c), key)
		}
		if len(del) > 0 {
			pipe.HDel(ctx, entity, del...)
		}
		pipe.Publish(ctx, b.ns.Channel(c), key)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("write %s/%s: %w", c, key, err)
	}
	return key, nil
}

// WriteMany applies every path inside one MULTI/EXEC block.
func (b *Backend) WriteMany(ctx context.Context, updates backend.Updates) error {
	if err := updates.Validate(); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	paths := updates.Sorted()
	encoded := make(map[backend.Path]string, len(paths))
	for _, p := range paths {
		v := updates[p]
		if p.Field == "" || v == nil {
			continue
		}
		raw, err := backend.EncodeValue(v)
		if err != nil {
			return fmt.Errorf("write many: encode %s: %w", p, err)
		}
		encoded[p] = string(raw)
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		touched := make(map[backend.Collection]bool, 2)
		for _, p := range paths {
			touched[p.Collection] = true
			entity := b.ns.EntityKey(p.Collection, p.Key)
			switch {
			case p.Field == "":
				pipe.Del(ctx, entity)
				pipe.SRem(ctx, b.ns.IndexKey(p.Collection), p.Key)
			case updates[p] == nil:
				pipe.HDel(ctx, entity, p.Field)
			default:
				pipe.HSet(ctx, entity, p.Field, encoded[p])
				pipe.SAdd(ctx, b.ns.IndexKey(p.Collection), p.Key)
			}
		}
		for _, c := range backend.Collections {
			if touched[c] {
				pipe.Publish(ctx, b.ns.Channel(c), "*")
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write many: %w", err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, c backend.Collection, key string) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %s", backend.ErrUnknownCollection, c)
	}
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.ns.EntityKey(c, key))
		pipe.SRem(ctx, b.ns.IndexKey(c), key)
		pipe.Publish(ctx, b.ns.Channel(c), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c, key, err)
	}
	return nil
}

// DeleteAll removes every entity of c. Entities added concurrently between
// the index read and the transaction survive (last write wins).
func (b *Backend) DeleteAll(ctx context.Context, c backend.Collection) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %s", backend.ErrUnknownCollection, c)
	}
	keys, err := b.client.SMembers(ctx, b.ns.IndexKey(c)).Result()
	if err != nil {
		return fmt.Errorf("delete all %s: list keys: %w", c, err)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Del(ctx, b.ns.EntityKey(c, key))
		}
		if len(keys) > 0 {
			members := make([]interface{}, len(keys))
			for i, key := range keys {
				members[i] = key
			}
			pipe.SRem(ctx, b.ns.IndexKey(c), members...)
		}
		pipe.Publish(ctx, b.ns.Channel(c), "*")
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete all %s: %w", c, err)
	}
	return nil
}

// Snapshot reads the full content of c. Keys whose hash is gone are skipped.
func (b *Backend) Snapshot(ctx context.Context, c backend.Collection) (backend.Snapshot, error) {
	keys, err := b.client.SMembers(ctx, b.ns.IndexKey(c)).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s keys: %w", c, err)
	}

	snap := make(backend.Snapshot, len(keys))
	if len(keys) == 0 {
		return snap, nil
	}

	pipe := b.client.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(keys))
	for _, key := range keys {
		cmds[key] = pipe.HGetAll(ctx, b.ns.EntityKey(c, key))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("read %s: %w", c, err)
	}

	for key, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec := make(backend.Record, len(fields))
		for field, value := range fields {
			if !json.Valid([]byte(value)) {
				b.log.Warn("skipping malformed field",
					logger.String("collection", string(c)),
					logger.String("key", key),
					logger.String("field", field))
				continue
			}
			rec[field] = json.RawMessage(value)
		}
		snap[key] = rec
	}
	return snap, nil
}

// Subscribe listens on the collection channel, delivers the current snapshot
// and then a fresh snapshot after every change event. Events that pile up
// while a snapshot is being read are coalesced into one delivery.
// Unsubscribe must not be called from inside fn.
func (b *Backend) Subscribe(ctx context.Context, c backend.Collection, fn backend.SnapshotFunc) (backend.Subscription, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %s", backend.ErrUnknownCollection, c)
	}

	ps := b.client.Subscribe(ctx, b.ns.Channel(c))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", c, err)
	}

	initial, err := b.Snapshot(ctx, c)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		owner:      b,
		collection: c,
		fn:         fn,
		ps:         ps,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	sub.deliver(initial)

	go sub.loop(loopCtx, ps.Channel())
	return sub, nil
}

type subscription struct {
	owner      *Backend
	collection backend.Collection
	fn         backend.SnapshotFunc
	ps         *redis.PubSub
	cancel     context.CancelFunc
	done       chan struct{}

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (s *subscription) loop(ctx context.Context, events <-chan *redis.Message) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
		}

		// Coalesce whatever else is already queued.
	drain:
		for {
			select {
			case _, ok := <-events:
				if !ok {
					return
				}
			default:
				break drain
			}
		}

		snap, err := s.owner.Snapshot(ctx, s.collection)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.owner.log.Warn("snapshot refresh failed",
				logger.String("collection", string(s.collection)),
				logger.Error(err))
			continue
		}
		s.deliver(snap)
	}
}

func (s *subscription) deliver(snap backend.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fn(snap)
}

// Unsubscribe stops the listener goroutine and waits for it to exit.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		if err := s.ps.Close(); err != nil {
			s.owner.log.Debug("pubsub close", logger.Error(err))
		}
		<-s.done
	})
}

// splitPatch separates a patch into encoded field values and removed fields.
func splitPatch(patch backend.Patch) (map[string]interface{}, []string, error) {
	set := make(map[string]interface{}, len(patch))
	var del []string
	for field, v := range patch {
		if v == nil {
			del = append(del, field)
			continue
		}
		raw, err := backend.EncodeValue(v)
		if err != nil {
			return nil, nil, fmt.Errorf("encode field %s: %w", field, err)
		}
		set[field] = string(raw)
	}
	return set, del, nil
}
