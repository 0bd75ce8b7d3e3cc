// Mediaforge - Asynchronous Media Processing Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package workqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/tomtom215/mediaforge/internal/logging"
	"github.com/tomtom215/mediaforge/internal/metrics"
)

// BadgerConfig configures the embedded store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
}

// BadgerQueue keeps one key per outstanding id and one per trigger flag.
// Every Enqueue rewrites all member keys with a fresh TTL, so the set
// expires as a unit like the Redis layout does.
type BadgerQueue struct {
	db  *badger.DB
	cfg Config

	mu     sync.RWMutex
	closed bool

	// afterScan runs inside Enqueue between reading and rewriting members.
	afterScan func()
}

// OpenBadger opens (or creates) a badger database and builds a queue on it.
// The queue owns the database and closes it on Close.
func OpenBadger(bc BadgerConfig, cfg Config) (*BadgerQueue, error) {
	if !bc.InMemory && bc.Path == "" {
		return nil, errors.New("badger path is required")
	}
	opts := badger.DefaultOptions(bc.Path)
	if bc.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = bc.SyncWrites
	opts.Compression = options.Snappy
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", bc.Path).
		Bool("in_memory", bc.InMemory).
		Str("queue", cfg.withDefaults().Name).
		Msg("Work queue opened")

	return &BadgerQueue{db: db, cfg: cfg.withDefaults()}, nil
}

func (q *BadgerQueue) pendingPrefix() []byte {
	return []byte(q.cfg.PendingKey() + ":")
}

func (q *BadgerQueue) memberKey(id string) []byte {
	return []byte(q.cfg.PendingKey() + ":" + id)
}

func (q *BadgerQueue) check(id string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	if id == "" {
		return ErrEmptyID
	}
	return nil
}

func (q *BadgerQueue) members(ctx context.Context) ([]string, error) {
	var ids []string
	err := q.db.View(func(txn *badger.Txn) error {
		var err error
		ids, err = q.scanMembers(ctx, txn)
		return err
	})
	return ids, err
}

func (q *BadgerQueue) scanMembers(ctx context.Context, txn *badger.Txn) ([]string, error) {
	var ids []string
	prefix := q.pendingPrefix()
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
	}
	return ids, nil
}

// enqueueAttempts bounds retries when a concurrent Dequeue conflicts with
// the TTL refresh.
const enqueueAttempts = 3

// Enqueue adds id and refreshes the TTL of every member in one transaction,
// so a member removed concurrently is never written back.
func (q *BadgerQueue) Enqueue(ctx context.Context, id string) error {
	if err := q.check(id); err != nil {
		return err
	}
	var err error
	for attempt := 0; attempt < enqueueAttempts; attempt++ {
		err = q.db.Update(func(txn *badger.Txn) error {
			ids, err := q.scanMembers(ctx, txn)
			if err != nil {
				return err
			}
			if q.afterScan != nil {
				q.afterScan()
			}
			for _, member := range append(ids, id) {
				if err := txn.SetEntry(badger.NewEntry(q.memberKey(member), []byte{1}).WithTTL(q.cfg.TTL)); err != nil {
					return err
				}
			}
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", id, err)
	}
	return nil
}

func (q *BadgerQueue) Dequeue(_ context.Context, id string) error {
	if err := q.check(id); err != nil {
		return err
	}
	err := q.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(q.memberKey(id))
	})
	if err != nil {
		return fmt.Errorf("dequeue %s: %w", id, err)
	}
	return nil
}

func (q *BadgerQueue) GetAll(ctx context.Context) ([]string, error) {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return nil, ErrQueueClosed
	}
	ids, err := q.members(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return ids, nil
}

func (q *BadgerQueue) Count(ctx context.Context) (int64, error) {
	ids, err := q.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	n := int64(len(ids))
	metrics.SetQueueDepth(q.cfg.Name, n)
	return n, nil
}

func (q *BadgerQueue) MarkTriggered(_ context.Context, id string) error {
	if err := q.check(id); err != nil {
		return err
	}
	err := q.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(q.cfg.TriggeredKey(id)), []byte{1}).WithTTL(q.cfg.TriggerTTL))
	})
	if err != nil {
		return fmt.Errorf("mark triggered %s: %w", id, err)
	}
	return nil
}

func (q *BadgerQueue) IsTriggered(_ context.Context, id string) (bool, error) {
	if err := q.check(id); err != nil {
		return false, err
	}
	found := false
	err := q.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(q.cfg.TriggeredKey(id)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("check triggered %s: %w", id, err)
	}
	return found, nil
}

func (q *BadgerQueue) ClearTriggered(_ context.Context, id string) error {
	if err := q.check(id); err != nil {
		return err
	}
	err := q.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(q.cfg.TriggeredKey(id)))
	})
	if err != nil {
		return fmt.Errorf("clear triggered %s: %w", id, err)
	}
	return nil
}

// RunGC reclaims value log space left by expired and deleted keys.
func (q *BadgerQueue) RunGC(ratio float64) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	for {
		err := q.db.RunValueLogGC(ratio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

func (q *BadgerQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	if err := q.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	return nil
}
