// Copyright 2026 The NATS Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package objstore

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nats-io/objstore/bus"
)

type (
	// ObjectHandler receives a metadata record delivered to a watcher.
	ObjectHandler func(ObjectMeta)

	// ErrorHandler receives a watcher delivery error.
	ErrorHandler func(error)

	// Watcher delivers the metadata records of one object, in the order they
	// were stored, to the registered listeners. Listeners run on the bus
	// delivery goroutine and must not block for long.
	Watcher struct {
		store *Store
		name  string
		log   *zap.Logger
		sub   bus.Subscription

		mu      sync.RWMutex
		nextID  uint64
		updated []listener[ObjectHandler]
		removed []listener[ObjectHandler]
		errs    []listener[ErrorHandler]

		once    sync.Once
		done    chan struct{}
		stopErr error
	}

	listener[F any] struct {
		id uint64
		fn F
	}
)

// Watch starts watching the metadata records of name. By default the
// current record is delivered first, followed by every later record.
// Listeners registered with OnUpdated after Watch returns may miss the
// current record; use WithUpdatedHandler to receive it.
//
// The watcher runs until Stop is called, ctx is cancelled or the store is
// closed.
func (s *Store) Watch(ctx context.Context, name string, opts ...WatchOpt) (w *Watcher, err error) {
	start := time.Now()
	defer func() { s.metrics.observe(opWatch, start, err) }()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, ErrNameRequired
	}
	var o watchOpts
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	policy := bus.DeliverLastPerSubject
	switch {
	case o.updatesOnly:
		policy = bus.DeliverNew
	case o.includeHistory:
		policy = bus.DeliverAll
	}

	w = &Watcher{
		store: s,
		name:  name,
		log:   s.log.With(zap.String("name", name)),
		done:  make(chan struct{}),
	}
	for _, fn := range o.updated {
		w.OnUpdated(fn)
	}
	for _, fn := range o.removed {
		w.OnRemoved(fn)
	}
	for _, fn := range o.errs {
		w.OnError(fn)
	}
	sub, err := s.bus.ListenOrdered(ctx, s.subj.stream(), s.subj.meta(name), w.dispatch, bus.WithDeliverPolicy(policy))
	if err != nil {
		if errors.Is(err, bus.ErrStreamNotFound) {
			return nil, wrapErr(ErrBucketNotFound, err)
		}
		return nil, err
	}
	w.sub = sub
	s.watchers.Store(w, w)
	s.metrics.watcherOpened()

	// The store may have been closed while the subscription was created.
	if s.closed.Load() {
		_ = w.Stop()
		return nil, ErrStoreClosed
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = w.Stop()
		case <-w.done:
		}
	}()
	return w, nil
}

// OnUpdated registers fn for records of stored versions. The returned func
// unregisters it.
//
// Unless the watcher was started with UpdatesOnly, fn may also receive the
// current record of an existing object, in addition to later versions.
func (w *Watcher) OnUpdated(fn ObjectHandler) (unregister func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	w.updated = append(w.updated, listener[ObjectHandler]{id: id, fn: fn})
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.updated = without(w.updated, id)
	}
}

// OnRemoved registers fn for tombstone records. The returned func
// unregisters it.
func (w *Watcher) OnRemoved(fn ObjectHandler) (unregister func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	w.removed = append(w.removed, listener[ObjectHandler]{id: id, fn: fn})
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.removed = without(w.removed, id)
	}
}

// OnError registers fn for records that could not be decoded. The watcher
// keeps running after such a record. The returned func unregisters fn.
func (w *Watcher) OnError(fn ErrorHandler) (unregister func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	w.errs = append(w.errs, listener[ErrorHandler]{id: id, fn: fn})
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.errs = without(w.errs, id)
	}
}

func without[F any](ls []listener[F], id uint64) []listener[F] {
	return slices.DeleteFunc(slices.Clone(ls), func(l listener[F]) bool { return l.id == id })
}

// Name returns the name of the watched object.
func (w *Watcher) Name() string {
	return w.name
}

// Done is closed once the watcher is stopped.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Stop releases the subscription. It is safe to call more than once.
func (w *Watcher) Stop() error {
	w.once.Do(func() {
		close(w.done)
		if w.sub != nil {
			w.stopErr = w.sub.Stop()
		}
		w.store.watchers.Delete(w)
		w.store.metrics.watcherClosed()
	})
	return w.stopErr
}

func (w *Watcher) dispatch(m *bus.Msg) {
	select {
	case <-w.done:
		return
	default:
	}

	// Listener slices are replaced, never modified, so the snapshot stays
	// valid after the lock is released.
	w.mu.RLock()
	updated, removed, errs := w.updated, w.removed, w.errs
	w.mu.RUnlock()
	if len(updated) == 0 && len(removed) == 0 {
		return
	}

	meta, err := decodeMeta(m.Data)
	if err != nil {
		w.log.Warn("failed to decode object meta", zap.Uint64("seq", m.Sequence), zap.Error(err))
		for _, l := range errs {
			l.fn(err)
		}
		return
	}
	meta.ModTime = m.Time

	if meta.Deleted {
		for _, l := range removed {
			l.fn(meta)
		}
		return
	}
	for _, l := range updated {
		l.fn(meta)
	}
}
