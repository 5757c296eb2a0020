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
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nats-io/objstore/bus"
	"github.com/nats-io/objstore/internal/syncx"
)

// Store is a handle on one bucket. It is safe for concurrent use.
//
// The handle owns the watchers opened through it: Close stops them all.
type Store struct {
	bus     bus.Bus
	bucket  string
	cfg     BucketConfig
	subj    subjects
	opts    options
	log     *zap.Logger
	metrics *metrics

	watchers syncx.Map[*Watcher, *Watcher]
	closed   atomic.Bool
}

// New creates the bucket described by cfg unless it exists and returns a
// handle on it.
func New(ctx context.Context, b bus.Bus, cfg BucketConfig, opts ...Option) (*Store, error) {
	s, err := newStore(b, cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := ensureBucket(ctx, b, cfg); err != nil {
		return nil, err
	}
	s.log.Debug("object store ready", zap.String("stream", s.subj.stream()))
	return s, nil
}

// Open binds to an existing bucket. ErrBucketNotFound is returned if the
// bucket does not exist.
func Open(ctx context.Context, b bus.Bus, bucket string, opts ...Option) (*Store, error) {
	ok, err := Exists(ctx, b, bucket)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBucketNotFound
	}
	s, err := newStore(b, BucketConfig{Bucket: bucket}, opts)
	if err != nil {
		return nil, err
	}
	// Keep the stored configuration so Put can recreate the same stream.
	cfg, err := s.Config(ctx)
	if err != nil {
		return nil, err
	}
	s.cfg = cfg
	return s, nil
}

func newStore(b bus.Bus, cfg BucketConfig, opts []Option) (*Store, error) {
	if b == nil {
		return nil, withDetail(ErrInvalidOption, "nil bus")
	}
	if !ValidBucket(cfg.Bucket) {
		return nil, ErrInvalidStoreName
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	m, err := newMetrics(o.registerer, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	return &Store{
		bus:     b,
		bucket:  cfg.Bucket,
		cfg:     cfg,
		subj:    newSubjects(cfg.Bucket, o.nameEncoding),
		opts:    o,
		log:     o.log.With(zap.String("bucket", cfg.Bucket)),
		metrics: m,
	}, nil
}

// Bucket returns the name of the bucket.
func (s *Store) Bucket() string {
	return s.bucket
}

// StoreExists reports whether the bucket still exists.
func (s *Store) StoreExists(ctx context.Context) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	return s.bus.StreamExists(ctx, s.subj.stream())
}

// DeleteStore deletes the bucket and closes the handle.
func (s *Store) DeleteStore(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := Delete(ctx, s.bus, s.bucket); err != nil {
		return err
	}
	return s.Close()
}

// Close stops every watcher opened through the handle. Further calls on
// the handle fail with ErrStoreClosed. Close is idempotent.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	for _, w := range s.watchers.Drain() {
		errs = append(errs, w.Stop())
	}
	return errors.Join(errs...)
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return nil
}

// ensure recreates the bucket if it disappeared since the handle was made.
func (s *Store) ensure(ctx context.Context) error {
	return ensureBucket(ctx, s.bus, s.cfg)
}
