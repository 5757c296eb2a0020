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
	"time"

	"go.uber.org/zap"

	"github.com/nats-io/objstore/bus"
)

// ReapOrphans purges chunk subjects that no current metadata record refers
// to. This covers the chunks of failed puts and of overwritten versions.
// A subject whose newest chunk is younger than grace is kept, since it may
// belong to a put still in progress. It returns the number of chunk
// subjects purged.
func (s *Store) ReapOrphans(ctx context.Context, grace time.Duration) (n int, err error) {
	start := time.Now()
	defer func() {
		s.metrics.observe(opReap, start, err)
		s.metrics.reapedTransfers(n)
	}()

	chunkInfo, err := s.streamInfo(ctx, ChunkWildcard(s.bucket))
	if err != nil {
		return 0, err
	}
	if len(chunkInfo.State.Subjects) == 0 {
		return 0, nil
	}

	// Tombstones and undecodable records refer to no chunks.
	objs, err := s.list(ctx, false)
	if err != nil {
		return 0, err
	}
	live := make(map[string]struct{}, len(objs))
	for _, o := range objs {
		live[o.TransferID] = struct{}{}
	}

	for subj := range chunkInfo.State.Subjects {
		id, ok := s.subj.transferID(subj)
		if !ok {
			continue
		}
		if _, ok := live[id]; ok {
			continue
		}
		last, err := s.bus.GetLastMsg(ctx, s.subj.stream(), subj)
		if errors.Is(err, bus.ErrMsgNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if age := time.Since(last.Time); age < grace {
			continue
		}
		if err := s.bus.Purge(ctx, s.subj.stream(), subj); err != nil {
			return n, err
		}
		s.log.Debug("purged orphaned chunks", zap.String("nuid", id), zap.Uint64("chunks", chunkInfo.State.Subjects[subj]))
		n++
	}
	return n, nil
}

// Reaper runs ReapOrphans on a store at a fixed interval.
type Reaper struct {
	store    *Store
	interval time.Duration
	grace    time.Duration
}

// NewReaper returns a reaper purging orphans of s every interval, keeping
// chunks younger than grace.
func NewReaper(s *Store, interval, grace time.Duration) *Reaper {
	return &Reaper{store: s, interval: interval, grace: grace}
}

// Run reaps until ctx is cancelled or the store is closed. Failed runs are
// logged and retried on the next tick.
func (r *Reaper) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return withDetail(ErrInvalidOption, "reaper interval must be positive")
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		n, err := r.store.ReapOrphans(ctx, r.grace)
		switch {
		case errors.Is(err, ErrStoreClosed):
			return nil
		case err != nil && ctx.Err() == nil:
			r.store.log.Warn("reaping orphaned chunks failed", zap.Error(err))
		case n > 0:
			r.store.log.Info("reaped orphaned chunks", zap.Int("transfers", n))
		}
	}
}
