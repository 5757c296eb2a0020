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
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/nats-io/objstore/bus"
)

// List returns the current record of every object in the bucket, sorted by
// name. Removed objects are left out unless ListShowDeleted is given.
// ErrNoObjectsFound is returned when there is nothing to list.
func (s *Store) List(ctx context.Context, opts ...ListOpt) (objs []*ObjectMeta, err error) {
	start := time.Now()
	defer func() { s.metrics.observe(opList, start, err) }()

	var o listOpts
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	objs, err = s.list(ctx, o.showDeleted)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, ErrNoObjectsFound
	}
	return objs, nil
}

func (s *Store) list(ctx context.Context, showDeleted bool) ([]*ObjectMeta, error) {
	info, err := s.streamInfo(ctx, MetaWildcard(s.bucket))
	if err != nil {
		return nil, err
	}

	var objs []*ObjectMeta
	for subj := range info.State.Subjects {
		m, err := s.bus.GetLastMsg(ctx, s.subj.stream(), subj)
		if errors.Is(err, bus.ErrMsgNotFound) {
			// Purged since the stream info was taken.
			continue
		}
		if err != nil {
			return nil, err
		}
		meta, err := decodeMeta(m.Data)
		if err != nil {
			s.log.Warn("skipping invalid object meta", zap.String("subject", subj), zap.Error(err))
			continue
		}
		if meta.Deleted && !showDeleted {
			continue
		}
		meta.ModTime = m.Time
		objs = append(objs, &meta)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Name < objs[j].Name })
	return objs, nil
}
