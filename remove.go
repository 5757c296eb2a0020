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
	"time"

	"go.uber.org/zap"
)

// Remove deletes the data of name and records a tombstone for it.
// Removing an object that is already removed records another tombstone.
func (s *Store) Remove(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() { s.metrics.observe(opRemove, start, err) }()

	if err := s.checkOpen(); err != nil {
		return err
	}
	meta, err := s.info(ctx, name)
	if err != nil {
		return err
	}

	if meta.TransferID != "" {
		if err := s.bus.Purge(ctx, s.subj.stream(), s.subj.chunks(meta.TransferID)); err != nil {
			return err
		}
	}

	tombstone := ObjectMeta{
		Bucket:  s.bucket,
		Name:    name,
		Deleted: true,
	}
	payload, err := encodeMeta(tombstone)
	if err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, s.subj.meta(name), payload); err != nil {
		return err
	}
	s.log.Debug("removed object", zap.String("name", name), zap.String("nuid", meta.TransferID))
	return nil
}
