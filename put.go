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

	"github.com/nats-io/nuid"
	"go.uber.org/zap"

	"github.com/nats-io/objstore/bus"
)

// Put stores obj under obj.Meta.Name, replacing the current version.
//
// The data is split into chunks published in order on a fresh chunk
// subject, then the metadata record is published. The object only becomes
// visible once its metadata record is stored. If any chunk fails, no
// metadata is written and the chunks already stored are purged.
//
// Put uses obj.Meta.TransferID when set, otherwise a new one is generated.
// Size, Chunks, Deleted and Digest of obj.Meta are ignored.
func (s *Store) Put(ctx context.Context, obj ObjectElement) (err error) {
	start := time.Now()
	defer func() { s.metrics.observe(opPut, start, err) }()

	if err := s.checkOpen(); err != nil {
		return err
	}
	name := obj.Meta.Name
	if name == "" {
		return ErrNameRequired
	}
	if len(obj.Data) == 0 {
		return ErrDataRequired
	}

	id := obj.Meta.TransferID
	if id == "" {
		id = nuid.Next()
	} else if !validTransferID(id) {
		return withDetail(ErrInvalidTransferID, "%q", id)
	} else if err := s.checkTransferID(ctx, id); err != nil {
		return err
	}

	if err := s.ensure(ctx); err != nil {
		return err
	}

	chunkSubj := s.subj.chunks(id)
	log := s.log.With(zap.String("name", name), zap.String("nuid", id))

	h := newDigest()
	var chunks int64
	data := obj.Data
	for off := 0; off < len(data); off += s.opts.chunkSize {
		end := min(off+s.opts.chunkSize, len(data))
		chunk := data[off:end]
		if err := s.bus.Publish(ctx, chunkSubj, chunk); err != nil {
			s.purgePartial(log, chunkSubj, chunks)
			return err
		}
		h.Write(chunk)
		chunks++
		log.Debug("published chunk", zap.Int64("chunk", chunks), zap.Int("size", len(chunk)))
	}

	meta := ObjectMeta{
		Bucket:     s.bucket,
		Name:       name,
		TransferID: id,
		Size:       int64(len(data)),
		Chunks:     chunks,
		Digest:     formatDigest(h),
	}
	payload, err := encodeMeta(meta)
	if err != nil {
		s.purgePartial(log, chunkSubj, chunks)
		return err
	}
	if err := s.bus.Publish(ctx, s.subj.meta(name), payload); err != nil {
		s.purgePartial(log, chunkSubj, chunks)
		return err
	}

	s.metrics.transferred("in", len(data), chunks)
	log.Debug("stored object", zap.Int64("size", meta.Size), zap.Int64("chunks", chunks))
	return nil
}

// checkTransferID rejects a caller supplied id whose chunk subject already
// holds chunks, since a reader takes the first chunks of the subject.
func (s *Store) checkTransferID(ctx context.Context, id string) error {
	chunkSubj := s.subj.chunks(id)
	info, err := s.bus.StreamInfo(ctx, s.subj.stream(), chunkSubj)
	if errors.Is(err, bus.ErrStreamNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.State.Subjects[chunkSubj] > 0 {
		return withDetail(ErrTransferIDInUse, "%q", id)
	}
	return nil
}

// purgePartial removes the chunks of a failed Put, including a chunk whose
// acknowledgement was lost. It runs on its own context so that a cancelled
// Put is still cleaned up. A failure leaves the chunks for the reaper.
func (s *Store) purgePartial(log *zap.Logger, chunkSubj string, published int64) {
	if !s.opts.cleanupPartial {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := s.bus.Purge(ctx, s.subj.stream(), chunkSubj); err != nil {
		log.Warn("failed to purge chunks of failed put", zap.Int64("chunks", published), zap.Error(err))
		return
	}
	log.Debug("purged chunks of failed put", zap.Int64("chunks", published))
}

const cleanupTimeout = 5 * time.Second
