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
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/nats-io/objstore/bus"
)

// maxChunkBuffer caps the number of chunks the bus may deliver ahead of the
// reader.
const maxChunkBuffer = 64

// maxPrealloc caps the reassembly buffer allocated before chunks arrive.
const maxPrealloc = 64 << 20

// Info returns the current metadata record of name. Removed objects are
// returned with Deleted set.
func (s *Store) Info(ctx context.Context, name string) (meta *ObjectMeta, err error) {
	start := time.Now()
	defer func() { s.metrics.observe(opInfo, start, err) }()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.info(ctx, name)
}

func (s *Store) info(ctx context.Context, name string) (*ObjectMeta, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	m, err := s.bus.GetLastMsg(ctx, s.subj.stream(), s.subj.meta(name))
	if err != nil {
		switch {
		case errors.Is(err, bus.ErrMsgNotFound):
			return nil, wrapErr(ErrObjectNotFound, err)
		case errors.Is(err, bus.ErrStreamNotFound):
			return nil, wrapErr(ErrBucketNotFound, err)
		}
		return nil, err
	}
	meta, err := decodeMeta(m.Data)
	if err != nil {
		return nil, err
	}
	meta.ModTime = m.Time
	return &meta, nil
}

// Get returns the current version of name with its data.
//
// Chunks are read in order from the object's chunk subject, waiting at
// most chunkTimeout for each. A non positive chunkTimeout uses the store
// default. Removed objects are returned with Deleted set and empty data.
func (s *Store) Get(ctx context.Context, name string, chunkTimeout time.Duration) (obj *ObjectElement, err error) {
	start := time.Now()
	defer func() { s.metrics.observe(opGet, start, err) }()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	meta, err := s.info(ctx, name)
	if err != nil {
		return nil, err
	}
	if meta.Chunks == 0 {
		return &ObjectElement{Meta: *meta, Data: []byte{}}, nil
	}
	if meta.Size > math.MaxInt || (s.opts.maxObjectSize > 0 && meta.Size > s.opts.maxObjectSize) {
		return nil, withDetail(ErrObjectTooLarge, "%d bytes", meta.Size)
	}
	if chunkTimeout <= 0 {
		chunkTimeout = s.opts.chunkTimeout
	}

	sub, err := s.bus.SubscribeOrdered(ctx, s.subj.stream(), s.subj.chunks(meta.TransferID),
		bus.WithBuffer(int(min(meta.Chunks, maxChunkBuffer))))
	if err != nil {
		if errors.Is(err, bus.ErrStreamNotFound) {
			return nil, wrapErr(ErrBucketNotFound, err)
		}
		return nil, err
	}
	defer sub.Stop()

	data := make([]byte, 0, min(meta.Size, maxPrealloc))
	for i := int64(0); i < meta.Chunks; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := sub.Next(chunkTimeout)
		if err != nil {
			if errors.Is(err, bus.ErrTimeout) {
				s.log.Debug("chunk timeout",
					zap.String("name", name), zap.Int64("chunk", i+1), zap.Int64("chunks", meta.Chunks))
				return nil, wrapErr(withDetail(ErrChunkTimeout, "chunk %d of %d", i+1, meta.Chunks), err)
			}
			return nil, err
		}
		if int64(len(data)+len(m.Data)) > meta.Size {
			return nil, withDetail(ErrSizeMismatch, "more than %d bytes in %d chunks", meta.Size, meta.Chunks)
		}
		data = append(data, m.Data...)
	}
	if int64(len(data)) != meta.Size {
		return nil, withDetail(ErrSizeMismatch, "got %d bytes, expected %d", len(data), meta.Size)
	}
	if err := verifyDigest(*meta, data); err != nil {
		return nil, err
	}

	s.metrics.transferred("out", len(data), meta.Chunks)
	return &ObjectElement{Meta: *meta, Data: data}, nil
}
