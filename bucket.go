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

	"github.com/nats-io/nats.go/jetstream"

	"github.com/nats-io/objstore/bus"
)

type (
	// BucketConfig is the configuration of the stream backing a bucket.
	BucketConfig struct {
		// Bucket is the name of the bucket. It must match ^[a-zA-Z0-9_-]+$.
		Bucket string `json:"bucket"`

		Description string `json:"description,omitempty"`

		// MaxBytes limits the stored bytes. Writes beyond the limit are
		// rejected. Zero means unlimited.
		MaxBytes int64 `json:"max_bytes,omitempty"`

		// MaxAge is the maximum age of chunks and records. Zero means
		// unlimited.
		MaxAge time.Duration `json:"max_age,omitempty"`

		Storage  jetstream.StorageType `json:"storage,omitempty"`
		Replicas int                   `json:"num_replicas,omitempty"`

		// MaxConsumers is passed to the stream as is. Zero lets the server
		// apply its default, which is unlimited.
		MaxConsumers int `json:"max_consumers,omitempty"`

		Compression bool              `json:"compression,omitempty"`
		Metadata    map[string]string `json:"metadata,omitempty"`
	}

	// BucketStatus is the run-time state of a bucket.
	BucketStatus struct {
		Config   BucketConfig
		Bytes    uint64
		Messages uint64
		Created  time.Time
	}
)

func streamConfig(cfg BucketConfig) jetstream.StreamConfig {
	replicas := cfg.Replicas
	if replicas == 0 {
		replicas = 1
	}
	maxBytes := cfg.MaxBytes
	if maxBytes == 0 {
		maxBytes = -1
	}
	var compression jetstream.StoreCompression
	if cfg.Compression {
		compression = jetstream.S2Compression
	}
	return jetstream.StreamConfig{
		Name:         StreamName(cfg.Bucket),
		Description:  cfg.Description,
		Subjects:     []string{ChunkWildcard(cfg.Bucket), MetaWildcard(cfg.Bucket)},
		MaxAge:       cfg.MaxAge,
		MaxBytes:     maxBytes,
		MaxConsumers: cfg.MaxConsumers,
		Storage:      cfg.Storage,
		Replicas:     replicas,
		Discard:      jetstream.DiscardNew,
		AllowRollup:  true,
		AllowDirect:  true,
		Metadata:     cfg.Metadata,
		Compression:  compression,
	}
}

func bucketConfig(bucket string, scfg jetstream.StreamConfig) BucketConfig {
	maxBytes := scfg.MaxBytes
	if maxBytes < 0 {
		maxBytes = 0
	}
	maxConsumers := scfg.MaxConsumers
	if maxConsumers < 0 {
		maxConsumers = 0
	}
	return BucketConfig{
		Bucket:       bucket,
		Description:  scfg.Description,
		MaxBytes:     maxBytes,
		MaxAge:       scfg.MaxAge,
		Storage:      scfg.Storage,
		Replicas:     scfg.Replicas,
		MaxConsumers: maxConsumers,
		Compression:  scfg.Compression != jetstream.NoCompression,
		Metadata:     scfg.Metadata,
	}
}

// ensureBucket creates the stream of cfg unless it exists. A stream created
// concurrently by someone else counts as existing.
func ensureBucket(ctx context.Context, b bus.Bus, cfg BucketConfig) error {
	if !ValidBucket(cfg.Bucket) {
		return ErrInvalidStoreName
	}
	ok, err := b.StreamExists(ctx, StreamName(cfg.Bucket))
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	err = b.CreateStream(ctx, streamConfig(cfg))
	if errors.Is(err, bus.ErrStreamNameAlreadyInUse) {
		return nil
	}
	return err
}

// Exists reports whether the stream backing bucket exists.
func Exists(ctx context.Context, b bus.Bus, bucket string) (bool, error) {
	if !ValidBucket(bucket) {
		return false, ErrInvalidStoreName
	}
	return b.StreamExists(ctx, StreamName(bucket))
}

// Delete deletes the stream backing bucket with every object in it.
func Delete(ctx context.Context, b bus.Bus, bucket string) error {
	if !ValidBucket(bucket) {
		return ErrInvalidStoreName
	}
	err := b.DeleteStream(ctx, StreamName(bucket))
	if errors.Is(err, bus.ErrStreamNotFound) {
		return wrapErr(ErrBucketNotFound, err)
	}
	return err
}

// Config returns the configuration of the bucket as stored in its stream.
func (s *Store) Config(ctx context.Context) (BucketConfig, error) {
	info, err := s.streamInfo(ctx, "")
	if err != nil {
		return BucketConfig{}, err
	}
	return bucketConfig(s.bucket, info.Config), nil
}

// Status returns the configuration and usage of the bucket.
func (s *Store) Status(ctx context.Context) (*BucketStatus, error) {
	info, err := s.streamInfo(ctx, "")
	if err != nil {
		return nil, err
	}
	return &BucketStatus{
		Config:   bucketConfig(s.bucket, info.Config),
		Bytes:    info.State.Bytes,
		Messages: info.State.Msgs,
		Created:  info.Created,
	}, nil
}

func (s *Store) streamInfo(ctx context.Context, filter string) (*jetstream.StreamInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	info, err := s.bus.StreamInfo(ctx, s.subj.stream(), filter)
	if errors.Is(err, bus.ErrStreamNotFound) {
		return nil, wrapErr(ErrBucketNotFound, err)
	}
	return info, err
}
