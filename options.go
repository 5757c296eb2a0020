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
	"encoding/base64"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// DefaultChunkSize is the size of every chunk but the last.
	DefaultChunkSize = 128 * 1024

	// DefaultChunkTimeout is the per chunk wait used by Get when the caller
	// passes a non positive timeout.
	DefaultChunkTimeout = time.Second
)

type (
	// Option configures a [Store] handle.
	Option func(*options) error

	options struct {
		chunkSize      int
		maxObjectSize  int64
		chunkTimeout   time.Duration
		nameEncoding   *base64.Encoding
		log            *zap.Logger
		registerer     prometheus.Registerer
		cleanupPartial bool
	}

	// WatchOpt configures a [Watcher].
	WatchOpt func(*watchOpts) error

	watchOpts struct {
		updatesOnly    bool
		includeHistory bool
		updated        []ObjectHandler
		removed        []ObjectHandler
		errs           []ErrorHandler
	}

	// ListOpt configures [Store.List].
	ListOpt func(*listOpts) error

	listOpts struct {
		showDeleted bool
	}
)

func defaultOptions() options {
	return options{
		chunkSize:      DefaultChunkSize,
		chunkTimeout:   DefaultChunkTimeout,
		nameEncoding:   base64.StdEncoding,
		log:            zap.NewNop(),
		cleanupPartial: true,
	}
}

// WithChunkSize sets the size of the chunks written by Put.
func WithChunkSize(size int) Option {
	return func(o *options) error {
		if size <= 0 {
			return withDetail(ErrInvalidOption, "chunk size must be positive")
		}
		o.chunkSize = size
		return nil
	}
}

// WithMaxObjectSize limits the size of the objects Get reassembles.
// Larger objects fail with ErrObjectTooLarge. Zero means no limit.
func WithMaxObjectSize(size int64) Option {
	return func(o *options) error {
		if size < 0 {
			return withDetail(ErrInvalidOption, "max object size must not be negative")
		}
		o.maxObjectSize = size
		return nil
	}
}

// WithChunkTimeout sets the per chunk wait used when Get is called with a
// non positive timeout.
func WithChunkTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return withDetail(ErrInvalidOption, "chunk timeout must be positive")
		}
		o.chunkTimeout = d
		return nil
	}
}

// URLSafeNames encodes object names in metadata subjects with the URL safe
// base64 alphabet, which is what object stores created by nats.go use.
func URLSafeNames() Option {
	return func(o *options) error {
		o.nameEncoding = base64.URLEncoding
		return nil
	}
}

// WithLogger sets the logger of the store. The store logs nothing by default.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) error {
		if log == nil {
			return withDetail(ErrInvalidOption, "nil logger")
		}
		o.log = log
		return nil
	}
}

// WithMetrics registers the store metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithoutPartialCleanup keeps the chunks of a failed Put instead of
// purging them. They are left for [Store.ReapOrphans].
func WithoutPartialCleanup() Option {
	return func(o *options) error {
		o.cleanupPartial = false
		return nil
	}
}

// UpdatesOnly makes a watcher skip the current record and only deliver
// records written after it started.
func UpdatesOnly() WatchOpt {
	return func(o *watchOpts) error {
		if o.includeHistory {
			return withDetail(ErrInvalidOption, "updates only can not be used with include history")
		}
		o.updatesOnly = true
		return nil
	}
}

// IncludeHistory makes a watcher replay every stored record of the object
// before delivering updates.
func IncludeHistory() WatchOpt {
	return func(o *watchOpts) error {
		if o.updatesOnly {
			return withDetail(ErrInvalidOption, "include history can not be used with updates only")
		}
		o.includeHistory = true
		return nil
	}
}

// WithUpdatedHandler registers fn as an update listener before the watcher
// starts, so that it also sees the first delivered record.
func WithUpdatedHandler(fn ObjectHandler) WatchOpt {
	return func(o *watchOpts) error {
		if fn == nil {
			return withDetail(ErrInvalidOption, "nil handler")
		}
		o.updated = append(o.updated, fn)
		return nil
	}
}

// WithRemovedHandler registers fn as a removal listener before the watcher
// starts.
func WithRemovedHandler(fn ObjectHandler) WatchOpt {
	return func(o *watchOpts) error {
		if fn == nil {
			return withDetail(ErrInvalidOption, "nil handler")
		}
		o.removed = append(o.removed, fn)
		return nil
	}
}

// WithErrorHandler registers fn as an error listener before the watcher
// starts.
func WithErrorHandler(fn ErrorHandler) WatchOpt {
	return func(o *watchOpts) error {
		if fn == nil {
			return withDetail(ErrInvalidOption, "nil handler")
		}
		o.errs = append(o.errs, fn)
		return nil
	}
}

// ListShowDeleted makes List include removed objects.
func ListShowDeleted() ListOpt {
	return func(o *listOpts) error {
		o.showDeleted = true
		return nil
	}
}
