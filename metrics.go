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
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	opPut    = "put"
	opGet    = "get"
	opInfo   = "info"
	opRemove = "remove"
	opList   = "list"
	opWatch  = "watch"
	opReap   = "reap"
)

// metrics holds the Prometheus collectors of a store handle. A nil
// *metrics is valid and records nothing.
type metrics struct {
	bucket string

	ops      *prometheus.CounterVec   // operations by op
	errors   *prometheus.CounterVec   // failed operations by op and error kind
	latency  *prometheus.HistogramVec // operation latency by op
	bytes    *prometheus.CounterVec   // object bytes by direction
	chunks   *prometheus.CounterVec   // chunks by direction
	watchers *prometheus.GaugeVec     // open watchers
	reaped   *prometheus.CounterVec   // orphaned transfers purged
}

// newMetrics creates the store collectors and registers them with reg.
// Collectors already registered by another handle on the same registry
// are shared.
func newMetrics(reg prometheus.Registerer, bucket string) (*metrics, error) {
	if reg == nil {
		return nil, nil // Metrics disabled
	}

	m := &metrics{bucket: bucket}
	var err error
	if m.ops, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nats",
		Subsystem: "objstore",
		Name:      "operations_total",
		Help:      "Total number of object store operations",
	}, []string{"bucket", "op"})); err != nil {
		return nil, err
	}
	if m.errors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nats",
		Subsystem: "objstore",
		Name:      "operation_errors_total",
		Help:      "Total number of failed object store operations",
	}, []string{"bucket", "op", "kind"})); err != nil {
		return nil, err
	}
	if m.latency, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nats",
		Subsystem: "objstore",
		Name:      "operation_duration_seconds",
		Help:      "Object store operation latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"bucket", "op"})); err != nil {
		return nil, err
	}
	if m.bytes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nats",
		Subsystem: "objstore",
		Name:      "bytes_total",
		Help:      "Total object bytes written and read",
	}, []string{"bucket", "direction"})); err != nil {
		return nil, err
	}
	if m.chunks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nats",
		Subsystem: "objstore",
		Name:      "chunks_total",
		Help:      "Total chunks written and read",
	}, []string{"bucket", "direction"})); err != nil {
		return nil, err
	}
	if m.watchers, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "nats",
		Subsystem: "objstore",
		Name:      "watchers",
		Help:      "Number of open object watchers",
	}, []string{"bucket"})); err != nil {
		return nil, err
	}
	if m.reaped, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nats",
		Subsystem: "objstore",
		Name:      "reaped_transfers_total",
		Help:      "Total orphaned chunk transfers purged",
	}, []string{"bucket"})); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// observe records the outcome of one operation started at start.
func (m *metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(m.bucket, op).Inc()
	m.latency.WithLabelValues(m.bucket, op).Observe(time.Since(start).Seconds())
	if err != nil {
		m.errors.WithLabelValues(m.bucket, op, KindOf(err).String()).Inc()
	}
}

func (m *metrics) transferred(direction string, size int, chunks int64) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues(m.bucket, direction).Add(float64(size))
	m.chunks.WithLabelValues(m.bucket, direction).Add(float64(chunks))
}

func (m *metrics) watcherOpened() {
	if m != nil {
		m.watchers.WithLabelValues(m.bucket).Inc()
	}
}

func (m *metrics) watcherClosed() {
	if m != nil {
		m.watchers.WithLabelValues(m.bucket).Dec()
	}
}

func (m *metrics) reapedTransfers(n int) {
	if m != nil && n > 0 {
		m.reaped.WithLabelValues(m.bucket).Add(float64(n))
	}
}
