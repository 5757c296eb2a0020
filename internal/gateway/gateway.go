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

// Package gateway exposes object store buckets over HTTP.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/nats-io/objstore"
	"github.com/nats-io/objstore/bus"
)

// Error is the error class of the gateway.
var Error = errs.Class("gateway")

// Config configures a Server.
type Config struct {
	Bus bus.Bus
	Log *zap.Logger

	// Metrics, when set, collects the store metrics and is served on
	// /metrics.
	Metrics *prometheus.Registry

	// ChunkTimeout is the per chunk wait of reads. Zero uses the store
	// default.
	ChunkTimeout time.Duration

	// MaxObjectSize limits request bodies and reassembled objects. Zero
	// means no limit.
	MaxObjectSize int64

	// Bucket is the template used when a PUT creates a missing bucket.
	// Only the name is replaced.
	Bucket objstore.BucketConfig

	// Options are passed to every store handle.
	Options []objstore.Option
}

// Server serves the object store HTTP API:
//
//	PUT    /buckets/{bucket}              create bucket
//	GET    /buckets/{bucket}              bucket status
//	DELETE /buckets/{bucket}              delete bucket
//	GET    /buckets/{bucket}/objects      list objects
//	PUT    /buckets/{bucket}/objects/*    put object
//	GET    /buckets/{bucket}/objects/*    get object
//	HEAD   /buckets/{bucket}/objects/*    object info
//	DELETE /buckets/{bucket}/objects/*    remove object
type Server struct {
	cfg Config
	log *zap.Logger
	h   *chi.Mux

	mu     sync.Mutex
	stores map[string]*objstore.Store
}

// New returns a server for cfg.
func New(cfg Config) (*Server, error) {
	if cfg.Bus == nil {
		return nil, Error.New("bus is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		log:    cfg.Log,
		stores: make(map[string]*objstore.Store),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/buckets/{bucket}", func(r chi.Router) {
		r.Put("/", s.createBucket)
		r.Get("/", s.bucketStatus)
		r.Delete("/", s.deleteBucket)
		r.Get("/objects", s.listObjects)
		r.Put("/objects/*", s.putObject)
		r.Get("/objects/*", s.getObject)
		r.Head("/objects/*", s.headObject)
		r.Delete("/objects/*", s.removeObject)
	})

	s.h = r
	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.h
}

// Close releases every store handle opened by the server.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var group errs.Group
	for name, st := range s.stores {
		group.Add(st.Close())
		delete(s.stores, name)
	}
	return group.Err()
}

func (s *Server) storeOptions() []objstore.Option {
	opts := append([]objstore.Option{objstore.WithLogger(s.log)}, s.cfg.Options...)
	if s.cfg.Metrics != nil {
		opts = append(opts, objstore.WithMetrics(s.cfg.Metrics))
	}
	if s.cfg.MaxObjectSize > 0 {
		opts = append(opts, objstore.WithMaxObjectSize(s.cfg.MaxObjectSize))
	}
	return opts
}

// store returns the cached handle of bucket, opening it or, with create,
// creating the bucket.
func (s *Server) store(ctx context.Context, bucket string, create bool) (*objstore.Store, error) {
	s.mu.Lock()
	st, ok := s.stores[bucket]
	s.mu.Unlock()
	if ok {
		return st, nil
	}

	// Opened without the lock. The first handle stored wins.
	var err error
	if create {
		cfg := s.cfg.Bucket
		cfg.Bucket = bucket
		st, err = objstore.New(ctx, s.cfg.Bus, cfg, s.storeOptions()...)
	} else {
		st, err = objstore.Open(ctx, s.cfg.Bus, bucket, s.storeOptions()...)
	}
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if cur, ok := s.stores[bucket]; ok {
		s.mu.Unlock()
		_ = st.Close()
		return cur, nil
	}
	s.stores[bucket] = st
	s.mu.Unlock()
	return st, nil
}

// forget drops and closes the cached handle of bucket.
func (s *Server) forget(bucket string) {
	s.mu.Lock()
	st, ok := s.stores[bucket]
	delete(s.stores, bucket)
	s.mu.Unlock()
	if ok {
		_ = st.Close()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}
