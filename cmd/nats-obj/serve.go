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

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/nats-io/objstore"
	"github.com/nats-io/objstore/internal/gateway"
)

const (
	keyListen       = "listen"
	keyReapInterval = "reap-interval"
	keyReapGrace    = "reap-grace"

	shutdownTimeout = 5 * time.Second
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve buckets over HTTP",
		Long: "Serve buckets over HTTP. When a bucket is configured and a reap " +
			"interval is set, orphaned chunks of that bucket are purged periodically.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ln, err := net.Listen("tcp", c.vip.GetString(keyListen))
			if err != nil {
				return Error.Wrap(err)
			}
			return c.serve(cmd.Context(), ln)
		},
	}
	f := cmd.Flags()
	f.String(keyListen, ":8080", "HTTP listen address")
	f.Duration(keyReapInterval, 0, "interval of orphan reaping, 0 disables it")
	f.Duration(keyReapGrace, time.Hour, "keep chunks younger than this when reaping")
	addBucketFlags(f)
	return cmd
}

// serve runs the gateway on ln until ctx is cancelled.
func (c *cli) serve(ctx context.Context, ln net.Listener) (err error) {
	b, closeBus, err := c.connect(ctx)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() { err = errs.Combine(err, closeBus()) }()

	tmpl, err := c.bucketConfig("")
	if err != nil {
		_ = ln.Close()
		return err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gw, err := gateway.New(gateway.Config{
		Bus:           b,
		Log:           c.log.Named("gateway"),
		Metrics:       reg,
		ChunkTimeout:  c.vip.GetDuration(keyChunkTimeout),
		MaxObjectSize: c.vip.GetInt64(keyMaxObjectSize),
		Bucket:        tmpl,
		Options:       c.storeOptions(),
	})
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() { err = errs.Combine(err, gw.Close()) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reaped := make(chan error, 1)
	if interval := c.vip.GetDuration(keyReapInterval); interval > 0 && c.vip.GetString(keyBucket) != "" {
		cfg := tmpl
		cfg.Bucket = c.vip.GetString(keyBucket)
		st, serr := objstore.New(ctx, b, cfg, append(c.storeOptions(), objstore.WithMetrics(reg))...)
		if serr != nil {
			_ = ln.Close()
			return serr
		}
		defer func() { err = errs.Combine(err, st.Close()) }()
		go func() {
			reaped <- objstore.NewReaper(st, interval, c.vip.GetDuration(keyReapGrace)).Run(ctx)
		}()
	} else {
		reaped <- nil
	}

	srv := &http.Server{
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	served := make(chan error, 1)
	go func() {
		c.log.Info("serving", zap.Stringer("addr", ln.Addr()))
		served <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-served:
		cancel()
		return errs.Combine(Error.Wrap(err), <-reaped)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	err = srv.Shutdown(shutdownCtx)
	if serr := <-served; !errors.Is(serr, http.ErrServerClosed) {
		err = errs.Combine(err, serr)
	}
	return errs.Combine(Error.Wrap(err), <-reaped)
}
