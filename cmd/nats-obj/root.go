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
	"io"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nats-io/objstore"
	"github.com/nats-io/objstore/bus"
)

// Error is the error class of the command.
var Error = errs.Class("nats-obj")

const envPrefix = "NATS_OBJ"

// Keys of the settings shared by every command.
const (
	keyConfig        = "config"
	keyServer        = "server"
	keyBucket        = "bucket"
	keyLogLevel      = "log-level"
	keyChunkSize     = "chunk-size"
	keyChunkTimeout  = "chunk-timeout"
	keyMaxObjectSize = "max-object-size"
	keyURLSafeNames  = "url-safe-names"
)

// dialFunc connects to the bus. The returned func releases the connection.
type dialFunc func(ctx context.Context, url string, log *zap.Logger) (bus.Bus, func() error, error)

type cli struct {
	vip  *viper.Viper
	log  *zap.Logger
	in   io.Reader
	out  io.Writer
	dial dialFunc
}

func newCLI() *cli {
	return &cli{
		vip:  viper.New(),
		log:  zap.NewNop(),
		in:   os.Stdin,
		out:  os.Stdout,
		dial: dialNATS,
	}
}

func dialNATS(_ context.Context, url string, log *zap.Logger) (bus.Bus, func() error, error) {
	nc, err := nats.Connect(url, nats.Name("nats-obj"))
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}
	b, err := bus.NewJetStream(nc, bus.WithBusLogger(log))
	if err != nil {
		nc.Close()
		return nil, nil, Error.Wrap(err)
	}
	return b, nc.Drain, nil
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "nats-obj",
		Short:         "Object storage on NATS JetStream",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = c.log.Sync()
		},
	}
	root.SetOut(c.out)

	flags := root.PersistentFlags()
	flags.String(keyConfig, "", "YAML configuration file")
	flags.StringP(keyServer, "s", nats.DefaultURL, "NATS server URL")
	flags.StringP(keyBucket, "b", "", "bucket name")
	flags.String(keyLogLevel, "warn", "log level (debug, info, warn, error)")
	flags.Int(keyChunkSize, 0, "chunk size of new objects, 0 uses the default")
	flags.Duration(keyChunkTimeout, 0, "per chunk read timeout, 0 uses the default")
	flags.Int64(keyMaxObjectSize, 0, "largest object that is read, 0 means no limit")
	flags.Bool(keyURLSafeNames, false, "encode object names as the nats.go object store does")

	root.AddCommand(
		newPutCmd(c),
		newGetCmd(c),
		newInfoCmd(c),
		newRmCmd(c),
		newLsCmd(c),
		newWatchCmd(c),
		newReapCmd(c),
		newBucketCmd(c),
		newServeCmd(c),
	)
	return root
}

// load binds the flags of cmd, the environment and the configuration file
// to the viper instance and builds the logger.
func (c *cli) load(cmd *cobra.Command) error {
	if err := c.vip.BindPFlags(cmd.Flags()); err != nil {
		return Error.Wrap(err)
	}
	c.vip.SetEnvPrefix(envPrefix)
	c.vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	c.vip.AutomaticEnv()

	if path := c.vip.GetString(keyConfig); path != "" {
		c.vip.SetConfigFile(path)
		if err := c.vip.ReadInConfig(); err != nil {
			return Error.New("reading config %q: %v", path, err)
		}
	}

	log, err := newLogger(c.vip.GetString(keyLogLevel))
	if err != nil {
		return err
	}
	c.log = log
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	return log, Error.Wrap(err)
}

func (c *cli) storeOptions() []objstore.Option {
	opts := []objstore.Option{objstore.WithLogger(c.log)}
	if n := c.vip.GetInt(keyChunkSize); n > 0 {
		opts = append(opts, objstore.WithChunkSize(n))
	}
	if d := c.vip.GetDuration(keyChunkTimeout); d > 0 {
		opts = append(opts, objstore.WithChunkTimeout(d))
	}
	if n := c.vip.GetInt64(keyMaxObjectSize); n > 0 {
		opts = append(opts, objstore.WithMaxObjectSize(n))
	}
	if c.vip.GetBool(keyURLSafeNames) {
		opts = append(opts, objstore.URLSafeNames())
	}
	return opts
}

func (c *cli) connect(ctx context.Context) (bus.Bus, func() error, error) {
	return c.dial(ctx, c.vip.GetString(keyServer), c.log)
}

func (c *cli) bucket() (string, error) {
	name := c.vip.GetString(keyBucket)
	if name == "" {
		return "", Error.New("a bucket is required, use --bucket or %s_BUCKET", envPrefix)
	}
	return name, nil
}

// withStore opens the configured bucket, runs fn and releases the store and
// the connection.
func (c *cli) withStore(ctx context.Context, fn func(*objstore.Store) error) (err error) {
	bucket, err := c.bucket()
	if err != nil {
		return err
	}
	b, closeBus, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, closeBus()) }()

	st, err := objstore.Open(ctx, b, bucket, c.storeOptions()...)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, st.Close()) }()
	return fn(st)
}

// addFlags adds flags local to one command.
func addFlags(cmd *cobra.Command, fn func(*pflag.FlagSet)) *cobra.Command {
	fn(cmd.Flags())
	return cmd
}
