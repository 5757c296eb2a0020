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
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zeebo/errs"

	"github.com/nats-io/objstore"
)

// Keys of the bucket settings.
const (
	keyDescription = "description"
	keyMaxBytes    = "max-bytes"
	keyMaxAge      = "max-age"
	keyStorage     = "storage"
	keyReplicas    = "replicas"
	keyCompression = "compression"
)

func addBucketFlags(f *pflag.FlagSet) {
	f.String(keyDescription, "", "bucket description")
	f.Int64(keyMaxBytes, 0, "size limit of the bucket, 0 means unlimited")
	f.Duration(keyMaxAge, 0, "maximum age of objects, 0 means unlimited")
	f.String(keyStorage, "file", "storage backend (file, memory)")
	f.Int(keyReplicas, 1, "number of replicas")
	f.Bool(keyCompression, false, "compress the bucket stream")
}

// bucketConfig builds the configuration of bucket from the bucket settings.
func (c *cli) bucketConfig(bucket string) (objstore.BucketConfig, error) {
	cfg := objstore.BucketConfig{
		Bucket:      bucket,
		Description: c.vip.GetString(keyDescription),
		MaxBytes:    c.vip.GetInt64(keyMaxBytes),
		MaxAge:      c.vip.GetDuration(keyMaxAge),
		Replicas:    c.vip.GetInt(keyReplicas),
		Compression: c.vip.GetBool(keyCompression),
	}
	switch storage := c.vip.GetString(keyStorage); storage {
	case "", "file":
		cfg.Storage = jetstream.FileStorage
	case "memory":
		cfg.Storage = jetstream.MemoryStorage
	default:
		return cfg, Error.New("unknown storage %q", storage)
	}
	return cfg, nil
}

func newBucketCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Manage buckets",
	}
	create := &cobra.Command{
		Use:   "create",
		Short: "Create the bucket if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			bucket, err := c.bucket()
			if err != nil {
				return err
			}
			cfg, err := c.bucketConfig(bucket)
			if err != nil {
				return err
			}
			b, closeBus, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { err = errs.Combine(err, closeBus()) }()

			st, err := objstore.New(cmd.Context(), b, cfg, c.storeOptions()...)
			if err != nil {
				return err
			}
			defer func() { err = errs.Combine(err, st.Close()) }()
			status, err := st.Status(cmd.Context())
			if err != nil {
				return err
			}
			return c.printJSON(status)
		},
	}
	addBucketFlags(create.Flags())

	info := &cobra.Command{
		Use:   "info",
		Short: "Show the configuration and state of the bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(cmd.Context(), func(st *objstore.Store) error {
				status, err := st.Status(cmd.Context())
				if err != nil {
					return err
				}
				return c.printJSON(status)
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm",
		Short: "Delete the bucket and every object in it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			bucket, err := c.bucket()
			if err != nil {
				return err
			}
			b, closeBus, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { err = errs.Combine(err, closeBus()) }()
			return objstore.Delete(cmd.Context(), b, bucket)
		},
	}

	cmd.AddCommand(create, info, rm)
	return cmd
}
