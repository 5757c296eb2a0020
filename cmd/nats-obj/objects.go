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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nats-io/objstore"
)

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newPutCmd(c *cli) *cobra.Command {
	var transferID string
	cmd := &cobra.Command{
		Use:   "put <name> [file]",
		Short: "Store an object from a file or stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = c.in
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return Error.Wrap(err)
				}
				defer f.Close()
				r = f
			}
			data, err := io.ReadAll(r)
			if err != nil {
				return Error.Wrap(err)
			}
			return c.withStore(cmd.Context(), func(st *objstore.Store) error {
				err := st.Put(cmd.Context(), objstore.ObjectElement{
					Meta: objstore.ObjectMeta{Name: args[0], TransferID: transferID},
					Data: data,
				})
				if err != nil {
					return err
				}
				meta, err := st.Info(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.printJSON(meta)
			})
		},
	}
	return addFlags(cmd, func(f *pflag.FlagSet) {
		f.StringVar(&transferID, "transfer-id", "", "transfer id of the chunks, generated when empty")
	})
}

func newGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name> [file]",
		Short: "Write an object to a file or stdout",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(st *objstore.Store) error {
				obj, err := st.Get(cmd.Context(), args[0], c.vip.GetDuration(keyChunkTimeout))
				if err != nil {
					return err
				}
				if obj.Meta.Deleted {
					return Error.New("object %q was removed", args[0])
				}
				if len(args) == 2 && args[1] != "-" {
					return Error.Wrap(os.WriteFile(args[1], obj.Data, 0o644))
				}
				_, err = c.out.Write(obj.Data)
				return Error.Wrap(err)
			})
		},
	}
}

func newInfoCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show the current record of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(st *objstore.Store) error {
				meta, err := st.Info(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.printJSON(meta)
			})
		},
	}
}

func newRmCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>...",
		Short: "Remove objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(st *objstore.Store) error {
				for _, name := range args {
					if err := st.Remove(cmd.Context(), name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newLsCmd(c *cli) *cobra.Command {
	var deleted bool
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List the objects of a bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(cmd.Context(), func(st *objstore.Store) error {
				var opts []objstore.ListOpt
				if deleted {
					opts = append(opts, objstore.ListShowDeleted())
				}
				objs, err := st.List(cmd.Context(), opts...)
				if err != nil && !errors.Is(err, objstore.ErrNoObjectsFound) {
					return err
				}
				tw := tabwriter.NewWriter(c.out, 0, 8, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tSIZE\tCHUNKS\tMODIFIED\tDELETED")
				for _, m := range objs {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%t\n",
						m.Name, m.Size, m.Chunks, m.ModTime.UTC().Format(time.RFC3339), m.Deleted)
				}
				return tw.Flush()
			})
		},
	}
	return addFlags(cmd, func(f *pflag.FlagSet) {
		f.BoolVar(&deleted, "deleted", false, "include removed objects")
	})
}

type watchEvent struct {
	meta objstore.ObjectMeta
	err  error
}

func newWatchCmd(c *cli) *cobra.Command {
	var updatesOnly, history bool
	cmd := &cobra.Command{
		Use:   "watch <name>",
		Short: "Print the records of an object as they are stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			events := make(chan watchEvent, 64)
			send := func(ev watchEvent) {
				select {
				case events <- ev:
				case <-ctx.Done():
				}
			}
			opts := []objstore.WatchOpt{
				objstore.WithUpdatedHandler(func(m objstore.ObjectMeta) { send(watchEvent{meta: m}) }),
				objstore.WithRemovedHandler(func(m objstore.ObjectMeta) { send(watchEvent{meta: m}) }),
				objstore.WithErrorHandler(func(err error) { send(watchEvent{err: err}) }),
			}
			if updatesOnly {
				opts = append(opts, objstore.UpdatesOnly())
			}
			if history {
				opts = append(opts, objstore.IncludeHistory())
			}

			return c.withStore(ctx, func(st *objstore.Store) error {
				w, err := st.Watch(ctx, args[0], opts...)
				if err != nil {
					return err
				}
				defer w.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-w.Done():
						return nil
					case ev := <-events:
						c.printEvent(ev)
					}
				}
			})
		},
	}
	return addFlags(cmd, func(f *pflag.FlagSet) {
		f.BoolVar(&updatesOnly, "updates-only", false, "skip the current record")
		f.BoolVar(&history, "history", false, "deliver every stored record first")
	})
}

func (c *cli) printEvent(ev watchEvent) {
	switch {
	case ev.err != nil:
		fmt.Fprintf(c.out, "error %v\n", ev.err)
	case ev.meta.Deleted:
		fmt.Fprintf(c.out, "removed %s\n", ev.meta.Name)
	default:
		fmt.Fprintf(c.out, "updated %s size=%d chunks=%d nuid=%s\n",
			ev.meta.Name, ev.meta.Size, ev.meta.Chunks, ev.meta.TransferID)
	}
}

func newReapCmd(c *cli) *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Purge chunks no object refers to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(cmd.Context(), func(st *objstore.Store) error {
				n, err := st.ReapOrphans(cmd.Context(), grace)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "reaped %d transfers\n", n)
				return nil
			})
		},
	}
	return addFlags(cmd, func(f *pflag.FlagSet) {
		f.DurationVar(&grace, "grace", time.Hour, "keep chunks younger than this")
	})
}
