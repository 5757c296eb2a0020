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

package bus_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/nats-io/objstore/bus"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func RunBasicJetStreamServer() *server.Server {
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	return natsserver.RunServer(&opts)
}

func shutdownJSServerAndRemoveStorage(t *testing.T, s *server.Server) {
	t.Helper()
	var sd string
	if config := s.JetStreamConfig(); config != nil {
		sd = config.StoreDir
	}
	s.Shutdown()
	if sd != "" {
		if err := os.RemoveAll(sd); err != nil {
			t.Fatalf("Unable to remove storage %q: %v", sd, err)
		}
	}
	s.WaitForShutdown()
}

func setup(t *testing.T) (*server.Server, *nats.Conn, *bus.JetStream) {
	t.Helper()
	s := RunBasicJetStreamServer()
	nc, err := nats.Connect(s.ClientURL())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	b, err := bus.NewJetStream(nc, bus.WithBusLogger(zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	err = b.CreateStream(context.Background(), jetstream.StreamConfig{
		Name:        "S",
		Subjects:    []string{"s.>"},
		Storage:     jetstream.MemoryStorage,
		AllowDirect: true,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return s, nc, b
}

func TestJetStreamPublishAndGetLast(t *testing.T) {
	s, nc, b := setup(t)
	defer shutdownJSServerAndRemoveStorage(t, s)
	defer nc.Close()
	ctx := context.Background()

	for _, data := range []string{"1", "2"} {
		if err := b.Publish(ctx, "s.a", []byte(data)); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	m, err := b.GetLastMsg(ctx, "S", "s.a")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(m.Data) != "2" || m.Sequence != 2 || m.Subject != "s.a" || m.Time.IsZero() {
		t.Fatalf("Unexpected message %+v", m)
	}

	if _, err := b.GetLastMsg(ctx, "S", "s.none"); !errors.Is(err, bus.ErrMsgNotFound) {
		t.Fatalf("Expected %v, got %v", bus.ErrMsgNotFound, err)
	}
	if _, err := b.GetLastMsg(ctx, "NONE", "s.a"); !errors.Is(err, bus.ErrStreamNotFound) {
		t.Fatalf("Expected %v, got %v", bus.ErrStreamNotFound, err)
	}
	if err := b.Publish(ctx, "unbound", []byte("x")); err == nil {
		t.Fatalf("Expected publish without stream to fail")
	}
}

func TestJetStreamSubscribeOrdered(t *testing.T) {
	s, nc, b := setup(t)
	defer shutdownJSServerAndRemoveStorage(t, s)
	defer nc.Close()
	ctx := context.Background()

	for _, data := range []string{"1", "2", "3"} {
		if err := b.Publish(ctx, "s.chunks", []byte(data)); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if err := b.Publish(ctx, "s.other", []byte("x")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	sub, err := b.SubscribeOrdered(ctx, "S", "s.chunks", bus.WithBuffer(2))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, want := range []string{"1", "2", "3"} {
		m, err := sub.Next(time.Second)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if string(m.Data) != want {
			t.Fatalf("Expected %q, got %q", want, m.Data)
		}
	}
	if _, err := sub.Next(100 * time.Millisecond); !errors.Is(err, bus.ErrTimeout) {
		t.Fatalf("Expected %v, got %v", bus.ErrTimeout, err)
	}
	if err := sub.Stop(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := sub.Stop(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := sub.Next(time.Second); !errors.Is(err, bus.ErrSubscriptionClosed) {
		t.Fatalf("Expected %v, got %v", bus.ErrSubscriptionClosed, err)
	}
}

func TestJetStreamListenOrdered(t *testing.T) {
	s, nc, b := setup(t)
	defer shutdownJSServerAndRemoveStorage(t, s)
	defer nc.Close()
	ctx := context.Background()

	for _, data := range []string{"1", "2"} {
		if err := b.Publish(ctx, "s.meta", []byte(data)); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	listen := func(p bus.DeliverPolicy) (chan string, bus.Subscription) {
		ch := make(chan string, 10)
		sub, err := b.ListenOrdered(ctx, "S", "s.meta", func(m *bus.Msg) {
			ch <- string(m.Data)
		}, bus.WithDeliverPolicy(p))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		return ch, sub
	}
	all, subAll := listen(bus.DeliverAll)
	defer subAll.Stop()
	last, subLast := listen(bus.DeliverLastPerSubject)
	defer subLast.Stop()
	fresh, subNew := listen(bus.DeliverNew)
	defer subNew.Stop()

	if _, err := subAll.Next(time.Millisecond); !errors.Is(err, bus.ErrHandlerSubscription) {
		t.Fatalf("Expected %v, got %v", bus.ErrHandlerSubscription, err)
	}

	expect := func(ch chan string, want ...string) {
		t.Helper()
		for _, w := range want {
			select {
			case got := <-ch:
				if got != w {
					t.Fatalf("Expected %q, got %q", w, got)
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("Did not receive %q", w)
			}
		}
	}
	expect(all, "1", "2")
	expect(last, "2")

	if err := b.Publish(ctx, "s.meta", []byte("3")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	expect(all, "3")
	expect(last, "3")
	expect(fresh, "3")
}

func TestJetStreamPurgeAndInfo(t *testing.T) {
	s, nc, b := setup(t)
	defer shutdownJSServerAndRemoveStorage(t, s)
	defer nc.Close()
	ctx := context.Background()

	for _, subj := range []string{"s.a", "s.a", "s.b"} {
		if err := b.Publish(ctx, subj, []byte("x")); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	info, err := b.StreamInfo(ctx, "S", "s.>")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info.State.Subjects["s.a"] != 2 || info.State.Subjects["s.b"] != 1 {
		t.Fatalf("Unexpected subjects %v", info.State.Subjects)
	}

	if err := b.Purge(ctx, "S", "s.a"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	info, err = b.StreamInfo(ctx, "S", "s.>")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := info.State.Subjects["s.a"]; ok || info.State.Msgs != 1 {
		t.Fatalf("Unexpected state after purge %+v", info.State)
	}

	ok, err := b.StreamExists(ctx, "S")
	if err != nil || !ok {
		t.Fatalf("Expected stream to exist: %v", err)
	}
	if err := b.CreateStream(ctx, jetstream.StreamConfig{Name: "S", Subjects: []string{"x.>"}}); !errors.Is(err, bus.ErrStreamNameAlreadyInUse) {
		t.Fatalf("Expected %v, got %v", bus.ErrStreamNameAlreadyInUse, err)
	}
	if err := b.DeleteStream(ctx, "S"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ok, err = b.StreamExists(ctx, "S")
	if err != nil || ok {
		t.Fatalf("Expected stream to be gone: %v", err)
	}
	if _, err := b.StreamInfo(ctx, "S", ""); !errors.Is(err, bus.ErrStreamNotFound) {
		t.Fatalf("Expected %v, got %v", bus.ErrStreamNotFound, err)
	}
}

func TestJetStreamStreamDeletedByOtherClient(t *testing.T) {
	s, nc, b := setup(t)
	defer shutdownJSServerAndRemoveStorage(t, s)
	defer nc.Close()
	ctx := context.Background()

	if err := b.Publish(ctx, "s.a", []byte("1")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// Cache the stream handle.
	if _, err := b.GetLastMsg(ctx, "S", "s.a"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	other, err := nats.Connect(s.ClientURL())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer other.Close()
	js, err := jetstream.New(other)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := js.DeleteStream(ctx, "S"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	gctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := b.GetLastMsg(gctx, "S", "s.a"); !errors.Is(err, bus.ErrStreamNotFound) {
		t.Fatalf("Expected %v, got %v", bus.ErrStreamNotFound, err)
	}
	if err := b.Publish(ctx, "s.a", []byte("2")); !errors.Is(err, bus.ErrStreamNotFound) {
		t.Fatalf("Expected %v, got %v", bus.ErrStreamNotFound, err)
	}
	ok, err := b.StreamExists(ctx, "S")
	if err != nil || ok {
		t.Fatalf("Expected stream to be gone: %v", err)
	}
}
