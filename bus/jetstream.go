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

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/nats-io/objstore/internal/syncx"
)

// JetStream implements [Bus] on top of a NATS JetStream context.
type JetStream struct {
	js      jetstream.JetStream
	log     *zap.Logger
	streams syncx.Map[string, jetstream.Stream]
}

// JetStreamOpt configures the JetStream adapter.
type JetStreamOpt func(*JetStream) error

// WithBusLogger sets the logger used for consumer errors.
func WithBusLogger(log *zap.Logger) JetStreamOpt {
	return func(j *JetStream) error {
		if log == nil {
			return errors.New("bus: nil logger")
		}
		j.log = log
		return nil
	}
}

var _ Bus = (*JetStream)(nil)

// lookupTimeout bounds the stream lookup confirming that a stream is gone.
const lookupTimeout = 2 * time.Second

// NewJetStream creates a JetStream context on nc and wraps it.
func NewJetStream(nc *nats.Conn, opts ...JetStreamOpt) (*JetStream, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}
	return FromJetStream(js, opts...)
}

// FromJetStream wraps an existing JetStream context.
func FromJetStream(js jetstream.JetStream, opts ...JetStreamOpt) (*JetStream, error) {
	j := &JetStream{js: js, log: zap.NewNop()}
	for _, opt := range opts {
		if err := opt(j); err != nil {
			return nil, err
		}
	}
	return j, nil
}

// stream returns a cached stream handle. Stream handles only carry the
// stream name for the calls used here, so caching them saves a stream info
// request per operation. Handles of streams deleted by other clients are
// evicted by checkStream.
func (j *JetStream) stream(ctx context.Context, name string) (jetstream.Stream, error) {
	if s, ok := j.streams.Load(name); ok {
		return s, nil
	}
	s, err := j.js.Stream(ctx, name)
	if err != nil {
		return nil, err
	}
	j.streams.Store(name, s)
	return s, nil
}

// checkStream evicts the cached handle of name when err shows that the
// stream no longer exists and returns an error matching ErrStreamNotFound.
// Requests to a deleted stream may go unanswered, so timeouts and missing
// responders are confirmed with a stream lookup.
func (j *JetStream) checkStream(ctx context.Context, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jetstream.ErrStreamNotFound):
		j.streams.Delete(name)
		return err
	case errors.Is(err, jetstream.ErrNoStreamResponse),
		errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
	default:
		return err
	}
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
	defer cancel()
	if _, lerr := j.js.Stream(lctx, name); !errors.Is(lerr, jetstream.ErrStreamNotFound) {
		return err
	}
	j.streams.Delete(name)
	return fmt.Errorf("%w: %v", ErrStreamNotFound, err)
}

func (j *JetStream) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := j.js.Publish(ctx, subject, data)
	if errors.Is(err, jetstream.ErrNoStreamResponse) {
		return fmt.Errorf("%w: %v", ErrStreamNotFound, err)
	}
	return err
}

func (j *JetStream) GetLastMsg(ctx context.Context, stream, subject string) (*Msg, error) {
	s, err := j.stream(ctx, stream)
	if err != nil {
		return nil, err
	}
	m, err := s.GetLastMsgForSubject(ctx, subject)
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return nil, err
		}
		return nil, j.checkStream(ctx, stream, err)
	}
	return &Msg{Subject: m.Subject, Sequence: m.Sequence, Data: m.Data, Time: m.Time}, nil
}

func (j *JetStream) Purge(ctx context.Context, stream, subject string) error {
	s, err := j.stream(ctx, stream)
	if err != nil {
		return err
	}
	var opts []jetstream.StreamPurgeOpt
	if subject != "" {
		opts = append(opts, jetstream.WithPurgeSubject(subject))
	}
	return j.checkStream(ctx, stream, s.Purge(ctx, opts...))
}

func (j *JetStream) CreateStream(ctx context.Context, cfg jetstream.StreamConfig) error {
	s, err := j.js.CreateStream(ctx, cfg)
	if err != nil {
		return err
	}
	j.streams.Store(cfg.Name, s)
	return nil
}

func (j *JetStream) DeleteStream(ctx context.Context, name string) error {
	j.streams.Delete(name)
	return j.js.DeleteStream(ctx, name)
}

// StreamExists always asks the server and refreshes the cached handle.
func (j *JetStream) StreamExists(ctx context.Context, name string) (bool, error) {
	s, err := j.js.Stream(ctx, name)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		j.streams.Delete(name)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	j.streams.Store(name, s)
	return true, nil
}

func (j *JetStream) StreamInfo(ctx context.Context, name, subjectFilter string) (*jetstream.StreamInfo, error) {
	s, err := j.stream(ctx, name)
	if err != nil {
		return nil, err
	}
	var opts []jetstream.StreamInfoOpt
	if subjectFilter != "" {
		opts = append(opts, jetstream.WithSubjectFilter(subjectFilter))
	}
	info, err := s.Info(ctx, opts...)
	if err != nil {
		return nil, j.checkStream(ctx, name, err)
	}
	return info, nil
}

func (j *JetStream) orderedConsumer(ctx context.Context, stream, subject string, o SubscribeOpts) (jetstream.Consumer, error) {
	cfg := jetstream.OrderedConsumerConfig{FilterSubjects: []string{subject}}
	switch o.Deliver {
	case DeliverLastPerSubject:
		cfg.DeliverPolicy = jetstream.DeliverLastPerSubjectPolicy
	case DeliverNew:
		cfg.DeliverPolicy = jetstream.DeliverNewPolicy
	default:
		cfg.DeliverPolicy = jetstream.DeliverAllPolicy
	}
	return j.js.OrderedConsumer(ctx, stream, cfg)
}

func (j *JetStream) consumeErr(subject string) jetstream.PullConsumeOpt {
	return jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		j.log.Debug("ordered consumer error", zap.String("subject", subject), zap.Error(err))
	})
}

func (j *JetStream) SubscribeOrdered(ctx context.Context, stream, subject string, opts ...SubscribeOpt) (Subscription, error) {
	o, err := ApplySubscribeOpts(opts...)
	if err != nil {
		return nil, err
	}
	cons, err := j.orderedConsumer(ctx, stream, subject, o)
	if err != nil {
		return nil, err
	}

	sub := &pullSub{
		msgs: make(chan *Msg, o.Buffer),
		done: make(chan struct{}),
	}
	cc, err := cons.Consume(func(m jetstream.Msg) {
		msg, err := toMsg(m)
		if err != nil {
			return
		}
		select {
		case sub.msgs <- msg:
		case <-sub.done:
		}
	}, j.consumeErr(subject))
	if err != nil {
		return nil, err
	}
	sub.cc = cc
	return sub, nil
}

func (j *JetStream) ListenOrdered(ctx context.Context, stream, subject string, handler MsgHandler, opts ...SubscribeOpt) (Subscription, error) {
	if handler == nil {
		return nil, errors.New("bus: nil handler")
	}
	o, err := ApplySubscribeOpts(opts...)
	if err != nil {
		return nil, err
	}
	cons, err := j.orderedConsumer(ctx, stream, subject, o)
	if err != nil {
		return nil, err
	}
	cc, err := cons.Consume(func(m jetstream.Msg) {
		msg, err := toMsg(m)
		if err != nil {
			j.log.Debug("dropping message without metadata", zap.String("subject", m.Subject()), zap.Error(err))
			return
		}
		handler(msg)
	}, j.consumeErr(subject))
	if err != nil {
		return nil, err
	}
	return &pushSub{cc: cc}, nil
}

func toMsg(m jetstream.Msg) (*Msg, error) {
	meta, err := m.Metadata()
	if err != nil {
		return nil, err
	}
	return &Msg{
		Subject:  m.Subject(),
		Sequence: meta.Sequence.Stream,
		Data:     m.Data(),
		Time:     meta.Timestamp,
	}, nil
}

// pullSub buffers pushed messages so they can be taken with Next.
type pullSub struct {
	msgs chan *Msg
	done chan struct{}
	once sync.Once
	cc   jetstream.ConsumeContext
}

func (s *pullSub) Next(timeout time.Duration) (*Msg, error) {
	// Drain what is already buffered before reporting a stop.
	select {
	case m := <-s.msgs:
		return m, nil
	default:
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m := <-s.msgs:
		return m, nil
	case <-t.C:
		return nil, ErrTimeout
	case <-s.done:
		return nil, ErrSubscriptionClosed
	}
}

func (s *pullSub) Stop() error {
	s.once.Do(func() {
		close(s.done)
		s.cc.Stop()
	})
	return nil
}

type pushSub struct {
	once sync.Once
	cc   jetstream.ConsumeContext
}

func (s *pushSub) Next(time.Duration) (*Msg, error) {
	return nil, ErrHandlerSubscription
}

func (s *pushSub) Stop() error {
	s.once.Do(s.cc.Stop)
	return nil
}
