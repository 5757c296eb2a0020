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

// Package bus describes the handful of stream primitives the object store
// is built on, and provides the JetStream implementation of them.
//
// Stream configuration and status reuse the [jetstream] types so that any
// implementation speaks the same vocabulary as the server.
package bus

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type (
	// Bus is an ordered, subject-addressed message bus with durable streams.
	Bus interface {
		// Publish stores data on subject and waits for the acknowledgement.
		Publish(ctx context.Context, subject string, data []byte) error

		// SubscribeOrdered opens an ordered subscription on subject, bound to
		// stream. Messages are pulled with [Subscription.Next].
		SubscribeOrdered(ctx context.Context, stream, subject string, opts ...SubscribeOpt) (Subscription, error)

		// ListenOrdered opens an ordered subscription on subject, bound to
		// stream, and calls handler for every message in stream order.
		// Handler runs on the delivery goroutine.
		ListenOrdered(ctx context.Context, stream, subject string, handler MsgHandler, opts ...SubscribeOpt) (Subscription, error)

		// GetLastMsg returns the newest message stored on subject.
		// ErrMsgNotFound is returned when there is none.
		GetLastMsg(ctx context.Context, stream, subject string) (*Msg, error)

		// Purge removes every message of stream matching subject.
		Purge(ctx context.Context, stream, subject string) error

		// CreateStream creates a stream. ErrStreamNameAlreadyInUse is
		// returned if a stream with that name exists.
		CreateStream(ctx context.Context, cfg jetstream.StreamConfig) error

		// DeleteStream deletes a stream and all of its messages.
		DeleteStream(ctx context.Context, name string) error

		// StreamExists reports whether a stream with that name exists.
		StreamExists(ctx context.Context, name string) (bool, error)

		// StreamInfo returns configuration and state of a stream. When
		// subjectFilter is not empty, State.Subjects holds the per-subject
		// message counts for matching subjects.
		StreamInfo(ctx context.Context, name, subjectFilter string) (*jetstream.StreamInfo, error)
	}

	// Subscription is a live ordered subscription.
	Subscription interface {
		// Next waits up to timeout for the next message. ErrTimeout is
		// returned when nothing arrived in time. Next must not be used on
		// subscriptions created with a handler.
		Next(timeout time.Duration) (*Msg, error)

		// Stop releases the subscription. It is safe to call more than once.
		Stop() error
	}

	// Msg is a message delivered by the bus.
	Msg struct {
		Subject  string
		Sequence uint64
		Data     []byte
		Time     time.Time
	}

	// MsgHandler is invoked for every message of a push subscription.
	MsgHandler func(*Msg)

	// DeliverPolicy selects where an ordered subscription starts.
	DeliverPolicy int

	// SubscribeOpt configures an ordered subscription.
	SubscribeOpt func(*SubscribeOpts) error

	// SubscribeOpts holds ordered subscription settings. Implementations
	// obtain it with [ApplySubscribeOpts].
	SubscribeOpts struct {
		Deliver DeliverPolicy
		// Buffer is the number of messages a pull subscription may hold
		// before the delivery side waits for Next.
		Buffer int
	}
)

const (
	// DeliverAll starts with the first stored message.
	DeliverAll DeliverPolicy = iota
	// DeliverLastPerSubject starts with the newest message of each subject.
	DeliverLastPerSubject
	// DeliverNew only delivers messages stored after the subscription.
	DeliverNew
)

const defaultBuffer = 64

var (
	// ErrMsgNotFound is returned by GetLastMsg when the subject is empty.
	ErrMsgNotFound = jetstream.ErrMsgNotFound

	// ErrStreamNotFound is returned when the stream does not exist.
	ErrStreamNotFound = jetstream.ErrStreamNotFound

	// ErrStreamNameAlreadyInUse is returned when creating a duplicate stream.
	ErrStreamNameAlreadyInUse = jetstream.ErrStreamNameAlreadyInUse

	// ErrTimeout is returned by Subscription.Next on timeout.
	ErrTimeout = nats.ErrTimeout

	// ErrSubscriptionClosed is returned by Next after Stop.
	ErrSubscriptionClosed = errors.New("bus: subscription closed")

	// ErrHandlerSubscription is returned by Next on push subscriptions.
	ErrHandlerSubscription = errors.New("bus: next called on push subscription")
)

// WithDeliverPolicy sets where the subscription starts. Default DeliverAll.
func WithDeliverPolicy(p DeliverPolicy) SubscribeOpt {
	return func(o *SubscribeOpts) error {
		if p < DeliverAll || p > DeliverNew {
			return errors.New("bus: invalid deliver policy")
		}
		o.Deliver = p
		return nil
	}
}

// WithBuffer sets how many undelivered messages a pull subscription keeps.
func WithBuffer(n int) SubscribeOpt {
	return func(o *SubscribeOpts) error {
		if n <= 0 {
			return errors.New("bus: buffer must be positive")
		}
		o.Buffer = n
		return nil
	}
}

// ApplySubscribeOpts resolves opts over the defaults.
func ApplySubscribeOpts(opts ...SubscribeOpt) (SubscribeOpts, error) {
	o := SubscribeOpts{Deliver: DeliverAll, Buffer: defaultBuffer}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return SubscribeOpts{}, err
		}
	}
	return o, nil
}
