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

// Package membus is an in-process implementation of bus.Bus used by the
// store unit tests. It keeps ordered per-stream logs, honours DiscardNew
// byte limits and lets tests inject publish failures.
package membus

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/nats-io/objstore/bus"
)

// ErrMaxBytes mirrors the server rejecting a write on a full DiscardNew stream.
var ErrMaxBytes = errors.New("membus: maximum bytes exceeded")

// PublishHook is called before a message is stored. Returning an error
// fails the publish without storing anything.
type PublishHook func(subject string, data []byte) error

// Bus is an in-memory bus.Bus.
type Bus struct {
	mu      sync.Mutex
	streams map[string]*stream
	hook    PublishHook
	// publishes counts successful publishes, by subject.
	publishes map[string]int
}

type stream struct {
	cfg  jetstream.StreamConfig
	seq  uint64
	msgs []*bus.Msg
	subs map[*sub]struct{}
	made time.Time
}

var _ bus.Bus = (*Bus)(nil)

// New returns an empty bus.
func New() *Bus {
	return &Bus{
		streams:   make(map[string]*stream),
		publishes: make(map[string]int),
	}
}

// SetPublishHook installs h, replacing any previous hook. nil removes it.
func (b *Bus) SetPublishHook(h PublishHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = h
}

// Publishes returns how many messages were stored on subjects matching filter.
func (b *Bus) Publishes(filter string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for subj, c := range b.publishes {
		if SubjectMatches(filter, subj) {
			n += c
		}
	}
	return n
}

// Stored returns the number of messages currently kept for subjects
// matching filter across all streams.
func (b *Bus) Stored(filter string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.streams {
		for _, m := range s.msgs {
			if SubjectMatches(filter, m.Subject) {
				n++
			}
		}
	}
	return n
}

// Backdate shifts the timestamp of every stored message on subjects
// matching filter by d into the past.
func (b *Bus) Backdate(filter string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.streams {
		for _, m := range s.msgs {
			if SubjectMatches(filter, m.Subject) {
				m.Time = m.Time.Add(-d)
			}
		}
	}
}

func (b *Bus) streamFor(subject string) *stream {
	for _, s := range b.streams {
		for _, f := range s.cfg.Subjects {
			if SubjectMatches(f, subject) {
				return s
			}
		}
	}
	return nil
}

func (s *stream) bytes() int64 {
	var n int64
	for _, m := range s.msgs {
		n += int64(len(m.Subject) + len(m.Data))
	}
	return n
}

func (b *Bus) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hook != nil {
		if err := b.hook(subject, data); err != nil {
			return err
		}
	}
	s := b.streamFor(subject)
	if s == nil {
		return nats.ErrNoResponders
	}
	if s.cfg.MaxBytes > 0 && s.cfg.Discard == jetstream.DiscardNew &&
		s.bytes()+int64(len(subject)+len(data)) > s.cfg.MaxBytes {
		return ErrMaxBytes
	}

	s.seq++
	m := &bus.Msg{
		Subject:  subject,
		Sequence: s.seq,
		Data:     append([]byte(nil), data...),
		Time:     time.Now().UTC(),
	}
	s.msgs = append(s.msgs, m)
	b.publishes[subject]++

	for sb := range s.subs {
		if SubjectMatches(sb.filter, subject) {
			sb.push(m)
		}
	}
	return nil
}

func (b *Bus) GetLastMsg(ctx context.Context, stream, subject string) (*bus.Msg, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[stream]
	if !ok {
		return nil, bus.ErrStreamNotFound
	}
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if SubjectMatches(subject, s.msgs[i].Subject) {
			m := *s.msgs[i]
			return &m, nil
		}
	}
	return nil, bus.ErrMsgNotFound
}

func (b *Bus) Purge(ctx context.Context, stream, subject string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[stream]
	if !ok {
		return bus.ErrStreamNotFound
	}
	kept := s.msgs[:0]
	for _, m := range s.msgs {
		if subject == "" || SubjectMatches(subject, m.Subject) {
			continue
		}
		kept = append(kept, m)
	}
	s.msgs = kept
	return nil
}

func (b *Bus) CreateStream(ctx context.Context, cfg jetstream.StreamConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.streams[cfg.Name]; ok {
		return bus.ErrStreamNameAlreadyInUse
	}
	b.streams[cfg.Name] = &stream{cfg: cfg, subs: make(map[*sub]struct{}), made: time.Now().UTC()}
	return nil
}

func (b *Bus) DeleteStream(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	s, ok := b.streams[name]
	if !ok {
		b.mu.Unlock()
		return bus.ErrStreamNotFound
	}
	delete(b.streams, name)
	subs := make([]*sub, 0, len(s.subs))
	for sb := range s.subs {
		subs = append(subs, sb)
	}
	b.mu.Unlock()

	for _, sb := range subs {
		sb.Stop()
	}
	return nil
}

func (b *Bus) StreamExists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.streams[name]
	return ok, nil
}

func (b *Bus) StreamInfo(ctx context.Context, name, subjectFilter string) (*jetstream.StreamInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[name]
	if !ok {
		return nil, bus.ErrStreamNotFound
	}
	info := &jetstream.StreamInfo{
		Config:  s.cfg,
		Created: s.made,
		State: jetstream.StreamState{
			Msgs:      uint64(len(s.msgs)),
			Bytes:     uint64(s.bytes()),
			LastSeq:   s.seq,
			Consumers: len(s.subs),
		},
	}
	if len(s.msgs) > 0 {
		info.State.FirstSeq = s.msgs[0].Sequence
		info.State.FirstTime = s.msgs[0].Time
		info.State.LastTime = s.msgs[len(s.msgs)-1].Time
	}
	if subjectFilter != "" {
		info.State.Subjects = make(map[string]uint64)
		for _, m := range s.msgs {
			if SubjectMatches(subjectFilter, m.Subject) {
				info.State.Subjects[m.Subject]++
			}
		}
		info.State.NumSubjects = uint64(len(info.State.Subjects))
	}
	return info, nil
}

func (b *Bus) subscribe(ctx context.Context, streamName, subject string, handler bus.MsgHandler, opts []bus.SubscribeOpt) (*sub, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, err := bus.ApplySubscribeOpts(opts...)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[streamName]
	if !ok {
		return nil, bus.ErrStreamNotFound
	}

	sb := &sub{
		filter:  subject,
		handler: handler,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	sb.release = func() {
		b.mu.Lock()
		delete(s.subs, sb)
		b.mu.Unlock()
	}

	switch o.Deliver {
	case bus.DeliverAll:
		for _, m := range s.msgs {
			if SubjectMatches(subject, m.Subject) {
				sb.push(m)
			}
		}
	case bus.DeliverLastPerSubject:
		last := make(map[string]*bus.Msg)
		var order []string
		for _, m := range s.msgs {
			if !SubjectMatches(subject, m.Subject) {
				continue
			}
			if _, seen := last[m.Subject]; !seen {
				order = append(order, m.Subject)
			}
			last[m.Subject] = m
		}
		// Deliver in stream order of the surviving messages.
		var pick []*bus.Msg
		for _, subj := range order {
			pick = append(pick, last[subj])
		}
		slices.SortFunc(pick, func(a, b *bus.Msg) int { return cmp.Compare(a.Sequence, b.Sequence) })
		for _, m := range pick {
			sb.push(m)
		}
	case bus.DeliverNew:
	}
	s.subs[sb] = struct{}{}

	if handler != nil {
		go sb.run()
	}
	return sb, nil
}

func (b *Bus) SubscribeOrdered(ctx context.Context, stream, subject string, opts ...bus.SubscribeOpt) (bus.Subscription, error) {
	return b.subscribe(ctx, stream, subject, nil, opts)
}

func (b *Bus) ListenOrdered(ctx context.Context, stream, subject string, handler bus.MsgHandler, opts ...bus.SubscribeOpt) (bus.Subscription, error) {
	if handler == nil {
		return nil, errors.New("membus: nil handler")
	}
	return b.subscribe(ctx, stream, subject, handler, opts)
}

// sub holds an unbounded queue so that publishers never block on readers.
type sub struct {
	filter  string
	handler bus.MsgHandler
	release func()

	mu     sync.Mutex
	queue  []*bus.Msg
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *sub) push(m *bus.Msg) {
	cp := *m
	s.mu.Lock()
	s.queue = append(s.queue, &cp)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *sub) pop() (*bus.Msg, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	m := s.queue[0]
	s.queue = s.queue[1:]
	return m, true
}

func (s *sub) run() {
	for {
		for {
			m, ok := s.pop()
			if !ok {
				break
			}
			select {
			case <-s.done:
				return
			default:
			}
			s.handler(m)
		}
		select {
		case <-s.notify:
		case <-s.done:
			return
		}
	}
}

func (s *sub) Next(timeout time.Duration) (*bus.Msg, error) {
	if s.handler != nil {
		return nil, bus.ErrHandlerSubscription
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		if m, ok := s.pop(); ok {
			return m, nil
		}
		select {
		case <-s.notify:
		case <-t.C:
			return nil, bus.ErrTimeout
		case <-s.done:
			return nil, bus.ErrSubscriptionClosed
		}
	}
}

func (s *sub) Stop() error {
	s.once.Do(func() {
		close(s.done)
		if s.release != nil {
			s.release()
		}
	})
	return nil
}

// SubjectMatches reports whether subject matches the filter, which may use
// the '*' and '>' wildcards.
func SubjectMatches(filter, subject string) bool {
	if filter == subject {
		return true
	}
	ft := strings.Split(filter, ".")
	st := strings.Split(subject, ".")
	for i, tok := range ft {
		if tok == ">" {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(ft) == len(st)
}
