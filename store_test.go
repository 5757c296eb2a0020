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

package objstore_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nats-io/objstore"
	"github.com/nats-io/objstore/internal/membus"
)

const testBucket = "testObjectStore"

func newStore(t *testing.T, opts ...objstore.Option) (*objstore.Store, *membus.Bus) {
	t.Helper()
	b := membus.New()
	s, err := objstore.New(context.Background(), b, objstore.BucketConfig{Bucket: testBucket}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, b
}

func randomData(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

func put(t *testing.T, s *objstore.Store, name string, data []byte) {
	t.Helper()
	require.NoError(t, s.Put(context.Background(), objstore.ObjectElement{
		Meta: objstore.ObjectMeta{Name: name},
		Data: data,
	}))
}

func TestPutGetRoundTrip(t *testing.T) {
	for _, size := range []int{1, 131071, 131072, 131073, 3*131072 + 7} {
		t.Run(fmt.Sprintf("size %d", size), func(t *testing.T) {
			s, b := newStore(t)
			ctx := context.Background()
			data := randomData(t, size)
			put(t, s, "blob", data)

			chunks := (size + objstore.DefaultChunkSize - 1) / objstore.DefaultChunkSize
			obj, err := s.Get(ctx, "blob", time.Second)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, obj.Data), "data does not match")
			assert.Equal(t, int64(size), obj.Meta.Size)
			assert.Equal(t, int64(chunks), obj.Meta.Chunks)
			assert.Equal(t, testBucket, obj.Meta.Bucket)
			assert.False(t, obj.Meta.Deleted)
			assert.NotEmpty(t, obj.Meta.TransferID)
			assert.NotEmpty(t, obj.Meta.Digest)
			assert.False(t, obj.Meta.ModTime.IsZero())

			assert.Equal(t, chunks, b.Stored(objstore.ChunkSubject(testBucket, obj.Meta.TransferID)))
			assert.Equal(t, 1, b.Stored(objstore.MetaWildcard(testBucket)))
		})
	}
}

func TestChunkLayout(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()
	data := randomData(t, 3*131072+7)
	require.NoError(t, s.Put(ctx, objstore.ObjectElement{
		Meta: objstore.ObjectMeta{Name: "blob", TransferID: "T1"},
		Data: data,
	}))

	sub, err := b.SubscribeOrdered(ctx, objstore.StreamName(testBucket), objstore.ChunkSubject(testBucket, "T1"))
	require.NoError(t, err)
	defer sub.Stop()
	for i, want := range []int{131072, 131072, 131072, 7} {
		m, err := sub.Next(time.Second)
		require.NoError(t, err)
		assert.Len(t, m.Data, want, "chunk %d", i)
		assert.True(t, bytes.Equal(data[i*131072:i*131072+want], m.Data), "chunk %d content", i)
	}
}

func TestConcreteScenario(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()
	data := []byte{0x4, 0x6, 0x7, 0x4, 0x6, 0x7}
	put(t, s, "objectName", data)

	m, err := b.GetLastMsg(ctx, "OBJ_testObjectStore", "$O.testObjectStore.M.b2JqZWN0TmFtZQ==")
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(m.Data, &rec))
	assert.Equal(t, "testObjectStore", rec["bucket"])
	assert.Equal(t, "objectName", rec["name"])
	assert.EqualValues(t, 6, rec["size"])
	assert.EqualValues(t, 1, rec["chunks"])
	assert.Equal(t, false, rec["deleted"])
	id, _ := rec["nuid"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, b.Stored("$O.testObjectStore.C."+id))

	obj, err := s.Get(ctx, "objectName", 0)
	require.NoError(t, err)
	assert.Equal(t, data, obj.Data)
	assert.Equal(t, int64(6), obj.Meta.Size)

	require.NoError(t, s.Remove(ctx, "objectName"))
	info, err := s.Info(ctx, "objectName")
	require.NoError(t, err)
	assert.True(t, info.Deleted)
	assert.Zero(t, info.Size)
	assert.Zero(t, info.Chunks)
	assert.Empty(t, info.TransferID)
	assert.Equal(t, 0, b.Stored("$O.testObjectStore.C."+id))
}

func TestPutRejectsInvalidInput(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()

	err := s.Put(ctx, objstore.ObjectElement{Data: []byte("x")})
	assert.ErrorIs(t, err, objstore.ErrNameRequired)
	assert.ErrorIs(t, err, objstore.ErrInvalidArgument)

	err = s.Put(ctx, objstore.ObjectElement{Meta: objstore.ObjectMeta{Name: "a"}})
	assert.ErrorIs(t, err, objstore.ErrDataRequired)

	err = s.Put(ctx, objstore.ObjectElement{Meta: objstore.ObjectMeta{Name: "a"}, Data: []byte{}})
	assert.ErrorIs(t, err, objstore.ErrDataRequired)

	err = s.Put(ctx, objstore.ObjectElement{Meta: objstore.ObjectMeta{Name: "a", TransferID: "a.b"}, Data: []byte("x")})
	assert.ErrorIs(t, err, objstore.ErrInvalidTransferID)

	assert.Equal(t, 0, b.Publishes("$O.>"))
}

func TestPutTransferID(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()

	put(t, s, "a", []byte("generated"))
	info, err := s.Info(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, info.TransferID, 22)

	require.NoError(t, s.Put(ctx, objstore.ObjectElement{
		Meta: objstore.ObjectMeta{Name: "a", TransferID: "mine"},
		Data: []byte("v2"),
	}))
	info, err = s.Info(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "mine", info.TransferID)

	// Reusing an id that still holds chunks would mix two versions.
	before := b.Publishes("$O.>")
	err = s.Put(ctx, objstore.ObjectElement{
		Meta: objstore.ObjectMeta{Name: "b", TransferID: "mine"},
		Data: []byte("v3"),
	})
	assert.ErrorIs(t, err, objstore.ErrTransferIDInUse)
	assert.Equal(t, before, b.Publishes("$O.>"))
}

func TestOverwrite(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	put(t, s, "a", []byte("first version"))
	put(t, s, "a", []byte("second"))

	obj, err := s.Get(ctx, "a", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "second", string(obj.Data))
}

func TestRemove(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()

	err := s.Remove(ctx, "missing")
	assert.ErrorIs(t, err, objstore.ErrObjectNotFound)
	assert.ErrorIs(t, s.Remove(ctx, ""), objstore.ErrNameRequired)

	put(t, s, "a", randomData(t, 200000))
	require.NoError(t, s.Remove(ctx, "a"))
	assert.Equal(t, 0, b.Stored(objstore.ChunkWildcard(testBucket)))

	obj, err := s.Get(ctx, "a", time.Second)
	require.NoError(t, err)
	assert.True(t, obj.Meta.Deleted)
	assert.Empty(t, obj.Data)
	assert.NotNil(t, obj.Data)

	// A second remove records another tombstone.
	require.NoError(t, s.Remove(ctx, "a"))
	assert.Equal(t, 3, b.Stored(objstore.MetaSubject(testBucket, "a")))

	// The object can be stored again.
	put(t, s, "a", []byte("back"))
	obj, err = s.Get(ctx, "a", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "back", string(obj.Data))
}

func TestObjectsAreIsolated(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	put(t, s, "a", []byte("aaa"))
	put(t, s, "b", []byte("bbb"))
	require.NoError(t, s.Remove(ctx, "a"))

	obj, err := s.Get(ctx, "b", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "bbb", string(obj.Data))
	assert.False(t, obj.Meta.Deleted)

	_, err = s.Info(ctx, "c")
	assert.ErrorIs(t, err, objstore.ErrObjectNotFound)
	assert.ErrorIs(t, err, objstore.ErrNotFound)
	assert.Equal(t, objstore.KindNotFound, objstore.KindOf(err))
}

func TestPutFailureLeavesNothing(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	var chunks int
	b.SetPublishHook(func(subject string, _ []byte) error {
		if strings.Contains(subject, ".C.") {
			chunks++
			if chunks == 2 {
				return boom
			}
		}
		return nil
	})

	err := s.Put(ctx, objstore.ObjectElement{
		Meta: objstore.ObjectMeta{Name: "a"},
		Data: randomData(t, 3*131072),
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, objstore.KindUnknown, objstore.KindOf(err))

	_, err = s.Info(ctx, "a")
	assert.ErrorIs(t, err, objstore.ErrObjectNotFound)
	assert.Equal(t, 0, b.Stored(objstore.ChunkWildcard(testBucket)))
	assert.Equal(t, 0, b.Publishes(objstore.MetaWildcard(testBucket)))
}

func TestPutMetaFailurePurgesChunks(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()
	put(t, s, "a", []byte("v1"))

	boom := errors.New("boom")
	b.SetPublishHook(func(subject string, _ []byte) error {
		if strings.Contains(subject, ".M.") {
			return boom
		}
		return nil
	})
	err := s.Put(ctx, objstore.ObjectElement{Meta: objstore.ObjectMeta{Name: "a"}, Data: []byte("v2")})
	assert.ErrorIs(t, err, boom)
	b.SetPublishHook(nil)

	// The previous version is untouched.
	obj, err := s.Get(ctx, "a", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(obj.Data))
	assert.Equal(t, 1, b.Stored(objstore.ChunkWildcard(testBucket)))
}

func TestWithoutPartialCleanup(t *testing.T) {
	s, b := newStore(t, objstore.WithoutPartialCleanup())
	b.SetPublishHook(func(subject string, _ []byte) error {
		if strings.Contains(subject, ".M.") {
			return nats.ErrTimeout
		}
		return nil
	})
	err := s.Put(context.Background(), objstore.ObjectElement{Meta: objstore.ObjectMeta{Name: "a"}, Data: []byte("v")})
	assert.ErrorIs(t, err, nats.ErrTimeout)
	assert.Equal(t, 1, b.Stored(objstore.ChunkWildcard(testBucket)))
}

func publishMeta(t *testing.T, b *membus.Bus, name string, meta any) {
	t.Helper()
	data, ok := meta.([]byte)
	if !ok {
		var err error
		data, err = json.Marshal(meta)
		require.NoError(t, err)
	}
	require.NoError(t, b.Publish(context.Background(), objstore.MetaSubject(testBucket, name), data))
}

func TestGetChunkTimeout(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()

	// A record announcing more chunks than stored.
	require.NoError(t, b.Publish(ctx, objstore.ChunkSubject(testBucket, "T"), []byte("abc")))
	publishMeta(t, b, "a", objstore.ObjectMeta{Bucket: testBucket, Name: "a", TransferID: "T", Size: 9, Chunks: 3})

	start := time.Now()
	_, err := s.Get(ctx, "a", 50*time.Millisecond)
	assert.ErrorIs(t, err, objstore.ErrChunkTimeout)
	assert.ErrorIs(t, err, objstore.ErrTimeout)
	assert.ErrorIs(t, err, nats.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGetDefaultChunkTimeout(t *testing.T) {
	s, b := newStore(t, objstore.WithChunkTimeout(20*time.Millisecond))
	publishMeta(t, b, "a", objstore.ObjectMeta{Bucket: testBucket, Name: "a", TransferID: "T", Size: 1, Chunks: 1})

	_, err := s.Get(context.Background(), "a", 0)
	assert.ErrorIs(t, err, objstore.ErrChunkTimeout)
}

func TestGetObjectTooLarge(t *testing.T) {
	s, _ := newStore(t, objstore.WithMaxObjectSize(10))
	put(t, s, "a", randomData(t, 11))
	put(t, s, "b", randomData(t, 10))

	_, err := s.Get(context.Background(), "a", time.Second)
	assert.ErrorIs(t, err, objstore.ErrOutOfMemory)
	assert.ErrorIs(t, err, objstore.ErrObjectTooLarge)

	_, err = s.Get(context.Background(), "b", time.Second)
	assert.NoError(t, err)
}

func TestGetMalformedMeta(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()
	publishMeta(t, b, "a", []byte("{not json"))

	_, err := s.Info(ctx, "a")
	assert.ErrorIs(t, err, objstore.ErrBadObjectMeta)
	assert.ErrorIs(t, err, objstore.ErrDecode)

	_, err = s.Get(ctx, "a", time.Second)
	assert.ErrorIs(t, err, objstore.ErrDecode)
}

func TestGetCorruptData(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()
	put(t, s, "a", []byte("original"))
	info, err := s.Info(ctx, "a")
	require.NoError(t, err)

	// Same transfer, size and chunks but another digest.
	bad := *info
	bad.Digest = "SHA-256=AAAA"
	publishMeta(t, b, "a", bad)
	_, err = s.Get(ctx, "a", time.Second)
	assert.ErrorIs(t, err, objstore.ErrDigestMismatch)

	// Recorded size does not match the chunks.
	bad = *info
	bad.Digest = ""
	bad.Size = 3
	publishMeta(t, b, "a", bad)
	_, err = s.Get(ctx, "a", time.Second)
	assert.ErrorIs(t, err, objstore.ErrSizeMismatch)
}

func TestGetContextCancelled(t *testing.T) {
	s, _ := newStore(t)
	put(t, s, "a", []byte("x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Get(ctx, "a", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBucketLifecycle(t *testing.T) {
	ctx := context.Background()
	b := membus.New()

	_, err := objstore.New(ctx, b, objstore.BucketConfig{Bucket: "notok!"})
	assert.ErrorIs(t, err, objstore.ErrInvalidStoreName)

	_, err = objstore.Open(ctx, b, "OBJS")
	assert.ErrorIs(t, err, objstore.ErrBucketNotFound)

	ok, err := objstore.Exists(ctx, b, "OBJS")
	require.NoError(t, err)
	assert.False(t, ok)

	s, err := objstore.New(ctx, b, objstore.BucketConfig{
		Bucket:       "OBJS",
		Description:  "testing",
		MaxBytes:     1 << 20,
		MaxConsumers: 5,
		Storage:      jetstream.MemoryStorage,
	})
	require.NoError(t, err)
	defer s.Close()

	info, err := b.StreamInfo(ctx, "OBJ_OBJS", "")
	require.NoError(t, err)
	cfg := info.Config
	assert.Equal(t, []string{"$O.OBJS.C.>", "$O.OBJS.M.>"}, cfg.Subjects)
	assert.Equal(t, jetstream.DiscardNew, cfg.Discard)
	assert.True(t, cfg.AllowDirect)
	assert.True(t, cfg.AllowRollup)
	assert.Equal(t, 5, cfg.MaxConsumers)
	assert.Equal(t, 1, cfg.Replicas)
	assert.Equal(t, int64(1<<20), cfg.MaxBytes)

	// Creating it again is not an error.
	again, err := objstore.New(ctx, b, objstore.BucketConfig{Bucket: "OBJS"})
	require.NoError(t, err)
	defer again.Close()

	opened, err := objstore.Open(ctx, b, "OBJS")
	require.NoError(t, err)
	defer opened.Close()
	got, err := opened.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OBJS", got.Bucket)
	assert.Equal(t, "testing", got.Description)
	assert.Equal(t, int64(1<<20), got.MaxBytes)
	assert.Equal(t, 5, got.MaxConsumers)
	assert.Equal(t, jetstream.MemoryStorage, got.Storage)

	put(t, opened, "a", []byte("data"))
	status, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), status.Messages)
	assert.NotZero(t, status.Bytes)

	require.NoError(t, objstore.Delete(ctx, b, "OBJS"))
	_, err = s.Info(ctx, "a")
	assert.ErrorIs(t, err, objstore.ErrBucketNotFound)
	assert.ErrorIs(t, objstore.Delete(ctx, b, "OBJS"), objstore.ErrBucketNotFound)
}

func TestMaxConsumersDefault(t *testing.T) {
	_, b := newStore(t)
	info, err := b.StreamInfo(context.Background(), objstore.StreamName(testBucket), "")
	require.NoError(t, err)
	assert.Equal(t, 0, info.Config.MaxConsumers)
	assert.Equal(t, int64(-1), info.Config.MaxBytes)
}

func TestPutRecreatesMissingBucket(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()
	require.NoError(t, objstore.Delete(ctx, b, testBucket))

	put(t, s, "a", []byte("x"))
	ok, err := s.StoreExists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBucketFull(t *testing.T) {
	ctx := context.Background()
	b := membus.New()
	s, err := objstore.New(ctx, b, objstore.BucketConfig{Bucket: testBucket, MaxBytes: 1024})
	require.NoError(t, err)
	defer s.Close()

	err = s.Put(ctx, objstore.ObjectElement{Meta: objstore.ObjectMeta{Name: "big"}, Data: randomData(t, 4096)})
	assert.ErrorIs(t, err, membus.ErrMaxBytes)
	_, err = s.Info(ctx, "big")
	assert.ErrorIs(t, err, objstore.ErrObjectNotFound)
}

func TestCloseAndDeleteStore(t *testing.T) {
	s, b := newStore(t)
	ctx := context.Background()

	w, err := s.Watch(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("watcher not stopped by Close")
	}
	assert.ErrorIs(t, s.Put(ctx, objstore.ObjectElement{Meta: objstore.ObjectMeta{Name: "a"}, Data: []byte("x")}), objstore.ErrStoreClosed)
	_, err = s.Watch(ctx, "a")
	assert.ErrorIs(t, err, objstore.ErrStoreClosed)

	s2, err := objstore.Open(ctx, b, testBucket)
	require.NoError(t, err)
	require.NoError(t, s2.DeleteStore(ctx))
	ok, err := objstore.Exists(ctx, b, testBucket)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s2.Info(ctx, "a")
	assert.ErrorIs(t, err, objstore.ErrStoreClosed)
}

func TestList(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_, err := s.List(ctx)
	assert.ErrorIs(t, err, objstore.ErrNoObjectsFound)

	put(t, s, "c", []byte("c"))
	put(t, s, "a", []byte("a"))
	put(t, s, "b", []byte("b"))
	put(t, s, "a", []byte("a2"))
	require.NoError(t, s.Remove(ctx, "b"))

	objs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "a", objs[0].Name)
	assert.Equal(t, int64(2), objs[0].Size)
	assert.Equal(t, "c", objs[1].Name)

	objs, err = s.List(ctx, objstore.ListShowDeleted())
	require.NoError(t, err)
	require.Len(t, objs, 3)
	assert.True(t, objs[1].Deleted)
}

func TestURLSafeNames(t *testing.T) {
	s, b := newStore(t, objstore.URLSafeNames())
	ctx := context.Background()
	put(t, s, "??>", []byte("x"))

	_, err := b.GetLastMsg(ctx, objstore.StreamName(testBucket), "$O.testObjectStore.M.Pz8-")
	require.NoError(t, err)
	obj, err := s.Get(ctx, "??>", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "x", string(obj.Data))
}

func TestChunkSizeOption(t *testing.T) {
	s, b := newStore(t, objstore.WithChunkSize(4))
	put(t, s, "a", []byte("0123456789"))
	info, err := s.Info(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Chunks)
	assert.Equal(t, 3, b.Stored(objstore.ChunkWildcard(testBucket)))

	_, err = objstore.New(context.Background(), b, objstore.BucketConfig{Bucket: "x"}, objstore.WithChunkSize(0))
	assert.ErrorIs(t, err, objstore.ErrInvalidOption)
}
