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

/*
Package objstore implements a named blob store on top of a NATS JetStream
stream.

Each bucket is backed by one stream, OBJ_<bucket>, with two subject spaces:

	$O.<bucket>.C.<transfer-id>   chunks of one write
	$O.<bucket>.M.<name-base64>   metadata records of one object

A put publishes the object data in fixed size chunks on a fresh chunk
subject and then publishes a JSON metadata record on the object's metadata
subject. The last record on that subject is the current version of the
object. Removing an object purges its chunks and publishes a tombstone
record.

# Using the store

	nc, err := nats.Connect(nats.DefaultURL)
	if err != nil {
		// handle error
	}
	defer nc.Close()

	b, err := bus.NewJetStream(nc)
	if err != nil {
		// handle error
	}

	store, err := objstore.New(ctx, b, objstore.BucketConfig{Bucket: "configs"})
	if err != nil {
		// handle error
	}
	defer store.Close()

	err = store.Put(ctx, objstore.ObjectElement{
		Meta: objstore.ObjectMeta{Name: "app.yaml"},
		Data: data,
	})

	obj, err := store.Get(ctx, "app.yaml", time.Second)

# Watching an object

A [Watcher] delivers every metadata record of one object to the listeners
registered on it, in the order the records were stored:

	w, err := store.Watch(ctx, "app.yaml")
	if err != nil {
		// handle error
	}
	defer w.Stop()

	w.OnUpdated(func(meta objstore.ObjectMeta) {
		fmt.Printf("%s changed, %d bytes\n", meta.Name, meta.Size)
	})
	w.OnRemoved(func(meta objstore.ObjectMeta) {
		fmt.Printf("%s removed\n", meta.Name)
	})

# Errors

Failures detected by the store are of type [*Error] and can be matched on
their kind ([ErrNotFound], [ErrTimeout], ...) or on a specific cause
([ErrObjectNotFound], [ErrChunkTimeout], ...) with [errors.Is]. Bus
failures are returned as reported by the bus.
*/
package objstore
