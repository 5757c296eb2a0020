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

package objstore

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"hash"
	"time"
)

type (
	// ObjectMeta is the metadata record published for every put and remove.
	//
	// ModTime is not part of the record. It is filled from the bus
	// timestamp of the record when reading.
	ObjectMeta struct {
		Bucket     string `json:"bucket"`
		Name       string `json:"name"`
		TransferID string `json:"nuid"`
		Size       int64  `json:"size"`
		Chunks     int64  `json:"chunks"`
		Deleted    bool   `json:"deleted"`
		// Digest is the SHA-256 of the data, when known.
		Digest  string    `json:"digest,omitempty"`
		ModTime time.Time `json:"-"`
	}

	// ObjectElement is an object: its metadata and its data.
	ObjectElement struct {
		Meta ObjectMeta
		Data []byte
	}
)

const digestPrefix = "SHA-256="

func encodeMeta(m ObjectMeta) ([]byte, error) {
	return json.Marshal(m)
}

// decodeMeta parses a metadata record. The record must be a JSON object
// carrying at least a name; missing keys other than the name take their
// zero value so that records written by other clients (which omit false
// and empty fields) are accepted.
func decodeMeta(data []byte) (ObjectMeta, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return ObjectMeta{}, wrapErr(ErrBadObjectMeta, err)
	}
	if keys == nil {
		return ObjectMeta{}, withDetail(ErrBadObjectMeta, "not an object")
	}
	if _, ok := keys["name"]; !ok {
		return ObjectMeta{}, withDetail(ErrBadObjectMeta, "missing name")
	}

	var m ObjectMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return ObjectMeta{}, wrapErr(ErrBadObjectMeta, err)
	}
	if m.Size < 0 || m.Chunks < 0 {
		return ObjectMeta{}, withDetail(ErrBadObjectMeta, "negative size or chunk count")
	}
	if m.Size > 0 && m.Chunks == 0 && !m.Deleted {
		return ObjectMeta{}, withDetail(ErrBadObjectMeta, "size %d without chunks", m.Size)
	}
	return m, nil
}

func newDigest() hash.Hash {
	return sha256.New()
}

func formatDigest(h hash.Hash) string {
	return digestPrefix + base64.URLEncoding.EncodeToString(h.Sum(nil))
}

// verifyDigest checks data against the recorded digest. Records without a
// digest are accepted as is.
func verifyDigest(m ObjectMeta, data []byte) error {
	if m.Digest == "" {
		return nil
	}
	h := newDigest()
	h.Write(data)
	if got := formatDigest(h); got != m.Digest {
		return withDetail(ErrDigestMismatch, "%s != %s", got, m.Digest)
	}
	return nil
}
