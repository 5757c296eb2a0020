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
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

const (
	objNameTmpl         = "OBJ_%s"     // OBJ_<bucket> // stream name
	objAllChunksPreTmpl = "$O.%s.C.>"  // $O.<bucket>.C.> // chunk stream subject
	objAllMetaPreTmpl   = "$O.%s.M.>"  // $O.<bucket>.M.> // meta stream subject
	objChunksPreTmpl    = "$O.%s.C.%s" // $O.<bucket>.C.<transfer-id> // chunk message subject
	objMetaPreTmpl      = "$O.%s.M.%s" // $O.<bucket>.M.<name-encoded> // meta message subject
	objChunksPrefixTmpl = "$O.%s.C."   // chunk subject without the transfer id
)

var (
	validBucketRe   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	validTransferRe = regexp.MustCompile(`^[^.*>\s]+$`)
)

// ValidBucket reports whether name can be used as a bucket name.
func ValidBucket(name string) bool {
	return validBucketRe.MatchString(name)
}

func validTransferID(id string) bool {
	return validTransferRe.MatchString(id)
}

// StreamName returns the name of the stream backing bucket.
func StreamName(bucket string) string {
	return fmt.Sprintf(objNameTmpl, bucket)
}

// ChunkWildcard returns the subject matching every chunk of bucket.
func ChunkWildcard(bucket string) string {
	return fmt.Sprintf(objAllChunksPreTmpl, bucket)
}

// MetaWildcard returns the subject matching every metadata record of bucket.
func MetaWildcard(bucket string) string {
	return fmt.Sprintf(objAllMetaPreTmpl, bucket)
}

// ChunkSubject returns the subject carrying the chunks of one transfer.
func ChunkSubject(bucket, transferID string) string {
	return fmt.Sprintf(objChunksPreTmpl, bucket, transferID)
}

// MetaSubject returns the metadata subject of name, with the name encoded
// in standard base64.
func MetaSubject(bucket, name string) string {
	return fmt.Sprintf(objMetaPreTmpl, bucket, base64.StdEncoding.EncodeToString([]byte(name)))
}

// subjects builds the subjects of a single bucket with the name encoding
// selected for the store.
type subjects struct {
	bucket string
	enc    *base64.Encoding
}

func newSubjects(bucket string, enc *base64.Encoding) subjects {
	if enc == nil {
		enc = base64.StdEncoding
	}
	return subjects{bucket: bucket, enc: enc}
}

func (s subjects) stream() string {
	return StreamName(s.bucket)
}

func (s subjects) chunks(transferID string) string {
	return ChunkSubject(s.bucket, transferID)
}

func (s subjects) meta(name string) string {
	return fmt.Sprintf(objMetaPreTmpl, s.bucket, s.enc.EncodeToString([]byte(name)))
}

// transferID extracts the transfer id from a chunk subject of this bucket.
func (s subjects) transferID(chunkSubject string) (string, bool) {
	id, ok := strings.CutPrefix(chunkSubject, fmt.Sprintf(objChunksPrefixTmpl, s.bucket))
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
