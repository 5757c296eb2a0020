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
	"errors"
	"fmt"
)

type (
	// ErrorKind is the broad class of an object store failure.
	ErrorKind uint8

	// ErrorCode narrows an [ErrorKind] down to a store specific cause.
	// CodeNone means the error only carries a kind.
	ErrorCode uint16

	// Error is returned for every failure detected by the object store
	// itself. Failures reported by the bus (connection closed, permission
	// denied, ...) are returned unchanged and are not of this type.
	//
	// Errors match with [errors.Is] against the package sentinels: a
	// sentinel without a code (ErrNotFound) matches on kind alone, one with
	// a code (ErrObjectNotFound) matches kind and code. The underlying cause,
	// if any, is reachable through Unwrap.
	Error struct {
		Kind    ErrorKind
		Code    ErrorCode
		message string
		err     error
	}
)

const (
	KindUnknown ErrorKind = iota
	KindInvalidArgument
	KindNotFound
	KindTimeout
	KindOutOfMemory
	KindDecode
)

const (
	CodeNone ErrorCode = iota
	CodeNameRequired
	CodeDataRequired
	CodeInvalidTransferID
	CodeTransferIDInUse
	CodeInvalidStoreName
	CodeInvalidOption
	CodeStoreClosed
	CodeObjectNotFound
	CodeBucketNotFound
	CodeNoObjectsFound
	CodeChunkTimeout
	CodeObjectTooLarge
	CodeInvalidJSON
	CodeSizeMismatch
	CodeDigestMismatch
)

var (
	// ErrInvalidArgument matches every invalid argument error.
	ErrInvalidArgument error = &Error{Kind: KindInvalidArgument, message: "invalid argument"}

	// ErrNotFound matches every not found error.
	ErrNotFound error = &Error{Kind: KindNotFound, message: "not found"}

	// ErrTimeout matches every timeout error.
	ErrTimeout error = &Error{Kind: KindTimeout, message: "timeout"}

	// ErrOutOfMemory matches every reassembly allocation failure.
	ErrOutOfMemory error = &Error{Kind: KindOutOfMemory, message: "out of memory"}

	// ErrDecode matches every malformed payload error.
	ErrDecode error = &Error{Kind: KindDecode, message: "decode error"}

	// ErrNameRequired is returned when an object name is empty.
	ErrNameRequired error = &Error{Kind: KindInvalidArgument, Code: CodeNameRequired, message: "object name is required"}

	// ErrDataRequired is returned when putting an object without data.
	ErrDataRequired error = &Error{Kind: KindInvalidArgument, Code: CodeDataRequired, message: "object data is required"}

	// ErrInvalidTransferID is returned when a caller supplied transfer id
	// cannot be used as a subject token.
	ErrInvalidTransferID error = &Error{Kind: KindInvalidArgument, Code: CodeInvalidTransferID, message: "invalid transfer id"}

	// ErrTransferIDInUse is returned when chunks are already stored under a
	// caller supplied transfer id.
	ErrTransferIDInUse error = &Error{Kind: KindInvalidArgument, Code: CodeTransferIDInUse, message: "transfer id already in use"}

	// ErrInvalidStoreName is returned when a bucket name is not valid.
	ErrInvalidStoreName error = &Error{Kind: KindInvalidArgument, Code: CodeInvalidStoreName, message: "invalid object store name"}

	// ErrInvalidOption is returned for an invalid store, watch or list option.
	ErrInvalidOption error = &Error{Kind: KindInvalidArgument, Code: CodeInvalidOption, message: "invalid option"}

	// ErrStoreClosed is returned when using a store handle after Close.
	ErrStoreClosed error = &Error{Kind: KindInvalidArgument, Code: CodeStoreClosed, message: "object store handle closed"}

	// ErrObjectNotFound is returned when no record exists for a name.
	ErrObjectNotFound error = &Error{Kind: KindNotFound, Code: CodeObjectNotFound, message: "object not found"}

	// ErrBucketNotFound is returned when the backing stream does not exist.
	ErrBucketNotFound error = &Error{Kind: KindNotFound, Code: CodeBucketNotFound, message: "bucket not found"}

	// ErrNoObjectsFound is returned by List on an empty bucket.
	ErrNoObjectsFound error = &Error{Kind: KindNotFound, Code: CodeNoObjectsFound, message: "no objects found"}

	// ErrChunkTimeout is returned when a chunk did not arrive in time.
	ErrChunkTimeout error = &Error{Kind: KindTimeout, Code: CodeChunkTimeout, message: "timeout waiting for object chunk"}

	// ErrObjectTooLarge is returned when an object cannot be reassembled
	// within the configured memory limit.
	ErrObjectTooLarge error = &Error{Kind: KindOutOfMemory, Code: CodeObjectTooLarge, message: "object too large to reassemble"}

	// ErrBadObjectMeta is returned when a metadata record is malformed.
	ErrBadObjectMeta error = &Error{Kind: KindDecode, Code: CodeInvalidJSON, message: "object-store meta information invalid"}

	// ErrSizeMismatch is returned when reassembled data does not match the
	// recorded size.
	ErrSizeMismatch error = &Error{Kind: KindDecode, Code: CodeSizeMismatch, message: "object size does not match its meta information"}

	// ErrDigestMismatch is returned when reassembled data does not match
	// the recorded digest.
	ErrDigestMismatch error = &Error{Kind: KindDecode, Code: CodeDigestMismatch, message: "received a corrupt object, digests do not match"}
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindOutOfMemory:
		return "out_of_memory"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("objstore: %s: %v", e.message, e.err)
	}
	return fmt.Sprintf("objstore: %s", e.message)
}

// Unwrap returns the cause, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// Is matches on kind, and on code when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Kind == KindUnknown {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Code == CodeNone || e.Code == t.Code
}

// wrapErr returns a copy of sentinel carrying cause.
func wrapErr(sentinel, cause error) error {
	e, ok := sentinel.(*Error)
	if !ok {
		return fmt.Errorf("%w: %w", sentinel, cause)
	}
	c := *e
	c.err = cause
	return &c
}

// withDetail returns a copy of sentinel with detail appended to its message.
func withDetail(sentinel error, format string, args ...any) error {
	e, ok := sentinel.(*Error)
	if !ok {
		return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
	}
	c := *e
	c.message = e.message + ": " + fmt.Sprintf(format, args...)
	return &c
}

// KindOf reports the kind of err, or KindUnknown for errors that did not
// originate in the object store (bus and transport failures).
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf reports the store specific code of err, or CodeNone.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeNone
}
