// Package core defines the blob storage abstraction the file registry is
// persisted through.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver names a blob backend.
type Driver string

const (
	// DriverFilesystem keeps blobs as files below a directory.
	DriverFilesystem Driver = "fs"
	// DriverS3 keeps blobs in an S3 or MinIO bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps blobs in process memory.
	DriverMemory Driver = "memory"
)

// PutOptions controls a single write.
//
// IfMatch and IfAbsent make the write conditional: IfMatch requires the
// stored object to carry that ETag, IfAbsent requires that no object exists.
// A failed condition returns ErrPreconditionFailed and leaves the stored
// object untouched.
type PutOptions struct {
	ContentType string
	IfMatch     string
	IfAbsent    bool
}

// Conditional reports whether the write carries a precondition.
func (o PutOptions) Conditional() bool { return o.IfMatch != "" || o.IfAbsent }

// Check evaluates the precondition against the current ETag of the key;
// exists is false when nothing is stored.
func (o PutOptions) Check(etag string, exists bool) error {
	switch {
	case o.IfAbsent && exists:
		return ErrPreconditionFailed
	case o.IfMatch != "" && (!exists || etag != o.IfMatch):
		return ErrPreconditionFailed
	}
	return nil
}

// Info describes a stored blob.
type Info struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// Store holds named byte blobs. Put replaces an object atomically: readers
// observe either the old or the new content.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Driver() Driver
}

var (
	// ErrNotFound is returned by Get and Head when the key does not exist.
	ErrNotFound = errors.New("blobstore: not found")
	// ErrPreconditionFailed is returned by a conditional Put whose condition
	// does not hold.
	ErrPreconditionFailed = errors.New("blobstore: precondition failed")
)
