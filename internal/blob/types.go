// Package blob opens the blob store a registry location points at and
// re-exports the store abstraction for the registry backends.
package blob

import (
	"featurecore/internal/blob/core"
)

type (
	// Driver names a blob backend.
	Driver = core.Driver
	// PutOptions controls a single write.
	PutOptions = core.PutOptions
	// Info describes a stored blob.
	Info = core.Info
	// Store holds named byte blobs.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound           = core.ErrNotFound
	ErrPreconditionFailed = core.ErrPreconditionFailed
)
