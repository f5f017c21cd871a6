// Package blob is the only entry point to artifact storage. Callers depend on
// Store; the infra backends stay behind this package.
package blob

import (
	"equiploan/internal/blob/core"
)

type (
	// Driver identifies an artifact storage backend.
	Driver = core.Driver
	// PutOptions configures a write.
	PutOptions = core.PutOptions
	// Info describes stored object metadata.
	Info = core.Info
	// Store is the artifact storage contract.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
	ErrUnsupported = core.ErrUnsupported
	ErrInvalidKey  = core.ErrInvalidKey
)
