// Package singstorage provides the client-side core of singstorage: a
// library for reading, writing, and deleting named objects in a remote
// object store by cooperating with a co-located local service (singd)
// over a UNIX domain control socket and two POSIX shared-memory windows.
package singstorage

import "github.com/HKUST-SING/singstorage-go/internal/errs"

// The typed error taxonomy is defined in internal/errs so that both this
// package and internal/session can construct and compare the same
// values without a session -> singstorage import cycle. These aliases
// are the public names callers match against with errors.As.
type (
	PathNotFoundError = errs.PathNotFoundError
	PathDeniedError   = errs.PathDeniedError
	QuotaError        = errs.QuotaError
	ProtocolError     = errs.ProtocolError
	AuthError         = errs.AuthError
	PropertyError     = errs.PropertyError
	DataError         = errs.DataError
	InternalError     = errs.InternalError
	InternalErrorKind = errs.InternalErrorKind
)

const (
	IntMemory        = errs.IntMemory
	IntIPC           = errs.IntIPC
	IntRead          = errs.IntRead
	IntWrite         = errs.IntWrite
	IntDataCorrupted = errs.IntDataCorrupted
	IntProtocol      = errs.IntProtocol
	IntUnknown       = errs.IntUnknown
)
