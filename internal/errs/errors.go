// Package errs holds the typed error taxonomy shared by the session
// protocol state machines and the public singstorage façade, so both
// can construct and match the same error values without an import
// cycle between them.
package errs

import (
	"fmt"

	"github.com/HKUST-SING/singstorage-go/internal/wire"
)

// InternalErrorKind classifies an InternalError by the subsystem that
// raised it.
type InternalErrorKind string

const (
	IntMemory        InternalErrorKind = "memory"
	IntIPC           InternalErrorKind = "ipc"
	IntRead          InternalErrorKind = "read"
	IntWrite         InternalErrorKind = "write"
	IntDataCorrupted InternalErrorKind = "data_corruption"
	IntProtocol      InternalErrorKind = "protocol"
	IntUnknown       InternalErrorKind = "unknown"
)

// PathNotFoundError reports that a path has no corresponding object.
type PathNotFoundError struct {
	Op   string
	Path string
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("singstorage: %s %q: path not found", e.Op, e.Path)
}

// PathDeniedError reports that the caller's credentials do not permit
// the requested operation on a path.
type PathDeniedError struct {
	Op   string
	Path string
}

func (e *PathDeniedError) Error() string {
	return fmt.Sprintf("singstorage: %s %q: permission denied", e.Op, e.Path)
}

// QuotaError reports that the caller's storage quota was exceeded.
type QuotaError struct {
	Op        string
	Path      string
	Attempted uint64
	Allowed   uint64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("singstorage: %s %q: quota exceeded (attempted=%d, allowed=%d)", e.Op, e.Path, e.Attempted, e.Allowed)
}

// ProtocolError reports a control-channel protocol violation: an
// unexpected message type, a malformed body, or an out-of-sequence
// acknowledgement.
type ProtocolError struct {
	Op      string
	Status  wire.Status
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("singstorage: %s: protocol error: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("singstorage: %s: protocol error (status=%d)", e.Op, e.Status)
}

// AuthError reports that the local service rejected a credential
// during Connect, or that a reentrant Connect was attempted.
type AuthError struct {
	Op      string
	Status  wire.Status
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("singstorage: %s: %s", e.Op, e.Message)
	}
	switch e.Status {
	case wire.StatusErrAuthUser:
		return fmt.Sprintf("singstorage: %s: unknown user", e.Op)
	case wire.StatusErrAuthPass:
		return fmt.Sprintf("singstorage: %s: bad password", e.Op)
	default:
		return fmt.Sprintf("singstorage: %s: authentication failed", e.Op)
	}
}

// PropertyError reports an unknown storage-property key or a value
// outside the property's schema.
type PropertyError struct {
	Op    string
	Key   string
	Value string
}

func (e *PropertyError) Error() string {
	return fmt.Sprintf("singstorage: %s: invalid property %q=%q", e.Op, e.Key, e.Value)
}

// DataError reports that the service rejected a write's payload
// (too large, too small, or malformed content).
type DataError struct {
	Op      string
	Path    string
	Status  wire.Status
	Message string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("singstorage: %s %q: %s", e.Op, e.Path, e.Message)
}

// InternalError reports a failure internal to this client: a memory
// mapping failure, an IPC transport failure, a short read/write against
// a shared-memory window, data corruption, or a protocol state this
// client itself could not maintain.
type InternalError struct {
	Op    string
	Kind  InternalErrorKind
	Inner error
}

func (e *InternalError) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("singstorage: %s: internal error (%s): %v", e.Op, e.Kind, e.Inner)
	}
	return fmt.Sprintf("singstorage: %s: internal error (%s)", e.Op, e.Kind)
}

func (e *InternalError) Unwrap() error {
	return e.Inner
}

func (e *InternalError) Is(target error) bool {
	te, ok := target.(*InternalError)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

// FromAdmissionStatus maps the status returned during write-Phase-A or
// delete admission to its typed error: SUCCESS is nil,
// ERR_PATH/ERR_DENY/ERR_QUOTA/ERR_PROT map to their dedicated types,
// ERR_AUTH_USER/ERR_AUTH_PASS map to AuthError, and everything else is
// Internal(Unknown). Read initiation does its own mapping in the session
// package.
func FromAdmissionStatus(op, path string, status wire.Status, size uint64) error {
	switch status {
	case wire.StatusSuccess:
		return nil
	case wire.StatusErrPath:
		return &PathNotFoundError{Op: op, Path: path}
	case wire.StatusErrDeny:
		return &PathDeniedError{Op: op, Path: path}
	case wire.StatusErrQuota:
		return &QuotaError{Op: op, Path: path, Attempted: size, Allowed: 0}
	case wire.StatusErrProt:
		return &ProtocolError{Op: op, Status: status, Message: path}
	case wire.StatusErrAuthUser, wire.StatusErrAuthPass:
		return &AuthError{Op: op, Status: status}
	default:
		return &InternalError{Op: op, Kind: IntUnknown}
	}
}
