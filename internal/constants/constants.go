// Package constants holds the fixed parameters of the singstorage wire
// protocol and client defaults shared across internal packages.
package constants

import "time"

// SocketPath is the well-known UNIX domain socket the local singd
// service listens on.
const SocketPath = "/tmp/sing_ipc_socket"

// Connect-retry parameters (spec.md S4.2): a connection-refused dial is
// retried up to DialMaxRetries additional times, DialRetryDelay apart.
const (
	DialMaxRetries = 3
	DialRetryDelay = 1 * time.Second
)

// HashLength is the size in bytes of the password digest carried in an
// AUTH message.
const HashLength = 32

// NameFieldLength is the size in bytes of the shared-memory object
// names reported in CON_REPLY.
const NameFieldLength = 32

// MaxOpSize is a per-chunk byte bound for read chunks, mirroring the
// Python source's "10 pages" sizing. READ requests carry no size field,
// so the client never sends it; FakeService caps the chunks it serves
// at this size.
const MaxOpSize = 10 * 4096

// MaxPendingOps documents the original implementation's concurrency
// intent. This implementation (like the source it was distilled from)
// only ever admits one read and one write at a time; pending operations
// beyond that queue regardless of this bound.
const MaxPendingOps = 3
