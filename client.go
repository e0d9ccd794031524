// Package singstorage is the client-side core of singstorage: a
// library for reading, writing, and deleting named objects in a
// remote object store by cooperating with a co-located local service,
// singd, over a UNIX domain control socket and two POSIX shared-memory
// windows.
package singstorage

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/HKUST-SING/singstorage-go/internal/constants"
	"github.com/HKUST-SING/singstorage-go/internal/errs"
	"github.com/HKUST-SING/singstorage-go/internal/session"
)

// Client is a live connection to singd: an authenticated credential, a
// storage-properties table, and the underlying session. Client is not
// safe for concurrent use of SetProperty alongside Write/Read/Delete,
// though the underlying session dispatcher does serialize concurrent
// Write/Read/Delete calls against each other per spec.md §5.
type Client struct {
	sess       *session.Session
	properties *StorageProperties
	metrics    *Metrics
}

var (
	defaultClientMu sync.Mutex
	defaultClient   *Client
)

// Connect opens a new session against singd's well-known control
// socket, authenticating with user and a digest derived from password.
// Connect is not safe to call again while a previous Connect's Client
// is still open in the same process (the reference implementation's
// module-level session singleton) — a second call returns
// *errors.AuthError.
func Connect(ctx context.Context, user, password string) (*Client, error) {
	defaultClientMu.Lock()
	if defaultClient != nil {
		defaultClientMu.Unlock()
		return nil, &errs.AuthError{Op: "connect", Message: "a session is already connected"}
	}
	defaultClientMu.Unlock()

	c, err := connect(ctx, user, password)
	if err != nil {
		return nil, err
	}

	defaultClientMu.Lock()
	defaultClient = c
	defaultClientMu.Unlock()
	return c, nil
}

func connect(ctx context.Context, user, password string) (*Client, error) {
	sess, err := session.Connect(ctx, constants.SocketPath, user, digestOf(password))
	if err != nil {
		return nil, err
	}
	return &Client{sess: sess, properties: NewStorageProperties(), metrics: NewMetrics()}, nil
}

// digestOf derives the 32-byte credential digest Connect sends in its
// AUTH message. The real hashing routine (spec.md explicitly places
// password hashing out of scope, as an external collaborator) is not
// part of this module; this is a placeholder scheme good enough to
// exercise the wire protocol end to end.
func digestOf(password string) [32]byte {
	return sha256.Sum256([]byte(password))
}

// Write runs the write protocol for path, blocking until the full
// object has been admitted and acknowledged.
func (c *Client) Write(ctx context.Context, path string, data []byte) error {
	start := time.Now()
	err := c.sess.Write(path, data)
	c.metrics.RecordWrite(uint64(len(data)), uint64(time.Since(start).Nanoseconds()), err == nil)
	return err
}

// Read runs the read operation's initiation phase and returns the lazy
// chunk stream the caller pulls from via Next.
func (c *Client) Read(ctx context.Context, path string) (*session.ReadStream, error) {
	start := time.Now()
	stream, err := c.sess.Read(path)
	c.metrics.RecordRead(0, uint64(time.Since(start).Nanoseconds()), err == nil)
	return stream, err
}

// Delete runs the delete protocol for path.
func (c *Client) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := c.sess.Delete(path)
	c.metrics.RecordDelete(uint64(time.Since(start).Nanoseconds()), err == nil)
	return err
}

// SetProperty sets a storage property, returning *errors.PropertyError
// for an unknown key or a value outside that key's schema.
func (c *Client) SetProperty(key, value string) error {
	return c.properties.Set(key, value)
}

// Metrics returns this client's operation counters and latency
// histogram.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// Close tears down the session and, if this Client was returned by the
// package-level Connect, clears the singleton so Connect can be called
// again.
func (c *Client) Close() {
	c.sess.Close()

	defaultClientMu.Lock()
	if defaultClient == c {
		defaultClient = nil
	}
	defaultClientMu.Unlock()
}
