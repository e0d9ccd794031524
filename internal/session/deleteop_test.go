package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HKUST-SING/singstorage-go/internal/errs"
	"github.com/HKUST-SING/singstorage-go/internal/wire"
)

func TestExecuteDeleteSuccess(t *testing.T) {
	d, server := newTestDispatcher(t, 64, 64)

	errCh := make(chan error, 1)
	go func() { errCh <- d.ExecuteDelete("/obj") }()

	hdr, msg := recvFrame(t, server)
	del, ok := msg.(*wire.DeleteMsg)
	require.True(t, ok)
	require.Equal(t, "/obj", del.Path)
	sendFrame(t, server, hdr.ID, &wire.StatusMsg{Status: wire.StatusSuccess})

	require.NoError(t, <-errCh)
}

func TestExecuteDeleteDenied(t *testing.T) {
	d, server := newTestDispatcher(t, 64, 64)

	errCh := make(chan error, 1)
	go func() { errCh <- d.ExecuteDelete("/locked") }()

	hdr, _ := recvFrame(t, server)
	sendFrame(t, server, hdr.ID, &wire.StatusMsg{Status: wire.StatusErrDeny})

	err := <-errCh
	require.Error(t, err)
	var denied *errs.PathDeniedError
	require.True(t, errors.As(err, &denied))
	require.Equal(t, "/locked", denied.Path)
}
