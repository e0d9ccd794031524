package session

import (
	"github.com/HKUST-SING/singstorage-go/internal/errs"
	"github.com/HKUST-SING/singstorage-go/internal/wire"
)

// ExecuteDelete runs the delete protocol (§4.7): a single DELETE
// request with a fresh transaction id, awaiting a STATUS reply with the
// same id, mapped exactly as write-Phase-A admission.
func (d *Dispatcher) ExecuteDelete(path string) error {
	if err := d.acquire(path, windowNone); err != nil {
		return err
	}
	defer d.release(path, windowNone)

	tid := d.nextID()
	defer d.releaseID(tid)

	if err := d.conn.Send(uint32(tid), &wire.DeleteMsg{Path: path}); err != nil {
		return &errs.InternalError{Op: "delete", Kind: errs.IntIPC, Inner: err}
	}

	reply, hdr, err := d.conn.Recv(wire.TypeStatus)
	if err != nil {
		return &errs.InternalError{Op: "delete", Kind: errs.IntIPC, Inner: err}
	}
	status, ok := reply.(*wire.StatusMsg)
	if !ok || TxID(hdr.ID) != tid {
		return &errs.InternalError{Op: "delete", Kind: errs.IntProtocol}
	}

	return errs.FromAdmissionStatus("delete", path, status.Status, 0)
}
