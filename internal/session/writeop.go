package session

import (
	"github.com/HKUST-SING/singstorage-go/internal/errs"
	"github.com/HKUST-SING/singstorage-go/internal/wire"
)

// ExecuteWrite runs the full write protocol for one object against an
// admitted write window, per §4.5: an admission phase, a streaming
// chunk phase bounded by the ring's free space, and an acknowledgement
// phase that reclaims ring bytes strictly in chunk-sequence order
// regardless of the order acknowledgements arrive in.
func (d *Dispatcher) ExecuteWrite(path string, data []byte) error {
	if err := d.acquire(path, windowWrite); err != nil {
		return err
	}
	defer d.release(path, windowWrite)

	primary := d.nextID()
	defer d.releaseID(primary)

	if err := d.conn.Send(uint32(primary), &wire.WriteMsg{
		Path:       path,
		PropBitmap: 1,
		MemAddr:    0,
		DataLength: uint64(len(data)),
	}); err != nil {
		return &errs.InternalError{Op: "write", Kind: errs.IntIPC, Inner: err}
	}

	reply, hdr, err := d.conn.RecvAny(wire.TypeRead)
	if err != nil {
		return &errs.InternalError{Op: "write", Kind: errs.IntIPC, Inner: err}
	}
	if status, ok := reply.(*wire.StatusMsg); ok {
		return errs.FromAdmissionStatus("write", path, status.Status, uint64(len(data)))
	}
	if _, ok := reply.(*wire.ReadMsg); !ok || TxID(hdr.ID) != primary {
		return &errs.InternalError{Op: "write", Kind: errs.IntProtocol}
	}

	inProgress := &writeInProgressSet{}
	var seq uint64
	offset := 0

	for offset < len(data) {
		for d.writeWindow.WritableTotal() == 0 {
			if err := d.awaitAck(inProgress); err != nil {
				return err
			}
		}

		addr := d.writeWindow.WriteAddr()
		n := d.writeWindow.Write(data[offset:])
		if n == 0 {
			if err := d.awaitAck(inProgress); err != nil {
				return err
			}
			continue
		}

		tid := d.nextID()
		seq++
		inProgress.insert(&writeInProgress{seq: seq, id: tid, n: uint32(n)})

		if err := d.conn.Send(uint32(tid), &wire.WriteMsg{
			Path:       path,
			PropBitmap: 0,
			MemAddr:    addr,
			DataLength: n,
		}); err != nil {
			return &errs.InternalError{Op: "write", Kind: errs.IntIPC, Inner: err}
		}

		offset += int(n)
	}

	for !inProgress.empty() {
		if err := d.awaitAck(inProgress); err != nil {
			return err
		}
	}

	return nil
}

// awaitAck blocks for the next control-channel message and processes it
// as a write-Phase-C acknowledgement. READ and RELEASE are accepted
// identically for flow control (spec resolution of the source's
// inconsistent acknowledgement type). A STATUS received here aborts the
// write with Internal(Unknown).
func (d *Dispatcher) awaitAck(inProgress *writeInProgressSet) error {
	reply, hdr, err := d.conn.RecvAny(wire.TypeRead, wire.TypeRelease)
	if err != nil {
		return &errs.InternalError{Op: "write", Kind: errs.IntIPC, Inner: err}
	}

	var tid TxID
	switch m := reply.(type) {
	case *wire.StatusMsg:
		return &errs.InternalError{Op: "write", Kind: errs.IntUnknown}
	case *wire.ReadMsg:
		tid = TxID(hdr.ID)
	case *wire.ReleaseMsg:
		tid = TxID(m.MergeID)
	default:
		return &errs.InternalError{Op: "write", Kind: errs.IntProtocol}
	}

	record := inProgress.find(tid)
	if record == nil {
		return nil
	}
	d.releaseID(tid)

	if inProgress.isHead(record) {
		inProgress.popHead()
		if err := d.writeWindow.Release(record.n); err != nil {
			return &errs.InternalError{Op: "write", Kind: errs.IntWrite, Inner: err}
		}
		for _, popped := range inProgress.popCompletedPrefix() {
			if err := d.writeWindow.Release(popped.n); err != nil {
				return &errs.InternalError{Op: "write", Kind: errs.IntWrite, Inner: err}
			}
		}
	} else {
		record.completed = true
	}
	return nil
}
