package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/HKUST-SING/singstorage-go/internal/constants"
)

// ErrShortBuffer is returned by Decode when the supplied buffer is too
// small to hold the header or the body the header declares.
type ErrShortBuffer struct {
	Need int
	Have int
}

func (e *ErrShortBuffer) Error() string {
	return fmt.Sprintf("wire: short buffer: need %d bytes, have %d", e.Need, e.Have)
}

// ErrUnknownType is returned by Decode when the header names a type
// this codec does not recognize.
type ErrUnknownType struct {
	Type Type
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("wire: unknown message type %d", e.Type)
}

// Encode serializes msg (with the given transaction id) into a single
// 9-byte-header-prefixed buffer. Encode is a total function: every
// Message implementation in this package encodes without error.
func Encode(id uint32, msg Message) []byte {
	body := encodeBody(msg)
	buf := make([]byte, HeaderSize+len(body))
	buf[0] = byte(msg.MsgType())
	binary.LittleEndian.PutUint32(buf[1:5], id)
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(buf)))
	copy(buf[HeaderSize:], body)
	return buf
}

// DecodeHeader parses the fixed 9-byte header prefix of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, &ErrShortBuffer{Need: HeaderSize, Have: len(buf)}
	}
	return Header{
		Type:   Type(buf[0]),
		ID:     binary.LittleEndian.Uint32(buf[1:5]),
		Length: binary.LittleEndian.Uint32(buf[5:9]),
	}, nil
}

// Decode parses a full message (header already known) from its body
// bytes (buf must NOT include the 9-byte header).
func Decode(t Type, body []byte) (Message, error) {
	switch t {
	case TypeStatus:
		return decodeStatus(body)
	case TypeAuth:
		return decodeAuth(body)
	case TypeRead:
		return decodeRead(body)
	case TypeWrite:
		return decodeWrite(body)
	case TypeConReply:
		return decodeConReply(body)
	case TypeClose:
		return &CloseMsg{}, nil
	case TypeDelete:
		return decodeDelete(body)
	case TypeRelease:
		return decodeRelease(body)
	default:
		return nil, &ErrUnknownType{Type: t}
	}
}

func encodeBody(msg Message) []byte {
	switch m := msg.(type) {
	case *StatusMsg:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(m.Status))
		return buf

	case *AuthMsg:
		buf := make([]byte, 2+len(m.Name)+constants.HashLength)
		binary.LittleEndian.PutUint16(buf[0:2], uint16(len(m.Name)))
		copy(buf[2:2+len(m.Name)], m.Name)
		copy(buf[2+len(m.Name):], m.Digest[:])
		return buf

	case *ReadMsg:
		buf := make([]byte, 2+len(m.Path)+4)
		binary.LittleEndian.PutUint16(buf[0:2], uint16(len(m.Path)))
		copy(buf[2:2+len(m.Path)], m.Path)
		binary.LittleEndian.PutUint32(buf[2+len(m.Path):], m.PropBitmap)
		return buf

	case *WriteMsg:
		off := 2 + len(m.Path)
		buf := make([]byte, off+4+8+8)
		binary.LittleEndian.PutUint16(buf[0:2], uint16(len(m.Path)))
		copy(buf[2:off], m.Path)
		binary.LittleEndian.PutUint32(buf[off:off+4], m.PropBitmap)
		binary.LittleEndian.PutUint64(buf[off+4:off+12], m.MemAddr)
		binary.LittleEndian.PutUint64(buf[off+12:off+20], m.DataLength)
		return buf

	case *ConReplyMsg:
		buf := make([]byte, 8+4+8+4+32+32)
		binary.LittleEndian.PutUint64(buf[0:8], m.WriteAddr)
		binary.LittleEndian.PutUint32(buf[8:12], m.WriteSize)
		binary.LittleEndian.PutUint64(buf[12:20], m.ReadAddr)
		binary.LittleEndian.PutUint32(buf[20:24], m.ReadSize)
		copy(buf[24:56], m.WriteName[:])
		copy(buf[56:88], m.ReadName[:])
		return buf

	case *CloseMsg:
		return nil

	case *DeleteMsg:
		buf := make([]byte, 2+len(m.Path))
		binary.LittleEndian.PutUint16(buf[0:2], uint16(len(m.Path)))
		copy(buf[2:], m.Path)
		return buf

	case *ReleaseMsg:
		off := 2 + len(m.Path)
		buf := make([]byte, off+4)
		binary.LittleEndian.PutUint16(buf[0:2], uint16(len(m.Path)))
		copy(buf[2:off], m.Path)
		binary.LittleEndian.PutUint32(buf[off:off+4], m.MergeID)
		return buf

	default:
		panic(fmt.Sprintf("wire: unencodable message type %T", msg))
	}
}

func decodeStatus(body []byte) (*StatusMsg, error) {
	if len(body) < 2 {
		return nil, &ErrShortBuffer{Need: 2, Have: len(body)}
	}
	return &StatusMsg{Status: Status(binary.LittleEndian.Uint16(body[0:2]))}, nil
}

func decodeAuth(body []byte) (*AuthMsg, error) {
	if len(body) < 2 {
		return nil, &ErrShortBuffer{Need: 2, Have: len(body)}
	}
	nameLen := int(binary.LittleEndian.Uint16(body[0:2]))
	need := 2 + nameLen + constants.HashLength
	if len(body) < need {
		return nil, &ErrShortBuffer{Need: need, Have: len(body)}
	}
	m := &AuthMsg{Name: string(body[2 : 2+nameLen])}
	copy(m.Digest[:], body[2+nameLen:need])
	return m, nil
}

func decodeRead(body []byte) (*ReadMsg, error) {
	if len(body) < 2 {
		return nil, &ErrShortBuffer{Need: 2, Have: len(body)}
	}
	pathLen := int(binary.LittleEndian.Uint16(body[0:2]))
	need := 2 + pathLen + 4
	if len(body) < need {
		return nil, &ErrShortBuffer{Need: need, Have: len(body)}
	}
	return &ReadMsg{
		Path:       string(body[2 : 2+pathLen]),
		PropBitmap: binary.LittleEndian.Uint32(body[2+pathLen : need]),
	}, nil
}

func decodeWrite(body []byte) (*WriteMsg, error) {
	if len(body) < 2 {
		return nil, &ErrShortBuffer{Need: 2, Have: len(body)}
	}
	pathLen := int(binary.LittleEndian.Uint16(body[0:2]))
	off := 2 + pathLen
	need := off + 4 + 8 + 8
	if len(body) < need {
		return nil, &ErrShortBuffer{Need: need, Have: len(body)}
	}
	return &WriteMsg{
		Path:       string(body[2:off]),
		PropBitmap: binary.LittleEndian.Uint32(body[off : off+4]),
		MemAddr:    binary.LittleEndian.Uint64(body[off+4 : off+12]),
		DataLength: binary.LittleEndian.Uint64(body[off+12 : off+20]),
	}, nil
}

func decodeConReply(body []byte) (*ConReplyMsg, error) {
	const need = 8 + 4 + 8 + 4 + 32 + 32
	if len(body) < need {
		return nil, &ErrShortBuffer{Need: need, Have: len(body)}
	}
	m := &ConReplyMsg{
		WriteAddr: binary.LittleEndian.Uint64(body[0:8]),
		WriteSize: binary.LittleEndian.Uint32(body[8:12]),
		ReadAddr:  binary.LittleEndian.Uint64(body[12:20]),
		ReadSize:  binary.LittleEndian.Uint32(body[20:24]),
	}
	copy(m.WriteName[:], body[24:56])
	copy(m.ReadName[:], body[56:88])
	return m, nil
}

func decodeDelete(body []byte) (*DeleteMsg, error) {
	if len(body) < 2 {
		return nil, &ErrShortBuffer{Need: 2, Have: len(body)}
	}
	pathLen := int(binary.LittleEndian.Uint16(body[0:2]))
	if len(body) < 2+pathLen {
		return nil, &ErrShortBuffer{Need: 2 + pathLen, Have: len(body)}
	}
	return &DeleteMsg{Path: string(body[2 : 2+pathLen])}, nil
}

func decodeRelease(body []byte) (*ReleaseMsg, error) {
	if len(body) < 2 {
		return nil, &ErrShortBuffer{Need: 2, Have: len(body)}
	}
	pathLen := int(binary.LittleEndian.Uint16(body[0:2]))
	off := 2 + pathLen
	need := off + 4
	if len(body) < need {
		return nil, &ErrShortBuffer{Need: need, Have: len(body)}
	}
	return &ReleaseMsg{
		Path:    string(body[2:off]),
		MergeID: binary.LittleEndian.Uint32(body[off:need]),
	}, nil
}
