// Package wire implements the framed transport and wire protocol: a
// fixed-size packet record exchanged over a connected stream socket, with
// version checking and a state-flag bitmask that doubles as the
// request/reply discriminator.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/GSI-HPC/fsqd/internal/fsqerr"
)

// ProtocolVersion is the single supported wire version.
const ProtocolVersion uint8 = 1

// State is the bitmask carried in every packet; it both names the operation
// and, with ReplyBit set, marks a packet as an answer.
type State uint16

// State-flag bits, OR-able.
const (
	Connect    State = 0x01
	Open       State = 0x02
	Data       State = 0x04
	Close      State = 0x08
	Disconnect State = 0x10
	ReplyBit   State = 0x20
	ErrorBit   State = 0x40
)

func (s State) String() string {
	var names []string
	for _, b := range []struct {
		bit  State
		name string
	}{
		{Connect, "CONNECT"}, {Open, "OPEN"}, {Data, "DATA"}, {Close, "CLOSE"},
		{Disconnect, "DISCONNECT"}, {ReplyBit, "REPLY"}, {ErrorBit, "ERROR"},
	} {
		if s&b.bit != 0 {
			names = append(names, b.name)
		}
	}
	if names == nil {
		return "NONE"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += "|" + n
	}
	return out
}

// Has reports whether any of mask's bits are set in s — the "intersection"
// test recv uses to validate an incoming packet's state against what the
// caller is willing to accept.
func (s State) Has(mask State) bool { return s&mask != 0 }

// Fixed field-size ceilings. These bound the wire record so the packet
// stays a fixed-size struct suitable for a single read/write syscall.
const (
	maxMessageLen  = 1024
	maxNodeLen     = 256
	maxHostnameLen = 256
	maxFsNameLen   = 256
	maxPathLen     = 2048
	maxDescLen     = 255
)

// ErrorEnvelope carries a coded failure back to the peer alongside REPLY.
type ErrorEnvelope struct {
	Code    int32
	Message string
}

// LoginInfo is the CONNECT variant of the packet union.
type LoginInfo struct {
	Node     string
	Password string
	Hostname string
	Port     uint16
}

// FileInfo is the OPEN variant of the packet union.
type FileInfo struct {
	FilesystemName string
	RelativePath   string
	Description    string
	StorageDest    uint32
}

// DataHeader is the DATA variant of the packet union; the payload bytes
// themselves follow the packet on the wire, not inside it.
type DataHeader struct {
	PayloadBytes uint64
}

// Packet is the fixed wire record: version, state bitmask, error envelope,
// and a tagged union of LoginInfo/FileInfo/DataHeader. All three union
// fields are always present in the serialized form; which one is meaningful
// is determined by State.
type Packet struct {
	Version State // set via Send; stored as a byte on the wire
	State   State
	Error   ErrorEnvelope
	Login   LoginInfo
	File    FileInfo
	Data    DataHeader
}

// packetSize is the total encoded size of one Packet record.
const packetSize = 1 /*version*/ + 2 /*state*/ +
	4 + 2 + maxMessageLen + /*error*/
	2 + maxNodeLen + 2 + maxNodeLen + 2 + maxHostnameLen + 2 + /*login*/
	2 + maxFsNameLen + 2 + maxPathLen + 2 + maxDescLen + 4 + /*file*/
	8 /*data header*/

func writeFixedString(buf *bytes.Buffer, s string, maxLen int) error {
	if len(s) > maxLen {
		return fsqerr.New(fsqerr.CodeNameTooLong, "field of length %d exceeds ceiling %d", len(s), maxLen)
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	field := make([]byte, maxLen)
	copy(field, s)
	_, err := buf.Write(field)
	return err
}

func readFixedString(r *bytes.Reader, maxLen int) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	field := make([]byte, maxLen)
	if _, err := io.ReadFull(r, field); err != nil {
		return "", err
	}
	if int(n) > maxLen {
		return "", fsqerr.ErrProtocolShort
	}
	return string(field[:n]), nil
}

// MarshalBinary encodes p into its fixed-size wire representation.
func (p *Packet) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, packetSize))
	if err := buf.WriteByte(byte(p.Version)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(p.State)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, p.Error.Code); err != nil {
		return nil, err
	}
	if err := writeFixedString(buf, p.Error.Message, maxMessageLen); err != nil {
		return nil, err
	}
	if err := writeFixedString(buf, p.Login.Node, maxNodeLen); err != nil {
		return nil, err
	}
	if err := writeFixedString(buf, p.Login.Password, maxNodeLen); err != nil {
		return nil, err
	}
	if err := writeFixedString(buf, p.Login.Hostname, maxHostnameLen); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, p.Login.Port); err != nil {
		return nil, err
	}
	if err := writeFixedString(buf, p.File.FilesystemName, maxFsNameLen); err != nil {
		return nil, err
	}
	if err := writeFixedString(buf, p.File.RelativePath, maxPathLen); err != nil {
		return nil, err
	}
	if err := writeFixedString(buf, p.File.Description, maxDescLen); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, p.File.StorageDest); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.BigEndian, p.Data.PayloadBytes); err != nil {
		return nil, err
	}
	if buf.Len() != packetSize {
		return nil, fmt.Errorf("wire: internal encoding error: got %d bytes, want %d", buf.Len(), packetSize)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a fixed-size wire record into p.
func (p *Packet) UnmarshalBinary(b []byte) error {
	if len(b) != packetSize {
		return fsqerr.ErrProtocolShort
	}
	r := bytes.NewReader(b)
	versionByte, err := r.ReadByte()
	if err != nil {
		return err
	}
	p.Version = State(versionByte)

	var state uint16
	if err := binary.Read(r, binary.BigEndian, &state); err != nil {
		return err
	}
	p.State = State(state)

	if err := binary.Read(r, binary.BigEndian, &p.Error.Code); err != nil {
		return err
	}
	if p.Error.Message, err = readFixedString(r, maxMessageLen); err != nil {
		return err
	}
	if p.Login.Node, err = readFixedString(r, maxNodeLen); err != nil {
		return err
	}
	if p.Login.Password, err = readFixedString(r, maxNodeLen); err != nil {
		return err
	}
	if p.Login.Hostname, err = readFixedString(r, maxHostnameLen); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &p.Login.Port); err != nil {
		return err
	}
	if p.File.FilesystemName, err = readFixedString(r, maxFsNameLen); err != nil {
		return err
	}
	if p.File.RelativePath, err = readFixedString(r, maxPathLen); err != nil {
		return err
	}
	if p.File.Description, err = readFixedString(r, maxDescLen); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &p.File.StorageDest); err != nil {
		return err
	}
	if err := binary.Read(r, binary.BigEndian, &p.Data.PayloadBytes); err != nil {
		return err
	}
	return nil
}
