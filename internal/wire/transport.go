package wire

import (
	"io"

	"github.com/GSI-HPC/fsqd/internal/fsqerr"
)

// ReadExact fills buf completely from r, looping past short reads. A clean
// EOF before buf is full is a protocol-level failure, reported as
// ErrProtocolShort.
func ReadExact(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return fsqerr.ErrProtocolShort
	}
	return err
}

// WriteAll writes buf to w in full, looping past short writes.
func WriteAll(w io.Writer, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

// Conn is the minimal byte-stream surface Send/Recv need; satisfied by
// net.Conn.
type Conn interface {
	io.Reader
	io.Writer
}

// Send serializes pkt with the protocol version stamped and writes it to
// conn as a single fixed-size record.
func Send(conn Conn, pkt *Packet) error {
	pkt.Version = State(ProtocolVersion)
	b, err := pkt.MarshalBinary()
	if err != nil {
		return err
	}
	if err := WriteAll(conn, b); err != nil {
		return fsqerr.ErrProtocolShort
	}
	return nil
}

// Recv reads one fixed-size record from conn, validates the protocol
// version, and checks that the packet's state bits intersect allowedMask.
func Recv(conn Conn, allowedMask State) (*Packet, error) {
	buf := make([]byte, packetSize)
	if err := ReadExact(conn, buf); err != nil {
		return nil, err
	}
	pkt := &Packet{}
	if err := pkt.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	if uint8(pkt.Version) != ProtocolVersion {
		return nil, fsqerr.ErrProtocolVersionMismatch
	}
	if !pkt.State.Has(allowedMask) {
		return nil, fsqerr.ErrProtocolUnexpectedState
	}
	return pkt, nil
}

// SendError builds and sends an ERROR|REPLY packet carrying err's code and
// message, OR-ing replyFor into the state so the client can see which
// operation failed.
func SendError(conn Conn, replyFor State, err error) error {
	coded, ok := fsqerr.As(err)
	if !ok {
		coded = fsqerr.New(fsqerr.CodeIOError, "%s", err.Error())
	}
	pkt := &Packet{
		State: replyFor | ReplyBit | ErrorBit,
		Error: ErrorEnvelope{Code: int32(coded.Code), Message: coded.Message},
	}
	return Send(conn, pkt)
}

// SendReply sends a plain success reply echoing replyFor with ReplyBit set.
func SendReply(conn Conn, replyFor State) error {
	return Send(conn, &Packet{State: replyFor | ReplyBit})
}
