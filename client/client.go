// Package client is the symmetric counterpart to the wire protocol and
// session handler, usable by any Go program that needs to stage a file
// into fsqd.
package client

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/GSI-HPC/fsqd/internal/wire"
)

// Client is a single connection to an fsqd daemon. It is not safe for
// concurrent use by multiple goroutines — the protocol itself is strictly
// sequential per connection.
type Client struct {
	conn net.Conn
}

// Error wraps the numeric code and message from a REPLY|ERROR envelope.
type Error struct {
	Code    int32
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("fsqd: error %d: %s", e.Code, e.Message)
}

// Connect dials addr, sends CONNECT with the given node identity, and
// blocks for the server's reply.
func Connect(addr, node, password string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	hostname, _ := os.Hostname()

	c := &Client{conn: conn}
	pkt := &wire.Packet{
		State: wire.Connect,
		Login: wire.LoginInfo{Node: node, Password: password, Hostname: hostname},
	}
	if err := wire.Send(conn, pkt); err != nil {
		conn.Close()
		return nil, err
	}
	reply, err := wire.Recv(conn, wire.Connect|wire.ReplyBit)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if reply.State.Has(wire.ErrorBit) {
		conn.Close()
		return nil, &Error{Code: reply.Error.Code, Message: reply.Error.Message}
	}
	return c, nil
}

// File is a single open landing file within a Client's connection.
type File struct {
	c *Client
}

// Open sends an OPEN request for the given filesystem/path/description and
// storage destination, and blocks for the server's reply.
func (c *Client) Open(fs, path, desc string, storageDest uint32) (*File, error) {
	pkt := &wire.Packet{
		State: wire.Open,
		File: wire.FileInfo{
			FilesystemName: fs,
			RelativePath:   path,
			Description:    desc,
			StorageDest:    storageDest,
		},
	}
	if err := wire.Send(c.conn, pkt); err != nil {
		return nil, err
	}
	reply, err := wire.Recv(c.conn, wire.Open|wire.ReplyBit)
	if err != nil {
		return nil, err
	}
	if reply.State.Has(wire.ErrorBit) {
		return nil, &Error{Code: reply.Error.Code, Message: reply.Error.Message}
	}
	return &File{c: c}, nil
}

// Write sends one DATA frame carrying data's bytes and blocks for
// DATA|REPLY. Zero-length data is legal.
func (f *File) Write(data []byte) error {
	pkt := &wire.Packet{State: wire.Data, Data: wire.DataHeader{PayloadBytes: uint64(len(data))}}
	if err := wire.Send(f.c.conn, pkt); err != nil {
		return err
	}
	if err := wire.WriteAll(f.c.conn, data); err != nil {
		return err
	}
	reply, err := wire.Recv(f.c.conn, wire.Data|wire.ReplyBit)
	if err != nil {
		return err
	}
	if reply.State.Has(wire.ErrorBit) {
		return &Error{Code: reply.Error.Code, Message: reply.Error.Message}
	}
	return nil
}

// Close sends CLOSE and blocks for CLOSE|REPLY, ending this file's cycle
// (the connection remains open for further Open calls).
func (f *File) Close() error {
	if err := wire.Send(f.c.conn, &wire.Packet{State: wire.Close}); err != nil {
		return err
	}
	reply, err := wire.Recv(f.c.conn, wire.Close|wire.ReplyBit)
	if err != nil {
		return err
	}
	if reply.State.Has(wire.ErrorBit) {
		return &Error{Code: reply.Error.Code, Message: reply.Error.Message}
	}
	return nil
}

// Disconnect sends DISCONNECT and closes the underlying socket. No reply is
// expected.
func (c *Client) Disconnect() error {
	if err := wire.Send(c.conn, &wire.Packet{State: wire.Disconnect}); err != nil {
		_ = c.conn.Close()
		return err
	}
	return c.conn.Close()
}

// SetDeadline is a thin pass-through for callers that want socket-level
// timeouts; the protocol itself defines none.
func (c *Client) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}
