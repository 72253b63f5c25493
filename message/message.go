// Package message defines the tagged envelope that flows between services:
// type, sender, receiver, session, and a payload that is either an owned
// byte buffer or a single integer.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package message

import "github.com/momentics/hioload-actor/buffer"

// Type is the wire-stable message type tag.
type Type uint8

const (
	System   Type = 1
	Text     Type = 2
	Lua      Type = 3
	Socket   Type = 4
	Error    Type = 5
	SocketWS Type = 6
	Debug    Type = 7
	Shutdown Type = 8
	Timer    Type = 9
	Integer  Type = 10
)

// Message is the envelope routed between services. Payload is exactly one
// of Buf (bytes) or has no buffer at all, in which case Int carries the
// integer payload variant.
type Message struct {
	Type     Type
	Sender   uint32
	Receiver uint32
	Session  int64

	Buf *buffer.Buffer // nil when the payload is an integer
	Int int64          // valid only when Buf == nil
}

// NewBytes builds a message carrying a buffer payload.
func NewBytes(t Type, sender, receiver uint32, session int64, buf *buffer.Buffer) *Message {
	return &Message{Type: t, Sender: sender, Receiver: receiver, Session: session, Buf: buf}
}

// NewInt builds a message carrying an integer payload.
func NewInt(t Type, sender, receiver uint32, session int64, v int64) *Message {
	return &Message{Type: t, Sender: sender, Receiver: receiver, Session: session, Int: v}
}

// IsBroadcast reports whether the message targets every local service
// rather than one receiver.
func (m *Message) IsBroadcast() bool {
	return m.Receiver == 0
}

// Data returns the raw body bytes, or nil if this is an integer message.
func (m *Message) Data() []byte {
	if m.Buf == nil {
		return nil
	}
	return m.Buf.Data()
}

// FlipSession negates the session id, implementing the runtime's
// request/response sign convention.
func (m *Message) FlipSession() {
	m.Session = -m.Session
}

// Clone returns an independent copy suitable for delivering to a second
// target, as broadcast fan-out must.
func (m *Message) Clone() *Message {
	cp := *m
	if m.Buf != nil {
		cp.Buf = m.Buf.Clone()
	}
	return &cp
}
