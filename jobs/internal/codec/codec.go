// Package codec encodes records that leave the process.
package codec

import (
	"bytes"
	"errors"

	"github.com/hashicorp/go-msgpack/codec"
)

// MessageType identifies an encoded message.
type MessageType int8

// Message types.
const (
	EventRecordType MessageType = iota
	LifecycleStateType
)

// ErrUnexpectedType is returned when a message has an unexpected type header.
var ErrUnexpectedType = errors.New("codec: unexpected message type")

// msgpackHandle is a shared handle for encoding/decoding of messages.
var msgpackHandle = &codec.MsgpackHandle{RawToString: true}

// Encode encodes a message with a type header.
func Encode(t MessageType, msg interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(uint8(t))
	err := codec.NewEncoder(&buf, msgpackHandle).Encode(msg)
	return buf.Bytes(), err
}

// Decode decodes a message, checking its type header.
func Decode(t MessageType, buf []byte, out interface{}) error {
	if len(buf) == 0 || MessageType(buf[0]) != t {
		return ErrUnexpectedType
	}
	return codec.NewDecoder(bytes.NewReader(buf[1:]), msgpackHandle).Decode(out)
}
