package aap2

import (
	"dtn_chat/internal/model"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

const (
	messagePrefixLen = 4
	MaxMessageSize   = 16 << 20
)

type ResponseStatus int

const (
	StatusUnspecified ResponseStatus = iota
	StatusSuccess
	StatusAck
	StatusFailure
	StatusTimeout
	StatusInvalidRequest
	StatusNotFound
	StatusUnauthorized
)

func (s ResponseStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusAck:
		return "ack"
	case StatusFailure:
		return "failure"
	case StatusTimeout:
		return "timeout"
	case StatusInvalidRequest:
		return "invalid_request"
	case StatusNotFound:
		return "not_found"
	case StatusUnauthorized:
		return "unauthorized"
	}
	return fmt.Sprintf("unspecified(%d)", int(s))
}

type ADUFlag int

const (
	ADUFlagNormal ADUFlag = iota
	ADUFlagBPDU
	ADUFlagWithBDMAuth
)

type (
	// Message is the unit exchanged with the agent. Exactly one field is set.
	Message struct {
		Welcome   *Welcome          `cbor:"welcome,omitempty"`
		Config    *ConnectionConfig `cbor:"config,omitempty"`
		ADU       *BundleADU        `cbor:"adu,omitempty"`
		Keepalive *Keepalive        `cbor:"keepalive,omitempty"`
		Response  *Response         `cbor:"response,omitempty"`
	}

	Welcome struct {
		NodeID string `cbor:"node_id"`
	}

	ConnectionConfig struct {
		IsSubscriber     bool           `cbor:"is_subscriber"`
		EndpointID       string         `cbor:"endpoint_id"`
		Secret           string         `cbor:"secret,omitempty"`
		AuthType         model.AuthType `cbor:"auth_type"`
		KeepaliveSeconds uint32         `cbor:"keepalive_seconds,omitempty"`
	}

	BundleADU struct {
		SrcEID        string    `cbor:"src_eid,omitempty"`
		DstEID        string    `cbor:"dst_eid,omitempty"`
		PayloadLength uint64    `cbor:"payload_length"`
		Flags         []ADUFlag `cbor:"adu_flags,omitempty"`
		Payload       []byte    `cbor:"payload"`
	}

	Keepalive struct {
		SentAtMillis int64 `cbor:"sent_at"`
	}

	Response struct {
		Status ResponseStatus `cbor:"response_status"`
	}
)

func (m *Message) field() string {
	switch {
	case m.Welcome != nil:
		return "welcome"
	case m.Config != nil:
		return "config"
	case m.ADU != nil:
		return "adu"
	case m.Keepalive != nil:
		return "keepalive"
	case m.Response != nil:
		return "response"
	}
	return "unknown"
}

func encodeFlags(f model.ADUFlags) []ADUFlag {
	var out []ADUFlag
	if f.Has(model.FlagNormal) {
		out = append(out, ADUFlagNormal)
	}
	if f.Has(model.FlagEncapsulatedBundle) {
		out = append(out, ADUFlagBPDU)
	}
	if f.Has(model.FlagRequiresAuth) {
		out = append(out, ADUFlagWithBDMAuth)
	}
	return out
}

func decodeFlags(flags []ADUFlag) model.ADUFlags {
	var out model.ADUFlags
	for _, f := range flags {
		switch f {
		case ADUFlagNormal:
			out |= model.FlagNormal
		case ADUFlagBPDU:
			out |= model.FlagEncapsulatedBundle
		case ADUFlagWithBDMAuth:
			out |= model.FlagRequiresAuth
		}
	}
	return out
}

// WriteMessage writes m with a 4 byte big endian length prefix.
func WriteMessage(w io.Writer, m *Message) error {
	blob, err := cbor.Marshal(m)
	if err != nil {
		return err
	}

	toSend := make([]byte, messagePrefixLen, messagePrefixLen+len(blob))
	binary.BigEndian.PutUint32(toSend, uint32(len(blob)))
	toSend = append(toSend, blob...)

	count, err := w.Write(toSend)
	if err != nil {
		return err
	}
	if count != len(toSend) {
		return fmt.Errorf("short write: %d != %d", count, len(toSend))
	}
	return nil
}

// ReadFrame reads one length-prefixed blob.
func ReadFrame(r io.Reader) ([]byte, error) {
	prefix := make([]byte, messagePrefixLen)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(prefix)
	if size > MaxMessageSize {
		return nil, fmt.Errorf("message of %d bytes exceeds limit", size)
	}
	blob := make([]byte, size)
	if _, err := io.ReadFull(r, blob); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return blob, nil
}

func DecodeMessage(blob []byte) (*Message, error) {
	m := &Message{}
	if err := cbor.Unmarshal(blob, m); err != nil {
		return nil, err
	}
	return m, nil
}

func ReadMessage(r io.Reader) (*Message, error) {
	blob, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodeMessage(blob)
}
