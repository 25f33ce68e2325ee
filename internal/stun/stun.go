// Package stun implements a STUN message codec (RFC 5389), carved out of
// the ICE agent so the wire format has its own package boundary even though
// only the ICE connectivity checker drives it.
package stun

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log"
	"net"
	"strings"
)

// Message is a parsed or in-construction STUN message.
type Message struct {
	// Length in bytes, NOT including the 20-byte header.
	Length uint16

	// Message class, 2 bits.
	Class uint16

	// Message method, 12 bits.
	Method uint16

	// Globally unique transaction ID, 12 bytes.
	TransactionID string

	// Attributes with meaning determined by the class and method.
	Attributes []*Attribute
}

// Allowed STUN message classes.
const (
	ClassRequest         = 0
	ClassIndication      = 1
	ClassSuccessResponse = 2
	ClassErrorResponse   = 3
)

const MethodBinding = 0x1

const HeaderLength = 20
const magicCookie = 0x2112A442

// ParseMessage parses a STUN message from data. It returns (nil, nil) if
// data does not look like a STUN message at all (used by callers that
// demux STUN from other protocols on the same socket).
func ParseMessage(data []byte) (*Message, error) {
	if len(data) < HeaderLength {
		return nil, nil
	}
	msg := parseHeader(data[0:HeaderLength])
	if msg == nil {
		return nil, nil
	}

	b := bytes.NewBuffer(data[HeaderLength:])
	for b.Len() > 0 {
		attr, err := parseAttribute(b)
		if err != nil {
			return msg, err
		}
		msg.Attributes = append(msg.Attributes, attr)
	}
	return msg, nil
}

func writeMessage(msg *Message, b *bytes.Buffer) {
	writeHeader(msg, b)
	for _, attr := range msg.Attributes {
		writeAttribute(attr, b)
	}
}

func (msg *Message) String() string {
	b := new(strings.Builder)
	switch msg.Class {
	case ClassRequest:
		b.WriteString("STUN request")
	case ClassIndication:
		b.WriteString("STUN indication")
	case ClassSuccessResponse:
		b.WriteString("STUN success response")
	case ClassErrorResponse:
		b.WriteString("STUN error response")
	}
	if msg.Method != MethodBinding {
		fmt.Fprintf(b, ", method %x", msg.Method)
	}
	fmt.Fprintf(b, ", tid=%s", hex.EncodeToString([]byte(msg.TransactionID)))
	for _, attr := range msg.Attributes {
		switch attr.Type {
		case AttrMappedAddress:
			fmt.Fprintf(b, ", MAPPED-ADDRESS %s", extractAddr(attr, msg.TransactionID, false))
		case AttrXorMappedAddress:
			fmt.Fprintf(b, ", XOR-MAPPED-ADDRESS %s", extractAddr(attr, msg.TransactionID, true))
		case AttrUsername:
			fmt.Fprintf(b, ", USERNAME %s", string(attr.Value))
		case AttrErrorCode:
			fmt.Fprintf(b, ", ERROR-CODE %s", string(attr.Value))
		case AttrUnknownAttributes:
			fmt.Fprintf(b, ", UNKNOWN %s", string(attr.Value))
		case AttrUseCandidate:
			fmt.Fprintf(b, ", USE-CANDIDATE")
		case AttrIceControlled:
			fmt.Fprintf(b, ", ICE-CONTROLLED")
		case AttrIceControlling:
			fmt.Fprintf(b, ", ICE-CONTROLLING")
		case AttrPriority:
			fmt.Fprintf(b, ", PRIORITY %d", msg.Priority())
		case AttrSoftware, AttrFingerprint, AttrMessageIntegrity:
			// Ignore these in the summary line.
		default:
			fmt.Fprintf(b, ", unknown attribute %x", attr.Type)
		}
	}
	return b.String()
}

// Figure 2: Format of STUN Message Header.
func parseHeader(data []byte) *Message {
	if len(data) < HeaderLength {
		return nil
	}

	messageType := binary.BigEndian.Uint16(data[0:2])
	if messageType>>14 != 0 {
		return nil
	}

	length := binary.BigEndian.Uint16(data[2:4])
	if length%4 != 0 {
		return nil
	}

	cookie := binary.BigEndian.Uint32(data[4:8])
	if cookie != magicCookie {
		return nil
	}

	class, method := decomposeMessageType(messageType)
	return &Message{
		Length:        length,
		Class:         class,
		Method:        method,
		TransactionID: string(data[8:20]),
	}
}

func writeHeader(msg *Message, b *bytes.Buffer) {
	messageType := composeMessageType(msg.Class, msg.Method)
	binary.BigEndian.PutUint16(b.Next(2), messageType)
	binary.BigEndian.PutUint16(b.Next(2), msg.Length)
	binary.BigEndian.PutUint32(b.Next(4), magicCookie)
	copy(b.Next(12), msg.TransactionID)
}

// Figure 3: Format of STUN Message Type Field.
const classMask1 = 0x0100
const classMask2 = 0x0010
const methodMask1 = 0x3e00
const methodMask2 = 0x00e0
const methodMask3 = 0x000f

func composeMessageType(class uint16, method uint16) uint16 {
	t := (class<<7)&classMask1 | (class<<4)&classMask2
	t |= (method<<2)&methodMask1 | (method<<1)&methodMask2 | (method & methodMask3)
	return t
}

func decomposeMessageType(t uint16) (uint16, uint16) {
	class := (t&classMask1)>>7 | (t&classMask2)>>4
	method := (t&methodMask1)>>2 | (t&methodMask2)>>1 | (t & methodMask3)
	return class, method
}

// If transactionID is empty, a random transaction ID is generated.
func NewMessage(class uint16, method uint16, transactionID string) *Message {
	if class>>2 != 0 {
		log.Panicf("stun: invalid message class: %#x", class)
	}
	if method>>12 != 0 {
		log.Panicf("stun: invalid method: %#x", method)
	}

	if transactionID == "" {
		buf := make([]byte, 12)
		rand.Read(buf)
		transactionID = string(buf)
	} else if len(transactionID) != 12 {
		log.Panicf("stun: invalid transaction ID: %x", transactionID)
	}
	return &Message{Class: class, Method: method, TransactionID: transactionID}
}

func NewBindingRequest(transactionID string) *Message {
	return NewMessage(ClassRequest, MethodBinding, transactionID)
}

func NewBindingResponse(transactionID string, mapped net.Addr) *Message {
	msg := NewMessage(ClassSuccessResponse, MethodBinding, transactionID)
	msg.SetXorMappedAddress(mapped)
	return msg
}

// NewBindingErrorResponse builds a STUN error response such as 400 Bad
// Request, 401 Unauthorized, or 487 Role Conflict (RFC 5389 §15.6).
func NewBindingErrorResponse(transactionID string, code int, reason string) *Message {
	msg := NewMessage(ClassErrorResponse, MethodBinding, transactionID)
	msg.addErrorCode(code, reason)
	return msg
}

func NewBindingIndication() *Message {
	msg := NewMessage(ClassIndication, MethodBinding, "")
	msg.AddFingerprint()
	return msg
}

func (msg *Message) Bytes() []byte {
	buf := make([]byte, HeaderLength+msg.Length)
	writeMessage(msg, bytes.NewBuffer(buf))
	return buf
}
