package stun

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"net"
)

// Figure 4: Format of STUN Attributes.
type Attribute struct {
	Type   uint16
	Length uint16
	Value  []byte
}

const (
	AttrMappedAddress     = 0x0001
	AttrUsername          = 0x0006
	AttrMessageIntegrity  = 0x0008
	AttrErrorCode         = 0x0009
	AttrUnknownAttributes = 0x000A
	AttrXorMappedAddress  = 0x0020
	AttrPriority          = 0x0024
	AttrUseCandidate      = 0x0025
	AttrSoftware          = 0x8022
	AttrFingerprint       = 0x8028
	AttrIceControlled     = 0x8029
	AttrIceControlling    = 0x802A
)

func parseAttribute(b *bytes.Buffer) (*Attribute, error) {
	if b.Len() < 4 {
		return nil, fmt.Errorf("stun: invalid attribute: %x", b.Bytes())
	}

	typ := binary.BigEndian.Uint16(b.Next(2))
	length := binary.BigEndian.Uint16(b.Next(2))
	if int(length) > b.Len() {
		return nil, fmt.Errorf("stun: illegal attribute: type=%d, length=%d", typ, length)
	}
	value := make([]byte, length)
	copy(value, b.Next(int(length)))
	b.Next(pad4(length))
	return &Attribute{typ, length, value}, nil
}

func writeAttribute(attr *Attribute, b *bytes.Buffer) {
	binary.BigEndian.PutUint16(b.Next(2), attr.Type)
	binary.BigEndian.PutUint16(b.Next(2), attr.Length)
	copy(b.Next(int(attr.Length)), attr.Value)
	copy(b.Next(pad4(attr.Length)), zeros)
}

// numBytes is the total size of the attribute in bytes, header + padding.
func (attr *Attribute) numBytes() int {
	return 4 + int(attr.Length) + pad4(attr.Length)
}

// pad4 is the number of extra bytes needed to pad n to a 4-byte boundary:
// always 0, 1, 2, or 3.
func pad4(n uint16) int {
	return -int(n) & 3
}

var zeros = make([]byte, 32)

func (msg *Message) AddAttribute(t uint16, v []byte) *Attribute {
	l := uint16(len(v))
	vcopy := make([]byte, l)
	copy(vcopy, v)
	attr := &Attribute{t, l, vcopy}
	msg.Attributes = append(msg.Attributes, attr)
	msg.Length += uint16(attr.numBytes())
	return attr
}

func (msg *Message) Attribute(t uint16) (*Attribute, bool) {
	for _, attr := range msg.Attributes {
		if attr.Type == t {
			return attr, true
		}
	}
	return nil, false
}

func (msg *Message) AddUsername(username string) {
	msg.AddAttribute(AttrUsername, []byte(username))
}

func (msg *Message) Username() (string, bool) {
	attr, ok := msg.Attribute(AttrUsername)
	if !ok {
		return "", false
	}
	return string(attr.Value), true
}

func (msg *Message) AddSoftware(s string) {
	msg.AddAttribute(AttrSoftware, []byte(s))
}

func (msg *Message) AddUseCandidate() {
	msg.AddAttribute(AttrUseCandidate, nil)
}

func (msg *Message) HasUseCandidate() bool {
	_, ok := msg.Attribute(AttrUseCandidate)
	return ok
}

func (msg *Message) AddPriority(p uint32) {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, p)
	msg.AddAttribute(AttrPriority, v)
}

func (msg *Message) Priority() uint32 {
	attr, ok := msg.Attribute(AttrPriority)
	if !ok {
		return 0
	}
	return binary.BigEndian.Uint32(attr.Value)
}

func (msg *Message) AddIceControlling(tiebreaker uint64) {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, tiebreaker)
	msg.AddAttribute(AttrIceControlling, v)
}

func (msg *Message) AddIceControlled(tiebreaker uint64) {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, tiebreaker)
	msg.AddAttribute(AttrIceControlled, v)
}

// IceControlling returns the ICE-CONTROLLING tiebreaker value, if present.
func (msg *Message) IceControlling() (uint64, bool) {
	attr, ok := msg.Attribute(AttrIceControlling)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint64(attr.Value), true
}

// IceControlled returns the ICE-CONTROLLED tiebreaker value, if present.
func (msg *Message) IceControlled() (uint64, bool) {
	attr, ok := msg.Attribute(AttrIceControlled)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint64(attr.Value), true
}

func (msg *Message) addErrorCode(code int, reason string) {
	v := make([]byte, 4+len(reason))
	v[2] = byte(code / 100)
	v[3] = byte(code % 100)
	copy(v[4:], reason)
	msg.AddAttribute(AttrErrorCode, v)
}

// ErrorCode returns the numeric error code and reason phrase carried by an
// ERROR-CODE attribute, if present.
func (msg *Message) ErrorCode() (int, string, bool) {
	attr, ok := msg.Attribute(AttrErrorCode)
	if !ok || len(attr.Value) < 4 {
		return 0, "", false
	}
	code := int(attr.Value[2])*100 + int(attr.Value[3])
	return code, string(attr.Value[4:]), true
}

func (msg *Message) MappedAddress() *net.UDPAddr {
	if attr, ok := msg.Attribute(AttrMappedAddress); ok {
		return extractAddr(attr, msg.TransactionID, false)
	}
	if attr, ok := msg.Attribute(AttrXorMappedAddress); ok {
		return extractAddr(attr, msg.TransactionID, true)
	}
	return nil
}

func extractAddr(attr *Attribute, transactionID string, doXor bool) *net.UDPAddr {
	addr := new(net.UDPAddr)
	addr.Port = int(binary.BigEndian.Uint16(attr.Value[2:4]))

	family := attr.Value[1]
	switch family {
	case 0x01: // IPv4
		addr.IP = make([]byte, 4)
		copy(addr.IP, attr.Value[4:8])
	case 0x02: // IPv6
		addr.IP = make([]byte, 16)
		copy(addr.IP, attr.Value[4:20])
	default:
		log.Panicf("stun: invalid mapped address family: %#x", family)
	}

	if doXor {
		addr.Port ^= magicCookie >> 16
		xorBytes(addr.IP[0:4], magicCookieBytes)
		xorBytes(addr.IP[4:], transactionID)
	}
	return addr
}

const magicCookieBytes = "\x21\x12\xA4\x42"

func (msg *Message) SetXorMappedAddress(addr net.Addr) {
	var ip net.IP
	var port int
	switch a := addr.(type) {
	case *net.UDPAddr:
		ip = a.IP
		port = a.Port
	case *net.TCPAddr:
		ip = a.IP
		port = a.Port
	}

	var value []byte
	if ip4 := ip.To4(); ip4 != nil {
		value = make([]byte, 8)
		value[1] = 0x01
		copy(value[4:8], ip4)
	} else {
		value = make([]byte, 20)
		value[1] = 0x02
		copy(value[4:20], ip.To16())
	}
	binary.BigEndian.PutUint16(value[2:4], uint16(port))

	xorBytes(value[2:4], magicCookieBytes[0:2])
	xorBytes(value[4:8], magicCookieBytes)
	xorBytes(value[8:], msg.TransactionID)
	msg.AddAttribute(AttrXorMappedAddress, value)
}

func xorBytes(dest []byte, xor string) {
	for i := range dest {
		dest[i] ^= xor[i]
	}
}
