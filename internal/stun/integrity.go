package stun

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"hash/crc32"
)

// AddMessageIntegrity appends a MESSAGE-INTEGRITY attribute (RFC 5389
// §15.4): HMAC-SHA1 keyed by password, computed over everything in the
// message up to (but not including) this attribute.
func (msg *Message) AddMessageIntegrity(password string) {
	sig := hmac.New(sha1.New, []byte(password))

	attr := msg.AddAttribute(AttrMessageIntegrity, zeros[0:20])

	b := msg.Bytes()
	beforeMessageIntegrity := len(b) - attr.numBytes()
	sig.Write(b[0:beforeMessageIntegrity])

	copy(attr.Value, sig.Sum(nil))
}

// VerifyMessageIntegrity reports whether the message's MESSAGE-INTEGRITY
// attribute, if present, matches the HMAC-SHA1 of the message under
// password. The comparison is constant-time.
func (msg *Message) VerifyMessageIntegrity(password string) bool {
	attr, ok := msg.Attribute(AttrMessageIntegrity)
	if !ok {
		return false
	}

	sig := hmac.New(sha1.New, []byte(password))
	b := msg.Bytes()
	beforeMessageIntegrity := HeaderLength
	for _, a := range msg.Attributes {
		if a == attr {
			break
		}
		beforeMessageIntegrity += a.numBytes()
	}
	// The length field covers everything up to and including MESSAGE-INTEGRITY,
	// as it did when AddMessageIntegrity computed the HMAC.
	binary.BigEndian.PutUint16(b[2:4], uint16(beforeMessageIntegrity+attr.numBytes()-HeaderLength))
	sig.Write(b[0:beforeMessageIntegrity])

	return subtle.ConstantTimeCompare(sig.Sum(nil), attr.Value) == 1
}

// AddFingerprint appends a FINGERPRINT attribute (RFC 5389 §15.5): CRC32
// of everything preceding it, XORed with the magic constant.
func (msg *Message) AddFingerprint() {
	attr := msg.AddAttribute(AttrFingerprint, zeros[0:4])

	b := msg.Bytes()
	beforeFingerprint := len(b) - attr.numBytes()
	crc := crc32.ChecksumIEEE(b[0:beforeFingerprint])

	binary.BigEndian.PutUint32(attr.Value, crc^0x5354554e)
}

// VerifyFingerprint reports whether the message's FINGERPRINT attribute,
// if present, matches the CRC32 of the preceding bytes.
func (msg *Message) VerifyFingerprint() bool {
	attr, ok := msg.Attribute(AttrFingerprint)
	if !ok {
		return false
	}

	b := msg.Bytes()
	beforeFingerprint := len(b) - attr.numBytes()
	crc := crc32.ChecksumIEEE(b[0:beforeFingerprint])

	return binary.BigEndian.Uint32(attr.Value) == crc^0x5354554e
}
