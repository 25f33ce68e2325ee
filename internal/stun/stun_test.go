package stun

import (
	"bytes"
	"net"
	"testing"
)

func TestMessageIntegrityRoundTrip(t *testing.T) {
	password := "hello"
	transactionID := "0123456789AB"
	raddr := &net.UDPAddr{IP: net.IPv4(1, 2, 3, 4), Port: 5678}

	msg := NewBindingResponse(transactionID, raddr)
	msg.AddMessageIntegrity(password)

	parsed, err := ParseMessage(msg.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !parsed.VerifyMessageIntegrity(password) {
		t.Fatal("MESSAGE-INTEGRITY failed to verify")
	}
	if parsed.VerifyMessageIntegrity("wrong password") {
		t.Fatal("MESSAGE-INTEGRITY verified with wrong password")
	}
}

func TestFingerprintRoundTrip(t *testing.T) {
	password := "hello"
	transactionID := "0123456789AB"
	raddr := &net.UDPAddr{IP: net.IPv4(1, 2, 3, 4), Port: 5678}

	msg := NewBindingResponse(transactionID, raddr)
	msg.AddMessageIntegrity(password)
	msg.AddFingerprint()

	parsed, err := ParseMessage(msg.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !parsed.VerifyFingerprint() {
		t.Fatal("FINGERPRINT failed to verify")
	}

	tampered := msg.Bytes()
	tampered[0] ^= 0x01
	if parsedBad, _ := ParseMessage(tampered); parsedBad != nil && parsedBad.VerifyFingerprint() {
		t.Fatal("FINGERPRINT verified after tampering")
	}
}

func TestParseStunMessage(t *testing.T) {
	b := []byte{
		0x00, 0x01, 0x00, 0x4c, 0x21, 0x12, 0xa4, 0x42,
		0x56, 0x41, 0x66, 0x33, 0x5a, 0x49, 0x73, 0x4c,
		0x31, 0x64, 0x2f, 0x46, 0x00, 0x06, 0x00, 0x09,
		0x74, 0x6c, 0x47, 0x61, 0x3a, 0x6e, 0x33, 0x45,
		0x33, 0x00, 0x00, 0x00, 0xc0, 0x57, 0x00, 0x04,
		0x00, 0x01, 0x00, 0x0a, 0x80, 0x29, 0x00, 0x08,
		0x57, 0xfa, 0x3a, 0xdb, 0xb9, 0x81, 0x0a, 0xdd,
		0x00, 0x24, 0x00, 0x04, 0x6e, 0x7f, 0x1e, 0xff,
		0x00, 0x08, 0x00, 0x14, 0x16, 0xae, 0x21, 0xab,
		0x58, 0xa5, 0xba, 0x5f, 0x5d, 0x1d, 0xfe, 0xde,
		0xc5, 0x65, 0x52, 0xf5, 0x6f, 0x08, 0x60, 0x37,
		0x80, 0x28, 0x00, 0x04, 0x31, 0xfd, 0x4e, 0x69,
	}

	msg, err := ParseMessage(b)
	if err != nil {
		t.Fatal(err)
	}
	t.Log("length:", msg.Length)
	t.Log("class:", msg.Class)
	t.Log("method:", msg.Method)
	t.Log("attributes:", msg.Attributes)

	b2 := msg.Bytes()
	if !bytes.Equal(b, b2) {
		t.Errorf("serialized STUN message not equal to original: %x", b2)
	}

	msg2 := NewMessage(msg.Class, msg.Method, msg.TransactionID)
	for _, attr := range msg.Attributes {
		msg2.AddAttribute(attr.Type, attr.Value)
	}

	b3 := msg2.Bytes()
	if !bytes.Equal(b, b3) {
		t.Errorf("reconstructed STUN message not equal to original: %x", b3)
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage(ClassRequest, 0, "0123456789AB")

	msg2, err := ParseMessage(msg.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !(msg.Length == msg2.Length && msg.Class == msg2.Class && msg.Method == msg2.Method && msg.TransactionID == msg2.TransactionID) {
		t.Errorf("parsed STUN header not equal to original")
	}
}

func TestErrorCodeRoundTrip(t *testing.T) {
	msg := NewBindingErrorResponse("0123456789AB", 487, "Role Conflict")
	parsed, err := ParseMessage(msg.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	code, reason, ok := parsed.ErrorCode()
	if !ok || code != 487 || reason != "Role Conflict" {
		t.Fatalf("got (%d, %q, %v), want (487, \"Role Conflict\", true)", code, reason, ok)
	}
}

func TestPad4(t *testing.T) {
	vals := []uint16{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	answers := []int{0, 3, 2, 1, 0, 3, 2, 1, 0, 3}
	for i, val := range vals {
		if pad4(val) != answers[i] {
			t.Errorf("pad4(%d) == %d != %d", val, pad4(val), answers[i])
		}
	}
}
