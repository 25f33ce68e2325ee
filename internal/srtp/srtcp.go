package srtp

import (
	"crypto/subtle"
	"encoding/binary"

	"golang.org/x/xerrors"
)

const srtcpHeaderLen = 8 // 4-byte fixed header + 4-byte sender SSRC, per spec §4.6

// EncryptRTCP protects an RTCP compound packet in place, per spec §4.6.
// SRTCP keeps its own 31-bit monotonic index per stream, independent of
// RTP sequence numbers.
func (c *Context) EncryptRTCP(buf []byte) ([]byte, error) {
	if len(buf) < srtcpHeaderLen {
		return nil, xerrors.Errorf("encrypt rtcp: %w", ErrBadMessage)
	}
	ssrc := binary.BigEndian.Uint32(buf[4:8])

	c.mu.Lock()
	s := c.getStream(ssrc)
	c.mu.Unlock()

	s.rtcpIndex = (s.rtcpIndex + 1) & 0x7fffffff
	index := s.rtcpIndex

	var eBit uint32
	if !c.flags.SRTCPUnencrypted {
		eBit = 1
	}
	trailer := make([]byte, 4)
	binary.BigEndian.PutUint32(trailer, eBit<<31|index)

	header := buf[:srtcpHeaderLen]
	payload := buf[srtcpHeaderLen:]

	switch c.params.mode {
	case modeCTR:
		if eBit == 1 {
			iv := counterIV(c.rtcp.salt, ssrc, uint64(index))
			newCTRStream(c.rtcp.block, iv).XORKeyStream(payload, payload)
		}
		out := append(append([]byte(nil), buf...), trailer...)
		if c.rtcp.authKey != nil {
			tag := newHMAC(c.rtcp.authKey)(out)[:c.rtcp.tagLen]
			out = append(out, tag...)
		}
		return out, nil

	case modeGCM:
		// The GCM tag sits between the payload and the E-bit/index
		// trailer, not after it: GCM suites carry no separate outer
		// auth tag the way the HMAC suites do.
		iv := gcmIV(c.rtcp.salt, ssrc, uint64(index))
		var sealed []byte
		if eBit == 1 {
			aad := append(append([]byte(nil), header...), trailer...)
			sealed = c.rtcp.gcm.Seal(nil, iv, payload, aad)
		} else {
			// [RFC7714 §9] Unencrypted SRTCP authenticates via the AEAD
			// tag over a null plaintext, with the whole cleartext packet
			// as associated data.
			aad := append(append(append([]byte(nil), header...), payload...), trailer...)
			tag := c.rtcp.gcm.Seal(nil, iv, nil, aad)
			sealed = append(append([]byte(nil), payload...), tag...)
		}
		out := append(append([]byte(nil), header...), sealed...)
		out = append(out, trailer...)
		return out, nil
	}

	return nil, ErrUnsupported
}

// DecryptRTCP unprotects an SRTCP packet in place, per spec §4.6.
//
// The trailer (E-bit + 31-bit index) sits at a different offset from the
// end of the packet depending on suite: HMAC suites trail an outer auth
// tag after it, GCM suites don't (their AEAD tag is embedded in the
// payload instead, immediately before the trailer). outerTagLen captures
// that difference the same way the original's comp_init keeps a zero
// auth_bytes for GCM components.
func (c *Context) DecryptRTCP(buf []byte) ([]byte, error) {
	outerTagLen := 0
	if c.rtcp.authKey != nil {
		outerTagLen = c.rtcp.tagLen
	}

	if len(buf) < srtcpHeaderLen+4+outerTagLen {
		return nil, xerrors.Errorf("decrypt rtcp: %w", ErrBadMessage)
	}

	ssrc := binary.BigEndian.Uint32(buf[4:8])
	c.mu.Lock()
	s := c.getStream(ssrc)
	c.mu.Unlock()

	trailerStart := len(buf) - outerTagLen - 4
	trailer := buf[trailerStart : trailerStart+4]
	word := binary.BigEndian.Uint32(trailer)
	eBit := word >> 31
	index := word & 0x7fffffff

	header := buf[:srtcpHeaderLen]
	payload := buf[srtcpHeaderLen:trailerStart]

	switch c.params.mode {
	case modeCTR:
		gotTag := buf[trailerStart+4:]
		if c.rtcp.authKey != nil {
			wantTag := newHMAC(c.rtcp.authKey)(buf[:trailerStart+4])[:outerTagLen]
			if subtle.ConstantTimeCompare(gotTag, wantTag) != 1 {
				return nil, xerrors.Errorf("decrypt rtcp: %w", ErrAuth)
			}
		}

		if err := s.replayRTCP.check(uint64(index)); err != nil {
			return nil, xerrors.Errorf("decrypt rtcp: %w", err)
		}

		if eBit == 1 {
			iv := counterIV(c.rtcp.salt, ssrc, uint64(index))
			newCTRStream(c.rtcp.block, iv).XORKeyStream(payload, payload)
		}

		return buf[:trailerStart], nil

	case modeGCM:
		gcmTagLen := c.rtcp.gcm.Overhead()
		if len(payload) < gcmTagLen {
			return nil, xerrors.Errorf("decrypt rtcp: %w", ErrBadMessage)
		}
		ciphertext := payload[:len(payload)-gcmTagLen]
		tag := payload[len(payload)-gcmTagLen:]
		iv := gcmIV(c.rtcp.salt, ssrc, uint64(index))

		var opened []byte
		if eBit == 1 {
			aad := append(append([]byte(nil), header...), trailer...)
			sealed := append(append([]byte(nil), ciphertext...), tag...)
			var err error
			opened, err = c.rtcp.gcm.Open(nil, iv, sealed, aad)
			if err != nil {
				return nil, xerrors.Errorf("decrypt rtcp: %w", ErrAuth)
			}
		} else {
			// [RFC7714 §9] Unencrypted SRTCP authenticates via the AEAD
			// tag over a null plaintext, with the whole cleartext packet
			// as associated data.
			aad := append(append(append([]byte(nil), header...), ciphertext...), trailer...)
			if _, err := c.rtcp.gcm.Open(nil, iv, tag, aad); err != nil {
				return nil, xerrors.Errorf("decrypt rtcp: %w", ErrAuth)
			}
			opened = ciphertext
		}

		if err := s.replayRTCP.check(uint64(index)); err != nil {
			return nil, xerrors.Errorf("decrypt rtcp: %w", err)
		}

		out := append(append([]byte(nil), header...), opened...)
		return out, nil
	}

	return nil, ErrUnsupported
}
