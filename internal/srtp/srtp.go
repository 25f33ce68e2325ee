package srtp

import (
	"crypto/subtle"
	"encoding/binary"

	"golang.org/x/xerrors"
)

// EncryptRTP protects an RTP packet in place, per spec §4.4. buf holds the
// plaintext packet; the returned slice has the auth tag appended and aliases
// buf's backing array when it has spare capacity.
func (c *Context) EncryptRTP(buf []byte) ([]byte, error) {
	hdr, err := parseRTPHeader(buf)
	if err != nil {
		return nil, xerrors.Errorf("encrypt rtp: %w", err)
	}

	c.mu.Lock()
	s := c.getStream(hdr.ssrc)
	c.mu.Unlock()

	if !s.slInited {
		s.sl = hdr.seq
		s.slInited = true
	}

	// Step 3: update ROC when seq_diff(s_l, seq) <= -32768 (large negative
	// jump interpreted as wraparound), and restart s_l from 0 so the new
	// sequence number is taken as the highest seen under the new ROC.
	if seqDiff(s.sl, hdr.seq) <= -32768 {
		s.roc++
		s.sl = 0
	}
	index := s.index(hdr.seq)

	payload := buf[hdr.length:]

	switch c.params.mode {
	case modeCTR:
		iv := counterIV(c.rtp.salt, hdr.ssrc, index)
		newCTRStream(c.rtp.block, iv).XORKeyStream(payload, payload)

		if c.rtp.authKey != nil {
			out := append(buf, make([]byte, 4+c.rtp.tagLen)...)
			binary.BigEndian.PutUint32(out[len(buf):], s.roc)
			tag := newHMAC(c.rtp.authKey)(out[:len(buf)+4])
			copy(out[len(buf):], tag[:c.rtp.tagLen])
			buf = out[:len(buf)+c.rtp.tagLen]
		}

	case modeGCM:
		iv := gcmIV(c.rtp.salt, hdr.ssrc, index)
		sealed := c.rtp.gcm.Seal(nil, iv, payload, buf[:hdr.length])
		buf = append(buf[:hdr.length], sealed...)
	}

	if seqDiff(s.sl, hdr.seq) > 0 {
		s.sl = hdr.seq
	}

	return buf, nil
}

// DecryptRTP unprotects an SRTP packet in place, per spec §4.5.
func (c *Context) DecryptRTP(buf []byte) ([]byte, error) {
	hdr, err := parseRTPHeader(buf)
	if err != nil {
		return nil, xerrors.Errorf("decrypt rtp: %w", err)
	}

	c.mu.Lock()
	s := c.getStream(hdr.ssrc)
	c.mu.Unlock()

	if !s.slInited {
		s.sl = hdr.seq
		s.slInited = true
	}

	diff := seqDiff(s.sl, hdr.seq)
	if diff > 32768 {
		return nil, xerrors.Errorf("decrypt rtp: %w", ErrTimeout)
	}
	roc := s.roc
	if diff <= -32768 {
		roc++
	}
	index := uint64(roc)<<16 | uint64(hdr.seq)

	switch c.params.mode {
	case modeCTR:
		tagLen := c.rtp.tagLen
		if c.rtp.authKey != nil {
			if len(buf) < hdr.length+tagLen {
				return nil, xerrors.Errorf("decrypt rtp: %w", ErrBadMessage)
			}
			tagStart := len(buf) - tagLen
			gotTag := append([]byte(nil), buf[tagStart:]...)

			trailer := append(append([]byte(nil), buf[:tagStart]...), make([]byte, 4)...)
			binary.BigEndian.PutUint32(trailer[tagStart:], roc)
			wantTag := newHMAC(c.rtp.authKey)(trailer)[:tagLen]

			if subtle.ConstantTimeCompare(gotTag, wantTag) != 1 {
				return nil, xerrors.Errorf("decrypt rtp: %w", ErrAuth)
			}

			if err := s.replayRTP.check(index); err != nil {
				return nil, xerrors.Errorf("decrypt rtp: %w", err)
			}
			buf = buf[:tagStart]
		}

		iv := counterIV(c.rtp.salt, hdr.ssrc, index)
		payload := buf[hdr.length:]
		newCTRStream(c.rtp.block, iv).XORKeyStream(payload, payload)

	case modeGCM:
		tagLen := 16
		if len(buf) < hdr.length+tagLen {
			return nil, xerrors.Errorf("decrypt rtp: %w", ErrBadMessage)
		}
		iv := gcmIV(c.rtp.salt, hdr.ssrc, index)
		opened, err := c.rtp.gcm.Open(buf[hdr.length:hdr.length], iv, buf[hdr.length:], buf[:hdr.length])
		if err != nil {
			return nil, xerrors.Errorf("decrypt rtp: %w", ErrAuth)
		}
		buf = buf[:hdr.length+len(opened)]

		if err := s.replayRTP.check(index); err != nil {
			return nil, xerrors.Errorf("decrypt rtp: %w", err)
		}
	}

	if roc != s.roc || seqDiff(s.sl, hdr.seq) > 0 {
		s.sl = hdr.seq
	}
	s.roc = roc

	return buf, nil
}
