package srtp

import "github.com/lanikai/srtpice/internal/packet"

// rtpHeader is the minimal parse of an RTP fixed header (RFC 3550 §5.1)
// needed by the SRTP transform: its span within the packet, and the fields
// that feed key derivation and replay checking.
type rtpHeader struct {
	length  int // bytes occupied by the header, including CSRC list and extension
	seq     uint16
	ssrc    uint32
	marker  bool
	version int
}

const minRTPHeaderLen = 12

// parseRTPHeader walks the packet with a packet.Reader (the mbuf-style
// cursor shared with the rest of the transport), rather than indexing the
// slice by hand, so header parsing here matches how the teacher's other
// wire-format code reads fixed-then-variable-length fields.
func parseRTPHeader(buf []byte) (rtpHeader, error) {
	r := packet.NewReader(buf)
	if err := r.CheckRemaining(minRTPHeaderLen); err != nil {
		return rtpHeader{}, ErrBadMessage
	}

	b0 := r.ReadByte()
	version := int(b0 >> 6)
	if version != 2 {
		return rtpHeader{}, ErrBadMessage
	}
	hasExtension := b0&0x10 != 0
	csrcCount := int(b0 & 0x0f)

	b1 := r.ReadByte()
	seq := r.ReadUint16()
	r.Skip(4) // timestamp
	ssrc := r.ReadUint32()

	h := rtpHeader{
		version: version,
		marker:  b1&0x80 != 0,
		seq:     seq,
		ssrc:    ssrc,
		length:  minRTPHeaderLen + 4*csrcCount,
	}

	if err := r.CheckRemaining(4*csrcCount); err != nil {
		return rtpHeader{}, ErrBadMessage
	}
	r.Skip(4 * csrcCount)

	if hasExtension {
		if err := r.CheckRemaining(4); err != nil {
			return rtpHeader{}, ErrBadMessage
		}
		r.Skip(2) // profile-specific extension id
		extLen := int(r.ReadUint16())
		h.length += 4 + 4*extLen
		if len(buf) < h.length {
			return rtpHeader{}, ErrBadMessage
		}
	}

	return h, nil
}

// seqDiff implements spec's seq_diff(x, y) = (int)y - (int)x: x and y are
// treated as plain integers in [0, 65535], not reduced modulo 2^16. A large
// negative result (<= -32768) signals the sequence number wrapped forward
// past 0; a large positive result (> 32768) signals an old, already-rolled
// packet.
func seqDiff(x, y uint16) int32 {
	return int32(y) - int32(x)
}
