package mux

// MatchFunc reports whether a packet belongs to the endpoint it is
// registered for. The owning Mux calls the registered MatchFuncs until one
// returns true; the order in which they are tried is not defined.
type MatchFunc func(b []byte) bool

// MatchRange matches packets whose first byte falls within [lo, hi].
func MatchRange(lo, hi byte) MatchFunc {
	return func(b []byte) bool {
		return len(b) > 0 && b[0] >= lo && b[0] <= hi
	}
}

// RFC 5389 §6: the magic cookie occupies the four bytes following the
// 16-bit message type and 16-bit length fields in a STUN header.
const stunMagicCookie = 0x2112A442

// MatchSTUN reports whether b looks like a STUN message: the top two
// bits of the first byte are 0 (RFC 5389 §6) and the fixed magic cookie
// appears at its fixed header offset.
func MatchSTUN(b []byte) bool {
	if len(b) < 8 || b[0]&0xc0 != 0 {
		return false
	}
	cookie := uint32(b[4])<<24 | uint32(b[5])<<16 | uint32(b[6])<<8 | uint32(b[7])
	return cookie == stunMagicCookie
}

// MatchRTP reports whether b looks like an RTP or RTCP packet: version 2
// in the high two bits of the first byte (RFC 3550 §5.1). On a 5-tuple
// muxed with STUN, this is just the complement of MatchSTUN, but it's
// useful as its own matcher when RTP/RTCP share a mux with other
// protocols that don't set the high bits the same way STUN does.
func MatchRTP(b []byte) bool {
	return len(b) >= 2 && b[0]>>6 == 2
}
