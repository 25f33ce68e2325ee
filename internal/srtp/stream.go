package srtp

// Stream holds per-SSRC state: RFC 3711 §3.2.3. Created lazily on first
// packet seen for that SSRC and kept for the lifetime of the owning Context.
type Stream struct {
	ssrc uint32

	roc        uint32 // 32-bit roll-over counter
	sl         uint16 // highest sequence number seen
	slInited   bool
	rtcpIndex  uint32 // 31-bit monotonic SRTCP index
	replayRTP  replayWindow
	replayRTCP replayWindow
}

func newStream(ssrc uint32) *Stream {
	return &Stream{ssrc: ssrc}
}

// index returns the 48-bit RTP packet index for the stream's current roc.
func (s *Stream) index(seq uint16) uint64 {
	return uint64(s.roc)<<16 | uint64(seq)
}

func (c *Context) getStream(ssrc uint32) *Stream {
	if s, ok := c.streams[ssrc]; ok {
		return s
	}
	s := newStream(ssrc)
	c.streams[ssrc] = s
	return s
}
