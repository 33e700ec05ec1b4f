package transcode

// spillover holds encoded bytes a read could not absorb. It references the
// chunk it was given instead of copying it; the owner must not overwrite
// that chunk until avail() is zero.
type spillover struct {
	chunk []byte
	off   int
}

func (s *spillover) avail() int {
	return len(s.chunk) - s.off
}

// take copies up to len(dst) pending bytes into dst and advances.
func (s *spillover) take(dst []byte) int {
	n := copy(dst, s.chunk[s.off:])
	s.off += n
	if s.off == len(s.chunk) {
		s.chunk, s.off = nil, 0
	}
	return n
}

func (s *spillover) store(b []byte) {
	if s.avail() != 0 {
		panic("transcode: spillover store while not drained")
	}
	s.chunk, s.off = b, 0
}
