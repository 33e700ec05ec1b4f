package transcode

import (
	"bytes"
	"testing"
)

func TestSpillover_TakeInPieces(t *testing.T) {
	var s spillover
	if s.avail() != 0 {
		t.Fatalf("avail() = %d on empty cursor", s.avail())
	}
	s.store([]byte("abcdefghij"))

	var got []byte
	for _, n := range []int{3, 3, 10} {
		buf := make([]byte, n)
		k := s.take(buf)
		got = append(got, buf[:k]...)
	}
	if !bytes.Equal(got, []byte("abcdefghij")) {
		t.Errorf("took %q", got)
	}
	if s.avail() != 0 {
		t.Errorf("avail() = %d after draining", s.avail())
	}
	if s.chunk != nil {
		t.Error("drained cursor still references its chunk")
	}
}

func TestSpillover_StoreWhilePendingPanics(t *testing.T) {
	var s spillover
	s.store([]byte("xy"))
	defer func() {
		if recover() == nil {
			t.Error("store over pending bytes did not panic")
		}
	}()
	s.store([]byte("z"))
}
