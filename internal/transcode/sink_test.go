package transcode

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newTestSink(t *testing.T, finalDir string) *sink {
	t.Helper()
	dir := t.TempDir()
	if finalDir == "" {
		finalDir = dir
	}
	k, err := openSink(filepath.Join(dir, "tmp", "a.part"), filepath.Join(finalDir, "a.mp3"), zap.NewNop())
	if err != nil {
		t.Fatalf("openSink: %v", err)
	}
	return k
}

func TestSink_Promote(t *testing.T) {
	k := newTestSink(t, "")
	k.write([]byte("ID3"))
	k.write([]byte("frames"))

	res := k.finalize(true)
	if res.Outcome != SinkPromoted || res.Err != nil {
		t.Fatalf("finalize = %+v", res)
	}
	if res.Bytes != 9 {
		t.Errorf("Bytes = %d, want 9", res.Bytes)
	}
	got, err := os.ReadFile(res.FinalPath)
	if err != nil {
		t.Fatalf("read final: %v", err)
	}
	if !bytes.Equal(got, []byte("ID3frames")) {
		t.Errorf("final = %q", got)
	}
	if _, err := os.Stat(res.TempPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file still present: %v", err)
	}
}

func TestSink_Discard(t *testing.T) {
	k := newTestSink(t, "")
	k.write([]byte("partial"))

	res := k.finalize(false)
	if res.Outcome != SinkDiscarded {
		t.Fatalf("Outcome = %s", res.Outcome)
	}
	for _, p := range []string{res.TempPath, res.FinalPath} {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s exists after discard", p)
		}
	}
}

func TestSink_PromoteFailureRemovesTemp(t *testing.T) {
	k := newTestSink(t, filepath.Join(t.TempDir(), "missing", "dir"))
	k.write([]byte("data"))

	res := k.finalize(true)
	if res.Outcome != SinkPromoteFailed || res.Err == nil {
		t.Fatalf("finalize = %+v", res)
	}
	if _, err := os.Stat(res.TempPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestSink_BrokenWriteDiscards(t *testing.T) {
	k := newTestSink(t, "")
	_ = k.f.Close()

	// Larger than the buffer so the write reaches the closed file.
	k.write(make([]byte, 128*1024))
	if k.broken == nil {
		t.Fatal("write to a closed file did not mark the sink broken")
	}
	k.write([]byte("ignored"))

	res := k.finalize(true)
	if res.Outcome != SinkDiscarded || res.Err == nil {
		t.Fatalf("finalize = %+v", res)
	}
	if _, err := os.Stat(res.FinalPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("broken artifact was promoted")
	}
}

func TestSink_FinalizeTwicePanics(t *testing.T) {
	k := newTestSink(t, "")
	k.finalize(false)
	defer func() {
		if recover() == nil {
			t.Error("second finalize did not panic")
		}
	}()
	k.finalize(false)
}
