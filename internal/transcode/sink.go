package transcode

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// SinkOutcome describes how a persistence sink ended.
type SinkOutcome string

const (
	SinkPromoted      SinkOutcome = "promoted"
	SinkDiscarded     SinkOutcome = "discarded"
	SinkPromoteFailed SinkOutcome = "promote_failed"
)

// SinkResult is reported once per sink, when it is finalized.
type SinkResult struct {
	TempPath  string
	FinalPath string
	Bytes     int64
	Outcome   SinkOutcome
	Err       error
}

// sink mirrors every byte handed to the consumer into a temp file and
// promotes it to the final path on a clean finish.
type sink struct {
	tempPath  string
	finalPath string
	f         *os.File
	bw        *bufio.Writer
	written   int64
	broken    error
	done      bool
	log       *zap.Logger
}

func openSink(tempPath, finalPath string, log *zap.Logger) (*sink, error) {
	if err := os.MkdirAll(filepath.Dir(tempPath), 0o755); err != nil {
		return nil, fmt.Errorf("sink temp dir: %w", err)
	}
	f, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("sink create: %w", err)
	}
	return &sink{
		tempPath:  tempPath,
		finalPath: finalPath,
		f:         f,
		bw:        bufio.NewWriterSize(f, 64*1024),
		log:       log,
	}, nil
}

// write never fails the stream; a write error marks the sink broken and
// turns the eventual finalize into a discard.
func (k *sink) write(b []byte) {
	if k.done || k.broken != nil || len(b) == 0 {
		return
	}
	n, err := k.bw.Write(b)
	k.written += int64(n)
	if err != nil {
		k.broken = fmt.Errorf("sink write: %w", err)
		k.log.Warn("persistence sink write failed; artifact will be discarded",
			zap.String("temp", k.tempPath), zap.Error(err))
	}
}

func (k *sink) finalize(success bool) SinkResult {
	if k.done {
		panic("transcode: sink finalized twice")
	}
	k.done = true

	res := SinkResult{TempPath: k.tempPath, FinalPath: k.finalPath, Bytes: k.written}
	err := k.broken
	if ferr := k.bw.Flush(); ferr != nil && err == nil {
		err = fmt.Errorf("sink flush: %w", ferr)
	}
	if cerr := k.f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("sink close: %w", cerr)
	}

	if !success || err != nil {
		_ = os.Remove(k.tempPath)
		res.Outcome = SinkDiscarded
		res.Err = err
		return res
	}

	if rerr := os.Rename(k.tempPath, k.finalPath); rerr != nil {
		_ = os.Remove(k.tempPath)
		res.Outcome = SinkPromoteFailed
		res.Err = fmt.Errorf("sink promote: %w", rerr)
		return res
	}
	res.Outcome = SinkPromoted
	return res
}
