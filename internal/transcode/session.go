package transcode

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"go.uber.org/zap"
)

// session is the mutable state of one transcode. Exactly one goroutine owns
// it at a time: the consumer until Close, the drain task afterwards.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	env     Environment
	bitrate int

	input  Input
	source *pcmSource
	enc    *encoderSession
	mix    mixer
	spill  spillover
	sink   *sink
	onSink func(SinkResult)

	state       State
	position    int64
	eof         bool
	err         error
	length      int64
	tolerance   int64
	interrupted atomic.Bool
	disposed    bool
}

// read implements the pull contract for a buffer of len(p).
func (s *session) read(p []byte) (int, error) {
	if s.disposed {
		return 0, ErrClosed
	}
	if s.eof {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	if s.source == nil {
		return 0, ErrSourceUnavailable
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := s.fill(p)
	if err != nil {
		s.fail(err)
		return 0, err
	}
	s.position += int64(n)
	if n == 0 && s.eof {
		return 0, io.EOF
	}
	return n, nil
}

func (s *session) fill(p []byte) (int, error) {
	written := 0
	if s.spill.avail() > 0 {
		written = s.spill.take(p)
		s.mirror(p[:written])
		if written == len(p) {
			return written, nil
		}
	}

	if s.state == StateFinalizing {
		// The flush tail has now been fully delivered.
		s.finish()
		return written, nil
	}

	for written < len(p) {
		frame, err := s.source.fetch(s.ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}

		if s.enc == nil {
			enc, err := newEncoderSession(s.env, frame.SampleRate, s.bitrate)
			if err != nil {
				return 0, err
			}
			s.enc = enc
			s.state = StateStreaming
			s.log.Debug("encoder initialized",
				zap.Int("sampleRate", frame.SampleRate),
				zap.Int("channels", frame.Channels),
				zap.Int("kbps", s.bitrate))
		}

		chunk, err := s.enc.encode(s.mix.mix(frame))
		if err != nil {
			return 0, err
		}
		n := s.deliver(p[written:], chunk)
		written += n
		if n < len(chunk) {
			s.spill.store(chunk[n:])
			return written, nil
		}
	}

	if written > 0 {
		return written, nil
	}
	return s.flush(p)
}

// flush runs once, after the source is exhausted and nothing was written by
// the current call.
func (s *session) flush(p []byte) (int, error) {
	s.state = StateFinalizing
	if s.enc == nil {
		s.finish()
		return 0, nil
	}
	tail, err := s.enc.flush()
	if err != nil {
		return 0, err
	}
	n := s.deliver(p, tail)
	if n < len(tail) {
		s.spill.store(tail[n:])
		return n, nil
	}
	s.finish()
	return n, nil
}

func (s *session) deliver(dst, chunk []byte) int {
	n := copy(dst, chunk)
	s.mirror(chunk[:n])
	return n
}

func (s *session) mirror(b []byte) {
	if s.sink != nil {
		s.sink.write(b)
	}
}

// finish is the clean end of stream.
func (s *session) finish() {
	s.finalizeSink(true)
	s.eof = true
	s.state = StateClosed
	s.log.Debug("stream finished", zap.Int64("bytes", s.position))
}

// fail is the fatal end of stream.
func (s *session) fail(err error) {
	s.err = err
	s.eof = true
	s.state = StateClosed
	s.finalizeSink(false)
	s.log.Warn("stream failed", zap.Int64("bytes", s.position), zap.Error(err))
}

func (s *session) finalizeSink(success bool) {
	if s.sink == nil {
		return
	}
	k := s.sink
	s.sink = nil
	res := k.finalize(success)
	switch res.Outcome {
	case SinkPromoted:
		s.log.Info("artifact promoted", zap.String("path", res.FinalPath), zap.Int64("bytes", res.Bytes))
	case SinkPromoteFailed:
		s.log.Warn("artifact promotion failed", zap.String("path", res.FinalPath), zap.Error(res.Err))
	default:
		s.log.Debug("artifact discarded", zap.String("temp", res.TempPath), zap.Error(res.Err))
	}
	if s.onSink != nil {
		s.onSink(res)
	}
}

// drain runs on its own goroutine after Close and owns s from then on.
func (s *session) drain() {
	buf := make([]byte, drainBufferSize)
	var drained int64
	for !s.eof && drained < s.tolerance {
		n, err := s.read(buf)
		drained += int64(n)
		if n == 0 || err != nil {
			break
		}
	}
	if !s.eof {
		s.log.Debug("detached stream abandoned",
			zap.Int64("drained", drained),
			zap.Int64("tolerance", s.tolerance),
			zap.Error(ErrIncompleteDetach))
		s.finalizeSink(false)
	}
	s.dispose()
}

// dispose releases everything. Calling it again is a no-op.
func (s *session) dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	s.finalizeSink(false)
	s.cancel()

	if s.source != nil {
		if err := s.source.close(); err != nil {
			s.log.Debug("decoder close", zap.Error(err))
		}
		s.source = nil
	}
	if s.input != nil {
		if err := s.input.Close(); err != nil {
			s.log.Debug("input close", zap.Error(err))
		}
		s.input = nil
	}
	if s.enc != nil {
		if err := s.enc.close(); err != nil {
			s.log.Debug("codec close", zap.Error(err))
		}
		s.enc = nil
	}
	s.spill = spillover{}
	s.mix = mixer{}
}
