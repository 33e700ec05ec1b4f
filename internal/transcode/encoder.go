package transcode

import (
	"fmt"
	"math"
)

// RequiredOutputBytes is the worst-case compressed size for one encode call
// of the given number of samples per channel.
func RequiredOutputBytes(samples int) int {
	return int(math.Ceil(1.25*float64(samples) + 7200))
}

// encoderSession owns a Codec and its output scratch buffer. The slice
// returned by encode/flush aliases the scratch buffer and is only valid
// until the next call.
type encoderSession struct {
	codec      Codec
	sampleRate int
	bitrate    int
	out        []byte
}

func newEncoderSession(env Environment, sampleRate, bitrateKbps int) (*encoderSession, error) {
	codec, err := env.NewCodec(sampleRate, bitrateKbps)
	if err != nil {
		return nil, fmt.Errorf("%w: init codec (rate=%d kbps=%d): %w", ErrEncodeFailure, sampleRate, bitrateKbps, err)
	}
	return &encoderSession{
		codec:      codec,
		sampleRate: sampleRate,
		bitrate:    bitrateKbps,
	}, nil
}

func (e *encoderSession) grow(n int) []byte {
	if cap(e.out) < n {
		e.out = make([]byte, n)
	}
	return e.out[:n]
}

func (e *encoderSession) encode(stereo []float32) ([]byte, error) {
	buf := e.grow(RequiredOutputBytes(len(stereo) / 2))
	n, err := e.codec.Encode(stereo, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailure, err)
	}
	if n < 0 || n > len(buf) {
		return nil, fmt.Errorf("%w: codec returned %d (capacity %d)", ErrEncodeFailure, n, len(buf))
	}
	return buf[:n], nil
}

func (e *encoderSession) flush() ([]byte, error) {
	buf := e.grow(RequiredOutputBytes(0))
	n, err := e.codec.Flush(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: flush: %w", ErrEncodeFailure, err)
	}
	if n < 0 || n > len(buf) {
		return nil, fmt.Errorf("%w: flush returned %d (capacity %d)", ErrEncodeFailure, n, len(buf))
	}
	return buf[:n], nil
}

func (e *encoderSession) close() error {
	e.out = nil
	return e.codec.Close()
}
