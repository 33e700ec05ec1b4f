package transcode

import (
	"context"
	"errors"
)

const (
	// ContentType is the MIME type of everything a Stream produces.
	ContentType = "audio/mpeg"

	// drainBufferSize is the scratch size used by the detached drain task.
	drainBufferSize = 8192
)

var (
	ErrSourceUnavailable = errors.New("transcode: source unavailable")
	ErrSourceFailure     = errors.New("transcode: source failed")
	ErrEncodeFailure     = errors.New("transcode: encode failed")
	ErrIncompleteDetach  = errors.New("transcode: detached stream did not reach eof within tolerance")
	ErrNotSeekable       = errors.New("transcode: stream is not seekable")
	ErrClosed            = errors.New("transcode: stream closed")
)

// Frame is one block of decoded PCM. Samples are interleaved float32 in
// [-1, 1]; a decoder reuses the same Frame across calls.
type Frame struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// SampleCount returns the number of samples per channel.
func (f *Frame) SampleCount() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Samples) / f.Channels
}

// Input is the raw byte source a decoder reads from (file, network, ...).
type Input interface {
	URI() string
	Close() error
}

// Decoder turns an Input into PCM frames.
type Decoder interface {
	// Fill decodes the next block into dst, reusing dst.Samples where
	// possible. It returns io.EOF once the input is exhausted. Fill must
	// return promptly with ctx.Err() once ctx is cancelled.
	Fill(ctx context.Context, dst *Frame) error
	// Duration is the decoder's estimate of total play time in seconds, or
	// 0 if unknown.
	Duration() float64
	Close() error
}

// Codec compresses interleaved stereo float32 PCM.
type Codec interface {
	// Encode consumes len(stereo)/2 stereo samples and writes any compressed
	// bytes that became available into out, returning how many were
	// written. Zero is a valid result.
	Encode(stereo []float32, out []byte) (int, error)
	// Flush writes the trailing bytes once no more input remains.
	Flush(out []byte) (int, error)
	Close() error
}

// Environment opens the external collaborators a Stream needs.
type Environment interface {
	OpenInput(ctx context.Context, uri string) (Input, error)
	OpenDecoder(ctx context.Context, in Input) (Decoder, error)
	NewCodec(sampleRate, bitrateKbps int) (Codec, error)
}

// State is the controller's position in its lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateStreaming
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
