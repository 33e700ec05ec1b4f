package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
)

type fakeInput struct {
	uri    string
	closed atomic.Int32
}

func (i *fakeInput) URI() string  { return i.uri }
func (i *fakeInput) Close() error { i.closed.Add(1); return nil }

// fakeDecoder plays a scripted list of frames. With infinite set it keeps
// producing frames forever; with block set every Fill waits for ctx.
type fakeDecoder struct {
	rate     int
	channels int
	frames   [][]float32
	infinite bool
	block    bool
	failAt   int // 1-based Fill call that fails, 0 = never
	duration float64

	fills  atomic.Int32
	closed atomic.Int32
	next   int
}

func (d *fakeDecoder) Fill(ctx context.Context, dst *Frame) error {
	call := int(d.fills.Add(1))
	if d.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.failAt > 0 && call == d.failAt {
		return errors.New("network reset")
	}
	var src []float32
	switch {
	case d.next < len(d.frames):
		src = d.frames[d.next]
	case d.infinite:
		src = toneFrame(d.next, 256, d.channels)
	default:
		return io.EOF
	}
	d.next++
	dst.SampleRate = d.rate
	dst.Channels = d.channels
	dst.Samples = append(dst.Samples[:0], src...)
	return nil
}

func (d *fakeDecoder) Duration() float64 { return d.duration }
func (d *fakeDecoder) Close() error      { d.closed.Add(1); return nil }

// fakeCodec "compresses" each stereo sample pair into one byte and emits
// them in packets of packetSamples pairs, each prefixed with a marker byte,
// so output lags input the way a real codec's does.
type fakeCodec struct {
	packetSamples int
	trailer       int
	failAt        int // 1-based Encode call that fails, 0 = never

	mu       sync.Mutex
	pending  []byte
	encodes  int
	received []float32
	closed   atomic.Int32
}

func (c *fakeCodec) Encode(stereo []float32, out []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encodes++
	if c.failAt > 0 && c.encodes == c.failAt {
		return -1, errors.New("bitstream overflow")
	}
	c.received = append(c.received, stereo...)
	for i := 0; i+1 < len(stereo); i += 2 {
		c.pending = append(c.pending, quantize(stereo[i], stereo[i+1]))
	}
	n := 0
	for len(c.pending) >= c.packetSamples {
		if n+1+c.packetSamples > len(out) {
			return 0, fmt.Errorf("output too small: %d", len(out))
		}
		out[n] = 0xFF
		n += 1 + copy(out[n+1:], c.pending[:c.packetSamples])
		c.pending = c.pending[c.packetSamples:]
	}
	return n, nil
}

func (c *fakeCodec) Flush(out []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := copy(out, c.pending)
	c.pending = nil
	for i := 0; i < c.trailer; i++ {
		out[n] = byte(0xA0 + i%16)
		n++
	}
	return n, nil
}

func (c *fakeCodec) Close() error { c.closed.Add(1); return nil }

func quantize(l, r float32) byte {
	return byte(int(math.Round(float64(l)*60)) + int(math.Round(float64(r)*60)) + 128)
}

type codecCall struct {
	sampleRate int
	kbps       int
}

type fakeEnv struct {
	input     *fakeInput
	dec       *fakeDecoder
	codec     *fakeCodec
	inputErr  error
	decErr    error
	codecErr  error
	mu        sync.Mutex
	codecCall []codecCall
}

func (e *fakeEnv) OpenInput(ctx context.Context, uri string) (Input, error) {
	if e.inputErr != nil {
		return nil, e.inputErr
	}
	if e.input == nil {
		e.input = &fakeInput{uri: uri}
	}
	return e.input, nil
}

func (e *fakeEnv) OpenDecoder(ctx context.Context, in Input) (Decoder, error) {
	if e.decErr != nil {
		return nil, e.decErr
	}
	return e.dec, nil
}

func (e *fakeEnv) NewCodec(sampleRate, kbps int) (Codec, error) {
	e.mu.Lock()
	e.codecCall = append(e.codecCall, codecCall{sampleRate, kbps})
	e.mu.Unlock()
	if e.codecErr != nil {
		return nil, e.codecErr
	}
	return e.codec, nil
}

func toneFrame(idx, samples, channels int) []float32 {
	out := make([]float32, samples*channels)
	for i := 0; i < samples; i++ {
		v := float32(math.Sin(float64(idx*samples+i) * 0.05))
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = v * float32(ch+1) / float32(channels+1)
		}
	}
	return out
}

// toneFrames builds count frames whose sizes vary so chunk boundaries never
// line up with read sizes.
func toneFrames(count, channels int) [][]float32 {
	frames := make([][]float32, count)
	for i := range frames {
		frames[i] = toneFrame(i, 200+(i*37)%300, channels)
	}
	return frames
}

func newFakeEnv(frames [][]float32, channels int) *fakeEnv {
	return &fakeEnv{
		dec: &fakeDecoder{
			rate:     44100,
			channels: channels,
			frames:   frames,
			duration: 12.5,
		},
		codec: &fakeCodec{packetSamples: 500, trailer: 40},
	}
}

// readAll pulls the stream to the end with reads of the given sizes, cycling
// through them.
func readAll(st *Stream, sizes ...int) ([]byte, error) {
	var out []byte
	for i := 0; ; i++ {
		buf := make([]byte, sizes[i%len(sizes)])
		n, err := st.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if i > 1_000_000 {
			return out, errors.New("stream never ended")
		}
	}
}
