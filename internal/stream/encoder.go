package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/asticode/go-astiav"
)

const defaultMP3FrameSize = 1152

// MP3Encoder wraps libmp3lame through FFmpeg. It accepts interleaved stereo
// float32 PCM of any length and buffers it into the codec's fixed frame size.
type MP3Encoder struct {
	cc         *astiav.CodecContext
	frame      *astiav.Frame
	packet     *astiav.Packet
	sampleRate int
	frameSize  int // samples per channel per codec frame

	pending []float32 // interleaved stereo not yet sent to the codec
	planar  []byte
	pts     int64
}

// NewMP3Encoder opens a CBR MP3 encoder at sampleRate (input = output rate).
func NewMP3Encoder(sampleRate, bitrateKbps int) (*MP3Encoder, error) {
	codec := astiav.FindEncoderByName("libmp3lame")
	if codec == nil {
		codec = astiav.FindEncoder(astiav.CodecIDMp3)
	}
	if codec == nil {
		return nil, errors.New("mp3 encoder not found (check ffmpeg build for libmp3lame)")
	}

	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, errors.New("failed to allocate codec context for mp3")
	}
	cc.SetSampleRate(sampleRate)
	cc.SetChannelLayout(astiav.ChannelLayoutStereo)
	cc.SetSampleFormat(astiav.SampleFormatFltp)
	cc.SetBitRate(int64(bitrateKbps) * 1000)
	cc.SetTimeBase(astiav.NewRational(1, sampleRate))

	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return nil, fmt.Errorf("failed to open mp3 encoder (sr=%d kbps=%d): %w", sampleRate, bitrateKbps, err)
	}

	frameSize := cc.FrameSize()
	if frameSize <= 0 {
		frameSize = defaultMP3FrameSize
	}

	frame := astiav.AllocFrame()
	if frame == nil {
		cc.Free()
		return nil, errors.New("failed to allocate audio frame for encoder")
	}
	frame.SetSampleRate(sampleRate)
	frame.SetChannelLayout(astiav.ChannelLayoutStereo)
	frame.SetSampleFormat(astiav.SampleFormatFltp)
	frame.SetNbSamples(frameSize)
	if err := frame.AllocBuffer(0); err != nil {
		frame.Free()
		cc.Free()
		return nil, fmt.Errorf("failed to allocate frame buffer: %w", err)
	}

	pkt := astiav.AllocPacket()
	if pkt == nil {
		frame.Free()
		cc.Free()
		return nil, errors.New("failed to allocate packet for encoder")
	}

	return &MP3Encoder{
		cc:         cc,
		frame:      frame,
		packet:     pkt,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		planar:     make([]byte, frameSize*2*4),
	}, nil
}

func (e *MP3Encoder) Close() error {
	if e.packet != nil {
		e.packet.Free()
		e.packet = nil
	}
	if e.frame != nil {
		e.frame.Free()
		e.frame = nil
	}
	if e.cc != nil {
		e.cc.Free()
		e.cc = nil
	}
	return nil
}

// Encode queues stereo and writes every packet the codec produces into out.
func (e *MP3Encoder) Encode(stereo []float32, out []byte) (int, error) {
	e.pending = append(e.pending, stereo...)
	step := e.frameSize * 2
	n := 0
	consumed := 0
	for len(e.pending)-consumed >= step {
		if err := e.sendFrame(e.pending[consumed : consumed+step]); err != nil {
			return 0, err
		}
		consumed += step
		m, err := e.receive(out[n:])
		if err != nil {
			return 0, err
		}
		n += m
	}
	e.pending = e.pending[:copy(e.pending, e.pending[consumed:])]
	return n, nil
}

// Flush pads the remaining samples to a whole frame, drains the codec and
// writes the tail into out.
func (e *MP3Encoder) Flush(out []byte) (int, error) {
	n := 0
	if len(e.pending) > 0 {
		padded := make([]float32, e.frameSize*2)
		copy(padded, e.pending)
		e.pending = e.pending[:0]
		if err := e.sendFrame(padded); err != nil {
			return 0, err
		}
		m, err := e.receive(out)
		if err != nil {
			return 0, err
		}
		n += m
	}

	if err := e.cc.SendFrame(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return 0, fmt.Errorf("failed to send flush frame: %w", err)
	}
	m, err := e.receive(out[n:])
	if err != nil {
		return 0, err
	}
	return n + m, nil
}

func (e *MP3Encoder) sendFrame(interleaved []float32) error {
	if err := e.frame.MakeWritable(); err != nil {
		return fmt.Errorf("frame not writable: %w", err)
	}
	deinterleave(e.planar, interleaved, e.frameSize)
	if err := e.frame.Data().SetBytes(e.planar, 1); err != nil {
		return fmt.Errorf("failed to set frame data bytes: %w", err)
	}
	e.frame.SetPts(e.pts)
	e.pts += int64(e.frameSize)
	if err := e.cc.SendFrame(e.frame); err != nil {
		return fmt.Errorf("failed to send frame to encoder: %w", err)
	}
	return nil
}

func (e *MP3Encoder) receive(out []byte) (int, error) {
	n := 0
	for {
		e.packet.Unref()
		if err := e.cc.ReceivePacket(e.packet); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return n, nil
			}
			return 0, fmt.Errorf("failed to receive mp3 packet: %w", err)
		}
		data := e.packet.Data()
		if n+len(data) > len(out) {
			return 0, fmt.Errorf("output buffer too small: need %d, have %d", n+len(data), len(out))
		}
		n += copy(out[n:], data)
	}
}

// deinterleave writes frameSize stereo samples from src into dst as two
// little-endian float32 planes, left then right. Missing samples are zero.
func deinterleave(dst []byte, src []float32, frameSize int) {
	right := frameSize * 4
	for i := 0; i < frameSize; i++ {
		var l, r float32
		if 2*i+1 < len(src) {
			l, r = src[2*i], src[2*i+1]
		}
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(l))
		binary.LittleEndian.PutUint32(dst[right+i*4:], math.Float32bits(r))
	}
}
