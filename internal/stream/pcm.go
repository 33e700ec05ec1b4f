package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/asticode/go-astiav"
	"github.com/sonroyaalmerol/kumastream/internal/transcode"
	"github.com/sonroyaalmerol/kumastream/internal/utils"
)

// FFmpegInput is an opened FFmpeg demuxer. Its I/O is interruptible: once
// the context passed to OpenFFmpegInput is done, any blocking network read
// inside FFmpeg returns.
type FFmpegInput struct {
	uri  string
	fc   *astiav.FormatContext
	ii   *astiav.IOInterrupter
	stop func() bool
}

// OpenFFmpegInput opens target (a URL or path) and reports uri as its
// identity. headers are sent for http(s) targets.
func OpenFFmpegInput(ctx context.Context, uri, target string, headers map[string]string) (*FFmpegInput, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("alloc format context")
	}
	ii := astiav.NewIOInterrupter()
	fc.SetIOInterrupter(ii)
	stop := context.AfterFunc(ctx, ii.Interrupt)

	dict := astiav.NewDictionary()
	defer dict.Free()
	if isNetworkURI(target) {
		_ = dict.Set("reconnect", "1", 0)
		_ = dict.Set("reconnect_streamed", "1", 0)
		_ = dict.Set("reconnect_delay_max", "5", 0)
		if h := utils.BuildFFmpegHeaders(headers); h != "" {
			_ = dict.Set("headers", h, 0)
		}
	}

	if err := fc.OpenInput(target, nil, dict); err != nil {
		stop()
		fc.Free()
		ii.Free()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("open input: %w", err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		stop()
		fc.CloseInput()
		fc.Free()
		ii.Free()
		return nil, fmt.Errorf("find stream info: %w", err)
	}
	return &FFmpegInput{uri: uri, fc: fc, ii: ii, stop: stop}, nil
}

func (in *FFmpegInput) URI() string { return in.uri }

// Duration is the container duration in seconds, 0 when unknown.
func (in *FFmpegInput) Duration() float64 {
	d := in.fc.Duration()
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(astiav.TimeBase)
}

func (in *FFmpegInput) Close() error {
	if in.fc == nil {
		return nil
	}
	in.stop()
	in.fc.CloseInput()
	in.fc.Free()
	in.ii.Free()
	in.fc = nil
	return nil
}

// FFmpegDecoder pulls packets from an FFmpegInput on demand and converts
// each decoded frame to interleaved float32 at the native rate and channel
// count.
type FFmpegDecoder struct {
	in       *FFmpegInput
	stream   *astiav.Stream
	decCtx   *astiav.CodecContext
	swr      *astiav.SoftwareResampleContext
	packet   *astiav.Packet
	srcFrame *astiav.Frame
	dstFrame *astiav.Frame
	draining bool
	duration float64
}

func NewFFmpegDecoder(in *FFmpegInput) (*FFmpegDecoder, error) {
	st, codec, err := in.fc.FindBestStream(astiav.MediaTypeAudio, -1, -1)
	if err != nil || st == nil || codec == nil {
		if err != nil {
			return nil, fmt.Errorf("find best audio stream: %w", err)
		}
		return nil, errors.New("no audio stream found")
	}

	decCtx := astiav.AllocCodecContext(codec)
	if decCtx == nil {
		return nil, errors.New("alloc codec context")
	}
	if err := decCtx.FromCodecParameters(st.CodecParameters()); err != nil {
		decCtx.Free()
		return nil, fmt.Errorf("codec from params: %w", err)
	}
	decCtx.SetTimeBase(st.TimeBase())
	if err := decCtx.Open(codec, nil); err != nil {
		decCtx.Free()
		return nil, fmt.Errorf("open decoder: %w", err)
	}

	d := &FFmpegDecoder{
		in:       in,
		stream:   st,
		decCtx:   decCtx,
		swr:      astiav.AllocSoftwareResampleContext(),
		packet:   astiav.AllocPacket(),
		srcFrame: astiav.AllocFrame(),
		dstFrame: astiav.AllocFrame(),
		duration: in.Duration(),
	}
	if d.swr == nil || d.packet == nil || d.srcFrame == nil || d.dstFrame == nil {
		_ = d.Close()
		return nil, errors.New("alloc decoder buffers")
	}
	return d, nil
}

func (d *FFmpegDecoder) Duration() float64 { return d.duration }

// Fill decodes the next frame into dst. It returns io.EOF once the input
// and the decoder are exhausted, and ctx.Err() if ctx ends mid-read.
func (d *FFmpegDecoder) Fill(ctx context.Context, dst *transcode.Frame) error {
	for {
		d.srcFrame.Unref()
		err := d.decCtx.ReceiveFrame(d.srcFrame)
		if err == nil {
			return d.convert(dst)
		}
		if errors.Is(err, astiav.ErrEof) {
			return io.EOF
		}
		if !errors.Is(err, astiav.ErrEagain) {
			return fmt.Errorf("receive frame: %w", err)
		}
		if d.draining {
			return io.EOF
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		d.packet.Unref()
		if err := d.in.fc.ReadFrame(d.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				d.draining = true
				if err := d.decCtx.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
					return fmt.Errorf("flush decoder: %w", err)
				}
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, astiav.ErrEagain) {
				continue
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if d.packet.StreamIndex() != d.stream.Index() {
			continue
		}
		if err := d.decCtx.SendPacket(d.packet); err != nil && !errors.Is(err, astiav.ErrEagain) {
			return fmt.Errorf("send packet: %w", err)
		}
	}
}

func (d *FFmpegDecoder) convert(dst *transcode.Frame) error {
	src := d.srcFrame
	layout := src.ChannelLayout()
	if !layout.Valid() || layout.Channels() == 0 {
		layout = d.decCtx.ChannelLayout()
	}
	channels := layout.Channels()
	if channels == 0 {
		return errors.New("decoded frame has no channel layout")
	}

	d.dstFrame.Unref()
	d.dstFrame.SetChannelLayout(layout)
	d.dstFrame.SetSampleRate(src.SampleRate())
	d.dstFrame.SetSampleFormat(astiav.SampleFormatFlt)
	d.dstFrame.SetNbSamples(src.NbSamples())
	if err := d.dstFrame.AllocBuffer(0); err != nil {
		return fmt.Errorf("dst alloc buffer: %w", err)
	}
	if err := d.swr.ConvertFrame(src, d.dstFrame); err != nil {
		return fmt.Errorf("swr convert: %w", err)
	}
	raw, err := d.dstFrame.Data().Bytes(1)
	if err != nil {
		return fmt.Errorf("dst bytes: %w", err)
	}

	dst.SampleRate = src.SampleRate()
	dst.Channels = channels
	dst.Samples = decodeFloat32LE(dst.Samples[:0], raw, d.dstFrame.NbSamples()*channels)
	return nil
}

func (d *FFmpegDecoder) Close() error {
	if d.srcFrame != nil {
		d.srcFrame.Free()
		d.srcFrame = nil
	}
	if d.dstFrame != nil {
		d.dstFrame.Free()
		d.dstFrame = nil
	}
	if d.packet != nil {
		d.packet.Free()
		d.packet = nil
	}
	if d.swr != nil {
		d.swr.Free()
		d.swr = nil
	}
	if d.decCtx != nil {
		d.decCtx.Free()
		d.decCtx = nil
	}
	return nil
}

// decodeFloat32LE appends up to count little-endian float32 values from raw.
func decodeFloat32LE(dst []float32, raw []byte, count int) []float32 {
	if avail := len(raw) / 4; count > avail {
		count = avail
	}
	for i := 0; i < count; i++ {
		dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
	}
	return dst
}
