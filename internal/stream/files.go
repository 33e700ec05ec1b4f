package stream

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/sonroyaalmerol/kumastream/internal/transcode"
)

// mp3ReadBytes is how much PCM one MP3FileDecoder.Fill reads: 1152 stereo
// 16-bit samples, one MPEG-1 layer III frame.
const mp3ReadBytes = 1152 * 4

// FileInput is a local audio file decoded in-process, without FFmpeg.
type FileInput struct {
	path string
	ext  string
	f    *os.File
}

func OpenFileInput(path string) (*FileInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &FileInput{path: path, ext: strings.ToLower(filepath.Ext(path)), f: f}, nil
}

func (in *FileInput) URI() string { return in.path }

func (in *FileInput) Close() error {
	if in.f == nil {
		return nil
	}
	err := in.f.Close()
	in.f = nil
	return err
}

// MP3FileDecoder decodes MP3 with go-mp3, which always yields 16-bit
// little-endian stereo.
type MP3FileDecoder struct {
	dec *mp3.Decoder
	buf []byte
}

func NewMP3FileDecoder(in *FileInput) (*MP3FileDecoder, error) {
	dec, err := mp3.NewDecoder(in.f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	return &MP3FileDecoder{dec: dec, buf: make([]byte, mp3ReadBytes)}, nil
}

func (d *MP3FileDecoder) Duration() float64 {
	n := d.dec.Length()
	if n <= 0 || d.dec.SampleRate() <= 0 {
		return 0
	}
	return float64(n) / 4 / float64(d.dec.SampleRate())
}

func (d *MP3FileDecoder) Fill(ctx context.Context, dst *transcode.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := io.ReadFull(d.dec, d.buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("mp3 decode error: %w", err)
	}
	n -= n % 4
	if n == 0 {
		return io.EOF
	}
	dst.SampleRate = d.dec.SampleRate()
	dst.Channels = 2
	dst.Samples = decodeInt16LE(dst.Samples[:0], d.buf[:n])
	return nil
}

func (d *MP3FileDecoder) Close() error { return nil }

// FLACFileDecoder decodes FLAC with mewkiz/flac, one FLAC frame per Fill.
type FLACFileDecoder struct {
	stream   *flac.Stream
	channels int
	bitDepth int
	rate     int
	nSamples uint64
}

func NewFLACFileDecoder(in *FileInput) (*FLACFileDecoder, error) {
	stream, err := flac.New(in.f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}
	info := stream.Info
	return &FLACFileDecoder{
		stream:   stream,
		channels: int(info.NChannels),
		bitDepth: int(info.BitsPerSample),
		rate:     int(info.SampleRate),
		nSamples: info.NSamples,
	}, nil
}

func (d *FLACFileDecoder) Duration() float64 {
	if d.nSamples == 0 || d.rate == 0 {
		return 0
	}
	return float64(d.nSamples) / float64(d.rate)
}

func (d *FLACFileDecoder) Fill(ctx context.Context, dst *transcode.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := d.stream.ParseNext()
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("flac decode error: %w", err)
	}

	channels := len(frame.Subframes)
	if channels > d.channels && d.channels > 0 {
		channels = d.channels
	}
	scale := flacScale(d.bitDepth)
	block := int(frame.BlockSize)
	out := dst.Samples[:0]
	for i := 0; i < block; i++ {
		for ch := 0; ch < channels; ch++ {
			out = append(out, float32(frame.Subframes[ch].Samples[i])*scale)
		}
	}
	dst.SampleRate = d.rate
	dst.Channels = channels
	dst.Samples = out
	return nil
}

// Close is a no-op; the file belongs to the FileInput.
func (d *FLACFileDecoder) Close() error { return nil }

// flacScale maps signed integer samples of the given bit depth to [-1, 1).
func flacScale(bitDepth int) float32 {
	if bitDepth <= 0 || bitDepth > 32 {
		bitDepth = 16
	}
	return 1 / float32(uint64(1)<<(bitDepth-1))
}

func decodeInt16LE(dst []float32, raw []byte) []float32 {
	for i := 0; i+1 < len(raw); i += 2 {
		v := int16(binary.LittleEndian.Uint16(raw[i:]))
		dst = append(dst, float32(v)/32768.0)
	}
	return dst
}
