package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// pcmSource wraps a Decoder and the single Frame it fills. Exhaustion is
// sticky: once the decoder reports io.EOF it is never asked again.
type pcmSource struct {
	dec   Decoder
	frame Frame
	done  bool
}

func newPCMSource(dec Decoder) *pcmSource {
	return &pcmSource{dec: dec}
}

// fetch returns the next frame, io.EOF when exhausted, or a wrapped
// ErrSourceFailure. The returned frame is only valid until the next call.
func (p *pcmSource) fetch(ctx context.Context) (*Frame, error) {
	if p.done {
		return nil, io.EOF
	}
	for {
		err := p.dec.Fill(ctx, &p.frame)
		if errors.Is(err, io.EOF) {
			p.done = true
			return nil, io.EOF
		}
		if err != nil {
			p.done = true
			return nil, fmt.Errorf("%w: %w", ErrSourceFailure, err)
		}
		if p.frame.SampleRate <= 0 || p.frame.Channels <= 0 {
			p.done = true
			return nil, fmt.Errorf("%w: invalid frame (rate=%d channels=%d)",
				ErrSourceFailure, p.frame.SampleRate, p.frame.Channels)
		}
		if p.frame.SampleCount() == 0 {
			continue
		}
		return &p.frame, nil
	}
}

func (p *pcmSource) close() error {
	p.frame.Samples = nil
	return p.dec.Close()
}
