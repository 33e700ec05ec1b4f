package stream

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sonroyaalmerol/kumastream/internal/transcode"
	"github.com/sonroyaalmerol/kumastream/internal/utils"
	"go.uber.org/zap"
)

type inputKind int

const (
	kindFFmpeg inputKind = iota
	kindPage
	kindMP3File
	kindFLACFile
)

// classify picks how uri is opened. Only existing local files take the
// pure-Go path; anything FFmpeg understands (URLs, HLS, other containers)
// goes through FFmpeg.
func classify(uri string) inputKind {
	if IsPageURI(uri) {
		return kindPage
	}
	path := uri
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return kindFFmpeg
		}
		path = u.Path
	} else if strings.Contains(uri, "://") {
		return kindFFmpeg
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return kindMP3File
	case ".flac":
		return kindFLACFile
	}
	return kindFFmpeg
}

func localPath(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		return u.Path
	}
	return uri
}

func isNetworkURI(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "hls", "rtmp", "rtsp":
		return true
	}
	return false
}

// Environment opens inputs, decoders and MP3 codecs for transcode streams.
type Environment struct {
	resolver *Resolver
	log      *zap.Logger
}

func NewEnvironment(resolver *Resolver, log *zap.Logger) *Environment {
	if log == nil {
		log = zap.NewNop()
	}
	return &Environment{resolver: resolver, log: log}
}

func (e *Environment) OpenInput(ctx context.Context, uri string) (transcode.Input, error) {
	switch classify(uri) {
	case kindPage:
		if e.resolver == nil {
			return nil, fmt.Errorf("no resolver configured for %s", uri)
		}
		media, err := e.resolver.Resolve(ctx, uri)
		if err != nil {
			return nil, err
		}
		in, err := OpenFFmpegInput(ctx, uri, media, map[string]string{"User-Agent": utils.RandomUserAgent()})
		if err != nil {
			return nil, err
		}
		return in, nil
	case kindMP3File, kindFLACFile:
		path := localPath(uri)
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		in, err := OpenFileInput(path)
		if err != nil {
			return nil, err
		}
		return in, nil
	}
	in, err := OpenFFmpegInput(ctx, uri, uri, nil)
	if err != nil {
		return nil, err
	}
	return in, nil
}

func (e *Environment) OpenDecoder(ctx context.Context, in transcode.Input) (transcode.Decoder, error) {
	var (
		dec transcode.Decoder
		err error
	)
	switch v := in.(type) {
	case *FFmpegInput:
		dec, err = NewFFmpegDecoder(v)
	case *FileInput:
		switch v.ext {
		case ".mp3":
			dec, err = NewMP3FileDecoder(v)
		case ".flac":
			dec, err = NewFLACFileDecoder(v)
		default:
			err = fmt.Errorf("no decoder for %q files", v.ext)
		}
	default:
		err = fmt.Errorf("unsupported input type %T", in)
	}
	if err != nil {
		return nil, err
	}
	e.log.Debug("decoder opened", zap.String("uri", in.URI()), zap.Float64("duration", dec.Duration()))
	return dec, nil
}

func (e *Environment) NewCodec(sampleRate, bitrateKbps int) (transcode.Codec, error) {
	enc, err := NewMP3Encoder(sampleRate, bitrateKbps)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

var _ transcode.Environment = (*Environment)(nil)
