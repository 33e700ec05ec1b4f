package stream

import (
	"context"
	"path/filepath"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want inputKind
	}{
		{"youtube watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", kindPage},
		{"youtube short link", "https://youtu.be/dQw4w9WgXcQ", kindPage},
		{"youtube music", "https://music.youtube.com/watch?v=abc", kindPage},
		{"direct http mp3", "https://cdn.example.com/a.mp3", kindFFmpeg},
		{"hls playlist", "https://cdn.example.com/live.m3u8", kindFFmpeg},
		{"local mp3", "/music/a.MP3", kindMP3File},
		{"local flac", "relative/b.flac", kindFLACFile},
		{"file url flac", "file:///music/c.flac", kindFLACFile},
		{"local ogg", "/music/d.ogg", kindFFmpeg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.uri); got != tt.want {
				t.Errorf("classify(%q) = %d, want %d", tt.uri, got, tt.want)
			}
		})
	}
}

func TestIsNetworkURI(t *testing.T) {
	tests := []struct {
		target string
		want   bool
	}{
		{"https://example.com/a.mp3", true},
		{"http://example.com/a", true},
		{"rtmp://example.com/live", true},
		{"/tmp/a.wav", false},
		{"file:///tmp/a.wav", false},
	}
	for _, tt := range tests {
		if got := isNetworkURI(tt.target); got != tt.want {
			t.Errorf("isNetworkURI(%q) = %v, want %v", tt.target, got, tt.want)
		}
	}
}

func TestEnvironment_MissingLocalFile(t *testing.T) {
	env := NewEnvironment(nil, nil)
	_, err := env.OpenInput(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"))
	if err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestEnvironment_PageWithoutResolver(t *testing.T) {
	env := NewEnvironment(nil, nil)
	if _, err := env.OpenInput(context.Background(), "https://youtu.be/abc"); err == nil {
		t.Fatal("expected error without a resolver")
	}
}

func TestEnvironment_FileInputDecoderByExtension(t *testing.T) {
	env := NewEnvironment(nil, nil)
	_, err := env.OpenDecoder(context.Background(), &FileInput{path: "/x.wav", ext: ".wav"})
	if err == nil {
		t.Fatal("expected error for an unsupported extension")
	}
}
