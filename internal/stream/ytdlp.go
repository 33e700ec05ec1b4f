package stream

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	ytdlp "github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"
)

// YTDLPInfo is the subset of yt-dlp's JSON the transcoder needs to open a
// page URI as a direct media URL.
type YTDLPInfo struct {
	Id               string
	Title            string
	Duration         float64
	IsLive           bool
	WebpageUrl       string
	Url              string
	Formats          []string
	RequestedFormats []string
}

// Resolver turns page URIs (YouTube watch links and the like) into direct
// media URLs through yt-dlp.
type Resolver struct {
	cookiesPath string
	poToken     string
	log         *zap.Logger

	installOnce sync.Once
}

func NewResolver(cookiesPath, poToken string, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{cookiesPath: cookiesPath, poToken: poToken, log: log.Named("ytdlp")}
}

// IsPageURI reports whether uri must go through yt-dlp before FFmpeg can
// open it.
func IsPageURI(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be":
		return true
	}
	return false
}

func (r *Resolver) extractorArgs(uri string) string {
	if !strings.Contains(uri, "youtube.com") && !strings.Contains(uri, "youtu.be") {
		return ""
	}
	args := "youtube:player-client=default,mweb"
	if r.poToken != "" {
		args += ";po_token=" + r.poToken
	}
	return args
}

// Info runs yt-dlp -J against uri and maps the first extracted entry.
func (r *Resolver) Info(ctx context.Context, uri string) (*YTDLPInfo, error) {
	r.installOnce.Do(func() {
		if _, err := ytdlp.Install(ctx, nil); err != nil {
			r.log.Warn("yt-dlp install failed; relying on PATH", zap.Error(err))
		}
	})

	cmd := ytdlp.New().
		Format("ba[ext=m4a]/ba[acodec^=opus]/bestaudio/best").
		NoPlaylist().
		NoCheckCertificates().
		DumpJSON()
	if r.cookiesPath != "" {
		cmd = cmd.Cookies(r.cookiesPath)
	}
	if args := r.extractorArgs(uri); args != "" {
		cmd = cmd.ExtractorArgs(args)
	}

	res, err := cmd.Run(ctx, uri)
	if err != nil {
		if strings.Contains(err.Error(), "Sign in to confirm") {
			return nil, fmt.Errorf("yt-dlp run (PO token may be required): %w", err)
		}
		return nil, fmt.Errorf("yt-dlp run: %w", err)
	}
	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("parse yt-dlp json: %w", err)
	}
	for _, ext := range infos {
		if ext == nil {
			continue
		}
		if len(ext.Entries) > 0 && ext.Entries[0] != nil {
			ext = ext.Entries[0]
		}
		return mapInfo(ext), nil
	}
	return nil, fmt.Errorf("parse yt-dlp json: no info returned")
}

// Resolve returns a direct media URL for a page URI.
func (r *Resolver) Resolve(ctx context.Context, uri string) (string, error) {
	info, err := r.Info(ctx, uri)
	if err != nil {
		return "", err
	}
	if info.IsLive {
		return "", fmt.Errorf("%s is a live stream", uri)
	}
	media := YtdlpAudioURL(info)
	if media == "" {
		return "", fmt.Errorf("yt-dlp returned no playable url for %s", uri)
	}
	r.log.Debug("resolved", zap.String("uri", uri), zap.String("title", info.Title), zap.Float64("duration", info.Duration))
	return media, nil
}

func mapInfo(ext *ytdlp.ExtractedInfo) *YTDLPInfo {
	out := &YTDLPInfo{
		Id:         ext.ID,
		Title:      s(ext.Title),
		Duration:   f(ext.Duration),
		IsLive:     b(ext.IsLive),
		WebpageUrl: s(ext.WebpageURL),
		Url:        s(ext.URL),
	}
	for _, fm := range ext.RequestedFormats {
		if fm != nil && fm.URL != "" {
			out.RequestedFormats = append(out.RequestedFormats, fm.URL)
		}
	}
	for _, fm := range ext.Formats {
		if fm != nil && fm.URL != "" {
			out.Formats = append(out.Formats, fm.URL)
		}
	}
	return out
}

func s(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
func f(ptr *float64) float64 {
	if ptr == nil {
		return 0
	}
	return *ptr
}
func b(ptr *bool) bool {
	if ptr == nil {
		return false
	}
	return *ptr
}

// YtdlpAudioURL returns the best playable URL.
// Preferred order: requested_formats, top-level url, then formats[].
func YtdlpAudioURL(info *YTDLPInfo) string {
	for _, u := range info.RequestedFormats {
		if strings.HasPrefix(u, "http") {
			return u
		}
	}
	if strings.HasPrefix(info.Url, "http") {
		return info.Url
	}
	for _, u := range info.Formats {
		if strings.HasPrefix(u, "http") {
			return u
		}
	}
	return ""
}
