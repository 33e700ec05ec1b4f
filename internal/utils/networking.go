package utils

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
)

func RandomUserAgent() string {
	// Target Chrome major versions roughly within last ~6 months
	const minMajor = 134
	const maxMajor = 141

	major := rand.IntN(maxMajor-minMajor+1) + minMajor
	return fmt.Sprintf(
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
		major,
	)
}

var canonicalHeaders = map[string]string{
	"user-agent":      "User-Agent",
	"referer":         "Referer",
	"accept":          "Accept",
	"accept-language": "Accept-Language",
	"origin":          "Origin",
	"connection":      "Connection",
	"cookie":          "Cookie",
	"range":           "Range",
	"authorization":   "Authorization",
}

// CanonicalHeader normalizes a header name to the casing servers expect.
func CanonicalHeader(k string) string {
	k = strings.TrimSpace(k)
	if c, ok := canonicalHeaders[strings.ToLower(k)]; ok {
		return c
	}
	if k == "" {
		return k
	}
	return strings.ToUpper(k[:1]) + k[1:]
}

// BuildFFmpegHeaders builds a CRLF-joined header string for the AVFormat
// "headers" option from base, filling in browser-like defaults for a
// YouTube media fetch. An empty base yields "".
func BuildFFmpegHeaders(base map[string]string) string {
	if len(base) == 0 {
		return ""
	}
	h := make(map[string]string, len(base)+6)
	for k, v := range base {
		if k = CanonicalHeader(k); k != "" {
			h[k] = strings.TrimSpace(v)
		}
	}
	defaults := map[string]string{
		"Referer":         "https://www.youtube.com/",
		"Accept":          "*/*",
		"Accept-Language": "en-US,en;q=0.9",
		"Origin":          "https://www.youtube.com",
		"Connection":      "keep-alive",
	}
	for k, v := range defaults {
		if _, ok := h[k]; !ok {
			h[k] = v
		}
	}
	if _, ok := h["User-Agent"]; !ok {
		h["User-Agent"] = RandomUserAgent()
	}

	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, k := range keys {
		// FFmpeg wants CRLF separators; no trailing extra CRLF needed
		fmt.Fprintf(&b, "%s: %s\r\n", k, h[k])
	}
	return b.String()
}
