package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sonroyaalmerol/kumastream/internal/metrics"
	"github.com/sonroyaalmerol/kumastream/internal/transcode"
	"go.uber.org/zap"
)

const copyBufferSize = 32 * 1024

func httpError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":` + strconv.Quote(msg) + `}`))
}

// audio handles GET /audio?uri=&bitrate=.
func (s *Server) audio(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		httpError(w, http.StatusBadRequest, "uri is required")
		return
	}
	kbps := 0
	if v := r.URL.Query().Get("bitrate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httpError(w, http.StatusBadRequest, "bitrate must be an integer (kbps)")
			return
		}
		kbps = n
	}
	kbps = s.cfg.ClampBitrate(kbps)
	hash := s.cache.Key(uri, kbps)

	if path, ok := s.cache.Get(r.Context(), hash); ok {
		s.serveCached(w, r, path)
		return
	}
	s.serveStream(w, r, uri, hash, kbps, start)
}

func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "cached artifact unavailable")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "cached artifact unavailable")
		return
	}
	metrics.CacheHitsTotal.Inc()
	w.Header().Set("Content-Type", transcode.ContentType)
	http.ServeContent(&countingWriter{ResponseWriter: w}, r, "", info.ModTime(), f)
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, uri, hash string, kbps int, start time.Time) {
	streamID := uuid.NewString()
	log := s.log.With(zap.String("streamId", streamID), zap.String("uri", uri), zap.Int("kbps", kbps))

	st := transcode.NewPersistent(s.baseCtx, s.env, uri,
		s.cache.TempPathFor(hash), s.cache.PathFor(hash), kbps,
		transcode.WithLogger(log),
		transcode.WithSinkHook(s.sinkHook(hash, log)))
	defer st.Close()

	metrics.StreamsOpenedTotal.Inc()
	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	buf := make([]byte, copyBufferSize)
	n, err := st.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		if errors.Is(err, transcode.ErrSourceUnavailable) {
			metrics.SourceUnavailableTotal.Inc()
		}
		log.Warn("stream failed before first byte", zap.Error(err))
		httpError(w, http.StatusBadGateway, "source unavailable")
		return
	}
	metrics.FirstByteSeconds.Observe(time.Since(start).Seconds())

	length := st.Length()
	h := w.Header()
	h.Set("Content-Type", st.ContentType())
	h.Set("Accept-Ranges", "none")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Stream-Id", streamID)
	switch {
	case n == 0:
		h.Set("Content-Length", "0")
	case length > 0:
		h.Set("Content-Length", strconv.FormatInt(length, 10))
	}
	w.WriteHeader(http.StatusOK)

	out := &countingWriter{ResponseWriter: w}
	var sent int64
	for n > 0 {
		chunk := buf[:n]
		if length > 0 && sent+int64(n) > length {
			chunk = chunk[:length-sent]
		}
		if _, werr := out.Write(chunk); werr != nil {
			log.Debug("client went away", zap.Int64("sent", sent), zap.Error(werr))
			return
		}
		sent += int64(len(chunk))
		if err != nil || (length > 0 && sent >= length) {
			break
		}
		n, err = st.Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			log.Warn("stream failed mid-response", zap.Int64("sent", sent), zap.Error(err))
			return
		}
	}
	log.Debug("response complete", zap.Int64("sent", sent), zap.Bool("eof", st.Eof()))
}

// sinkHook runs when the artifact for hash is promoted or discarded, which
// may be after the response has ended.
func (s *Server) sinkHook(hash string, log *zap.Logger) func(transcode.SinkResult) {
	return func(res transcode.SinkResult) {
		metrics.SinkOutcomesTotal.WithLabelValues(string(res.Outcome)).Inc()
		if res.Outcome != transcode.SinkPromoted {
			return
		}
		ctx := context.WithoutCancel(s.baseCtx)
		if err := s.cache.Track(ctx, hash, res.Bytes); err != nil {
			log.Warn("cache bookkeeping failed", zap.Error(err))
		}
	}
}

type countingWriter struct {
	http.ResponseWriter
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.ResponseWriter.Write(p)
	metrics.BytesServedTotal.Add(float64(n))
	return n, err
}
