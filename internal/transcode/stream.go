package transcode

import (
	"context"
	"io"
	"sync/atomic"

	"go.uber.org/zap"
)

// Option configures a Stream.
type Option func(*options)

type options struct {
	log       *zap.Logger
	tempPath  string
	finalPath string
	onSink    func(SinkResult)
}

// WithLogger sets the logger used for stream lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithPersistence mirrors the output to tempPath and promotes it to
// finalPath on a clean finish. Both paths must be non-empty.
func WithPersistence(tempPath, finalPath string) Option {
	return func(o *options) { o.tempPath, o.finalPath = tempPath, finalPath }
}

// WithSinkHook registers fn to be called exactly once when the persistence
// sink is promoted or discarded. It may run on the detached drain goroutine.
func WithSinkHook(fn func(SinkResult)) Option {
	return func(o *options) { o.onSink = fn }
}

// Stream is a pull-based, non-seekable MP3 rendition of a decodable source.
//
// A Stream has a single owner. Close hands the underlying session to a
// background drain task and detaches it from the Stream, so the former owner
// can no longer reach it; after Close every method reports the state
// captured at hand-off.
type Stream struct {
	sess   atomic.Pointer[session]
	uri    string
	length int64

	lastPos int64
	lastEOF bool
}

// New opens uri through env and prepares a Stream encoding at bitrateKbps.
// It never fails: if the input or decoder cannot be opened the Stream is
// permanently empty and Read reports ErrSourceUnavailable.
func New(ctx context.Context, env Environment, uri string, bitrateKbps int, opts ...Option) *Stream {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		ctx:     sctx,
		cancel:  cancel,
		log:     o.log,
		env:     env,
		bitrate: bitrateKbps,
		onSink:  o.onSink,
	}
	st := &Stream{}

	in, err := env.OpenInput(sctx, uri)
	if err != nil {
		s.log.Warn("open input failed", zap.String("uri", uri), zap.Error(err))
	} else {
		s.input = in
		st.uri = in.URI()
		dec, err := env.OpenDecoder(sctx, in)
		if err != nil {
			s.log.Warn("open decoder failed", zap.String("uri", uri), zap.Error(err))
		} else {
			s.source = newPCMSource(dec)
			s.length = EstimateLength(dec.Duration(), bitrateKbps)
			s.tolerance = DetachTolerance(bitrateKbps)
		}
	}
	st.length = s.length

	if o.tempPath != "" && o.finalPath != "" {
		k, err := openSink(o.tempPath, o.finalPath, s.log)
		if err != nil {
			s.log.Warn("persistence disabled", zap.String("temp", o.tempPath), zap.Error(err))
		} else {
			s.sink = k
		}
	}

	st.sess.Store(s)
	return st
}

// NewPersistent is New with WithPersistence(tempPath, finalPath).
func NewPersistent(ctx context.Context, env Environment, uri, tempPath, finalPath string, bitrateKbps int, opts ...Option) *Stream {
	return New(ctx, env, uri, bitrateKbps, append(opts, WithPersistence(tempPath, finalPath))...)
}

// Open exists for transports that expect it; a constructed Stream is
// always open.
func (st *Stream) Open() error { return nil }

// Read fills p with the next compressed bytes. It returns io.EOF once the
// stream has finished cleanly, and the fatal error (Eof() true) after a
// failure.
func (st *Stream) Read(p []byte) (int, error) {
	s := st.sess.Load()
	if s == nil {
		return 0, ErrClosed
	}
	return s.read(p)
}

// Seek always fails; the output cannot be repositioned.
func (st *Stream) Seek(offset int64, whence int) (int64, error) {
	return st.Position(), ErrNotSeekable
}

// SetPosition always fails.
func (st *Stream) SetPosition(pos int64) error { return ErrNotSeekable }

func (st *Stream) Seekable() bool    { return false }
func (st *Stream) CanPrefetch() bool { return true }
func (st *Stream) ContentType() string {
	return ContentType
}

// Length is the estimated total size in bytes, deliberately short.
func (st *Stream) Length() int64 { return st.length }

// URI is the underlying input's URI, or "" if no input could be opened.
func (st *Stream) URI() string { return st.uri }

// Position is the number of bytes returned to callers so far.
func (st *Stream) Position() int64 {
	if s := st.sess.Load(); s != nil {
		return s.position
	}
	return st.lastPos
}

func (st *Stream) Eof() bool {
	if s := st.sess.Load(); s != nil {
		return s.eof
	}
	return st.lastEOF
}

// State reports the controller state; StateClosed once detached.
func (st *Stream) State() State {
	if s := st.sess.Load(); s != nil {
		return s.state
	}
	return StateClosed
}

// Interrupt cancels the stream context, which aborts a blocking fetch in
// the decoder. It is safe to call while another goroutine is inside Read.
func (st *Stream) Interrupt() {
	if s := st.sess.Load(); s != nil {
		s.interrupted.Store(true)
		s.cancel()
	}
}

// Interrupted reports whether Interrupt has been called.
func (st *Stream) Interrupted() bool {
	if s := st.sess.Load(); s != nil {
		return s.interrupted.Load()
	}
	return false
}

// Close releases the stream. At eof it disposes synchronously; otherwise
// the session is handed to a detached goroutine that keeps reading, up to
// DetachTolerance bytes, so a persisted artifact can still complete. Close
// always returns nil.
func (st *Stream) Close() error {
	s := st.detach()
	if s == nil {
		return nil
	}
	if s.eof {
		s.dispose()
		return nil
	}
	go s.drain()
	return nil
}

// Dispose releases every resource immediately, discarding any unfinished
// artifact. Calling it more than once has no effect.
func (st *Stream) Dispose() {
	if s := st.detach(); s != nil {
		s.dispose()
	}
}

func (st *Stream) detach() *session {
	s := st.sess.Swap(nil)
	if s != nil {
		st.lastPos = s.position
		st.lastEOF = s.eof
	}
	return s
}

var (
	_ io.ReadSeekCloser = (*Stream)(nil)
)
