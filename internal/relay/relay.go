// Package relay streams a remote resource to a consumer in chunks, resuming
// transparently after transient network failures via HTTP range requests.
// Each stream is an independent invocation: the cursor is never shared and a
// finished stream cannot be restarted.
package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tinoosan/debrix/internal/metrics"
)

// Config controls chunking, the retry bound and the outbound timeouts.
// Zero values fall back to defaults.
type Config struct {
	ChunkSize       int
	MaxRetries      int
	Backoff         time.Duration
	ConnectTimeout  time.Duration
	ReadIdleTimeout time.Duration
}

const (
	defaultChunkSize       = 8192
	defaultMaxRetries      = 3
	defaultBackoff         = time.Second
	defaultConnectTimeout  = 30 * time.Second
	defaultReadIdleTimeout = 300 * time.Second
)

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultBackoff
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = defaultReadIdleTimeout
	}
	return c
}

// Client issues the upstream GETs for streams. It is safe for concurrent use;
// every Stream carries its own cursor.
type Client struct {
	http *http.Client
	cfg  Config
	log  *slog.Logger
}

func New(log *slog.Logger, cfg Config) *Client {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ConnectTimeout,
	}
	// No overall client timeout: large transfers legitimately run for a long
	// time. Inactivity is bounded per read by the stream's watchdog.
	return &Client{
		http: &http.Client{Transport: transport},
		cfg:  cfg,
		log:  log,
	}
}

// Stream opens a relay for url. Extra headers (auth cookies, user agent) are
// sent on every attempt. The first upstream call happens lazily on Next.
func (c *Client) Stream(ctx context.Context, url string, header http.Header) *Stream {
	return &Stream{
		c:      c,
		ctx:    ctx,
		url:    url,
		header: header,
		buf:    make([]byte, c.cfg.ChunkSize),
		total:  -1,
	}
}

// Stream is a pull-based chunk sequence over the remote resource. It is not
// safe for concurrent use and not restartable once it has terminated.
type Stream struct {
	c      *Client
	ctx    context.Context
	url    string
	header http.Header

	buf        []byte
	body       io.ReadCloser
	cancel     context.CancelFunc
	watchdog   *time.Timer
	pendingErr error

	bytesDelivered int64
	attempt        int
	total          int64
	done           bool
	err            error
}

// BytesDelivered reports how many bytes have been handed to the consumer so
// far. It is also the resume offset of the next attempt.
func (s *Stream) BytesDelivered() int64 { return s.bytesDelivered }

// Attempts reports how many upstream attempts the stream has finished with a
// transient failure. The total attempt bound is MaxRetries+1.
func (s *Stream) Attempts() int { return s.attempt }

// Next returns the next non-empty chunk of the resource. The returned slice
// is only valid until the following call. It returns io.EOF after the last
// byte, a *Error on fatal or exhausted failures, or the context's error when
// the caller's context ends.
func (s *Stream) Next() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.done {
		return nil, io.EOF
	}
	for {
		if err := s.ctx.Err(); err != nil {
			s.fail(err)
			return nil, err
		}
		if s.body == nil {
			if err := s.connect(); err != nil {
				if rerr := s.retry(err); rerr != nil {
					s.fail(rerr)
					return nil, rerr
				}
				continue
			}
		}

		var (
			n   int
			err error
		)
		if s.pendingErr != nil {
			err, s.pendingErr = s.pendingErr, nil
		} else {
			n, err = s.body.Read(s.buf)
		}
		if n > 0 {
			s.bytesDelivered += int64(n)
			metrics.RelayBytes.Add(float64(n))
			if s.watchdog != nil {
				s.watchdog.Reset(s.c.cfg.ReadIdleTimeout)
			}
			if err != nil {
				// Deliver the bytes first, deal with the error on the
				// next pull so the cursor stays exact.
				s.pendingErr = err
			}
			return s.buf[:n], nil
		}

		switch {
		case err == io.EOF:
			if s.total >= 0 && s.bytesDelivered < s.total {
				// Truncated payload: the origin closed early.
				if rerr := s.retry(fmt.Errorf("payload truncated at %d of %d bytes", s.bytesDelivered, s.total)); rerr != nil {
					s.fail(rerr)
					return nil, rerr
				}
				continue
			}
			s.closeAttempt()
			s.done = true
			s.c.log.Info("relay complete", "url_host", hostOf(s.url), "bytes", s.bytesDelivered, "attempts", s.attempt+1)
			return nil, io.EOF
		case err != nil:
			if cerr := s.ctx.Err(); cerr != nil {
				s.fail(cerr)
				return nil, cerr
			}
			if rerr := s.retry(err); rerr != nil {
				s.fail(rerr)
				return nil, rerr
			}
			continue
		}
	}
}

// WriteTo drains the stream into w, writing each chunk as it arrives. It
// returns the bytes written by this call and the stream's terminal error, nil
// on clean end of stream.
func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for {
		chunk, err := s.Next()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
		n, werr := w.Write(chunk)
		written += int64(n)
		if werr != nil {
			s.fail(werr)
			return written, werr
		}
	}
}

// Close releases the current attempt's connection. The stream is unusable
// afterwards.
func (s *Stream) Close() error {
	s.closeAttempt()
	if s.err == nil && !s.done {
		s.done = true
	}
	return nil
}

func (s *Stream) connect() error {
	attemptCtx, cancel := context.WithCancel(s.ctx)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, s.url, nil)
	if err != nil {
		cancel()
		return &Error{Kind: KindFatal, Offset: s.bytesDelivered, Attempt: s.attempt, Err: err}
	}
	for k, vs := range s.header {
		req.Header[k] = vs
	}
	if s.bytesDelivered > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(s.bytesDelivered, 10)+"-")
		s.c.log.Info("resuming relay", "url_host", hostOf(s.url), "offset", s.bytesDelivered, "attempt", s.attempt+1, "max_attempts", s.c.cfg.MaxRetries+1)
	}

	resp, err := s.c.http.Do(req)
	if err != nil {
		cancel()
		// Connection establishment counts as a transient failure.
		return fmt.Errorf("connect: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK && s.bytesDelivered == 0:
		// Fresh transfer.
	case resp.StatusCode == http.StatusPartialContent && s.bytesDelivered > 0:
		// Resumed exactly at the cursor.
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		s.drop(resp, cancel)
		return &Error{Kind: KindFatal, Status: resp.StatusCode, Offset: s.bytesDelivered, Attempt: s.attempt,
			Err: fmt.Errorf("origin does not support resume")}
	case resp.StatusCode == http.StatusOK && s.bytesDelivered > 0:
		// The origin ignored the range header. Restarting from zero would
		// duplicate bytes already delivered.
		s.drop(resp, cancel)
		return &Error{Kind: KindFatal, Status: resp.StatusCode, Offset: s.bytesDelivered, Attempt: s.attempt,
			Err: fmt.Errorf("origin ignored range request")}
	case retryableStatus(resp.StatusCode):
		s.drop(resp, cancel)
		return fmt.Errorf("upstream http %d", resp.StatusCode)
	default:
		s.drop(resp, cancel)
		return &Error{Kind: KindFatal, Status: resp.StatusCode, Offset: s.bytesDelivered, Attempt: s.attempt,
			Err: fmt.Errorf("unexpected upstream status")}
	}

	if s.bytesDelivered == 0 {
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if v, perr := strconv.ParseInt(cl, 10, 64); perr == nil {
				s.total = v
			}
		}
		if s.total >= 0 {
			s.c.log.Info("relay started", "url_host", hostOf(s.url), "size", s.total)
		} else {
			s.c.log.Info("relay started", "url_host", hostOf(s.url), "size", "unknown")
		}
	}

	s.body = resp.Body
	s.cancel = cancel
	s.watchdog = time.AfterFunc(s.c.cfg.ReadIdleTimeout, cancel)
	return nil
}

// retry accounts a transient failure. It returns nil when another attempt is
// allowed (after the backoff) and the terminal error otherwise.
func (s *Stream) retry(cause error) error {
	s.closeAttempt()
	if ferr, ok := cause.(*Error); ok && ferr.Kind == KindFatal {
		return ferr
	}
	s.attempt++
	metrics.RelayRetries.Inc()
	if s.attempt > s.c.cfg.MaxRetries {
		last := &Error{Kind: KindTransient, Offset: s.bytesDelivered, Attempt: s.attempt, Err: cause}
		return &Error{Kind: KindRetriesExhausted, Offset: s.bytesDelivered, Attempt: s.attempt, Err: last}
	}
	s.c.log.Warn("relay interrupted", "url_host", hostOf(s.url), "offset", s.bytesDelivered, "attempt", s.attempt, "err", cause)

	t := time.NewTimer(s.c.cfg.Backoff)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-t.C:
	}
	return nil
}

func (s *Stream) fail(err error) {
	s.closeAttempt()
	s.err = err
}

func (s *Stream) closeAttempt() {
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	if s.body != nil {
		_ = s.body.Close()
		s.body = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.pendingErr = nil
}

func (s *Stream) drop(resp *http.Response, cancel context.CancelFunc) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	cancel()
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Host
	}
	return ""
}
