package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 4 << 10

// ErrConnectTimeout is returned by Connect when response headers do not arrive
// within the connect timeout. It wraps context.DeadlineExceeded.
var ErrConnectTimeout = fmt.Errorf("sse connect timeout: %w", context.DeadlineExceeded)

// ErrReadTimeout is returned by Stream when no bytes arrive within the idle
// read timeout. It wraps os.ErrDeadlineExceeded.
var ErrReadTimeout = fmt.Errorf("sse idle read timeout: %w", os.ErrDeadlineExceeded)

// StatusError is returned when the SSE endpoint responds with a non-2xx status code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int {
	return e.Code
}

// Metrics captures SSE-specific performance data.
type Metrics struct {
	ConnectLatency time.Duration // request start to response headers
	FirstByte      time.Duration // request start to first body chunk
	EventsReceived int64
	BytesReceived  int64
}

// Config configures the SSE client behavior.
type Config struct {
	URL     string
	Headers http.Header
	// HTTPClient performs the request. It must not set a client-level Timeout
	// because the response body is long-lived.
	HTTPClient *http.Client
	// ConnectTimeout bounds the wait for response headers only (0 disables it).
	ConnectTimeout time.Duration
	// ReadTimeout bounds the idle time between body reads (0 disables it).
	ReadTimeout time.Duration
	// BufferSize is the per-connection read buffer (default 4 KiB).
	BufferSize int
	// MaxFrameSize caps an unterminated frame (default 64 KiB).
	MaxFrameSize int
}

// ChunkFunc receives each raw body chunk together with the events it
// completed. The chunk is only valid for the duration of the call. Returning
// false stops the stream.
type ChunkFunc func(chunk []byte, events []Event) bool

// Client represents one SSE connection.
type Client struct {
	cfg    Config
	mu     sync.Mutex
	resp   *http.Response
	reader *FrameReader

	cancel    context.CancelCauseFunc
	closeOnce sync.Once
	timedOut  atomic.Bool

	started    time.Time
	headersAt  time.Time
	firstByte  time.Time
	eventsRecv atomic.Int64
	bytesRecv  atomic.Int64
}

// NewClient creates a new SSE client with the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	return &Client{cfg: cfg, reader: NewFrameReaderSize(cfg.MaxFrameSize)}
}

// Connect issues the stream request and waits for response headers. The
// request is bound to ctx: cancelling ctx later aborts the body as well.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.resp != nil || !c.started.IsZero() {
		c.mu.Unlock()
		return errors.New("already connected")
	}
	c.started = time.Now()
	reqCtx, cancel := context.WithCancelCause(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		cancel(err)
		return fmt.Errorf("create request: %w", err)
	}

	// Set SSE-specific headers
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	for key, values := range c.cfg.Headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	var timer *time.Timer
	if c.cfg.ConnectTimeout > 0 {
		timer = time.AfterFunc(c.cfg.ConnectTimeout, func() { cancel(ErrConnectTimeout) })
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	// A timer that already fired has cancelled the request context.
	if timer != nil && !timer.Stop() {
		if err == nil {
			resp.Body.Close()
		}
		return ErrConnectTimeout
	}
	if err != nil {
		cancel(err)
		return fmt.Errorf("http request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		cancel(nil)
		return &StatusError{Code: resp.StatusCode}
	}

	c.mu.Lock()
	c.headersAt = time.Now()
	c.resp = resp
	c.mu.Unlock()
	return nil
}

// Stream reads the body until ctx is done, the peer closes the stream, a read
// fails, or fn returns false. It returns nil when fn stopped the stream,
// ctx.Err() on cancellation, io.EOF on a clean close by the peer,
// ErrReadTimeout on an idle timeout, ErrFrameTooLarge when a frame outgrows
// MaxFrameSize, and the read error otherwise.
func (c *Client) Stream(ctx context.Context, fn ChunkFunc) error {
	c.mu.Lock()
	resp := c.resp
	c.mu.Unlock()
	if resp == nil {
		return errors.New("not connected")
	}

	// A blocked Read only returns once the body is closed.
	stop := context.AfterFunc(ctx, c.closeBody)
	defer stop()

	var idle *time.Timer
	if c.cfg.ReadTimeout > 0 {
		idle = time.AfterFunc(c.cfg.ReadTimeout, func() {
			c.timedOut.Store(true)
			c.closeBody()
		})
		defer idle.Stop()
	}

	buf := make([]byte, c.cfg.BufferSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if idle != nil {
				idle.Reset(c.cfg.ReadTimeout)
			}
			now := time.Now()
			if c.bytesRecv.Add(int64(n)) == int64(n) {
				c.mu.Lock()
				c.firstByte = now
				c.mu.Unlock()
			}
			events, ferr := c.reader.Feed(buf[:n])
			c.eventsRecv.Add(int64(len(events)))
			if fn != nil && !fn(buf[:n], events) {
				return nil
			}
			if ferr != nil {
				return ferr
			}
		}
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case c.timedOut.Load():
				return ErrReadTimeout
			case errors.Is(err, io.EOF):
				return io.EOF
			default:
				return fmt.Errorf("read stream: %w", err)
			}
		}
	}
}

// FirstByte returns when the first body chunk arrived, or the zero time.
func (c *Client) FirstByte() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.firstByte
}

// Close releases the connection. It is safe to call more than once and from
// any goroutine.
func (c *Client) Close() error {
	c.closeBody()
	return nil
}

func (c *Client) closeBody() {
	c.mu.Lock()
	resp, cancel := c.resp, c.cancel
	c.mu.Unlock()
	if resp == nil {
		return
	}
	c.closeOnce.Do(func() {
		_ = resp.Body.Close()
		cancel(nil)
	})
}

// Metrics returns the current metrics snapshot.
func (c *Client) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := Metrics{
		EventsReceived: c.eventsRecv.Load(),
		BytesReceived:  c.bytesRecv.Load(),
	}
	if !c.headersAt.IsZero() {
		m.ConnectLatency = c.headersAt.Sub(c.started)
	}
	if !c.firstByte.IsZero() {
		m.FirstByte = c.firstByte.Sub(c.started)
	}
	return m
}
