package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/sseflood/internal/runner"
	"github.com/torosent/sseflood/internal/tracing"
)

const (
	healthPath = "/health"
	statsPath  = "/api/stats"
	sendPath   = "/api/send"

	maxErrorBody = 512
)

// Message is the body of a publish request.
type Message struct {
	ChannelID string `json:"channel_id"`
	EventType string `json:"event_type"`
	Data      any    `json:"data"`
}

// Stats is the part of GET /api/stats the harness reports.
type Stats struct {
	TotalConnections int64
	HasTotal         bool
}

// Publisher talks to the request/response side of the push service.
type Publisher struct {
	baseURL   string
	client    *http.Client
	headers   http.Header
	tracer    trace.Tracer
	propagate bool
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithHeaders adds headers to every request.
func WithHeaders(h http.Header) PublisherOption {
	return func(p *Publisher) { p.headers = h.Clone() }
}

// WithTracing starts a span per publish and, when propagate is set, sends
// the W3C trace context along.
func WithTracing(tracer trace.Tracer, propagate bool) PublisherOption {
	return func(p *Publisher) {
		p.tracer = tracer
		p.propagate = propagate
	}
}

// NewPublisher creates a Publisher for the service at baseURL.
func NewPublisher(baseURL string, client *http.Client, opts ...PublisherOption) *Publisher {
	if client == nil {
		client = http.DefaultClient
	}
	p := &Publisher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	for key, values := range p.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return req, nil
}

// do sends req and returns the body of a 200 response. Anything else is an
// *runner.HTTPError.
func (p *Publisher) do(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &runner.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}
	return body, nil
}

// Health checks GET /health.
func (p *Publisher) Health(ctx context.Context) error {
	req, err := p.newRequest(ctx, http.MethodGet, healthPath, nil)
	if err != nil {
		return err
	}
	_, err = p.do(req)
	return err
}

// Stats reads GET /api/stats. A missing total_connections field is not an
// error; HasTotal reports whether it was present.
func (p *Publisher) Stats(ctx context.Context) (Stats, error) {
	req, err := p.newRequest(ctx, http.MethodGet, statsPath, nil)
	if err != nil {
		return Stats{}, err
	}
	body, err := p.do(req)
	if err != nil {
		return Stats{}, err
	}
	total := gjson.GetBytes(body, "total_connections")
	if !total.Exists() {
		return Stats{}, nil
	}
	return Stats{TotalConnections: total.Int(), HasTotal: true}, nil
}

// Send publishes data to channel and returns the request round trip.
func (p *Publisher) Send(ctx context.Context, channel, eventType string, data any) (time.Duration, error) {
	payload, err := json.Marshal(Message{ChannelID: channel, EventType: eventType, Data: data})
	if err != nil {
		return 0, fmt.Errorf("encode message: %w", err)
	}

	var span trace.Span
	if p.tracer != nil {
		ctx, span = tracing.StartPublishSpan(ctx, p.tracer, channel, eventType)
	}

	req, err := p.newRequest(ctx, http.MethodPost, sendPath, bytes.NewReader(payload))
	if err != nil {
		if span != nil {
			tracing.EndSpan(span, err)
		}
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	start := time.Now()
	_, err = p.do(req)
	rtt := time.Since(start)

	if span != nil {
		tracing.EndSpan(span, err, attribute.Int64("sseflood.rtt_us", rtt.Microseconds()))
	}
	return rtt, err
}
