package bench

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/sseflood/internal/httpclient"
	"github.com/torosent/sseflood/internal/runner"
)

// Defaults for scenario timing.
const (
	DefaultHealthTimeout     = 5 * time.Second
	DefaultWarmupTimeout     = 2 * time.Second
	DefaultConcurrentTimeout = 5 * time.Second
	DefaultPushTimeout       = 10 * time.Second
	DefaultSendTimeout       = 5 * time.Second
	DefaultE2ESettle         = time.Second
	DefaultBroadcastSettle   = 1500 * time.Millisecond
	DefaultConnectTimeout    = 30 * time.Second
)

// Options configures a Suite. Zero durations fall back to the defaults
// above; a zero count skips the corresponding measurements.
type Options struct {
	TargetURL string
	Headers   http.Header

	// StreamClient opens event streams. It must not carry a client Timeout.
	StreamClient *http.Client
	// Publisher sends publishes and health checks. Built from TargetURL when nil.
	Publisher *httpclient.Publisher

	Connections      int
	WarmupSamples    int
	PushCount        int
	PushConcurrency  int
	E2EMessages      int
	BroadcastClients int

	Poll runner.PollPolicy

	ConnectTimeout    time.Duration
	HealthTimeout     time.Duration
	WarmupTimeout     time.Duration
	ConcurrentTimeout time.Duration
	PushTimeout       time.Duration
	SendTimeout       time.Duration
	E2ESettle         time.Duration
	BroadcastSettle   time.Duration

	Tracer        trace.Tracer
	Logger        *slog.Logger
	FailureLogger runner.FailureLogger
}

func (o *Options) normalize() {
	setDefault(&o.ConnectTimeout, DefaultConnectTimeout)
	setDefault(&o.HealthTimeout, DefaultHealthTimeout)
	setDefault(&o.WarmupTimeout, DefaultWarmupTimeout)
	setDefault(&o.ConcurrentTimeout, DefaultConcurrentTimeout)
	setDefault(&o.PushTimeout, DefaultPushTimeout)
	setDefault(&o.SendTimeout, DefaultSendTimeout)
	setDefault(&o.E2ESettle, DefaultE2ESettle)
	setDefault(&o.BroadcastSettle, DefaultBroadcastSettle)
	if o.StreamClient == nil {
		o.StreamClient = httpclient.NewStreamClient(o.ConnectTimeout, o.Connections, false)
	}
	if o.Publisher == nil {
		o.Publisher = httpclient.NewPublisher(o.TargetURL,
			httpclient.NewClient(o.PushTimeout, false),
			httpclient.WithHeaders(o.Headers),
		)
	}
	if o.PushConcurrency < 1 {
		o.PushConcurrency = 1
	}
	if o.Poll.Attempts <= 0 {
		o.Poll = runner.DefaultPollPolicy
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

func setDefault(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}
