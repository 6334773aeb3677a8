package runner

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/sseflood/internal/metrics"
)

const (
	DefaultBatchSize        = 200
	DefaultBatchPause       = 10 * time.Millisecond
	DefaultProgressInterval = time.Second
	DefaultShutdownTimeout  = 5 * time.Second
)

// ProgressFunc receives periodic snapshots while connections ramp up.
type ProgressFunc func(metrics.Snapshot)

// Options configure the Orchestrator.
type Options struct {
	TargetURL     string      // base URL of the push service
	Connections   int         // total connections to open
	BatchSize     int         // connections dispatched per batch
	BatchPause    time.Duration
	RampRate      float64     // connections per second (0 means unlimited)
	MaxInFlight   int         // concurrent attempts+streams (0 means unbounded)
	ChannelMode   ChannelMode // random, shared or sequential
	ChannelPrefix string
	Hold          time.Duration // hold after ramp-up or once the in-flight gate fills (0 means until cancelled)

	ConnectTimeout   time.Duration // dial to response headers (0 disables it)
	ReadTimeout      time.Duration // idle stream timeout (0 disables it)
	ProgressInterval time.Duration
	ShutdownTimeout  time.Duration

	HTTPClient    *http.Client // stream client; must not set a client Timeout
	Headers       http.Header
	Progress      ProgressFunc
	Logger        *slog.Logger
	FailureLogger FailureLogger

	LimiterFactory func(perSecond float64) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.Connections < 0 {
		o.Connections = 0
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchPause < 0 {
		o.BatchPause = 0
	}
	if o.RampRate < 0 {
		o.RampRate = 0
	}
	if o.MaxInFlight < 0 {
		o.MaxInFlight = 0
	}
	if o.ChannelMode == "" {
		o.ChannelMode = ChannelRandom
	}
	if o.ChannelPrefix == "" {
		o.ChannelPrefix = DefaultChannelPrefix
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DefaultProgressInterval
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = DefaultShutdownTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(perSecond float64) *rate.Limiter {
			if perSecond <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst of one second's worth smooths pacing across batches.
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			return rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}
