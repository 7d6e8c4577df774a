package binance

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/venuelabs/crossarb/business/feeds/app"
	"github.com/venuelabs/crossarb/business/feeds/domain"
	"github.com/venuelabs/crossarb/internal/apperror"
	"github.com/venuelabs/crossarb/internal/logger"
	"github.com/venuelabs/crossarb/internal/wsconn"
)

// Ensure Feed implements VenueFeed.
var _ app.VenueFeed = (*Feed)(nil)

const (
	tracerName = "binance-feed"
	meterName  = "binance-feed"

	// Binance WebSocket endpoints
	BaseWSURL = "wss://stream.binance.com:9443"
	// Binance US endpoint (for users in USA)
	BaseWSURLUS = "wss://stream.binance.us:9443"
)

// Config holds configuration for the Binance feed.
type Config struct {
	WebSocketURL   string
	Symbols        []string // concatenated form, e.g. "ETHUSDC"
	MaxReconnects  int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	IdleTimeout    time.Duration // no inbound data within this window forces a reconnect
}

// DefaultConfig returns sensible defaults for the given symbols.
func DefaultConfig(symbols []string) Config {
	return Config{
		WebSocketURL:   BaseWSURL,
		Symbols:        symbols,
		MaxReconnects:  10,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		IdleTimeout:    60 * time.Second,
	}
}

// feedMetrics holds OTEL metric instruments.
type feedMetrics struct {
	messagesReceived metric.Int64Counter
	quotesPublished  metric.Int64Counter
	parseErrors      metric.Int64Counter
	publishDrops     metric.Int64Counter
	reconnects       metric.Int64Counter
}

// Feed streams Binance bookTicker updates, normalizes them into
// VenueQuotes, and publishes them to the aggregator channel. Malformed
// messages are dropped and counted, never fatal.
type Feed struct {
	config  Config
	logger  logger.LoggerInterface
	updates chan<- app.Update

	conn    *wsconn.Client
	tracker *domain.FeedTracker
	failed  chan struct{}
	failSig atomic.Bool

	metrics *feedMetrics
	tracer  trace.Tracer
}

// NewFeed creates a feed publishing into updates. onEvent observes
// lifecycle transitions and may be nil.
func NewFeed(cfg Config, updates chan<- app.Update, log logger.LoggerInterface, onEvent func(domain.FeedEvent)) (*Feed, error) {
	if len(cfg.Symbols) == 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("binance: no symbols configured"))
	}
	for _, sym := range cfg.Symbols {
		if _, err := PairFromSymbol(sym); err != nil {
			return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithCause(err))
		}
	}

	f := &Feed{
		config:  cfg,
		logger:  log,
		updates: updates,
		tracker: domain.NewFeedTracker(domain.VenueBinance, onEvent),
		failed:  make(chan struct{}),
		tracer:  otel.Tracer(tracerName),
	}
	if err := f.initMetrics(); err != nil {
		return nil, err
	}
	return f, nil
}

// initMetrics initializes OTEL metric instruments.
func (f *Feed) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	f.metrics = &feedMetrics{}

	f.metrics.messagesReceived, err = meter.Int64Counter(
		"binance_messages_received_total",
		metric.WithDescription("Raw WebSocket messages received"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	f.metrics.quotesPublished, err = meter.Int64Counter(
		"binance_quotes_published_total",
		metric.WithDescription("Normalized quotes published to the aggregator"),
		metric.WithUnit("{quote}"),
	)
	if err != nil {
		return err
	}

	f.metrics.parseErrors, err = meter.Int64Counter(
		"binance_parse_errors_total",
		metric.WithDescription("Messages dropped as malformed"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	f.metrics.publishDrops, err = meter.Int64Counter(
		"binance_publish_drops_total",
		metric.WithDescription("Quotes dropped because the aggregator channel was full"),
		metric.WithUnit("{quote}"),
	)
	if err != nil {
		return err
	}

	f.metrics.reconnects, err = meter.Int64Counter(
		"binance_reconnects_total",
		metric.WithDescription("Reconnect cycles"),
		metric.WithUnit("{reconnect}"),
	)
	return err
}

// Venue identifies the feed.
func (f *Feed) Venue() domain.VenueID { return domain.VenueBinance }

// State returns the feed's lifecycle state.
func (f *Feed) State() domain.FeedState { return f.tracker.State() }

// Run connects and streams until ctx is cancelled or the reconnect
// budget is exhausted.
func (f *Feed) Run(ctx context.Context) error {
	wsCfg := wsconn.DefaultConfig(f.config.WebSocketURL+"/ws", "binance")
	wsCfg.InitialBackoff = f.config.InitialBackoff
	wsCfg.MaxBackoff = f.config.MaxBackoff
	wsCfg.MaxReconnects = f.config.MaxReconnects
	wsCfg.ReadTimeout = f.config.IdleTimeout

	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return err
	}
	f.conn = conn

	conn.OnMessage(f.handleMessage)
	conn.OnStateChange(func(state wsconn.State, cause error) {
		f.handleConnState(ctx, state, cause)
	})

	f.tracker.Transition(domain.FeedConnecting, nil)
	if err := conn.ConnectWithRetry(ctx); err != nil {
		f.tracker.Fail(err)
		return err
	}

	select {
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	case <-f.failed:
		_ = conn.Close()
		return apperror.New(apperror.CodeFeedFailed,
			apperror.WithContext("binance: reconnect budget exhausted"))
	}
}

func (f *Feed) handleConnState(ctx context.Context, state wsconn.State, cause error) {
	switch state {
	case wsconn.StateConnected:
		if err := f.subscribe(ctx); err != nil {
			f.logger.Error(ctx, "binance subscribe failed", "error", err)
			return
		}
		f.tracker.Transition(domain.FeedSubscribed, nil)
	case wsconn.StateReconnecting:
		f.metrics.reconnects.Add(ctx, 1)
		f.tracker.Transition(domain.FeedDisconnected, cause)
		f.tracker.Transition(domain.FeedConnecting, nil)
	case wsconn.StateFailed:
		f.tracker.Fail(cause)
		if f.failSig.CompareAndSwap(false, true) {
			close(f.failed)
		}
	}
}

func (f *Feed) subscribe(ctx context.Context) error {
	streams := make([]string, 0, len(f.config.Symbols))
	for _, sym := range f.config.Symbols {
		streams = append(streams, BookTickerStream(sym))
	}
	return f.conn.SendJSON(ctx, WSRequest{
		Method: "SUBSCRIBE",
		Params: streams,
		ID:     time.Now().UnixMilli(),
	})
}

func (f *Feed) handleMessage(ctx context.Context, msg []byte) {
	f.metrics.messagesReceived.Add(ctx, 1)

	var event BookTickerEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		f.countParseError(ctx, err)
		return
	}
	if event.Symbol == "" {
		// Subscription ack or other control frame.
		return
	}

	quote, err := event.ToQuote(time.Now())
	if err != nil {
		f.countParseError(ctx, err)
		return
	}

	f.tracker.Transition(domain.FeedStreaming, nil)

	select {
	case f.updates <- app.Update{Quote: &quote}:
		f.metrics.quotesPublished.Add(ctx, 1, metric.WithAttributes(
			attribute.String("pair", string(quote.PairID))))
	default:
		f.metrics.publishDrops.Add(ctx, 1)
	}
}

func (f *Feed) countParseError(ctx context.Context, err error) {
	f.metrics.parseErrors.Add(ctx, 1)
	f.logger.Debug(ctx, "binance message dropped", "error", err)
}
