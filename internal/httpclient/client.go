// Package httpclient provides an OTEL-instrumented HTTP client for
// venue REST APIs.
package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/venuelabs/crossarb/internal/apperror"
)

const (
	defaultRequestTimeout  = 10 * time.Second
	defaultDialKeepAlive   = 10 * time.Second
	defaultMaxConnsPerHost = 5
	defaultIdleConnTimeout = 2 * time.Minute

	meterName = "crossarb/httpclient"
)

// Config holds client construction parameters.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	DefaultHeaders map[string]string
}

// DefaultConfig returns pooled-connection defaults for a venue API.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: defaultRequestTimeout,
	}
}

// Client is an instrumented HTTP client bound to one base URL. Every
// request is traced through otelhttp and counted per endpoint and
// status.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	defaultHeaders map[string]string
	requests       metric.Int64Counter
}

// New creates a client. The transport propagates trace context on
// outgoing requests.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("http client base url is required"))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			KeepAlive: defaultDialKeepAlive,
		}).DialContext,
		MaxConnsPerHost: defaultMaxConnsPerHost,
		IdleConnTimeout: defaultIdleConnTimeout,
	}

	requests, err := otel.Meter(meterName).Int64Counter(
		"http_client_requests_total",
		metric.WithDescription("Outbound HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		defaultHeaders: cfg.DefaultHeaders,
		requests:       requests,
	}, nil
}

// GetJSON performs a GET against path (joined to the base URL) and
// decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInvalidInput, "building request")
	}
	for key, value := range c.defaultHeaders {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.count(ctx, path, 0)
		return apperror.Wrap(err, apperror.CodeExternalServiceError, "GET "+path)
	}
	defer resp.Body.Close()
	c.count(ctx, path, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperror.New(apperror.CodeExternalServiceError,
			apperror.WithContext("GET "+path+" returned "+resp.Status+": "+string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Wrap(err, apperror.CodeInvalidFormat, "decoding response from "+path)
	}
	return nil
}

func (c *Client) count(ctx context.Context, path string, status int) {
	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("path", path),
		attribute.Int("status", status),
	))
}
