// Package client provides the upstream HTTP client for the Shapes API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"shapes-debugger/internal/config"
	"shapes-debugger/internal/metrics"
	"shapes-debugger/internal/model"
	"shapes-debugger/internal/resolver"
)

// UpstreamClient sends buffered requests to the resolved upstream.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling bound
// to the resolved upstream. The metrics parameter is optional; pass nil to
// disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, up *resolver.Upstream, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		// The client's own Accept-Encoding is forwarded as-is; the transport
		// must not add one and transparently decompress behind its back.
		DisableCompression: true,
	}
	if up != nil && up.URL != nil && up.URL.Scheme == "https" {
		transport.TLSClientConfig = &tls.Config{
			ServerName: up.URL.Hostname(),
			MinVersion: tls.VersionTLS12,
		}
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.UpstreamTimeout(),
			// Redirects are relayed to the client verbatim.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do sends one request and buffers the complete upstream response. A failure
// while reading the body is reported as an error, never as a short body.
func (c *UpstreamClient) Do(ctx context.Context, method, url, host string, header http.Header, body []byte) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header
	req.Host = host

	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
		"host", host,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, 0, time.Since(start))
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		c.observe(method, 0, duration)
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	c.observe(method, resp.StatusCode, duration)

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
		Duration:   duration,
	}, nil
}

// observe records latency, and the response status when one was received.
func (c *UpstreamClient) observe(method string, status int, d time.Duration) {
	if c.metrics == nil {
		return
	}
	m := metrics.NormalizeMethod(method)
	c.metrics.UpstreamDuration.WithLabelValues(m).Observe(d.Seconds())
	if status != 0 {
		c.metrics.UpstreamResponses.WithLabelValues(m, strconv.Itoa(status)).Inc()
	}
}
