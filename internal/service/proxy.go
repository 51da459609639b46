// Package service implements the core proxy forwarding logic.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"shapes-debugger/internal/client"
	"shapes-debugger/internal/model"
	"shapes-debugger/internal/resolver"
)

// ErrNoUpstream is returned when resolution produced no usable URL.
var ErrNoUpstream = errors.New("no usable upstream URL")

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	client  *client.UpstreamClient
	logger  *slog.Logger
	baseURL *url.URL
}

// NewProxyService creates a ProxyService bound to the resolved upstream.
func NewProxyService(c *client.UpstreamClient, up *resolver.Upstream, logger *slog.Logger) (*ProxyService, error) {
	if up == nil || up.URL == nil || up.URL.Host == "" {
		return nil, ErrNoUpstream
	}

	return &ProxyService{
		client:  c,
		logger:  logger.With("component", "proxy_service"),
		baseURL: up.URL,
	}, nil
}

// Forward sends a buffered ProxyRequest upstream and returns the buffered
// response. Method, path, query, headers and body pass through unmodified;
// only the Host (and TLS server name) name the upstream.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	upstreamURL := s.buildUpstreamURL(pr)
	header := s.outboundHeaders(pr.Header)

	s.logger.Debug("forwarding request",
		"id", pr.ID,
		"method", pr.Method,
		"path", pr.Path,
	)

	resp, err := s.client.Do(pr.Ctx, pr.Method, upstreamURL, s.baseURL.Host, header, pr.Body)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}
	resp.ID = pr.ID
	return resp, nil
}

// Host returns the upstream host[:port] used for the Host header.
func (s *ProxyService) Host() string {
	return s.baseURL.Host
}

// buildUpstreamURL keeps only the upstream origin; the inbound path replaces
// the base path entirely, the same way a browser resolves an absolute path
// against a base URL.
func (s *ProxyService) buildUpstreamURL(pr *model.ProxyRequest) string {
	u := url.URL{
		Scheme:   s.baseURL.Scheme,
		Host:     s.baseURL.Host,
		Path:     pr.Path,
		RawPath:  pr.RawPath,
		RawQuery: pr.RawQuery,
	}
	return u.String()
}

// outboundHeaders copies every client header. When the client sent no
// User-Agent, an explicit empty value stops net/http from adding its own.
func (s *ProxyService) outboundHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	if _, ok := dst["User-Agent"]; !ok {
		dst["User-Agent"] = []string{""}
	}
	return dst
}
