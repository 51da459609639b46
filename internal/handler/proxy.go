package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"shapes-debugger/internal/formatter"
	"shapes-debugger/internal/metrics"
	"shapes-debugger/internal/model"
	"shapes-debugger/internal/service"
)

// Failure reasons used as the upstream error metric label.
const (
	reasonDNS      = "dns"
	reasonConnect  = "connection"
	reasonTimeout  = "timeout"
	reasonCanceled = "client_canceled"
	reasonOther    = "other"
)

// ProxyHandler buffers each exchange, prints it and relays the upstream
// response to the client unchanged.
type ProxyHandler struct {
	service *service.ProxyService
	printer *formatter.Printer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter may be nil.
func NewProxyHandler(svc *service.ProxyService, printer *formatter.Printer, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		printer: printer,
		logger:  logger.With("component", "proxy_handler"),
		metrics: m,
	}
}

// Handle forwards any request to the resolved upstream.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		h.logger.Warn("reading request body", "err", err, "path", req.URL.Path)
		return echo.NewHTTPError(http.StatusBadRequest, "unable to read request body")
	}

	pr := &model.ProxyRequest{
		Ctx:      req.Context(),
		ID:       uuid.NewString(),
		Method:   req.Method,
		URI:      req.RequestURI,
		Path:     req.URL.Path,
		RawPath:  req.URL.RawPath,
		RawQuery: req.URL.RawQuery,
		Header:   req.Header.Clone(),
		Body:     body,
	}
	if pr.URI == "" {
		pr.URI = req.URL.RequestURI()
	}
	c.Set(model.ExchangeIDKey, pr.ID)
	h.printer.Request(pr)

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, pr, err)
	}
	h.printer.Response(resp)

	h.relay(c, resp)
	return nil
}

// relay writes the buffered upstream response. Date and Content-Type are
// only sent when the upstream sent them.
func (h *ProxyHandler) relay(c echo.Context, resp *model.ProxyResponse) {
	header := c.Response().Header()
	for key, vals := range resp.Header {
		for _, v := range vals {
			header.Add(key, v)
		}
	}
	for _, key := range []string{"Date", "Content-Type"} {
		if _, ok := resp.Header[key]; !ok {
			header[key] = nil
		}
	}

	c.Response().WriteHeader(resp.StatusCode)
	if _, err := c.Response().Write(resp.Body); err != nil {
		h.logger.Warn("writing response body",
			"id", resp.ID,
			"err", err,
		)
	}
}

func (h *ProxyHandler) mapError(c echo.Context, pr *model.ProxyRequest, err error) error {
	reason, category := describeError(err)

	if h.metrics != nil {
		h.metrics.UpstreamErrors.WithLabelValues(metrics.NormalizeMethod(pr.Method), category).Inc()
	}

	if category == reasonCanceled {
		h.logger.Info("client disconnected before upstream answered",
			"id", pr.ID,
			"path", pr.Path,
		)
		return nil
	}

	status := http.StatusBadGateway
	if category == reasonTimeout {
		status = http.StatusGatewayTimeout
	}

	h.logger.Error("proxy error",
		"id", pr.ID,
		"err", reason,
		"category", category,
		"path", pr.Path,
	)
	h.printer.Error(pr.ID, status, reason)

	return c.String(status, http.StatusText(status)+": "+reason)
}

// describeError returns a short reason and a bounded category. The reason
// never includes the upstream URL, so query strings stay off the console.
func describeError(err error) (string, string) {
	if errors.Is(err, context.Canceled) {
		return "client disconnected", reasonCanceled
	}

	reason := err.Error()
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		reason = urlErr.Err.Error()
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return reason, reasonTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return reason, reasonDNS
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return reason, reasonConnect
	}
	return reason, reasonOther
}
