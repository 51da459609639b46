// Package resolver picks the upstream base URL once at startup by probing
// local candidates before falling back to production.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"shapes-debugger/internal/metrics"
	"shapes-debugger/internal/model"
	"shapes-debugger/internal/probe"
)

// Upstream is the outcome of resolution. It is read-only after startup.
type Upstream struct {
	Candidate model.Candidate
	URL       *url.URL
	Results   []model.ProbeResult
	Fallback  bool
}

// Resolver probes candidates with a bounded per-candidate timeout.
type Resolver struct {
	probe   probe.Func
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Resolver. A nil probe defaults to probe.IsPortOpen; the
// metrics parameter is optional.
func New(p probe.Func, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	if p == nil {
		p = probe.IsPortOpen
	}
	if timeout <= 0 {
		timeout = probe.DefaultTimeout
	}
	return &Resolver{
		probe:   p,
		timeout: timeout,
		logger:  logger.With("component", "resolver"),
		metrics: m,
	}
}

type target struct {
	url  *url.URL
	host string
	port int
}

// Resolve returns the first reachable candidate in declaration order, or
// prod when none answers. A malformed candidate URL also selects prod.
// Probes run concurrently; selection order is unaffected by which probe
// finishes first.
func (r *Resolver) Resolve(ctx context.Context, candidates []model.Candidate, prod model.Candidate) *Upstream {
	results := make([]model.ProbeResult, len(candidates))
	targets := make([]target, len(candidates))

	for i, cand := range candidates {
		results[i] = model.ProbeResult{Candidate: cand}
		u, host, port, err := hostPort(cand.URL)
		if err != nil {
			results[i].Err = err.Error()
			r.logger.Warn("malformed upstream candidate; using production",
				"label", cand.Label,
				"url", cand.URL,
				"err", err,
			)
			return r.fallback(prod, results[:i+1])
		}
		targets[i] = target{url: u, host: host, port: port}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range candidates {
		g.Go(func() error {
			results[i].Reachable = r.probe(gctx, targets[i].host, targets[i].port, r.timeout)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		r.record(res)
	}

	for i, res := range results {
		if !res.Reachable {
			continue
		}
		r.logger.Info("upstream resolved",
			"label", res.Candidate.Label,
			"url", res.Candidate.URL,
			"priority", i,
		)
		return &Upstream{Candidate: res.Candidate, URL: targets[i].url, Results: results}
	}

	return r.fallback(prod, results)
}

func (r *Resolver) fallback(prod model.Candidate, results []model.ProbeResult) *Upstream {
	u, err := url.Parse(prod.URL)
	if err != nil {
		r.logger.Error("production URL is malformed", "url", prod.URL, "err", err)
	}
	r.logger.Info("upstream resolved",
		"label", prod.Label,
		"url", prod.URL,
		"fallback", true,
	)
	return &Upstream{Candidate: prod, URL: u, Results: results, Fallback: true}
}

func (r *Resolver) record(res model.ProbeResult) {
	r.logger.Debug("probe result",
		"label", res.Candidate.Label,
		"url", res.Candidate.URL,
		"reachable", res.Reachable,
	)
	if r.metrics != nil {
		r.metrics.ProbeResults.WithLabelValues(string(res.Candidate.Label), strconv.FormatBool(res.Reachable)).Inc()
	}
}

// hostPort extracts the dial target from a base URL. The port defaults to
// 443 for https and 80 for anything else.
func hostPort(raw string) (*url.URL, string, int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", 0, fmt.Errorf("parse candidate url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, "", 0, fmt.Errorf("candidate url %q has no host", raw)
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, "", 0, fmt.Errorf("candidate url %q: invalid port: %w", raw, err)
		}
		return u, u.Hostname(), port, nil
	}
	if u.Scheme == "https" {
		return u, u.Hostname(), 443, nil
	}
	return u, u.Hostname(), 80, nil
}
