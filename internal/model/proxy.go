// Package model defines shared types for the proxy.
package model

import (
	"context"
	"net/http"
	"time"
)

// Label names the role of a candidate upstream.
type Label string

const (
	LabelDebug Label = "debug"
	LabelDev   Label = "dev"
	LabelProd  Label = "prod"
)

// Candidate is one possible upstream base URL. Declaration order is priority.
type Candidate struct {
	Label Label  `json:"label"`
	URL   string `json:"url"`
}

// ProbeResult records whether a candidate accepted a TCP connection at startup.
type ProbeResult struct {
	Candidate Candidate `json:"candidate"`
	Reachable bool      `json:"reachable"`
	Err       string    `json:"error,omitempty"`
}

// ProxyRequest is a fully buffered client request to be forwarded upstream.
type ProxyRequest struct {
	Ctx      context.Context
	ID       string
	Method   string
	URI      string // request target as sent by the client (path + query)
	Path     string
	RawPath  string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// ProxyResponse is a fully buffered upstream response to be relayed back.
type ProxyResponse struct {
	ID         string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// ExchangeIDKey is the echo context key holding the current exchange ID.
const ExchangeIDKey = "exchange_id"
