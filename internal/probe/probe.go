// Package probe checks whether a TCP endpoint is accepting connections.
package probe

import (
	"context"
	"net"
	"strconv"
	"time"
)

// Defaults applied when IsPortOpen receives zero values.
const (
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 8090
	DefaultTimeout = 200 * time.Millisecond
)

// Func reports whether host:port accepts a TCP connection within timeout.
type Func func(ctx context.Context, host string, port int, timeout time.Duration) bool

// IsPortOpen dials host:port once and closes the connection immediately.
// Every failure (DNS, refusal, timeout, cancellation) reports false.
func IsPortOpen(ctx context.Context, host string, port int, timeout time.Duration) bool {
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = DefaultPort
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if port < 0 || port > 65535 {
		return false
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
