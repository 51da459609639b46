package formatter

import (
	"io"
	"strings"
	"sync"

	"shapes-debugger/internal/model"
)

// Printer writes formatted blocks to the console. Each block is written in a
// single call under a lock so concurrent exchanges do not interleave lines.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
	f   *Formatter
}

// NewPrinter creates a Printer writing to out.
func NewPrinter(out io.Writer, f *Formatter) *Printer {
	return &Printer{out: out, f: f}
}

// Request prints a client request.
func (p *Printer) Request(req *model.ProxyRequest) {
	p.write(p.f.FormatRequest(req))
}

// Response prints an upstream response.
func (p *Printer) Response(resp *model.ProxyResponse) {
	p.write(p.f.FormatResponse(resp))
}

// Error prints a failed exchange.
func (p *Printer) Error(id string, status int, reason string) {
	p.write(p.f.FormatError(id, status, reason))
}

// Banner prints the startup summary.
func (p *Printer) Banner(version, listenURL string, up model.Candidate, fallback bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.out, strings.Join(p.f.FormatBanner(version, listenURL, up, fallback), "\n")+"\n")
}

func (p *Printer) write(lines []string) {
	block := "\n" + strings.Join(lines, "\n") + "\n"

	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.out, block)
}
