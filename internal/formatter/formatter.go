// Package formatter renders proxied exchanges as colourised console text.
//
// Rendering is display-only: inputs are never modified, secrets are masked
// via the redact package, and malformed bodies degrade to raw text.
package formatter

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"shapes-debugger/internal/model"
	"shapes-debugger/internal/redact"
)

// maxDecodedBody caps gzip expansion for display.
const maxDecodedBody = 16 << 20

var (
	bracketLine = regexp.MustCompile(`^[{}\[\]],?$`)
	roleLine    = regexp.MustCompile(`^"role": "([^"\\]*)"(,?)$`)
	valueLine   = regexp.MustCompile(`^("(?:model|content)": )(".*")(,?)$`)
	finishLine  = regexp.MustCompile(`^"finish_reason": "([^"\\]*)"(,?)$`)
)

// Formatter turns requests and responses into printable lines.
type Formatter struct {
	p *palette
}

// New creates a Formatter. When colors is false the output is plain text.
func New(colors bool) *Formatter {
	return &Formatter{p: newPalette(colors)}
}

// FormatRequest renders a buffered client request.
func (f *Formatter) FormatRequest(req *model.ProxyRequest) []string {
	lines := []string{
		f.p.requestTitle.Sprint("=== Request ==="),
		f.p.label.Sprint("Exchange:") + " " + req.ID,
		f.p.label.Sprint("Method:") + " " + req.Method,
		f.p.label.Sprint("URL:") + " " + req.URI,
	}
	lines = append(lines, f.headers(req.Header)...)
	lines = append(lines, f.body(req.Header, req.Body, false)...)
	return lines
}

// FormatResponse renders a buffered upstream response.
func (f *Formatter) FormatResponse(resp *model.ProxyResponse) []string {
	lines := []string{
		f.p.statusTitle(resp.StatusCode).Sprint("=== Response ==="),
		f.p.label.Sprint("Exchange:") + " " + resp.ID,
		f.p.label.Sprint("Status:") + " " + strconv.Itoa(resp.StatusCode),
		f.p.label.Sprint("Duration:") + " " + resp.Duration.Round(time.Millisecond).String(),
	}
	lines = append(lines, f.headers(resp.Header)...)
	lines = append(lines, f.body(resp.Header, resp.Body, true)...)
	return lines
}

// FormatError renders a failed exchange.
func (f *Formatter) FormatError(id string, status int, reason string) []string {
	return []string{
		f.p.errorTitle.Sprint("=== Upstream error ==="),
		f.p.label.Sprint("Exchange:") + " " + id,
		f.p.label.Sprint("Status:") + " " + strconv.Itoa(status),
		f.p.failure.Sprint("Upstream error:") + " " + reason,
	}
}

// FormatBanner renders the startup summary.
func (f *Formatter) FormatBanner(version, listenURL string, up model.Candidate, fallback bool) []string {
	how := "probe"
	if fallback {
		how = "fallback"
	}
	return []string{
		f.p.banner.Sprint("Debugger proxy " + version),
		f.p.banner.Sprint("→ Listening on  :") + " " + listenURL,
		f.p.banner.Sprint("→ Forwarding to :") + " " + up.URL + f.p.muted.Sprintf(" (%s, %s)", up.Label, how),
	}
}

func (f *Formatter) headers(h http.Header) []string {
	lines := []string{f.p.label.Sprint("Headers:")}

	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := strings.Join(h[name], ", ")
		style := f.p.muted
		if redact.Important(name) {
			style = f.p.important
		}
		lines = append(lines, style.Sprintf("  %s: %s", name, redact.Header(name, value)))
	}
	return lines
}

func (f *Formatter) body(h http.Header, body []byte, isResponse bool) []string {
	if len(body) == 0 {
		return nil
	}

	text := decodeForDisplay(h, body)
	lines := []string{f.p.label.Sprint("Body:")}

	trimmed := bytes.TrimSpace(text)
	if !json.Valid(trimmed) {
		return append(lines, strings.Split(string(text), "\n")...)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return append(lines, strings.Split(string(text), "\n")...)
	}
	for _, line := range strings.Split(buf.String(), "\n") {
		lines = append(lines, f.jsonLine(line, isResponse))
	}
	return lines
}

// jsonLine styles one line of indented JSON. Keys of interest get their
// value emphasised; everything else is muted.
func (f *Formatter) jsonLine(line string, isResponse bool) string {
	trimmed := strings.TrimLeft(line, " ")
	indent := line[:len(line)-len(trimmed)]

	if bracketLine.MatchString(trimmed) {
		return indent + f.p.muted.Sprint(trimmed)
	}
	if m := roleLine.FindStringSubmatch(trimmed); m != nil {
		return indent + f.p.muted.Sprint(`"role": `) + f.p.role(m[1]).Sprint(`"`+m[1]+`"`) + m[2]
	}
	if m := valueLine.FindStringSubmatch(trimmed); m != nil {
		style := f.p.content
		if strings.HasPrefix(m[1], `"model"`) {
			style = f.p.model
		}
		return indent + f.p.muted.Sprint(m[1]) + style.Sprint(m[2]) + m[3]
	}
	if isResponse {
		if m := finishLine.FindStringSubmatch(trimmed); m != nil {
			return indent + f.p.muted.Sprint(`"finish_reason": `) + f.p.finishReason(m[1]).Sprint(`"`+m[1]+`"`) + m[2]
		}
	}
	return indent + f.p.muted.Sprint(trimmed)
}

// decodeForDisplay gunzips a gzip-encoded body; the raw bytes are returned
// when decoding fails.
func decodeForDisplay(h http.Header, body []byte) []byte {
	if !strings.Contains(strings.ToLower(h.Get("Content-Encoding")), "gzip") {
		return body
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return body
	}
	defer func() { _ = zr.Close() }()

	decoded, err := io.ReadAll(io.LimitReader(zr, maxDecodedBody))
	if err != nil {
		return body
	}
	return decoded
}
