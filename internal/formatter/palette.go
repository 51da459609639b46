package formatter

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// ColorMode selects when ANSI colours are emitted.
type ColorMode int

const (
	// ColorAuto follows the terminal and NO_COLOR/TERM (default).
	ColorAuto ColorMode = iota
	// ColorAlways forces colours on.
	ColorAlways
	// ColorNever forces colours off.
	ColorNever
)

// ParseColorMode parses a string into a ColorMode.
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(s) {
	case "auto", "":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	default:
		return ColorAuto, fmt.Errorf("invalid color mode %q: must be auto, always, or never", s)
	}
}

// ResolveColors decides whether to emit colours. In auto mode it defers to
// fatih/color's own detection (stdout is a TTY, NO_COLOR unset, TERM not dumb).
func ResolveColors(mode ColorMode) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		return !color.NoColor
	}
}

type palette struct {
	label     *color.Color
	muted     *color.Color
	important *color.Color
	banner    *color.Color
	failure   *color.Color

	requestTitle  *color.Color
	successTitle  *color.Color
	redirectTitle *color.Color
	errorTitle    *color.Color

	roles       map[string]*color.Color
	roleDefault *color.Color
	model       *color.Color
	content     *color.Color

	finish      map[string]*color.Color
	finishOther *color.Color
}

func newPalette(enabled bool) *palette {
	var all []*color.Color
	c := func(attrs ...color.Attribute) *color.Color {
		col := color.New(attrs...)
		all = append(all, col)
		return col
	}

	p := &palette{
		label:     c(color.Bold),
		muted:     c(color.FgHiBlack),
		important: c(color.FgMagenta),
		banner:    c(color.FgMagenta),
		failure:   c(color.FgRed),

		requestTitle:  c(color.FgCyan, color.Bold, color.Underline),
		successTitle:  c(color.FgGreen, color.Bold, color.Underline),
		redirectTitle: c(color.FgYellow, color.Bold, color.Underline),
		errorTitle:    c(color.FgRed, color.Bold, color.Underline),

		roles: map[string]*color.Color{
			"system":    c(color.FgHiBlack),
			"user":      c(color.FgCyan),
			"assistant": c(color.FgGreen),
			"function":  c(color.FgYellow),
		},
		roleDefault: c(color.FgWhite),
		model:       c(color.FgBlue),
		content:     c(color.FgWhite),

		finish: map[string]*color.Color{
			"stop":          c(color.FgGreen),
			"function_call": c(color.FgCyan),
		},
		finishOther: c(color.FgRed),
	}

	for _, col := range all {
		if enabled {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return p
}

func (p *palette) role(name string) *color.Color {
	if c, ok := p.roles[name]; ok {
		return c
	}
	return p.roleDefault
}

func (p *palette) finishReason(reason string) *color.Color {
	if c, ok := p.finish[reason]; ok {
		return c
	}
	return p.finishOther
}

// statusTitle picks the response title style by status-code bucket.
func (p *palette) statusTitle(code int) *color.Color {
	switch {
	case code >= 200 && code < 300:
		return p.successTitle
	case code >= 300 && code < 400:
		return p.redirectTitle
	default:
		return p.errorTitle
	}
}
