// Package extract scans free-form language-model output for delimited
// widget fragments and decodes them into typed widgets.
//
// The parser is deliberately forgiving about fragment content: a fragment
// that fails to decode (malformed JSON, an unknown discriminator, a field
// invariant violation) is skipped and logged at debug level, never
// surfaced to the caller. One bad fragment cannot suppress its siblings or
// the surrounding text.
package extract

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/chatware/chatwidgets-go/widget"
)

// Delimiters recognized around embedded fragments. Matching is
// case-insensitive and spans line breaks.
const (
	OpenDelimiter  = "<widget>"
	CloseDelimiter = "</widget>"
)

var fragmentPattern = regexp.MustCompile(`(?is)<widget>(.*?)</widget>`)

// Parser extracts widget fragments from raw text. It holds no mutable
// state and is safe to share across concurrent calls.
type Parser struct {
	codec *widget.Codec
	log   *slog.Logger
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithLogger sets the logger used for skipped-fragment diagnostics.
func WithLogger(log *slog.Logger) ParserOption {
	return func(p *Parser) { p.log = log }
}

// NewParser constructs a parser over the given codec. A nil codec gets the
// default built-in codec.
func NewParser(codec *widget.Codec, opts ...ParserOption) *Parser {
	p := &Parser{codec: codec}
	for _, opt := range opts {
		opt(p)
	}
	if p.codec == nil {
		p.codec = widget.NewCodec()
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	return p
}

// Parse scans raw for delimited fragments. It returns raw with every
// delimited span removed (and the result trimmed), plus the successfully
// decoded widgets in order of appearance. widgets is nil, not an empty
// slice, when no fragment decoded, so callers can distinguish "no hints"
// without inspecting logs. Parse never fails on fragment content.
func (p *Parser) Parse(raw string) (clean string, widgets []widget.Widget) {
	matches := fragmentPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(raw), nil
	}

	var sb strings.Builder
	prev := 0
	for _, m := range matches {
		sb.WriteString(raw[prev:m[0]])
		prev = m[1]

		inner := strings.TrimSpace(raw[m[2]:m[3]])
		if inner == "" {
			continue
		}
		w, err := p.codec.Decode([]byte(inner))
		if err != nil {
			// Model-generated noise: skip this fragment, keep the rest.
			p.log.Debug("skipping undecodable widget fragment",
				slog.String("err", err.Error()))
			continue
		}
		widgets = append(widgets, w)
	}
	sb.WriteString(raw[prev:])

	return strings.TrimSpace(sb.String()), widgets
}
