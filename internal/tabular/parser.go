// Package tabular decodes and splits delimited advisory exports into rows.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/joshsymonds/advisor/pkg/logger"
)

// Default ceilings.
const (
	DefaultMaxBytes int64 = 50 << 20
	DefaultMaxRows        = 100_000
)

var (
	// ErrEncoding means no supported text encoding decoded the input cleanly.
	ErrEncoding = errors.New("input is not valid text in any supported encoding")
	// ErrTooLarge means the input exceeded Options.MaxBytes.
	ErrTooLarge = errors.New("input exceeds size limit")
	// ErrTooManyRows means the input exceeded Options.MaxRows data rows.
	ErrTooManyRows = errors.New("input exceeds row limit")
	// ErrNoHeader means the input contained no header row.
	ErrNoHeader = errors.New("input has no header row")
)

// delimiters are the recognised separators in tie-break order.
var delimiters = []rune{',', ';', '\t', '|'}

// Options bounds a parse.
type Options struct {
	MaxBytes int64
	MaxRows  int
}

// Row is one data record. Line is the 1-based physical line the record
// starts on, counting the header as line 1.
type Row struct {
	index  map[string]int
	Fields []string
	Line   int
}

// Get returns the cell under header, or "" when the header is unknown.
func (r Row) Get(header string) string {
	i, ok := r.index[header]
	if !ok || i >= len(r.Fields) {
		return ""
	}
	return r.Fields[i]
}

// Warning describes a skipped or repaired input row.
type Warning struct {
	Reason string `json:"reason"`
	Line   int    `json:"line"`
	// Repaired is set when the row was kept after lenient quote handling.
	Repaired bool `json:"repaired,omitempty"`
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Reason)
}

// Result is the outcome of a parse.
type Result struct {
	Headers   []string
	Rows      []Row
	Warnings  []Warning
	Encoding  string
	Delimiter rune
	Lenient   bool
}

// Parser turns raw export bytes into rows.
type Parser struct {
	log  logger.Logger
	opts Options
}

// New creates a parser. Zero option values take the defaults.
func New(opts Options, log logger.Logger) *Parser {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Parser{opts: opts, log: log}
}

// ParseReader reads at most MaxBytes+1 bytes from r and parses them.
func (p *Parser) ParseReader(r io.Reader) (*Result, error) {
	raw, err := io.ReadAll(io.LimitReader(r, p.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return p.Parse(raw)
}

// Parse decodes raw, detects its delimiter and splits it into rows.
// Malformed rows become warnings; only encoding failure, ceilings and an
// input that cannot be read even leniently are fatal.
func (p *Parser) Parse(raw []byte) (*Result, error) {
	if int64(len(raw)) > p.opts.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(raw), p.opts.MaxBytes)
	}

	text, enc, err := decode(raw)
	if err != nil {
		return nil, err
	}
	text = strings.TrimPrefix(text, "\ufeff")

	delim := detectDelimiter(text)
	p.log.Debug("Decoded input", "encoding", enc, "delimiter", string(delim), "bytes", len(raw))

	res, err := p.read(text, delim, false)
	if err != nil {
		var perr *csv.ParseError
		if !errors.As(err, &perr) {
			return nil, err
		}
		p.log.Warn("Strict parse failed, retrying leniently",
			"line", perr.StartLine,
			"column", perr.Column,
			"error", err.Error(),
		)
		res, err = p.read(text, delim, true)
		if err != nil {
			return nil, fmt.Errorf("lenient parse: %w", err)
		}
		res.addRepairWarning(perr)
	}

	res.Encoding = enc
	res.Delimiter = delim
	return res, nil
}

// addRepairWarning records the line whose malformed quoting forced the
// lenient retry, unless that line was already reported as skipped.
func (r *Result) addRepairWarning(perr *csv.ParseError) {
	for _, w := range r.Warnings {
		if w.Line == perr.StartLine {
			return
		}
	}
	r.Warnings = append(r.Warnings, Warning{
		Line:     perr.StartLine,
		Reason:   fmt.Sprintf("repaired malformed quoting (%v)", perr.Err),
		Repaired: true,
	})
	sort.SliceStable(r.Warnings, func(i, j int) bool { return r.Warnings[i].Line < r.Warnings[j].Line })
}

func (p *Parser) read(text string, delim rune, lenient bool) (*Result, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = lenient

	res := &Result{Lenient: lenient}

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, err
	}
	res.Headers = normalizeHeaders(header)
	index := make(map[string]int, len(res.Headers))
	for i, h := range res.Headers {
		index[h] = i
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !lenient || !errors.As(err, &perr) {
				return nil, err
			}
			res.Warnings = append(res.Warnings, Warning{Line: perr.StartLine, Reason: perr.Err.Error()})
			continue
		}

		line, _ := r.FieldPos(0)
		if len(rec) != len(res.Headers) {
			res.Warnings = append(res.Warnings, Warning{
				Line:   line,
				Reason: fmt.Sprintf("expected %d fields, got %d", len(res.Headers), len(rec)),
			})
			continue
		}
		if blank(rec) {
			continue
		}

		if len(res.Rows) >= p.opts.MaxRows {
			return nil, fmt.Errorf("%w: more than %d rows", ErrTooManyRows, p.opts.MaxRows)
		}
		res.Rows = append(res.Rows, Row{Line: line, Fields: rec, index: index})
	}

	return res, nil
}

// detectDelimiter counts candidate separators outside quotes on the header
// line. Ties resolve in the order of delimiters; no hit means comma.
func detectDelimiter(text string) rune {
	counts := make(map[rune]int, len(delimiters))
	inQuotes := false
	for _, c := range text {
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		if c == '\n' || c == '\r' {
			break
		}
		counts[c]++
	}

	best, bestCount := delimiters[0], 0
	for _, d := range delimiters {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}

// normalizeHeaders trims names and suffixes duplicates with _2, _3, ...
func normalizeHeaders(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		out[i] = name
	}
	return out
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
