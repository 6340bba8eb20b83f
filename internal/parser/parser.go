// Package parser reads expense batches from text and YAML files.
//
// Text input holds one record per line in either sentence or fact form:
//
//	Alice spent 500
//	Dexter gave 2000 to Harry
//	spent(alice, 500).
//	gave(dexter, 2000, harry).
//
// Lines starting with '#' or '%' are comments. Currency symbols and
// thousands separators are stripped from amounts.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/settle"
)

// LineError points at the input line that could not be parsed.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

var (
	sentenceSpent = regexp.MustCompile(`(?i)^(.+?)\s+spent\s+(.+)$`)
	sentenceGave  = regexp.MustCompile(`(?i)^(.+?)\s+gave\s+(.+?)\s+to\s+(.+)$`)
	factSpent     = regexp.MustCompile(`(?i)^spent\(\s*([^,]+?)\s*,\s*([^,)]+?)\s*\)\.?$`)
	factGave      = regexp.MustCompile(`(?i)^gave\(\s*([^,]+?)\s*,\s*([^,]+?)\s*,\s*([^,)]+?)\s*\)\.?$`)
)

// Parse reads a text batch.
func Parse(r io.Reader) ([]settle.Record, error) {
	var batch []settle.Record
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "%") {
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			return nil, &LineError{Line: n, Text: line, Err: err}
		}
		batch = append(batch, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return batch, nil
}

// ParseLine parses a single record in sentence or fact form.
func ParseLine(line string) (settle.Record, error) {
	line = strings.TrimSpace(line)
	if m := factGave.FindStringSubmatch(line); m != nil {
		return gave(m[1], m[2], m[3])
	}
	if m := factSpent.FindStringSubmatch(line); m != nil {
		return spent(m[1], m[2])
	}
	if m := sentenceGave.FindStringSubmatch(line); m != nil {
		return gave(m[1], m[2], m[3])
	}
	if m := sentenceSpent.FindStringSubmatch(line); m != nil {
		return spent(m[1], m[2])
	}
	return settle.Record{}, fmt.Errorf("unrecognised record")
}

func spent(who, amount string) (settle.Record, error) {
	amt, err := ParseAmount(amount)
	if err != nil {
		return settle.Record{}, err
	}
	return settle.Spent(strings.TrimSpace(who), amt), nil
}

func gave(giver, amount, receiver string) (settle.Record, error) {
	amt, err := ParseAmount(amount)
	if err != nil {
		return settle.Record{}, err
	}
	return settle.Gave(strings.TrimSpace(giver), amt, strings.TrimSpace(receiver)), nil
}

var currencySymbols = []string{"$", "€", "£", "¥", "円", "￥"}

// ParseAmount strips currency symbols and thousands separators and parses
// the remaining decimal.
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)
	for _, sym := range currencySymbols {
		s = strings.TrimPrefix(s, sym)
		s = strings.TrimSuffix(s, sym)
	}
	s = strings.TrimSpace(s)
	// sign before the symbol, as in "-$5"
	if strings.HasPrefix(s, "-") {
		rest := strings.TrimSpace(s[1:])
		for _, sym := range currencySymbols {
			rest = strings.TrimPrefix(rest, sym)
		}
		s = "-" + rest
	}
	s = strings.NewReplacer(",", "", "_", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", raw)
	}
	return d, nil
}

// ParseFile reads a batch from disk. Files ending in .yaml or .yml are read
// as YAML, everything else as text.
func ParseFile(path string) ([]settle.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(f)
	default:
		return Parse(f)
	}
}
