// Package record turns raw input lines into key/value pairs.
package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/zeebo/errs"

	"github.com/prxssh/groupby/api"
)

// ErrParse classifies lines that do not yield a valid pair. Whether such a
// line is skipped or aborts the job is decided by the caller.
var ErrParse = errs.Class("parse")

// LineError describes why a single line was rejected.
type LineError struct {
	// Source is the input the line came from, if known.
	Source string
	// Offset is the byte offset of the line within Source, or -1 if unknown.
	Offset int64
	Text   string
	Reason string
}

func (e *LineError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("malformed line %q: %s", e.Text, e.Reason)
	}

	return fmt.Sprintf("%s@%d: malformed line %q: %s", e.Source, e.Offset, e.Text, e.Reason)
}

// Parser extracts the key and value columns of a delimited line.
type Parser struct {
	// Delimiter separates fields. Defaults to ",".
	Delimiter string

	// KeyColumn and ValueColumn are 0-based field indexes.
	KeyColumn   int
	ValueColumn int

	// Columns, when positive, is the exact field count every line must have.
	Columns int
}

// Parse converts one line into a pair. Any failure is an ErrParse wrapping a
// *LineError; Source and Offset are left for the caller to fill in via Locate.
func (p *Parser) Parse(line string) (api.KeyValue, error) {
	line = strings.TrimSuffix(line, "\r")

	if !utf8.ValidString(line) {
		return api.KeyValue{}, reject(line, "invalid UTF-8")
	}

	delim := p.Delimiter
	if delim == "" {
		delim = ","
	}

	fields := strings.Split(line, delim)
	if p.Columns > 0 && len(fields) != p.Columns {
		return api.KeyValue{}, reject(line, fmt.Sprintf("got %d columns, want %d", len(fields), p.Columns))
	}

	need := max(p.KeyColumn, p.ValueColumn) + 1
	if len(fields) < need {
		return api.KeyValue{}, reject(line, fmt.Sprintf("got %d columns, need at least %d", len(fields), need))
	}

	raw := strings.TrimSpace(fields[p.ValueColumn])
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		reason := fmt.Sprintf("value %q is not an integer", raw)
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			reason = fmt.Sprintf("value %q overflows int64", raw)
		}
		return api.KeyValue{}, reject(line, reason)
	}

	return api.KeyValue{Key: fields[p.KeyColumn], Value: value}, nil
}

// Locate fills in where a parse error occurred. Other errors are returned
// unchanged.
func Locate(err error, source string, offset int64) error {
	if le, ok := AsLineError(err); ok {
		le.Source = source
		le.Offset = offset
	}

	return err
}

// AsLineError extracts the *LineError carried by err.
func AsLineError(err error) (*LineError, bool) {
	var le *LineError
	if errors.As(err, &le) {
		return le, true
	}

	return nil, false
}

func reject(line, reason string) error {
	return ErrParse.Wrap(&LineError{Offset: -1, Text: line, Reason: reason})
}
