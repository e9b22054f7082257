// Package output renders aggregated entries as "<key> <count> <sum>" lines.
//
// Keys are written verbatim unless that would make the line ambiguous: an
// empty key, or one containing whitespace, a double quote or a non-printable
// rune, is written as a Go-quoted string instead.
package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/prxssh/groupby/internal/agg"
)

// SuccessMarker is written next to the shards once every one of them is final.
const SuccessMarker = "_SUCCESS"

// Entry is one line of job output.
type Entry struct {
	Key  string
	Stat agg.Stat
}

// ShardName is the file name of the output of a reduce partition.
func ShardName(partition int) string {
	return fmt.Sprintf("part-r-%05d", partition)
}

// Format renders e without a trailing newline.
func Format(e Entry) string {
	return EncodeKey(e.Key) + " " +
		strconv.FormatInt(e.Stat.Count, 10) + " " +
		strconv.FormatInt(e.Stat.Sum, 10)
}

// EncodeKey returns key as it appears in output.
func EncodeKey(key string) string {
	if needsQuoting(key) {
		return strconv.Quote(key)
	}

	return key
}

func needsQuoting(key string) bool {
	if key == "" {
		return true
	}

	for _, r := range key {
		if r == '"' || unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return true
		}
	}

	return false
}

// ParseLine is the inverse of Format.
func ParseLine(line string) (Entry, error) {
	key, rest, err := splitKey(line)
	if err != nil {
		return Entry{}, err
	}

	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return Entry{}, fmt.Errorf("output: line %q: want count and sum after key", line)
	}

	count, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("output: line %q: bad count: %w", line, err)
	}
	sum, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("output: line %q: bad sum: %w", line, err)
	}

	return Entry{Key: key, Stat: agg.Stat{Count: count, Sum: sum}}, nil
}

func splitKey(line string) (key, rest string, err error) {
	if !strings.HasPrefix(line, `"`) {
		key, rest, ok := strings.Cut(line, " ")
		if !ok {
			return "", "", fmt.Errorf("output: line %q has no fields after key", line)
		}
		return key, rest, nil
	}

	quoted, err := strconv.QuotedPrefix(line)
	if err != nil {
		return "", "", fmt.Errorf("output: line %q: bad quoted key: %w", line, err)
	}
	key, err = strconv.Unquote(quoted)
	if err != nil {
		return "", "", fmt.Errorf("output: line %q: bad quoted key: %w", line, err)
	}

	return key, line[len(quoted):], nil
}

// Writer writes entries one per line through a buffer.
type Writer struct {
	w *bufio.Writer
	n int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) Write(e Entry) error {
	if _, err := w.w.WriteString(Format(e)); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.n++

	return nil
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Count is the number of entries written so far.
func (w *Writer) Count() int {
	return w.n
}

// ReadEntries parses every line of r.
func ReadEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if sc.Text() == "" {
			continue
		}
		e, err := ParseLine(sc.Text())
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, sc.Err()
}
