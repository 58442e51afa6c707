// Package tsv reads and writes the tab-separated grids the evaluator works
// on. input files may be UTF-8, with or without a byte order mark, or
// Shift_JIS as produced by Japanese Excel exports.
package tsv

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	EncodingAuto     = "auto"
	EncodingUTF8     = "utf-8"
	EncodingShiftJIS = "shift_jis"
	EncodingLatin1   = "iso-8859-1"
)

// ErrUnknownEncoding is returned for an encoding name this package does not
// decode
var ErrUnknownEncoding = errors.New("unknown input encoding")

// ErrInvalidUTF8 is returned when utf-8 input was requested and the bytes
// are not valid UTF-8
var ErrInvalidUTF8 = errors.New("input is not valid utf-8")

// ReadOptions controls how a grid is decoded
type ReadOptions struct {
	// Encoding is one of the Encoding constants; "" means EncodingAuto,
	// which tries UTF-8 first and falls back to Shift_JIS
	Encoding string

	// SkipHeader drops the first row
	SkipHeader bool
}

// Table is a decoded grid
type Table struct {
	Rows [][]string

	// Encoding is the encoding the input was decoded with
	Encoding string
}

// ReadFile reads the grid stored at path
func ReadFile(path string, opts ReadOptions) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	table, err := Read(data, opts)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return table, nil
}

// Read decodes and parses a grid. rows keep their own length; short rows
// are not padded.
func Read(data []byte, opts ReadOptions) (*Table, error) {
	text, enc, err := decode(data, opts.Encoding)
	if err != nil {
		return nil, err
	}

	rows, err := parse(text)
	if err != nil {
		return nil, err
	}
	if opts.SkipHeader && len(rows) > 0 {
		rows = rows[1:]
	}
	return &Table{Rows: rows, Encoding: enc}, nil
}

func parse(text string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// decode converts data to a UTF-8 string, stripping a UTF-8 byte order mark
func decode(data []byte, name string) (string, string, error) {
	switch strings.ToLower(name) {
	case "", EncodingAuto:
		if text, err := decodeUTF8(data); err == nil {
			return text, EncodingUTF8, nil
		}
		text, err := decodeWith(japanese.ShiftJIS, data)
		return text, EncodingShiftJIS, err
	case EncodingUTF8, "utf8":
		text, err := decodeUTF8(data)
		return text, EncodingUTF8, err
	case EncodingShiftJIS, "sjis", "cp932":
		text, err := decodeWith(japanese.ShiftJIS, data)
		return text, EncodingShiftJIS, err
	case EncodingLatin1, "latin1":
		text, err := decodeWith(charmap.ISO8859_1, data)
		return text, EncodingLatin1, err
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
}

func decodeUTF8(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrInvalidUTF8
	}
	return decodeWith(unicode.UTF8BOM, data)
}

func decodeWith(enc encoding.Encoding, data []byte) (string, error) {
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// WriteFile writes rows as UTF-8 TSV with "\n" line endings, creating the
// parent directory if needed
func WriteFile(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// Write writes rows as TSV. fields holding tabs, quotes or newlines are
// quoted.
func Write(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// ErrorArtifactPath returns the path of the diagnostic file written in
// place of output: the output path with its extension replaced by
// "_error.tsv"
func ErrorArtifactPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + "_error.tsv"
}

// WriteErrorArtifact writes message, one line per row, to the error
// artifact of outputPath and returns the artifact path
func WriteErrorArtifact(outputPath, message string) (string, error) {
	path := ErrorArtifactPath(outputPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for _, line := range strings.Split(strings.TrimRight(message, "\n"), "\n") {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
