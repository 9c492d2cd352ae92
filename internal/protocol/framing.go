// Package protocol frames commands and replies on a byte stream.
//
// A command is one line terminated by '\n'. A reply is any number of lines followed by a
// line holding a single '.'; reply lines that begin with '.' get one more '.' prepended.
package protocol

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const (
	terminator = "."

	// DefaultMaxLineSize bounds a single command line.
	DefaultMaxLineSize = 64 * 1024
)

// ErrLineTooLong is returned when a command exceeds the configured size.
var ErrLineTooLong = errors.New("protocol: line too long")

// Reader reads framed commands or replies.
type Reader struct {
	r       *bufio.Reader
	maxLine int
}

// NewReader wraps r. maxLine <= 0 selects DefaultMaxLineSize.
func NewReader(r io.Reader, maxLine int) *Reader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	return &Reader{r: bufio.NewReader(r), maxLine: maxLine}
}

// ReadCommand returns the next command line without its line ending.
func (r *Reader) ReadCommand() (string, error) {
	return r.readLine()
}

// ReadReply returns the next reply with the terminator removed and dot-stuffing undone.
func (r *Reader) ReadReply() (string, error) {
	var lines []string
	for {
		line, err := r.readLine()
		if err != nil {
			return "", err
		}
		if line == terminator {
			return strings.Join(lines, "\n"), nil
		}
		lines = append(lines, strings.TrimPrefix(line, terminator))
	}
}

func (r *Reader) readLine() (string, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := r.r.ReadLine()
		if err != nil {
			if err == io.EOF && len(buf) > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		buf = append(buf, chunk...)
		if len(buf) > r.maxLine {
			return "", ErrLineTooLong
		}
		if !isPrefix {
			return strings.TrimRight(string(buf), "\r"), nil
		}
	}
}

// WriteCommand writes line as one command. Embedded line breaks are replaced by spaces.
func WriteCommand(w io.Writer, line string) error {
	line = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(line)
	if _, err := io.WriteString(w, line+"\n"); err != nil {
		return errors.Wrap(err, "write command")
	}
	return nil
}

// WriteReply writes reply followed by the terminator line in a single write.
func WriteReply(w io.Writer, reply string) error {
	var b strings.Builder
	if reply != "" {
		for _, line := range strings.Split(strings.ReplaceAll(reply, "\r\n", "\n"), "\n") {
			if strings.HasPrefix(line, terminator) {
				b.WriteString(terminator)
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	b.WriteString(terminator)
	b.WriteByte('\n')

	if _, err := io.WriteString(w, b.String()); err != nil {
		return errors.Wrap(err, "write reply")
	}
	return nil
}
