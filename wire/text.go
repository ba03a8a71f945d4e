package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// WriteText writes each line followed by the EndOfText sentinel.
func WriteText(w io.Writer, lines ...string) error {
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString(EndOfText)
	sb.WriteByte('\n')

	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteTextResponse writes the text discriminator followed by a text body.
func WriteTextResponse(w io.Writer, lines ...string) error {
	if _, err := w.Write([]byte{FlagText}); err != nil {
		return err
	}
	return WriteText(w, lines...)
}

// WriteBinaryFlag writes the discriminator announcing a bundle.
func WriteBinaryFlag(w io.Writer) error {
	_, err := w.Write([]byte{FlagBinary})
	return err
}

// ReadText reads lines up to, but not including, the EndOfText sentinel.
func ReadText(r *bufio.Reader) ([]string, error) {
	lines := []string{}
	for {
		line, err := ReadLine(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, fmt.Errorf("text body: %w", io.ErrUnexpectedEOF)
			}
			return lines, err
		}
		if line == EndOfText {
			return lines, nil
		}
		lines = append(lines, line)
	}
}

// ReadLine reads one newline-terminated line without its terminator. A final line
// without a terminator is returned as-is; io.EOF is only returned when nothing was read.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSuffix(line, "\r"), nil
		}
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}
