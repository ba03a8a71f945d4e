// Package wire holds the framing rules shared by the dirpull server and client:
// command lines, sentinel-terminated text bodies and length-prefixed directory bundles.
package wire

import (
	"errors"
	"fmt"
	"io"
)

// Discriminator bytes, one of which precedes every response.
const (
	FlagText   byte = 0
	FlagBinary byte = 1
)

// EndOfText terminates every text body. A listed name equal to it cannot be
// told apart from the terminator.
const EndOfText = "endOfText"

const (
	MsgDirectoryNotFound = "Directory not found!"
	MsgInvalidCommand    = "Invalid command!"
)

// MaxStringLen is the largest name a length-prefixed string can carry.
const MaxStringLen = 0xFFFF

var (
	ErrTruncated     = fmt.Errorf("stream ended before declared length: %w", io.ErrUnexpectedEOF)
	ErrMalformed     = errors.New("malformed bundle")
	ErrTooLarge      = errors.New("declared file size exceeds limit")
	ErrUnknownFlag   = errors.New("unknown response discriminator")
	ErrStringTooLong = errors.New("string too long")
)
