package wire

import (
	"bufio"
	"fmt"
)

// Response is one framed server reply: either *TextResponse or *BinaryResponse.
type Response interface {
	Flag() byte
}

type TextResponse struct {
	Lines []string
}

func (*TextResponse) Flag() byte { return FlagText }

// BinaryResponse carries a bundle decoder positioned right after the
// discriminator. It must be fully consumed before the next ReadResponse.
type BinaryResponse struct {
	Bundle *BundleReader
}

func (*BinaryResponse) Flag() byte { return FlagBinary }

// ReadResponse reads one discriminator byte and decodes the matching body. Text
// bodies are read in full; binary bodies are left for the caller to stream.
// A clean end of stream before the discriminator is returned as io.EOF.
func ReadResponse(r *bufio.Reader, maxFileSize int64) (Response, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch flag {
	case FlagText:
		lines, err := ReadText(r)
		if err != nil {
			return nil, err
		}
		return &TextResponse{Lines: lines}, nil
	case FlagBinary:
		br := NewBundleReader(r)
		br.MaxFileSize = maxFileSize
		return &BinaryResponse{Bundle: br}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFlag, flag)
	}
}
