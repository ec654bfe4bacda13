package main

import (
	"fmt"
	"io"

	"golang.org/x/text/transform"

	"github.com/luhtfiimanal/serialwatch/internal/config"
)

// newDecodingWriter returns a writer that converts bytes in the named
// charset to UTF-8 before passing them to w. Invalid input becomes U+FFFD.
// Multi-byte sequences split across writes are held until completed, so
// Close must be called to flush a trailing partial sequence.
func newDecodingWriter(w io.Writer, charset string) (io.WriteCloser, error) {
	enc, err := config.LookupEncoding(charset)
	if err != nil {
		return nil, fmt.Errorf("console %w", err)
	}
	return transform.NewWriter(w, enc.NewDecoder()), nil
}
