package interchange

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrFileTooLarge is returned by ReadAll when the upload exceeds its limit.
var ErrFileTooLarge = errors.New("file too large")

// ReadAll reads an uploaded file, refusing anything larger than maxBytes.
// A non-positive maxBytes disables the limit.
func ReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, maxBytes)
	}
	return data, nil
}

// normalizeText strips a UTF-8 byte order mark and replaces invalid byte
// sequences with U+FFFD.
func normalizeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	return strings.ToValidUTF8(string(data), "�")
}
