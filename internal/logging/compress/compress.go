package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Gzip compresses the UTF-8 bytes of payload. The gzip header carries no
// name or modification time, so equal input gives equal output. An empty
// payload yields a valid empty gzip stream.
func Gzip(payload string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(payload)/2 + 32)

	gz := gzip.NewWriter(&buf)
	if _, err := io.WriteString(gz, payload); err != nil {
		_ = gz.Close()
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return buf.Bytes(), nil
}

func Gunzip(data []byte) (string, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	out, err := io.ReadAll(gz)
	if err != nil {
		return "", fmt.Errorf("failed to decompress payload: %w", err)
	}
	return string(out), nil
}
