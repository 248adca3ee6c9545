package utils

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// Chunk text is stored brotli-compressed. Manual text compresses well and
// chunks are only decompressed on retrieval hits.

// CompressText compresses a chunk's text for storage.
func CompressText(text string) ([]byte, error) {
	var buf bytes.Buffer
	writer := brotli.NewWriter(&buf)
	if _, err := writer.Write([]byte(text)); err != nil {
		return nil, fmt.Errorf("failed to write to brotli writer: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close brotli writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressText restores a chunk's text from its stored form.
func DecompressText(compressed []byte) (string, error) {
	reader := brotli.NewReader(bytes.NewReader(compressed))
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read from brotli reader: %w", err)
	}
	return string(data), nil
}
