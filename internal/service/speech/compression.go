package speech

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// CompressPayload 按协议头声明的方式压缩
func CompressPayload(data []byte, method CompressionMethod) ([]byte, error) {
	switch method {
	case NoCompression:
		return data, nil
	case GzipCompression:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, fmt.Errorf("gzip write failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip close failed: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
}

// DecompressPayload 解压服务端返回的 payload
func DecompressPayload(data []byte, method CompressionMethod) ([]byte, error) {
	switch method {
	case NoCompression:
		return data, nil
	case GzipCompression:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader creation failed: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("gzip read failed: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
}
