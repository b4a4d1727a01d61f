package cache

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// compressor gzips payloads above a size threshold. gzip's CRC32 trailer lets
// decode detect corrupted payloads instead of returning garbage.
type compressor struct {
	threshold int
	writers   sync.Pool
}

func newCompressor(threshold, level int) (*compressor, error) {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	if _, err := gzip.NewWriterLevel(io.Discard, level); err != nil {
		return nil, fmt.Errorf("cache: compression level %d: %w", level, err)
	}
	c := &compressor{threshold: threshold}
	c.writers.New = func() any {
		w, _ := gzip.NewWriterLevel(nil, level)
		return w
	}
	return c, nil
}

// maybeCompress returns the stored form of content. Content at or below the
// threshold is kept raw.
func (c *compressor) maybeCompress(content string) ([]byte, bool, error) {
	if len(content) <= c.threshold {
		return []byte(content), false, nil
	}

	var buf bytes.Buffer
	if err := c.compressTo(&buf, content); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}

// compressTo writes the gzip stream for content to dst using a pooled
// writer. Reset on the next Get clears any error left on the writer.
func (c *compressor) compressTo(dst io.Writer, content string) error {
	w := c.writers.Get().(*gzip.Writer)
	defer c.writers.Put(w)
	w.Reset(dst)

	if _, err := io.WriteString(w, content); err != nil {
		return fmt.Errorf("%w: %v", ErrCompress, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrCompress, err)
	}
	return nil
}

// decode reverses maybeCompress. The returned string never aliases payload.
func (c *compressor) decode(payload []byte, compressed bool) (string, error) {
	if !compressed {
		return string(payload), nil
	}
	r, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return string(out), nil
}
