package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression is the stream compression of a snapshot.
type Compression string

const (
	// CompressionNone stores the tar stream as is.
	CompressionNone Compression = "none"
	// CompressionLZ4 is fast with a moderate ratio.
	CompressionLZ4 Compression = "lz4"
	// CompressionZSTD has the better ratio. It is the default.
	CompressionZSTD Compression = "zstd"
)

// ParseCompression parses a compression name. The empty string is zstd.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(s); c {
	case "":
		return CompressionZSTD, nil
	case CompressionNone, CompressionLZ4, CompressionZSTD:
		return c, nil
	default:
		return "", fmt.Errorf("unknown compression %q", s)
	}
}

// Ext returns the file name extension of a snapshot.
func (c Compression) Ext() string {
	switch c {
	case CompressionLZ4:
		return ".tar.lz4"
	case CompressionZSTD:
		return ".tar.zst"
	default:
		return ".tar"
	}
}

// compressionOf infers the compression from a snapshot name.
func compressionOf(name string) (Compression, error) {
	for _, c := range []Compression{CompressionZSTD, CompressionLZ4, CompressionNone} {
		if len(name) >= len(c.Ext()) && name[len(name)-len(c.Ext()):] == c.Ext() {
			return c, nil
		}
	}
	return "", fmt.Errorf("not a snapshot: %s", name)
}

func (c Compression) newWriter(w io.Writer, level int) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionLZ4:
		zw := lz4.NewWriter(w)
		if level > 0 {
			if err := zw.Apply(lz4.CompressionLevelOption(lz4.CompressionLevel(1 << (8 + min(level, 9))))); err != nil {
				return nil, err
			}
		}
		return zw, nil
	case CompressionZSTD:
		opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if level > 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		return zstd.NewWriter(w, opts...)
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

func (c Compression) newReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionZSTD:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
