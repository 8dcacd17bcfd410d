package counts

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the compression of chunk files. Final count files are always
// plain text so lookups can seek into them.
type Codec string

const (
	CodecNone Codec = "none"
	CodecZstd Codec = "zstd"
	CodecLZ4  Codec = "lz4"
)

// ParseCodec maps a config string to a Codec. The empty string is CodecNone.
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case "", CodecNone:
		return CodecNone, nil
	case CodecZstd, CodecLZ4:
		return Codec(s), nil
	}
	return CodecNone, fmt.Errorf("unknown chunk compression %q", s)
}

// Ext is the file name suffix for the codec, including the dot.
func (c Codec) Ext() string {
	switch c {
	case CodecZstd:
		return ".zst"
	case CodecLZ4:
		return ".lz4"
	}
	return ""
}

// CodecForPath infers the codec from a file name suffix.
func CodecForPath(path string) Codec {
	switch {
	case strings.HasSuffix(path, ".zst"):
		return CodecZstd
	case strings.HasSuffix(path, ".lz4"):
		return CodecLZ4
	}
	return CodecNone
}

// wrapWriter returns a compressing writer on top of w. Closing it flushes the
// codec but does not close w.
func (c Codec) wrapWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CodecZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		return enc, nil
	case CodecLZ4:
		return lz4.NewWriter(w), nil
	}
	return nopWriteCloser{w}, nil
}

// wrapReader returns a decompressing reader on top of r.
func (c Codec) wrapReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CodecZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		return zstdReadCloser{dec}, nil
	case CodecLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	}
	return io.NopCloser(r), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
