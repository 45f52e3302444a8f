package vcs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// The engine LZMA header: id, unpacked size, stream size, 5 property
// bytes. The raw LZMA stream follows.
const (
	lzmaID         = 'L' | 'Z'<<8 | 'M'<<16 | 'A'<<24
	lzmaHeaderSize = 17
	lzmaPropsSize  = 5
)

// decodeLZMA unpacks an engine LZMA payload by rebuilding the classic
// 13-byte header the lzma package expects.
func decodeLZMA(dst, payload []byte) ([]byte, error) {
	if len(payload) < lzmaHeaderSize {
		return dst, fmt.Errorf("%w: lzma header needs %d bytes, have %d", ErrCorruptChunk, lzmaHeaderSize, len(payload))
	}
	le := binary.LittleEndian
	if le.Uint32(payload[0:4]) != lzmaID {
		return dst, fmt.Errorf("%w: bad lzma id %#x", ErrCorruptChunk, le.Uint32(payload[0:4]))
	}
	actual := le.Uint32(payload[4:8])
	streamSize := le.Uint32(payload[8:12])
	if actual > MaxUnpackedBlockSize {
		return dst, fmt.Errorf("%w: lzma chunk unpacks to %d bytes", ErrBlockTooLarge, actual)
	}
	if int64(streamSize) > int64(len(payload)-lzmaHeaderSize) {
		return dst, fmt.Errorf("%w: lzma stream of %d bytes, have %d", ErrCorruptChunk, streamSize, len(payload)-lzmaHeaderSize)
	}
	if actual == 0 {
		return dst, nil
	}

	classic := make([]byte, 0, lzma.HeaderLen)
	classic = append(classic, payload[12:12+lzmaPropsSize]...)
	classic = le.AppendUint64(classic, uint64(actual))
	stream := payload[lzmaHeaderSize : lzmaHeaderSize+int(streamSize)]

	zr, err := lzma.NewReader(io.MultiReader(bytes.NewReader(classic), bytes.NewReader(stream)))
	if err != nil {
		return dst, fmt.Errorf("%w: lzma: %w", ErrCorruptChunk, err)
	}
	out := append(dst, make([]byte, actual)...)
	if _, err := io.ReadFull(zr, out[len(dst):]); err != nil {
		return dst, fmt.Errorf("%w: lzma: %w", ErrCorruptChunk, err)
	}
	return out, nil
}

// encodeLZMA compresses data and wraps it in the engine LZMA header.
func encodeLZMA(data []byte) ([]byte, error) {
	le := binary.LittleEndian
	out := le.AppendUint32(nil, lzmaID)
	out = le.AppendUint32(out, uint32(len(data))) // #nosec G115 -- bounded by MaxUnpackedBlockSize

	if len(data) == 0 {
		out = le.AppendUint32(out, 0)
		return append(out, make([]byte, lzmaPropsSize)...), nil
	}

	var buf bytes.Buffer
	cfg := lzma.WriterConfig{
		DictCap:      MaxUnpackedBlockSize,
		SizeInHeader: true,
		Size:         int64(len(data)),
	}
	zw, err := cfg.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("vcs: lzma writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("vcs: lzma encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("vcs: lzma encode: %w", err)
	}

	classic := buf.Bytes()
	stream := classic[lzma.HeaderLen:]
	out = le.AppendUint32(out, uint32(len(stream))) // #nosec G115 -- small
	out = append(out, classic[:lzmaPropsSize]...)
	return append(out, stream...), nil
}
