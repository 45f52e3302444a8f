package vcs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
)

// Compression selects how a chunk payload is stored.
type Compression int

const (
	// CompressRaw stores the payload as is.
	CompressRaw Compression = iota

	// CompressBZip2 stores a BZip2 stream.
	CompressBZip2

	// CompressLZMA stores an LZMA stream behind the engine LZMA header.
	CompressLZMA
)

var compressionNames = [...]string{"raw", "bzip2", "lzma"}

// String returns the scheme name.
func (c Compression) String() string {
	if c >= 0 && int(c) < len(compressionNames) {
		return compressionNames[c]
	}
	return "Unknown"
}

// ParseCompression maps a scheme name back to a Compression.
func ParseCompression(name string) (Compression, error) {
	for i, n := range compressionNames {
		if n == name {
			return Compression(i), nil
		}
	}
	return 0, fmt.Errorf("vcs: unknown compression %q", name)
}

// ComboFunc receives one decoded combo. code aliases a buffer that is
// reused for the next chunk; copy it to keep it.
type ComboFunc func(comboID uint32, code []byte) error

// DecodeChunks walks a chunk block starting at block[0] until the end
// marker and calls fn for every combo record. It returns the number of
// bytes consumed, end marker included.
func DecodeChunks(block []byte, fn ComboFunc) (int, error) {
	unpack := make([]byte, 0, MaxUnpackedBlockSize)
	pos := 0
	for {
		if pos+4 > len(block) {
			return pos, fmt.Errorf("%w: chunk header at %d", ErrTruncated, pos)
		}
		hdr := binary.LittleEndian.Uint32(block[pos:])
		pos += 4
		if hdr == chunkEnd {
			return pos, nil
		}

		n := int(hdr & chunkSizeMask)
		if hdr&chunkTagMask == chunkTagBZip2 {
			n = int(hdr)
		}
		if pos+n > len(block) {
			return pos, fmt.Errorf("%w: chunk of %d bytes at %d", ErrTruncated, n, pos-4)
		}
		payload := block[pos : pos+n]
		pos += n

		var err error
		switch hdr & chunkTagMask {
		case chunkTagBZip2:
			unpack, err = decodeBZip2(unpack[:0], payload)
		case chunkTagRaw:
			if n > MaxUnpackedBlockSize {
				err = fmt.Errorf("%w: raw chunk of %d bytes", ErrBlockTooLarge, n)
			}
			unpack = append(unpack[:0], payload...)
		case chunkTagLZMA:
			unpack, err = decodeLZMA(unpack[:0], payload)
		default:
			err = fmt.Errorf("%w: unrecognized compression tag %#x", ErrCorruptChunk, hdr&chunkTagMask)
		}
		if err != nil {
			return pos, err
		}
		if err := walkRecords(unpack, fn); err != nil {
			return pos, err
		}
	}
}

// walkRecords splits an unpacked chunk into {id, size, bytes} records.
func walkRecords(data []byte, fn ComboFunc) error {
	for p := 0; p < len(data); {
		if p+8 > len(data) {
			return fmt.Errorf("%w: record header at %d of %d", ErrCorruptChunk, p, len(data))
		}
		id := binary.LittleEndian.Uint32(data[p:])
		size := int(binary.LittleEndian.Uint32(data[p+4:]))
		p += 8
		if size > len(data)-p {
			return fmt.Errorf("%w: combo %d claims %d bytes, %d left", ErrCorruptChunk, id, size, len(data)-p)
		}
		if err := fn(id, data[p:p+size]); err != nil {
			return err
		}
		p += size
	}
	return nil
}

func decodeBZip2(dst, payload []byte) ([]byte, error) {
	zr, err := bzip2.NewReader(bytes.NewReader(payload), nil)
	if err != nil {
		return dst, fmt.Errorf("%w: bzip2: %w", ErrCorruptChunk, err)
	}
	defer zr.Close()

	return readLimited(dst, zr, "bzip2")
}

// readLimited drains r into dst, failing once more than
// MaxUnpackedBlockSize bytes come out.
func readLimited(dst []byte, r io.Reader, scheme string) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	n, err := buf.ReadFrom(io.LimitReader(r, MaxUnpackedBlockSize+1))
	if err != nil {
		return dst, fmt.Errorf("%w: %s: %w", ErrCorruptChunk, scheme, err)
	}
	if n > MaxUnpackedBlockSize {
		return dst, fmt.Errorf("%w: %s chunk", ErrBlockTooLarge, scheme)
	}
	return buf.Bytes(), nil
}

// appendRecord appends one {id, size, bytes} record.
func appendRecord(dst []byte, id uint32, code []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, id)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(code))) // #nosec G115 -- bounded by MaxUnpackedBlockSize
	return append(dst, code...)
}

// EncodeChunk compresses one unpacked chunk and prepends its header.
func EncodeChunk(unpacked []byte, c Compression) ([]byte, error) {
	if len(unpacked) > MaxUnpackedBlockSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBlockTooLarge, len(unpacked))
	}

	var payload []byte
	var tag uint32
	switch c {
	case CompressRaw:
		payload, tag = unpacked, chunkTagRaw
	case CompressBZip2:
		var buf bytes.Buffer
		zw, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
		if err != nil {
			return nil, fmt.Errorf("vcs: bzip2 writer: %w", err)
		}
		if _, err := zw.Write(unpacked); err != nil {
			return nil, fmt.Errorf("vcs: bzip2 encode: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("vcs: bzip2 encode: %w", err)
		}
		payload, tag = buf.Bytes(), chunkTagBZip2
	case CompressLZMA:
		var err error
		if payload, err = encodeLZMA(unpacked); err != nil {
			return nil, err
		}
		tag = chunkTagLZMA
	default:
		return nil, fmt.Errorf("vcs: unknown compression %d", c)
	}

	if len(payload) > maxChunkLength {
		return nil, fmt.Errorf("%w: compressed chunk of %d bytes", ErrBlockTooLarge, len(payload))
	}
	out := binary.LittleEndian.AppendUint32(make([]byte, 0, 4+len(payload)), tag|uint32(len(payload))) // #nosec G115 -- checked above
	return append(out, payload...), nil
}
