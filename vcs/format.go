package vcs

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Supported file versions.
const (
	Version4 = 4
	Version5 = 5
	Version6 = 6
)

const (
	// HeaderSize is the size of the fixed file header for every version.
	HeaderSize = 28

	// MaxUnpackedBlockSize caps the decompressed size of one chunk.
	MaxUnpackedBlockSize = 1 << 17

	// SentinelComboID is the id of the record that terminates the static
	// combo record array.
	SentinelComboID = 0xffffffff

	recordSize     = 8
	dictEntrySize  = 8
	chunkEnd       = 0xffffffff
	chunkTagMask   = 0xc0000000
	chunkSizeMask  = 0x3fffffff
	chunkTagBZip2  = 0x00000000
	chunkTagRaw    = 0x80000000
	chunkTagLZMA   = 0x40000000
	maxChunkLength = chunkSizeMask
)

// Format errors.
var (
	// ErrUnsupportedVersion is returned for files that are not version 4, 5 or 6.
	ErrUnsupportedVersion = errors.New("vcs: unsupported file version")

	// ErrTruncated is returned when the data ends before a structure does.
	ErrTruncated = errors.New("vcs: truncated data")

	// ErrCorruptChunk is returned for chunks with an unknown compression
	// tag or malformed payload.
	ErrCorruptChunk = errors.New("vcs: corrupt chunk")

	// ErrBlockTooLarge is returned when a chunk unpacks to more than
	// MaxUnpackedBlockSize bytes.
	ErrBlockTooLarge = errors.New("vcs: unpacked chunk too large")

	// ErrComboNotFound is returned when a static combo is not in the file.
	ErrComboNotFound = errors.New("vcs: static combo not found")

	// ErrAllSkipped is returned when every dynamic combo of a version 4
	// static combo is skipped.
	ErrAllSkipped = errors.New("vcs: all dynamic combos skipped")

	// ErrDiffOverflow is returned when a patch produces more bytes than
	// the output allows.
	ErrDiffOverflow = errors.New("vcs: diff output exceeds limit")

	// ErrCorruptDiff is returned for patches that reference bytes outside
	// the reference or the patch itself.
	ErrCorruptDiff = errors.New("vcs: corrupt diff")
)

// Header is the fixed file header.
//
// The sixth header word is NumStaticCombos for versions 5 and 6 and
// DiffReferenceSize for version 4; only the field matching Version is set.
type Header struct {
	Version       int32
	TotalCombos   int32
	DynamicCombos int32
	Flags         uint32
	CentroidMask  uint32

	// NumStaticCombos counts the static combo records, sentinel included.
	NumStaticCombos int32

	// DiffReferenceSize is the size of the version 4 reference combo.
	DiffReferenceSize int32

	SourceCRC32 uint32
}

// Legacy reports whether h describes a version 4 diff file.
func (h Header) Legacy() bool { return h.Version == Version4 }

// HasAliases reports whether the file carries a static combo alias table.
func (h Header) HasAliases() bool { return h.Version == Version6 }

// ParseHeader decodes and validates a header from the first HeaderSize
// bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncated, HeaderSize, len(b))
	}
	le := binary.LittleEndian
	h := Header{
		Version:       int32(le.Uint32(b[0:4])),  // #nosec G115 -- signed on disk
		TotalCombos:   int32(le.Uint32(b[4:8])),  // #nosec G115 -- signed on disk
		DynamicCombos: int32(le.Uint32(b[8:12])), // #nosec G115 -- signed on disk
		Flags:         le.Uint32(b[12:16]),
		CentroidMask:  le.Uint32(b[16:20]),
		SourceCRC32:   le.Uint32(b[24:28]),
	}
	sixth := int32(le.Uint32(b[20:24])) // #nosec G115 -- signed on disk

	switch h.Version {
	case Version4:
		h.DiffReferenceSize = sixth
		if sixth < 0 {
			return Header{}, fmt.Errorf("%w: negative reference size %d", ErrTruncated, sixth)
		}
	case Version5, Version6:
		h.NumStaticCombos = sixth
		if sixth < 1 {
			return Header{}, fmt.Errorf("%w: %d static combo records", ErrTruncated, sixth)
		}
	default:
		return Header{}, fmt.Errorf("%w %d", ErrUnsupportedVersion, h.Version)
	}
	if h.DynamicCombos <= 0 {
		return Header{}, fmt.Errorf("vcs: header declares %d dynamic combos", h.DynamicCombos)
	}
	return h, nil
}

func (h Header) appendBytes(dst []byte) []byte {
	sixth := h.NumStaticCombos
	if h.Legacy() {
		sixth = h.DiffReferenceSize
	}
	le := binary.LittleEndian
	dst = le.AppendUint32(dst, uint32(h.Version))       // #nosec G115 -- bit-preserving
	dst = le.AppendUint32(dst, uint32(h.TotalCombos))   // #nosec G115 -- bit-preserving
	dst = le.AppendUint32(dst, uint32(h.DynamicCombos)) // #nosec G115 -- bit-preserving
	dst = le.AppendUint32(dst, h.Flags)
	dst = le.AppendUint32(dst, h.CentroidMask)
	dst = le.AppendUint32(dst, uint32(sixth)) // #nosec G115 -- bit-preserving
	return le.AppendUint32(dst, h.SourceCRC32)
}

// AlignValue rounds v up to a multiple of align. Alignments of 0 or 1
// leave v unchanged.
func AlignValue(v, align int64) int64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// IOConstraints describes the alignment a file system prefers for reads.
type IOConstraints struct {
	OffsetAlign int64
	SizeAlign   int64
}

// Window is an aligned read covering the byte range [start, end).
type Window struct {
	// Offset is the aligned file offset to read from.
	Offset int64

	// Length is the aligned number of bytes to read.
	Length int64

	// DataOffset is the position of start inside the read buffer.
	DataOffset int
}

// ReadWindow computes the aligned read that covers [start, end).
// The aligned offset never exceeds start.
func ReadWindow(start, end int64, c IOConstraints) Window {
	off := start
	if c.OffsetAlign > 1 {
		off = AlignValue(start-c.OffsetAlign+1, c.OffsetAlign)
	}
	return Window{
		Offset:     off,
		Length:     AlignValue(end-off, c.SizeAlign),
		DataOffset: int(start - off),
	}
}
