package vcs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"slices"
)

// Writer assembles a combo cache file in memory.
//
// Add every static combo, optionally declare aliases (version 6), then
// call Bytes or WriteTo.
type Writer struct {
	Version       int32
	DynamicCombos int32
	Flags         uint32
	CentroidMask  uint32
	SourceCRC32   uint32

	// Compression applies to version 5 and 6 chunks.
	Compression Compression

	statics map[uint32][][]byte
	aliases map[uint32]uint32
}

// NewWriter creates a writer for the given version and number of dynamic
// combos per static combo.
func NewWriter(version, dynamicCombos int32) (*Writer, error) {
	switch version {
	case Version4, Version5, Version6:
	default:
		return nil, fmt.Errorf("%w %d", ErrUnsupportedVersion, version)
	}
	if dynamicCombos <= 0 {
		return nil, fmt.Errorf("vcs: %d dynamic combos", dynamicCombos)
	}
	return &Writer{
		Version:       version,
		DynamicCombos: dynamicCombos,
		Compression:   CompressLZMA,
		statics:       make(map[uint32][][]byte),
		aliases:       make(map[uint32]uint32),
	}, nil
}

// Add stores the dynamic combos of one static combo. dynamic[i] is the
// microcode of dynamic index i; nil entries are skipped combos.
func (w *Writer) Add(staticID uint32, dynamic [][]byte) error {
	if len(dynamic) > int(w.DynamicCombos) {
		return fmt.Errorf("vcs: static combo %d has %d dynamic combos, file allows %d", staticID, len(dynamic), w.DynamicCombos)
	}
	if _, ok := w.aliases[staticID]; ok {
		return fmt.Errorf("vcs: static combo %d is already an alias", staticID)
	}
	w.statics[staticID] = dynamic
	return nil
}

// Alias makes staticID share the combos of sourceID. Version 6 only.
func (w *Writer) Alias(staticID, sourceID uint32) error {
	if w.Version != Version6 {
		return fmt.Errorf("vcs: version %d has no alias table", w.Version)
	}
	if _, ok := w.statics[staticID]; ok {
		return fmt.Errorf("vcs: static combo %d already has data", staticID)
	}
	w.aliases[staticID] = sourceID
	return nil
}

// WriteTo writes the file to dst.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	b, err := w.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := dst.Write(b)
	return int64(n), err
}

// Bytes returns the encoded file.
func (w *Writer) Bytes() ([]byte, error) {
	for id, src := range w.aliases {
		if _, ok := w.statics[src]; !ok {
			return nil, fmt.Errorf("vcs: alias %d points at missing static combo %d", id, src)
		}
	}
	if w.Version == Version4 {
		return w.legacyBytes()
	}
	return w.chunkedBytes()
}

func (w *Writer) numStatic() int64 {
	var top int64 = -1
	for id := range w.statics {
		top = max(top, int64(id))
	}
	for id := range w.aliases {
		top = max(top, int64(id))
	}
	return top + 1
}

func (w *Writer) header() Header {
	return Header{
		Version:       w.Version,
		TotalCombos:   int32(w.numStatic() * int64(w.DynamicCombos)), // #nosec G115 -- combo counts fit int32
		DynamicCombos: w.DynamicCombos,
		Flags:         w.Flags,
		CentroidMask:  w.CentroidMask,
		SourceCRC32:   w.SourceCRC32,
	}
}

// legacyBytes lays out a version 4 file: header, reference combo,
// dictionary over every full combo index, then patches.
func (w *Writer) legacyBytes() ([]byte, error) {
	h := w.header()

	var ref []byte
	for _, id := range slices.Sorted(maps.Keys(w.statics)) {
		for _, code := range w.statics[id] {
			if len(code) > len(ref) {
				ref = code
			}
		}
	}
	h.DiffReferenceSize = int32(len(ref)) // #nosec G115 -- combo sizes fit int32

	total := int(h.TotalCombos)
	dict := make([]DictionaryEntry, total)
	for i := range dict {
		dict[i] = DictionaryEntry{Offset: -1}
	}

	dataStart := HeaderSize + len(ref) + total*dictEntrySize
	var data []byte
	for _, id := range slices.Sorted(maps.Keys(w.statics)) {
		for d, code := range w.statics[id] {
			if code == nil {
				continue
			}
			patch := ComputeDiffs(ref, code)
			full := int(id)*int(w.DynamicCombos) + d
			dict[full] = DictionaryEntry{
				Offset: int32(dataStart + len(data)), // #nosec G115 -- file offsets fit int32
				Size:   int32(len(patch)),            // #nosec G115 -- combo sizes fit int32
			}
			data = append(data, patch...)
		}
	}

	out := h.appendBytes(make([]byte, 0, dataStart+len(data)))
	out = append(out, ref...)
	for _, e := range dict {
		out = binary.LittleEndian.AppendUint32(out, uint32(e.Offset)) // #nosec G115 -- bit-preserving
		out = binary.LittleEndian.AppendUint32(out, uint32(e.Size))   // #nosec G115 -- bit-preserving
	}
	return append(out, data...), nil
}

// chunkedBytes lays out a version 5 or 6 file: header, static combo
// records with sentinel, alias table (version 6), then one chunk block
// per static combo.
func (w *Writer) chunkedBytes() ([]byte, error) {
	h := w.header()
	ids := slices.Sorted(maps.Keys(w.statics))
	h.NumStaticCombos = int32(len(ids) + 1) // #nosec G115 -- combo counts fit int32

	aliasIDs := slices.Sorted(maps.Keys(w.aliases))
	dirSize := HeaderSize + (len(ids)+1)*recordSize
	if h.HasAliases() {
		dirSize += 4 + len(aliasIDs)*recordSize
	}

	var blocks bytes.Buffer
	records := make([]StaticComboRecord, 0, len(ids)+1)
	for _, id := range ids {
		records = append(records, StaticComboRecord{ID: id, FileOffset: uint32(dirSize + blocks.Len())}) // #nosec G115 -- file offsets fit uint32
		if err := w.writeBlock(&blocks, id); err != nil {
			return nil, err
		}
	}
	records = append(records, StaticComboRecord{ID: SentinelComboID, FileOffset: uint32(dirSize + blocks.Len())}) // #nosec G115 -- file offsets fit uint32

	le := binary.LittleEndian
	out := h.appendBytes(make([]byte, 0, dirSize+blocks.Len()))
	for _, r := range records {
		out = le.AppendUint32(out, r.ID)
		out = le.AppendUint32(out, r.FileOffset)
	}
	if h.HasAliases() {
		out = le.AppendUint32(out, uint32(len(aliasIDs))) // #nosec G115 -- small
		for _, id := range aliasIDs {
			out = le.AppendUint32(out, id)
			out = le.AppendUint32(out, w.aliases[id])
		}
	}
	return append(out, blocks.Bytes()...), nil
}

// writeBlock packs the combos of one static combo into chunks of at most
// MaxUnpackedBlockSize unpacked bytes and terminates the block.
func (w *Writer) writeBlock(dst *bytes.Buffer, staticID uint32) error {
	var chunk []byte
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		enc, err := EncodeChunk(chunk, w.Compression)
		if err != nil {
			return fmt.Errorf("vcs: static combo %d: %w", staticID, err)
		}
		dst.Write(enc)
		chunk = chunk[:0]
		return nil
	}

	for d, code := range w.statics[staticID] {
		if code == nil {
			continue
		}
		if 8+len(code) > MaxUnpackedBlockSize {
			return fmt.Errorf("%w: combo %d/%d is %d bytes", ErrBlockTooLarge, staticID, d, len(code))
		}
		if len(chunk)+8+len(code) > MaxUnpackedBlockSize {
			if err := flush(); err != nil {
				return err
			}
		}
		id := uint32(d) // #nosec G115 -- bounded by DynamicCombos
		if w.Version == Version5 {
			id += staticID * uint32(w.DynamicCombos) // #nosec G115 -- positive
		}
		chunk = appendRecord(chunk, id, code)
	}
	if err := flush(); err != nil {
		return err
	}
	return binary.Write(dst, binary.LittleEndian, uint32(chunkEnd))
}
