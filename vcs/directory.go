package vcs

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
)

// StaticComboRecord locates the chunk block of one static combo.
// Records are sorted by ID; the block ends at the next record's offset.
type StaticComboRecord struct {
	ID         uint32
	FileOffset uint32
}

// AliasRecord maps a duplicate static combo to the combo that holds its
// data.
type AliasRecord struct {
	ID       uint32
	SourceID uint32
}

// DictionaryEntry locates one version 4 combo. Offset -1 marks a skipped
// combo.
type DictionaryEntry struct {
	Offset int32
	Size   int32
}

// Skipped reports whether the combo was not compiled.
func (e DictionaryEntry) Skipped() bool { return e.Offset == -1 }

// Directory is the per-file metadata shared by every lookup of a file:
// the header plus either the version 4 reference combo or the version 5/6
// record and alias tables.
type Directory struct {
	Header Header

	// Reference is the version 4 diff base. Empty when the file stores
	// combos without diffs.
	Reference []byte

	// Records holds the static combo records, sentinel included.
	Records []StaticComboRecord

	// Aliases holds the version 6 duplicate table, sorted by ID.
	Aliases []AliasRecord
}

// ReadDirectory reads the header and directory tables of a file.
func ReadDirectory(r io.ReaderAt) (*Directory, error) {
	buf := make([]byte, HeaderSize)
	if err := readFull(r, buf, 0); err != nil {
		return nil, fmt.Errorf("vcs: read header: %w", err)
	}
	h, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}

	d := &Directory{Header: h}
	if h.Legacy() {
		if h.DiffReferenceSize > 0 {
			d.Reference = make([]byte, h.DiffReferenceSize)
			if err := readFull(r, d.Reference, HeaderSize); err != nil {
				return nil, fmt.Errorf("vcs: read reference combo: %w", err)
			}
		}
		return d, nil
	}

	n := int(h.NumStaticCombos)
	raw := make([]byte, n*recordSize)
	if err := readFull(r, raw, HeaderSize); err != nil {
		return nil, fmt.Errorf("vcs: read static combo records: %w", err)
	}
	d.Records = make([]StaticComboRecord, n)
	for i := range d.Records {
		pos := i * recordSize
		d.Records[i] = StaticComboRecord{
			ID:         binary.LittleEndian.Uint32(raw[pos : pos+4]),
			FileOffset: binary.LittleEndian.Uint32(raw[pos+4 : pos+8]),
		}
	}

	if h.HasAliases() {
		off := int64(HeaderSize + len(raw))
		var count [4]byte
		if err := readFull(r, count[:], off); err != nil {
			return nil, fmt.Errorf("vcs: read alias count: %w", err)
		}
		dups := int32(binary.LittleEndian.Uint32(count[:])) // #nosec G115 -- signed on disk
		if dups < 0 {
			return nil, fmt.Errorf("%w: negative alias count %d", ErrTruncated, dups)
		}
		if dups > 0 {
			raw := make([]byte, int(dups)*recordSize)
			if err := readFull(r, raw, off+4); err != nil {
				return nil, fmt.Errorf("vcs: read alias records: %w", err)
			}
			d.Aliases = make([]AliasRecord, dups)
			for i := range d.Aliases {
				pos := i * recordSize
				d.Aliases[i] = AliasRecord{
					ID:       binary.LittleEndian.Uint32(raw[pos : pos+4]),
					SourceID: binary.LittleEndian.Uint32(raw[pos+4 : pos+8]),
				}
			}
		}
	}
	return d, nil
}

// Canonical resolves an aliased static combo id to the id that holds its
// data. Ids without an alias are returned unchanged.
func (d *Directory) Canonical(staticID uint32) uint32 {
	i, ok := slices.BinarySearchFunc(d.Aliases, staticID, func(a AliasRecord, id uint32) int {
		return cmp.Compare(a.ID, id)
	})
	if ok {
		return d.Aliases[i].SourceID
	}
	return staticID
}

// FindCombo returns the index into Records of the block holding
// staticID, following aliases, or -1 when the combo is not in the file.
// The sentinel record never matches.
func (d *Directory) FindCombo(staticID uint32) int {
	if len(d.Records) < 2 {
		return -1
	}
	id := d.Canonical(staticID)
	recs := d.Records[:len(d.Records)-1]
	i, ok := slices.BinarySearchFunc(recs, id, func(r StaticComboRecord, id uint32) int {
		return cmp.Compare(r.ID, id)
	})
	if !ok {
		return -1
	}
	return i
}

// ComboRange returns the file range of the chunk block of staticID.
func (d *Directory) ComboRange(staticID uint32) (start, end int64, err error) {
	idx := d.FindCombo(staticID)
	if idx < 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrComboNotFound, staticID)
	}
	start = int64(d.Records[idx].FileOffset)
	end = int64(d.Records[idx+1].FileOffset)
	if end < start {
		return 0, 0, fmt.Errorf("%w: records for combo %d are out of order", ErrTruncated, staticID)
	}
	return start, end, nil
}

// DictionaryOffset returns the file offset of the version 4 dictionary
// entry for a full combo index.
func (d *Directory) DictionaryOffset(fullIndex int64) int64 {
	return HeaderSize + int64(d.Header.DiffReferenceSize) + fullIndex*dictEntrySize
}

// ReadDictionary reads the DynamicCombos dictionary entries of a version
// 4 static combo.
func (d *Directory) ReadDictionary(r io.ReaderAt, staticID uint32) ([]DictionaryEntry, error) {
	n := int(d.Header.DynamicCombos)
	if int64(staticID)*int64(n) >= int64(d.Header.TotalCombos) {
		return nil, fmt.Errorf("%w: %d", ErrComboNotFound, staticID)
	}
	raw := make([]byte, n*dictEntrySize)
	if err := readFull(r, raw, d.DictionaryOffset(int64(staticID)*int64(n))); err != nil {
		return nil, fmt.Errorf("vcs: read dictionary of combo %d: %w", staticID, err)
	}
	entries := make([]DictionaryEntry, n)
	for i := range entries {
		pos := i * dictEntrySize
		entries[i] = DictionaryEntry{
			Offset: int32(binary.LittleEndian.Uint32(raw[pos : pos+4])),   // #nosec G115 -- signed on disk
			Size:   int32(binary.LittleEndian.Uint32(raw[pos+4 : pos+8])), // #nosec G115 -- signed on disk
		}
	}
	return entries, nil
}

// DictionaryRange returns the file range spanned by the non-skipped
// entries. Offsets must ascend.
func DictionaryRange(entries []DictionaryEntry) (start, end int64, err error) {
	found := false
	for i, e := range entries {
		if e.Skipped() {
			continue
		}
		if e.Offset < 0 || e.Size < 0 || (found && int64(e.Offset) < start) {
			return 0, 0, fmt.Errorf("%w: dictionary entry %d {%d, %d}", ErrTruncated, i, e.Offset, e.Size)
		}
		if !found {
			start = int64(e.Offset)
			found = true
		}
		end = int64(e.Offset) + int64(e.Size)
	}
	if !found {
		return 0, 0, ErrAllSkipped
	}
	return start, end, nil
}

// ReadAligned performs the aligned read covering [start, end) and returns
// the buffer together with the position of start inside it. A short read
// at end of file is accepted as long as [start, end) is covered.
func ReadAligned(r io.ReaderAt, start, end int64, c IOConstraints) ([]byte, int, error) {
	w := ReadWindow(start, end, c)
	buf := make([]byte, w.Length)
	n, err := r.ReadAt(buf, w.Offset)
	if int64(n) < end-w.Offset {
		if err == nil || errors.Is(err, io.EOF) {
			err = ErrTruncated
		}
		return nil, 0, fmt.Errorf("vcs: read [%d,%d): %w", start, end, err)
	}
	return buf[:n], w.DataOffset, nil
}

func readFull(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return ErrTruncated
	}
	return err
}
