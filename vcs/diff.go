package vcs

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Patch format used by version 4 files. A patch is a sequence of
// operations executed against a reference buffer with a running copy
// source position:
//
//	0x01..0x7f           literal: the next op bytes are copied to the output
//	0x80|n, ofs8         copy n (1..127) reference bytes from src+ofs8
//	0x80, n, ofs16       copy n (1..255) reference bytes from src+ofs16
//	0x80, 0, size24      literal: the next size24 bytes are copied
//	0x00, size16, ofs16  copy size16 reference bytes from src+ofs16
//
// Offsets are signed and little endian. Every copy moves src to the end
// of the copied range; literals leave src alone.

const (
	diffMinMatch     = 4
	diffMaxLiteral   = 0x7f
	diffMaxBigRaw    = 1<<24 - 1
	diffHashMaxChain = 32
)

// ApplyDiffs reconstructs a combo from a reference and a patch. The
// output may not exceed maxOut bytes.
func ApplyDiffs(ref, diff []byte, maxOut int) ([]byte, error) {
	out := make([]byte, 0, min(maxOut, max(len(ref), len(diff))))
	src := 0

	copyRef := func(ofs, size int) error {
		start := src + ofs
		if start < 0 || start+size > len(ref) {
			return fmt.Errorf("%w: copy of %d bytes at %d, reference has %d", ErrCorruptDiff, size, start, len(ref))
		}
		if len(out)+size > maxOut {
			return fmt.Errorf("%w: %d bytes, limit %d", ErrDiffOverflow, len(out)+size, maxOut)
		}
		out = append(out, ref[start:start+size]...)
		src = start + size
		return nil
	}
	literal := func(p, size int) error {
		if p+size > len(diff) {
			return fmt.Errorf("%w: literal of %d bytes at %d, patch has %d", ErrCorruptDiff, size, p, len(diff))
		}
		if len(out)+size > maxOut {
			return fmt.Errorf("%w: %d bytes, limit %d", ErrDiffOverflow, len(out)+size, maxOut)
		}
		out = append(out, diff[p:p+size]...)
		return nil
	}
	need := func(p, n int) error {
		if p+n > len(diff) {
			return fmt.Errorf("%w: operation at %d needs %d bytes", ErrCorruptDiff, p-1, n)
		}
		return nil
	}

	for p := 0; p < len(diff); {
		op := diff[p]
		p++
		var err error
		switch {
		case op == 0:
			if err = need(p, 4); err == nil {
				size := int(binary.LittleEndian.Uint16(diff[p:]))
				ofs := int(int16(binary.LittleEndian.Uint16(diff[p+2:]))) // #nosec G115 -- signed offset
				p += 4
				err = copyRef(ofs, size)
			}
		case op&0x80 == 0:
			err = literal(p, int(op))
			p += int(op)
		case op&0x7f != 0:
			if err = need(p, 1); err == nil {
				ofs := int(int8(diff[p])) // #nosec G115 -- signed offset
				p++
				err = copyRef(ofs, int(op&0x7f))
			}
		default:
			if err = need(p, 1); err != nil {
				break
			}
			if n := diff[p]; n != 0 {
				if err = need(p, 3); err == nil {
					ofs := int(int16(binary.LittleEndian.Uint16(diff[p+1:]))) // #nosec G115 -- signed offset
					p += 3
					err = copyRef(ofs, int(n))
				}
				break
			}
			if err = need(p, 4); err == nil {
				size := int(diff[p+1]) | int(diff[p+2])<<8 | int(diff[p+3])<<16
				p += 4
				err = literal(p, size)
				p += size
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ComputeDiffs encodes data as a patch against ref such that
// ApplyDiffs(ref, patch, len(data)) returns data.
func ComputeDiffs(ref, data []byte) []byte {
	var (
		out     []byte
		pending []byte
		src     int
	)
	index := indexReference(ref)

	flush := func() {
		for len(pending) > 0 {
			if len(pending) <= diffMaxLiteral {
				out = append(out, byte(len(pending)))
				out = append(out, pending...)
				return
			}
			n := min(len(pending), diffMaxBigRaw)
			out = append(out, 0x80, 0, byte(n), byte(n>>8), byte(n>>16))
			out = append(out, pending[:n]...)
			pending = pending[n:]
		}
	}

	for i := 0; i < len(data); {
		at, n := longestMatch(ref, data[i:], index, src)
		if n < diffMinMatch {
			pending = append(pending, data[i])
			i++
			continue
		}
		flush()
		pending = pending[:0]
		out, src = appendCopy(out, src, at, n)
		i += n
	}
	flush()
	return out
}

// appendCopy emits copy operations for ref[at:at+n] given the current
// copy source and returns the new source position.
func appendCopy(out []byte, src, at, n int) ([]byte, int) {
	// Offsets beyond int16 are reached with zero-length copies.
	for at-src > math.MaxInt16 || at-src < math.MinInt16 {
		step := math.MaxInt16
		if at < src {
			step = math.MinInt16
		}
		out = appendLongCopy(out, 0, step)
		src += step
	}
	for n > 0 {
		ofs := at - src
		size := min(n, math.MaxUint16)
		switch {
		case size <= 0x7f && ofs >= math.MinInt8 && ofs <= math.MaxInt8:
			out = append(out, 0x80|byte(size), byte(int8(ofs))) // #nosec G115 -- range checked
		case size <= 0xff:
			o := uint16(int16(ofs)) // #nosec G115 -- range checked
			out = append(out, 0x80, byte(size), byte(o), byte(o>>8))
		default:
			out = appendLongCopy(out, size, ofs)
		}
		src = at + size
		at += size
		n -= size
	}
	return out, src
}

func appendLongCopy(out []byte, size, ofs int) []byte {
	o := uint16(int16(ofs)) // #nosec G115 -- caller keeps ofs within int16
	return append(out, 0, byte(size), byte(size>>8), byte(o), byte(o>>8))
}

// indexReference maps every 4-byte prefix of ref to the positions where
// it starts, most recent last.
func indexReference(ref []byte) map[uint32][]int {
	index := make(map[uint32][]int)
	for i := 0; i+diffMinMatch <= len(ref); i++ {
		key := binary.LittleEndian.Uint32(ref[i:])
		chain := index[key]
		if len(chain) == diffHashMaxChain {
			chain = chain[1:]
		}
		index[key] = append(chain, i)
	}
	return index
}

// longestMatch finds the longest prefix of data present in ref, preferring
// candidates close to the copy source on ties.
func longestMatch(ref, data []byte, index map[uint32][]int, src int) (at, n int) {
	if len(data) < diffMinMatch {
		return 0, 0
	}
	for _, cand := range index[binary.LittleEndian.Uint32(data)] {
		l := diffMinMatch
		for cand+l < len(ref) && l < len(data) && ref[cand+l] == data[l] {
			l++
		}
		if l > n || (l == n && abs(cand-src) < abs(at-src)) {
			at, n = cand, l
		}
	}
	return at, n
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
