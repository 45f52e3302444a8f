package vcs

import "fmt"

// DecodeLegacy reconstructs the dynamic combos of one version 4 static
// combo. block holds the aligned read of the combo data, with the first
// non-skipped combo at block[dataOffset]. Combos are patches against
// reference when it is non-empty. fn receives the dynamic index; code is
// only valid during the call.
func DecodeLegacy(block []byte, dataOffset int, entries []DictionaryEntry, reference []byte, fn func(dynamicIndex int, code []byte) error) error {
	start, _, err := DictionaryRange(entries)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if e.Skipped() || e.Size <= 0 {
			continue
		}
		pos := dataOffset + int(int64(e.Offset)-start)
		end := pos + int(e.Size)
		if pos < 0 || end > len(block) {
			return fmt.Errorf("%w: combo %d at [%d,%d) of %d byte block", ErrTruncated, i, pos, end, len(block))
		}
		code := block[pos:end]
		if len(reference) > 0 {
			if code, err = ApplyDiffs(reference, code, len(reference)); err != nil {
				return fmt.Errorf("vcs: dynamic combo %d: %w", i, err)
			}
		}
		if err := fn(i, code); err != nil {
			return err
		}
	}
	return nil
}

// DynamicIndex maps a chunk record id to a dynamic combo index. Version 5
// records carry the full combo index of the canonical static combo,
// version 6 records the dynamic index only. ok is false for ids outside
// the static combo.
func (d *Directory) DynamicIndex(comboID, canonicalStatic uint32) (int, bool) {
	dyn := int64(d.Header.DynamicCombos)
	idx := int64(comboID)
	if d.Header.Version == Version5 {
		idx -= int64(canonicalStatic) * dyn
	}
	if idx < 0 || idx >= dyn {
		return 0, false
	}
	return int(idx), true
}
