// Package vcs reads and writes shader combo cache files.
//
// A combo cache file stores every compiled variant of one shader stage.
// Variants are addressed by a static combo id (per-material switches) and
// a dynamic combo index (per-draw switches); the full combo index is
// staticID*DynamicCombos + dynamicIndex.
//
// Three layouts are supported:
//
//   - Version 4 stores a reference combo followed by a dictionary of
//     {offset, size} entries, one per full combo. Every stored combo is a
//     patch against the reference, see [ApplyDiffs].
//   - Version 5 stores a sorted array of static combo records, each
//     pointing at a block of compressed chunks. Chunk records carry full
//     combo indices.
//   - Version 6 adds an alias table that maps duplicate static combos to
//     a canonical one. Chunk records carry dynamic indices only.
//
// Chunks are raw, BZip2 or LZMA compressed; see [DecodeChunks].
//
// Reading is split so that callers can cache what is shared per file
// ([Directory]) and issue one aligned read per static combo ([Window]).
// [Writer] produces files in all three layouts.
package vcs
