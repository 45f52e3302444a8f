package vcs

import (
	"bytes"
	stdbzip2 "compress/bzip2"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"github.com/ulikunitz/xz/lzma"
)

type comboRecord struct {
	id   uint32
	code []byte
}

func randomCode(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		// Skewed alphabet so the compressors have something to find.
		b[i] = byte(rng.Intn(16)) * 3
	}
	return b
}

func collect(t *testing.T, block []byte) ([]comboRecord, int) {
	t.Helper()
	var got []comboRecord
	n, err := DecodeChunks(block, func(id uint32, code []byte) error {
		got = append(got, comboRecord{id, bytes.Clone(code)})
		return nil
	})
	if err != nil {
		t.Fatalf("DecodeChunks() error = %v", err)
	}
	return got, n
}

// ===== Dispatch =====

func TestDecodeChunks_AllSchemes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	sets := map[string][]comboRecord{
		"empty":  nil,
		"single": {{3, randomCode(rng, 300)}},
		"multi":  {{0, randomCode(rng, 10)}, {1, nil}, {7, randomCode(rng, 4000)}, {8, randomCode(rng, 1)}},
	}
	for _, c := range []Compression{CompressRaw, CompressBZip2, CompressLZMA} {
		for name, recs := range sets {
			t.Run(fmt.Sprintf("%s/%s", c, name), func(t *testing.T) {
				var unpacked []byte
				for _, r := range recs {
					unpacked = appendRecord(unpacked, r.id, r.code)
				}
				chunk, err := EncodeChunk(unpacked, c)
				if err != nil {
					t.Fatalf("EncodeChunk() error = %v", err)
				}
				block := binary.LittleEndian.AppendUint32(chunk, chunkEnd)
				block = append(block, 0xde, 0xad) // trailing bytes belong to the next block

				got, n := collect(t, block)
				if n != len(block)-2 {
					t.Errorf("DecodeChunks() consumed %d bytes, want %d", n, len(block)-2)
				}
				if len(got) != len(recs) {
					t.Fatalf("decoded %d records, want %d", len(got), len(recs))
				}
				for i := range recs {
					if got[i].id != recs[i].id || !bytes.Equal(got[i].code, recs[i].code) {
						t.Errorf("record %d = {%d, %d bytes}, want {%d, %d bytes}",
							i, got[i].id, len(got[i].code), recs[i].id, len(recs[i].code))
					}
				}
			})
		}
	}
}

func TestDecodeChunks_MultipleChunks(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	var block []byte
	var want []comboRecord
	for i, c := range []Compression{CompressLZMA, CompressRaw, CompressBZip2} {
		code := randomCode(rng, 100*(i+1))
		want = append(want, comboRecord{uint32(i), code})
		chunk, err := EncodeChunk(appendRecord(nil, uint32(i), code), c)
		if err != nil {
			t.Fatal(err)
		}
		block = append(block, chunk...)
	}
	block = binary.LittleEndian.AppendUint32(block, chunkEnd)

	got, _ := collect(t, block)
	if len(got) != len(want) {
		t.Fatalf("decoded %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i].code, want[i].code) {
			t.Errorf("record %d differs after mixed-scheme decode", i)
		}
	}
}

// ===== Reference decoders =====

func TestEncodeChunk_BZip2MatchesStdlib(t *testing.T) {
	data := randomCode(rand.New(rand.NewSource(3)), 5000)
	chunk, err := EncodeChunk(data, CompressBZip2)
	if err != nil {
		t.Fatal(err)
	}
	hdr := binary.LittleEndian.Uint32(chunk)
	if hdr&chunkTagMask != chunkTagBZip2 {
		t.Fatalf("bzip2 chunk tag = %#x", hdr&chunkTagMask)
	}
	ref, err := io.ReadAll(stdbzip2.NewReader(bytes.NewReader(chunk[4:])))
	if err != nil {
		t.Fatalf("compress/bzip2 error = %v", err)
	}
	if !bytes.Equal(ref, data) {
		t.Error("compress/bzip2 output differs from the input")
	}
}

func TestEncodeChunk_LZMAMatchesClassicStream(t *testing.T) {
	data := randomCode(rand.New(rand.NewSource(4)), 7000)
	chunk, err := EncodeChunk(data, CompressLZMA)
	if err != nil {
		t.Fatal(err)
	}
	payload := chunk[4:]
	if got := binary.LittleEndian.Uint32(payload); got != lzmaID {
		t.Fatalf("lzma id = %#x, want %#x", got, lzmaID)
	}
	if got := binary.LittleEndian.Uint32(payload[4:]); got != uint32(len(data)) {
		t.Errorf("actual size = %d, want %d", got, len(data))
	}

	// Rebuild the classic container by hand and decode it directly.
	classic := append([]byte(nil), payload[12:17]...)
	classic = binary.LittleEndian.AppendUint64(classic, uint64(len(data)))
	classic = append(classic, payload[lzmaHeaderSize:]...)
	zr, err := lzma.NewReader(bytes.NewReader(classic))
	if err != nil {
		t.Fatal(err)
	}
	ref, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("lzma reader error = %v", err)
	}
	if !bytes.Equal(ref, data) {
		t.Error("classic lzma decode differs from the input")
	}
}

// ===== Errors =====

func TestDecodeChunks_Errors(t *testing.T) {
	le := binary.LittleEndian
	tests := []struct {
		name  string
		block []byte
		want  error
	}{
		{"empty", nil, ErrTruncated},
		{"no end marker", le.AppendUint32(nil, chunkTagRaw), ErrTruncated},
		{"corrupt tag", le.AppendUint32(le.AppendUint32(nil, 0xc0000004), 0), ErrCorruptChunk},
		{"raw overruns", append(le.AppendUint32(nil, chunkTagRaw|100), 1, 2, 3), ErrTruncated},
		{"record overruns", func() []byte {
			rec := appendRecord(nil, 1, []byte{1, 2, 3})[:9]
			b := le.AppendUint32(nil, chunkTagRaw|uint32(len(rec)))
			return le.AppendUint32(append(b, rec...), chunkEnd)
		}(), ErrCorruptChunk},
		{"raw too large", func() []byte {
			b := le.AppendUint32(nil, chunkTagRaw|(MaxUnpackedBlockSize+1))
			b = append(b, make([]byte, MaxUnpackedBlockSize+1)...)
			return le.AppendUint32(b, chunkEnd)
		}(), ErrBlockTooLarge},
		{"bad bzip2", append(le.AppendUint32(nil, 4), 'n', 'o', 'p', 'e'), ErrCorruptChunk},
		{"bad lzma id", func() []byte {
			p := make([]byte, lzmaHeaderSize)
			return le.AppendUint32(append(le.AppendUint32(nil, chunkTagLZMA|uint32(len(p))), p...), chunkEnd)
		}(), ErrCorruptChunk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeChunks(tt.block, func(uint32, []byte) error { return nil })
			if !errors.Is(err, tt.want) {
				t.Errorf("DecodeChunks() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeChunks_CallbackError(t *testing.T) {
	stop := errors.New("stop")
	chunk, _ := EncodeChunk(appendRecord(nil, 1, []byte{1}), CompressRaw)
	block := binary.LittleEndian.AppendUint32(chunk, chunkEnd)
	_, err := DecodeChunks(block, func(uint32, []byte) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("DecodeChunks() error = %v, want %v", err, stop)
	}
}

func TestCompression_String(t *testing.T) {
	for _, c := range []Compression{CompressRaw, CompressBZip2, CompressLZMA} {
		got, err := ParseCompression(c.String())
		if err != nil || got != c {
			t.Errorf("ParseCompression(%q) = %v, %v", c.String(), got, err)
		}
	}
	if Compression(9).String() != "Unknown" {
		t.Errorf("Compression(9).String() = %q, want Unknown", Compression(9).String())
	}
}
