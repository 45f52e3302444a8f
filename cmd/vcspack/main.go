// Command vcspack builds and inspects shader combo cache (.vcs) files.
//
// Usage:
//
//	vcspack pack [flags] <dir>   pack <static>_<dynamic>.<ext> blobs in dir
//	vcspack dump [-combos] <file.vcs>
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"hash/crc32"
	"io"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/gogpu/matsys/vcs"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("vcspack: ")
	if len(os.Args) < 2 {
		usage()
	}
	var err error
	switch os.Args[1] {
	case "pack":
		err = runPack(os.Args[2:])
	case "dump":
		err = runDump(os.Stdout, os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: vcspack pack [flags] <dir>")
	fmt.Fprintln(os.Stderr, "       vcspack dump [-combos] <file.vcs>")
	os.Exit(2)
}

// ===== pack =====

func runPack(args []string) error {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	var (
		version     = fs.Int("version", vcs.Version6, "file version (4, 5 or 6)")
		dynamic     = fs.Int("dynamic", 0, "dynamic combos per static combo (default: highest index found + 1)")
		compression = fs.String("compression", "lzma", "chunk compression for versions 5 and 6: raw, bzip2 or lzma")
		output      = fs.String("o", "out.vcs", "output file")
		source      = fs.String("source", "", "shader source file whose CRC-32 is stored in the header")
		centroid    = fs.Uint("centroid", 0, "centroid mask")
		aliases     = fs.String("alias", "", "comma-separated static=source aliases (version 6)")
	)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("pack: need one input directory")
	}

	blobs, maxDynamic, err := readBlobs(fs.Arg(0))
	if err != nil {
		return err
	}
	dyn := *dynamic
	if dyn == 0 {
		dyn = maxDynamic + 1
	}
	comp, err := vcs.ParseCompression(*compression)
	if err != nil {
		return err
	}

	w, err := vcs.NewWriter(int32(*version), int32(dyn)) // #nosec G115 -- flag values
	if err != nil {
		return err
	}
	w.Compression = comp
	w.CentroidMask = uint32(*centroid) // #nosec G115 -- mask fits 32 bits
	if *source != "" {
		src, err := os.ReadFile(*source)
		if err != nil {
			return err
		}
		w.SourceCRC32 = crc32.ChecksumIEEE(src)
	}

	statics := make([]uint32, 0, len(blobs))
	for s := range blobs {
		statics = append(statics, s)
	}
	slices.Sort(statics)
	for _, s := range statics {
		combos := make([][]byte, dyn)
		for d, code := range blobs[s] {
			if d >= dyn {
				return fmt.Errorf("pack: static %d has dynamic combo %d, file has %d", s, d, dyn)
			}
			combos[d] = code
		}
		if err := w.Add(s, combos); err != nil {
			return err
		}
	}
	if err := addAliases(w, *aliases); err != nil {
		return err
	}

	f, err := os.Create(*output)
	if err != nil {
		return err
	}
	n, err := w.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	log.Printf("wrote %s: version %d, %d static combos, %d dynamic, %d bytes", *output, *version, len(statics), dyn, n)
	return nil
}

// readBlobs reads files named <static>_<dynamic>.<ext>.
func readBlobs(dir string) (map[uint32]map[int][]byte, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}
	blobs := make(map[uint32]map[int][]byte)
	maxDynamic := -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		static, dynamic, ok := parseBlobName(e.Name())
		if !ok {
			log.Printf("skipping %s", e.Name())
			continue
		}
		code, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, 0, err
		}
		if blobs[static] == nil {
			blobs[static] = make(map[int][]byte)
		}
		blobs[static][dynamic] = code
		maxDynamic = max(maxDynamic, dynamic)
	}
	if len(blobs) == 0 {
		return nil, 0, fmt.Errorf("pack: no <static>_<dynamic> blobs in %s", dir)
	}
	return blobs, maxDynamic, nil
}

func parseBlobName(name string) (static uint32, dynamic int, ok bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	s, d, found := strings.Cut(base, "_")
	if !found {
		return 0, 0, false
	}
	sv, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, 0, false
	}
	dv, err := strconv.Atoi(d)
	if err != nil || dv < 0 {
		return 0, 0, false
	}
	return uint32(sv), dv, true
}

func addAliases(w *vcs.Writer, spec string) error {
	if spec == "" {
		return nil
	}
	for _, pair := range strings.Split(spec, ",") {
		a, b, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return fmt.Errorf("pack: bad alias %q, want static=source", pair)
		}
		from, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return fmt.Errorf("pack: alias %q: %w", pair, err)
		}
		to, err := strconv.ParseUint(b, 10, 32)
		if err != nil {
			return fmt.Errorf("pack: alias %q: %w", pair, err)
		}
		if err := w.Alias(uint32(from), uint32(to)); err != nil {
			return err
		}
	}
	return nil
}

// ===== dump =====

func runDump(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	combos := fs.Bool("combos", false, "decode every static combo and list its dynamic combos")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("dump: need one file")
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	return dump(out, data, *combos)
}

func dump(out io.Writer, data []byte, combos bool) error {
	r := bytes.NewReader(data)
	dir, err := vcs.ReadDirectory(r)
	if err != nil {
		return err
	}
	h := dir.Header
	fmt.Fprintf(out, "version %d\n", h.Version)
	fmt.Fprintf(out, "combos %d total, %d dynamic\n", h.TotalCombos, h.DynamicCombos)
	fmt.Fprintf(out, "flags %#x centroid %#x crc %#08x\n", h.Flags, h.CentroidMask, h.SourceCRC32)

	statics := staticIDs(dir)
	fmt.Fprintf(out, "static combos %d\n", len(statics))
	for _, a := range dir.Aliases {
		fmt.Fprintf(out, "alias %d -> %d\n", a.ID, a.SourceID)
	}
	if h.Legacy() {
		fmt.Fprintf(out, "diff reference %d bytes\n", len(dir.Reference))
	}
	if !combos {
		return nil
	}
	for _, s := range statics {
		sizes, err := decodeStatic(r, dir, s)
		if err != nil {
			return fmt.Errorf("static %d: %w", s, err)
		}
		fmt.Fprintf(out, "static %d:", s)
		for i, n := range sizes {
			if n >= 0 {
				fmt.Fprintf(out, " %d=%dB", i, n)
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}

func staticIDs(dir *vcs.Directory) []uint32 {
	if dir.Header.Legacy() {
		n := dir.Header.TotalCombos / dir.Header.DynamicCombos
		ids := make([]uint32, 0, n)
		for i := range n {
			ids = append(ids, uint32(i)) // #nosec G115 -- non-negative loop index
		}
		return ids
	}
	ids := make([]uint32, 0, len(dir.Records))
	for _, rec := range dir.Records {
		if rec.ID != vcs.SentinelComboID {
			ids = append(ids, rec.ID)
		}
	}
	return ids
}

// decodeStatic returns the code size of every dynamic combo of static,
// -1 for skipped combos.
func decodeStatic(r io.ReaderAt, dir *vcs.Directory, static uint32) ([]int, error) {
	sizes := make([]int, dir.Header.DynamicCombos)
	for i := range sizes {
		sizes[i] = -1
	}
	if dir.Header.Legacy() {
		entries, err := dir.ReadDictionary(r, static)
		if err != nil {
			return nil, err
		}
		start, end, err := vcs.DictionaryRange(entries)
		if errors.Is(err, vcs.ErrAllSkipped) {
			return sizes, nil
		}
		if err != nil {
			return nil, err
		}
		block, off, err := vcs.ReadAligned(r, start, end, vcs.IOConstraints{})
		if err != nil {
			return nil, err
		}
		err = vcs.DecodeLegacy(block, off, entries, dir.Reference, func(i int, code []byte) error {
			sizes[i] = len(code)
			return nil
		})
		return sizes, err
	}

	canonical := dir.Canonical(static)
	start, end, err := dir.ComboRange(static)
	if err != nil {
		return nil, err
	}
	block, off, err := vcs.ReadAligned(r, start, end, vcs.IOConstraints{})
	if err != nil {
		return nil, err
	}
	_, err = vcs.DecodeChunks(block[off:off+int(end-start)], func(id uint32, code []byte) error {
		i, ok := dir.DynamicIndex(id, canonical)
		if !ok {
			return fmt.Errorf("%w: combo %d outside static %d", vcs.ErrCorruptChunk, id, canonical)
		}
		sizes[i] = len(code)
		return nil
	})
	return sizes, err
}
