package shadercache

import (
	"hash/crc32"
	"io/fs"
	"path"
)

// SourceFileCRC is a CRCProvider computing the IEEE CRC-32 of
// Dir/<name><Ext> in FS.
type SourceFileCRC struct {
	FS  fs.FS
	Dir string
	Ext string
}

// SourceCRC implements CRCProvider. Unreadable sources report ok false.
func (s SourceFileCRC) SourceCRC(name string) (uint32, bool) {
	data, err := fs.ReadFile(s.FS, path.Join(s.Dir, name+s.Ext))
	if err != nil {
		return 0, false
	}
	return crc32.ChecksumIEEE(data), true
}
