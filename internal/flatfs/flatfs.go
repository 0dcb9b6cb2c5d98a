// Package flatfs implements the flat on-disk file system of spec.md §6
// ("File system (external collaborator)"): a reserved 2-sector header
// mapping a null-padded 32-byte path to (first sector, sector count).
// The core kernel only ever consumes that pair — spec.md §3 "File handle
// (external)".
//
// Grounded on the original's fs.rs (Header{first_null, entries},
// HeaderEntry{path, address, size, opened}, FileError), trimmed to the
// 32-byte path spec.md §6 specifies (the original used 64) and
// reimplemented with encoding/binary for the on-disk layout, matching
// every other fixed-layout type in this module.
package flatfs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/POBIX/ossi/internal/ata"
)

const (
	HeaderSectors = 2
	HeaderBytes   = HeaderSectors * ata.SectorSize
	PathMaxLen    = 32
)

// Errno is the closed set of reportable domain errors spec.md §7 assigns
// to the file system ("file not found, path too long, file already open,
// too many files: returned as a tagged result to the caller").
type Errno int

const (
	ErrNone Errno = iota
	ErrFileNotFound
	ErrPathTooLong
	ErrAlreadyOpen
	ErrTooManyFiles
)

func (e Errno) Error() string {
	switch e {
	case ErrFileNotFound:
		return "flatfs: file not found"
	case ErrPathTooLong:
		return "flatfs: path too long"
	case ErrAlreadyOpen:
		return "flatfs: file already open"
	case ErrTooManyFiles:
		return "flatfs: too many files"
	default:
		return "flatfs: no error"
	}
}

// rawEntry is the on-disk layout of one header entry: a null-padded
// path, the file's starting sector and sector count, and an open flag.
// Explicitly padded to a 4-byte-aligned 44 bytes.
type rawEntry struct {
	Path        [PathMaxLen]byte
	FirstSector uint32
	SectorCount uint32
	Opened      uint8
	_           [3]uint8
}

const entrySize = PathMaxLen + 4 + 4 + 4 // 44
const maxEntries = HeaderBytes / entrySize

// Entry is the caller-visible view of one file.
type Entry struct {
	Path        string
	FirstSector uint32
	SectorCount uint32
	Opened      bool
}

// FS is the process-wide file-system header singleton (spec.md §5).
type FS struct {
	dev     *ata.Driver
	entries []rawEntry
}

// Load reads the reserved header sectors from dev and decodes entries up
// to the first null path (spec.md §6).
func Load(dev *ata.Driver) *FS {
	buf := make([]byte, HeaderBytes)
	dev.ReadSectors(0, HeaderSectors, buf)

	fs := &FS{dev: dev}
	r := bytes.NewReader(buf)
	for i := 0; i < maxEntries; i++ {
		var e rawEntry
		if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
			break
		}
		if e.Path[0] == 0 {
			break
		}
		fs.entries = append(fs.entries, e)
	}
	return fs
}

// Flush writes the header back to disk.
func (fs *FS) Flush() {
	entries := make([]Entry, len(fs.entries))
	for i, e := range fs.entries {
		entries[i] = toEntry(e)
	}
	out, err := EncodeHeader(entries)
	if err != nil {
		panic(fmt.Sprintf("flatfs: flush: %v", err))
	}
	fs.dev.WriteSectors(0, HeaderSectors, out)
}

// EncodeHeader serializes entries into the same on-disk header format
// Load decodes and Flush writes, for host-side tooling (cmd/mkdiskimg)
// that builds a disk image directly rather than through a live
// ata.Driver.
func EncodeHeader(entries []Entry) ([]byte, error) {
	if len(entries) > maxEntries {
		return nil, ErrTooManyFiles
	}
	var buf bytes.Buffer
	for _, e := range entries {
		path, err := encodePath(e.Path)
		if err != nil {
			return nil, err
		}
		var opened uint8
		if e.Opened {
			opened = 1
		}
		binary.Write(&buf, binary.LittleEndian, rawEntry{
			Path:        path,
			FirstSector: e.FirstSector,
			SectorCount: e.SectorCount,
			Opened:      opened,
		})
	}
	out := make([]byte, HeaderBytes)
	copy(out, buf.Bytes())
	return out, nil
}

func encodePath(path string) ([PathMaxLen]byte, error) {
	var raw [PathMaxLen]byte
	if len(path) >= PathMaxLen {
		return raw, ErrPathTooLong
	}
	copy(raw[:], path)
	return raw, nil
}

// Lookup returns the (first sector, sector count) pair for path.
func (fs *FS) Lookup(path string) (Entry, error) {
	for _, e := range fs.entries {
		if pathOf(e) == path {
			return toEntry(e), nil
		}
	}
	return Entry{}, ErrFileNotFound
}

// Register adds a new file mapping, failing if the header is full or the
// path is too long.
func (fs *FS) Register(path string, firstSector, sectorCount uint32) error {
	if len(fs.entries) >= maxEntries {
		return ErrTooManyFiles
	}
	raw, err := encodePath(path)
	if err != nil {
		return err
	}
	fs.entries = append(fs.entries, rawEntry{Path: raw, FirstSector: firstSector, SectorCount: sectorCount})
	return nil
}

// Open marks path as opened, failing if it is already open.
func (fs *FS) Open(path string) error {
	for i := range fs.entries {
		if pathOf(fs.entries[i]) == path {
			if fs.entries[i].Opened != 0 {
				return ErrAlreadyOpen
			}
			fs.entries[i].Opened = 1
			return nil
		}
	}
	return ErrFileNotFound
}

// Close clears path's opened flag.
func (fs *FS) Close(path string) error {
	for i := range fs.entries {
		if pathOf(fs.entries[i]) == path {
			fs.entries[i].Opened = 0
			return nil
		}
	}
	return ErrFileNotFound
}

// List returns every registered path, for the "directory listing"
// syscall (spec.md §4.9).
func (fs *FS) List() []string {
	paths := make([]string, 0, len(fs.entries))
	for _, e := range fs.entries {
		paths = append(paths, pathOf(e))
	}
	return paths
}

func pathOf(e rawEntry) string {
	n := bytes.IndexByte(e.Path[:], 0)
	if n < 0 {
		n = len(e.Path)
	}
	return string(e.Path[:n])
}

func toEntry(e rawEntry) Entry {
	return Entry{Path: pathOf(e), FirstSector: e.FirstSector, SectorCount: e.SectorCount, Opened: e.Opened != 0}
}

// String satisfies fmt.Stringer for debugging/logging.
func (e Entry) String() string {
	return fmt.Sprintf("%s@sector %d (+%d)", e.Path, e.FirstSector, e.SectorCount)
}
