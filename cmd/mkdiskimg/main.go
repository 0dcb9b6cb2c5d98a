// Command mkdiskimg builds a raw disk image in the flat-FS layout
// spec.md §6 describes ("File system (external collaborator)"): a
// 2-sector header mapping null-padded 32-byte paths to (first sector,
// sector count) pairs, followed by each file's contents laid out
// sector-aligned in the order given. internal/ata's ATA driver and this
// kernel's flatfs.Load read exactly what this tool writes.
//
// Host tooling, built and run with the ordinary host Go toolchain (not
// the 386 kernel target) — the same role cmd/alpine plays for
// tinyrange-cc: a flag.FlagSet-driven CLI around otherwise-reusable
// package code (here, internal/flatfs.EncodeHeader).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/POBIX/ossi/internal/ata"
	"github.com/POBIX/ossi/internal/flatfs"
)

// fileArg is one -file flag value: a host path and the flat-FS path it
// should be registered under, separated by '='.
type fileArg struct {
	hostPath string
	fsPath   string
}

// fileArgList implements flag.Value so -file can be repeated, the same
// "repeatable flag via a custom flag.Value" idiom the pack's CLI
// examples (tinyrange-cc) use for list-shaped arguments.
type fileArgList []fileArg

func (l *fileArgList) String() string {
	if l == nil {
		return ""
	}
	parts := make([]string, len(*l))
	for i, f := range *l {
		parts[i] = f.hostPath + "=" + f.fsPath
	}
	return strings.Join(parts, ",")
}

func (l *fileArgList) Set(v string) error {
	hostPath, fsPath, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("mkdiskimg: -file %q: want HOSTPATH=FSPATH", v)
	}
	*l = append(*l, fileArg{hostPath: hostPath, fsPath: fsPath})
	return nil
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	out := fs.String("out", "disk.img", "path of the disk image to write")
	var files fileArgList
	fs.Var(&files, "file", "HOSTPATH=FSPATH, repeatable: a host file to embed at FSPATH")

	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("mkdiskimg: at least one -file is required")
	}

	if err := build(*out, files); err != nil {
		log.Fatalf("mkdiskimg: %v", err)
	}
}

// build lays out the header plus every file's contents and writes the
// result to outPath.
func build(outPath string, files fileArgList) error {
	entries := make([]flatfs.Entry, 0, len(files))
	var payload []byte
	nextSector := uint32(flatfs.HeaderSectors)

	for _, f := range files {
		data, err := os.ReadFile(f.hostPath)
		if err != nil {
			return fmt.Errorf("reading %s: %w", f.hostPath, err)
		}
		sectorCount := (uint32(len(data)) + ata.SectorSize - 1) / ata.SectorSize
		padded := make([]byte, sectorCount*ata.SectorSize)
		copy(padded, data)

		entries = append(entries, flatfs.Entry{
			Path:        f.fsPath,
			FirstSector: nextSector,
			SectorCount: sectorCount,
		})
		payload = append(payload, padded...)
		nextSector += sectorCount
	}

	header, err := flatfs.EncodeHeader(entries)
	if err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outPath, err)
	}
	defer out.Close()

	if _, err := out.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := out.Write(payload); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	return nil
}
