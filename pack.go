// pack.go: PackedFileContainer serialization for steganographic payloads.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// PackedFile is one entry of a packed container.
type PackedFile struct {
	Name string
	Data []byte
}

// Layout: FileCount(2B BE) ‖ { NameLen(2B BE) ‖ Name ‖ Size(4B BE) ‖ Bytes }*
const (
	packCountSize   = 2
	packNameLenSize = 2
	packSizeSize    = 4
)

// PackFiles reads the files at paths and serializes them into a container.
// Entries are named by base name.
//
// Example:
//
//	buf, err := arocrypt.PackFiles([]string{"a.txt", "b.txt"})
//	// len(buf) == 2 + (2+5+4+len(a)) + (2+5+4+len(b))
func PackFiles(paths []string) ([]byte, error) {
	entries := make([]PackedFile, 0, len(paths))
	for _, p := range paths {
		abs, err := RequireFile(p)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, wrapError(ErrIO, err, ErrCodeIO, fmt.Sprintf("failed to read %s", abs))
		}
		entries = append(entries, PackedFile{Name: filepath.Base(abs), Data: data})
	}
	return PackEntries(entries)
}

// PackEntries serializes in-memory entries.
func PackEntries(entries []PackedFile) ([]byte, error) {
	if len(entries) == 0 {
		return nil, newError(ErrInvalidInput, ErrCodeInvalidInput, "no files to pack")
	}
	if len(entries) > math.MaxUint16 {
		return nil, newError(ErrInvalidInput, ErrCodeInvalidInput, fmt.Sprintf("too many files: %d", len(entries)))
	}
	seen := make(map[string]bool, len(entries))
	for _, f := range entries {
		if f.Name == "" || len(f.Name) > math.MaxUint16 || !utf8.ValidString(f.Name) {
			return nil, newError(ErrInvalidInput, ErrCodeInvalidInput, fmt.Sprintf("invalid file name %q", f.Name))
		}
		if seen[f.Name] {
			return nil, newError(ErrInvalidInput, ErrCodeInvalidInput, fmt.Sprintf("duplicate file name %q", f.Name))
		}
		seen[f.Name] = true
		if uint64(len(f.Data)) > math.MaxUint32 {
			return nil, newError(ErrInvalidInput, ErrCodeInvalidInput, fmt.Sprintf("file %s exceeds 4 GiB", f.Name))
		}
	}

	buf := make([]byte, 0, PackedSize(entries))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(entries)))
	for _, f := range entries {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.Name)))
		buf = append(buf, f.Name...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Data)))
		buf = append(buf, f.Data...)
	}
	return buf, nil
}

// PackedSize returns the serialized size of entries.
func PackedSize(entries []PackedFile) int {
	n := packCountSize
	for _, f := range entries {
		n += packNameLenSize + len(f.Name) + packSizeSize + len(f.Data)
	}
	return n
}

// UnpackFiles parses a container. Truncated or overlong input returns
// ErrCorruptEnvelope. Names are returned as stored; callers writing them to
// disk must sanitize them (see SafeJoin).
func UnpackFiles(buf []byte) ([]PackedFile, error) {
	if len(buf) < packCountSize {
		return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt, "container shorter than file count")
	}
	count := int(binary.BigEndian.Uint16(buf))
	off := packCountSize
	files := make([]PackedFile, 0, count)
	for i := 0; i < count; i++ {
		if len(buf)-off < packNameLenSize {
			return nil, corruptEntry(i, "name length")
		}
		nameLen := int(binary.BigEndian.Uint16(buf[off:]))
		off += packNameLenSize
		if len(buf)-off < nameLen {
			return nil, corruptEntry(i, "name")
		}
		name := string(buf[off : off+nameLen])
		off += nameLen
		if len(buf)-off < packSizeSize {
			return nil, corruptEntry(i, "size")
		}
		size := uint64(binary.BigEndian.Uint32(buf[off:]))
		off += packSizeSize
		if uint64(len(buf)-off) < size {
			return nil, corruptEntry(i, "data")
		}
		data := make([]byte, size)
		copy(data, buf[off:off+int(size)])
		off += int(size)
		files = append(files, PackedFile{Name: name, Data: data})
	}
	if off != len(buf) {
		return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt, fmt.Sprintf("%d trailing bytes after container", len(buf)-off))
	}
	return files, nil
}

func corruptEntry(i int, field string) error {
	return newError(ErrCorruptEnvelope, ErrCodeCorrupt, fmt.Sprintf("entry %d: truncated %s", i, field))
}
