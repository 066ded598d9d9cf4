// pack_test.go: Tests for the packed file container.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/agilira/arocrypt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackFiles_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	n1, n2 := "first.txt", "second.bin"
	d1 := bytes.Repeat([]byte{'a'}, 10)
	d2 := bytes.Repeat([]byte{'b'}, 20)
	require.NoError(t, os.WriteFile(filepath.Join(dir, n1), d1, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, n2), d2, 0o600))

	buf, err := arocrypt.PackFiles([]string{filepath.Join(dir, n1), filepath.Join(dir, n2)})
	require.NoError(t, err)
	assert.Len(t, buf, 2+(2+len(n1)+4+10)+(2+len(n2)+4+20))
	assert.Equal(t, []byte{0, 2}, buf[:2])

	files, err := arocrypt.UnpackFiles(buf)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, n1, files[0].Name)
	assert.Equal(t, d1, files[0].Data)
	assert.Equal(t, n2, files[1].Name)
	assert.Equal(t, d2, files[1].Data)
}

func TestPackEntries_EmptyFile(t *testing.T) {
	entries := []arocrypt.PackedFile{{Name: "empty", Data: nil}}
	buf, err := arocrypt.PackEntries(entries)
	require.NoError(t, err)
	assert.Equal(t, arocrypt.PackedSize(entries), len(buf))

	files, err := arocrypt.UnpackFiles(buf)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Empty(t, files[0].Data)
}

func TestPackEntries_Rejects(t *testing.T) {
	_, err := arocrypt.PackEntries(nil)
	assert.True(t, errors.Is(err, arocrypt.ErrInvalidInput))

	_, err = arocrypt.PackEntries([]arocrypt.PackedFile{{Name: ""}})
	assert.True(t, errors.Is(err, arocrypt.ErrInvalidInput))

	_, err = arocrypt.PackEntries([]arocrypt.PackedFile{{Name: "a"}, {Name: "a"}})
	assert.True(t, errors.Is(err, arocrypt.ErrInvalidInput))

	_, err = arocrypt.PackFiles([]string{filepath.Join(t.TempDir(), "missing")})
	assert.True(t, errors.Is(err, arocrypt.ErrInvalidInput))
}

func TestUnpackFiles_Corrupt(t *testing.T) {
	buf, err := arocrypt.PackEntries([]arocrypt.PackedFile{
		{Name: "one", Data: []byte("1111")},
		{Name: "two", Data: []byte("22")},
	})
	require.NoError(t, err)

	for i := 0; i < len(buf); i++ {
		_, err := arocrypt.UnpackFiles(buf[:i])
		assert.True(t, errors.Is(err, arocrypt.ErrCorruptEnvelope), "truncated at %d", i)
	}
	_, err = arocrypt.UnpackFiles(append(append([]byte(nil), buf...), 0))
	assert.True(t, errors.Is(err, arocrypt.ErrCorruptEnvelope), "trailing byte")
}
