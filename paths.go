// paths.go: Path resolution and validation before file I/O.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath expands a leading "~" and returns a cleaned absolute path.
func ResolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", newError(ErrInvalidInput, ErrCodeInvalidInput, "path cannot be empty")
	}
	if path == "~" || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", wrapError(ErrIO, err, ErrCodeIO, "failed to resolve home directory")
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", wrapError(ErrInvalidInput, err, ErrCodeInvalidInput, fmt.Sprintf("failed to resolve %s", path))
	}
	return abs, nil
}

// RequireFile resolves path and checks that it names an existing regular file.
func RequireFile(path string) (string, error) {
	abs, err := ResolvePath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return "", newError(ErrInvalidInput, ErrCodeInvalidInput, fmt.Sprintf("file %s does not exist", abs))
	}
	if err != nil {
		return "", wrapError(ErrIO, err, ErrCodeIO, fmt.Sprintf("failed to stat %s", abs))
	}
	if !info.Mode().IsRegular() {
		return "", newError(ErrInvalidInput, ErrCodeInvalidInput, fmt.Sprintf("%s is not a regular file", abs))
	}
	return abs, nil
}

// EnsureParentDir creates the parent directory of path.
func EnsureParentDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return wrapError(ErrIO, err, ErrCodeIO, fmt.Sprintf("failed to create directory for %s", path))
	}
	return nil
}

// SafeJoin joins an untrusted file name to dir. Names that are absolute, contain
// directory components or resolve outside dir are rejected.
func SafeJoin(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", newError(ErrInvalidInput, ErrCodeInvalidInput, fmt.Sprintf("invalid file name %q", name))
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) || filepath.IsAbs(name) {
		return "", newError(ErrInvalidInput, ErrCodeInvalidInput, fmt.Sprintf("file name %q contains a path", name))
	}
	joined := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, joined)
	if err != nil || rel != name {
		return "", newError(ErrInvalidInput, ErrCodeInvalidInput, fmt.Sprintf("file name %q escapes %s", name, dir))
	}
	return joined, nil
}

// defaultEncryptedPath appends suffix to input.
func defaultEncryptedPath(input, suffix string) string {
	return input + suffix
}

// defaultDecryptedPath strips suffix from input, or appends ".decrypted" when
// input does not carry it.
func defaultDecryptedPath(input, suffix string) string {
	if strings.HasSuffix(input, suffix) && filepath.Base(input) != suffix {
		return strings.TrimSuffix(input, suffix)
	}
	return input + ".decrypted"
}
