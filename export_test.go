// export_test.go: Test hooks for package internals.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import "io"

// SetRandReaderForTest swaps the entropy source and returns a restore function.
func SetRandReaderForTest(r io.Reader) func() {
	prev := randReader
	randReader = r
	return func() { randReader = prev }
}

// SetKemRandReaderForTest swaps the KEM key generation entropy source.
func SetKemRandReaderForTest(r io.Reader) func() {
	prev := kemRandReader
	kemRandReader = r
	return func() { kemRandReader = prev }
}
