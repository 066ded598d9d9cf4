// file.go: File envelope encryption and decryption.
//
// Encryption streams the input through the cipher in chunks and writes the
// versioned envelope to a temporary file that is renamed into place on success.
// Decryption of versioned envelopes first verifies the HMAC trailer over the
// whole file, then streams the body through the cipher. Legacy envelopes are
// decoded in memory.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"bufio"
	"context"
	"crypto/hmac"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// FileKeys are the key providers consulted by file operations. Only the
// provider required by the selected KeyMode needs to be set.
type FileKeys struct {
	Passphrases PassphraseProvider
	KemKeys     KemKeyProvider
}

// FileOptions tune a file operation.
type FileOptions struct {
	// Mode selects the key source. Encryption accepts KeyModePassphrase and
	// KeyModeHybrid; decryption also accepts KeyModeDetect.
	Mode KeyMode
	// Layout selects the envelope layout when decrypting.
	Layout Layout
	// RecipientKey overrides the KEM public key (base64) for hybrid encryption.
	RecipientKey string
}

// EncryptFile encrypts inputPath with method and writes the envelope to
// outputPath, or to inputPath plus the output suffix when outputPath is empty.
// Parent directories are created as needed.
//
// A missing input file or an unsupported method fails before any output is
// created. No partial envelope is left behind on failure.
//
// Example:
//
//	keys := arocrypt.FileKeys{Passphrases: arocrypt.NewStaticPassphrase(pass)}
//	out, err := engine.EncryptFile(ctx, keys, "report.pdf", "AES-256-GCM", "", arocrypt.FileOptions{})
//	// out == "/abs/path/report.pdf.arocrypt"
func (e *Engine) EncryptFile(ctx context.Context, keys FileKeys, inputPath, method, outputPath string, opts FileOptions) (out string, err error) {
	span := startAudit(OpEncryptFile, method)
	defer func() { e.audit(ctx, span, err) }()

	if err = checkContext(ctx); err != nil {
		return "", err
	}
	alg, err := e.resolveMethod(method)
	if err != nil {
		return "", err
	}
	span.method = alg.Name

	in, err := RequireFile(inputPath)
	if err != nil {
		return "", err
	}
	if outputPath == "" {
		out = defaultEncryptedPath(in, e.outputSuffix)
	} else if out, err = ResolvePath(outputPath); err != nil {
		return "", err
	}
	if out == in {
		return "", newError(ErrInvalidInput, ErrCodeInvalidInput, "output path equals input path")
	}

	key, header, err := e.encryptionKey(ctx, keys, alg, opts)
	if err != nil {
		return "", err
	}
	defer Zeroize(key)

	src, err := os.Open(in) // #nosec G304 -- caller-selected input
	if err != nil {
		return "", wrapError(ErrIO, err, ErrCodeIO, fmt.Sprintf("failed to open %s", in))
	}
	defer src.Close()

	err = writeAtomically(out, func(w io.Writer) error {
		mac := newEnvelopeMAC(key)
		mw := io.MultiWriter(w, mac)
		if err := writeOut(mw, header.marshal()); err != nil {
			return err
		}
		enc, err := NewStreamingEncryptor(mw, alg, key, header.iv)
		if err != nil {
			return err
		}
		if _, err := pump(enc, src, e.chunkSize); err != nil {
			_ = enc.Close()
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
		return writeOut(w, mac.Sum(nil))
	})
	if err != nil {
		return "", err
	}

	e.logger.WithFields(logrus.Fields{
		"operation": OpEncryptFile,
		"algorithm": alg.Name,
		"mode":      opts.Mode.String(),
		"output":    out,
	}).Debug("file encrypted")
	return out, nil
}

// encryptionKey generates IV and salt and derives the file key for opts.Mode.
func (e *Engine) encryptionKey(ctx context.Context, keys FileKeys, alg Algorithm, opts FileOptions) ([]byte, *envelopeHeader, error) {
	iv, err := GenerateIV(alg)
	if err != nil {
		return nil, nil, err
	}
	salt, err := GenerateSalt()
	if err != nil {
		return nil, nil, err
	}
	header := &envelopeHeader{iv: iv, salt: salt}

	switch opts.Mode {
	case KeyModePassphrase:
		p, err := passphrase(ctx, keys.Passphrases)
		if err != nil {
			return nil, nil, err
		}
		defer Zeroize(p)
		key, err := deriveAlgorithmKey(p, alg, salt)
		if err != nil {
			return nil, nil, err
		}
		return key, header, nil

	case KeyModeHybrid:
		recipient := opts.RecipientKey
		if recipient == "" {
			pair, err := kemKeyPair(ctx, keys.KemKeys)
			if err != nil {
				return nil, nil, err
			}
			recipient = pair.Recipient()
		}
		ct, ss, err := Encapsulate(recipient)
		if err != nil {
			return nil, nil, err
		}
		defer Zeroize(ss)
		key, err := DeriveKeyHKDF(ss, salt, kemInfo(alg), alg.KeyLen)
		if err != nil {
			return nil, nil, err
		}
		header.flags |= flagKEM
		header.kemCiphertext = ct
		return key, header, nil
	}
	return nil, nil, newError(ErrInvalidInput, ErrCodeInvalidInput,
		fmt.Sprintf("key mode %s cannot be used for encryption", opts.Mode))
}

// DecryptFile decrypts the envelope at inputPath and writes the plaintext to
// outputPath, or to inputPath without the output suffix when outputPath is empty.
//
// An unsupported method, a missing input file and unconfigured key material are
// returned as they are. Every other failure (wrong key, tampering, truncation,
// I/O) is logged and returned as ErrBadDecrypt, with the underlying kind still
// reachable through errors.Is and KindOf.
func (e *Engine) DecryptFile(ctx context.Context, keys FileKeys, inputPath, method, outputPath string, opts FileOptions) (out string, err error) {
	span := startAudit(OpDecryptFile, method)
	defer func() { e.audit(ctx, span, err) }()

	if err = checkContext(ctx); err != nil {
		return "", err
	}
	alg, err := e.resolveMethod(method)
	if err != nil {
		return "", err
	}
	span.method = alg.Name

	in, err := RequireFile(inputPath)
	if err != nil {
		return "", err
	}
	if outputPath == "" {
		out = defaultDecryptedPath(in, e.outputSuffix)
	} else if out, err = ResolvePath(outputPath); err != nil {
		return "", err
	}
	if out == in {
		return "", newError(ErrInvalidInput, ErrCodeInvalidInput, "output path equals input path")
	}

	if opts.Layout == LayoutLegacy {
		err = e.decryptLegacy(ctx, keys, in, alg, out, opts.Mode)
	} else {
		err = e.decryptVersioned(ctx, keys, in, alg, out, opts.Mode)
	}
	if err != nil {
		if errors.Is(err, ErrKeyNotConfigured) {
			return "", err
		}
		e.logger.WithFields(logrus.Fields{
			"operation": OpDecryptFile,
			"algorithm": alg.Name,
			"input":     in,
			"kind":      KindOf(err).String(),
		}).WithError(err).Warn("file decryption failed")
		return "", boundary(ErrBadDecrypt, err)
	}
	return out, nil
}

// versionedFile is an opened versioned envelope with its key derived.
type versionedFile struct {
	f       *os.File
	header  *envelopeHeader
	raw     []byte
	key     []byte
	bodyOff int64
	bodyLen int64
	size    int64
}

func (v *versionedFile) Close() {
	Zeroize(v.key)
	_ = v.f.Close()
}

func (v *versionedFile) body() *io.SectionReader {
	return io.NewSectionReader(v.f, v.bodyOff, v.bodyLen)
}

// verifyMAC recomputes the HMAC over header and body and compares it in
// constant time with the trailer.
func (v *versionedFile) verifyMAC(chunkSize int) error {
	mac := newEnvelopeMAC(v.key)
	mac.Write(v.raw)
	if _, err := pump(mac, v.body(), chunkSize); err != nil {
		return err
	}
	trailer := make([]byte, MACSize)
	if n, err := v.f.ReadAt(trailer, v.size-MACSize); n != MACSize {
		return corruptRead(err, "HMAC trailer truncated")
	}
	if !hmac.Equal(mac.Sum(nil), trailer) {
		return newError(ErrAuthentication, ErrCodeAuthentication, "envelope HMAC mismatch")
	}
	return nil
}

// openVersioned opens path, parses the header, checks it against mode and
// derives the key.
func openVersioned(ctx context.Context, keys FileKeys, path string, alg Algorithm, mode KeyMode) (*versionedFile, error) {
	f, err := os.Open(path) // #nosec G304 -- caller-selected input
	if err != nil {
		return nil, wrapError(ErrIO, err, ErrCodeIO, fmt.Sprintf("failed to open %s", path))
	}
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, wrapError(ErrIO, err, ErrCodeIO, fmt.Sprintf("failed to stat %s", path))
	}
	header, raw, err := readEnvelopeHeader(f, alg)
	if err != nil {
		return nil, err
	}
	switch {
	case mode == KeyModePassphrase && header.hasKEM():
		return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt, "envelope carries a KEM segment but passphrase mode was selected")
	case mode == KeyModeHybrid && !header.hasKEM():
		return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt, "envelope has no KEM segment but hybrid mode was selected")
	}

	bodyOff := int64(len(raw))
	bodyLen := info.Size() - bodyOff - MACSize
	if bodyLen < minBodyLen(alg) {
		return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt,
			fmt.Sprintf("envelope truncated: %d bytes", info.Size()))
	}

	key, err := decryptionKey(ctx, keys, alg, header.salt, header.kemCiphertext, header.hasKEM(), false)
	if err != nil {
		return nil, err
	}
	ok = true
	return &versionedFile{
		f:       f,
		header:  header,
		raw:     raw,
		key:     key,
		bodyOff: bodyOff,
		bodyLen: bodyLen,
		size:    info.Size(),
	}, nil
}

func minBodyLen(alg Algorithm) int64 {
	switch alg.Mode {
	case ModeGCM:
		return AuthTagSize
	case ModeCBC:
		return BlockIVSize
	default:
		return 0
	}
}

func (e *Engine) decryptVersioned(ctx context.Context, keys FileKeys, in string, alg Algorithm, out string, mode KeyMode) error {
	v, err := openVersioned(ctx, keys, in, alg, mode)
	if err != nil {
		return err
	}
	defer v.Close()

	if err := v.verifyMAC(e.chunkSize); err != nil {
		return err
	}
	return writeAtomically(out, func(w io.Writer) error {
		dec, err := NewStreamingDecryptor(w, alg, v.key, v.header.iv)
		if err != nil {
			return err
		}
		if _, err := pump(dec, v.body(), e.chunkSize); err != nil {
			_ = dec.Close()
			return err
		}
		return dec.Close()
	})
}

func (e *Engine) decryptLegacy(ctx context.Context, keys FileKeys, in string, alg Algorithm, out string, mode KeyMode) error {
	data, err := os.ReadFile(in) // #nosec G304 -- caller-selected input
	if err != nil {
		return wrapError(ErrIO, err, ErrCodeIO, fmt.Sprintf("failed to read %s", in))
	}
	env, err := parseLegacyEnvelope(data, alg, mode)
	if err != nil {
		return err
	}
	key, err := decryptionKey(ctx, keys, alg, env.salt, env.kemCiphertext, env.kemCiphertext != nil, true)
	if err != nil {
		return err
	}
	defer Zeroize(key)

	plain, err := openBytes(alg, key, env.iv, env.body)
	if err != nil {
		return err
	}
	defer Zeroize(plain)
	return writeAtomically(out, func(w io.Writer) error {
		return writeOut(w, plain)
	})
}

// decryptionKey derives the file key. Hybrid keys come from decapsulating
// kemCiphertext with the local secret key: versioned envelopes expand the shared
// secret with HKDF, legacy envelopes run it through PBKDF2. Other keys come from
// the passphrase provider.
func decryptionKey(ctx context.Context, keys FileKeys, alg Algorithm, salt, kemCiphertext []byte, hybrid, legacy bool) ([]byte, error) {
	if !hybrid {
		p, err := passphrase(ctx, keys.Passphrases)
		if err != nil {
			return nil, err
		}
		defer Zeroize(p)
		return deriveAlgorithmKey(p, alg, salt)
	}

	pair, err := kemKeyPair(ctx, keys.KemKeys)
	if err != nil {
		return nil, err
	}
	ss, err := Decapsulate(kemCiphertext, pair.SecretKey)
	if err != nil {
		return nil, err
	}
	defer Zeroize(ss)
	if legacy {
		return deriveAlgorithmKey(ss, alg, salt)
	}
	return DeriveKeyHKDF(ss, salt, kemInfo(alg), alg.KeyLen)
}

// writeAtomically runs fn against a buffered temporary file next to path and
// renames it to path when fn and all flushes succeed. The temporary file is
// removed on any failure.
func writeAtomically(path string, fn func(w io.Writer) error) error {
	if err := EnsureParentDir(path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return wrapError(ErrIO, err, ErrCodeIO, fmt.Sprintf("failed to create temporary file for %s", path))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriterSize(tmp, DefaultChunkSize)
	if err := fn(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return wrapError(ErrIO, err, ErrCodeIO, "failed to flush output")
	}
	if err := tmp.Sync(); err != nil {
		return wrapError(ErrIO, err, ErrCodeIO, "failed to sync output")
	}
	if err := tmp.Close(); err != nil {
		return wrapError(ErrIO, err, ErrCodeIO, "failed to close output")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return wrapError(ErrIO, err, ErrCodeIO, fmt.Sprintf("failed to move output to %s", path))
	}
	committed = true
	return nil
}

// BatchItem is one file of a batch operation. An empty OutputPath selects the
// default output path.
type BatchItem struct {
	InputPath  string
	OutputPath string
}

// BatchResult is the outcome of one batch item.
type BatchResult struct {
	InputPath  string
	OutputPath string
	Err        error
}

// OK reports whether the item succeeded.
func (r BatchResult) OK() bool {
	return r.Err == nil
}

// EncryptFiles encrypts every item in order. A failing item never stops the batch.
func (e *Engine) EncryptFiles(ctx context.Context, keys FileKeys, items []BatchItem, method string, opts FileOptions) []BatchResult {
	return e.runBatch(items, func(item BatchItem) (string, error) {
		return e.EncryptFile(ctx, keys, item.InputPath, method, item.OutputPath, opts)
	})
}

// DecryptFiles decrypts every item in order. A failing item never stops the batch.
func (e *Engine) DecryptFiles(ctx context.Context, keys FileKeys, items []BatchItem, method string, opts FileOptions) []BatchResult {
	return e.runBatch(items, func(item BatchItem) (string, error) {
		return e.DecryptFile(ctx, keys, item.InputPath, method, item.OutputPath, opts)
	})
}

func (e *Engine) runBatch(items []BatchItem, fn func(BatchItem) (string, error)) []BatchResult {
	results := make([]BatchResult, len(items))
	for i, item := range items {
		out, err := fn(item)
		results[i] = BatchResult{InputPath: item.InputPath, OutputPath: out, Err: err}
	}
	return results
}
