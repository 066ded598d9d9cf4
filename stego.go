// stego.go: Least-significant-bit embedding of encrypted file containers in images.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package arocrypt

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// stegoLenSize is the ciphertext length prefix of a hidden payload.
const stegoLenSize = 4

// HiddenImageSuffix is appended to the carrier base name when no output path is given.
const HiddenImageSuffix = "-hidden.png"

// EmbedState tracks the hide pipeline.
type EmbedState int

const (
	EmbedIdle EmbedState = iota
	EmbedKeyReady
	EmbedPacked
	EmbedEncrypted
	EmbedCapacityChecked
	EmbedEmbedded
	EmbedRejected
)

var embedStateNames = [...]string{
	EmbedIdle:            "idle",
	EmbedKeyReady:        "key_ready",
	EmbedPacked:          "packed",
	EmbedEncrypted:       "encrypted",
	EmbedCapacityChecked: "capacity_checked",
	EmbedEmbedded:        "embedded",
	EmbedRejected:        "rejected",
}

func (s EmbedState) String() string {
	if s < 0 || int(s) >= len(embedStateNames) {
		return fmt.Sprintf("EmbedState(%d)", int(s))
	}
	return embedStateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s EmbedState) Terminal() bool {
	return s == EmbedEmbedded || s == EmbedRejected
}

// EmbedDataInImage writes payload into bit 0 of successive bytes of pixels,
// most significant payload bit first. pixels is never modified; the result is
// a new buffer. When the payload needs more bits than pixels has bytes it
// returns ErrPayloadTooLarge.
func EmbedDataInImage(pixels, payload []byte) ([]byte, error) {
	bits := len(payload) * 8
	if bits > len(pixels) {
		return nil, newError(ErrPayloadTooLarge, ErrCodeTooLarge,
			fmt.Sprintf("payload needs %d bits, carrier holds %d", bits, len(pixels)))
	}
	out := make([]byte, len(pixels))
	copy(out, pixels)
	for i, b := range payload {
		base := i * 8
		for bit := 0; bit < 8; bit++ {
			out[base+bit] = out[base+bit]&^1 | (b>>(7-bit))&1
		}
	}
	return out, nil
}

// ExtractDataFromImage reads n bytes back from the low bits of pixels.
func ExtractDataFromImage(pixels []byte, n int) ([]byte, error) {
	return extractAt(pixels, 0, n)
}

func extractAt(pixels []byte, offset, n int) ([]byte, error) {
	if n < 0 || offset < 0 || (offset+n)*8 > len(pixels) {
		return nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt,
			fmt.Sprintf("carrier holds %d bytes, need %d", len(pixels)/8, offset+n))
	}
	out := make([]byte, n)
	src := pixels[offset*8:]
	for i := range out {
		var b byte
		for bit := 0; bit < 8; bit++ {
			b = b<<1 | src[i*8+bit]&1
		}
		out[i] = b
	}
	return out, nil
}

// hideRun carries one HideDataInImage call through its states.
type hideRun struct {
	state  EmbedState
	logger logrus.FieldLogger
}

func (r *hideRun) advance(to EmbedState) {
	r.logger.WithFields(logrus.Fields{"from": r.state.String(), "to": to.String()}).Debug("embed state")
	r.state = to
}

// HideDataInImage encrypts secretFiles into a packed container and embeds it in
// the carrier image at imagePath. The result is written to outputPath, or to
// "<carrier>-hidden.png" beside the carrier when outputPath is empty, and its
// path is returned.
//
// The payload is CiphertextLen(4B BE) ‖ IV ‖ Salt ‖ Ciphertext. When it does
// not fit the carrier, ErrPayloadTooLarge is returned and nothing is written.
//
// Example:
//
//	out, err := engine.HideDataInImage(ctx, provider, "cat.png",
//		[]string{"notes.txt"}, "AES-256-GCM", "")
//	if errors.Is(err, arocrypt.ErrPayloadTooLarge) {
//		// choose a larger carrier
//	}
func (e *Engine) HideDataInImage(ctx context.Context, passphrases PassphraseProvider, imagePath string, secretFiles []string, method, outputPath string) (out string, err error) {
	span := startAudit(OpHide, method)
	defer func() { e.audit(ctx, span, err) }()

	if err = checkContext(ctx); err != nil {
		return "", err
	}
	alg, err := e.resolveMethod(method)
	if err != nil {
		return "", err
	}
	span.method = alg.Name
	if len(secretFiles) == 0 {
		return "", newError(ErrInvalidInput, ErrCodeInvalidInput, "no files to hide")
	}

	carrierPath, err := RequireFile(imagePath)
	if err != nil {
		return "", err
	}
	if outputPath == "" {
		out = hiddenImagePath(carrierPath)
	} else if out, err = ResolvePath(outputPath); err != nil {
		return "", err
	}
	carrier, err := e.readPixels(carrierPath)
	if err != nil {
		return "", err
	}

	run := &hideRun{state: EmbedIdle, logger: e.logger.WithField("operation", OpHide)}

	p, err := passphrase(ctx, passphrases)
	if err != nil {
		return "", err
	}
	defer Zeroize(p)
	salt, err := GenerateSalt()
	if err != nil {
		return "", err
	}
	iv, err := GenerateIV(alg)
	if err != nil {
		return "", err
	}
	key, err := deriveAlgorithmKey(p, alg, salt)
	if err != nil {
		return "", err
	}
	defer Zeroize(key)
	run.advance(EmbedKeyReady)

	packed, err := PackFiles(secretFiles)
	if err != nil {
		return "", err
	}
	defer Zeroize(packed)
	run.advance(EmbedPacked)

	ct, err := sealBytes(alg, key, iv, packed)
	if err != nil {
		return "", err
	}
	run.advance(EmbedEncrypted)

	payload := make([]byte, 0, stegoLenSize+len(iv)+len(salt)+len(ct))
	payload = binary.BigEndian.AppendUint32(payload, uint32(len(ct)))
	payload = append(payload, iv...)
	payload = append(payload, salt...)
	payload = append(payload, ct...)

	pix, err := EmbedDataInImage(carrier.Pix, payload)
	run.advance(EmbedCapacityChecked)
	if err != nil {
		run.advance(EmbedRejected)
		return "", err
	}

	encoded, err := e.pixels.Encode(&PixelBuffer{Width: carrier.Width, Height: carrier.Height, Pix: pix})
	if err != nil {
		return "", err
	}
	if err = writeAtomically(out, func(w io.Writer) error {
		if _, err := w.Write(encoded); err != nil {
			return wrapError(ErrIO, err, ErrCodeIO, "failed to write image")
		}
		return nil
	}); err != nil {
		return "", err
	}
	run.advance(EmbedEmbedded)
	return out, nil
}

// ExtractHiddenData recovers the files hidden in the image at imagePath and
// writes them into outputDir, returning their paths in container order.
//
// A wrong passphrase or method, a carrier without a payload and a container
// holding unsafe file names all return ErrCorrupt. No file is written unless
// the whole payload decrypts and unpacks.
func (e *Engine) ExtractHiddenData(ctx context.Context, passphrases PassphraseProvider, imagePath, method, outputDir string) (paths []string, err error) {
	span := startAudit(OpExtract, method)
	defer func() { e.audit(ctx, span, err) }()

	if err = checkContext(ctx); err != nil {
		return nil, err
	}
	alg, err := e.resolveMethod(method)
	if err != nil {
		return nil, err
	}
	span.method = alg.Name

	carrierPath, err := RequireFile(imagePath)
	if err != nil {
		return nil, err
	}
	dir, err := ResolvePath(outputDir)
	if err != nil {
		return nil, err
	}
	carrier, err := e.readPixels(carrierPath)
	if err != nil {
		return nil, err
	}
	p, err := passphrase(ctx, passphrases)
	if err != nil {
		return nil, err
	}
	defer Zeroize(p)

	files, targets, err := openHiddenPayload(carrier.Pix, alg, p, dir)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"operation": OpExtract,
			"algorithm": alg.Name,
			"input":     carrierPath,
			"kind":      KindOf(err).String(),
		}).Warn("hidden data extraction failed")
		return nil, boundary(ErrCorrupt, err)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, wrapError(ErrIO, err, ErrCodeIO, fmt.Sprintf("failed to create %s", dir))
	}
	for i, f := range files {
		data := f.Data
		if err := writeAtomically(targets[i], func(w io.Writer) error {
			if _, err := w.Write(data); err != nil {
				return wrapError(ErrIO, err, ErrCodeIO, "failed to write extracted file")
			}
			return nil
		}); err != nil {
			return paths, err
		}
		paths = append(paths, targets[i])
	}
	return paths, nil
}

// openHiddenPayload decrypts and unpacks the payload and resolves every output
// path before anything touches the filesystem.
func openHiddenPayload(pix []byte, alg Algorithm, passphrase []byte, dir string) ([]PackedFile, []string, error) {
	prefix, err := ExtractDataFromImage(pix, stegoLenSize)
	if err != nil {
		return nil, nil, err
	}
	ctLen := int64(binary.BigEndian.Uint32(prefix))
	headerLen := stegoLenSize + alg.IVLen + SaltSize
	if int64(headerLen)+ctLen > int64(len(pix)/8) {
		return nil, nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt,
			fmt.Sprintf("declared ciphertext length %d exceeds carrier", ctLen))
	}
	rest, err := extractAt(pix, stegoLenSize, headerLen-stegoLenSize+int(ctLen))
	if err != nil {
		return nil, nil, err
	}
	iv := rest[:alg.IVLen]
	salt := rest[alg.IVLen : alg.IVLen+SaltSize]
	ct := rest[alg.IVLen+SaltSize:]

	key, err := deriveAlgorithmKey(passphrase, alg, salt)
	if err != nil {
		return nil, nil, err
	}
	defer Zeroize(key)
	plain, err := openBytes(alg, key, iv, ct)
	if err != nil {
		return nil, nil, err
	}
	defer Zeroize(plain)

	files, err := UnpackFiles(plain)
	if err != nil {
		return nil, nil, err
	}
	targets := make([]string, len(files))
	seen := make(map[string]bool, len(files))
	for i, f := range files {
		target, err := SafeJoin(dir, f.Name)
		if err != nil {
			return nil, nil, wrapError(ErrCorruptEnvelope, err, ErrCodeCorrupt, "container holds an unsafe file name")
		}
		if seen[target] {
			return nil, nil, newError(ErrCorruptEnvelope, ErrCodeCorrupt, fmt.Sprintf("duplicate file name %q", f.Name))
		}
		seen[target] = true
		targets[i] = target
	}
	return files, targets, nil
}

func (e *Engine) readPixels(path string) (*PixelBuffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapError(ErrIO, err, ErrCodeIO, fmt.Sprintf("failed to read %s", path))
	}
	return e.pixels.Decode(data)
}

func hiddenImagePath(carrier string) string {
	base := strings.TrimSuffix(carrier, filepath.Ext(carrier))
	return base + HiddenImageSuffix
}
