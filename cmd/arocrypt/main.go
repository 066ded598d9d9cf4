// main.go: arocrypt command-line front end.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/agilira/arocrypt"
	"github.com/agilira/arocrypt/internal/keystore"
	"github.com/awnumar/memguard"
	"github.com/sirupsen/logrus"
)

const usage = `usage: arocrypt [-config file] <command> [flags] [args]

commands:
  keygen        create the install passphrase and KEM key pair in the keystore
  rotate        replace the KEM key pair
  encrypt-text  encrypt a string to a JSON envelope
  decrypt-text  decrypt a JSON envelope
  encrypt       encrypt files
  decrypt       decrypt files
  validate      check a file's integrity trailer without decrypting
  hide          hide files in a PNG image
  extract       recover files hidden in a PNG image
`

// errUsage marks command-line parsing failures.
var errUsage = errors.New("usage")

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	return nil
}

type app struct {
	cfg    arocrypt.Config
	logger *logrus.Logger
	engine *arocrypt.Engine
	store  *keystore.Store
	stdin  io.Reader
	stdout io.Writer
}

func main() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	if code != 0 {
		memguard.Purge()
		os.Exit(code)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) int {
	global := flag.NewFlagSet("arocrypt", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := global.String("config", "", "YAML configuration file")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	a, err := newApp(*configPath, stdin, stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "arocrypt:", err)
		return 1
	}
	defer a.close()

	cmd, rest := global.Arg(0), global.Args()[1:]
	commands := map[string]func(context.Context, []string) error{
		"keygen":       a.keygen,
		"rotate":       a.rotate,
		"encrypt-text": a.encryptText,
		"decrypt-text": a.decryptText,
		"encrypt":      a.encryptFiles,
		"decrypt":      a.decryptFiles,
		"validate":     a.validate,
		"hide":         a.hide,
		"extract":      a.extract,
	}
	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "arocrypt: unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	if err := fn(ctx, rest); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		a.logger.WithField("kind", arocrypt.KindOf(err).String()).Debug(err.Error())
		fmt.Fprintln(os.Stderr, "arocrypt:", err)
		return 1
	}
	return 0
}

func newApp(configPath string, stdin io.Reader, stdout io.Writer) (*app, error) {
	cfg := arocrypt.DefaultConfig()
	if configPath != "" {
		loaded, err := arocrypt.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg.KeystoreDir == "" {
		cfg.KeystoreDir = filepath.Join("~", ".arocrypt", "keystore")
	}
	logger, err := arocrypt.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	engine, err := arocrypt.NewEngine(
		arocrypt.WithConfig(cfg),
		arocrypt.WithLogger(logger),
		arocrypt.WithAuditSink(arocrypt.LogAuditSink{Logger: logger}),
	)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, engine: engine, stdin: stdin, stdout: stdout}, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.WithError(err).Warn("failed to close keystore")
		}
	}
}

func (a *app) kemManager(ctx context.Context) (*arocrypt.KemKeyManager, error) {
	store, err := a.openKeystore()
	if err != nil {
		return nil, err
	}
	km := arocrypt.NewKemKeyManager(store, a.logger)
	if err := km.Load(ctx); err != nil {
		return nil, err
	}
	return km, nil
}

func (a *app) keygen(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	recipient := fs.String("recipient", "", "base64 ML-KEM-768 public key to encrypt hybrid files to")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	store, err := a.openKeystore()
	if err != nil {
		return err
	}
	pass, err := store.EnsurePassphrase(ctx)
	if err != nil {
		return err
	}
	arocrypt.Zeroize(pass)

	km, err := a.kemManager(ctx)
	if err != nil {
		return err
	}
	pair, err := km.Ensure(ctx)
	if err != nil {
		return err
	}
	if *recipient != "" {
		if err := km.SetRecipientKey(ctx, *recipient); err != nil {
			return err
		}
	}
	fmt.Fprintf(a.stdout, "fingerprint: %s\npublic key: %s\n", pair.Fingerprint(), pair.PublicKey)
	return nil
}

func (a *app) rotate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rotate", flag.ContinueOnError)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	km, err := a.kemManager(ctx)
	if err != nil {
		return err
	}
	if _, err := km.KemKeyPair(ctx); err != nil {
		return fmt.Errorf("no key pair to rotate, run keygen first: %w", err)
	}
	pair, err := km.Rotate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "fingerprint: %s\npublic key: %s\n", pair.Fingerprint(), pair.PublicKey)
	return nil
}

func (a *app) encryptText(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("encrypt-text", flag.ContinueOnError)
	method := fs.String("m", "", "cipher, e.g. AES-256-CBC (default from config)")
	source := fs.String("key-source", "", "passphrase source: env, prompt or keystore")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	text := strings.Join(fs.Args(), " ")
	if fs.NArg() == 0 {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return err
		}
		text = strings.TrimSuffix(string(data), "\n")
	}
	pp, err := a.passphrases(ctx, *source, true)
	if err != nil {
		return err
	}
	env, err := a.engine.EncryptText(ctx, pp, text, *method)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

func (a *app) decryptText(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("decrypt-text", flag.ContinueOnError)
	source := fs.String("key-source", "", "passphrase source: env, prompt or keystore")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	in := a.stdin
	if fs.NArg() > 0 {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	var env arocrypt.TextEnvelope
	if err := json.NewDecoder(in).Decode(&env); err != nil {
		return fmt.Errorf("%w: envelope is not valid JSON", arocrypt.ErrInvalid)
	}
	pp, err := a.passphrases(ctx, *source, false)
	if err != nil {
		return err
	}
	text, err := a.engine.DecryptText(ctx, pp, &env)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, text)
	return nil
}

// fileFlags are shared by encrypt, decrypt and validate.
type fileFlags struct {
	method    *string
	output    *string
	source    *string
	mode      *string
	legacy    *bool
	recipient *string
}

func newFileFlags(fs *flag.FlagSet) *fileFlags {
	return &fileFlags{
		method:    fs.String("m", "", "cipher (default from config)"),
		output:    fs.String("o", "", "output path (single input only)"),
		source:    fs.String("key-source", "", "passphrase source: env, prompt or keystore"),
		mode:      fs.String("mode", "passphrase", "key mode: passphrase, hybrid or detect"),
		legacy:    fs.Bool("legacy", false, "read the unversioned layout"),
		recipient: fs.String("recipient", "", "hybrid recipient public key (base64)"),
	}
}

func (a *app) fileSetup(ctx context.Context, ff *fileFlags, fs *flag.FlagSet, confirm bool) (arocrypt.FileKeys, arocrypt.FileOptions, []arocrypt.BatchItem, error) {
	var keys arocrypt.FileKeys
	mode, err := arocrypt.ParseKeyMode(*ff.mode)
	if err != nil {
		return keys, arocrypt.FileOptions{}, nil, err
	}
	opts := arocrypt.FileOptions{Mode: mode, RecipientKey: *ff.recipient}
	if *ff.legacy {
		opts.Layout = arocrypt.LayoutLegacy
	}
	if fs.NArg() == 0 {
		return keys, opts, nil, fmt.Errorf("%w: no input files", arocrypt.ErrInvalidInput)
	}
	if *ff.output != "" && fs.NArg() > 1 {
		return keys, opts, nil, fmt.Errorf("%w: -o requires a single input", arocrypt.ErrInvalidInput)
	}
	items := make([]arocrypt.BatchItem, fs.NArg())
	for i, in := range fs.Args() {
		items[i] = arocrypt.BatchItem{InputPath: in, OutputPath: *ff.output}
	}

	if mode == arocrypt.KeyModePassphrase {
		if keys.Passphrases, err = a.passphrases(ctx, *ff.source, confirm); err != nil {
			return keys, opts, nil, err
		}
		return keys, opts, items, nil
	}
	if *ff.recipient == "" || mode != arocrypt.KeyModeHybrid || !confirm {
		km, err := a.kemManager(ctx)
		if err != nil {
			return keys, opts, nil, err
		}
		keys.KemKeys = km
	}
	if mode == arocrypt.KeyModeDetect {
		if keys.Passphrases, err = a.passphrases(ctx, *ff.source, false); err != nil {
			return keys, opts, nil, err
		}
	}
	return keys, opts, items, nil
}

func (a *app) report(results []arocrypt.BatchResult) error {
	failed := 0
	for _, r := range results {
		if r.OK() {
			fmt.Fprintf(a.stdout, "ok    %s -> %s\n", r.InputPath, r.OutputPath)
			continue
		}
		failed++
		fmt.Fprintf(a.stdout, "fail  %s: %v\n", r.InputPath, r.Err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func (a *app) encryptFiles(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	ff := newFileFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	keys, opts, items, err := a.fileSetup(ctx, ff, fs, true)
	if err != nil {
		return err
	}
	return a.report(a.engine.EncryptFiles(ctx, keys, items, *ff.method, opts))
}

func (a *app) decryptFiles(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("decrypt", flag.ContinueOnError)
	ff := newFileFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	keys, opts, items, err := a.fileSetup(ctx, ff, fs, false)
	if err != nil {
		return err
	}
	return a.report(a.engine.DecryptFiles(ctx, keys, items, *ff.method, opts))
}

func (a *app) validate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	ff := newFileFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	keys, opts, items, err := a.fileSetup(ctx, ff, fs, false)
	if err != nil {
		return err
	}
	for _, item := range items {
		msg, err := a.engine.ValidateFile(ctx, keys, item.InputPath, *ff.method, opts.Mode)
		if err != nil {
			return fmt.Errorf("%s: %w", item.InputPath, err)
		}
		fmt.Fprintf(a.stdout, "%s: %s\n", item.InputPath, msg)
	}
	return nil
}

func (a *app) hide(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("hide", flag.ContinueOnError)
	method := fs.String("m", "", "cipher (default from config)")
	image := fs.String("image", "", "carrier PNG")
	output := fs.String("o", "", "output PNG (default <carrier>-hidden.png)")
	source := fs.String("key-source", "", "passphrase source: env, prompt or keystore")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *image == "" || fs.NArg() == 0 {
		return fmt.Errorf("%w: -image and at least one file are required", arocrypt.ErrInvalidInput)
	}
	pp, err := a.passphrases(ctx, *source, true)
	if err != nil {
		return err
	}
	out, err := a.engine.HideDataInImage(ctx, pp, *image, fs.Args(), *method, *output)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, out)
	return nil
}

func (a *app) extract(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	method := fs.String("m", "", "cipher (default from config)")
	dir := fs.String("dir", ".", "output directory")
	source := fs.String("key-source", "", "passphrase source: env, prompt or keystore")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: exactly one image is required", arocrypt.ErrInvalidInput)
	}
	pp, err := a.passphrases(ctx, *source, false)
	if err != nil {
		return err
	}
	paths, err := a.engine.ExtractHiddenData(ctx, pp, fs.Arg(0), *method, *dir)
	for _, p := range paths {
		fmt.Fprintln(a.stdout, p)
	}
	return err
}
