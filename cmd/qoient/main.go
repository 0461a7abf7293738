// Command qoient converts images to and from the .qoe format.
//
// Encode: qoient [flags] <input.(png|jpg|gif)> ...
// Decode: qoient [flags] <input.qoe> ...
//
// Several inputs are processed concurrently, one worker per CPU.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/svanichkin/qoient"
	"github.com/svanichkin/qoient/internal/zst"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "qoient:", err)
		os.Exit(1)
	}
}

type options struct {
	entropy qoient.EntropyPolicy
	zstd    bool
	strict  bool
}

func run(args []string) error {
	fs := flag.NewFlagSet("qoient", flag.ContinueOnError)
	entropy := fs.String("entropy", "auto", "entropy layer: auto, always or never")
	useZstd := fs.Bool("zstd", false, "wrap encoded frames in a zstd stream")
	strict := fs.Bool("strict", false, "treat truncated frames as errors when decoding")
	if err := fs.Parse(args); err != nil {
		return err
	}
	files := fs.Args()
	if len(files) == 0 {
		return errors.New("no input files (usage: qoient [flags] <input> ...)")
	}

	var opts options
	switch *entropy {
	case "auto":
		opts.entropy = qoient.EntropyAuto
	case "always":
		opts.entropy = qoient.EntropyAlways
	case "never":
		opts.entropy = qoient.EntropyNever
	default:
		return fmt.Errorf("unknown entropy policy %q", *entropy)
	}
	opts.zstd = *useZstd
	opts.strict = *strict

	// Каждый файл обрабатывается независимо, поэтому просто раздаём их пулу.
	sem := make(chan struct{}, runtime.NumCPU())
	errs := make([]error, len(files))
	var wg sync.WaitGroup
	for i, path := range files {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = processFile(path, opts)
		}(i, path)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func processFile(path string, opts options) error {
	if strings.ToLower(filepath.Ext(path)) == ".qoe" {
		return decodeFile(path, opts)
	}
	return encodeFile(path, opts)
}

func encodeFile(inPath string, opts options) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	img, _, err := image.Decode(in)
	if err != nil {
		return fmt.Errorf("%s: %w", inPath, err)
	}

	var buf bytes.Buffer
	if err := qoient.EncodeImage(&buf, img, qoient.EncodeOptions{Entropy: opts.entropy}); err != nil {
		return fmt.Errorf("%s: %w", inPath, err)
	}
	out := buf.Bytes()
	if opts.zstd {
		if out, err = zst.Compress(out); err != nil {
			return fmt.Errorf("%s: %w", inPath, err)
		}
	}

	outPath := strings.TrimSuffix(inPath, filepath.Ext(inPath)) + ".qoe"
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return err
	}
	fmt.Printf("Encoded %s → %s (%d bytes)\n", inPath, outPath, len(out))
	return nil
}

func decodeFile(inPath string, opts options) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	if zst.IsCompressed(data) {
		if data, err = zst.Decompress(data); err != nil {
			return fmt.Errorf("%s: %w", inPath, err)
		}
	}

	img, err := qoient.DecodeWithOptions(data, qoient.ChannelsAuto, qoient.DecodeOptions{Strict: opts.strict})
	if err != nil {
		return fmt.Errorf("%s: %w", inPath, err)
	}

	outPath := strings.TrimSuffix(inPath, filepath.Ext(inPath)) + ".png"
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := png.Encode(out, img.ToImage()); err != nil {
		return fmt.Errorf("%s: %w", inPath, err)
	}
	fmt.Printf("Decoded %s → %s\n", inPath, outPath)
	return nil
}
