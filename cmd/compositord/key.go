package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/e7canasta/chroma-compositor/internal/chroma"
	"github.com/e7canasta/chroma-compositor/internal/config"
)

var keyOpts struct {
	output string
	opts   chroma.Options
}

var keyCmd = &cobra.Command{
	Use:   "key <image>",
	Short: "Key a still image (PNG or JPEG) to a transparent PNG",
	Example: `  compositord key portrait.jpg
  compositord key portrait.jpg -o cutout.png --white-threshold 0.9 --smoothing 0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := keyOpts.output
		if output == "" {
			output = defaultKeyOutput(args[0])
		}
		return keyImage(args[0], output, keyOpts.opts)
	},
}

func init() {
	d := chroma.DefaultOptions()
	f := keyCmd.Flags()
	f.StringVarP(&keyOpts.output, "output", "o", "", "output PNG (default: <input>_keyed.png)")
	f.Float64Var(&keyOpts.opts.WhiteThreshold, "white-threshold", d.WhiteThreshold, "minimum luminance of background pixels")
	f.Float64Var(&keyOpts.opts.SaturationThreshold, "saturation-threshold", d.SaturationThreshold, "maximum saturation of background pixels")
	f.Float64Var(&keyOpts.opts.Tolerance, "tolerance", d.Tolerance, "width of the fade band below the white threshold")
	f.Float64Var(&keyOpts.opts.Smoothing, "smoothing", d.Smoothing, "edge smoothing strength (0 disables)")
	rootCmd.AddCommand(keyCmd)
}

func defaultKeyOutput(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_keyed.png"
}

// keyImage runs the processor over a still image and writes the result.
func keyImage(input, output string, opts chroma.Options) error {
	if err := config.ValidateOptions(opts); err != nil {
		return err
	}

	in, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	img, format, err := image.Decode(in)
	if err != nil {
		return fmt.Errorf("decode %s: %w", input, err)
	}

	start := time.Now()
	src := chroma.BufferFromImage(img)
	dst := chroma.NewBuffer(src.Width, src.Height)
	if err := chroma.ProcessFrame(src, dst, opts); err != nil {
		return fmt.Errorf("key %s: %w", input, err)
	}
	elapsed := time.Since(start)

	if err := writePNG(output, dst.Image()); err != nil {
		return err
	}

	slog.Info("key: image written",
		"input", input,
		"format", format,
		"output", output,
		"width", src.Width,
		"height", src.Height,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return nil
}

// writePNG writes through a temp file so a failed encode never leaves a
// truncated output behind.
func writePNG(path string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".keyed-*.png")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
