package main

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/e7canasta/chroma-compositor/internal/chroma"
	"github.com/e7canasta/chroma-compositor/internal/config"
	"github.com/e7canasta/chroma-compositor/internal/synth"
)

func writeTestPNG(t *testing.T, path string) {
	t.Helper()

	// White backdrop with a dark 4x4 subject in the middle.
	img := image.NewNRGBA(image.Rect(0, 0, 12, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			c := color.NRGBA{255, 255, 255, 255}
			if x >= 4 && x < 8 && y >= 4 && y < 8 {
				c = color.NRGBA{40, 30, 90, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
}

func TestKeyImage(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "portrait.png")
	writeTestPNG(t, input)

	output := defaultKeyOutput(input)
	if output != filepath.Join(dir, "portrait_keyed.png") {
		t.Fatalf("defaultKeyOutput = %s", output)
	}

	if err := keyImage(input, output, chroma.DefaultOptions()); err != nil {
		t.Fatalf("keyImage failed: %v", err)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatalf("open output failed: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode output failed: %v", err)
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		t.Fatalf("output is %T, want *image.NRGBA", img)
	}

	if a := nrgba.NRGBAAt(0, 0).A; a != 0 {
		t.Errorf("corner alpha = %d, want 0", a)
	}
	if a := nrgba.NRGBAAt(5, 5).A; a != 255 {
		t.Errorf("subject alpha = %d, want 255", a)
	}
}

func TestKeyImageRejectsInvalidOptions(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.png")
	writeTestPNG(t, input)

	opts := chroma.DefaultOptions()
	opts.Tolerance = 1.5
	if err := keyImage(input, filepath.Join(dir, "out.png"), opts); err == nil {
		t.Error("expected error for tolerance outside [0,1]")
	}
	if _, err := os.Stat(filepath.Join(dir, "out.png")); !os.IsNotExist(err) {
		t.Error("no output should be written on error")
	}
}

func TestKeyImageMissingInput(t *testing.T) {
	if err := keyImage(filepath.Join(t.TempDir(), "missing.png"), "out.png", chroma.DefaultOptions()); err == nil {
		t.Error("expected error for missing input")
	}
}

func TestSetupLogger(t *testing.T) {
	for _, format := range []string{"json", "text", "pretty"} {
		if err := setupLogger(format, true); err != nil {
			t.Errorf("setupLogger(%q) failed: %v", format, err)
		}
	}
	if err := setupLogger("xml", false); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestNewVideoSource(t *testing.T) {
	cfg := config.Default()
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	src, err := newVideoSource(cfg.Source)
	if err != nil {
		t.Fatalf("newVideoSource failed: %v", err)
	}
	if _, ok := src.(*synth.Source); !ok {
		t.Errorf("source is %T, want *synth.Source", src)
	}

	if _, err := newVideoSource(config.SourceConfig{Type: "v4l2"}); err == nil {
		t.Error("expected error for unknown source type")
	}
}

func TestNewServiceSynthetic(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	svc, err := newService(cfg)
	if err != nil {
		t.Fatalf("newService failed: %v", err)
	}
	if svc.mqtt != nil || svc.emitter != nil {
		t.Error("mqtt components should not be created when disabled")
	}
	if svc.mqttConnected() != nil {
		t.Error("mqttConnected should be nil when disabled")
	}

	snap := svc.statusSnapshot()
	if snap["isProcessing"] != false {
		t.Errorf("isProcessing = %v before Run", snap["isProcessing"])
	}
}
