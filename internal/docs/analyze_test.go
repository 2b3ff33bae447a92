package docs

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func TestAnalyze_Image(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 3))); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}

	got, err := Analyze(buf.Bytes(), "image/png")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if got["format"] != "png" {
		t.Errorf("format = %q, want png", got["format"])
	}
	if got["width"] != "4" || got["height"] != "3" {
		t.Errorf("dimensions = %sx%s, want 4x3", got["width"], got["height"])
	}
}

func TestAnalyze_CorruptImage(t *testing.T) {
	if _, err := Analyze([]byte("not an image"), "image/jpeg"); err == nil {
		t.Fatal("expected error for corrupt image")
	}
}

func TestAnalyze_CorruptPDF(t *testing.T) {
	if _, err := Analyze([]byte("not a pdf"), "application/pdf"); err == nil {
		t.Fatal("expected error for corrupt pdf")
	}
}

func TestAnalyze_UnknownTypeIsEmptyNotError(t *testing.T) {
	got, err := Analyze([]byte{0, 1, 2}, "image/webp")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty analysis", got)
	}
}
