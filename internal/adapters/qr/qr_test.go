package qr

import (
	"bytes"
	"image/png"
	"testing"
)

func TestRenderProducesPNG(t *testing.T) {
	r := NewRenderer(0)
	data, err := r.Render("tg://login?token=AQID")
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("not a png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != DefaultSize || b.Dy() != DefaultSize {
		t.Errorf("size = %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderEmpty(t *testing.T) {
	if _, err := NewRenderer(100).Render(""); err == nil {
		t.Error("empty content must fail")
	}
}
