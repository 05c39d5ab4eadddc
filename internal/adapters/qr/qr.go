package qr

import (
	"errors"

	qrcode "github.com/skip2/go-qrcode"
)

const DefaultSize = 300

// Renderer рисует ссылку входа в PNG.
type Renderer struct {
	size  int
	level qrcode.RecoveryLevel
}

func NewRenderer(size int) *Renderer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Renderer{size: size, level: qrcode.Medium}
}

func (r *Renderer) Render(content string) ([]byte, error) {
	if content == "" {
		return nil, errors.New("qr: empty content")
	}
	code, err := qrcode.New(content, r.level)
	if err != nil {
		return nil, err
	}
	return code.PNG(r.size)
}
