package httpapi

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed page.html
var pageSource string

var pageTmpl = template.Must(template.New("page").Parse(pageSource))

// renderPage рендерит страницу один раз при старте.
func renderPage(countdown time.Duration) ([]byte, error) {
	seconds := int(countdown / time.Second)
	if seconds <= 0 {
		seconds = 55
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, struct{ Countdown int }{seconds}); err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return buf.Bytes(), nil
}
