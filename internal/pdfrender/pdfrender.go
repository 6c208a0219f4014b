// Package pdfrender turns rendered comanda HTML into the stored print
// document. The converter is pluggable: an external command (wkhtmltopdf
// style, HTML on stdin, PDF on stdout), an HTTP render service, or a
// passthrough that stores the HTML itself when no converter is configured.
package pdfrender

import (
	"context"

	"github.com/delsur/comandero/internal/config"
)

// Renderer converts comanda HTML into the final document bytes plus the file
// extension they should be stored under ("pdf" or "html").
type Renderer interface {
	Render(ctx context.Context, html []byte) (data []byte, ext string, err error)
}

// New picks the renderer from the printing configuration. An HTTP render
// service wins over a local command; with neither, documents stay HTML.
func New(cfg config.PrintingConfig) Renderer {
	if cfg.RenderURL != "" {
		return NewHTTP(cfg.RenderURL, nil)
	}
	if cfg.RenderCommand != "" {
		return NewCommand(cfg.RenderCommand)
	}
	return Passthrough{}
}

// Passthrough stores the HTML unconverted.
type Passthrough struct{}

// Render returns the input bytes with the "html" extension.
func (Passthrough) Render(ctx context.Context, html []byte) ([]byte, string, error) {
	return html, "html", nil
}
