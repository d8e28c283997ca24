package export

import (
	"context"
	"fmt"
)

// HTMLRenderer renders a named print template.
type HTMLRenderer interface {
	RenderString(name string, data any) (string, error)
}

// PDFClient converts HTML into PDF bytes, typically the Gotenberg client.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// PDFExporter renders print templates and hands them to Gotenberg.
type PDFExporter struct {
	templates HTMLRenderer
	client    PDFClient
}

// NewPDFExporter builds an exporter. A nil client disables PDF output.
func NewPDFExporter(templates HTMLRenderer, client PDFClient) *PDFExporter {
	return &PDFExporter{templates: templates, client: client}
}

// PrintData is handed to every print template.
type PrintData struct {
	Title    string
	Subtitle string
	Data     any
}

// Enabled reports whether a PDF backend is configured.
func (p *PDFExporter) Enabled() bool {
	return p != nil && p.client != nil && p.templates != nil
}

// Render executes the print template and converts the result.
func (p *PDFExporter) Render(ctx context.Context, template string, data PrintData) ([]byte, error) {
	if !p.Enabled() {
		return nil, fmt.Errorf("pdf exporter not configured")
	}
	html, err := p.templates.RenderString(template, data)
	if err != nil {
		return nil, fmt.Errorf("export: render %s: %w", template, err)
	}
	pdf, err := p.client.RenderHTML(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("export: convert %s: %w", template, err)
	}
	return pdf, nil
}
