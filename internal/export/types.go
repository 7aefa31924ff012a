// Package export renders sale summaries for download as HTML or PDF.
package export

import "errors"

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// ParseFormat maps a query value to a Format; empty means PDF.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates no headless Chrome binary is installed.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	ErrUnsupportedFormat    = errors.New("unsupported export format")
)
