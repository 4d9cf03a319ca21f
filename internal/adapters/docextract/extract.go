// Package docextract turns uploaded attachments into plain text that can be
// sent along with a chat turn.
package docextract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/fieldwise/agrichat/internal/domain"
)

var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".json": true,
}

// Extractor reads PDF and plain text files.
type Extractor struct {
	maxChars int
}

// NewExtractor returns an Extractor that cuts output at maxChars runes
// (no limit when maxChars <= 0).
func NewExtractor(maxChars int) *Extractor {
	return &Extractor{maxChars: maxChars}
}

// Extract returns the text content of the named file.
func (e *Extractor) Extract(name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %s is empty", domain.ErrInvalidInput, name)
	}

	ext := strings.ToLower(filepath.Ext(name))
	var (
		text string
		err  error
	)
	switch {
	case ext == ".pdf" || bytes.HasPrefix(data, []byte("%PDF-")):
		text, err = extractPDF(data)
	case textExtensions[ext]:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not valid UTF-8 text", domain.ErrInvalidInput, name)
		}
		text = string(data)
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidInput, ext)
	}
	if err != nil {
		return "", err
	}

	text = normalizeText(text)
	if e.maxChars > 0 {
		if r := []rune(text); len(r) > e.maxChars {
			text = string(r[:e.maxChars])
		}
	}
	return text, nil
}

func extractPDF(data []byte) (text string, err error) {
	// the pdf package panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: corrupt pdf: %v", domain.ErrInvalidInput, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", domain.ErrInvalidInput, err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, perr := page.GetPlainText(nil)
		if perr != nil {
			// skip pages the library cannot decode
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// normalizeText collapses runs of blank lines and trailing spaces.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
