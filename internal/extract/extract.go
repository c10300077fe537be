// Package extract reads message text from files given to the CLI.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxFileSize bounds the files accepted by File.
const MaxFileSize = 10 << 20

var ErrUnsupported = errors.New("unsupported file content")

// File returns the text of path. PDFs are converted to plain text; any other
// file must be valid UTF-8.
func File(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > MaxFileSize {
		return "", fmt.Errorf("%s is larger than %d bytes", path, MaxFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Bytes(filepath.Ext(path), content)
}

// Bytes extracts text from content. ext selects the decoder.
func Bytes(ext string, content []byte) (string, error) {
	var text string
	if strings.EqualFold(ext, ".pdf") || bytes.HasPrefix(content, []byte("%PDF-")) {
		t, err := extractPDF(content)
		if err != nil {
			return "", err
		}
		text = t
	} else {
		if !utf8.Valid(content) {
			return "", fmt.Errorf("%w: not UTF-8 text", ErrUnsupported)
		}
		text = string(content)
	}
	return strings.TrimSpace(text), nil
}

func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	var buf bytes.Buffer
	numPages := r.NumPage()
	for i := 0; i < numPages; i++ {
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i+1, err)
		}
		buf.WriteString(text)
		if i < numPages-1 {
			buf.WriteByte('\n')
		}
	}
	return buf.String(), nil
}
