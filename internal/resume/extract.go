// Package resume extracts plain text from resume documents attached to jobs.
package resume

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxSize is the largest document accepted.
const MaxSize = 10 << 20

// ErrTooLarge is returned for documents over MaxSize.
var ErrTooLarge = errors.New("resume exceeds size limit")

// ExtractText returns the plain text of a PDF document.
func ExtractText(r io.ReaderAt, size int64) (string, error) {
	if size > MaxSize {
		return "", ErrTooLarge
	}
	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	text, err := doc.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, text); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return normalize(buf.String()), nil
}

// normalize collapses runs of blank lines and trailing spaces.
func normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := false
	for _, l := range lines {
		l = strings.TrimRight(l, " \t\r")
		if l == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
