package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
)

// Main content streams of the binary Office formats.
var oleTextStreams = map[string]string{
	"WordDocument":        MIMEDOC,
	"PowerPoint Document": MIMEPPT,
	"Workbook":            MIMEXLS,
	"Book":                MIMEXLS,
}

const minRunLength = 4

// sniffOLE names the Office format of an OLE2 compound file from its streams.
func sniffOLE(data []byte) string {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if mime, ok := oleTextStreams[entry.Name]; ok {
			return mime
		}
	}
	return ""
}

// extractLegacyOffice recovers readable text from .doc, .ppt and .xls files.
// The binary record formats are not parsed; printable runs are pulled from the
// main content stream instead, which loses layout but keeps the words.
func extractLegacyOffice(ctx context.Context, path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := mscfb.New(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open compound file: %w", err)
	}

	var b strings.Builder
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if _, ok := oleTextStreams[entry.Name]; !ok {
			continue
		}
		data, readErr := io.ReadAll(entry)
		if readErr != nil {
			return nil, fmt.Errorf("read stream %q: %w", entry.Name, readErr)
		}
		for _, run := range printableRuns(data, minRunLength) {
			b.WriteString(run)
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		return nil, nil
	}
	return []Document{{Text: b.String()}}, nil
}

// printableRuns returns UTF-16LE text runs, falling back to 8-bit runs when the
// stream holds no wide text (older Word files store compressed 8-bit text).
func printableRuns(data []byte, minLen int) []string {
	if runs := utf16Runs(data, minLen); len(runs) > 0 {
		return runs
	}
	return asciiRuns(data, minLen)
}

func utf16Runs(data []byte, minLen int) []string {
	var runs []string
	var cur []uint16
	flush := func() {
		if len(cur) >= minLen {
			if s := strings.TrimSpace(string(utf16.Decode(cur))); s != "" && hasLetter(s) {
				runs = append(runs, s)
			}
		}
		cur = cur[:0]
	}
	for i := 0; i+1 < len(data); i += 2 {
		u := uint16(data[i]) | uint16(data[i+1])<<8
		if isWideTextUnit(u) {
			cur = append(cur, u)
			continue
		}
		flush()
	}
	flush()
	return runs
}

func asciiRuns(data []byte, minLen int) []string {
	var runs []string
	start := -1
	for i := 0; i <= len(data); i++ {
		if i < len(data) && isTextRune(rune(data[i])) && data[i] < 0x80 {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= minLen {
			if s := strings.TrimSpace(string(data[start:i])); s != "" && hasLetter(s) {
				runs = append(runs, s)
			}
		}
		start = -1
	}
	return runs
}

// isWideTextUnit accepts Latin-1 plus the alphabetic scripts below U+2000.
// Pairs of ASCII bytes land above that range and are rejected, so 8-bit
// text is not misread as wide text.
func isWideTextUnit(u uint16) bool {
	r := rune(u)
	if u <= 0xFF {
		return isTextRune(r)
	}
	return u < 0x2000 && unicode.IsLetter(r)
}

func isTextRune(r rune) bool {
	if r == '\t' || r == ' ' {
		return true
	}
	if r < 0x20 || r == 0x7F || (r >= 0xD800 && r <= 0xDFFF) {
		return false
	}
	return unicode.IsPrint(r)
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
