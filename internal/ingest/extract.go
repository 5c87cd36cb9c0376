package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// Document is one unit of extracted text: a PDF page, a slide, a sheet or a whole file.
type Document struct {
	Text   string
	Page   int // 1-based; 0 when the source has no pages
	Source string
}

type extractFunc func(ctx context.Context, path string) ([]Document, error)

var extractors = map[Kind]extractFunc{
	KindPDF:              extractPDF,
	KindWord:             extractDOCX,
	KindPowerPoint:       extractPPTX,
	KindExcel:            extractXLSX,
	KindLegacyWord:       extractLegacyOffice,
	KindLegacyPowerPoint: extractLegacyOffice,
	KindLegacyExcel:      extractLegacyOffice,
	KindText:             extractText,
}

// Extract reads the file at path with the extractor registered for kind.
// Documents whose text is blank are dropped.
func Extract(ctx context.Context, kind Kind, path string) ([]Document, error) {
	fn, ok := extractors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no extractor for %s", ErrUnsupportedType, kind)
	}
	docs, err := fn(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", kind, err)
	}

	source := filepath.Base(path)
	out := docs[:0]
	for _, d := range docs {
		d.Text = cleanText(d.Text)
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		if d.Source == "" {
			d.Source = source
		}
		out = append(out, d)
	}
	return out, nil
}

func extractPDF(ctx context.Context, path string) (docs []Document, err error) {
	// ledongthuc/pdf panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			font := page.Font(name)
			fonts[name] = &font
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			// A single unreadable page should not sink the document
			continue
		}
		docs = append(docs, Document{Text: text, Page: i})
	}
	return docs, nil
}

func extractXLSX(ctx context.Context, path string) ([]Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var docs []Document
	for idx, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		var b strings.Builder
		b.WriteString(sheet)
		b.WriteString("\n\n")
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, cell := range row {
				if cell = strings.TrimSpace(cell); cell != "" {
					cells = append(cells, cell)
				}
			}
			if len(cells) == 0 {
				continue
			}
			b.WriteString(strings.Join(cells, "\t"))
			b.WriteByte('\n')
		}
		if len(rows) == 0 {
			continue
		}
		docs = append(docs, Document{Text: b.String(), Page: idx + 1, Source: sheet})
	}
	return docs, nil
}

func extractText(_ context.Context, path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []Document{{Text: decodeText(data)}}, nil
}

// decodeText honours UTF-8 and UTF-16 byte order marks; anything else is read as UTF-8.
func decodeText(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return string(data[3:])
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return decodeUTF16(data[2:], false)
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return decodeUTF16(data[2:], true)
	}
	return string(data)
}

func decodeUTF16(data []byte, bigEndian bool) string {
	units := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		if bigEndian {
			units = append(units, uint16(data[i])<<8|uint16(data[i+1]))
		} else {
			units = append(units, uint16(data[i+1])<<8|uint16(data[i]))
		}
	}
	return string(utf16.Decode(units))
}

// cleanText normalizes line endings, drops NULs and replaces invalid UTF-8.
func cleanText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}
