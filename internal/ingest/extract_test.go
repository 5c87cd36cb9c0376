package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestExtractDOCX(t *testing.T) {
	path := writeTemp(t, "notes.docx", buildDOCX(t, "Linear algebra recap", "Eigenvalues and eigenvectors"))

	docs, err := Extract(context.Background(), KindWord, path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Linear algebra recap\n\nEigenvalues and eigenvectors", docs[0].Text)
	assert.Equal(t, "notes.docx", docs[0].Source)
}

func TestExtractPPTXOrdersSlidesNumerically(t *testing.T) {
	slides := map[int][]string{
		1:  {"Course intro", "Week 1"},
		2:  {"Gradient descent"},
		10: {"Summary"},
		3:  {"  "},
	}
	// Zip order deliberately differs from slide order
	path := writeTemp(t, "deck.pptx", buildPPTX(t, slides, []int{10, 2, 3, 1}))

	docs, err := Extract(context.Background(), KindPowerPoint, path)
	require.NoError(t, err)
	require.Len(t, docs, 3, "blank slide is dropped")

	assert.Equal(t, 1, docs[0].Page)
	assert.Equal(t, "Course intro\nWeek 1", docs[0].Text)
	assert.Equal(t, 2, docs[1].Page)
	assert.Equal(t, 10, docs[2].Page)
	assert.Equal(t, "Summary", docs[2].Text)
}

func TestExtractXLSX(t *testing.T) {
	path := writeTemp(t, "grades.xlsx", buildXLSX(t))

	docs, err := Extract(context.Background(), KindExcel, path)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "Sheet1", docs[0].Source)
	assert.Contains(t, docs[0].Text, "Topic\tWeek")
	assert.Contains(t, docs[0].Text, "Vectors\t3")
	assert.Equal(t, "Notes", docs[1].Source)
	assert.Contains(t, docs[1].Text, "Cosine similarity ranks neighbours")
}

func TestExtractText(t *testing.T) {
	path := writeTemp(t, "plain.txt", []byte("\xEF\xBB\xBFline one\r\nline two\x00"))

	docs, err := Extract(context.Background(), KindText, path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "line one\nline two", docs[0].Text)
}

func TestExtractMalformedPDF(t *testing.T) {
	path := writeTemp(t, "broken.pdf", []byte("%PDF-1.4\nthis is not really a pdf"))

	_, err := Extract(context.Background(), KindPDF, path)
	assert.Error(t, err)
}

func TestDecodeTextUTF16(t *testing.T) {
	units := utf16.Encode([]rune("Grüße"))
	le := []byte{0xFF, 0xFE}
	be := []byte{0xFE, 0xFF}
	for _, u := range units {
		le = append(le, byte(u), byte(u>>8))
		be = append(be, byte(u>>8), byte(u))
	}
	assert.Equal(t, "Grüße", decodeText(le))
	assert.Equal(t, "Grüße", decodeText(be))
	assert.Equal(t, "plain", decodeText([]byte("plain")))
}

func TestPrintableRuns(t *testing.T) {
	t.Run("wide text", func(t *testing.T) {
		data := []byte{0x00, 0x00, 0xFF, 0xFE, 0x01, 0x00}
		for _, u := range utf16.Encode([]rune("Hello world")) {
			data = append(data, byte(u), byte(u>>8))
		}
		data = append(data, 0x00, 0x00)

		assert.Equal(t, []string{"Hello world"}, printableRuns(data, minRunLength))
	})

	t.Run("eight bit fallback", func(t *testing.T) {
		data := []byte("\x00\x00Lecture notes\x00\x00\x03ab\x00")
		assert.Equal(t, []string{"Lecture notes"}, printableRuns(data, minRunLength))
	})

	t.Run("binary noise", func(t *testing.T) {
		assert.Empty(t, printableRuns([]byte{0x01, 0x02, 0x03, 0x04, 0x00, 0x10}, minRunLength))
	})
}
