package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type zipEntry struct {
	name string
	body string
}

func buildZip(t *testing.T, entries []zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`

func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		// Split each paragraph over two runs to exercise run concatenation
		mid := len(p) / 2
		fmt.Fprintf(&body, `<w:p><w:r><w:t>%s</w:t></w:r><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, p[:mid], p[mid:])
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`

	return buildZip(t, []zipEntry{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", doc},
	})
}

// buildPPTX takes slide numbers and their text lines.
func buildPPTX(t *testing.T, slides map[int][]string, order []int) []byte {
	t.Helper()
	entries := []zipEntry{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"ppt/presentation.xml", `<?xml version="1.0"?><p:presentation xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"/>`},
	}
	for _, n := range order {
		var body strings.Builder
		for _, line := range slides[n] {
			fmt.Fprintf(&body, `<a:p><a:r><a:t>%s</a:t></a:r></a:p>`, line)
		}
		xml := `<?xml version="1.0"?><p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree><p:sp><p:txBody>` +
			body.String() + `</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
		entries = append(entries, zipEntry{fmt.Sprintf("ppt/slides/slide%d.xml", n), xml})
	}
	return buildZip(t, entries)
}

func buildXLSX(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Topic"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Week"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Vectors"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 3))
	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Notes", "A1", "Cosine similarity ranks neighbours"))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

const (
	oleSector     = 512
	oleFreeSect   = 0xFFFFFFFF
	oleEndOfChain = 0xFFFFFFFE
	oleFATSect    = 0xFFFFFFFD
	oleNoStream   = 0xFFFFFFFF
)

// buildOLE writes a version 3 compound file holding one stream. Sector 0 is the
// directory, sector 1 the FAT and the stream follows, padded to 4096 bytes so
// it lives in the regular FAT rather than the mini stream.
func buildOLE(t *testing.T, streamName string, content []byte) []byte {
	t.Helper()
	require.LessOrEqual(t, len(content), 4096)
	stream := make([]byte, 4096)
	copy(stream, content)
	streamSectors := len(stream) / oleSector

	le := binary.LittleEndian
	header := make([]byte, oleSector)
	copy(header, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	le.PutUint16(header[24:], 0x003E)
	le.PutUint16(header[26:], 3)
	le.PutUint16(header[28:], 0xFFFE)
	le.PutUint16(header[30:], 9)
	le.PutUint16(header[32:], 6)
	le.PutUint32(header[44:], 1) // FAT sectors
	le.PutUint32(header[48:], 0) // first directory sector
	le.PutUint32(header[56:], 4096)
	le.PutUint32(header[60:], oleEndOfChain)
	le.PutUint32(header[68:], oleEndOfChain)
	le.PutUint32(header[76:], 1)
	for i := 1; i < 109; i++ {
		le.PutUint32(header[76+i*4:], oleFreeSect)
	}

	dir := make([]byte, oleSector)
	putEntry := func(i int, name string, typ byte, child, start uint32, size uint64) {
		e := dir[i*128 : (i+1)*128]
		units := utf16.Encode([]rune(name))
		for j, u := range units {
			le.PutUint16(e[j*2:], u)
		}
		le.PutUint16(e[64:], uint16((len(units)+1)*2))
		e[66] = typ
		e[67] = 1 // black
		le.PutUint32(e[68:], oleNoStream)
		le.PutUint32(e[72:], oleNoStream)
		le.PutUint32(e[76:], child)
		le.PutUint32(e[116:], start)
		le.PutUint64(e[120:], size)
	}
	putEntry(0, "Root Entry", 5, 1, oleEndOfChain, 0)
	putEntry(1, streamName, 2, oleNoStream, 2, uint64(len(stream)))
	for i := 2; i < 4; i++ {
		e := dir[i*128:]
		le.PutUint32(e[68:], oleNoStream)
		le.PutUint32(e[72:], oleNoStream)
		le.PutUint32(e[76:], oleNoStream)
	}

	fat := make([]byte, oleSector)
	for i := 0; i < oleSector/4; i++ {
		le.PutUint32(fat[i*4:], oleFreeSect)
	}
	le.PutUint32(fat[0:], oleEndOfChain)
	le.PutUint32(fat[4:], oleFATSect)
	for i := 0; i < streamSectors; i++ {
		next := uint32(oleEndOfChain)
		if i < streamSectors-1 {
			next = uint32(2 + i + 1)
		}
		le.PutUint32(fat[(2+i)*4:], next)
	}

	var buf bytes.Buffer
	buf.Write(header)
	buf.Write(dir)
	buf.Write(fat)
	buf.Write(stream)
	return buf.Bytes()
}

// buildDOC stores text as UTF-16LE in a WordDocument stream, behind some binary
// record noise.
func buildDOC(t *testing.T, text string) []byte {
	t.Helper()
	content := []byte{0xEC, 0xA5, 0xC1, 0x00, 0x03, 0x00}
	for _, u := range utf16.Encode([]rune(text)) {
		content = append(content, byte(u), byte(u>>8))
	}
	return buildOLE(t, "WordDocument", content)
}

// buildXLS stores 8-bit strings in a Workbook stream, as BIFF8 does for
// compressed strings.
func buildXLS(t *testing.T, cells ...string) []byte {
	t.Helper()
	content := []byte{0x09, 0x08, 0x10, 0x00, 0x00, 0x06, 0x05, 0x00}
	for _, c := range cells {
		content = append(content, 0x00, 0xFC, 0x00)
		content = append(content, c...)
	}
	return buildOLE(t, "Workbook", content)
}
