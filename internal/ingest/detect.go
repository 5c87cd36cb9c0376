package ingest

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind selects the extractor used for a file.
type Kind string

const (
	KindPDF              Kind = "pdf"
	KindWord             Kind = "word"
	KindPowerPoint       Kind = "powerpoint"
	KindExcel            Kind = "excel"
	KindLegacyWord       Kind = "legacy-word"
	KindLegacyPowerPoint Kind = "legacy-powerpoint"
	KindLegacyExcel      Kind = "legacy-excel"
	KindText             Kind = "text"
)

const (
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEPPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MIMEXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMEDOC  = "application/msword"
	MIMEPPT  = "application/vnd.ms-powerpoint"
	MIMEXLS  = "application/vnd.ms-excel"
	MIMETXT  = "text/plain"
)

// FileType is one entry of the supported upload table.
type FileType struct {
	MIME      string
	Extension string
	Kind      Kind
}

// SupportedTypes maps a sniffed MIME type to its extension and extractor.
var SupportedTypes = map[string]FileType{
	MIMEPDF:  {MIME: MIMEPDF, Extension: ".pdf", Kind: KindPDF},
	MIMEDOCX: {MIME: MIMEDOCX, Extension: ".docx", Kind: KindWord},
	MIMEPPTX: {MIME: MIMEPPTX, Extension: ".pptx", Kind: KindPowerPoint},
	MIMEXLSX: {MIME: MIMEXLSX, Extension: ".xlsx", Kind: KindExcel},
	MIMEDOC:  {MIME: MIMEDOC, Extension: ".doc", Kind: KindLegacyWord},
	MIMEPPT:  {MIME: MIMEPPT, Extension: ".ppt", Kind: KindLegacyPowerPoint},
	MIMEXLS:  {MIME: MIMEXLS, Extension: ".xls", Kind: KindLegacyExcel},
	MIMETXT:  {MIME: MIMETXT, Extension: ".txt", Kind: KindText},
}

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("file is empty")
)

// UnsupportedTypeError reports the sniffed MIME type that was rejected.
type UnsupportedTypeError struct {
	MIME string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported file type: %s", e.MIME)
}

func (e *UnsupportedTypeError) Is(target error) bool { return target == ErrUnsupportedType }

// SupportedMIMETypes lists the accepted MIME types in a stable order.
func SupportedMIMETypes() []string {
	out := make([]string, 0, len(SupportedTypes))
	for m := range SupportedTypes {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// DetectMIME sniffs the content and returns the bare MIME type (no parameters).
// Generic zip and OLE2 results are refined by looking at part or stream names.
func DetectMIME(data []byte) string {
	mime := baseMIME(mimetype.Detect(data).String())
	switch mime {
	case "application/zip":
		if refined := sniffOOXML(data); refined != "" {
			return refined
		}
	case "application/x-ole-storage":
		if refined := sniffOLE(data); refined != "" {
			return refined
		}
	}
	return mime
}

// Lookup resolves a MIME type against SupportedTypes.
func Lookup(mime string) (FileType, error) {
	ft, ok := SupportedTypes[baseMIME(mime)]
	if !ok {
		return FileType{}, &UnsupportedTypeError{MIME: mime}
	}
	return ft, nil
}

func baseMIME(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

func sniffOOXML(data []byte) string {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	for _, f := range zr.File {
		switch {
		case f.Name == "word/document.xml":
			return MIMEDOCX
		case f.Name == "ppt/presentation.xml":
			return MIMEPPTX
		case f.Name == "xl/workbook.xml":
			return MIMEXLSX
		}
	}
	return ""
}
