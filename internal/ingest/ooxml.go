package ingest

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

var slidePart = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// WordprocessingML (w:) and DrawingML (a:) share the local names p and t,
// so one paragraph walker serves both formats.
const (
	paragraphXPath = "//*[local-name()='p']"
	runTextXPath   = ".//*[local-name()='t' or local-name()='tab' or local-name()='br']"
)

func extractDOCX(_ context.Context, path string) ([]Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		paras, err := readParagraphs(f)
		if err != nil {
			return nil, err
		}
		return []Document{{Text: strings.Join(paras, "\n\n")}}, nil
	}
	return nil, fmt.Errorf("word/document.xml not found")
}

func extractPPTX(ctx context.Context, path string) ([]Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pptx: %w", err)
	}
	defer zr.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slidePart.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	docs := make([]Document, 0, len(slides))
	for _, s := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		paras, err := readParagraphs(s.file)
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.num, err)
		}
		docs = append(docs, Document{Text: strings.Join(paras, "\n"), Page: s.num})
	}
	return docs, nil
}

func readParagraphs(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return parseParagraphs(rc)
}

func parseParagraphs(r io.Reader) ([]string, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	nodes, err := xmlquery.QueryAll(doc, paragraphXPath)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, p := range nodes {
		runs, err := xmlquery.QueryAll(p, runTextXPath)
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		for _, run := range runs {
			switch run.Data {
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			default:
				b.WriteString(run.InnerText())
			}
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			out = append(out, text)
		}
	}
	return out, nil
}
