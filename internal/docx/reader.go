// Package docx reads paragraph text out of Office Open XML documents.
package docx

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Lllllllleong/doctextflow/internal/convert"
)

var ErrNoDocumentPart = errors.New("docx has no word/document.xml part")

// Reader implements convert.ParagraphReader.
type Reader struct{}

func New() *Reader { return &Reader{} }

func (r *Reader) Paragraphs(ctx context.Context, doc convert.SourceDocument) ([]string, error) {
	zr, err := zip.OpenReader(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("open docx %s: %w", doc.Path, err)
	}
	defer zr.Close()

	var part *zip.File
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, "word/document.xml") {
			part = f
			break
		}
	}
	if part == nil {
		return nil, fmt.Errorf("%s: %w", doc.Path, ErrNoDocumentPart)
	}
	rc, err := part.Open()
	if err != nil {
		return nil, fmt.Errorf("open document part: %w", err)
	}
	defer rc.Close()

	paragraphs, err := parseParagraphs(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", doc.Path, err)
	}
	return paragraphs, nil
}

const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// parseParagraphs returns the text of every w:p directly under w:body, in
// document order, empty paragraphs included. Tables, section properties and
// content controls at body level are skipped, as is anything inside a
// paragraph that is not a WordprocessingML run: text boxes, drawings,
// alternate content and math.
func parseParagraphs(ctx context.Context, r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var paragraphs []string
	inBody := false
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case !inBody && isWord(t.Name, "body"):
				inBody = true
			case inBody && isWord(t.Name, "p"):
				text, err := paragraphText(dec)
				if err != nil {
					return nil, err
				}
				paragraphs = append(paragraphs, text)
			case inBody:
				if err := dec.Skip(); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if isWord(t.Name, "body") {
				return paragraphs, nil
			}
		}
	}
	return paragraphs, nil
}

// paragraphText consumes a w:p element whose start token has already been read.
func paragraphText(dec *xml.Decoder) (string, error) {
	var b strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNS {
				if err := dec.Skip(); err != nil {
					return "", err
				}
				continue
			}
			switch t.Name.Local {
			case "t":
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return "", err
				}
				b.WriteString(text)
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			case "drawing", "pict", "object", "txbxContent", "p":
				if err := dec.Skip(); err != nil {
					return "", err
				}
			}
		case xml.EndElement:
			if isWord(t.Name, "p") {
				return b.String(), nil
			}
		}
	}
}

func isWord(name xml.Name, local string) bool {
	return name.Space == wordNS && name.Local == local
}
