// Package docx reads lesson documents straight from the Office Open XML
// container: raw paragraph text, footer text, and embedded images, without
// shelling out to an external converter.
package docx

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotDocx reports a file that is not a readable .docx archive.
var ErrNotDocx = errors.New("not a docx archive")

const documentPart = "word/document.xml"

// Validate checks that path is a ZIP container holding a Word document part.
func Validate(path string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotDocx, err)
	}
	defer r.Close()

	if findPart(&r.Reader, documentPart) == nil {
		return fmt.Errorf("%w: missing %s", ErrNotDocx, documentPart)
	}
	return nil
}

// RawText extracts the visible text of the document body, one line per
// paragraph. It is the fallback rendition used when no cleaner is available.
func RawText(path string) (string, error) {
	paragraphs, err := readParagraphs(path)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		lines = append(lines, p.text)
	}
	return strings.Join(lines, "\n"), nil
}

// paragraph is one body paragraph with its resolved style name.
type paragraph struct {
	text  string
	style string
}

func readParagraphs(path string) ([]paragraph, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDocx, err)
	}
	defer r.Close()

	part := findPart(&r.Reader, documentPart)
	if part == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrNotDocx, documentPart)
	}
	rc, err := part.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", documentPart, err)
	}
	defer rc.Close()

	var (
		paragraphs  []paragraph
		current     strings.Builder
		style       string
		inParagraph bool
		inText      bool
	)

	decoder := xml.NewDecoder(rc)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", documentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				current.Reset()
				style = ""
			case "pStyle":
				if inParagraph {
					style = attrValue(t, "val")
				}
			case "t":
				inText = inParagraph
			case "br", "cr":
				if inParagraph {
					current.WriteByte('\n')
				}
			case "tab":
				if inParagraph {
					current.WriteByte('\t')
				}
			}

		case xml.CharData:
			if inText {
				current.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if inParagraph {
					inParagraph = false
					paragraphs = append(paragraphs, paragraph{
						text:  strings.TrimRight(current.String(), " \t"),
						style: style,
					})
				}
			}
		}
	}
	return paragraphs, nil
}

func findPart(r *zip.Reader, name string) *zip.File {
	for _, f := range r.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func attrValue(e xml.StartElement, local string) string {
	for _, attr := range e.Attr {
		if attr.Name.Local == local {
			return attr.Value
		}
	}
	return ""
}

// headingLevel maps a paragraph style name to an outline level, 0 for body
// text. Handles localized style names the same way Word emits them.
func headingLevel(style string) int {
	lower := strings.ToLower(style)

	if lower == "title" {
		return 1
	}
	if lower == "subtitle" {
		return 2
	}

	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if strings.HasPrefix(lower, prefix) {
			rest := lower[len(prefix):]
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}
