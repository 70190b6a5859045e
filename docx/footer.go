package docx

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// FooterText returns the concatenated text of every footer part in the
// document, in part-name order. Documents without footers yield "".
func FooterText(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotDocx, err)
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "word/footer") && strings.HasSuffix(f.Name, ".xml") {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		text, err := partText(&r.Reader, name)
		if err != nil {
			return "", err
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// partText extracts the character data of every w:t element in a part.
func partText(r *zip.Reader, name string) (string, error) {
	part := findPart(r, name)
	if part == nil {
		return "", fmt.Errorf("missing part %s", name)
	}
	rc, err := part.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	var sb strings.Builder
	var inText bool

	decoder := xml.NewDecoder(rc)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", name, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			} else if t.Name.Local == "p" && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
