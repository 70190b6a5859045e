package docx

import (
	"archive/zip"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

const relsPart = "word/_rels/document.xml.rels"

// Images extracts every image embedded in the document body, in the order it
// appears, as data URIs. An image reference whose target cannot be resolved
// is skipped rather than failing the whole document.
func Images(docPath string) ([]string, error) {
	r, err := zip.OpenReader(docPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDocx, err)
	}
	defer r.Close()

	ids, err := imageRelIDs(&r.Reader)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	targets, err := relationshipTargets(&r.Reader)
	if err != nil {
		return nil, err
	}

	var images []string
	for _, id := range ids {
		target, ok := targets[id]
		if !ok {
			continue
		}
		part := findPart(&r.Reader, target)
		if part == nil {
			continue
		}
		data, err := readPart(part)
		if err != nil {
			return nil, err
		}
		images = append(images, dataURI(target, data))
	}
	return images, nil
}

// imageRelIDs walks the document body and collects the relationship id of
// every image reference in document order. Both DrawingML blips and legacy
// VML imagedata elements carry one.
func imageRelIDs(r *zip.Reader) ([]string, error) {
	part := findPart(r, documentPart)
	if part == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrNotDocx, documentPart)
	}
	rc, err := part.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", documentPart, err)
	}
	defer rc.Close()

	var ids []string
	decoder := xml.NewDecoder(rc)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", documentPart, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "blip":
			if id := attrValue(start, "embed"); id != "" {
				ids = append(ids, id)
			}
		case "imagedata":
			if id := attrValue(start, "id"); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// relationshipTargets maps relationship ids to archive part names.
func relationshipTargets(r *zip.Reader) (map[string]string, error) {
	part := findPart(r, relsPart)
	if part == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrNotDocx, relsPart)
	}
	data, err := readPart(part)
	if err != nil {
		return nil, err
	}

	var rels struct {
		Relationships []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil, fmt.Errorf("decode %s: %w", relsPart, err)
	}

	targets := make(map[string]string, len(rels.Relationships))
	for _, rel := range rels.Relationships {
		target := rel.Target
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join("word", target)
		}
		targets[rel.ID] = target
	}
	return targets, nil
}

func readPart(part *zip.File) ([]byte, error) {
	rc, err := part.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", part.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", part.Name, err)
	}
	return data, nil
}

func dataURI(name string, data []byte) string {
	return "data:" + contentType(name) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".svg":
		return "image/svg+xml"
	case ".emf":
		return "image/emf"
	case ".wmf":
		return "image/wmf"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}
