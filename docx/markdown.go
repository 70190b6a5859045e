package docx

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.UGCPolicy()

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// Markdown renders the document body as Markdown without an external
// cleaner: paragraph styles become headings, everything else becomes plain
// paragraphs. The intermediate HTML is sanitized before conversion.
func Markdown(path string) (string, error) {
	paragraphs, err := readParagraphs(path)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, p := range paragraphs {
		text := strings.TrimSpace(p.text)
		if text == "" {
			continue
		}
		if level := headingLevel(p.style); level > 0 {
			tag := "h" + strconv.Itoa(level)
			sb.WriteString("<" + tag + ">" + html.EscapeString(text) + "</" + tag + ">\n")
		} else {
			sb.WriteString("<p>" + html.EscapeString(text) + "</p>\n")
		}
	}

	safe := sanitizer.Sanitize(sb.String())
	md, err := mdConverter.ConvertString(safe)
	if err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}
