// Package textnorm cleans up text extracted from lesson documents.
//
// The LLM and the document cleaner both leak markup into plain-text fields:
// HTML entities, markdown emphasis, code fences, and code blocks squashed
// onto a single line with escaped newlines. The functions here undo that.
//
// All functions are total: they never fail, and empty input is returned
// unchanged. The code reflow rules are heuristics tuned on real lesson
// sheets — valid code containing a bare "for" inside a string can still be
// reflowed wrongly, so callers should treat the output as display text, not
// as something to execute.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	codeFenceRe = regexp.MustCompile("```[a-zA-Z0-9_-]*")
	codeTagRe   = regexp.MustCompile(`</?code>`)
	boldStarRe  = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldUnderRe = regexp.MustCompile(`__(.+?)__`)
	blankRunsRe = regexp.MustCompile(`\n{2,}`)
	urlRe       = regexp.MustCompile(`https?://`)
	keywordRe   = regexp.MustCompile(`\b(for|if|while|def|class|elif)\b`)
)

// entityPairs maps common HTML entities to their plain characters.
// &amp; is decoded last so "&amp;lt;" does not collapse twice.
var entityPairs = []struct{ from, to string }{
	{"&lt;", "<"},
	{"&gt;", ">"},
	{"&quot;", `"`},
	{"&#39;", "'"},
	{"&apos;", "'"},
	{"&nbsp;", " "},
	{"&amp;", "&"},
}

// NormaliseText strips markup residue from a plain-text field: code fences,
// <code> tags, HTML entities, and bold emphasis markers.
func NormaliseText(text string) string {
	if text == "" {
		return text
	}
	out := codeFenceRe.ReplaceAllString(text, "")
	out = codeTagRe.ReplaceAllString(out, "")
	for _, e := range entityPairs {
		out = strings.ReplaceAll(out, e.from, e.to)
	}
	out = boldStarRe.ReplaceAllString(out, "$1")
	out = boldUnderRe.ReplaceAllString(out, "$1")
	return strings.TrimSpace(out)
}

// reflowThreshold is the single-line length beyond which reflow kicks in.
const reflowThreshold = 80

// NormaliseCodeBlock repairs a code block that lost its layout on the way
// through extraction. Escaped newline sequences are converted to real line
// breaks (outside string literals only), overlong single lines are reflowed
// at statement boundaries, and whitespace is normalised: CRLF collapsed,
// trailing whitespace stripped per line, runs of newlines collapsed to one.
func NormaliseCodeBlock(code string) string {
	if code == "" {
		return code
	}
	out := code
	if !strings.Contains(out, "\n") && strings.Contains(out, `\n`) {
		out = unescapeNewlines(out)
	}
	if !strings.Contains(out, "\n") && len(out) > reflowThreshold {
		out = reflowLine(out)
	}
	out = strings.ReplaceAll(out, "\r\n", "\n")
	lines := strings.Split(out, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	out = strings.Join(lines, "\n")
	out = blankRunsRe.ReplaceAllString(out, "\n")
	return strings.TrimSpace(out)
}

// unescapeNewlines converts literal \n sequences to real newlines, but only
// outside string literals. Quote state is tracked character by character;
// backslash escapes inside strings are honoured so "a\nb" keeps its literal
// \n while the surrounding code gains real line breaks.
func unescapeNewlines(code string) string {
	var b strings.Builder
	b.Grow(len(code))

	var inSingle, inDouble bool
	for i := 0; i < len(code); i++ {
		c := code[i]

		if inSingle || inDouble {
			if c == '\\' && i+1 < len(code) {
				// Escaped character inside a string: copy both bytes.
				b.WriteByte(c)
				b.WriteByte(code[i+1])
				i++
				continue
			}
			if (inSingle && c == '\'') || (inDouble && c == '"') {
				inSingle, inDouble = false, false
			}
			b.WriteByte(c)
			continue
		}

		switch {
		case c == '\'':
			inSingle = true
			b.WriteByte(c)
		case c == '"':
			inDouble = true
			b.WriteByte(c)
		case c == '\\' && i+1 < len(code) && code[i+1] == 'n':
			b.WriteByte('\n')
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// reflowLine splits one overlong line of code at statement boundaries:
// after ";", "{", "}" and before "else". If that produces no break at all
// and the line looks like keyword-structured code (python-style), breaks go
// before colons, or failing that before each keyword.
func reflowLine(line string) string {
	var b strings.Builder
	b.Grow(len(line) + 16)
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == 'e' && strings.HasPrefix(line[i:], "else") && i > 0 && !isWordByte(line[i-1]) {
			b.WriteByte('\n')
		}
		b.WriteByte(c)
		if (c == ';' || c == '{' || c == '}') && i+1 < len(line) {
			b.WriteByte('\n')
			// Swallow the indentation the line break replaces.
			for i+1 < len(line) && line[i+1] == ' ' {
				i++
			}
		}
	}
	out := b.String()
	if strings.Contains(out, "\n") {
		return out
	}
	if !keywordRe.MatchString(out) || urlRe.MatchString(out) {
		return out
	}
	if strings.Contains(out, ":") {
		return breakBefore(out, func(s string, i int) bool { return s[i] == ':' })
	}
	return breakBefore(out, func(s string, i int) bool {
		m := keywordRe.FindStringIndex(s[i:])
		return m != nil && m[0] == 0
	})
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// breakBefore inserts a newline before every position (except 0) where
// match reports true.
func breakBefore(s string, match func(string, int) bool) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		if i > 0 && match(s, i) {
			b.WriteByte('\n')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
