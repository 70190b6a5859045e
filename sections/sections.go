// Package sections splits a cleaned Markdown rendition of a lesson document
// into its fixed set of named regions and catalogs the image placeholders
// each region carries.
//
// The cleaner emits a literal "<!-- image -->" token wherever an image
// occurred in the source document. Placeholder positions only say that an
// image belongs to a section (and, inside the challenge section, to which
// individual challenge); the actual image bytes arrive separately, in
// document order, and are bound to the slots by BindImages.
package sections

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/digimakers/lessonpipe/lesson"
)

// ImageMarker is the placeholder token the document cleaner emits for each
// embedded image.
const ImageMarker = "<!-- image -->"

var (
	getReadyRe     = regexp.MustCompile(`(?i)^(?:#+\s*)?Get\s*Ready\b`)
	addYourCodeRe  = regexp.MustCompile(`(?i)^(?:#+\s*)?(Add\s*Your\s*Code|My\s*First\s*Program)\b`)
	tryItOutRe     = regexp.MustCompile(`(?i)^(?:#+\s*)?Try\s*It\s*Out\b`)
	challengeRe    = regexp.MustCompile(`(?i)^(?:#+\s*)?Challenge\b`)
	testYourselfRe = regexp.MustCompile(`(?i)^(?:#+\s*)?Test\s*Yourself\b`)
	funFactRe      = regexp.MustCompile(`(?i)^(?:#+\s*)?Fun\s*Fact\b`)

	// subHeaderRe marks an individual challenge inside the challenge
	// section: any ## header that is not one of the major sections.
	subHeaderRe = regexp.MustCompile(`^##\s+\S`)
)

var majorHeaders = []*regexp.Regexp{
	getReadyRe, addYourCodeRe, tryItOutRe, challengeRe, testYourselfRe, funFactRe,
}

// Section is one named region of the document: its text and the image
// slots synthesized from its placeholder tokens.
type Section struct {
	Content    string
	ImageSlots []lesson.ImageSlot
}

// Parsed holds the seven fixed regions of a lesson document. ChallengeImages
// additionally records which individual challenge each challenge-section
// image belongs to.
type Parsed struct {
	Preface      Section
	GetReady     Section
	AddYourCode  Section
	TryItOut     Section
	Challenge    Section
	TestYourself Section
	FunFact      Section

	ChallengeImages []lesson.ChallengeImage
}

// Parse splits cleaned Markdown into the fixed section set. Sections whose
// header never appears come back empty; a section without a terminating
// header runs to the end of the document.
func Parse(markdown string) *Parsed {
	p := &Parsed{}

	if before, _, ok := splitAtHeader(markdown, getReadyRe); ok {
		p.Preface.Content = strings.TrimSpace(before)
		p.Preface.ImageSlots = makeSlots(countMarkers(p.Preface.Content), "preface")
	}

	p.GetReady.Content = extract(markdown, getReadyRe,
		addYourCodeRe, tryItOutRe, challengeRe, testYourselfRe, funFactRe)

	p.AddYourCode.Content = extract(markdown, addYourCodeRe,
		tryItOutRe, challengeRe, testYourselfRe, funFactRe)
	p.AddYourCode.ImageSlots = makeSlots(countMarkers(p.AddYourCode.Content), "addYourCode")

	p.TryItOut.Content = extract(markdown, tryItOutRe, challengeRe)

	p.Challenge.Content = extract(markdown, challengeRe, testYourselfRe, funFactRe)
	p.ChallengeImages = challengeImageMappings(p.Challenge.Content)
	for _, m := range p.ChallengeImages {
		p.Challenge.ImageSlots = append(p.Challenge.ImageSlots, m.Slot)
	}

	p.TestYourself.Content = extract(markdown, testYourselfRe, funFactRe)

	if _, after, ok := splitAtHeader(markdown, funFactRe); ok {
		p.FunFact.Content = strings.TrimSpace(dropHeaderLine(after))
	}

	return p
}

// splitAtHeader finds the first line matching pattern and splits the text
// around it: everything before the header line, and the header line plus
// everything after.
func splitAtHeader(text string, pattern *regexp.Regexp) (before, after string, found bool) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if pattern.MatchString(strings.TrimSpace(line)) {
			return strings.Join(lines[:i], "\n"), strings.Join(lines[i:], "\n"), true
		}
	}
	return "", "", false
}

// extract returns the content of the section opened by start, ending at the
// first of the end patterns that appears (scanned in the given priority
// order), or at document end. The section's own header line is not part of
// its content.
func extract(text string, start *regexp.Regexp, ends ...*regexp.Regexp) string {
	_, after, ok := splitAtHeader(text, start)
	if !ok {
		return ""
	}
	content := dropHeaderLine(after)
	for _, end := range ends {
		if before, _, ok := splitAtHeader(content, end); ok {
			content = before
			break
		}
	}
	return strings.TrimSpace(content)
}

func dropHeaderLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return ""
}

func countMarkers(content string) int {
	return strings.Count(content, ImageMarker)
}

func makeSlots(count int, prefix string) []lesson.ImageSlot {
	if count == 0 {
		return nil
	}
	slots := make([]lesson.ImageSlot, count)
	for i := range slots {
		slots[i] = lesson.ImageSlot{ID: prefix + "_img_" + strconv.Itoa(i+1)}
	}
	return slots
}

// challengeImageMappings walks the challenge section line by line. Any ##
// header that is not itself a major section starts the next individual
// challenge (0-based). Every placeholder inside a challenge is recorded with
// a globally incrementing challenge_img_<n> id; a placeholder before the
// first sub-header has no challenge to attach to and is dropped.
func challengeImageMappings(content string) []lesson.ChallengeImage {
	var mappings []lesson.ChallengeImage

	currentChallenge := -1
	imageCounter := 0

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if challengeRe.MatchString(trimmed) {
			continue
		}

		if subHeaderRe.MatchString(trimmed) && !isMajorHeader(trimmed) {
			currentChallenge++
		}

		if trimmed == ImageMarker && currentChallenge >= 0 {
			imageCounter++
			mappings = append(mappings, lesson.ChallengeImage{
				ChallengeIndex: currentChallenge,
				Slot:           lesson.ImageSlot{ID: "challenge_img_" + strconv.Itoa(imageCounter)},
			})
		}
	}
	return mappings
}

func isMajorHeader(line string) bool {
	for _, re := range majorHeaders {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// BindImages fills the parsed slots with extracted image payloads, consumed
// strictly in document order: preface first, then addYourCode, then
// challenge. Fewer images than slots leaves the trailing slots unbound;
// excess images are silently unused.
func (p *Parsed) BindImages(images []string) {
	next := 0
	bind := func(slots []lesson.ImageSlot) {
		for i := range slots {
			if next >= len(images) {
				return
			}
			slots[i].Base64 = images[next]
			next++
		}
	}
	bind(p.Preface.ImageSlots)
	bind(p.AddYourCode.ImageSlots)
	bind(p.Challenge.ImageSlots)

	// Challenge mappings share ids with the flat slot list; mirror the
	// bound payloads into them.
	for i := range p.ChallengeImages {
		if i < len(p.Challenge.ImageSlots) {
			p.ChallengeImages[i].Slot = p.Challenge.ImageSlots[i]
		}
	}
}
