package pipeline

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/digimakers/lessonpipe/lesson"
	"github.com/digimakers/lessonpipe/llm"
)

// --- fixtures ---

const fixtureDocXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
  xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
  xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Crossy Road</w:t></w:r></w:p>
<w:p><w:r><w:drawing><a:blip r:embed="rId1"/></w:drawing></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>Get Ready</w:t></w:r></w:p>
<w:p><w:r><w:t>Open Scratch.</w:t></w:r></w:p>
<w:p><w:r><w:drawing><a:blip r:embed="rId2"/></w:drawing></w:r></w:p>
<w:p><w:r><w:drawing><a:blip r:embed="rId3"/></w:drawing></w:r></w:p>
</w:body>
</w:document>`

const fixtureRelsXML = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Target="media/image1.png"/>
<Relationship Id="rId2" Target="media/image2.png"/>
<Relationship Id="rId3" Target="media/image3.png"/>
</Relationships>`

func footerXML(text string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<w:ftr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:p><w:r><w:t>` + text + `</w:t></w:r></w:p>
</w:ftr>`
}

func writeFixtureDocx(t *testing.T, footer string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lesson.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	files := map[string][]byte{
		"word/document.xml":            []byte(fixtureDocXML),
		"word/_rels/document.xml.rels": []byte(fixtureRelsXML),
		"word/media/image1.png":        {1},
		"word/media/image2.png":        {2},
		"word/media/image3.png":        {3},
	}
	if footer != "" {
		files["word/footer1.xml"] = []byte(footerXML(footer))
	}
	for name, data := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

const scratchMarkdown = `Crossy Road

<!-- image -->

## Get Ready

Open Scratch.

## Add Your Code

Add a sprite.

<!-- image -->

## Try It Out

Press the green flag.

## Challenge

## Speed it up

<!-- image -->

Make your character move faster.

## Test Yourself

Take the quiz.

## Fun Fact

The first Scratch version shipped in 2007.
`

const scratchExtraction = `{
  "topic": "Loops",
  "project": "Crossy Road",
  "description": "Learn how loops repeat instructions.",
  "projectExplainer": "Build a road-crossing game with a moving character.",
  "getReadySection": ["Open Scratch."],
  "addYourCodeSection": [{"step": "Add a sprite."}],
  "tryItOutSection": ["Press the green flag."],
  "challengeSection": [{"name": "Speed it up", "task": "Make your character move faster."}],
  "newProject": {"name": "Maze Runner", "task": "Build a maze game."},
  "testYourself": "Take the quiz.",
  "funFact": "The first Scratch version shipped in 2007."
}`

// --- fakes ---

type fakeCleaner struct {
	markdown string
	err      error
	calls    int
}

func (c *fakeCleaner) Clean(ctx context.Context, path string) (string, error) {
	c.calls++
	return c.markdown, c.err
}

type fakeGenerator struct {
	structured    string
	structuredErr error
	text          string
	textErr       error

	textCalls       int
	structuredCalls int
	lastPrompt      string
	lastSchema      *jsonschema.Schema
}

func (g *fakeGenerator) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	g.textCalls++
	if g.textErr != nil {
		return "", g.textErr
	}
	if g.text != "" {
		return g.text, nil
	}
	// Identity formatting by default.
	const openTag, closeTag = "<<<DOCUMENT\n", "\nDOCUMENT>>>"
	if i := strings.Index(prompt, openTag); i >= 0 {
		return strings.TrimSuffix(prompt[i+len(openTag):], closeTag), nil
	}
	return prompt, nil
}

func (g *fakeGenerator) GenerateStructured(ctx context.Context, system, prompt string, schema *jsonschema.Schema) (json.RawMessage, error) {
	g.structuredCalls++
	g.lastPrompt = prompt
	g.lastSchema = schema
	if g.structuredErr != nil {
		return nil, g.structuredErr
	}
	return json.RawMessage(g.structured), nil
}

// --- tests ---

func TestConvertScratchEndToEnd(t *testing.T) {
	path := writeFixtureDocx(t, "Level: Scratch-1")
	cl := &fakeCleaner{markdown: scratchMarkdown}
	gen := &fakeGenerator{structured: scratchExtraction}

	c := New(cl, gen, Config{})
	l, err := c.Convert(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	if l.Type != lesson.TypeScratch {
		t.Fatalf("type = %q", l.Type)
	}
	if l.ProgrammingLanguage != lesson.LangScratch || l.Level != 1 {
		t.Errorf("language = %q, level = %d", l.ProgrammingLanguage, l.Level)
	}
	if gen.textCalls != 0 {
		t.Error("code formatter must be skipped for scratch lessons")
	}
	if gen.structuredCalls != 1 {
		t.Errorf("structured calls = %d", gen.structuredCalls)
	}

	// Preface image bound from the first extracted image.
	slots := l.Scratch.PrefaceImageSlots
	if len(slots) != 1 || slots[0].ID != "preface_img_1" || slots[0].Base64 == "" {
		t.Fatalf("preface slots = %+v", slots)
	}

	// Step image bound positionally.
	steps := l.Scratch.AddYourCode
	if len(steps) != 1 || steps[0].Slot == nil {
		t.Fatalf("steps = %+v", steps)
	}
	if steps[0].Slot.ID != "addYourCode_img_1" || steps[0].Slot.Base64 == "" {
		t.Errorf("step slot = %+v", steps[0].Slot)
	}

	// Challenge image mapped to the first individual challenge.
	challenges := l.Scratch.ChallengeSection
	if len(challenges) != 1 || challenges[0].Slot == nil {
		t.Fatalf("challenges = %+v", challenges)
	}
	if challenges[0].Slot.ID != "challenge_img_1" || challenges[0].Slot.Base64 == "" {
		t.Errorf("challenge slot = %+v", challenges[0].Slot)
	}
}

func TestConvertCleanerFallback(t *testing.T) {
	path := writeFixtureDocx(t, "Level: Python-2")
	cl := &fakeCleaner{err: errors.New("no binary")}
	gen := &fakeGenerator{structured: `{
		"topic": "Loops",
		"project": "Turtle Race",
		"description": "Loops repeat instructions.",
		"projectExplainer": "Race turtles across the screen using a for loop.",
		"getReadySection": [],
		"addYourCodeSection": [{"steps": ["Create the loop."], "codeBlock": "for i in range(10):\n    print(i)"}],
		"tryItOutSection": [],
		"challengeSection": [],
		"newProject": {"name": "", "task": ""},
		"testYourself": null,
		"funFact": null
	}`}

	c := New(cl, gen, Config{})
	l, err := c.Convert(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	if l.Type != lesson.TypeText {
		t.Fatalf("type = %q", l.Type)
	}
	if l.Level != 2 || l.ProgrammingLanguage != lesson.LangPython {
		t.Errorf("language = %q, level = %d", l.ProgrammingLanguage, l.Level)
	}
	if gen.textCalls != 1 {
		t.Errorf("formatter calls = %d, want 1", gen.textCalls)
	}
	// Raw text, not cleaned markdown, went to the LLM.
	if !strings.Contains(gen.lastPrompt, "Open Scratch.") {
		t.Errorf("prompt missing document text:\n%s", gen.lastPrompt)
	}

	// Degraded positional assignment: first image to a synthetic preface slot.
	slots := l.Text.PrefaceImageSlots
	if len(slots) != 1 || slots[0].ID != "fallback_preface_img_1" {
		t.Fatalf("preface slots = %+v", slots)
	}
}

func TestConvertExtractionFailurePropagates(t *testing.T) {
	path := writeFixtureDocx(t, "Level: Python-1")
	cl := &fakeCleaner{markdown: scratchMarkdown}
	gen := &fakeGenerator{structuredErr: &llm.ValidationError{
		Attempts: 5,
		Issues:   []string{"missing topic"},
		Raw:      json.RawMessage(`{"broken": true}`),
	}}

	c := New(cl, gen, Config{})
	_, err := c.Convert(context.Background(), path)
	var verr *llm.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestConvertRejectsNonDocx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.docx")
	if err := os.WriteFile(path, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := New(&fakeCleaner{}, &fakeGenerator{}, Config{})
	if _, err := c.Convert(context.Background(), path); err == nil {
		t.Fatal("want error for non-docx input")
	}
}

func TestConvertAll(t *testing.T) {
	good := writeFixtureDocx(t, "Level: Scratch-1")
	bad := filepath.Join(t.TempDir(), "broken.docx")
	if err := os.WriteFile(bad, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	cl := &fakeCleaner{markdown: scratchMarkdown}
	gen := &fakeGenerator{structured: scratchExtraction}
	c := New(cl, gen, Config{Concurrency: 2})

	outcomes := c.ConvertAll(context.Background(), []File{
		{Path: good, Name: "good"},
		{Path: bad, Name: "broken"},
	})
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d", len(outcomes))
	}
	if outcomes[0].Err != nil || outcomes[0].Lesson == nil {
		t.Errorf("outcome 0 = %+v", outcomes[0])
	}
	if outcomes[1].Err == nil {
		t.Error("outcome 1 should carry the failure")
	}
}

func TestFindDocxFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.docx", "~$a.docx", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.docx"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	flat, err := FindDocxFiles(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(flat) != 1 || flat[0].Name != "a" {
		t.Errorf("flat = %+v", flat)
	}

	deep, err := FindDocxFiles(dir, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(deep) != 2 {
		t.Errorf("deep = %+v", deep)
	}

	if _, err := FindDocxFiles(filepath.Join(dir, "notes.txt"), false); err == nil {
		t.Error("want error for non-docx file target")
	}
}
