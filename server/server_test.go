package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/digimakers/lessonpipe/lesson"
	"github.com/digimakers/lessonpipe/pipeline"
	"github.com/digimakers/lessonpipe/render"
	"github.com/digimakers/lessonpipe/store"
)

// --- fixtures ---

const fixtureDocXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
  xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
  xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Crossy Road</w:t></w:r></w:p>
<w:p><w:r><w:drawing><a:blip r:embed="rId1"/></w:drawing></w:r></w:p>
</w:body>
</w:document>`

const fixtureRelsXML = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Target="media/image1.png"/>
</Relationships>`

const fixtureFooterXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:ftr xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:p><w:r><w:t>Level: Scratch-1</w:t></w:r></w:p>
</w:ftr>`

func fixtureDocxBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	files := map[string][]byte{
		"word/document.xml":            []byte(fixtureDocXML),
		"word/_rels/document.xml.rels": []byte(fixtureRelsXML),
		"word/media/image1.png":        {1},
		"word/footer1.xml":             []byte(fixtureFooterXML),
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
	return buf.Bytes()
}

const fixtureMarkdown = `Crossy Road

<!-- image -->

## Get Ready

Open Scratch.

## Add Your Code

Add a sprite.

## Try It Out

Press the green flag.
`

const fixtureExtraction = `{
  "topic": "Loops",
  "project": "Crossy Road",
  "description": "Learn how loops repeat instructions.",
  "projectExplainer": "Build a road-crossing game with a moving character.",
  "getReadySection": ["Open Scratch."],
  "addYourCodeSection": [{"step": "Add a sprite."}],
  "tryItOutSection": ["Press the green flag."],
  "challengeSection": [],
  "newProject": {"name": "", "task": ""},
  "testYourself": null,
  "funFact": null
}`

// --- fakes ---

type fakeCleaner struct{ markdown string }

func (c *fakeCleaner) Clean(ctx context.Context, path string) (string, error) {
	return c.markdown, nil
}

type fakeGenerator struct{ structured string }

func (g *fakeGenerator) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	return prompt, nil
}

func (g *fakeGenerator) GenerateStructured(ctx context.Context, system, prompt string, schema *jsonschema.Schema) (json.RawMessage, error) {
	return json.RawMessage(g.structured), nil
}

type fakeRenderer struct {
	pdf  []byte
	err  error
	last *lesson.Lesson
}

func (r *fakeRenderer) Render(ctx context.Context, l *lesson.Lesson) ([]byte, error) {
	r.last = l
	return r.pdf, r.err
}

func newTestServer(t *testing.T, renderer *fakeRenderer, log *store.Store) *Server {
	t.Helper()
	conv := pipeline.New(
		&fakeCleaner{markdown: fixtureMarkdown},
		&fakeGenerator{structured: fixtureExtraction},
		pipeline.Config{},
	)
	var r render.Renderer
	if renderer != nil {
		r = renderer
	}
	return New(conv, r, log, Config{})
}

func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := w.CreateFormFile("files", name)
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
	return &buf, w.FormDataContentType()
}

func postConvert(t *testing.T, h http.Handler, url string, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, files)
	req := httptest.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// --- tests ---

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestConvertUpload(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "log.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	s := newTestServer(t, nil, st)
	r := s.Router()

	rec := postConvert(t, r, "/convert", map[string][]byte{
		"crossy-road.docx": fixtureDocxBytes(t),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var results []fileResult
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].Status != store.StatusOK || results[0].Lesson == nil {
		t.Fatalf("result = %+v", results[0])
	}
	if results[0].Lesson.Type != lesson.TypeScratch {
		t.Errorf("type = %q", results[0].Lesson.Type)
	}

	// The conversion was recorded.
	hist, err := st.History(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].Status != store.StatusOK {
		t.Fatalf("history = %+v", hist)
	}
	if hist[0].SourceName != "crossy-road" {
		t.Errorf("source name = %q", hist[0].SourceName)
	}

	// And /conversions serves it back.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "crossy-road") {
		t.Errorf("history body missing record: %s", rec.Body)
	}
}

func TestConvertMixedBatch(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := postConvert(t, s.Router(), "/convert", map[string][]byte{
		"good.docx": fixtureDocxBytes(t),
		"notes.txt": []byte("plain text"),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var results []fileResult
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	byName := map[string]fileResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	if byName["good.docx"].Status != store.StatusOK {
		t.Errorf("good.docx = %+v", byName["good.docx"])
	}
	if byName["notes.txt"].Status != store.StatusFailed || byName["notes.txt"].Error == "" {
		t.Errorf("notes.txt = %+v", byName["notes.txt"])
	}
}

func TestConvertNoFiles(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := postConvert(t, s.Router(), "/convert", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestConvertPDF(t *testing.T) {
	renderer := &fakeRenderer{pdf: []byte("%PDF-1.7 fake")}
	s := newTestServer(t, renderer, nil)

	rec := postConvert(t, s.Router(), "/convert?format=pdf", map[string][]byte{
		"crossy-road.docx": fixtureDocxBytes(t),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), renderer.pdf) {
		t.Error("pdf bytes not passed through")
	}
	if renderer.last == nil || renderer.last.Type != lesson.TypeScratch {
		t.Errorf("renderer got %+v", renderer.last)
	}
}

func TestConvertPDFWithoutRenderer(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := postConvert(t, s.Router(), "/convert?format=pdf", map[string][]byte{
		"crossy-road.docx": fixtureDocxBytes(t),
	})
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHistoryWithoutStore(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversions", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rec.Code)
	}
}
