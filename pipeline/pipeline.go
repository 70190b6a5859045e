// Package pipeline converts lesson documents into validated Lesson data.
//
// One conversion fans out image extraction, footer extraction and document
// cleaning over the same input file, joins the results, then runs section
// parsing, image binding, code formatting, structured LLM extraction and
// post-processing in sequence.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/digimakers/lessonpipe/docx"
	"github.com/digimakers/lessonpipe/lesson"
	"github.com/digimakers/lessonpipe/llm"
	"github.com/digimakers/lessonpipe/sections"

	"github.com/google/jsonschema-go/jsonschema"
)

// Cleaner produces the cleaned Markdown rendition of a document.
type Cleaner interface {
	Clean(ctx context.Context, path string) (string, error)
}

// Generator is the LLM surface the pipeline needs.
type Generator interface {
	GenerateText(ctx context.Context, system, prompt string) (string, error)
	GenerateStructured(ctx context.Context, system, prompt string, schema *jsonschema.Schema) (json.RawMessage, error)
}

// Config configures a Converter.
type Config struct {
	// Concurrency bounds ConvertAll fan-out (default: 4).
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Converter runs document conversions.
type Converter struct {
	cleaner Cleaner
	gen     Generator
	cfg     Config
	logger  *slog.Logger
}

// New creates a Converter.
func New(cl Cleaner, gen Generator, cfg Config) *Converter {
	cfg.defaults()
	return &Converter{
		cleaner: cl,
		gen:     gen,
		cfg:     cfg,
		logger:  cfg.Logger,
	}
}

// Outcome is the result of converting one document.
type Outcome struct {
	Path    string
	Lesson  *lesson.Lesson
	Err     error
	Elapsed time.Duration
}

// Convert runs the full extraction pipeline for one document.
func (c *Converter) Convert(ctx context.Context, path string) (*lesson.Lesson, error) {
	if err := docx.Validate(path); err != nil {
		return nil, err
	}
	c.logger.Info("parsing document", "path", path)

	var (
		images  []string
		footer  lesson.FooterInfo
		cleaned string
	)

	// Images, footer and cleaning read the same immutable file and have no
	// ordering dependency.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		images, err = docx.Images(path)
		if err != nil {
			return fmt.Errorf("extract images: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Footer extraction never fails a conversion.
		text, err := docx.FooterText(path)
		if err != nil {
			c.logger.Warn("footer extraction failed", "path", path, "error", err)
			footer = lesson.DefaultFooterInfo()
			return nil
		}
		footer = lesson.ParseFooter(text, c.logger)
		return nil
	})
	g.Go(func() error {
		md, err := c.cleaner.Clean(gctx, path)
		if err != nil {
			c.logger.Warn("document cleaner failed, falling back to raw text",
				"path", path, "error", err)
			return nil
		}
		cleaned = md
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		parsed *sections.Parsed
		text   string
	)
	if cleaned != "" {
		parsed = sections.Parse(cleaned)
		parsed.BindImages(images)
		text = cleaned
		c.logger.Debug("sections parsed",
			"prefaceSlots", len(parsed.Preface.ImageSlots),
			"addYourCodeSlots", len(parsed.AddYourCode.ImageSlots),
			"challengeSlots", len(parsed.Challenge.ImageSlots),
			"images", len(images))
	} else {
		// The in-process markdown rendition keeps heading structure; plain
		// paragraph text is the last resort.
		md, err := docx.Markdown(path)
		if err != nil {
			c.logger.Warn("markdown fallback failed", "path", path, "error", err)
			md, err = docx.RawText(path)
			if err != nil {
				return nil, fmt.Errorf("raw text fallback: %w", err)
			}
		}
		text = md
	}

	text, err := c.formatCode(ctx, text, footer.Language)
	if err != nil {
		return nil, err
	}

	l, err := c.extract(ctx, path, text, footer)
	if err != nil {
		return nil, err
	}

	c.mergeImages(l, parsed, images)

	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.logger.Info("lesson extracted",
		"path", path, "type", l.Type, "topic", l.Core.Topic, "project", l.Core.Project)
	return l, nil
}

// formatCode runs the code-formatting pass over the cleaned text. Scratch
// lessons carry no text code blocks and skip it.
func (c *Converter) formatCode(ctx context.Context, text string, lang lesson.Language) (string, error) {
	if lang == lesson.LangScratch {
		c.logger.Debug("skipping code formatting for scratch lesson")
		return text, nil
	}
	formatted, err := c.gen.GenerateText(ctx, formatterSystemPrompt, buildFormatterPrompt(text))
	if err != nil {
		return "", fmt.Errorf("format code blocks: %w", err)
	}
	return formatted, nil
}

// extract issues the structured LLM call and post-processes its output into
// a typed lesson.
func (c *Converter) extract(ctx context.Context, path, text string, footer lesson.FooterInfo) (*lesson.Lesson, error) {
	schema := lesson.WireSchema(footer.Language)

	rawJSON, err := c.gen.GenerateStructured(ctx, extractorSystemPrompt, buildExtractorPrompt(text), schema)
	if err != nil {
		var verr *llm.ValidationError
		if errors.As(err, &verr) {
			c.logger.Error("extraction output failed validation",
				"path", path, "issues", verr.Issues, "value", string(verr.Raw))
		}
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}

	raw, err := lesson.DecodeRaw(rawJSON)
	if err != nil {
		return nil, fmt.Errorf("decode extraction for %s: %w", path, err)
	}

	typ := lesson.InferType(text, footer.Language, raw)
	c.logger.Info("inferred lesson type", "path", path, "type", typ)

	l := lesson.Build(typ, raw)
	lesson.Normalise(l)
	lesson.ApplyFooter(l, footer)
	lesson.EnrichDebugLinks(l, text)
	return l, nil
}

// mergeImages attaches extracted images to the lesson, preferring the
// placeholder-based slots from section parsing. Without parsed sections the
// degraded positional assignment is used: first image to the preface, the
// rest to steps in order.
func (c *Converter) mergeImages(l *lesson.Lesson, parsed *sections.Parsed, images []string) {
	if parsed != nil {
		lesson.MergeImages(l, parsed.Preface.ImageSlots, parsed.AddYourCode.ImageSlots, parsed.ChallengeImages)
		return
	}
	if len(images) == 0 {
		return
	}
	c.logger.Warn("no parsed sections, falling back to positional image assignment")

	preface := []lesson.ImageSlot{{ID: "fallback_preface_img_1", Base64: images[0]}}
	var steps []lesson.ImageSlot
	for i, img := range images[1:] {
		steps = append(steps, lesson.ImageSlot{ID: "fallback_img_" + strconv.Itoa(i+1), Base64: img})
	}
	lesson.MergeImages(l, preface, steps, nil)
}

// ConvertAll converts documents with bounded concurrency. Every document
// gets an Outcome; a failed conversion never stops the batch.
func (c *Converter) ConvertAll(ctx context.Context, files []File) []Outcome {
	outcomes := make([]Outcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, f := range files {
		g.Go(func() error {
			start := time.Now()
			l, err := c.Convert(gctx, f.Path)
			outcomes[i] = Outcome{
				Path:    f.Path,
				Lesson:  l,
				Err:     err,
				Elapsed: time.Since(start),
			}
			if err != nil {
				c.logger.Error("conversion failed", "path", f.Path, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait() // workers only record outcomes
	return outcomes
}
