// Package lesson defines the structured representation of one educational
// lesson document, the controlled vocabulary around it, and the
// post-processing that turns raw LLM extraction output into a validated
// Lesson value.
package lesson

import "encoding/json"

// Type discriminates the three mutually exclusive lesson shapes.
type Type string

const (
	// TypeText is a text-based programming lesson: code is written as
	// free-text blocks with step groups above each block.
	TypeText Type = "text-based (programming) lesson"
	// TypeScratch is a block-based Scratch lesson: steps are individual
	// instructions, each optionally illustrated with an image.
	TypeScratch Type = "block-based (scratch) lesson"
	// TypeDebug is a debugging lesson: students fix broken starter projects.
	TypeDebug Type = "debugging lesson"
)

// ImageSlot is a named placeholder for an image. The section parser creates
// slots with only an ID; the image binder later fills Base64 with a data URI.
// Slots without a bound image keep an empty Base64 — that is expected, not
// an error.
type ImageSlot struct {
	ID     string `json:"id"`
	Base64 string `json:"base64,omitempty"`
}

// ChallengeImage maps one bound image to an individual challenge within the
// challenge section, identified by its 0-based order of appearance.
type ChallengeImage struct {
	ChallengeIndex int       `json:"challengeIndex"`
	Slot           ImageSlot `json:"imageSlot"`
}

// Challenge is one extension task at the end of a lesson. Slot is only set
// for Scratch lessons.
type Challenge struct {
	Name string     `json:"name"`
	Task string     `json:"task"`
	Slot *ImageSlot `json:"imageSlot,omitempty"`
}

// NewProject is the suggested follow-up project.
type NewProject struct {
	Name string `json:"name"`
	Task string `json:"task"`
}

// DebugIssue is one broken project in a debugging lesson.
type DebugIssue struct {
	LinkToCode string `json:"linkToCode"`
	Issue      string `json:"issue"`
}

// ScratchStep is one add-your-code instruction in a Scratch lesson.
type ScratchStep struct {
	Step string     `json:"step"`
	Slot *ImageSlot `json:"imageSlot"`
}

// CodeGroup is one group of steps plus the code block they describe, in a
// text-based lesson. An empty CodeBlock means the group has none.
type CodeGroup struct {
	Steps     []string `json:"steps"`
	CodeBlock string   `json:"codeBlock"`
}

// Core holds the fields every lesson variant carries.
type Core struct {
	Topic               string   `json:"topic"`
	Project             string   `json:"project"`
	Description         string   `json:"description"`
	ProjectExplainer    string   `json:"projectExplainer"`
	ProgrammingLanguage Language `json:"programmingLanguage"`
	Level               int      `json:"level"`
}

// Extras holds the sections shared by text and Scratch lessons. Debugging
// lessons do not have them at all.
type Extras struct {
	PrefaceImageSlots []ImageSlot `json:"prefaceImageSlots,omitempty"`
	GetReadySection   []string    `json:"getReadySection"`
	TryItOutSection   []string    `json:"tryItOutSection"`
	ChallengeSection  []Challenge `json:"challengeSection"`
	NewProject        NewProject  `json:"newProject"`
	TestYourself      string      `json:"testYourself"`
	FunFact           string      `json:"funFact"`
}

// TextBody is the variant body of a text-based lesson.
type TextBody struct {
	Extras
	AddYourCode []CodeGroup `json:"addYourCodeSection"`
}

// ScratchBody is the variant body of a Scratch lesson.
type ScratchBody struct {
	Extras
	AddYourCode []ScratchStep `json:"addYourCodeSection"`
}

// DebugBody is the variant body of a debugging lesson.
type DebugBody struct {
	Issues []DebugIssue `json:"debugSection"`
}

// Lesson is the final structured representation of one lesson document,
// tagged by Type. Exactly one of Text, Scratch, Debug is non-nil, matching
// the tag; fields outside the active variant are never populated.
type Lesson struct {
	Type Type `json:"lessonType"`
	Core
	Text    *TextBody    `json:"-"`
	Scratch *ScratchBody `json:"-"`
	Debug   *DebugBody   `json:"-"`
}

// MarshalJSON flattens the active variant body next to the common fields,
// producing the wire shape the renderer consumes.
func (l *Lesson) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"lessonType":          l.Type,
		"topic":               l.Topic,
		"project":             l.Project,
		"description":         l.Description,
		"projectExplainer":    l.ProjectExplainer,
		"programmingLanguage": l.ProgrammingLanguage,
		"level":               l.Level,
	}
	merge := func(v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return err
		}
		for k, val := range fields {
			out[k] = val
		}
		return nil
	}
	var err error
	switch l.Type {
	case TypeText:
		err = merge(l.Text)
	case TypeScratch:
		err = merge(l.Scratch)
	case TypeDebug:
		err = merge(l.Debug)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}
