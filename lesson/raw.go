package lesson

import (
	"encoding/json"
	"fmt"
)

// Raw is the loosely-shaped lesson object as returned by the LLM, before
// classification and normalisation. addYourCodeSection and debugSection keep
// their raw JSON because their shape depends on the lesson type the LLM
// chose, which is only pinned down afterwards.
type Raw struct {
	Topic               string          `json:"topic"`
	Project             string          `json:"project"`
	Description         string          `json:"description"`
	ProjectExplainer    string          `json:"projectExplainer"`
	ProgrammingLanguage string          `json:"programmingLanguage"`
	GetReadySection     []string        `json:"getReadySection"`
	AddYourCodeSection  json.RawMessage `json:"addYourCodeSection"`
	TryItOutSection     []string        `json:"tryItOutSection"`
	ChallengeSection    []Challenge     `json:"challengeSection"`
	NewProject          NewProject      `json:"newProject"`
	TestYourself        string          `json:"testYourself"`
	FunFact             string          `json:"funFact"`
	DebugSection        json.RawMessage `json:"debugSection"`
}

// DecodeRaw parses validated LLM output bytes into a Raw value.
func DecodeRaw(data []byte) (*Raw, error) {
	var r Raw
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode llm output: %w", err)
	}
	return &r, nil
}

// HasDebugSection reports whether the LLM emitted a debugSection key with a
// non-null value.
func (r *Raw) HasDebugSection() bool {
	return len(r.DebugSection) > 0 && string(r.DebugSection) != "null"
}

// DebugIssues decodes the debugSection. Absent or null yields nil.
func (r *Raw) DebugIssues() []DebugIssue {
	if !r.HasDebugSection() {
		return nil
	}
	var issues []DebugIssue
	if err := json.Unmarshal(r.DebugSection, &issues); err != nil {
		return nil
	}
	return issues
}

// addYourCodeShape distinguishes the two shapes the LLM may produce for
// addYourCodeSection.
type addYourCodeShape int

const (
	shapeEmpty   addYourCodeShape = iota
	shapeSteps                    // array of {step} objects — Scratch shape
	shapeGroups                   // array (or single object) of {steps, codeBlock} — text shape
)

// addYourCodeShape probes the raw section without fully decoding it.
// The first element having a singular "step" key marks the Scratch shape.
func (r *Raw) addYourCodeShape() addYourCodeShape {
	raw := r.AddYourCodeSection
	if len(raw) == 0 || string(raw) == "null" {
		return shapeEmpty
	}
	// The original schema also allowed a single {steps, codeBlock} object.
	if raw[0] == '{' {
		return shapeGroups
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil || len(elems) == 0 {
		return shapeEmpty
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(elems[0], &probe); err != nil {
		return shapeEmpty
	}
	if _, ok := probe["step"]; ok {
		return shapeSteps
	}
	return shapeGroups
}

// ScratchSteps decodes addYourCodeSection as Scratch steps. When the LLM
// mistakenly grouped the output in the text-based {steps, codeBlock} shape,
// all step lists are flattened into one ordered sequence and the stray code
// blocks are discarded — Scratch lessons carry no free-text code.
func (r *Raw) ScratchSteps() []ScratchStep {
	switch r.addYourCodeShape() {
	case shapeEmpty:
		return nil
	case shapeSteps:
		var steps []ScratchStep
		if err := json.Unmarshal(r.AddYourCodeSection, &steps); err != nil {
			return nil
		}
		for i := range steps {
			steps[i].Slot = nil
		}
		return steps
	default:
		var flat []ScratchStep
		for _, g := range r.CodeGroups() {
			for _, s := range g.Steps {
				flat = append(flat, ScratchStep{Step: s})
			}
		}
		return flat
	}
}

// CodeGroups decodes addYourCodeSection as text-based code groups. A single
// {steps, codeBlock} object becomes a one-element list; the Scratch {step}
// shape collapses into a single group of steps without code.
func (r *Raw) CodeGroups() []CodeGroup {
	raw := r.AddYourCodeSection
	switch r.addYourCodeShape() {
	case shapeEmpty:
		return nil
	case shapeSteps:
		var steps []ScratchStep
		if err := json.Unmarshal(raw, &steps); err != nil {
			return nil
		}
		group := CodeGroup{}
		for _, s := range steps {
			group.Steps = append(group.Steps, s.Step)
		}
		return []CodeGroup{group}
	default:
		if raw[0] == '{' {
			var g codeGroupWire
			if err := json.Unmarshal(raw, &g); err != nil {
				return nil
			}
			return []CodeGroup{g.toGroup()}
		}
		var wires []codeGroupWire
		if err := json.Unmarshal(raw, &wires); err != nil {
			return nil
		}
		groups := make([]CodeGroup, 0, len(wires))
		for _, w := range wires {
			groups = append(groups, w.toGroup())
		}
		return groups
	}
}

// codeGroupWire tolerates a null codeBlock on the wire.
type codeGroupWire struct {
	Steps     []string `json:"steps"`
	CodeBlock *string  `json:"codeBlock"`
}

func (w codeGroupWire) toGroup() CodeGroup {
	g := CodeGroup{Steps: w.Steps}
	if w.CodeBlock != nil {
		g.CodeBlock = *w.CodeBlock
	}
	return g
}
