package lesson

import (
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
)

// WireSchema builds the structured-output schema requested from the LLM for
// one extraction call. The wire schema is deliberately smaller than the
// domain model: fields the rule-based stages supply on their own (image
// slots, level, and the language when the footer already declared it) are
// omitted so the LLM is never asked to guess something already known.
//
// Selection:
//   - footer says scratch → the Scratch variant only
//   - footer says any other language → standard or debugging variant
//   - footer silent → all three variants, language included, so the LLM
//     determines both implicitly through field shape
func WireSchema(footerLang Language) *jsonschema.Schema {
	switch {
	case footerLang == LangScratch:
		return scratchSchema(false)
	case footerLang != LangNone:
		return anyOf(standardSchema(false), debugSchema(false))
	default:
		return anyOf(standardSchema(true), scratchSchema(true), debugSchema(true))
	}
}

func anyOf(variants ...*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{AnyOf: variants}
}

func str(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func nullableStr(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Types: []string{"string", "null"}, Description: desc}
}

func strArray(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "array",
		Description: desc,
		Items:       &jsonschema.Schema{Type: "string"},
	}
}

// coreProperties are the prose fields every variant shares.
func coreProperties(withLanguage bool) map[string]*jsonschema.Schema {
	props := map[string]*jsonschema.Schema{
		"topic":            str(`The main topic of the lesson, e.g. "Decisions", "Loops", "Variables"`),
		"project":          str(`The name of the project being built, e.g. "Crossy Road"`),
		"description":      str("A brief description of the programming concept being taught"),
		"projectExplainer": str("Explanation of what will be built in this lesson"),
	}
	if withLanguage {
		langs := []any{
			string(LangScratch), string(LangSmallBasic), string(LangWeb),
			string(LangPython), string(LangJava), string(LangC),
			string(LangPygame), string(LangRuby), string(LangLua),
		}
		props["programmingLanguage"] = &jsonschema.Schema{
			Type:        "string",
			Enum:        langs,
			Description: "The programming language this lesson teaches",
		}
	}
	return props
}

// sharedProperties are the section fields of the non-debugging variants.
func sharedProperties() map[string]*jsonschema.Schema {
	return map[string]*jsonschema.Schema{
		"getReadySection": strArray("Setup steps to prepare for the project (sprites, backdrops, new files)"),
		"tryItOutSection": strArray("Steps to test the project after coding"),
		"challengeSection": {
			Type:        "array",
			Description: "Challenge tasks for students to extend the project",
			Items: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"name": str(`The name of the challenge, excluding any "- New Project" text`),
					"task": str("The challenge task, as a requirement or feature to add"),
				},
				Required: []string{"name", "task"},
			},
		},
		"newProject": {
			Type:        "object",
			Description: "Suggested follow-up project",
			Properties: map[string]*jsonschema.Schema{
				"name": str(`The new project name, usually next to "New Project" in a header`),
				"task": str("The task for the new project"),
			},
			Required: []string{"name", "task"},
		},
		"testYourself": nullableStr(`Link to the quiz, found under the "Test Yourself" header`),
		"funFact":      nullableStr("An interesting fact related to the lesson topic"),
	}
}

func variant(props map[string]*jsonschema.Schema, required []string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

// standardSchema is the text-based variant: addYourCodeSection is a list of
// step groups, each with the code block the steps describe.
func standardSchema(withLanguage bool) *jsonschema.Schema {
	props := coreProperties(withLanguage)
	for k, v := range sharedProperties() {
		props[k] = v
	}
	props["addYourCodeSection"] = &jsonschema.Schema{
		Type:        "array",
		Description: "Groups of instructions, each with the code block students write",
		Items: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"steps":     strArray("The steps listed above this code block"),
				"codeBlock": nullableStr("The code block students have to write"),
			},
			Required: []string{"steps", "codeBlock"},
		},
	}
	return variant(props, requiredFor(props))
}

// scratchSchema is the block-based variant: addYourCodeSection is a flat
// list of single steps.
func scratchSchema(withLanguage bool) *jsonschema.Schema {
	props := coreProperties(withLanguage)
	for k, v := range sharedProperties() {
		props[k] = v
	}
	props["addYourCodeSection"] = &jsonschema.Schema{
		Type:        "array",
		Description: "Step-by-step coding instructions, one entry per step",
		Items: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"step": str("The instruction text for this step"),
			},
			Required: []string{"step"},
		},
	}
	return variant(props, requiredFor(props))
}

// debugSchema is the debugging variant: a debugSection replaces the coding,
// challenge, and quiz fields entirely.
func debugSchema(withLanguage bool) *jsonschema.Schema {
	props := coreProperties(withLanguage)
	props["debugSection"] = &jsonschema.Schema{
		Type:        "array",
		Description: "One entry per broken starter project",
		Items: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"linkToCode": str("URL of the starter project to fix"),
				"issue":      str("What is broken and needs fixing"),
			},
			Required: []string{"linkToCode", "issue"},
		},
	}
	return variant(props, requiredFor(props))
}

func requiredFor(props map[string]*jsonschema.Schema) []string {
	required := make([]string, 0, len(props))
	for name := range props {
		required = append(required, name)
	}
	sort.Strings(required)
	return required
}
