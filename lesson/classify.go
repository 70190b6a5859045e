package lesson

import "regexp"

// A top-level Debug header anywhere in the cleaned text marks a debugging
// lesson regardless of any other signal.
var debugHeaderRe = regexp.MustCompile(`(?im)^(?:#+\s*)?Debug\b`)

// InferType classifies raw LLM output into one of the three lesson types.
// Precedence is fixed: the debug check wins over the scratch check, which
// wins over the text-based default. A document with a "## Debug" header and
// a scratch footer is still a debugging lesson.
func InferType(cleanedText string, footerLang Language, raw *Raw) Type {
	if debugHeaderRe.MatchString(cleanedText) || raw.HasDebugSection() {
		return TypeDebug
	}
	if footerLang == LangScratch || raw.addYourCodeShape() == shapeSteps {
		return TypeScratch
	}
	return TypeText
}

// Build assembles a Lesson of the given type from raw LLM output, reshaping
// the type-dependent sections into the variant's shape.
func Build(typ Type, raw *Raw) *Lesson {
	l := &Lesson{
		Type: typ,
		Core: Core{
			Topic:               raw.Topic,
			Project:             raw.Project,
			Description:         raw.Description,
			ProjectExplainer:    raw.ProjectExplainer,
			ProgrammingLanguage: LangNone,
			Level:               1,
		},
	}
	if lang := Language(raw.ProgrammingLanguage); lang.Known() {
		l.ProgrammingLanguage = lang
	}

	extras := Extras{
		GetReadySection:  raw.GetReadySection,
		TryItOutSection:  raw.TryItOutSection,
		ChallengeSection: raw.ChallengeSection,
		NewProject:       raw.NewProject,
		TestYourself:     raw.TestYourself,
		FunFact:          raw.FunFact,
	}

	switch typ {
	case TypeDebug:
		l.Debug = &DebugBody{Issues: raw.DebugIssues()}
	case TypeScratch:
		l.ProgrammingLanguage = LangScratch
		l.Scratch = &ScratchBody{Extras: extras, AddYourCode: raw.ScratchSteps()}
	default:
		l.Text = &TextBody{Extras: extras, AddYourCode: raw.CodeGroups()}
	}
	return l
}
