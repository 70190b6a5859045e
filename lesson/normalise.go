package lesson

import (
	"regexp"

	"github.com/digimakers/lessonpipe/textnorm"
)

// Normalise applies field-level cleanup uniformly across the lesson: markup
// residue stripped from every prose field, code blocks reflowed, and a
// project explainer that restates the description collapsed to its first
// sentence (or dropped).
func Normalise(l *Lesson) {
	l.Topic = textnorm.NormaliseText(l.Topic)
	l.Project = textnorm.NormaliseText(l.Project)
	l.Description = textnorm.NormaliseText(l.Description)
	l.ProjectExplainer = textnorm.NormaliseText(l.ProjectExplainer)
	l.ProjectExplainer = textnorm.CollapseExplainer(l.Description, l.ProjectExplainer)

	switch l.Type {
	case TypeDebug:
		for i := range l.Debug.Issues {
			l.Debug.Issues[i].Issue = textnorm.NormaliseText(l.Debug.Issues[i].Issue)
		}
	case TypeScratch:
		normaliseExtras(&l.Scratch.Extras)
		for i := range l.Scratch.AddYourCode {
			l.Scratch.AddYourCode[i].Step = textnorm.NormaliseText(l.Scratch.AddYourCode[i].Step)
		}
	case TypeText:
		normaliseExtras(&l.Text.Extras)
		for i := range l.Text.AddYourCode {
			g := &l.Text.AddYourCode[i]
			for j := range g.Steps {
				g.Steps[j] = textnorm.NormaliseText(g.Steps[j])
			}
			g.CodeBlock = textnorm.NormaliseCodeBlock(g.CodeBlock)
		}
	}
}

func normaliseExtras(e *Extras) {
	for i := range e.GetReadySection {
		e.GetReadySection[i] = textnorm.NormaliseText(e.GetReadySection[i])
	}
	for i := range e.TryItOutSection {
		e.TryItOutSection[i] = textnorm.NormaliseText(e.TryItOutSection[i])
	}
	for i := range e.ChallengeSection {
		e.ChallengeSection[i].Name = textnorm.NormaliseText(e.ChallengeSection[i].Name)
		e.ChallengeSection[i].Task = textnorm.NormaliseText(e.ChallengeSection[i].Task)
	}
	e.NewProject.Name = textnorm.NormaliseText(e.NewProject.Name)
	e.NewProject.Task = textnorm.NormaliseText(e.NewProject.Task)
	e.TestYourself = textnorm.NormaliseText(e.TestYourself)
	e.FunFact = textnorm.NormaliseText(e.FunFact)
}

// ApplyFooter injects the rule-derived footer fields. A known footer
// language overrides whatever the LLM guessed; level always comes from the
// footer since the LLM is never asked for it.
func ApplyFooter(l *Lesson, info FooterInfo) {
	if info.Language != LangNone {
		l.ProgrammingLanguage = info.Language
	}
	l.Level = info.Level
}

// MergeImages attaches bound image slots to the lesson, matched positionally
// by index. Preface slots attach as-is. Add-your-code slots attach to
// Scratch steps only (text lessons have no per-step images); steps beyond
// the slot list keep a nil slot. Challenge images attach to the challenge
// their index names, Scratch lessons only. Debugging lessons never carry
// images — callers skip the merge for them.
func MergeImages(l *Lesson, preface, addYourCode []ImageSlot, challenge []ChallengeImage) {
	if l.Type == TypeDebug {
		return
	}

	extras := l.extras()
	if len(preface) > 0 {
		extras.PrefaceImageSlots = preface
	}

	if l.Type != TypeScratch {
		return
	}
	for i := range l.Scratch.AddYourCode {
		if i < len(addYourCode) {
			slot := addYourCode[i]
			l.Scratch.AddYourCode[i].Slot = &slot
		}
	}
	for _, ci := range challenge {
		if ci.ChallengeIndex < len(extras.ChallengeSection) {
			slot := ci.Slot
			extras.ChallengeSection[ci.ChallengeIndex].Slot = &slot
		}
	}
}

func (l *Lesson) extras() *Extras {
	switch l.Type {
	case TypeScratch:
		return &l.Scratch.Extras
	case TypeText:
		return &l.Text.Extras
	}
	return nil
}

var linkRe = regexp.MustCompile(`https?://[^\s)>\]"']+`)

// EnrichDebugLinks fills missing linkToCode fields of a debugging lesson
// from URLs found in the cleaned document text, matched in document order.
// Issues that already carry a link are left alone and consume no URL.
func EnrichDebugLinks(l *Lesson, cleanedText string) {
	if l.Type != TypeDebug {
		return
	}
	links := linkRe.FindAllString(cleanedText, -1)
	next := 0
	for i := range l.Debug.Issues {
		if l.Debug.Issues[i].LinkToCode != "" {
			continue
		}
		if next < len(links) {
			l.Debug.Issues[i].LinkToCode = links[next]
			next++
		}
	}
}
