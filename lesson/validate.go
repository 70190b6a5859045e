package lesson

import (
	"errors"
	"fmt"
)

// ErrInvalidLesson is wrapped by every validation failure.
var ErrInvalidLesson = errors.New("lesson: invalid")

// Validate checks the structural invariants of a finished lesson: the tag
// matches exactly one populated variant body, level is 1 or 2, the language
// is a member of the closed enumeration (scratch never appears on a text
// lesson), image slot IDs are unique, and debugging lessons carry no
// images.
func (l *Lesson) Validate() error {
	bodies := 0
	if l.Text != nil {
		bodies++
	}
	if l.Scratch != nil {
		bodies++
	}
	if l.Debug != nil {
		bodies++
	}
	if bodies != 1 {
		return fmt.Errorf("%w: %d variant bodies populated, want exactly 1", ErrInvalidLesson, bodies)
	}

	switch l.Type {
	case TypeText:
		if l.Text == nil {
			return fmt.Errorf("%w: type %q without matching body", ErrInvalidLesson, l.Type)
		}
	case TypeScratch:
		if l.Scratch == nil {
			return fmt.Errorf("%w: type %q without matching body", ErrInvalidLesson, l.Type)
		}
	case TypeDebug:
		if l.Debug == nil {
			return fmt.Errorf("%w: type %q without matching body", ErrInvalidLesson, l.Type)
		}
	default:
		return fmt.Errorf("%w: unknown lesson type %q", ErrInvalidLesson, l.Type)
	}

	if l.Level != 1 && l.Level != 2 {
		return fmt.Errorf("%w: level %d, want 1 or 2", ErrInvalidLesson, l.Level)
	}
	if !l.ProgrammingLanguage.Known() {
		return fmt.Errorf("%w: programming language %q not in enumeration", ErrInvalidLesson, l.ProgrammingLanguage)
	}
	// A Scratch-footer document with a Debug header is a debugging lesson
	// that keeps the scratch language tag; only text lessons exclude it.
	if l.ProgrammingLanguage == LangScratch && l.Type == TypeText {
		return fmt.Errorf("%w: scratch language on %q lesson", ErrInvalidLesson, l.Type)
	}

	seen := map[string]bool{}
	track := func(slot *ImageSlot) error {
		if slot == nil {
			return nil
		}
		if seen[slot.ID] {
			return fmt.Errorf("%w: duplicate image slot id %q", ErrInvalidLesson, slot.ID)
		}
		seen[slot.ID] = true
		return nil
	}

	if extras := l.extras(); extras != nil {
		for i := range extras.PrefaceImageSlots {
			if err := track(&extras.PrefaceImageSlots[i]); err != nil {
				return err
			}
		}
		for i := range extras.ChallengeSection {
			if err := track(extras.ChallengeSection[i].Slot); err != nil {
				return err
			}
		}
	}
	if l.Type == TypeScratch {
		for i := range l.Scratch.AddYourCode {
			if err := track(l.Scratch.AddYourCode[i].Slot); err != nil {
				return err
			}
		}
	}
	return nil
}
