package lesson

import (
	"log/slog"
	"regexp"
	"strings"
)

// Language is the closed set of programming languages a lesson can declare.
// Footer tokens map through footerLanguages; anything unmapped is discarded
// as LangNone, never invented.
type Language string

const (
	LangNone       Language = "none"
	LangScratch    Language = "scratch"
	LangSmallBasic Language = "small-basic"
	LangWeb        Language = "javascript-or-html-or-css"
	LangPython     Language = "python"
	LangJava       Language = "java"
	LangC          Language = "c"
	LangPygame     Language = "pygame"
	LangRuby       Language = "ruby"
	LangLua        Language = "lua"
)

// Known reports whether lang is a member of the closed enumeration.
func (l Language) Known() bool {
	switch l {
	case LangNone, LangScratch, LangSmallBasic, LangWeb, LangPython,
		LangJava, LangC, LangPygame, LangRuby, LangLua:
		return true
	}
	return false
}

// footerLanguages maps raw footer language phrases (lower-cased) to the
// closed enumeration. Several spellings of the same language collapse to
// one member.
var footerLanguages = map[string]Language{
	"scratch":     LangScratch,
	"small-basic": LangSmallBasic,
	"small basic": LangSmallBasic,
	"smallbasic":  LangSmallBasic,
	"python":      LangPython,
	"java":        LangJava,
	"javascript":  LangWeb,
	"html":        LangWeb,
	"css":         LangWeb,
	"c":           LangC,
	"pygame":      LangPygame,
	"ruby":        LangRuby,
	"lua":         LangLua,
}

// FooterInfo is the rule-derived language/level pair extracted from a
// document footer. It is trusted over the LLM's own guess.
type FooterInfo struct {
	Language Language
	Level    int
}

// DefaultFooterInfo is what footer extraction yields when nothing usable is
// found: no language, level 1.
func DefaultFooterInfo() FooterInfo {
	return FooterInfo{Language: LangNone, Level: 1}
}

// Expected footer format: "Level: Scratch-1" or "Level: Python-2".
var footerRe = regexp.MustCompile(`level:\s*([a-z\s-]+?)-(\d)`)

// ParseFooter extracts the declared language and level from raw footer text.
// It never fails: unusable input yields DefaultFooterInfo. An unrecognised
// language phrase is logged and discarded rather than guessed.
func ParseFooter(footerText string, logger *slog.Logger) FooterInfo {
	if logger == nil {
		logger = slog.Default()
	}
	info := DefaultFooterInfo()

	text := strings.ToLower(strings.TrimSpace(footerText))
	if text == "" || !strings.Contains(text, "level") {
		return info
	}

	m := footerRe.FindStringSubmatch(text)
	if m == nil {
		return info
	}

	raw := strings.TrimSpace(m[1])
	if lang, ok := footerLanguages[raw]; ok {
		info.Language = lang
		logger.Debug("footer: language found", "language", lang)
	} else {
		logger.Warn("footer: language not in map, ignoring", "raw", raw)
	}

	switch m[2] {
	case "1":
		info.Level = 1
	case "2":
		info.Level = 2
	default:
		logger.Warn("footer: level out of range, defaulting to 1", "raw", m[2])
	}

	return info
}
