package models

import (
	"fmt"
	"strings"
)

// Directive selects the correction task sent to the text model.
type Directive string

const (
	SpellCheck       Directive = "spell_check"
	PolishProse      Directive = "polish_prose"
	Summarize        Directive = "summarize"
	Translate        Directive = "translate"
	WritingCritique  Directive = "writing_critique"
	SpellingAnalysis Directive = "spelling_analysis"
)

// Directives lists every supported directive.
var Directives = []Directive{SpellCheck, PolishProse, Summarize, Translate, WritingCritique, SpellingAnalysis}

// Structured reports whether the directive expects a JSON findings payload.
func (d Directive) Structured() bool {
	return d == SpellingAnalysis
}

// Valid reports whether d is a known directive.
func (d Directive) Valid() bool {
	for _, known := range Directives {
		if d == known {
			return true
		}
	}
	return false
}

// CorrectionRequest pairs subject text with a directive.
type CorrectionRequest struct {
	Text      string
	Directive Directive
}

// Correction is a single suggested replacement inside a sentence.
type Correction struct {
	IncorrectWord string `json:"incorrect_word" firestore:"incorrectWord"`
	CorrectWord   string `json:"correct_word" firestore:"correctWord"`
	Reason        string `json:"reason" firestore:"reason"`
}

// SentenceFinding is the spelling verdict for one sentence of the source text.
type SentenceFinding struct {
	SentenceID       int          `json:"sentence_id" firestore:"sentenceId"`
	OriginalSentence string       `json:"original_sentence" firestore:"originalSentence"`
	IsCorrect        bool         `json:"is_correct" firestore:"isCorrect"`
	Corrections      []Correction `json:"corrections" firestore:"corrections"`
}

// CorrectionResult holds either free-form text or structured findings,
// depending on the directive that produced it.
type CorrectionResult struct {
	Directive Directive
	Text      string
	Findings  []SentenceFinding
	Cached    bool
}

// Incorrect returns the findings that need attention.
func Incorrect(findings []SentenceFinding) []SentenceFinding {
	var out []SentenceFinding
	for _, f := range findings {
		if !f.IsCorrect {
			out = append(out, f)
		}
	}
	return out
}

// FormatFindings renders a findings report: a summary block with sentence
// counts followed by details for every incorrect sentence.
func FormatFindings(findings []SentenceFinding) string {
	var b strings.Builder
	rule := strings.Repeat("=", 50)
	wrong := len(Incorrect(findings))

	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Spelling analysis (%d sentences)\n", len(findings))
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Correct:   %d\n", len(findings)-wrong)
	fmt.Fprintf(&b, "Incorrect: %d\n", wrong)
	fmt.Fprintln(&b, rule)

	for _, f := range findings {
		if f.IsCorrect {
			continue
		}
		fmt.Fprintf(&b, "\n--- Sentence %d ---\n", f.SentenceID+1)
		fmt.Fprintf(&b, "Original: %s\n", f.OriginalSentence)
		if len(f.Corrections) == 0 {
			fmt.Fprintln(&b, "  - no detailed corrections")
			continue
		}
		for _, c := range f.Corrections {
			fmt.Fprintf(&b, "  - %s -> %s (%s)\n", c.IncorrectWord, c.CorrectWord, c.Reason)
		}
	}
	return b.String()
}
