package gcp

import (
	"fmt"

	"github.com/Lllllllleong/scanproof/internal/models"
)

// Prompt is one request to a text model.
type Prompt struct {
	System string
	User   string
	// JSON requests a JSON-typed response body.
	JSON bool
}

// --- Free-form correction prompts ---
const CorrectorSystemPrompt = "You are an expert Korean proofreader and writing teacher. You receive text that was extracted from a scanned student essay by OCR. Respond in Korean unless asked to translate, and never add preambles such as \"Here is the corrected text\"."

const spellCheckUserPrompt = `Correct the spelling, spacing and grammar of the following Korean text. Return ONLY the corrected text.

%s`

const polishProseUserPrompt = `Rewrite the following text so that it reads naturally and is grammatically correct, without changing its meaning. Return ONLY the rewritten text.

%s`

const summarizeUserPrompt = `Summarize the following text concisely.

%s`

const translateUserPrompt = `Translate the following Korean text into natural English. Return ONLY the translation.

%s`

// --- Writing critique prompt ---
const writingCritiqueUserPrompt = `You are a 6th-grade Korean language teacher who evaluates persuasive essays and coaches students through revision. First perform an evaluation using the rubric below, then write revision suggestions for the same essay in a warm tone addressed to the student.

Rubric:
1) Clarity and unity of the claim - the central claim is stated in the introduction and held consistently throughout.
2) Validity and variety of evidence - at least three kinds of evidence (experience, statistics, expert opinion) are presented.
3) Logical flow - introduction, body and conclusion are organised and paragraphs connect to each other.
4) Audience awareness - vocabulary and persuasive expressions suit the intended reader.
5) Mechanics - spelling, spacing and paragraphing are correct.

Student essay:
%s

Output format: start with a section titled "=== 평가 ===" listing each criterion on its own line as "criterion - score (1-5): comment", followed by a one-paragraph overall comment. Then write a section titled "=== 고쳐쓰기 제안 ===" with improvement points and a short example sentence for each paragraph, and end with words of encouragement for the student.`

// --- Structured spelling analysis prompts ---
const SpellingAnalysisSystemPrompt = "You are a specialist in Korean spelling and grammar analysis. You must output your response as a valid JSON array and nothing else."

// SpellingAnalysisSchema is the JSON schema the spelling analysis response must satisfy.
const SpellingAnalysisSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["original_sentence", "is_correct"],
    "properties": {
      "sentence_id": {"type": "integer"},
      "original_sentence": {"type": "string"},
      "is_correct": {"type": "boolean"},
      "corrections": {
        "type": ["array", "null"],
        "items": {
          "type": "object",
          "required": ["incorrect_word", "correct_word"],
          "properties": {
            "incorrect_word": {"type": "string"},
            "correct_word": {"type": "string"},
            "reason": {"type": "string"}
          }
        }
      }
    }
  }
}`

const spellingAnalysisUserPrompt = `Split the following text into sentences and analyse each one. Find every error (spelling, spacing, grammar) and return ONLY a JSON array in this format:

[
  {
    "sentence_id": 0,
    "original_sentence": "the sentence as written",
    "is_correct": false,
    "corrections": [
      {"incorrect_word": "wrong word or phrase", "correct_word": "correction", "reason": "error type, e.g. spacing or spelling"}
    ]
  }
]

Rules:
1. sentence_id starts at 0 and increases by one in the order the sentences appear.
2. If a sentence has no errors, set "is_correct" to true and "corrections" to an empty array.
3. Do not include any text before or after the JSON array.

Text:

%s`

// PromptFor builds the prompt for a directive and subject text.
func PromptFor(directive models.Directive, text string) (Prompt, error) {
	switch directive {
	case models.SpellCheck:
		return Prompt{System: CorrectorSystemPrompt, User: fmt.Sprintf(spellCheckUserPrompt, text)}, nil
	case models.PolishProse:
		return Prompt{System: CorrectorSystemPrompt, User: fmt.Sprintf(polishProseUserPrompt, text)}, nil
	case models.Summarize:
		return Prompt{System: CorrectorSystemPrompt, User: fmt.Sprintf(summarizeUserPrompt, text)}, nil
	case models.Translate:
		return Prompt{System: CorrectorSystemPrompt, User: fmt.Sprintf(translateUserPrompt, text)}, nil
	case models.WritingCritique:
		return Prompt{System: CorrectorSystemPrompt, User: fmt.Sprintf(writingCritiqueUserPrompt, text)}, nil
	case models.SpellingAnalysis:
		return Prompt{System: SpellingAnalysisSystemPrompt, User: fmt.Sprintf(spellingAnalysisUserPrompt, text), JSON: true}, nil
	}
	return Prompt{}, fmt.Errorf("unknown directive %q", directive)
}
