package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Lllllllleong/scanproof/internal/gcp"
	"github.com/Lllllllleong/scanproof/internal/models"
)

// snippetRunes bounds the raw response copied into parse errors.
const snippetRunes = 120

var (
	findingsSchemaOnce sync.Once
	findingsSchema     *jsonschema.Schema
	findingsSchemaErr  error
)

func compiledFindingsSchema() (*jsonschema.Schema, error) {
	findingsSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("findings.json", strings.NewReader(gcp.SpellingAnalysisSchema)); err != nil {
			findingsSchemaErr = fmt.Errorf("failed to load findings schema: %w", err)
			return
		}
		findingsSchema, findingsSchemaErr = compiler.Compile("findings.json")
	})
	return findingsSchema, findingsSchemaErr
}

// ParseFindings extracts sentence findings from a model response. It tries
// the whole response, then the first balanced JSON array, then the first
// balanced JSON object. The result is schema-validated and repaired so that
// sentence ids are unique and non-negative and any sentence with corrections
// is marked incorrect.
func ParseFindings(raw string) ([]models.SentenceFinding, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, models.NewCorrectionError(models.KindEmptyResponse, "model returned no text", nil)
	}

	var lastErr error
	for _, candidate := range jsonCandidates(trimmed) {
		findings, err := decodeFindings(candidate)
		if err == nil && len(findings) == 0 && candidate != trimmed {
			err = errors.New("extracted JSON holds no findings")
		}
		if err == nil {
			return repairFindings(findings), nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no JSON value found")
	}
	ce := models.NewCorrectionError(models.KindParse, "could not parse findings", lastErr)
	ce.Snippet = Snippet(trimmed)
	return nil, ce
}

// jsonCandidates lists the substrings worth decoding, in priority order. An
// array that opens inside the first balanced object belongs to that object
// and is not offered on its own.
func jsonCandidates(s string) []string {
	candidates := []string{s}
	objStart, objEnd, objOK := balancedSpan(s, 0, '{', '}')
	for from := 0; ; {
		start, end, ok := balancedSpan(s, from, '[', ']')
		if !ok {
			break
		}
		if objOK && start > objStart && start < objEnd {
			from = objEnd
			continue
		}
		if c := s[start:end]; c != s {
			candidates = append(candidates, c)
		}
		break
	}
	if objOK {
		if c := s[objStart:objEnd]; c != s {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

// balanced returns the first substring that opens with open and closes at the
// matching close, skipping brackets inside JSON strings.
func balanced(s string, open, close byte) (string, bool) {
	start, end, ok := balancedSpan(s, 0, open, close)
	if !ok {
		return "", false
	}
	return s[start:end], true
}

// balancedSpan is balanced starting the search at from. It returns the
// half-open byte range of the match.
func balancedSpan(s string, from int, open, close byte) (int, int, bool) {
	for start := indexByteFrom(s, from, open); start >= 0; start = indexByteFrom(s, start+1, open) {
		depth := 0
		inString, escaped := false, false
		for i := start; i < len(s); i++ {
			ch := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				inString = true
			case open:
				depth++
			case close:
				depth--
				if depth == 0 {
					return start, i + 1, true
				}
			}
		}
	}
	return 0, 0, false
}

func indexByteFrom(s string, from int, c byte) int {
	if from >= len(s) {
		return -1
	}
	i := strings.IndexByte(s[from:], c)
	if i < 0 {
		return -1
	}
	return from + i
}

func decodeFindings(candidate string) ([]models.SentenceFinding, error) {
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}

	doc, err := findingsArray(doc)
	if err != nil {
		return nil, err
	}

	schema, err := compiledFindingsSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("response does not match schema: %w", err)
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var findings []models.SentenceFinding
	if err := json.NewDecoder(bytes.NewReader(normalized)).Decode(&findings); err != nil {
		return nil, fmt.Errorf("failed to decode findings: %w", err)
	}
	return findings, nil
}

// findingsArray accepts an array as is. An object is accepted when it is a
// single finding or wraps the findings in one of its fields.
func findingsArray(doc any) (any, error) {
	switch v := doc.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if _, ok := v["original_sentence"]; ok {
			return []any{v}, nil
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if arr, ok := v[k].([]any); ok {
				return arr, nil
			}
		}
		return nil, errors.New("object has no findings array")
	}
	return nil, fmt.Errorf("unexpected JSON %T", doc)
}

// repairFindings enforces the findings invariants in place.
func repairFindings(findings []models.SentenceFinding) []models.SentenceFinding {
	seen := make(map[int]bool, len(findings))
	renumber := false
	for i := range findings {
		f := &findings[i]
		if len(f.Corrections) > 0 {
			f.IsCorrect = false
		}
		if f.Corrections == nil {
			f.Corrections = []models.Correction{}
		}
		if f.SentenceID < 0 || seen[f.SentenceID] {
			renumber = true
		}
		seen[f.SentenceID] = true
	}
	if renumber {
		for i := range findings {
			findings[i].SentenceID = i
		}
	}
	return findings
}

// Snippet truncates s to a short prefix for error reports.
func Snippet(s string) string {
	r := []rune(s)
	if len(r) <= snippetRunes {
		return s
	}
	return string(r[:snippetRunes]) + "..."
}
