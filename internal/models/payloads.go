package models

// These structs define the JSON payloads for HTTP requests and responses
// between a workflow client and the workflow-api function.

// TextRequest carries the draft text a user action operates on.
type TextRequest struct {
	Text string `json:"text"`
}

// CorrectRequest is the input for an ad-hoc correction call.
type CorrectRequest struct {
	Text      string    `json:"text"`
	Directive Directive `json:"directive"`
}

// CorrectResponse is the output of an ad-hoc correction call.
type CorrectResponse struct {
	Directive Directive         `json:"directive"`
	Text      string            `json:"text,omitempty"`
	Findings  []SentenceFinding `json:"findings,omitempty"`
	Report    string            `json:"report,omitempty"`
}

// SpellCheckResponse is the output of the spell-check stage.
type SpellCheckResponse struct {
	SessionID string            `json:"sessionId"`
	Draft     string            `json:"draft"`
	Findings  []SentenceFinding `json:"findings"`
	Incorrect int               `json:"incorrect"`
	Report    string            `json:"report"`
}

// WritingReviewResponse is the output of the writing-review stage.
type WritingReviewResponse struct {
	SessionID string `json:"sessionId"`
	Draft     string `json:"draft"`
	Critique  string `json:"critique"`
}

// ErrorResponse is written for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}
