package models

import "time"

// Stage is the position of a session in the correction workflow.
type Stage string

const (
	StageOriginal           Stage = "original"
	StageAfterSpellCheck    Stage = "after_spellcheck"
	StageAfterWritingReview Stage = "after_writing_review"
	StageFinal              Stage = "final"
)

// Drafts holds the user-visible text of every stage.
type Drafts struct {
	Original           string `firestore:"original" json:"original"`
	AfterSpellCheck    string `firestore:"afterSpellCheck" json:"after_spellcheck"`
	AfterWritingReview string `firestore:"afterWritingReview" json:"after_writing_review"`
	Final              string `firestore:"final" json:"final"`
}

// Get returns the draft for stage s.
func (d *Drafts) Get(s Stage) string {
	switch s {
	case StageOriginal:
		return d.Original
	case StageAfterSpellCheck:
		return d.AfterSpellCheck
	case StageAfterWritingReview:
		return d.AfterWritingReview
	case StageFinal:
		return d.Final
	}
	return ""
}

// Set overwrites the draft for stage s.
func (d *Drafts) Set(s Stage, text string) {
	switch s {
	case StageOriginal:
		d.Original = text
	case StageAfterSpellCheck:
		d.AfterSpellCheck = text
	case StageAfterWritingReview:
		d.AfterWritingReview = text
	case StageFinal:
		d.Final = text
	}
}

// Session is the explicit per-user workflow state.
type Session struct {
	ID             string            `firestore:"id" json:"id"`
	Stage          Stage             `firestore:"stage" json:"stage"`
	Drafts         Drafts            `firestore:"drafts" json:"drafts"`
	Findings       []SentenceFinding `firestore:"findings" json:"findings"`
	SpellChecked   bool              `firestore:"spellChecked" json:"spell_checked"`
	Critique       string            `firestore:"critique" json:"critique"`
	SourceFilename string            `firestore:"sourceFilename,omitempty" json:"source_filename,omitempty"`
	LastError      string            `firestore:"lastError,omitempty" json:"last_error,omitempty"`
	CreatedAt      time.Time         `firestore:"createdAt" json:"created_at"`
	UpdatedAt      time.Time         `firestore:"updatedAt" json:"updated_at"`
}

// Artifact names a downloadable text file.
type Artifact string

const (
	ArtifactOriginal  Artifact = "original"
	ArtifactCompleted Artifact = "completed"
)

// Filename is the download name of the artifact.
func (a Artifact) Filename() string {
	return string(a) + ".txt"
}
