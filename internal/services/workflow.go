package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/scanproof/internal/models"
)

// TextExtractor turns a document into text.
type TextExtractor interface {
	Extract(ctx context.Context, sessionID string, doc models.Document, progress ProgressFunc) (models.ExtractedText, error)
}

// TextCorrector runs a correction directive on text.
type TextCorrector interface {
	Correct(ctx context.Context, req models.CorrectionRequest) (*models.CorrectionResult, error)
}

// Workflow drives a session through original, spell check, writing review
// and final stages. Each stage works on the draft handed over by the
// previous one.
type Workflow struct {
	sessions  *SessionManager
	extractor TextExtractor
	corrector TextCorrector
	logger    *slog.Logger
}

// NewWorkflow creates a Workflow.
func NewWorkflow(sessions *SessionManager, extractor TextExtractor, corrector TextCorrector, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		sessions:  sessions,
		extractor: extractor,
		corrector: corrector,
		logger:    logger,
	}
}

// Start creates a new session.
func (w *Workflow) Start(ctx context.Context) (*models.Session, error) {
	return w.sessions.Create(ctx)
}

// Session returns a snapshot of the session.
func (w *Workflow) Session(ctx context.Context, id string) (*models.Session, error) {
	return w.sessions.Get(ctx, id)
}

// SubmitDocument runs OCR on doc and stores the text as the original draft.
func (w *Workflow) SubmitDocument(ctx context.Context, id string, doc models.Document, progress ProgressFunc) (*models.Session, error) {
	return w.sessions.Update(ctx, id, func(s *models.Session) error {
		if err := requireStage(s, models.StageOriginal); err != nil {
			return err
		}
		result, err := w.extractor.Extract(ctx, s.ID, doc, progress)
		if err != nil {
			return err
		}
		s.Drafts.Original = result.Text
		s.SourceFilename = doc.Filename
		w.logger.Info("Original draft extracted.", "sessionId", s.ID, "pageCount", len(result.Pages))
		return nil
	})
}

// SubmitOriginal accepts the (possibly edited) original text and moves the
// session to the spell check stage.
func (w *Workflow) SubmitOriginal(ctx context.Context, id, text string) (*models.Session, error) {
	return w.sessions.Update(ctx, id, func(s *models.Session) error {
		if err := requireStage(s, models.StageOriginal); err != nil {
			return err
		}
		if err := requireText(text); err != nil {
			return err
		}
		s.Drafts.Original = text
		s.Drafts.AfterSpellCheck = text
		s.Findings = nil
		s.SpellChecked = false
		s.Stage = models.StageAfterSpellCheck
		return nil
	})
}

// SaveDraft stores an edit of the current stage's draft.
func (w *Workflow) SaveDraft(ctx context.Context, id, text string) (*models.Session, error) {
	return w.sessions.Update(ctx, id, func(s *models.Session) error {
		if s.Stage == models.StageFinal {
			return fmt.Errorf("%w: session %s is finished", models.ErrInvalidTransition, s.ID)
		}
		if err := requireText(text); err != nil {
			return err
		}
		s.Drafts.Set(s.Stage, text)
		return nil
	})
}

// RunSpellCheck analyses text sentence by sentence. The text becomes the
// spell check draft only when the analysis succeeds.
func (w *Workflow) RunSpellCheck(ctx context.Context, id, text string) ([]models.SentenceFinding, *models.Session, error) {
	var findings []models.SentenceFinding
	sess, err := w.sessions.Update(ctx, id, func(s *models.Session) error {
		if err := requireStage(s, models.StageAfterSpellCheck); err != nil {
			return err
		}
		if err := requireText(text); err != nil {
			return err
		}
		res, err := w.corrector.Correct(ctx, models.CorrectionRequest{Text: text, Directive: models.SpellingAnalysis})
		if err != nil {
			return err
		}
		findings = res.Findings
		s.Drafts.AfterSpellCheck = text
		s.Findings = res.Findings
		s.SpellChecked = true
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return findings, sess, nil
}

// Advance hands the spell check draft over to the writing review stage.
func (w *Workflow) Advance(ctx context.Context, id string) (*models.Session, error) {
	return w.sessions.Update(ctx, id, func(s *models.Session) error {
		if err := requireStage(s, models.StageAfterSpellCheck); err != nil {
			return err
		}
		if err := requireText(s.Drafts.AfterSpellCheck); err != nil {
			return err
		}
		s.Drafts.AfterWritingReview = s.Drafts.AfterSpellCheck
		s.Critique = ""
		s.Stage = models.StageAfterWritingReview
		return nil
	})
}

// RunWritingReview requests a critique of text. The text becomes the writing
// review draft only when the critique succeeds.
func (w *Workflow) RunWritingReview(ctx context.Context, id, text string) (string, *models.Session, error) {
	var critique string
	sess, err := w.sessions.Update(ctx, id, func(s *models.Session) error {
		if err := requireStage(s, models.StageAfterWritingReview); err != nil {
			return err
		}
		if err := requireText(text); err != nil {
			return err
		}
		res, err := w.corrector.Correct(ctx, models.CorrectionRequest{Text: text, Directive: models.WritingCritique})
		if err != nil {
			return err
		}
		critique = res.Text
		s.Drafts.AfterWritingReview = text
		s.Critique = res.Text
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return critique, sess, nil
}

// Finish records text as the final draft.
func (w *Workflow) Finish(ctx context.Context, id, text string) (*models.Session, error) {
	return w.sessions.Update(ctx, id, func(s *models.Session) error {
		if err := requireStage(s, models.StageAfterWritingReview); err != nil {
			return err
		}
		if err := requireText(text); err != nil {
			return err
		}
		s.Drafts.AfterWritingReview = text
		s.Drafts.Final = text
		s.Stage = models.StageFinal
		w.logger.Info("Session finished.", "sessionId", s.ID)
		return nil
	})
}

// Correct runs an ad-hoc directive on text without changing the session.
func (w *Workflow) Correct(ctx context.Context, req models.CorrectionRequest) (*models.CorrectionResult, error) {
	return w.corrector.Correct(ctx, req)
}

// Reset clears every draft and returns the session to the original stage.
func (w *Workflow) Reset(ctx context.Context, id string) (*models.Session, error) {
	return w.sessions.Update(ctx, id, func(s *models.Session) error {
		*s = models.Session{ID: s.ID, Stage: models.StageOriginal, CreatedAt: s.CreatedAt}
		return nil
	})
}

// Delete discards the session and every draft it holds.
func (w *Workflow) Delete(ctx context.Context, id string) error {
	return w.sessions.Delete(ctx, id)
}

// Artifact returns the download name and content of a text artifact. The
// completed text is available once the session is finished.
func (w *Workflow) Artifact(ctx context.Context, id string, kind models.Artifact) (string, []byte, error) {
	s, err := w.sessions.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	switch kind {
	case models.ArtifactOriginal:
		if s.Drafts.Original == "" {
			return "", nil, fmt.Errorf("%w: no original text yet", models.ErrEmptyDraft)
		}
		return kind.Filename(), []byte(s.Drafts.Original), nil
	case models.ArtifactCompleted:
		if err := requireStage(s, models.StageFinal); err != nil {
			return "", nil, err
		}
		return kind.Filename(), []byte(s.Drafts.Final), nil
	}
	return "", nil, fmt.Errorf("%w: unknown artifact %q", models.ErrInvalidTransition, kind)
}

func requireStage(s *models.Session, want models.Stage) error {
	if s.Stage != want {
		return fmt.Errorf("%w: session %s is at %s, expected %s", models.ErrInvalidTransition, s.ID, s.Stage, want)
	}
	return nil
}

func requireText(text string) error {
	if strings.TrimSpace(text) == "" {
		return models.ErrEmptyDraft
	}
	return nil
}
