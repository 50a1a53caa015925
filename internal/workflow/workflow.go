// Package workflow sequences the two analysis steps for one session:
// summarise an uploaded audit document, then answer a question about the
// summary or produce decision support from it.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"audit-analyzer/internal/gateway"
	"audit-analyzer/internal/prompts"
	"audit-analyzer/internal/store"
)

type Variant string

const (
	VariantDecisionSupport Variant = "decision_support"
	VariantQA              Variant = "qa"
)

const (
	StageSummary  = "summary"
	StageFollowUp = "followup"
)

// SequencingWarning is shown when the follow-up step is used before a
// summary exists.
const SequencingWarning = "Please complete Step 1: Analyze Audit Report first."

var (
	ErrNoSummary     = errors.New(SequencingWarning)
	ErrNoDocument    = errors.New("upload an audit report before analyzing")
	ErrEmptyQuestion = errors.New("question is required")
	ErrUnknownStep   = errors.New("unknown step")
	ErrEmptyReply    = errors.New("completion reply was empty")
)

// CompletionError wraps a failed gateway call with the stage it belonged to.
type CompletionError struct {
	Stage string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Stage, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// DocumentExtractor turns an upload into text.
type DocumentExtractor interface {
	Extract(fileName string, data []byte) (string, error)
}

// Recorder observes every completion call.
type Recorder interface {
	RecordCall(ctx context.Context, rec store.CallRecord)
}

type Options struct {
	Templates prompts.Templates
	Completer gateway.Completer
	Documents DocumentExtractor
	Variant   Variant
	// Model is only used to label call records.
	Model     string
	Recorders []Recorder
	Logger    *slog.Logger
}

type Controller struct {
	templates prompts.Templates
	completer gateway.Completer
	documents DocumentExtractor
	variant   Variant
	model     string
	recorders []Recorder
	logger    *slog.Logger
	now       func() time.Time
}

func New(opts Options) (*Controller, error) {
	if opts.Completer == nil {
		return nil, errors.New("workflow: completer is required")
	}
	if opts.Documents == nil {
		return nil, errors.New("workflow: document extractor is required")
	}
	switch opts.Variant {
	case VariantDecisionSupport, VariantQA:
	case "":
		opts.Variant = VariantDecisionSupport
	default:
		return nil, fmt.Errorf("workflow: unknown variant %q", opts.Variant)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		templates: opts.Templates,
		completer: opts.Completer,
		documents: opts.Documents,
		variant:   opts.Variant,
		model:     opts.Model,
		recorders: opts.Recorders,
		logger:    opts.Logger,
		now:       time.Now,
	}, nil
}

func (c *Controller) Variant() Variant { return c.variant }

func (c *Controller) Templates() prompts.Templates { return c.templates }

// StepView is what the display layer needs after a navigation.
type StepView struct {
	Step    store.Step
	Warning string
}

// SelectStep switches the active sub-view. Choosing the follow-up step
// without a summary yields the sequencing warning and nothing else.
func (c *Controller) SelectStep(sess *store.Session, step store.Step) (StepView, error) {
	switch step {
	case store.StepAnalyze, store.StepFollowUp:
	default:
		return StepView{}, fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}
	sess.Step = step
	view := StepView{Step: step}
	if step == store.StepFollowUp && !sess.HasSummary() {
		view.Warning = SequencingWarning
	}
	return view, nil
}

// SubmitDocument extracts text from an upload and keeps it for the next
// summary request. The session is untouched when extraction fails.
func (c *Controller) SubmitDocument(sess *store.Session, fileName string, data []byte) error {
	text, err := c.documents.Extract(fileName, data)
	if err != nil {
		c.logger.Info("document rejected", "session", sess.ID, "file", fileName, "error", err)
		return err
	}
	sess.DocumentName = fileName
	sess.Document = text
	c.logger.Info("document accepted", "session", sess.ID, "file", fileName, "chars", len(text))
	return nil
}

// RequestSummary asks the model to summarise the submitted document and
// replaces any previous summary on success.
func (c *Controller) RequestSummary(ctx context.Context, sess *store.Session) error {
	if !sess.HasDocument() {
		return ErrNoDocument
	}
	reply, err := c.complete(ctx, sess.ID, StageSummary, c.templates.Summary, SummaryContent(sess.Document))
	if err != nil {
		return err
	}
	sess.AuditSummary = reply
	return nil
}

// RequestFollowUp runs the second step against the stored summary. The
// question is only used by the Q&A variant.
func (c *Controller) RequestFollowUp(ctx context.Context, sess *store.Session, question string) error {
	if !sess.HasSummary() {
		return ErrNoSummary
	}
	var content string
	if c.variant == VariantQA {
		question = strings.TrimSpace(question)
		if question == "" {
			return ErrEmptyQuestion
		}
		content = QAContent(sess.AuditSummary, question)
	} else {
		content = DecisionSupportContent(sess.AuditSummary)
	}
	reply, err := c.complete(ctx, sess.ID, StageFollowUp, c.templates.FollowUp(c.variant == VariantQA), content)
	if err != nil {
		return err
	}
	sess.SecondaryResult = reply
	return nil
}

func (c *Controller) complete(ctx context.Context, sessionID, stage, system, content string) (string, error) {
	start := c.now()
	reply, err := c.completer.Complete(ctx, system, content)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrEmptyReply
	}
	rec := store.CallRecord{
		SessionID: sessionID,
		Stage:     stage,
		Model:     c.model,
		UserBytes: len(content),
		Latency:   c.now().Sub(start),
		OK:        err == nil,
		At:        start,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	for _, r := range c.recorders {
		r.RecordCall(ctx, rec)
	}
	if err != nil {
		c.logger.Error("completion failed", "session", sessionID, "stage", stage, "latency", rec.Latency, "error", err)
		return "", &CompletionError{Stage: stage, Err: err}
	}
	c.logger.Info("completion finished", "session", sessionID, "stage", stage, "latency", rec.Latency, "reply_chars", len(reply))
	return reply, nil
}

func SummaryContent(document string) string {
	return "Analyze this cybersecurity audit:\n" + document
}

func QAContent(summary, question string) string {
	return "Audit Summary:\n" + summary + "\n\nQuestion:\n" + question
}

func DecisionSupportContent(summary string) string {
	return "Provide decision support for this audit summary:\n" + summary
}
