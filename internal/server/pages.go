package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"audit-analyzer/internal/store"
	"audit-analyzer/internal/workflow"
)

//go:embed templates/*.html
var templateFS embed.FS

type pageRenderer struct {
	page *template.Template
}

func newPageRenderer() (*pageRenderer, error) {
	t, err := template.ParseFS(templateFS, "templates/page.html")
	if err != nil {
		return nil, err
	}
	return &pageRenderer{page: t}, nil
}

type pageData struct {
	Step          store.Step
	QA            bool
	FollowUpTitle string
	Accept        string
	Session       store.Session
	Question      string
	Warning       string
	Error         string
	Notice        string
}

func (s *Server) newPageData(sess store.Session) pageData {
	qa := s.flow.Variant() == workflow.VariantQA
	title := "Decision Support"
	if qa {
		title = "Ask Questions"
	}
	step := sess.Step
	if step == "" {
		step = store.StepAnalyze
	}
	return pageData{
		Step:          step,
		QA:            qa,
		FollowUpTitle: title,
		Accept:        ".txt,.md,.log,.csv,.html,.htm,.docx,.pdf",
		Session:       sess,
	}
}

func (s *Server) renderPage(w http.ResponseWriter, code int, data pageData) {
	if data.Step == store.StepFollowUp && !data.Session.HasSummary() {
		data.Warning = workflow.SequencingWarning
	}
	var buf bytes.Buffer
	if err := s.pages.page.Execute(&buf, data); err != nil {
		s.logger.Error("render page", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}

// GET /?step=analyze|followup
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sid := s.getOrCreateSessionID(r, w)
	var view workflow.StepView
	err := s.store.With(sid, func(sess *store.Session) error {
		step := store.Step(strings.TrimSpace(r.URL.Query().Get("step")))
		if step == "" {
			step = sess.Step
		}
		if step == "" {
			step = store.StepAnalyze
		}
		var err error
		view, err = s.flow.SelectStep(sess, step)
		return err
	})
	sess := s.store.Snapshot(sid)
	data := s.newPageData(sess)
	if err != nil {
		data.Error = "Unknown step selected."
		s.renderPage(w, http.StatusNotFound, data)
		return
	}
	if view.Warning != "" {
		s.metrics.SequencingWarning()
	}
	s.renderPage(w, http.StatusOK, data)
}

// POST /document (multipart, field "file")
func (s *Server) handlePageDocument(w http.ResponseWriter, r *http.Request) {
	sid := s.getOrCreateSessionID(r, w)
	name, payload, err := s.readUpload(w, r)
	if err == nil {
		err = s.store.With(sid, func(sess *store.Session) error {
			sess.Step = store.StepAnalyze
			return s.flow.SubmitDocument(sess, name, payload)
		})
		if err != nil {
			s.metrics.DocumentRejected()
		} else {
			s.metrics.DocumentAccepted()
		}
	}
	data := s.newPageData(s.store.Snapshot(sid))
	data.Step = store.StepAnalyze
	if err != nil {
		code, msg := describeError(err)
		data.Error = msg
		s.renderPage(w, code, data)
		return
	}
	data.Notice = "Uploaded " + name + ". Press Analyze Report to summarise it."
	s.renderPage(w, http.StatusOK, data)
}

// POST /analyze
func (s *Server) handlePageAnalyze(w http.ResponseWriter, r *http.Request) {
	sid := s.getOrCreateSessionID(r, w)
	err := s.store.With(sid, func(sess *store.Session) error {
		sess.Step = store.StepAnalyze
		return s.flow.RequestSummary(r.Context(), sess)
	})
	data := s.newPageData(s.store.Snapshot(sid))
	data.Step = store.StepAnalyze
	if err != nil {
		code, msg := describeError(err)
		if code >= 500 {
			s.logger.Error("analyze failed", "session", sid, "error", err)
		}
		data.Error = msg
		s.renderPage(w, code, data)
		return
	}
	s.renderPage(w, http.StatusOK, data)
}

// POST /followup (form field "question" for the Q&A variant)
func (s *Server) handlePageFollowUp(w http.ResponseWriter, r *http.Request) {
	sid := s.getOrCreateSessionID(r, w)
	question := r.PostFormValue("question")
	err := s.store.With(sid, func(sess *store.Session) error {
		return s.flow.RequestFollowUp(r.Context(), sess, question)
	})
	sess := s.store.Snapshot(sid)
	data := s.newPageData(sess)
	data.Step = store.StepFollowUp
	data.Question = question
	if err != nil {
		code, msg := describeError(err)
		if code == http.StatusConflict {
			s.metrics.SequencingWarning()
			// the page itself renders the warning
			s.renderPage(w, http.StatusOK, data)
			return
		}
		if code >= 500 {
			s.logger.Error("follow-up failed", "session", sid, "error", err)
		}
		data.Error = msg
		s.renderPage(w, code, data)
		return
	}
	s.renderPage(w, http.StatusOK, data)
}

// POST /reset drops the session and starts a fresh one.
func (s *Server) handlePageReset(w http.ResponseWriter, r *http.Request) {
	if sid := getSessionID(r); sid != "" {
		s.store.Delete(sid)
	}
	ClearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
