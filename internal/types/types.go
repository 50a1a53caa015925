package types

type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionResponse mirrors the per-session state shown on the page.
type SessionResponse struct {
	SessionID       string `json:"sessionId"`
	Step            string `json:"step"`
	Variant         string `json:"variant"`
	DocumentName    string `json:"documentName,omitempty"`
	HasDocument     bool   `json:"hasDocument"`
	AuditSummary    string `json:"auditSummary,omitempty"`
	SecondaryResult string `json:"secondaryResult,omitempty"`
	Warning         string `json:"warning,omitempty"`
}

type DocumentResponse struct {
	SessionID    string `json:"sessionId"`
	DocumentName string `json:"documentName"`
	Characters   int    `json:"characters"`
}

type SummaryResponse struct {
	SessionID    string `json:"sessionId"`
	AuditSummary string `json:"auditSummary"`
}

// FollowUpRequest carries the question for the Q&A variant. The
// decision-support variant ignores it.
type FollowUpRequest struct {
	Question string `json:"question,omitempty"`
}

type FollowUpResponse struct {
	SessionID string `json:"sessionId"`
	Variant   string `json:"variant"`
	Result    string `json:"result"`
}
